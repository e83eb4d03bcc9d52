// Package storage defines the persistence gateway for expense records.
//
// Implementations live in sub-packages: memory (default, tests), sqlite
// (embedded document table) and mongo (document store).
package storage

import (
	"context"
	"errors"

	"expensetracker/internal/core"
)

// ErrNotFound is returned by id-scoped operations when no record matches,
// including when the id is not in a form the store could have issued.
var ErrNotFound = errors.New("expense not found")

// Gateway is the data-access boundary over the expense collection.
type Gateway interface {
	// List returns matching records, newest date first, ties broken by newest creation.
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	Get(ctx context.Context, id string) (core.Expense, error)
	// Insert assigns the id and timestamps. A zero date defaults to the creation time.
	Insert(ctx context.Context, f core.Fields) (core.Expense, error)
	// Replace overwrites the editable fields, keeps createdAt and refreshes updatedAt.
	Replace(ctx context.Context, id string, f core.Fields) (core.Expense, error)
	// Delete removes the record and returns it as it was.
	Delete(ctx context.Context, id string) (core.Expense, error)
	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
	Aggregate(ctx context.Context, f core.Filter) (core.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
