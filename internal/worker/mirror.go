package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/sheets"
)

const (
	seenCacheSize = 1024
	seenCacheTTL  = time.Hour
)

// Mirror appends one activity row per expense event.
type Mirror struct {
	writer sheets.ActivityWriter
	logger *slog.Logger
	// seen holds recently mirrored events so a redelivery after a lost ack
	// does not add a second row.
	seen *cache.LRUCache[struct{}]
}

func NewMirror(writer sheets.ActivityWriter, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		writer: writer,
		logger: logger,
		seen:   cache.NewLRUCache[struct{}](seenCacheSize, seenCacheTTL),
	}
}

// HandleEvent is the consumer callback. A returned error requeues the message.
func (m *Mirror) HandleEvent(ctx context.Context, event *amqp.ExpenseEvent) error {
	if event == nil {
		return errors.New("nil event")
	}

	key := eventKey(event)
	if _, dup := m.seen.Get(key); dup {
		m.logger.DebugContext(ctx, "Skipping already mirrored event", "event_type", event.Type, "expense_id", event.ID)
		return nil
	}

	ref, err := m.writer.AppendActivity(ctx, ActivityFromEvent(event))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	m.seen.Set(key, struct{}{})

	m.logger.InfoContext(ctx, "Mirrored expense event",
		"event_type", event.Type,
		"expense_id", event.ID,
		"sheets_ref", ref)
	return nil
}

// SeenCache exposes the dedupe cache so it can be registered for cleanup.
func (m *Mirror) SeenCache() cache.Cleaner {
	return m.seen
}

// ActivityFromEvent flattens an event into a sheet row.
func ActivityFromEvent(event *amqp.ExpenseEvent) sheets.Activity {
	a := sheets.Activity{
		Timestamp:    event.Timestamp,
		Event:        string(event.Type),
		ExpenseID:    event.ID,
		DeletedCount: event.DeletedCount,
	}
	if e := event.Expense; e != nil {
		a.Date = e.Date
		a.Category = string(e.Category)
		a.Note = e.Note
		a.Amount = e.Amount
	}
	return a
}

func eventKey(e *amqp.ExpenseEvent) string {
	return fmt.Sprintf("%s|%s|%d", e.Type, e.ID, e.Timestamp.UnixNano())
}
