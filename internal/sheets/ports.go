package sheets

import (
	"context"
	"strconv"
	"time"

	"expensetracker/internal/core"
)

// Activity is one line of the change log mirrored from expense events.
type Activity struct {
	Timestamp    time.Time
	Event        string
	ExpenseID    string
	Date         time.Time
	Category     string
	Note         string
	Amount       core.Money
	DeletedCount int64
}

// Header is the first row written to an empty activity sheet.
var Header = []any{"Timestamp", "Event", "ID", "Date", "Category", "Note", "Amount", "Deleted"}

// Row renders a as sheet cells. Fields that do not apply to the event are blank.
func (a Activity) Row() []any {
	amount := ""
	if a.Amount.Cents != 0 {
		amount = a.Amount.String()
	}
	deleted := ""
	if a.DeletedCount != 0 {
		deleted = strconv.FormatInt(a.DeletedCount, 10)
	}
	return []any{
		a.Timestamp.UTC().Format(time.RFC3339),
		a.Event,
		a.ExpenseID,
		core.FormatDate(a.Date),
		a.Category,
		a.Note,
		amount,
		deleted,
	}
}

// Ports for outbound adapters.
type (
	ActivityWriter interface {
		AppendActivity(ctx context.Context, a Activity) (rowRef string, err error)
	}
)
