package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensetracker/internal/core"
)

// EventType names the write that produced an event.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted, EventCleared:
		return true
	}
	return false
}

// ExpenseEvent is published after every successful write to the expense
// collection. Expense is set for single-record events, DeletedCount for cleared.
type ExpenseEvent struct {
	Type         EventType     `json:"type"`
	ID           string        `json:"id,omitempty"`
	Expense      *core.Expense `json:"expense,omitempty"`
	DeletedCount int64         `json:"deletedCount,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// NewExpenseEvent builds a created, updated or deleted event for e.
func NewExpenseEvent(t EventType, e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      t,
		ID:        e.ID,
		Expense:   &e,
		Timestamp: time.Now().UTC(),
	}
}

// NewClearedEvent reports a bulk delete.
func NewClearedEvent(deleted int64) *ExpenseEvent {
	return &ExpenseEvent{
		Type:         EventCleared,
		DeletedCount: deleted,
		Timestamp:    time.Now().UTC(),
	}
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and checks the event type.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
