// Package client is the data-access layer used by the web UI. It talks to the
// expense REST API, normalizes records into a flat display shape, and keeps a
// local snapshot to fall back on when the API cannot be reached.
package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"expensetracker/internal/core"
)

// Expense is the normalized record: short id key, calendar-day date, no timezone.
type Expense struct {
	ID        string     `json:"id"`
	Amount    core.Money `json:"amount"`
	Date      string     `json:"date"`
	Category  string     `json:"category"`
	Note      string     `json:"note"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Record is the loose shape read from the API, the snapshot, or an import
// file. Either id key may be present and the amount may be a number or a string.
type Record struct {
	MongoID   string          `json:"_id"`
	ID        string          `json:"id"`
	Amount    json.RawMessage `json:"amount"`
	Date      string          `json:"date"`
	Category  string          `json:"category"`
	Note      string          `json:"note"`
	CreatedAt string          `json:"createdAt"`
}

// Input is what the client submits on create and update.
type Input struct {
	Amount   string
	Date     string
	Category string
	Note     string
}

// MarshalJSON sends the amount as a JSON number when it reads as one, so the
// API sees the same payload a form would send. Anything else goes as a string
// and the API reports it.
func (in Input) MarshalJSON() ([]byte, error) {
	payload := map[string]any{
		"date":     in.Date,
		"category": in.Category,
		"note":     in.Note,
	}
	amount := strings.TrimSpace(in.Amount)
	switch {
	case amount == "":
	case isNumber(amount):
		payload["amount"] = json.Number(amount)
	default:
		payload["amount"] = amount
	}
	return json.Marshal(payload)
}

func isNumber(s string) bool {
	var f float64
	return !strings.HasPrefix(s, `"`) && json.Unmarshal([]byte(s), &f) == nil
}

// InputFrom turns a normalized record back into a submission.
func InputFrom(e Expense) Input {
	return Input{
		Amount:   e.Amount.Decimal().String(),
		Date:     e.Date,
		Category: e.Category,
		Note:     e.Note,
	}
}

// Normalize reshapes r best-effort: a missing date becomes today, a missing
// category becomes Other, an unreadable amount becomes zero and a missing
// createdAt becomes now.
func Normalize(r Record, now time.Time) Expense {
	e := Expense{
		ID:       r.MongoID,
		Category: r.Category,
		Note:     r.Note,
	}
	if e.ID == "" {
		e.ID = r.ID
	}

	if raw := bytes.TrimSpace(r.Amount); len(raw) > 0 {
		var m core.Money
		if err := m.UnmarshalJSON(raw); err == nil {
			e.Amount = m
		}
	}

	e.Date = normalizeDate(r.Date, now)
	if e.Category == "" {
		e.Category = string(core.CategoryOther)
	}

	if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		e.CreatedAt = t.UTC()
	} else {
		e.CreatedAt = now.UTC()
	}
	return e
}

// normalizeDate keeps the calendar-day part of s, dropping any time and zone.
func normalizeDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.UTC().Format(core.DateLayout)
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	if _, err := time.Parse(core.DateLayout, s); err == nil {
		return s
	}
	if d, err := core.ParseDate(s); err == nil {
		return core.FormatDate(d)
	}
	return now.UTC().Format(core.DateLayout)
}

// Day parses the normalized date. Unreadable dates give the zero time.
func (e Expense) Day() time.Time {
	t, _ := time.Parse(core.DateLayout, e.Date)
	return t
}

// Matches applies f to the normalized record, both date bounds inclusive.
func Matches(f core.Filter, e Expense) bool {
	if f.Category != "" && e.Category != string(f.Category) {
		return false
	}
	day := e.Day()
	if f.StartDate != nil && day.Before(truncateDay(*f.StartDate)) {
		return false
	}
	if f.EndDate != nil && day.After(truncateDay(*f.EndDate)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ToCore converts normalized records for the summary computations.
func ToCore(list []Expense) []core.Expense {
	out := make([]core.Expense, 0, len(list))
	for _, e := range list {
		out = append(out, core.Expense{
			ID:        e.ID,
			Amount:    e.Amount,
			Date:      e.Day(),
			Category:  core.Category(e.Category),
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
