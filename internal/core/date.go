package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used on forms, query strings and exports.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// ParseDate accepts a calendar day (2024-03-15) or an RFC 3339 timestamp and
// returns it in UTC, truncated to the millisecond precision every store keeps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t as a calendar day in UTC.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// Filter narrows a listing or an aggregation. Zero values leave a dimension open;
// both date bounds are inclusive.
type Filter struct {
	Category  Category
	StartDate *time.Time
	EndDate   *time.Time
}

// Matches reports whether e passes every bound set on f.
func (f Filter) Matches(e Expense) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.StartDate != nil && e.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Date.After(*f.EndDate) {
		return false
	}
	return true
}

// IsZero reports whether no bound is set.
func (f Filter) IsZero() bool {
	return f.Category == "" && f.StartDate == nil && f.EndDate == nil
}

// Key is a stable string form used for cache keys.
func (f Filter) Key() string {
	var b strings.Builder
	b.WriteString("c=")
	b.WriteString(string(f.Category))
	if f.StartDate != nil {
		b.WriteString("|s=")
		b.WriteString(f.StartDate.UTC().Format(time.RFC3339))
	}
	if f.EndDate != nil {
		b.WriteString("|e=")
		b.WriteString(f.EndDate.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Apply returns the expenses in list that match f, preserving order.
func (f Filter) Apply(list []Expense) []Expense {
	out := make([]Expense, 0, len(list))
	for _, e := range list {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
