package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is one of the fixed spending categories.
type Category string

const (
	CategoryFoodDining     Category = "Food & Dining"
	CategoryTransportation Category = "Transportation"
	CategoryShopping       Category = "Shopping"
	CategoryEntertainment  Category = "Entertainment"
	CategoryBills          Category = "Bills & Utilities"
	CategoryHealthcare     Category = "Healthcare"
	CategoryTravel         Category = "Travel"
	CategoryEducation      Category = "Education"
	CategoryOther          Category = "Other"
)

// MaxNoteLength is measured in characters, not bytes.
const MaxNoteLength = 500

var categories = []Category{
	CategoryFoodDining,
	CategoryTransportation,
	CategoryShopping,
	CategoryEntertainment,
	CategoryBills,
	CategoryHealthcare,
	CategoryTravel,
	CategoryEducation,
	CategoryOther,
}

var ErrUnknownCategory = errors.New("unknown category")

type (
	Money struct {
		Cents int64
	}

	// Expense is a stored record. ID, CreatedAt and UpdatedAt are owned by the store.
	Expense struct {
		ID        string    `json:"_id"`
		Amount    Money     `json:"amount"`
		Date      time.Time `json:"date"`
		Category  Category  `json:"category"`
		Note      string    `json:"note"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Fields is the user-supplied part of an expense. Nil pointers and empty
	// strings mean the field was not provided.
	Fields struct {
		Amount   *Money
		Date     *time.Time
		Category string
		Note     string
	}
)

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory trims s and matches it against the known set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Amount messages that callers tell apart.
const (
	MsgAmountRequired    = "Amount is required"
	MsgAmountNotPositive = "Amount must be greater than 0"
	MsgAmountNotNumber   = "Amount must be a number"
	MsgAmountBelowCent   = "Amount must be at least 0.01"
)

// FieldError describes one rejected field. Missing is set when the field was
// absent rather than present but invalid.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Missing bool   `json:"-"`
}

// ValidationError collects every violation found on a candidate record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// MissingRequired reports whether any required field was absent.
func (e *ValidationError) MissingRequired() bool {
	for _, fe := range e.Errors {
		if fe.Missing {
			return true
		}
	}
	return false
}

// Has reports whether field has at least one violation.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// HasMessage reports whether field was rejected with exactly msg.
func (e *ValidationError) HasMessage(field, msg string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field && fe.Message == msg {
			return true
		}
	}
	return false
}

// Messages returns the violation messages in field order.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Message)
	}
	return out
}

func (e *ValidationError) add(field, msg string, missing bool) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg, Missing: missing})
}

// Validate checks f against the record rules and returns a *ValidationError
// listing all violations, or nil.
func (f Fields) Validate() error {
	v := &ValidationError{}

	switch {
	case f.Amount == nil:
		v.add("amount", MsgAmountRequired, true)
	case f.Amount.Cents <= 0:
		v.add("amount", MsgAmountNotPositive, false)
	}

	if f.Date == nil || f.Date.IsZero() {
		v.add("date", "Date is required", true)
	}

	switch {
	case f.Category == "":
		v.add("category", "Category is required", true)
	case !Category(strings.TrimSpace(f.Category)).Valid():
		v.add("category", fmt.Sprintf("%s is not a valid category", f.Category), false)
	}

	note := strings.TrimSpace(f.Note)
	switch {
	case f.Note == "":
		v.add("note", "Note is required", true)
	case note == "":
		v.add("note", "Note is required", false)
	case utf8.RuneCountInString(note) > MaxNoteLength:
		v.add("note", fmt.Sprintf("Note cannot exceed %d characters", MaxNoteLength), false)
	}

	if len(v.Errors) > 0 {
		return v
	}
	return nil
}

// Normalized returns a copy with the note and category trimmed and the date in UTC.
func (f Fields) Normalized() Fields {
	out := f
	out.Note = strings.TrimSpace(f.Note)
	out.Category = strings.TrimSpace(f.Category)
	if f.Date != nil {
		d := f.Date.UTC()
		out.Date = &d
	}
	return out
}

// Fields returns the user-editable part of e.
func (e Expense) Fields() Fields {
	amount := e.Amount
	date := e.Date
	return Fields{
		Amount:   &amount,
		Date:     &date,
		Category: string(e.Category),
		Note:     e.Note,
	}
}

// Apply overwrites the user-editable fields of e with f. Zero dates default to now.
func (e *Expense) Apply(f Fields, now time.Time) {
	if f.Amount != nil {
		e.Amount = *f.Amount
	}
	if f.Date != nil && !f.Date.IsZero() {
		e.Date = f.Date.UTC()
	} else if e.Date.IsZero() {
		e.Date = now.UTC()
	}
	e.Category = Category(f.Category)
	e.Note = f.Note
}
