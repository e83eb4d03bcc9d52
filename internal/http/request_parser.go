// Package http provides HTTP server and handler implementations.
//
// This file implements request decoding for the expense endpoints: the JSON
// body of create and update, and the filter query of list and stats.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expensetracker/internal/core"
)

// MaxBodyBytes caps request bodies on every endpoint.
const MaxBodyBytes = 1 << 20

// ErrMalformedBody is returned when the body is not a JSON object.
var ErrMalformedBody = errors.New("request body must be a JSON object")

// expenseBody mirrors the create/update payload. Amount is kept raw so that
// numbers and numeric strings are both accepted and an absent value can be told
// apart from a bad one.
type expenseBody struct {
	Amount   json.RawMessage `json:"amount"`
	Date     *string         `json:"date"`
	Category *string         `json:"category"`
	Note     *string         `json:"note"`
}

// ParseExpenseBody decodes r's body into candidate fields. A malformed body
// yields ErrMalformedBody. Values that are present but unreadable (an amount
// that is not a number, a date that is not a date) come back as a
// *core.ValidationError so they are reported alongside the other rules.
func ParseExpenseBody(r *http.Request) (core.Fields, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.Fields{}, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedBody, maxErr.Limit)
		}
		return core.Fields{}, fmt.Errorf("read body: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return core.Fields{}, ErrMalformedBody
	}

	var body expenseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return core.Fields{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	var f core.Fields
	invalid := &core.ValidationError{}

	if amount := bytes.TrimSpace(body.Amount); len(amount) > 0 && !bytes.Equal(amount, []byte("null")) && !bytes.Equal(amount, []byte(`""`)) {
		var m core.Money
		switch err := m.UnmarshalJSON(amount); {
		case err != nil:
			invalid.Errors = append(invalid.Errors, core.FieldError{Field: "amount", Message: core.MsgAmountNotNumber})
		case m.Cents == 0 && core.IsSubCent(strings.Trim(string(amount), `"`)):
			invalid.Errors = append(invalid.Errors, core.FieldError{Field: "amount", Message: core.MsgAmountBelowCent})
		default:
			f.Amount = &m
		}
	}

	if body.Date != nil && strings.TrimSpace(*body.Date) != "" {
		d, err := core.ParseDate(*body.Date)
		if err != nil {
			invalid.Errors = append(invalid.Errors, core.FieldError{Field: "date", Message: "Date must be a valid date"})
		} else {
			f.Date = &d
		}
	}

	if body.Category != nil {
		f.Category = sanitizeInput(*body.Category)
	}
	if body.Note != nil {
		f.Note = sanitizeInput(*body.Note)
	}

	if len(invalid.Errors) > 0 {
		// Fold in the remaining rules so one response lists every problem.
		if verr, ok := f.Validate().(*core.ValidationError); ok {
			for _, fe := range verr.Errors {
				if !invalid.Has(fe.Field) {
					invalid.Errors = append(invalid.Errors, fe)
				}
			}
		}
		return f, invalid
	}
	return f, nil
}

// ParseFilter reads category, startDate and endDate from the query string.
// Empty parameters leave that bound open.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	if c := strings.TrimSpace(query.Get("category")); c != "" {
		f.Category = core.Category(c)
	}
	start, err := parseOptionalDate(query, "startDate")
	if err != nil {
		return core.Filter{}, err
	}
	end, err := parseOptionalDate(query, "endDate")
	if err != nil {
		return core.Filter{}, err
	}
	f.StartDate, f.EndDate = start, end
	return f, nil
}

// ErrInvalidQuery wraps an unreadable query parameter.
var ErrInvalidQuery = errors.New("invalid query parameter")

func parseOptionalDate(query url.Values, name string) (*time.Time, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", ErrInvalidQuery, name)
	}
	return &d, nil
}

// sanitizeInput drops control characters other than tab and newlines.
// Trimming is left to the record rules so whitespace-only notes are reported.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
