package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/core"
)

func newBodyRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestParseExpenseBody(t *testing.T) {
	f, err := ParseExpenseBody(newBodyRequest(`{"amount": 42.50, "date": "2024-03-01", "category": "Shopping", "note": "shoes"}`))
	if err != nil {
		t.Fatalf("ParseExpenseBody() error = %v", err)
	}
	if f.Amount == nil || f.Amount.Cents != 4250 {
		t.Errorf("Amount = %v, want 4250 cents", f.Amount)
	}
	if f.Date == nil || !f.Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", f.Date)
	}
	if f.Category != "Shopping" || f.Note != "shoes" {
		t.Errorf("Category/Note = %q/%q", f.Category, f.Note)
	}
}

func TestParseExpenseBody_AmountForms(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		wantCents int64
		wantNil   bool
		wantErr   bool
	}{
		{"number", `12.34`, 1234, false, false},
		{"numeric string", `"12.34"`, 1234, false, false},
		{"zero", `0`, 0, false, false},
		{"negative", `-5`, -500, false, false},
		{"absent", ``, 0, true, false},
		{"null", `null`, 0, true, false},
		{"empty string", `""`, 0, true, false},
		{"not a number", `"abc"`, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"date": "2024-03-01", "category": "Other", "note": "x"`
			if tt.amount != "" {
				body += `, "amount": ` + tt.amount
			}
			body += `}`

			f, err := ParseExpenseBody(newBodyRequest(body))
			var verr *core.ValidationError
			if tt.wantErr {
				if !errors.As(err, &verr) || !verr.Has("amount") {
					t.Fatalf("error = %v, want amount validation error", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error = %v", err)
			}
			if tt.wantNil {
				if f.Amount != nil {
					t.Errorf("Amount = %v, want nil", f.Amount)
				}
				return
			}
			if f.Amount == nil || f.Amount.Cents != tt.wantCents {
				t.Errorf("Amount = %v, want %d cents", f.Amount, tt.wantCents)
			}
		})
	}
}

func TestParseExpenseBody_Malformed(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `{"amount": 1,`, `{"note": 5}`} {
		_, err := ParseExpenseBody(newBodyRequest(body))
		if !errors.Is(err, ErrMalformedBody) {
			t.Errorf("ParseExpenseBody(%q) error = %v, want ErrMalformedBody", body, err)
		}
	}
}

func TestParseExpenseBody_BadDateListsEveryProblem(t *testing.T) {
	_, err := ParseExpenseBody(newBodyRequest(`{"amount": 5, "date": "yesterday", "category": "Snacks", "note": "x"}`))

	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *core.ValidationError", err)
	}
	if !verr.Has("date") || !verr.Has("category") {
		t.Errorf("errors = %v, want date and category", verr.Messages())
	}
	if verr.MissingRequired() {
		t.Error("a present but invalid date must not count as missing")
	}
}

func TestParseExpenseBody_StripsControlCharacters(t *testing.T) {
	f, err := ParseExpenseBody(newBodyRequest(`{"amount": 5, "date": "2024-03-01", "category": "Other", "note": "a\u0000b\tc"}`))
	if err != nil {
		t.Fatalf("unexpected error = %v", err)
	}
	if f.Note != "ab\tc" {
		t.Errorf("Note = %q, want %q", f.Note, "ab\tc")
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(url.Values{"category": {"Travel"}, "startDate": {"2024-01-01"}, "endDate": {"2024-01-31"}})
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.Category != core.CategoryTravel {
		t.Errorf("Category = %q", f.Category)
	}
	if f.StartDate == nil || f.StartDate.Format(core.DateLayout) != "2024-01-01" {
		t.Errorf("StartDate = %v", f.StartDate)
	}
	if f.EndDate == nil || f.EndDate.Format(core.DateLayout) != "2024-01-31" {
		t.Errorf("EndDate = %v", f.EndDate)
	}

	empty, err := ParseFilter(url.Values{"category": {""}})
	if err != nil || !empty.IsZero() {
		t.Errorf("ParseFilter(empty) = %+v, %v; want zero filter", empty, err)
	}

	if _, err := ParseFilter(url.Values{"endDate": {"31/01/2024"}}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("ParseFilter(bad date) error = %v, want ErrInvalidQuery", err)
	}
}
