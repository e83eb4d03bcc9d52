package ui

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"expensetracker/internal/client"
	"expensetracker/internal/core"
)

// formView holds the add/edit form values and per-field messages.
type formView struct {
	ID       string
	Amount   string
	Date     string
	Category string
	Note     string
	Errors   map[string]string
}

func (f formView) Editing() bool { return f.ID != "" }

func (f formView) Valid() bool { return len(f.Errors) == 0 }

func (f formView) Input() client.Input {
	return client.Input{
		Amount:   f.Amount,
		Date:     f.Date,
		Category: f.Category,
		Note:     strings.TrimSpace(f.Note),
	}
}

func emptyForm(today string) formView {
	return formView{Date: today}
}

func formFromExpense(e client.Expense) formView {
	in := client.InputFrom(e)
	return formView{
		ID:       e.ID,
		Amount:   in.Amount,
		Date:     in.Date,
		Category: in.Category,
		Note:     in.Note,
	}
}

func formFromValues(v url.Values) formView {
	return formView{
		Amount:   strings.TrimSpace(v.Get("amount")),
		Date:     strings.TrimSpace(v.Get("date")),
		Category: strings.TrimSpace(v.Get("category")),
		Note:     v.Get("note"),
	}
}

// validate applies the form rules, filling Errors keyed by field name.
func (f *formView) validate() {
	f.Errors = map[string]string{}

	if amount, err := decimal.NewFromString(f.Amount); err != nil || !amount.IsPositive() {
		f.Errors["amount"] = core.MsgAmountNotPositive
	} else if core.IsSubCent(f.Amount) {
		f.Errors["amount"] = core.MsgAmountBelowCent
	}
	if f.Date == "" {
		f.Errors["date"] = "Date is required"
	} else if _, err := core.ParseDate(f.Date); err != nil {
		f.Errors["date"] = "Date must be a valid date"
	}
	if f.Category == "" {
		f.Errors["category"] = "Category is required"
	}
	if strings.TrimSpace(f.Note) == "" {
		f.Errors["note"] = "Note is required"
	}

	if len(f.Errors) == 0 {
		f.Errors = nil
	}
}
