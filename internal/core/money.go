// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Conversion to and from decimal text goes
// through shopspring/decimal so that rounding is exact and half-up.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Zero, negative and malformed values are rejected.
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := decimalToCents(d)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func decimalToCents(d decimal.Decimal) (int64, error) {
	shifted := d.Round(2).Shift(2)
	if !shifted.IsInteger() || shifted.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	return shifted.IntPart(), nil
}

// IsSubCent reports whether text is a positive amount that rounds to zero
// cents, such as "0.004".
func IsSubCent(text string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || !d.IsPositive() {
		return false
	}
	cents, err := decimalToCents(d)
	return err == nil && cents == 0
}

// NewMoneyFromFloat rounds f half-up to cents.
func NewMoneyFromFloat(f float64) Money {
	cents, _ := decimalToCents(decimal.NewFromFloat(f))
	return Money{Cents: cents}
}

// Decimal returns the amount as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount as a float64 for display and document stores.
// Use cents for arithmetic.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// String formats the amount with exactly two decimals, e.g. "42.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON emits the amount as a JSON number ("42.5").
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. Signs are kept so
// that validation can report non-positive amounts.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	if len(data) == 0 {
		return ErrInvalidAmount
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return ErrInvalidAmount
	}
	cents, err := decimalToCents(d)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
