package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

type (
	// Totals summarizes a set of expenses.
	Totals struct {
		TotalAmount   Money `json:"totalAmount"`
		TotalCount    int64 `json:"totalCount"`
		AverageAmount Money `json:"averageAmount"`
	}

	CategoryTotal struct {
		Category    Category `json:"category"`
		TotalAmount Money    `json:"totalAmount"`
		Count       int64    `json:"count"`
	}

	MonthTotal struct {
		Year        int   `json:"year"`
		Month       int   `json:"month"`
		TotalAmount Money `json:"totalAmount"`
		Count       int64 `json:"count"`
	}

	// Stats is the aggregate view over a filtered set of expenses.
	Stats struct {
		Total      Totals          `json:"total"`
		Categories []CategoryTotal `json:"categories"`
		Monthly    []MonthTotal    `json:"monthly"`
	}
)

// AverageCents divides total by count, rounding half-up. Zero count yields zero.
func AverageCents(total int64, count int64) int64 {
	if count == 0 {
		return 0
	}
	return decimal.NewFromInt(total).
		Div(decimal.NewFromInt(count)).
		Round(0).
		IntPart()
}

// Aggregate computes overall, per-category and per-month totals in memory.
// Months are bucketed in UTC.
func Aggregate(expenses []Expense) Stats {
	byCategory := map[Category]*CategoryTotal{}
	type ym struct{ y, m int }
	byMonth := map[ym]*MonthTotal{}

	var total, count int64
	for _, e := range expenses {
		total += e.Amount.Cents
		count++

		ct, ok := byCategory[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			byCategory[e.Category] = ct
		}
		ct.TotalAmount.Cents += e.Amount.Cents
		ct.Count++

		d := e.Date.UTC()
		key := ym{d.Year(), int(d.Month())}
		mt, ok := byMonth[key]
		if !ok {
			mt = &MonthTotal{Year: key.y, Month: key.m}
			byMonth[key] = mt
		}
		mt.TotalAmount.Cents += e.Amount.Cents
		mt.Count++
	}

	s := Stats{
		Total: Totals{
			TotalAmount:   Money{Cents: total},
			TotalCount:    count,
			AverageAmount: Money{Cents: AverageCents(total, count)},
		},
		Categories: make([]CategoryTotal, 0, len(byCategory)),
		Monthly:    make([]MonthTotal, 0, len(byMonth)),
	}
	for _, ct := range byCategory {
		s.Categories = append(s.Categories, *ct)
	}
	for _, mt := range byMonth {
		s.Monthly = append(s.Monthly, *mt)
	}
	s.Sort()
	return s
}

// Sort orders categories by descending total (name ascending on ties) and
// months chronologically. Nil slices become empty.
func (s *Stats) Sort() {
	if s.Categories == nil {
		s.Categories = []CategoryTotal{}
	}
	if s.Monthly == nil {
		s.Monthly = []MonthTotal{}
	}
	sort.SliceStable(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.TotalAmount.Cents != b.TotalAmount.Cents {
			return a.TotalAmount.Cents > b.TotalAmount.Cents
		}
		return a.Category < b.Category
	})
	sort.SliceStable(s.Monthly, func(i, j int) bool {
		a, b := s.Monthly[i], s.Monthly[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
}

// SortNewestFirst orders expenses by date descending, then creation time descending.
func SortNewestFirst(list []Expense) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
