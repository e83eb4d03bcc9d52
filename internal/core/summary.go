package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// NoCategory labels the top category of an empty list.
const NoCategory = "None"

// CategoryShare is a category's slice of a summary.
type CategoryShare struct {
	Name    string
	Amount  Money
	Count   int
	Percent float64 // share of the summary total, one decimal
}

// MonthShare is one calendar month of a summary.
type MonthShare struct {
	Year   int
	Month  int
	Label  string // "Mar 2024"
	Amount Money
	Count  int
}

// Summary is the client-side view over whatever list is currently loaded.
type Summary struct {
	Total       Money
	Count       int
	Average     Money
	TopCategory CategoryShare
	ByCategory  []CategoryShare
	ByMonth     []MonthShare
}

// MonthLabel renders a month as "Jan 2024".
func MonthLabel(year, month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%d-%02d", year, month)
	}
	name := [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}[month-1]
	return fmt.Sprintf("%s %d", name, year)
}

// Summarize derives totals and breakdowns from list. It is recomputed on every
// call and never reads the store.
func Summarize(list []Expense) Summary {
	stats := Aggregate(list)

	s := Summary{
		Total:       stats.Total.TotalAmount,
		Count:       int(stats.Total.TotalCount),
		Average:     stats.Total.AverageAmount,
		TopCategory: CategoryShare{Name: NoCategory},
		ByCategory:  make([]CategoryShare, 0, len(stats.Categories)),
		ByMonth:     make([]MonthShare, 0, len(stats.Monthly)),
	}

	for _, ct := range stats.Categories {
		s.ByCategory = append(s.ByCategory, CategoryShare{
			Name:    string(ct.Category),
			Amount:  ct.TotalAmount,
			Count:   int(ct.Count),
			Percent: percentOf(ct.TotalAmount.Cents, s.Total.Cents),
		})
	}
	if len(s.ByCategory) > 0 {
		s.TopCategory = s.ByCategory[0]
	}

	for _, mt := range stats.Monthly {
		s.ByMonth = append(s.ByMonth, MonthShare{
			Year:   mt.Year,
			Month:  mt.Month,
			Label:  MonthLabel(mt.Year, mt.Month),
			Amount: mt.TotalAmount,
			Count:  int(mt.Count),
		})
	}
	sort.SliceStable(s.ByMonth, func(i, j int) bool {
		if s.ByMonth[i].Year != s.ByMonth[j].Year {
			return s.ByMonth[i].Year < s.ByMonth[j].Year
		}
		return s.ByMonth[i].Month < s.ByMonth[j].Month
	})

	return s
}

func percentOf(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(1).
		InexactFloat64()
}
