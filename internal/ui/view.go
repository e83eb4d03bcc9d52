package ui

import (
	"html/template"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/client"
	"expensetracker/internal/core"
)

// Tabs of the single page.
const (
	TabExpenses = "expenses"
	TabForm     = "form"
	TabSummary  = "summary"
)

func parseTab(s string) string {
	switch s {
	case TabForm, TabSummary:
		return s
	default:
		return TabExpenses
	}
}

// filterView is the filter panel state as typed by the user.
type filterView struct {
	Category  string
	StartDate string
	EndDate   string
}

func (f filterView) Active() bool {
	return f.Category != "" || f.StartDate != "" || f.EndDate != ""
}

// Values renders the filter as query parameters, skipping empty ones.
func (f filterView) Values() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.StartDate != "" {
		q.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("endDate", f.EndDate)
	}
	return q
}

type filterTag struct {
	Label     string
	RemoveURL template.URL
}

// Tags lists the active filters, each with a link that drops it.
func (f filterView) Tags() []filterTag {
	var tags []filterTag
	without := func(name string) template.URL {
		q := f.Values()
		q.Del(name)
		q.Set("tab", TabExpenses)
		return indexURL(q)
	}
	if f.Category != "" {
		tags = append(tags, filterTag{Label: "Category: " + f.Category, RemoveURL: without("category")})
	}
	if f.StartDate != "" {
		tags = append(tags, filterTag{Label: "From: " + displayDate(f.StartDate), RemoveURL: without("startDate")})
	}
	if f.EndDate != "" {
		tags = append(tags, filterTag{Label: "To: " + displayDate(f.EndDate), RemoveURL: without("endDate")})
	}
	return tags
}

// EditURL opens the form tab on record id, keeping the filter.
func (f filterView) EditURL(id string) template.URL {
	q := f.Values()
	q.Set("tab", TabForm)
	q.Set("edit", id)
	return indexURL(q)
}

// ExportURL downloads what the filter currently shows.
func (f filterView) ExportURL() template.URL {
	q := f.Values()
	if len(q) == 0 {
		return "/export"
	}
	return template.URL("/export?" + q.Encode())
}

// TabURL switches tab, keeping the filter.
func (f filterView) TabURL(tab string) template.URL {
	q := f.Values()
	q.Set("tab", tab)
	return indexURL(q)
}

func indexURL(q url.Values) template.URL {
	return template.URL("/?" + q.Encode())
}

// coreFilter converts the typed filter. Unreadable dates are dropped and
// reported in the returned slice.
func (f filterView) coreFilter() (core.Filter, []string) {
	var out core.Filter
	var problems []string
	if f.Category != "" {
		out.Category = core.Category(f.Category)
	}
	if f.StartDate != "" {
		if d, err := core.ParseDate(f.StartDate); err == nil {
			out.StartDate = &d
		} else {
			problems = append(problems, "Start date is not a valid date")
		}
	}
	if f.EndDate != "" {
		if d, err := core.ParseDate(f.EndDate); err == nil {
			out.EndDate = &d
		} else {
			problems = append(problems, "End date is not a valid date")
		}
	}
	return out, problems
}

func filterFromValues(v url.Values) filterView {
	return filterView{
		Category:  strings.TrimSpace(v.Get("category")),
		StartDate: strings.TrimSpace(v.Get("startDate")),
		EndDate:   strings.TrimSpace(v.Get("endDate")),
	}
}

// flash is a one-shot alert carried in the redirect URL.
type flash struct {
	Message string
	Kind    string // success or error
}

type pageData struct {
	Tab             string
	Flash           *flash
	Filter          filterView
	CategoryOptions []string
	Categories      []string
	Expenses        []client.Expense
	Form            formView
	Summary         core.Summary
	Now             time.Time

	// Stored is the API's own aggregate for the date range, shown on the
	// summary tab. It is nil, with Offline set, when the API is unreachable.
	Stored  *core.Stats
	Offline bool
}

// categoryOptions is the sorted set of categories present in list.
func categoryOptions(list []client.Expense) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, e := range list {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	sort.Strings(out)
	return out
}

func allCategories() []string {
	cats := core.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

var categoryIcons = map[string]string{
	"Food & Dining":     "🍽️",
	"Transportation":    "🚗",
	"Shopping":          "🛍️",
	"Entertainment":     "🎬",
	"Bills & Utilities": "💡",
	"Healthcare":        "🏥",
	"Travel":            "✈️",
	"Education":         "📚",
}

func categoryIcon(c string) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "📋"
}

// formatUSD renders m as en-US currency, e.g. "$1,234.50" or "-$3.00".
func formatUSD(m core.Money) string {
	d := m.Decimal()
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// displayDate renders a calendar day as "Mar 1, 2024". Unreadable input is
// shown unchanged.
func displayDate(s string) string {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("Jan 2, 2006")
}

func formatPercent(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(1) + "%"
}

var templateFuncs = template.FuncMap{
	"usd":          formatUSD,
	"displayDate":  displayDate,
	"icon":         categoryIcon,
	"percent":      formatPercent,
	"isoDate":      func(t time.Time) string { return t.Format(core.DateLayout) },
	"hasCategory":  func(opts []string, c string) bool { return containsString(opts, c) },
	"fieldMessage": func(f formView, field string) string { return f.Errors[field] },
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
