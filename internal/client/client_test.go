package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
	api "expensetracker/internal/http"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/services"
	"expensetracker/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// newAPI starts the real API over an in-memory store.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	svc := services.NewExpenseService(memory.New())
	srv := api.NewServer(api.Config{Addr: ":0", RateLimitPerMinute: ratelimit.DefaultConfig().RequestsPerMinute}, svc, nil)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts
}

func newClient(t *testing.T, ts *httptest.Server) (*Client, *SnapshotStore) {
	t.Helper()
	snap := NewSnapshotStore(t.TempDir())
	c := New(ts.URL+"/api/expenses",
		WithHTTPClient(ts.Client()),
		WithSnapshot(snap),
		WithClock(func() time.Time { return fixedNow }))
	return c, snap
}

func day(s string) *time.Time {
	d, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestCRUDRoundTrip(t *testing.T) {
	ts := newAPI(t)
	c, _ := newClient(t, ts)
	ctx := context.Background()

	created, err := c.AddExpense(ctx, Input{Amount: "42.50", Date: "2024-03-01", Category: "Shopping", Note: "shoes"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "2024-03-01", created.Date)
	assert.Equal(t, int64(4250), created.Amount.Cents)
	assert.Equal(t, "Shopping", created.Category)

	updated, err := c.UpdateExpense(ctx, created.ID, Input{Amount: "40", Date: "2024-03-02", Category: "Shopping", Note: "shoes, on sale"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "2024-03-02", updated.Date)
	assert.Equal(t, "shoes, on sale", updated.Note)

	list := c.LoadExpenses(ctx, core.Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, updated.ID, list[0].ID)

	require.NoError(t, c.DeleteExpense(ctx, created.ID))
	assert.Empty(t, c.LoadExpenses(ctx, core.Filter{}))
}

func TestWriteErrorsCarryEnvelopeMessage(t *testing.T) {
	ts := newAPI(t)
	c, _ := newClient(t, ts)
	ctx := context.Background()

	_, err := c.AddExpense(ctx, Input{Amount: "-5", Date: "2024-03-01", Category: "Shopping", Note: "refund"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount must be greater than 0")

	_, err = c.AddExpense(ctx, Input{Amount: "10", Date: "2024-03-01", Category: "Shopping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "All fields (amount, date, category, note) are required")

	err = c.DeleteExpense(ctx, "does-not-exist")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Expense not found")
}

func TestFilterIsSentToAPI(t *testing.T) {
	ts := newAPI(t)
	c, _ := newClient(t, ts)
	ctx := context.Background()

	for _, in := range []Input{
		{Amount: "10", Date: "2024-01-10", Category: "Travel", Note: "train"},
		{Amount: "30", Date: "2024-02-10", Category: "Travel", Note: "flight"},
		{Amount: "20", Date: "2024-02-11", Category: "Food & Dining", Note: "dinner"},
	} {
		_, err := c.AddExpense(ctx, in)
		require.NoError(t, err)
	}

	travel := c.LoadExpenses(ctx, core.Filter{Category: core.CategoryTravel})
	assert.Len(t, travel, 2)

	feb := c.LoadExpenses(ctx, core.Filter{StartDate: day("2024-02-10"), EndDate: day("2024-02-11")})
	assert.Len(t, feb, 2)

	stats, err := c.Stats(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), stats.Total.TotalAmount.Cents)
	assert.Equal(t, int64(3), stats.Total.TotalCount)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, core.CategoryTravel, stats.Categories[0].Category)

	n, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestLoadExpensesFallsBackToSnapshot(t *testing.T) {
	ts := newAPI(t)
	c, snap := newClient(t, ts)
	ctx := context.Background()

	_, err := c.AddExpense(ctx, Input{Amount: "10", Date: "2024-01-10", Category: "Travel", Note: "train"})
	require.NoError(t, err)
	_, err = c.AddExpense(ctx, Input{Amount: "20", Date: "2024-02-11", Category: "Food & Dining", Note: "dinner"})
	require.NoError(t, err)

	// A filtered read does not touch the snapshot.
	c.LoadExpenses(ctx, core.Filter{Category: core.CategoryTravel})
	_, err = os.Stat(snap.Path())
	assert.True(t, os.IsNotExist(err))

	require.Len(t, c.LoadExpenses(ctx, core.Filter{}), 2)
	_, err = os.Stat(snap.Path())
	require.NoError(t, err)

	ts.Close()

	all := c.LoadExpenses(ctx, core.Filter{})
	assert.Len(t, all, 2)

	food := c.LoadExpenses(ctx, core.Filter{Category: core.CategoryFoodDining})
	require.Len(t, food, 1)
	assert.Equal(t, "dinner", food[0].Note)

	jan := c.LoadExpenses(ctx, core.Filter{EndDate: day("2024-01-10")})
	require.Len(t, jan, 1)
	assert.Equal(t, "train", jan[0].Note)
}

func TestLoadExpensesNormalizesLooseSnapshot(t *testing.T) {
	dir := t.TempDir()
	loose := `[
		{"_id":"a","amount":"12.5","date":"2024-05-01T09:30:00Z","category":"Travel","note":"taxi"},
		{"id":"b","amount":3,"note":"gum"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotKey+".json"), []byte(loose), 0644))

	c := New("http://127.0.0.1:1/api/expenses",
		WithSnapshot(NewSnapshotStore(dir)),
		WithClock(func() time.Time { return fixedNow }))

	list := c.LoadExpenses(context.Background(), core.Filter{})
	require.Len(t, list, 2)

	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, int64(1250), list[0].Amount.Cents)
	assert.Equal(t, "2024-05-01", list[0].Date)
	assert.Equal(t, fixedNow, list[0].CreatedAt)

	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "2024-06-15", list[1].Date)
	assert.Equal(t, string(core.CategoryOther), list[1].Category)
}

func TestLoadExpensesSkipsOnlyUnreadableSnapshotEntries(t *testing.T) {
	dir := t.TempDir()
	mixed := `[
		{"_id":"a","amount":5,"date":"2024-05-01","category":"Travel","note":"bus"},
		{"_id":"b","amount":7,"date":20240502,"category":"Travel","note":"numeric date"},
		"not a record",
		{"_id":"c","amount":"9","date":"2024-05-03","category":"Shopping","note":"socks"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotKey+".json"), []byte(mixed), 0644))

	records, skipped, err := NewSnapshotStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	assert.Len(t, records, 2)

	c := New("http://127.0.0.1:1/api/expenses",
		WithSnapshot(NewSnapshotStore(dir)),
		WithClock(func() time.Time { return fixedNow }))
	list := c.LoadExpenses(context.Background(), core.Filter{})
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
}

func TestClearAllDropsSnapshot(t *testing.T) {
	ts := newAPI(t)
	c, snap := newClient(t, ts)
	ctx := context.Background()

	_, err := c.AddExpense(ctx, Input{Amount: "10", Date: "2024-01-10", Category: "Travel", Note: "train"})
	require.NoError(t, err)
	require.Len(t, c.LoadExpenses(ctx, core.Filter{}), 1)
	_, err = os.Stat(snap.Path())
	require.NoError(t, err)

	n, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = os.Stat(snap.Path())
	assert.True(t, os.IsNotExist(err))

	ts.Close()
	assert.Empty(t, c.LoadExpenses(ctx, core.Filter{}))
}

func TestLoadExpensesWithoutSnapshotIsEmpty(t *testing.T) {
	c := New("http://127.0.0.1:1/api/expenses", WithSnapshot(NewSnapshotStore(t.TempDir())))
	list := c.LoadExpenses(context.Background(), core.Filter{})
	assert.NotNil(t, list)
	assert.Empty(t, list)

	bare := New("http://127.0.0.1:1/api/expenses")
	assert.NotNil(t, bare.LoadExpenses(context.Background(), core.Filter{}))
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	list := []Expense{{ID: "a", Amount: core.Money{Cents: 4250}, Date: "2024-03-01", Category: "Shopping", Note: "shoes", CreatedAt: fixedNow}}
	require.NoError(t, Export(&buf, list))

	assert.True(t, strings.HasPrefix(buf.String(), "[\n  {"))
	var back []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	require.Len(t, back, 1)
	assert.Equal(t, 42.5, back[0]["amount"])
	assert.Equal(t, "a", back[0]["id"])

	buf.Reset()
	require.NoError(t, Export(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	assert.Equal(t, "expenses-2024-06-15.json", ExportFilename(fixedNow))
}

func TestImport(t *testing.T) {
	ts := newAPI(t)
	c, _ := newClient(t, ts)
	ctx := context.Background()

	file := `[
		{"id":"old-1","amount":12.5,"date":"2024-05-01","category":"Travel","note":"taxi"},
		{"amount":"-5","date":"2024-05-02","category":"Travel","note":"bad"},
		{"amount":"7","date":"2024-05-03","category":"Entertainment","note":"movie"}
	]`
	res, err := c.Import(ctx, strings.NewReader(file))
	require.NoError(t, err)
	assert.Len(t, res.Imported, 2)
	assert.Equal(t, 1, res.Failed)
	assert.NotEqual(t, "old-1", res.Imported[0].ID)

	assert.Len(t, c.LoadExpenses(ctx, core.Filter{}), 2)
}

func TestImportLargerThanWriteLimit(t *testing.T) {
	ts := newAPI(t)
	c, _ := newClient(t, ts)
	ctx := context.Background()

	n := ratelimit.DefaultConfig().RequestsPerMinute + 15
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{"amount": i + 1, "date": "2024-05-01", "category": "Other", "note": fmt.Sprintf("item %d", i)}
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)

	res, err := c.Import(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, res.Imported, n)
	assert.Len(t, c.LoadExpenses(ctx, core.Filter{}), n)
}

func TestImportRejectsBadFiles(t *testing.T) {
	c := New("http://127.0.0.1:1/api/expenses")

	_, err := c.Import(context.Background(), strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrParseFile)

	_, err = c.Import(context.Background(), strings.NewReader(`{"amount":1}`))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestInputMarshal(t *testing.T) {
	data, err := json.Marshal(Input{Amount: "42.50", Date: "2024-03-01", Category: "Shopping", Note: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":42.50`)

	data, err = json.Marshal(Input{Amount: "abc"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"abc"`)

	data, err = json.Marshal(Input{})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "amount")
}
