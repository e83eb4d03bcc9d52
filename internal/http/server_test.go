package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/storage/memory"
)

type testEnvelope struct {
	Success      bool            `json:"success"`
	Count        *int            `json:"count"`
	DeletedCount *int64          `json:"deletedCount"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error"`
	Errors       []string        `json:"errors"`
}

type apiExpense struct {
	ID        string  `json:"_id"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Category  string  `json:"category"`
	Note      string  `json:"note"`
	CreatedAt string  `json:"createdAt"`
}

// brokenStore fails every call so the 500 paths can be exercised.
type brokenStore struct{ *memory.Store }

var errStoreDown = errors.New("store unavailable")

func (brokenStore) List(context.Context, core.Filter) ([]core.Expense, error) {
	return nil, errStoreDown
}

func (brokenStore) Get(context.Context, string) (core.Expense, error) {
	return core.Expense{}, errStoreDown
}

func (brokenStore) Insert(context.Context, core.Fields) (core.Expense, error) {
	return core.Expense{}, errStoreDown
}

func (brokenStore) DeleteAll(context.Context) (int64, error) {
	return 0, errStoreDown
}

func (brokenStore) Aggregate(context.Context, core.Filter) (core.Stats, error) {
	return core.Stats{}, errStoreDown
}

func (brokenStore) Ping(context.Context) error {
	return errStoreDown
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	stats := cache.NewStatsCache(10, time.Minute)
	svc := services.NewExpenseService(store, services.WithStatsCache(stats))
	srv := NewServer(Config{Addr: ":0", FrontendURL: "http://localhost:5173", RateLimitPerMinute: 1000, StatsCache: stats}, svc, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, srv *Server, method, target, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var env testEnvelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func create(t *testing.T, srv *Server, body string) apiExpense {
	t.Helper()
	rr, env := do(t, srv, http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var e apiExpense
	require.NoError(t, json.Unmarshal(env.Data, &e))
	return e
}

func TestCreateExpense(t *testing.T) {
	srv, store := newTestServer(t)

	rr, env := do(t, srv, http.MethodPost, "/api/expenses",
		`{"amount": 42.50, "date": "2024-03-01", "category": "Shopping", "note": " shoes "}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Expense created successfully", env.Message)

	var e apiExpense
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 42.5, e.Amount)
	assert.Equal(t, "Shopping", e.Category)
	assert.Equal(t, "shoes", e.Note)
	assert.True(t, strings.HasPrefix(e.Date, "2024-03-01"))
	assert.Equal(t, 1, store.Len())
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
		wantErrors  bool
	}{
		{"negative amount", `{"amount": -5, "date": "2024-03-01", "category": "Other", "note": "x"}`, 400, MsgAmountPositive, true},
		{"zero amount", `{"amount": 0, "date": "2024-03-01", "category": "Other", "note": "x"}`, 400, MsgAmountPositive, true},
		{"missing note", `{"amount": 5, "date": "2024-03-01", "category": "Other"}`, 400, MsgRequiredFields, true},
		{"missing everything", `{}`, 400, MsgRequiredFields, true},
		{"unknown category", `{"amount": 5, "date": "2024-03-01", "category": "Snacks", "note": "x"}`, 400, MsgValidationError, true},
		{"blank note", `{"amount": 5, "date": "2024-03-01", "category": "Other", "note": "   "}`, 400, MsgValidationError, true},
		{"note too long", `{"amount": 5, "date": "2024-03-01", "category": "Other", "note": "` + strings.Repeat("n", 501) + `"}`, 400, MsgValidationError, true},
		{"sub-cent amount", `{"amount": 0.001, "date": "2024-03-01", "category": "Other", "note": "x"}`, 400, MsgValidationError, true},
		{"malformed json", `{"amount": 5,`, 400, "Invalid request body", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)
			rr, env := do(t, srv, http.MethodPost, "/api/expenses", tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantMessage, env.Message)
			assert.Equal(t, tt.wantErrors, len(env.Errors) > 0, "errors: %v", env.Errors)
			assert.Equal(t, 0, store.Len(), "nothing reaches the store")
		})
	}
}

func TestCreateExpenseListsEveryViolation(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, env := do(t, srv, http.MethodPost, "/api/expenses",
		`{"amount": "abc", "date": "2024-03-01", "category": "Bogus", "note": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgValidationError, env.Message)
	assert.Equal(t, []string{"Amount must be a number", "Bogus is not a valid category"}, env.Errors)

	rr, env = do(t, srv, http.MethodPost, "/api/expenses",
		`{"amount": -5, "date": "2024-03-01", "category": "Bogus", "note": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgAmountPositive, env.Message)
	assert.Equal(t, []string{"Amount must be greater than 0", "Bogus is not a valid category"}, env.Errors)

	rr, env = do(t, srv, http.MethodPost, "/api/expenses",
		`{"amount": "0.004", "date": "2024-03-01", "category": "Other", "note": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, []string{"Amount must be at least 0.01"}, env.Errors)
}

func TestListExpenses(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, env := do(t, srv, http.MethodGet, "/api/expenses", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, env.Count)
	assert.Equal(t, 0, *env.Count)
	assert.JSONEq(t, `[]`, string(env.Data))

	create(t, srv, `{"amount": 10, "date": "2024-01-10", "category": "Food & Dining", "note": "a"}`)
	create(t, srv, `{"amount": 20, "date": "2024-03-01", "category": "Travel", "note": "b"}`)
	create(t, srv, `{"amount": 30, "date": "2024-02-20", "category": "Food & Dining", "note": "c"}`)

	_, env = do(t, srv, http.MethodGet, "/api/expenses", "")
	var all []apiExpense
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Equal(t, 3, *env.Count)
	assert.Equal(t, []string{"b", "c", "a"}, []string{all[0].Note, all[1].Note, all[2].Note})

	_, env = do(t, srv, http.MethodGet, "/api/expenses?category=Food+%26+Dining&startDate=2024-02-01&endDate=2024-02-29", "")
	var filtered []apiExpense
	require.NoError(t, json.Unmarshal(env.Data, &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "c", filtered[0].Note)

	rr, env = do(t, srv, http.MethodGet, "/api/expenses?startDate=soon", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, env.Message, "startDate")
}

func TestGetUpdateDeleteExpense(t *testing.T) {
	srv, _ := newTestServer(t)
	e := create(t, srv, `{"amount": 5, "date": "2024-05-01", "category": "Shopping", "note": "shoes"}`)

	rr, env := do(t, srv, http.MethodGet, "/api/expenses/"+e.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got apiExpense
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, e.ID, got.ID)

	rr, env = do(t, srv, http.MethodPut, "/api/expenses/"+e.ID,
		`{"amount": "7.25", "date": "2024-05-02", "category": "Entertainment", "note": "movie"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Expense updated successfully", env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 7.25, got.Amount)
	assert.Equal(t, "movie", got.Note)
	assert.Equal(t, e.CreatedAt, got.CreatedAt)

	rr, env = do(t, srv, http.MethodPut, "/api/expenses/"+e.ID, `{"amount": -1, "date": "2024-05-02", "category": "Other", "note": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgAmountPositive, env.Message)

	rr, env = do(t, srv, http.MethodDelete, "/api/expenses/"+e.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Expense deleted successfully", env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, e.ID, got.ID)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr, env = do(t, srv, method, "/api/expenses/"+e.ID, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, method)
		assert.Equal(t, "Expense not found", env.Message)
	}
	rr, _ = do(t, srv, http.MethodPut, "/api/expenses/"+e.ID, `{"amount": 1, "date": "2024-05-02", "category": "Other", "note": "x"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteAllExpenses(t *testing.T) {
	srv, store := newTestServer(t)
	for i := 0; i < 3; i++ {
		create(t, srv, `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "x"}`)
	}

	rr, env := do(t, srv, http.MethodDelete, "/api/expenses", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Successfully deleted 3 expenses", env.Message)
	require.NotNil(t, env.DeletedCount)
	assert.Equal(t, int64(3), *env.DeletedCount)
	assert.Equal(t, 0, store.Len())
}

func TestExpenseStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, env := do(t, srv, http.MethodGet, "/api/expenses/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":{"totalAmount":0,"totalCount":0,"averageAmount":0},"categories":[],"monthly":[]}`, string(env.Data))

	create(t, srv, `{"amount": 10, "date": "2024-01-10", "category": "Food & Dining", "note": "a"}`)
	create(t, srv, `{"amount": 20.01, "date": "2024-03-01", "category": "Travel", "note": "b"}`)
	create(t, srv, `{"amount": 30, "date": "2024-01-20", "category": "Food & Dining", "note": "c"}`)

	_, env = do(t, srv, http.MethodGet, "/api/expenses/stats", "")
	var stats core.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(6001), stats.Total.TotalAmount.Cents)
	assert.Equal(t, int64(2000), stats.Total.AverageAmount.Cents)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, core.CategoryFoodDining, stats.Categories[0].Category)
	require.Len(t, stats.Monthly, 2)
	assert.Equal(t, 1, stats.Monthly[0].Month)

	_, env = do(t, srv, http.MethodGet, "/api/expenses/stats?startDate=2024-03-01", "")
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2001), stats.Total.TotalAmount.Cents)

	// A write must not leave a stale cached aggregate behind.
	create(t, srv, `{"amount": 1, "date": "2024-03-02", "category": "Other", "note": "d"}`)
	_, env = do(t, srv, http.MethodGet, "/api/expenses/stats?startDate=2024-03-01", "")
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2101), stats.Total.TotalAmount.Cents)
}

func TestPersistenceFailures(t *testing.T) {
	svc := services.NewExpenseService(brokenStore{memory.New()})
	srv := NewServer(Config{RateLimitPerMinute: 1000}, svc, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	tests := []struct {
		method, target, body, message string
	}{
		{http.MethodGet, "/api/expenses", "", "Error fetching expenses"},
		{http.MethodGet, "/api/expenses/stats", "", "Error fetching statistics"},
		{http.MethodGet, "/api/expenses/abc", "", "Error fetching expense"},
		{http.MethodPost, "/api/expenses", `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "x"}`, "Error creating expense"},
		{http.MethodDelete, "/api/expenses", "", "Error clearing expenses"},
	}
	for _, tt := range tests {
		rr, env := do(t, srv, tt.method, tt.target, tt.body)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, tt.target)
		assert.Equal(t, tt.message, env.Message)
		assert.Contains(t, env.Error, "store unavailable")
	}

	rr, _ := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNotFoundRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, tt := range []struct{ method, target string }{
		{http.MethodGet, "/api/unknown"},
		{http.MethodPatch, "/api/expenses"},
	} {
		rr, env := do(t, srv, tt.method, tt.target, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Not Found - "+strings.Split(tt.target, "?")[0], env.Message)
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rr, _ := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr, _ = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"store":"ok"`)
	assert.Contains(t, rr.Body.String(), `"stats_cache"`)

	create(t, srv, `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "x"}`)
	rr, _ = do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "expenses_created_total 1\n")
	assert.Contains(t, rr.Body.String(), "# TYPE http_requests_total counter")
}

func TestMiddlewareChain(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr, _ = do(t, srv, http.MethodGet, "/api/expenses", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "cross-origin", rr.Header().Get("Cross-Origin-Resource-Policy"))

	big := `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "` + strings.Repeat("x", MaxBodyBytes) + `"}`
	rr, env := do(t, srv, http.MethodPost, "/api/expenses", big)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	svc := services.NewExpenseService(memory.New())
	srv := NewServer(Config{RateLimitPerMinute: 2}, svc, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i := 0; i < 5; i++ {
		rr, _ := do(t, srv, http.MethodGet, "/api/expenses", "")
		require.Equal(t, http.StatusOK, rr.Code)
	}

	body := `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "x"}`
	for i := 0; i < 2; i++ {
		rr, _ := do(t, srv, http.MethodPost, "/api/expenses", body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr, env := do(t, srv, http.MethodPost, "/api/expenses", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.False(t, env.Success)
}

func TestRateLimitSkipsInternalCallers(t *testing.T) {
	svc := services.NewExpenseService(memory.New())
	srv := NewServer(Config{RateLimitPerMinute: 1}, svc, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	body := `{"amount": 1, "date": "2024-01-01", "category": "Other", "note": "x"}`
	post := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusCreated, post("127.0.0.1:40000", ""), "loopback caller, request %d", i)
	}

	// A trusted proxy relaying a public client is limited on that client.
	assert.Equal(t, http.StatusCreated, post("10.0.0.2:40000", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.2:40000", "203.0.113.7"))
	assert.Equal(t, http.StatusCreated, post("10.0.0.2:40000", "203.0.113.8"))
}
