package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// DefaultTimeout bounds every API call unless WithHTTPClient overrides it.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx answer. Message is the envelope message when the body
// carried one.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// envelope is the API response wrapper. Data is decoded per call.
type envelope struct {
	Success      bool            `json:"success"`
	Count        *int            `json:"count"`
	DeletedCount *int64          `json:"deletedCount"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error"`
	Errors       []string        `json:"errors"`
}

// Client talks to the expense API rooted at baseURL, e.g.
// http://localhost:5001/api/expenses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	snapshot   *SnapshotStore
	logger     *log.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSnapshot enables the offline fallback for LoadExpenses.
func WithSnapshot(s *SnapshotStore) Option {
	return func(c *Client) { c.snapshot = s }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentClient) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// LoadExpenses never fails. A successful unfiltered read refreshes the
// snapshot; a failed read serves the snapshot filtered locally, or an empty
// list when there is none.
func (c *Client) LoadExpenses(ctx context.Context, f core.Filter) []Expense {
	list, err := c.fetchExpenses(ctx, f)
	if err == nil {
		if f.IsZero() && c.snapshot != nil {
			if err := c.snapshot.Save(list); err != nil {
				c.logger.WarnContext(ctx, "Failed to refresh local snapshot", log.FieldError, err)
			}
		}
		return list
	}

	c.logger.WarnContext(ctx, "Falling back to local snapshot",
		log.FieldError, err, log.FieldOperation, log.OpList)

	if c.snapshot == nil {
		return []Expense{}
	}
	records, skipped, serr := c.snapshot.Load()
	if serr != nil {
		if !errors.Is(serr, ErrNoSnapshot) {
			c.logger.ErrorContext(ctx, "Local snapshot unreadable", log.FieldError, serr)
		}
		return []Expense{}
	}
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped unreadable snapshot entries", "skipped", skipped)
	}

	now := c.now()
	out := make([]Expense, 0, len(records))
	for _, r := range records {
		e := Normalize(r, now)
		if Matches(f, e) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Client) fetchExpenses(ctx context.Context, f core.Filter) ([]Expense, error) {
	var records []Record
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+filterQuery(f), nil, &records); err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]Expense, 0, len(records))
	for _, r := range records {
		out = append(out, Normalize(r, now))
	}
	return out, nil
}

// AddExpense creates a record and returns it normalized.
func (c *Client) AddExpense(ctx context.Context, in Input) (Expense, error) {
	var r Record
	if _, err := c.do(ctx, http.MethodPost, c.baseURL, in, &r); err != nil {
		return Expense{}, fmt.Errorf("add expense: %w", err)
	}
	return Normalize(r, c.now()), nil
}

// UpdateExpense replaces every field of record id.
func (c *Client) UpdateExpense(ctx context.Context, id string, in Input) (Expense, error) {
	var r Record
	if _, err := c.do(ctx, http.MethodPut, c.expenseURL(id), in, &r); err != nil {
		return Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return Normalize(r, c.now()), nil
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.expenseURL(id), nil, nil); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// ClearAll deletes every record and returns how many went.
func (c *Client) ClearAll(ctx context.Context) (int64, error) {
	env, err := c.do(ctx, http.MethodDelete, c.baseURL, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}
	// The snapshot would otherwise bring the records back while offline.
	if c.snapshot != nil {
		if err := c.snapshot.Clear(); err != nil {
			c.logger.WarnContext(ctx, "Failed to clear local snapshot", log.FieldError, err)
		}
	}
	if env.DeletedCount == nil {
		return 0, nil
	}
	return *env.DeletedCount, nil
}

// Stats fetches server-side aggregates. Category on f is ignored by the API.
func (c *Client) Stats(ctx context.Context, f core.Filter) (core.Stats, error) {
	var stats core.Stats
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/stats"+filterQuery(f), nil, &stats); err != nil {
		return core.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	return stats, nil
}

func (c *Client) expenseURL(id string) string {
	return c.baseURL + "/" + url.PathEscape(id)
}

func filterQuery(f core.Filter) string {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", string(f.Category))
	}
	if f.StartDate != nil {
		q.Set("startDate", core.FormatDate(*f.StartDate))
	}
	if f.EndDate != nil {
		q.Set("endDate", core.FormatDate(*f.EndDate))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// do sends body as JSON and decodes the envelope's data into out when out is
// non-nil. Non-2xx answers become *APIError.
func (c *Client) do(ctx context.Context, method, target string, body, out any) (envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "API call",
		log.FieldMethod, method,
		log.FieldPath, req.URL.Path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Message
			apiErr.Errors = env.Errors
		}
		return env, apiErr
	}
	if decodeErr != nil {
		return envelope{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode data: %w", err)
		}
	}
	return env, nil
}
