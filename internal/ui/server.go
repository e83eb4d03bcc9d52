// Package ui serves the server-rendered expense tracker pages. It holds no
// state of its own: every render reloads the list through the client, and
// transient view state travels in the query string.
package ui

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/client"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	appweb "expensetracker/web"
)

// MaxImportBytes caps the uploaded import file.
const MaxImportBytes = 5 << 20

// ExpenseClient is the data access the pages need.
type ExpenseClient interface {
	LoadExpenses(ctx context.Context, f core.Filter) []client.Expense
	AddExpense(ctx context.Context, in client.Input) (client.Expense, error)
	UpdateExpense(ctx context.Context, id string, in client.Input) (client.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ClearAll(ctx context.Context) (int64, error)
	Import(ctx context.Context, r io.Reader) (client.ImportResult, error)
	Stats(ctx context.Context, f core.Filter) (core.Stats, error)
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	client    ExpenseClient
	templates *template.Template
	logger    *log.Logger
	detector  *security.Detector
	limiter   *ratelimit.Limiter
	trace     *trace.Middleware
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires the routes. A template
// that fails to parse is a startup error.
func NewServer(cfg Config, c ExpenseClient, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	uiLogger := logger.WithComponent(log.ComponentUI)

	t, err := template.New("ui").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			uiLogger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		client:    c,
		templates: t,
		logger:    uiLogger,
		detector:  detector,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		trace:     trace.NewMiddleware(detector.ExtractClientIP, logger),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /expenses", s.handleCreate)
	mux.HandleFunc("POST /expenses/{id}", s.handleUpdate)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDelete)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(86400)(static))
	} else {
		uiLogger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	var h http.Handler = mux
	h = http.MaxBytesHandler(h, MaxImportBytes+1<<20)
	h = s.limiter.Middleware(detector.ExtractClientIP, ratelimit.MutatingOnly, s.onRateLimit)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.trace.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
	http.Error(w, "Too many requests, please try again later", http.StatusTooManyRequests)
}

// Shutdown stops the limiter janitor and drains the server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
