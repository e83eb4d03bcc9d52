package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"expensetracker/internal/cache"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
)

// Config holds the API server settings.
type Config struct {
	Addr string
	// FrontendURL is the single origin allowed by CORS.
	FrontendURL        string
	RateLimitPerMinute int
	TrustedProxies     []string
	// StatsCache, when set, is reported on /readyz and /metrics. The service
	// owns reads and invalidation.
	StatsCache *cache.StatsCache
}

type Server struct {
	http.Server
	svc        *services.ExpenseService
	statsCache *cache.StatsCache
	logger     *log.Logger
	structured *log.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime          time.Time
	expensesCreated int64
	expensesUpdated int64
	expensesDeleted int64
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc *services.ExpenseService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			httpLogger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		svc:              svc,
		statsCache:       cfg.StatsCache,
		logger:           httpLogger,
		structured:       log.NewStructuredLogger(httpLogger),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses", s.handleDeleteAllExpenses)
	mux.HandleFunc("GET /api/expenses/stats", s.handleExpenseStats)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("/", s.handleNotFound)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(cfg, mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware applies, outermost first: trace, security headers, scan
// detection, CORS, rate limiting of writes, body size limit.
func (s *Server) middleware(cfg Config, next http.Handler) http.Handler {
	h := maxBodyBytes(MaxBodyBytes)(next)
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.limitsWrite, s.onRateLimit)(h)
	h = newCORS(cfg.FrontendURL).Handler(h)
	h = s.securityDetector.Middleware(h)
	h = security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(h)
	return s.traceMiddleware.Middleware(h)
}

// limitsWrite counts mutating requests from external clients. A caller on a
// trusted network that forwards no client address, such as expense-web, is
// not counted: it limits its own users, and a bulk import reaches the API as
// one create per record.
func (s *Server) limitsWrite(r *http.Request) bool {
	return ratelimit.MutatingOnly(r) && !s.securityDetector.IsInternal(s.securityDetector.ExtractClientIP(r))
}

func newCORS(origin string) *cors.Cors {
	origins := []string{"*"}
	if origin != "" {
		origins = []string{origin}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID},
		AllowCredentials: origin != "",
		MaxAge:           600,
	})
}

func maxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
