package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"expensetracker/internal/middleware/trace"
)

func requestID(r *http.Request) string {
	return trace.GetRequestID(r.Context())
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady reports not_ready when the store does not answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.svc.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.statsCache != nil {
		hits, misses := s.statsCache.Stats()
		checks["stats_cache"] = map[string]any{
			"entries": s.statsCache.Size(),
			"hits":    hits,
			"misses":  misses,
			"status":  "ok",
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	var cacheHits, cacheMisses uint64
	var cacheEntries int
	if s.statsCache != nil {
		cacheHits, cacheMisses = s.statsCache.Stats()
		cacheEntries = s.statsCache.Size()
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Requests answered with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("http_request_duration_avg_microseconds", "Mean request duration", "gauge", traceMetrics.AverageResponseTime)
	metric("expenses_created_total", "Expenses created", "counter", atomic.LoadInt64(&s.appMetrics.expensesCreated))
	metric("expenses_updated_total", "Expenses updated", "counter", atomic.LoadInt64(&s.appMetrics.expensesUpdated))
	metric("expenses_deleted_total", "Expenses deleted, including bulk deletes", "counter", atomic.LoadInt64(&s.appMetrics.expensesDeleted))
	metric("stats_cache_hits_total", "Stats cache hits", "counter", cacheHits)
	metric("stats_cache_misses_total", "Stats cache misses", "counter", cacheMisses)
	metric("stats_cache_entries", "Current stats cache entries", "gauge", cacheEntries)
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Requests matching a scan pattern", "counter", securityMetrics.SuspiciousRequests)
	metric("invalid_client_ip_total", "Unparseable client or forwarded addresses", "counter", securityMetrics.InvalidIPAttempts)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

// handleNotFound answers every unmatched route.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("Not Found - " + r.URL.Path).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
