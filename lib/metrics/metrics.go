// Package metrics provides Prometheus metrics for the companion server.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "companion_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	terminalSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_terminal_sessions_active",
			Help: "Number of live terminal sessions",
		},
	)

	terminalSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_terminal_sessions_total",
			Help: "Terminal sessions by how they ended",
		},
		[]string{"outcome"},
	)

	terminalOutputBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_terminal_output_bytes_total",
			Help: "Bytes read from terminal PTYs",
		},
	)

	fileSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_file_subscribers_active",
			Help: "Number of live /ws/files subscribers",
		},
	)

	fileChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_file_changes_total",
			Help: "Filesystem change notifications broadcast, by event",
		},
		[]string{"event"},
	)

	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_file_notifications_dropped_total",
			Help: "File notifications dropped for slow subscribers",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func SetTerminalSessions(n int) {
	terminalSessionsActive.Set(float64(n))
}

// RecordTerminalEnd counts a finished session; outcome is "exited", "closed" or "spawn_failed".
func RecordTerminalEnd(outcome string) {
	terminalSessionsTotal.WithLabelValues(outcome).Inc()
}

func AddTerminalOutput(n int) {
	terminalOutputBytes.Add(float64(n))
}

func SetFileSubscribers(n int) {
	fileSubscribersActive.Set(float64(n))
}

func RecordFileChange(event string) {
	fileChangesTotal.WithLabelValues(event).Inc()
}

func RecordDroppedNotification() {
	notificationsDropped.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// unmatchedRoute labels requests no chi route matched, keeping raw paths out of labels.
const unmatchedRoute = "unmatched"

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
