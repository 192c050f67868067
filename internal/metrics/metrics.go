package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger mutations by operation, entry kind and outcome",
		},
		[]string{"op", "kind", "outcome"},
	)
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome turns an operation result into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrOverlap):
		return "overlap"
	case errors.Is(err, domain.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, domain.ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, domain.ErrNotActive):
		return "not_active"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	}
	return "error"
}

// ObserveLedgerOp counts one coordinator call.
func ObserveLedgerOp(op string, kind domain.EntryKind, err error) {
	LedgerOperations.WithLabelValues(op, string(kind), Outcome(err)).Inc()
}

func ObserveJob(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	JobRuns.WithLabelValues(job, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency per route template and logs
// the request. It labels by template so /api/units/{id} stays one series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeTemplate(r)
		if route == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		RequestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		logger.HTTPRequest(r.Context(), r.Method, route, rec.status, elapsed)
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
