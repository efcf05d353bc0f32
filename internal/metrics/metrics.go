package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpulse_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookpulse_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	sweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpulse_sweep_runs_total",
			Help: "Total scheduled sweep executions",
		},
	)

	sweepResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpulse_sweep_results_total",
			Help: "Per-booking sweep results by status",
		},
		[]string{"status"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookpulse_sweep_duration_seconds",
			Help:    "Wall time of one full sweep",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpulse_deliveries_total",
			Help: "Recipient-level delivery outcomes by trigger and status",
		},
		[]string{"trigger_type", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookpulse_send_duration_seconds",
			Help:    "Mail transport call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"trigger_type"},
	)

	dispatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpulse_dispatch_jobs_total",
			Help: "Dispatch job terminal states",
		},
		[]string{"status"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpulse_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"tenant_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSweepRun records one sweep execution and its duration.
func RecordSweepRun(duration time.Duration) {
	sweepRunsTotal.Inc()
	sweepDuration.Observe(duration.Seconds())
}

// RecordSweepResult records one per-booking sweep result.
func RecordSweepResult(status string) {
	sweepResultsTotal.WithLabelValues(status).Inc()
}

// RecordDelivery records a recipient-level delivery outcome.
func RecordDelivery(triggerType, status string) {
	deliveriesTotal.WithLabelValues(triggerType, status).Inc()
}

// ObserveSendDuration records the latency of one transport call.
func ObserveSendDuration(triggerType string, duration time.Duration) {
	sendDuration.WithLabelValues(triggerType).Observe(duration.Seconds())
}

// RecordDispatchJob records a dispatch job reaching a terminal state.
func RecordDispatchJob(status string) {
	dispatchJobsTotal.WithLabelValues(status).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(tenantID string) {
	rateLimitRejections.WithLabelValues(tenantID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
