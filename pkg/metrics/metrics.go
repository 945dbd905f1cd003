package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamforge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamforge_uploads_total",
			Help: "Total number of upload attempts by result",
		},
		[]string{"result"}, // "accepted", "rejected", "error"
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamforge_upload_bytes_total",
			Help: "Total bytes accepted from uploads",
		},
	)
)

// Transcode metrics
var (
	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamforge_transcode_jobs_total",
			Help: "Total number of finished transcode jobs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "skipped"
	)

	TranscodeJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamforge_transcode_jobs_in_flight",
			Help: "Number of transcode jobs currently running",
		},
	)

	RenditionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamforge_rendition_duration_seconds",
			Help:    "Encoding duration per rendition in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"rendition", "status"},
	)
)

// Stream metrics
var (
	StreamResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamforge_stream_responses_total",
			Help: "Total number of stream responses by outcome",
		},
		[]string{"outcome"}, // "file", "redirect", "not_found", "forbidden", "error"
	)
)

// Middleware records request count, latency and in-flight requests keyed by
// the chi route pattern so ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
