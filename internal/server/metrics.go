package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daybook",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "daybook",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "daybook",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	sessionsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "daybook",
		Name:      "sessions_finished_total",
		Help:      "Collection sessions that reached the final slot.",
	})

	reportsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daybook",
		Name:      "reports_built_total",
		Help:      "Aggregated reports by type.",
	}, []string{"type"})

	chunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "daybook",
		Name:      "chunks_ingested_total",
		Help:      "Chunks written to the vector index.",
	})

	queriesAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daybook",
		Name:      "queries_answered_total",
		Help:      "Retrieval queries by grounding outcome.",
	}, []string{"outcome"})
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// requestMetrics records counters and latency for every request and logs
// completed requests at debug level.
func requestMetrics(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			requestsInFlight.Inc()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			requestsInFlight.Dec()

			elapsed := time.Since(start)
			requestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
			requestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", elapsed))
		})
	}
}
