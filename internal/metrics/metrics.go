// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline names used as label values.
const (
	PipelineIngest    = "ingest"
	PipelineRecommend = "recommend"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_http_requests_total",
			Help: "Total number of HTTP requests by route pattern",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_pipeline_runs_total",
			Help: "Pipeline executions by pipeline and outcome",
		},
		[]string{"pipeline", "outcome"},
	)

	TracksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_tracks_created_total",
			Help: "Tracks added to the catalog",
		},
	)

	HistoryCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_history_entries_created_total",
			Help: "Listening history entries recorded",
		},
	)

	RecommendationsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_recommendations_stored_total",
			Help: "Recommendation entries written",
		},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_token_refreshes_total",
			Help: "OAuth token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPipelineRun counts one pipeline execution.
func RecordPipelineRun(pipeline string, err error) {
	PipelineRuns.WithLabelValues(pipeline, outcome(err)).Inc()
}

// RecordTokenRefresh counts one refresh-token exchange.
func RecordTokenRefresh(err error) {
	TokenRefreshes.WithLabelValues(outcome(err)).Inc()
}

// RecordIngest adds the counts produced by one ingestion run.
func RecordIngest(tracksCreated, historyCreated int) {
	TracksCreated.Add(float64(tracksCreated))
	HistoryCreated.Add(float64(historyCreated))
}

// RecordRecommendations adds the counts produced by one recommendation run.
func RecordRecommendations(tracksCreated, stored int) {
	TracksCreated.Add(float64(tracksCreated))
	RecommendationsStored.Add(float64(stored))
}

// Middleware records request count and latency labeled by the matched chi
// route pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

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

		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
