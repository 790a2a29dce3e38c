// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenesound_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenesound_api_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scenesound_api_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// Upstream calls: upstream is "classifier" or "catalog".
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenesound_upstream_attempts_total",
			Help: "Outbound attempts by upstream and outcome",
		},
		[]string{"upstream", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenesound_upstream_duration_seconds",
			Help:    "Duration of single outbound attempts in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"upstream"},
	)

	AnalyzeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenesound_analyze_outcomes_total",
			Help: "Analyze requests by final stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	PlaylistSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenesound_playlist_size",
			Help:    "Number of tracks in returned playlists",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		},
	)

	ClassifierBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scenesound_classifier_breaker_state",
			Help: "Classifier circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordAPIRequest records a finished HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordUpstreamAttempt records one outbound attempt. outcome is "ok",
// "retry" or "error".
func RecordUpstreamAttempt(upstream, outcome string, duration time.Duration) {
	UpstreamAttempts.WithLabelValues(upstream, outcome).Inc()
	UpstreamDuration.WithLabelValues(upstream).Observe(duration.Seconds())
}

// RecordAnalyze records a finished analyze request.
func RecordAnalyze(stage string, degraded bool, err error, tracks int) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case degraded:
		outcome = "degraded"
	}
	AnalyzeOutcomes.WithLabelValues(stage, outcome).Inc()
	if err == nil {
		PlaylistSize.Observe(float64(tracks))
	}
}
