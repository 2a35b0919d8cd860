package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequestsTotal counts calls to the image-generation API by
	// operation (submit, poll) and outcome (2xx, 4xx, 5xx, transport).
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxstudio_upstream_requests_total",
			Help: "Total number of requests sent to the image-generation API",
		},
		[]string{"op", "outcome"},
	)

	// Buckets: 50ms .. ~51s
	UpstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxstudio_upstream_duration_seconds",
			Help:    "Latency of image-generation API calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11),
		},
		[]string{"op"},
	)

	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxstudio_proxy_requests_total",
			Help: "Total number of submit/poll proxy requests by HTTP status",
		},
		[]string{"endpoint", "code"},
	)

	TrackerOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxstudio_tracker_outcomes_total",
			Help: "Terminal outcomes of tracked generation jobs",
		},
		[]string{"outcome"}, // done, submit_error, remote_error, timeout, malformed, canceled
	)

	TrackerPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluxstudio_tracker_poll_attempts",
			Help:    "Poll attempts used per tracked job",
			Buckets: prometheus.LinearBuckets(1, 3, 11), // 1..31
		},
	)

	TrackerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxstudio_tracker_active",
			Help: "Jobs currently being tracked",
		},
	)
)

// OutcomeClass buckets an HTTP status code for the outcome label.
func OutcomeClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "transport"
	}
}
