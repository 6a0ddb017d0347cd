package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider metrics
var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Outbound provider API calls by platform, operation and outcome.",
		},
		[]string{LabelPlatform, LabelOperation, LabelOutcome},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by platform and outcome.",
		},
		[]string{LabelPlatform, LabelOutcome},
	)
)

// Aggregation metrics
var (
	AggregationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_platform_failures_total",
			Help:      "Platforms that dropped out of an aggregation round.",
		},
		[]string{LabelOperation, LabelPlatform, LabelOutcome},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of one fan-out round.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation},
	)
)

// Realtime metrics
var (
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Connected websocket subscribers.",
		},
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_subscribers_total",
			Help:      "Subscribers removed because a send could not be delivered.",
		},
	)
)
