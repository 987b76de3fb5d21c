package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequestsTotal tracks outbound marketplace calls by provider and HTTP status.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_provider_requests_total",
			Help: "Total number of marketplace API requests (by provider and status).",
		},
		[]string{"provider", "status"},
	)

	// ProviderRequestDuration measures marketplace call latency.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_provider_request_duration_seconds",
			Help:    "Duration of marketplace API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms → ~40s
		},
		[]string{"provider"},
	)

	// ProviderRetriesTotal counts retry attempts after transient failures.
	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_provider_retries_total",
			Help: "Number of retried marketplace requests by provider and reason.",
		},
		[]string{"provider", "reason"},
	)

	// SearchFallbacksTotal counts auto-mode fallbacks from the primary source.
	SearchFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_search_fallbacks_total",
			Help: "Number of searches that fell back to the secondary source (by reason).",
		},
		[]string{"reason"},
	)

	// ItemsProcessedTotal counts catalog items by game and outcome (priced, empty, failed).
	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_items_processed_total",
			Help: "Catalog items processed by the sweeper (by game and outcome).",
		},
		[]string{"game", "outcome"},
	)

	// SweepDuration measures a full sweep of one game.
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_sweep_duration_seconds",
			Help:    "Duration of a full sweep of one game's catalog.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
		[]string{"game"},
	)

	// NotifyErrorsTotal tracks event publish failures by transport.
	NotifyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_notify_errors_total",
			Help: "Number of price event publish failures by transport.",
		},
		[]string{"transport"},
	)
)

// IncProviderRequest increments the provider request counter.
func IncProviderRequest(provider, status string) {
	ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// IncRetry increments the retry counter.
func IncRetry(provider, reason string) {
	ProviderRetriesTotal.WithLabelValues(provider, reason).Inc()
}

// IncFallback increments the fallback counter.
func IncFallback(reason string) {
	SearchFallbacksTotal.WithLabelValues(reason).Inc()
}

// IncItem increments the processed item counter.
func IncItem(game, outcome string) {
	ItemsProcessedTotal.WithLabelValues(game, outcome).Inc()
}

// IncNotifyError increments the notifier error counter.
func IncNotifyError(transport string) {
	NotifyErrorsTotal.WithLabelValues(transport).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
