// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	FramesReceived  prometheus.Counter
	FramesDiscarded *prometheus.CounterVec
	EventsByKind    *prometheus.CounterVec
	Reconnects      prometheus.Counter

	// Subscription metrics
	SubscriptionQueueDepth prometheus.Gauge
	ActiveSubscriptions    prometheus.Gauge
	SubscribeBatchesSent   prometheus.Counter
	UnsubscribeBatchesSent prometheus.Counter

	// Ingestion metrics
	TokensCreated   prometheus.Counter
	TradesRecorded  prometheus.Counter
	TradesDropped   prometheus.Counter
	StaleUpdates    prometheus.Counter
	IngestionErrors *prometheus.CounterVec

	// Trigger metrics
	TriggerQueueDepth  prometheus.Gauge
	TriggerEvaluations prometheus.Counter
	TriggerMatches     *prometheus.CounterVec

	// Watchlist metrics
	WatchedTokens prometheus.Gauge
	TokensPruned  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "watchdesk"
	}

	return &Metrics{
		// Feed metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Total number of frames received from the feed",
		}),
		FramesDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_discarded_total",
			Help:      "Total number of discarded frames by reason",
		}, []string{"reason"}),
		EventsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Total number of classified events by kind",
		}, []string{"kind"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),

		// Subscription metrics
		SubscriptionQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "queue_depth",
			Help:      "Current number of pending subscription intents",
		}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Current number of active trade subscriptions",
		}),
		SubscribeBatchesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "subscribe_batches_total",
			Help:      "Total number of batched subscribe messages sent",
		}),
		UnsubscribeBatchesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "unsubscribe_batches_total",
			Help:      "Total number of batched unsubscribe messages sent",
		}),

		// Ingestion metrics
		TokensCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tokens_created_total",
			Help:      "Total number of token rows created from creation events",
		}),
		TradesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_recorded_total",
			Help:      "Total number of trade records stored",
		}),
		TradesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_dropped_total",
			Help:      "Total number of trades dropped for unknown mints",
		}),
		StaleUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stale_updates_total",
			Help:      "Total number of token updates skipped as stale",
		}),
		IngestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by event type",
		}, []string{"event_type"}),

		// Trigger metrics
		TriggerQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "queue_depth",
			Help:      "Current number of queued trigger evaluations",
		}),
		TriggerEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "evaluations_total",
			Help:      "Total number of trigger evaluations processed",
		}),
		TriggerMatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "matches_total",
			Help:      "Total number of matched trigger groups by type",
		}, []string{"type"}),

		// Watchlist metrics
		WatchedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watchlist",
			Name:      "watched_tokens",
			Help:      "Current number of watched tokens",
		}),
		TokensPruned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchlist",
			Name:      "tokens_pruned_total",
			Help:      "Total number of stale tokens pruned",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrameReceived increments the frames received counter.
func RecordFrameReceived() {
	DefaultMetrics.FramesReceived.Inc()
}

// RecordFrameDiscarded records a discarded frame with its reason.
func RecordFrameDiscarded(reason string) {
	DefaultMetrics.FramesDiscarded.WithLabelValues(reason).Inc()
}

// RecordEvent increments the classified event counter for a kind.
func RecordEvent(kind string) {
	DefaultMetrics.EventsByKind.WithLabelValues(kind).Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.Reconnects.Inc()
}

// UpdateSubscriptionQueueDepth updates the intent queue gauge.
func UpdateSubscriptionQueueDepth(n int) {
	DefaultMetrics.SubscriptionQueueDepth.Set(float64(n))
}

// UpdateActiveSubscriptions updates the active subscription gauge.
func UpdateActiveSubscriptions(n int) {
	DefaultMetrics.ActiveSubscriptions.Set(float64(n))
}

// RecordSubscribeBatch increments the subscribe batch counter.
func RecordSubscribeBatch() {
	DefaultMetrics.SubscribeBatchesSent.Inc()
}

// RecordUnsubscribeBatch increments the unsubscribe batch counter.
func RecordUnsubscribeBatch() {
	DefaultMetrics.UnsubscribeBatchesSent.Inc()
}

// RecordTokenCreated increments the tokens created counter.
func RecordTokenCreated() {
	DefaultMetrics.TokensCreated.Inc()
}

// RecordTradeRecorded increments the trades recorded counter.
func RecordTradeRecorded() {
	DefaultMetrics.TradesRecorded.Inc()
}

// RecordTradeDropped increments the unknown-mint drop counter.
func RecordTradeDropped() {
	DefaultMetrics.TradesDropped.Inc()
}

// RecordStaleUpdate increments the skipped stale update counter.
func RecordStaleUpdate() {
	DefaultMetrics.StaleUpdates.Inc()
}

// RecordIngestionError records an ingestion error for an event type.
func RecordIngestionError(eventType string) {
	DefaultMetrics.IngestionErrors.WithLabelValues(eventType).Inc()
}

// UpdateTriggerQueueDepth updates the trigger queue gauge.
func UpdateTriggerQueueDepth(n int) {
	DefaultMetrics.TriggerQueueDepth.Set(float64(n))
}

// RecordTriggerEvaluation increments the evaluation counter.
func RecordTriggerEvaluation() {
	DefaultMetrics.TriggerEvaluations.Inc()
}

// RecordTriggerMatch records a matched group by trigger type.
func RecordTriggerMatch(triggerType string) {
	DefaultMetrics.TriggerMatches.WithLabelValues(triggerType).Inc()
}

// UpdateWatchedTokens updates the watched token gauge.
func UpdateWatchedTokens(n int) {
	DefaultMetrics.WatchedTokens.Set(float64(n))
}

// RecordTokensPruned adds to the pruned token counter.
func RecordTokensPruned(n int) {
	DefaultMetrics.TokensPruned.Add(float64(n))
}
