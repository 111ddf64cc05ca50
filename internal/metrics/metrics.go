package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundEvents      *prometheus.CounterVec
	OutboundMessages   *prometheus.CounterVec
	StateTransitions   *prometheus.CounterVec
	RewardsGranted     *prometheus.CounterVec
	AIRequests         *prometheus.CounterVec
	AILatency          *prometheus.HistogramVec
	BroadcastsStarted  prometheus.Counter
	BroadcastRecipient *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_events_total",
				Help:      "Total inbound messaging events processed by kind.",
			}, []string{"kind"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total outbound messages sent by type.",
			}, []string{"type"}),
			StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Conversation state transitions by destination state.",
			}, []string{"state"}),
			RewardsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewards_granted_total",
				Help:      "Reward credits granted by rule.",
			}, []string{"rule"}),
			AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Total generative content requests by outcome.",
			}, []string{"status"}),
			AILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "Latency distribution for generative content calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			BroadcastsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_started_total",
				Help:      "Total broadcast dispatches started.",
			}),
			BroadcastRecipient: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_recipients_total",
				Help:      "Per-recipient broadcast outcomes.",
			}, []string{"outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundEvents,
			metricsInstance.OutboundMessages,
			metricsInstance.StateTransitions,
			metricsInstance.RewardsGranted,
			metricsInstance.AIRequests,
			metricsInstance.AILatency,
			metricsInstance.BroadcastsStarted,
			metricsInstance.BroadcastRecipient,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
