package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics tracks provider webhook ingestion outcomes.
type WebhookMetrics struct {
	received *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received_total",
		Help: "Provider webhook deliveries received.",
	}, []string{"provider"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_outcome_total",
		Help: "Provider webhook processing outcomes.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(received, outcomes)
	return &WebhookMetrics{received: received, outcomes: outcomes}
}

// IncReceived counts a delivery from the named provider.
func (w *WebhookMetrics) IncReceived(provider string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncOutcome counts a processing outcome such as applied, duplicate or rejected.
func (w *WebhookMetrics) IncOutcome(provider, outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
