package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records settlement, refund and balance activity.
type LedgerMetrics struct {
	settlements *prometheus.CounterVec
	refunds     *prometheus.CounterVec
	amounts     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	retries     *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlements_total",
		Help: "Settlement and payment failure events by outcome.",
	}, []string{"outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_refunds_total",
		Help: "Refund requests by outcome.",
	}, []string{"outcome"})
	amounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_amount_cents_total",
		Help: "Absolute minor units moved through the ledger.",
	}, []string{"kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_retries_total",
		Help: "Ledger units of work retried after a persistence conflict.",
	}, []string{"operation"})
	reg.MustRegister(settlements, refunds, amounts, duration, retries)
	return &LedgerMetrics{
		settlements: settlements,
		refunds:     refunds,
		amounts:     amounts,
		duration:    duration,
		retries:     retries,
	}
}

// IncSettlement counts one settlement attempt with its outcome.
func (m *LedgerMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRefund counts one refund attempt with its outcome.
func (m *LedgerMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddAmount adds the absolute value of cents to the kind counter
// (gross, admin_fee, seller_payout, refund).
func (m *LedgerMetrics) AddAmount(kind string, cents int64) {
	if m == nil || m.amounts == nil {
		return
	}
	if cents < 0 {
		cents = -cents
	}
	m.amounts.WithLabelValues(normalizeLabel(kind)).Add(float64(cents))
}

// ObserveDuration records the duration for the named operation.
func (m *LedgerMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncRetry counts one retry of the named operation.
func (m *LedgerMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// WebhookMetrics records inbound gateway callbacks.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Gateway callbacks by source and outcome.",
	}, []string{"source", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// IncEvent counts one callback.
func (m *WebhookMetrics) IncEvent(source, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
