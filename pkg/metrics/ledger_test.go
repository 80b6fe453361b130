package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)

	metrics.IncSettlement("created")
	metrics.IncSettlement("created")
	metrics.IncSettlement("duplicate")
	metrics.IncRefund("insufficient_balance")
	metrics.AddAmount("seller_payout", 9800)
	metrics.AddAmount("refund", -9800)
	metrics.ObserveDuration("settle", 250*time.Millisecond)
	metrics.IncRetry("settle")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name  string
		label string
		value string
		want  float64
	}{
		{name: "ledger_settlements_total", label: "outcome", value: "created", want: 2},
		{name: "ledger_settlements_total", label: "outcome", value: "duplicate", want: 1},
		{name: "ledger_refunds_total", label: "outcome", value: "insufficient_balance", want: 1},
		{name: "ledger_amount_cents_total", label: "kind", value: "seller_payout", want: 9800},
		{name: "ledger_amount_cents_total", label: "kind", value: "refund", want: 9800},
		{name: "ledger_retries_total", label: "operation", value: "settle", want: 1},
	}
	for _, check := range checks {
		got, err := fetchCounterValue(mfs, check.name, check.label, check.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", check.name, err)
		}
		if got != check.want {
			t.Fatalf("expected %s{%s=%s}=%v, got %v", check.name, check.label, check.value, check.want, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "ledger_operation_duration_seconds", "operation", "settle"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	metrics := NewLedgerMetrics(nil)
	metrics.IncSettlement("created")
	metrics.AddAmount("gross", 100)
	metrics.ObserveDuration("settle", time.Second)

	var nilMetrics *LedgerMetrics
	nilMetrics.IncRefund("created")

	webhooks := NewWebhookMetrics(nil)
	webhooks.IncEvent("stripe", "processed")
}

func TestWebhookMetricsNormalizesLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWebhookMetrics(reg)
	metrics.IncEvent("", "processed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_webhook_events_total", "source", "unknown"); err != nil {
		t.Fatalf("fetch events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 event, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
