package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "result") == result {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestWebhookCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWebhook(reg)

	w.Observe(ResultUnauthorized)
	w.Observe(ResultUnauthorized)
	w.ObserveReconcile("SUCCESS", time.Now())

	if got := counterValue(t, reg, "payment_webhook_requests_total", ResultUnauthorized); got != 2 {
		t.Errorf("unauthorized = %v, want 2", got)
	}
	if got := counterValue(t, reg, "payment_webhook_requests_total", "SUCCESS"); got != 1 {
		t.Errorf("SUCCESS = %v, want 1", got)
	}
	if got := counterValue(t, reg, "payment_webhook_reconcile_duration_seconds", "SUCCESS"); got != 1 {
		t.Errorf("duration samples = %v, want 1", got)
	}
}

func TestNilWebhookIsNoop(t *testing.T) {
	var w *Webhook
	w.Observe(ResultIgnored)
	w.ObserveReconcile(ResultError, time.Now())
}
