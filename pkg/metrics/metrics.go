package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultUnauthorized = "unauthorized"
	ResultIgnored      = "ignored"
	ResultError        = "error"
)

// Webhook holds the counters for the gateway endpoint. A nil *Webhook is a
// valid no-op recorder.
type Webhook struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewWebhook(reg prometheus.Registerer) *Webhook {
	w := &Webhook{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payment",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Gateway webhook deliveries by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payment",
			Subsystem: "webhook",
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one delivery, by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	reg.MustRegister(w.requests, w.duration)
	return w
}

func (w *Webhook) Observe(result string) {
	if w == nil {
		return
	}
	w.requests.WithLabelValues(result).Inc()
}

func (w *Webhook) ObserveReconcile(result string, since time.Time) {
	if w == nil {
		return
	}
	w.requests.WithLabelValues(result).Inc()
	w.duration.WithLabelValues(result).Observe(time.Since(since).Seconds())
}
