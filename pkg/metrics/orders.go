package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// OrderMetrics tracks place-order attempts and their outcomes.
type OrderMetrics struct {
	attempts prometheus.Counter
	outcomes *prometheus.CounterVec
	submit   prometheus.Histogram
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_attempts_total",
		Help:      "Place-order attempts.",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_outcomes_total",
		Help:      "Place-order outcomes by result code.",
	}, []string{"outcome"})
	submit := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_submit_duration_seconds",
		Help:      "Latency of the order POST to the remote API.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(attempts, outcomes, submit)
	return &OrderMetrics{attempts: attempts, outcomes: outcomes, submit: submit}
}

// IncAttempt counts a new place-order call.
func (o *OrderMetrics) IncAttempt() {
	if o == nil || o.attempts == nil {
		return
	}
	o.attempts.Inc()
}

// IncOutcome counts a finished attempt. Successful orders use the "created" outcome.
func (o *OrderMetrics) IncOutcome(outcome string) {
	if o == nil || o.outcomes == nil {
		return
	}
	o.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSubmit records how long the remote submission took.
func (o *OrderMetrics) ObserveSubmit(d time.Duration) {
	if o == nil || o.submit == nil {
		return
	}
	o.submit.Observe(d.Seconds())
}
