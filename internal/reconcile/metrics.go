package reconcile

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the reconciliation counters.
type Metrics struct {
	outcomes  *prometheus.CounterVec
	conflicts prometheus.Counter
}

// NewMetrics creates the reconciliation metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitwiser",
			Name:      "webhook_outcomes_total",
			Help:      "Payment events processed, by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splitwiser",
			Name:      "reconcile_conflicts_total",
			Help:      "Member updates that lost a compare-and-update race and were retried.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.conflicts)
	}
	return m
}

func (m *Metrics) observe(outcome Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}
