package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order lifecycle outcomes.
type OrderMetrics struct {
	created     prometheus.Counter
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	settlements prometheus.Counter
	penalties   prometheus.Counter
}

// NewOrderMetrics registers the order counters. A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders committed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Order creations rejected, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_item_transitions_total",
			Help:      "Order item status transitions, by target status and actor role.",
		}, []string{"status", "actor"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_created_total",
			Help:      "Settlement batches created by the sweep.",
		}),
		penalties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_penalties_applied_total",
			Help:      "Returns auto-penalized after the seller review window.",
		}),
	}
	reg.MustRegister(m.created, m.rejected, m.transitions, m.settlements, m.penalties)
	return m
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OrderMetrics) IncTransition(status, actor string, n int) {
	if m == nil || m.transitions == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), normalizeLabel(actor)).Add(float64(n))
}

func (m *OrderMetrics) AddSettlements(n int) {
	if m == nil || m.settlements == nil || n <= 0 {
		return
	}
	m.settlements.Add(float64(n))
}

func (m *OrderMetrics) AddPenalties(n int) {
	if m == nil || m.penalties == nil || n <= 0 {
		return
	}
	m.penalties.Add(float64(n))
}
