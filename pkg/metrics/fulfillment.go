package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics counts the outcomes of the order engine. A nil receiver
// is a no-op so services can run without a registry.
type FulfillmentMetrics struct {
	transitions *prometheus.CounterVec
	shortfalls  *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	imports     *prometheus.CounterVec
	timeouts    *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment collectors on reg.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Committed order status transitions.",
		}, []string{"from", "to"}),
		shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "shortfalls_total",
			Help:      "Stock reservations rejected for insufficient quantity.",
		}, []string{"source"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finance",
			Name:      "sync_total",
			Help:      "Financial sync attempts by outcome.",
		}, []string{"outcome"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "records_total",
			Help:      "Imported records by outcome.",
		}, []string{"outcome"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uow",
			Name:      "timeouts_total",
			Help:      "Units of work that exceeded their time budget.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.transitions, m.shortfalls, m.syncs, m.imports, m.timeouts)
	return m
}

func (m *FulfillmentMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveShortfall records a rejected reservation; source is "warehouse" or "agent".
func (m *FulfillmentMetrics) ObserveShortfall(source string) {
	if m == nil || m.shortfalls == nil {
		return
	}
	m.shortfalls.WithLabelValues(normalizeLabel(source)).Inc()
}

// ObserveSync records "synced", "skipped" or "failed".
func (m *FulfillmentMetrics) ObserveSync(outcome string) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveImport records "success", "duplicate" or "failed".
func (m *FulfillmentMetrics) ObserveImport(outcome string) {
	if m == nil || m.imports == nil {
		return
	}
	m.imports.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveTimeout records "wait" (no slot) or "execute" (deadline).
func (m *FulfillmentMetrics) ObserveTimeout(stage string) {
	if m == nil || m.timeouts == nil {
		return
	}
	m.timeouts.WithLabelValues(normalizeLabel(stage)).Inc()
}
