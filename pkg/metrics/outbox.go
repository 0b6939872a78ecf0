package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publish outcomes per event type. Nil receivers are no-ops.
type OutboxMetrics struct {
	results *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox counters on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_total",
			Help:      "Outbox publish attempts by event type and result (published, retry, dead_lettered).",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.results)
	return m
}

func (m *OutboxMetrics) Published(eventType string)    { m.inc(eventType, "published") }
func (m *OutboxMetrics) Retried(eventType string)      { m.inc(eventType, "retry") }
func (m *OutboxMetrics) DeadLettered(eventType string) { m.inc(eventType, "dead_lettered") }

func (m *OutboxMetrics) inc(eventType, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(label(eventType), result).Inc()
}

// Counter exposes the underlying series for assertions.
func (m *OutboxMetrics) Counter(eventType, result string) prometheus.Counter {
	if m == nil || m.results == nil {
		return nil
	}
	return m.results.WithLabelValues(label(eventType), result)
}
