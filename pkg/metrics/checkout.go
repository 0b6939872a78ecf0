package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HoldMetrics counts hold transitions. Nil receivers are no-ops.
type HoldMetrics struct {
	transitions *prometheus.CounterVec
	outOfStock  prometheus.Counter
}

// NewHoldMetrics registers hold counters on reg.
func NewHoldMetrics(reg prometheus.Registerer) *HoldMetrics {
	if reg == nil {
		return &HoldMetrics{}
	}
	m := &HoldMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_transitions_total",
			Help:      "Ticket hold state transitions by resulting status.",
		}, []string{"status"}),
		outOfStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_out_of_stock_total",
			Help:      "Hold attempts rejected for insufficient inventory.",
		}),
	}
	reg.MustRegister(m.transitions, m.outOfStock)
	return m
}

// Transition records a hold entering status.
func (m *HoldMetrics) Transition(status string, n int) {
	if m == nil || m.transitions == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(label(status)).Add(float64(n))
}

// OutOfStock records a rejected hold.
func (m *HoldMetrics) OutOfStock() {
	if m == nil || m.outOfStock == nil {
		return
	}
	m.outOfStock.Inc()
}

// CheckoutMetrics records checkout outcomes and latency.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers checkout metrics on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_outcomes_total",
			Help:      "Checkout attempts by path and result code.",
		}, []string{"path", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Checkout orchestration latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
	reg.MustRegister(m.outcomes, m.duration)
	return m
}

// Observe records one checkout. path is free, paid, or unknown when the
// checkout failed before totals were known.
func (m *CheckoutMetrics) Observe(path, result string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(label(path), label(result)).Inc()
	m.duration.WithLabelValues(label(path)).Observe(elapsed.Seconds())
}

// ScanMetrics counts door scans by result code.
type ScanMetrics struct {
	results *prometheus.CounterVec
}

// NewScanMetrics registers scan counters on reg.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	m := &ScanMetrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_scans_total",
			Help:      "Ticket scans by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.results)
	return m
}

// Observe records one scan.
func (m *ScanMetrics) Observe(result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(label(result)).Inc()
}
