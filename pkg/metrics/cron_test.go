package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "hold-sweep"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "gatepass_job_success_total", map[string]string{"job": job})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "gatepass_job_failure_total", map[string]string{"job": job})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	sum, err := histogramSum(mfs, "gatepass_job_duration_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	assert.Greater(t, sum, 0.0)
}

func TestHoldAndCheckoutMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	holds := NewHoldMetrics(reg)
	checkout := NewCheckoutMetrics(reg)

	holds.Transition("released", 2)
	holds.Transition("released", 0)
	holds.OutOfStock()
	checkout.Observe("free", "ok", 10*time.Millisecond)
	scans := NewScanMetrics(reg)
	scans.Observe("TICKET_ALREADY_USED")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "gatepass_hold_transitions_total", map[string]string{"status": "released"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = counterValue(mfs, "gatepass_checkout_outcomes_total", map[string]string{"path": "free", "result": "ok"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "gatepass_ticket_scans_total", map[string]string{"result": "TICKET_ALREADY_USED"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var holds *HoldMetrics
	var checkout *CheckoutMetrics
	var cron *CronJobMetrics
	holds.Transition("expired", 1)
	holds.OutOfStock()
	checkout.Observe("paid", "ok", time.Second)
	cron.IncSuccess("x")
	NewHoldMetrics(nil).OutOfStock()
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func histogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matches(metric, labels) {
				return metric, nil
			}
		}
	}
	return nil, fmt.Errorf("metric %s%v not found", name, labels)
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}
