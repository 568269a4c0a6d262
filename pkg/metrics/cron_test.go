package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "codf_cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "codf_cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "codf_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
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

func TestFulfillmentMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)
	m.ObserveTransition("confirmed", "out_for_delivery")
	m.ObserveTransition("confirmed", "out_for_delivery")
	m.ObserveSync("failed")
	m.ObserveImport("duplicate")
	m.ObserveTimeout("wait")
	m.ObserveShortfall("warehouse")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "codf_orders_transitions_total", "to", "out_for_delivery"); err != nil || got != 2 {
		t.Fatalf("expected 2 transitions, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "codf_finance_sync_total", "outcome", "failed"); err != nil || got != 1 {
		t.Fatalf("expected 1 failed sync, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "codf_importer_records_total", "outcome", "duplicate"); err != nil || got != 1 {
		t.Fatalf("expected 1 duplicate, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "codf_uow_timeouts_total", "stage", "wait"); err != nil || got != 1 {
		t.Fatalf("expected 1 timeout, got %f (%v)", got, err)
	}
}

func TestNilFulfillmentMetricsIsNoop(t *testing.T) {
	var m *FulfillmentMetrics
	m.ObserveTransition("a", "b")
	m.ObserveSync("synced")
	NewFulfillmentMetrics(nil).ObserveImport("success")
}
