package provider

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordAttempt(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.RecordAttempt("stripe", "USD", 100, 3.20, true, 200*time.Millisecond)
	m.RecordAttempt("stripe", "USD", 50, 1.75, false, 400*time.Millisecond)
	m.RecordAttempt("paypal", "EUR", 80, 3.28, true, 100*time.Millisecond)

	report := m.Report(context.Background())
	assert.Equal(t, int64(3), report.TotalTransactions)
	assert.Equal(t, int64(2), report.TotalSucceeded)
	assert.InDelta(t, 2.0/3.0, report.SuccessRate, 0.001)
	assert.InDelta(t, 180.0, report.TotalAmount, 0.001)
	assert.InDelta(t, 6.48, report.TotalFees, 0.001)

	stripe := report.Providers["stripe"]
	assert.Equal(t, int64(2), stripe.Transactions)
	assert.Equal(t, int64(1), stripe.Succeeded)
	assert.Equal(t, int64(1), stripe.Failed)
	assert.InDelta(t, 100.0, stripe.TotalAmount, 0.001, "failed amounts do not count")
	assert.InDelta(t, 300.0, stripe.AverageLatencyMs, 0.001)
}

func TestMetricsCollector_EmptyReport(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	report := m.Report(context.Background())
	assert.Zero(t, report.TotalTransactions)
	assert.Zero(t, report.SuccessRate)
	assert.Empty(t, report.Providers)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestMetricsCollector_PrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollector(reg)

	m.RecordAttempt("stripe", "usd", 100, 3.20, true, 100*time.Millisecond)
	m.RecordAttempt("stripe", "USD", 50, 1.75, false, 100*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsTotal.WithLabelValues("stripe", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsTotal.WithLabelValues("stripe", "failure")))
	// currency labels are normalized to upper case
	assert.Equal(t, 100.0, testutil.ToFloat64(m.paymentAmount.WithLabelValues("stripe", "USD")))
	assert.Equal(t, 3.20, testutil.ToFloat64(m.estimatedFees.WithLabelValues("stripe")))
}

func TestMetricsCollector_ReportEmitsEvent(t *testing.T) {
	bus := NewEventBus()
	m := NewMetricsCollector(prometheus.NewRegistry(), WithMetricsEventBus(bus))

	m.RecordAttempt("stripe", "USD", 100, 3.20, true, 100*time.Millisecond)
	report := m.Report(context.Background())

	history := bus.History()
	require.Len(t, history, 1)
	assert.Equal(t, EventMetricsCollected, history[0].Type)
	data, ok := history[0].Data.(MetricsEventData)
	require.True(t, ok)
	assert.Equal(t, report.TotalTransactions, data.Report.TotalTransactions)
}

func TestMetricsCollector_NilRegisterer(t *testing.T) {
	// a nil registerer keeps the collector usable without prometheus export
	m := NewMetricsCollector(nil)
	m.RecordAttempt("stripe", "USD", 100, 3.20, true, 100*time.Millisecond)

	report := m.Report(context.Background())
	assert.Equal(t, int64(1), report.TotalTransactions)
}
