package provider

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics are cumulative per-provider transaction counters
type ProviderMetrics struct {
	Transactions     int64   `json:"transactions"`
	Succeeded        int64   `json:"succeeded"`
	Failed           int64   `json:"failed"`
	TotalAmount      float64 `json:"totalAmount"`
	EstimatedFees    float64 `json:"estimatedFees"`
	AverageLatencyMs float64 `json:"averageLatencyMs"`

	totalLatencyMs float64
}

// MetricsReport is a point-in-time summary for dashboards
type MetricsReport struct {
	GeneratedAt       time.Time                  `json:"generatedAt"`
	TotalTransactions int64                      `json:"totalTransactions"`
	TotalSucceeded    int64                      `json:"totalSucceeded"`
	SuccessRate       float64                    `json:"successRate"`
	TotalAmount       float64                    `json:"totalAmount"`
	TotalFees         float64                    `json:"totalFees"`
	Providers         map[string]ProviderMetrics `json:"providers"`
}

// MetricsCollector keeps rolling transaction and cost metrics per provider
// and exports them through a prometheus registry.
type MetricsCollector struct {
	mu        sync.Mutex
	providers map[string]*ProviderMetrics
	clock     Clock
	events    *EventBus

	paymentsTotal   *prometheus.CounterVec
	paymentAmount   *prometheus.CounterVec
	estimatedFees   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
}

// MetricsOption configures the collector
type MetricsOption func(*MetricsCollector)

// WithMetricsEventBus emits metrics.collected events on Report
func WithMetricsEventBus(events *EventBus) MetricsOption {
	return func(m *MetricsCollector) { m.events = events }
}

// WithMetricsClock injects a test clock
func WithMetricsClock(clock Clock) MetricsOption {
	return func(m *MetricsCollector) { m.clock = clock }
}

// NewMetricsCollector creates the collector and registers its prometheus
// collectors with the given registerer.
func NewMetricsCollector(reg prometheus.Registerer, opts ...MetricsOption) *MetricsCollector {
	m := &MetricsCollector{
		providers: make(map[string]*ProviderMetrics),
		clock:     NewClock(),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paybridge_payments_total",
			Help: "Payment attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paybridge_payment_amount_total",
			Help: "Successful payment volume in major units by provider and currency",
		}, []string{"provider", "currency"}),
		estimatedFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paybridge_estimated_fees_total",
			Help: "Estimated provider fees in major units",
		}, []string{"provider"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paybridge_attempt_duration_seconds",
			Help:    "Provider attempt duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if reg != nil {
		reg.MustRegister(m.paymentsTotal, m.paymentAmount, m.estimatedFees, m.attemptDuration)
	}
	return m
}

// RecordAttempt records one provider attempt outcome
func (m *MetricsCollector) RecordAttempt(providerName, currency string, amount, estimatedFee float64, success bool, latency time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.paymentsTotal.WithLabelValues(providerName, outcome).Inc()
	m.attemptDuration.WithLabelValues(providerName).Observe(latency.Seconds())
	if success {
		m.paymentAmount.WithLabelValues(providerName, normalizeCurrency(currency)).Add(amount)
		m.estimatedFees.WithLabelValues(providerName).Add(estimatedFee)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pm, ok := m.providers[providerName]
	if !ok {
		pm = &ProviderMetrics{}
		m.providers[providerName] = pm
	}
	pm.Transactions++
	pm.totalLatencyMs += float64(latency.Milliseconds())
	pm.AverageLatencyMs = pm.totalLatencyMs / float64(pm.Transactions)
	if success {
		pm.Succeeded++
		pm.TotalAmount += amount
		pm.EstimatedFees += estimatedFee
	} else {
		pm.Failed++
	}
}

// Report builds a point-in-time summary and, when a bus is wired, emits a
// metrics.collected event.
func (m *MetricsCollector) Report(ctx context.Context) MetricsReport {
	m.mu.Lock()
	report := MetricsReport{
		GeneratedAt: m.clock.Now(),
		Providers:   make(map[string]ProviderMetrics, len(m.providers)),
	}
	for name, pm := range m.providers {
		report.Providers[name] = *pm
		report.TotalTransactions += pm.Transactions
		report.TotalSucceeded += pm.Succeeded
		report.TotalAmount += pm.TotalAmount
		report.TotalFees += pm.EstimatedFees
	}
	m.mu.Unlock()

	if report.TotalTransactions > 0 {
		report.SuccessRate = float64(report.TotalSucceeded) / float64(report.TotalTransactions)
	}

	if m.events != nil {
		m.events.Publish(ctx, Event{
			Type:   EventMetricsCollected,
			Source: "metrics",
			Data:   MetricsEventData{Report: report},
		})
	}
	return report
}
