package handler

import (
	"net/http"
	"strconv"

	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// MetricsHandler serves business metrics, error statistics and event history
type MetricsHandler struct {
	metrics *provider.MetricsCollector
	errors  *provider.ErrorHandler
	events  *provider.EventBus
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *provider.MetricsCollector, errors *provider.ErrorHandler, events *provider.EventBus) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		errors:  errors,
		events:  events,
	}
}

// GetMetrics handles GET /v1/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	report := h.metrics.Report(r.Context())
	response.Success(w, http.StatusOK, "Metrics report", report)
}

// GetErrorStats handles GET /v1/errors
func (h *MetricsHandler) GetErrorStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"statistics": h.errors.Statistics(),
	}
	if r.URL.Query().Get("records") == "true" {
		payload["records"] = h.errors.Records()
	}

	response.Success(w, http.StatusOK, "Error statistics", payload)
}

// GetEvents handles GET /v1/events
func (h *MetricsHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	history := h.events.History()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	response.Success(w, http.StatusOK, "Event history", history)
}
