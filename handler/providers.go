package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// ProvidersHandler serves provider inventory and health endpoints
type ProvidersHandler struct {
	registry     *provider.Registry
	orchestrator *provider.Orchestrator
}

// NewProvidersHandler creates a new providers handler
func NewProvidersHandler(registry *provider.Registry, orchestrator *provider.Orchestrator) *ProvidersHandler {
	return &ProvidersHandler{
		registry:     registry,
		orchestrator: orchestrator,
	}
}

// providerInfo is the public view of a registered provider
type providerInfo struct {
	Name           string                       `json:"name"`
	Initialized    bool                         `json:"initialized"`
	PaymentMethods []provider.PaymentMethodType `json:"paymentMethods"`
	Currencies     []string                     `json:"currencies"`
	Features       provider.Features            `json:"features"`
	Health         *provider.HealthStatus       `json:"health,omitempty"`
	RequiredConfig []provider.ConfigField       `json:"requiredConfig,omitempty"`
}

// ListProviders handles GET /v1/providers
func (h *ProvidersHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.GetAll()
	infos := make([]providerInfo, 0, len(providers))
	for _, p := range providers {
		info := providerInfo{
			Name:           p.Name(),
			Initialized:    p.IsInitialized(),
			PaymentMethods: p.SupportedPaymentMethods(),
			Currencies:     p.SupportedCurrencies(),
			Features:       p.Features(),
		}
		if status, err := h.registry.GetHealth(p.Name()); err == nil {
			info.Health = &status
		}
		if r.URL.Query().Get("config") == "true" {
			info.RequiredConfig = p.GetRequiredConfig(r.URL.Query().Get("environment"))
		}
		infos = append(infos, info)
	}

	response.Success(w, http.StatusOK, "Registered providers", infos)
}

// GetHealth handles GET /v1/providers/health
func (h *ProvidersHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := make(map[string]provider.HealthStatus)
	for _, p := range h.registry.GetAll() {
		if status, err := h.registry.GetHealth(p.Name()); err == nil {
			health[p.Name()] = status
		}
	}

	response.Success(w, http.StatusOK, "Provider health", health)
}

// TriggerHealthCheck handles POST /v1/providers/health/check
func (h *ProvidersHandler) TriggerHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results := h.registry.PerformHealthCheck(ctx)
	response.Success(w, http.StatusOK, "Health check completed", results)
}

// GetLoad handles GET /v1/providers/load
func (h *ProvidersHandler) GetLoad(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Load distribution", h.orchestrator.DistributeLoad())
}
