package v1

import (
	"github.com/go-chi/chi/v5"

	"github.com/paybridge/paybridge/handler"
)

// Handlers groups the handlers the versioned API mounts.
type Handlers struct {
	Payment   *handler.PaymentHandler
	Providers *handler.ProvidersHandler
	Metrics   *handler.MetricsHandler
}

// Routes registers all API routes
func Routes(r chi.Router, h *Handlers) {
	// Payment routes. No provider in the URL: the orchestrator selects one
	// and fails over when it has to.
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.Payment.ProcessPayment)
		r.Get("/{paymentIntentID}/state", h.Payment.GetPaymentState)
	})

	r.Post("/refunds", h.Payment.CreateRefund)

	// Provider registry routes
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.Providers.ListProviders)
		r.Get("/health", h.Providers.GetHealth)
		r.Post("/health/check", h.Providers.TriggerHealthCheck)
		r.Get("/load", h.Providers.GetLoad)
	})

	// Observability routes
	r.Get("/metrics", h.Metrics.GetMetrics)
	r.Get("/errors", h.Metrics.GetErrorStats)
	r.Get("/events", h.Metrics.GetEvents)
}
