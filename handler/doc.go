// Package handler provides HTTP request handlers for the PayBridge payment
// abstraction layer.
//
// The handlers bridge the REST API with the provider registry and the
// payment orchestrator. Routing a payment never names a provider in the
// URL; the orchestrator picks one and fails over when it has to.
//
// # Core Handlers
//
//   - PaymentHandler: payment processing, state lookup and refunds
//   - ProvidersHandler: registry listing, health and load reporting
//   - MetricsHandler: aggregated metrics, error statistics, event history
//   - WebhookHandler: provider webhook verification and dispatch
//   - HealthHandler: system-level health for load balancers and probes
//
// # Payment Handler
//
// The PaymentHandler manages all payment-related HTTP requests:
//
//	paymentHandler := handler.NewPaymentHandler(orchestrator, stages, registry, validate)
//
//	// Routes
//	r.Post("/v1/payments", paymentHandler.ProcessPayment)
//	r.Get("/v1/payments/{paymentIntentID}/state", paymentHandler.GetPaymentState)
//	r.Post("/v1/refunds", paymentHandler.CreateRefund)
//
// A payment request may carry a preferredProvider hint; the orchestrator
// honors it when that provider is healthy and falls back otherwise:
//
//	{
//	  "amount": 100.50,
//	  "currency": "USD",
//	  "customer": {"email": "jane@example.com"},
//	  "preferredProvider": "stripe"
//	}
//
// # Request Validation
//
// Structural validation runs first via struct tags, then the staged
// request validator checks amount bounds, currency and payment method
// support against the selected provider. Stage failures come back as
// 422 with the per-stage results so clients can see which check failed.
//
// # Webhooks
//
// Webhook deliveries are verified against the signature material each
// provider sends, deduplicated by event ID, and re-published on the
// internal event bus:
//
//	r.Post("/webhooks/{provider}", webhookHandler.HandleWebhook)
//
// # Error Handling
//
// All handlers use the shared response envelope:
//
//	// Success response
//	{
//	  "success": true,
//	  "message": "Payment processed",
//	  "data": {"paymentIntentId": "pi_123", "status": "succeeded"}
//	}
//
//	// Error response
//	{
//	  "success": false,
//	  "message": "Payment failed",
//	  "error": {"code": "PAYMENT_DECLINED", "message": "card was declined"}
//	}
package handler
