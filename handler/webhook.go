package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paybridge/paybridge/infra/logger"
	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// WebhookHandler receives provider webhook deliveries
type WebhookHandler struct {
	dispatcher *provider.WebhookDispatcher
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher *provider.WebhookDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// HandleWebhook handles POST /webhooks/{provider}. The response is always
// 2xx for verified events so providers stop redelivering them; signature
// failures return 400.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read payload", err)
		return
	}

	signature := extractSignature(providerName, r)

	event, err := h.dispatcher.Dispatch(r.Context(), providerName, payload, signature)
	if err != nil {
		logger.Warn("Webhook rejected", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error()},
		})
		status := http.StatusBadRequest
		if pe, ok := provider.AsProviderError(err); ok && pe.Code == provider.ErrProviderNotFound {
			status = http.StatusNotFound
		}
		response.Error(w, status, "Webhook rejected", err)
		return
	}

	response.Success(w, http.StatusOK, "Webhook accepted", map[string]string{
		"eventId":   event.ID,
		"eventType": event.Type,
	})
}

// extractSignature pulls the provider-specific signature material from the
// request headers. PayPal verification needs the full transmission header
// set, so it is packed as JSON.
func extractSignature(providerName string, r *http.Request) string {
	switch providerName {
	case "stripe":
		return r.Header.Get("Stripe-Signature")
	case "paypal":
		sig, _ := json.Marshal(map[string]string{
			"transmissionId":   r.Header.Get("Paypal-Transmission-Id"),
			"transmissionTime": r.Header.Get("Paypal-Transmission-Time"),
			"transmissionSig":  r.Header.Get("Paypal-Transmission-Sig"),
			"certUrl":          r.Header.Get("Paypal-Cert-Url"),
			"authAlgo":         r.Header.Get("Paypal-Auth-Algo"),
		})
		return string(sig)
	default:
		return r.Header.Get("X-Signature")
	}
}
