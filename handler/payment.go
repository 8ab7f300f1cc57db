package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// PaymentRequestBody is the API payload for creating a payment. It carries
// the payment parameters plus optional routing hints.
type PaymentRequestBody struct {
	provider.PaymentRequest
	PreferredProvider string                     `json:"preferredProvider,omitempty"`
	SubscriptionID    string                     `json:"subscriptionId,omitempty"`
	PaymentMethod     provider.PaymentMethodType `json:"paymentMethod,omitempty"`
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	orchestrator *provider.Orchestrator
	stages       *provider.Validator
	registry     *provider.Registry
	validate     *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(orchestrator *provider.Orchestrator, stages *provider.Validator, registry *provider.Registry, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		stages:       stages,
		registry:     registry,
		validate:     validate,
	}
}

// ProcessPayment handles POST /v1/payments
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var body PaymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(body.PaymentRequest); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	pctx := buildPaymentContext(body)

	// run the staged checks against the provider the router would pick
	target, _ := h.orchestrator.SelectOptimalProvider(pctx, provider.SelectionOptions{
		PreferLowestCost: true,
		Exclude:          nil,
	})
	validation := h.stages.ValidatePaymentRequest(body.PaymentRequest, pctx, target)
	if !validation.Valid {
		response.WriteJSON(w, http.StatusUnprocessableEntity, response.Response{
			Code:    http.StatusUnprocessableEntity,
			Success: false,
			Message: "Payment request rejected by validation",
			Data:    validation,
		})
		return
	}

	result, err := h.orchestrator.ProcessPaymentWithFailover(ctx, pctx, body.PaymentRequest)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Payment failed", err)
		return
	}

	payload := map[string]any{
		"result":   result,
		"warnings": validation.Warnings,
	}
	if !result.Success {
		response.WriteJSON(w, http.StatusPaymentRequired, response.Response{
			Code:    http.StatusPaymentRequired,
			Success: false,
			Message: "Payment could not be completed",
			Data:    payload,
		})
		return
	}

	response.Success(w, http.StatusOK, "Payment processed", payload)
}

// GetPaymentState handles GET /v1/payments/{paymentIntentID}/state
func (h *PaymentHandler) GetPaymentState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	paymentIntentID := chi.URLParam(r, "paymentIntentID")
	if paymentIntentID == "" {
		response.Error(w, http.StatusBadRequest, "paymentIntentID is required", nil)
		return
	}

	state, err := h.orchestrator.GetPaymentState(ctx, paymentIntentID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load payment state", err)
		return
	}
	if state == nil {
		response.Error(w, http.StatusNotFound, "Payment state not found", nil)
		return
	}

	response.Success(w, http.StatusOK, "Payment state", state)
}

// RefundRequestBody is the API payload for creating a refund
type RefundRequestBody struct {
	Provider        string  `json:"provider" validate:"required"`
	PaymentIntentID string  `json:"paymentIntentId" validate:"required"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// CreateRefund handles POST /v1/refunds
func (h *PaymentHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var body RefundRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	p, err := h.registry.Get(body.Provider)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown provider", err)
		return
	}

	refund, err := p.CreateRefund(ctx, provider.RefundRequest{
		PaymentIntentID: body.PaymentIntentID,
		Amount:          body.Amount,
		Currency:        body.Currency,
		Reason:          body.Reason,
	})
	if err != nil {
		status := http.StatusBadGateway
		if pe, ok := provider.AsProviderError(err); ok && pe.Code == provider.ErrProviderNotFound {
			status = http.StatusNotFound
		}
		response.Error(w, status, "Refund failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Refund created", refund)
}

// buildPaymentContext derives the routing context from the API payload
func buildPaymentContext(body PaymentRequestBody) provider.PaymentContext {
	pctx := provider.PaymentContext{
		UserID:            body.CustomerID,
		Currency:          strings.ToUpper(body.Currency),
		Amount:            provider.ToMinorUnits(body.Amount, body.Currency),
		PaymentMethod:     body.PaymentMethod,
		SubscriptionID:    body.SubscriptionID,
		PreferredProvider: body.PreferredProvider,
		Metadata:          body.Metadata,
	}
	if pctx.PaymentMethod == "" {
		pctx.PaymentMethod = body.PaymentMethodType
	}
	if pctx.PaymentMethod == "" && body.Card != nil {
		pctx.PaymentMethod = provider.MethodCard
	}
	if body.BillingAddress != nil {
		pctx.BillingCountry = strings.ToUpper(body.BillingAddress.Country)
	}
	return pctx
}
