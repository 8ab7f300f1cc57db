package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paybridge/paybridge/provider"
)

const (
	providerName = "paypal"

	apiSandboxURL    = "https://api-m.sandbox.paypal.com"
	apiProductionURL = "https://api-m.paypal.com"

	endpointToken         = "/v1/oauth2/token"
	endpointOrders        = "/v2/checkout/orders"
	endpointOrderCapture  = "/v2/checkout/orders/%s/capture"
	endpointOrderGet      = "/v2/checkout/orders/%s"
	endpointCaptureRefund = "/v2/payments/captures/%s/refund"
	endpointRefundGet     = "/v2/payments/refunds/%s"
	endpointVaultTokens   = "/v3/vault/payment-tokens"
	endpointVaultToken    = "/v3/vault/payment-tokens/%s"
	endpointVerifyWebhook = "/v1/notifications/verify-webhook-signature"

	// PayPal order statuses
	statusCreated             = "CREATED"
	statusApproved            = "APPROVED"
	statusCompleted           = "COMPLETED"
	statusVoided              = "VOIDED"
	statusPayerActionRequired = "PAYER_ACTION_REQUIRED"

	defaultTimeout = 30 * time.Second
)

var supportedCurrencies = []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "SEK", "NOK", "DKK", "MXN", "BRL"}

// PayPalProvider implements the provider.PaymentProvider interface against
// the PayPal REST v2 API.
type PayPalProvider struct {
	clientID     string
	clientSecret string
	webhookID    string
	isProduction bool
	initialized  bool
	client       *provider.ProviderHTTPClient

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewProvider creates a new PayPal payment provider
func NewProvider() provider.PaymentProvider {
	return &PayPalProvider{}
}

// Name returns the provider identity
func (p *PayPalProvider) Name() string {
	return providerName
}

// Initialize sets up the PayPal REST client with OAuth credentials
func (p *PayPalProvider) Initialize(conf map[string]string) error {
	p.clientID = conf["clientId"]
	p.clientSecret = conf["clientSecret"]
	p.webhookID = conf["webhookId"]

	if p.clientID == "" || p.clientSecret == "" {
		return provider.NewProviderError(providerName, provider.ErrProviderConfigInvalid, "clientId and clientSecret are required")
	}

	p.isProduction = conf["environment"] == "production"
	baseURL := apiSandboxURL
	if p.isProduction {
		baseURL = apiProductionURL
	}

	p.client = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(baseURL, defaultTimeout))
	p.initialized = true

	return nil
}

// IsInitialized reports whether Initialize succeeded
func (p *PayPalProvider) IsInitialized() bool {
	return p.initialized
}

// GetRequiredConfig returns the configuration fields required for PayPal
func (p *PayPalProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "clientId",
			Required:    true,
			Type:        "string",
			Description: "PayPal REST application client id",
			MinLength:   20,
		},
		{
			Key:         "clientSecret",
			Required:    true,
			Type:        "string",
			Description: "PayPal REST application client secret",
			MinLength:   20,
		},
		{
			Key:         "webhookId",
			Required:    false,
			Type:        "string",
			Description: "Webhook id used for signature verification",
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment to use (sandbox or production)",
		},
	}
}

// getAccessToken returns a cached OAuth token, refreshing it when it is
// within a minute of expiry.
func (p *PayPalProvider) getAccessToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.accessToken != "" && time.Until(p.tokenExpiry) > time.Minute {
		return p.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	resp, err := p.client.SendForm(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointToken,
		Headers:  map[string]string{"Authorization": "Basic " + basic},
		FormData: map[string]string{"grant_type": "client_credentials"},
	})
	if err != nil {
		return "", p.mapHTTPError(resp, err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := p.client.ParseJSONResponse(resp, &token); err != nil {
		return "", provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed token response", err)
	}
	if token.AccessToken == "" {
		return "", provider.NewProviderError(providerName, provider.ErrProviderConfigInvalid, "authentication with PayPal failed")
	}

	p.accessToken = token.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

// authedJSON sends an authenticated JSON request
func (p *PayPalProvider) authedJSON(ctx context.Context, method, endpoint string, body any, extraHeaders map[string]string) (*provider.HTTPResponse, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	for k, v := range extraHeaders {
		headers[k] = v
	}
	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  headers,
		Body:     body,
	})
	if err != nil {
		return resp, p.mapHTTPError(resp, err)
	}
	return resp, nil
}

// PayPal has no standalone customer resource; buyers are attached to vault
// tokens at tokenization time.

func (p *PayPalProvider) CreateCustomer(ctx context.Context, customer provider.Customer) (*provider.Customer, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal does not expose a standalone customer API")
}

func (p *PayPalProvider) GetCustomer(ctx context.Context, customerID string) (*provider.Customer, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal does not expose a standalone customer API")
}

func (p *PayPalProvider) UpdateCustomer(ctx context.Context, customer provider.Customer) (*provider.Customer, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal does not expose a standalone customer API")
}

func (p *PayPalProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	return provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal does not expose a standalone customer API")
}

// CreatePaymentMethod vaults a card as a reusable payment token
func (p *PayPalProvider) CreatePaymentMethod(ctx context.Context, customerID string, card provider.CardDetails) (*provider.PaymentMethod, error) {
	body := map[string]any{
		"payment_source": map[string]any{
			"card": map[string]any{
				"name":          card.HolderName,
				"number":        card.Number,
				"expiry":        fmt.Sprintf("%04d-%02d", card.ExpireYear, card.ExpireMonth),
				"security_code": card.CVV,
			},
		},
	}
	if customerID != "" {
		body["customer"] = map[string]any{"id": customerID}
	}

	resp, err := p.authedJSON(ctx, http.MethodPost, endpointVaultTokens, body, nil)
	if err != nil {
		return nil, err
	}

	var token vaultToken
	if err := p.client.ParseJSONResponse(resp, &token); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed vault response", err)
	}
	return token.toPaymentMethod(), nil
}

// GetPaymentMethod retrieves a vaulted payment token
func (p *PayPalProvider) GetPaymentMethod(ctx context.Context, methodID string) (*provider.PaymentMethod, error) {
	resp, err := p.authedJSON(ctx, http.MethodGet, fmt.Sprintf(endpointVaultToken, methodID), nil, nil)
	if err != nil {
		return nil, err
	}
	var token vaultToken
	if err := p.client.ParseJSONResponse(resp, &token); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed vault response", err)
	}
	return token.toPaymentMethod(), nil
}

// GetCustomerPaymentMethods lists the vaulted tokens of a customer
func (p *PayPalProvider) GetCustomerPaymentMethods(ctx context.Context, customerID string) ([]provider.PaymentMethod, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:      http.MethodGet,
		Endpoint:    endpointVaultTokens,
		Headers:     map[string]string{"Authorization": "Bearer " + token},
		QueryParams: map[string]string{"customer_id": customerID},
	})
	if err != nil {
		return nil, p.mapHTTPError(resp, err)
	}

	var list struct {
		PaymentTokens []vaultToken `json:"payment_tokens"`
	}
	if err := p.client.ParseJSONResponse(resp, &list); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed vault response", err)
	}

	methods := make([]provider.PaymentMethod, 0, len(list.PaymentTokens))
	for _, t := range list.PaymentTokens {
		methods = append(methods, *t.toPaymentMethod())
	}
	return methods, nil
}

// AttachPaymentMethod is not supported; PayPal binds tokens to a customer
// at vaulting time.
func (p *PayPalProvider) AttachPaymentMethod(ctx context.Context, methodID, customerID string) (*provider.PaymentMethod, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal vault tokens are bound to a customer at creation")
}

// DetachPaymentMethod deletes a vaulted payment token
func (p *PayPalProvider) DetachPaymentMethod(ctx context.Context, methodID string) error {
	_, err := p.authedJSON(ctx, http.MethodDelete, fmt.Sprintf(endpointVaultToken, methodID), nil, nil)
	return err
}

// CreatePaymentIntent creates a PayPal order and, when a vaulted payment
// method is supplied, captures it immediately. The idempotency key is sent
// as PayPal-Request-Id so retried attempts cannot double-charge.
func (p *PayPalProvider) CreatePaymentIntent(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResult, error) {
	if !p.initialized {
		return nil, provider.NewProviderError(providerName, provider.ErrProviderNotInitialized, "provider is not initialized")
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]any{
					"currency_code": strings.ToUpper(request.Currency),
					"value":         formatAmount(request.Amount, request.Currency),
				},
				"description": request.Description,
			},
		},
	}
	if request.PaymentMethodID != "" {
		body["payment_source"] = map[string]any{
			"token": map[string]any{"id": request.PaymentMethodID, "type": "PAYMENT_METHOD_TOKEN"},
		}
	} else if request.Card != nil {
		body["payment_source"] = map[string]any{
			"card": map[string]any{
				"name":          request.Card.HolderName,
				"number":        request.Card.Number,
				"expiry":        fmt.Sprintf("%04d-%02d", request.Card.ExpireYear, request.Card.ExpireMonth),
				"security_code": request.Card.CVV,
			},
		}
	}

	var headers map[string]string
	if request.IdempotencyKey != "" {
		headers = map[string]string{"PayPal-Request-Id": request.IdempotencyKey}
	}

	resp, err := p.authedJSON(ctx, http.MethodPost, endpointOrders, body, headers)
	if err != nil {
		return p.failedResult(err), nil
	}

	var order paypalOrder
	if err := p.client.ParseJSONResponse(resp, &order); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed order response", err)
	}

	// an order with a payment source settles synchronously; without one the
	// buyer has to approve it first
	if order.Status == statusCreated && body["payment_source"] != nil {
		return p.captureOrder(ctx, order.ID)
	}
	return p.resultFromOrder(&order), nil
}

// ConfirmPaymentIntent captures an approved order
func (p *PayPalProvider) ConfirmPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	return p.captureOrder(ctx, intentID)
}

// CapturePaymentIntent captures an approved order
func (p *PayPalProvider) CapturePaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	return p.captureOrder(ctx, intentID)
}

// CancelPaymentIntent is not supported; unapproved PayPal orders expire on
// their own and cannot be voided through the orders API.
func (p *PayPalProvider) CancelPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal orders expire automatically and cannot be cancelled")
}

// GetPaymentIntent retrieves the current state of an order
func (p *PayPalProvider) GetPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentIntent, error) {
	resp, err := p.authedJSON(ctx, http.MethodGet, fmt.Sprintf(endpointOrderGet, intentID), nil, nil)
	if err != nil {
		return nil, err
	}
	var order paypalOrder
	if err := p.client.ParseJSONResponse(resp, &order); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed order response", err)
	}
	return order.toIntent(), nil
}

func (p *PayPalProvider) captureOrder(ctx context.Context, orderID string) (*provider.PaymentResult, error) {
	resp, err := p.authedJSON(ctx, http.MethodPost, fmt.Sprintf(endpointOrderCapture, orderID), struct{}{}, nil)
	if err != nil {
		return p.failedResult(err), nil
	}
	var order paypalOrder
	if err := p.client.ParseJSONResponse(resp, &order); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed capture response", err)
	}
	return p.resultFromOrder(&order), nil
}

// CreateCheckoutSession creates an order the buyer approves on a hosted
// PayPal page; the approve link is the session URL.
func (p *PayPalProvider) CreateCheckoutSession(ctx context.Context, request provider.CheckoutRequest) (*provider.CheckoutSession, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]any{
					"currency_code": strings.ToUpper(request.Currency),
					"value":         formatAmount(request.Amount, request.Currency),
				},
			},
		},
		"application_context": map[string]any{
			"return_url": request.SuccessURL,
			"cancel_url": request.CancelURL,
		},
	}

	resp, err := p.authedJSON(ctx, http.MethodPost, endpointOrders, body, nil)
	if err != nil {
		return nil, err
	}
	var order paypalOrder
	if err := p.client.ParseJSONResponse(resp, &order); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed order response", err)
	}

	return &provider.CheckoutSession{
		ID:        order.ID,
		Provider:  providerName,
		URL:       order.link("approve"),
		Status:    order.Status,
		Amount:    request.Amount,
		Currency:  strings.ToUpper(request.Currency),
		ExpiresAt: time.Now().Add(3 * time.Hour), // PayPal order approval window
	}, nil
}

// GetCheckoutSession retrieves the order backing a checkout session
func (p *PayPalProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	intent, err := p.GetPaymentIntent(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &provider.CheckoutSession{
		ID:       intent.ID,
		Provider: providerName,
		Status:   string(intent.Status),
		Amount:   intent.Amount,
		Currency: intent.Currency,
	}, nil
}

// ExpireCheckoutSession is not supported; approval links lapse on their own
func (p *PayPalProvider) ExpireCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	return nil, provider.NewProviderError(providerName, provider.ErrFeatureNotSupported, "paypal approval links expire automatically")
}

// CreateRefund refunds a captured payment, partially when an amount is given
func (p *PayPalProvider) CreateRefund(ctx context.Context, request provider.RefundRequest) (*provider.Refund, error) {
	body := map[string]any{}
	if request.Amount > 0 {
		body["amount"] = map[string]any{
			"currency_code": strings.ToUpper(request.Currency),
			"value":         formatAmount(request.Amount, request.Currency),
		}
	}
	if request.Reason != "" {
		body["note_to_payer"] = request.Reason
	}

	resp, err := p.authedJSON(ctx, http.MethodPost, fmt.Sprintf(endpointCaptureRefund, request.PaymentIntentID), body, nil)
	if err != nil {
		return nil, err
	}

	var refund paypalRefund
	if err := p.client.ParseJSONResponse(resp, &refund); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed refund response", err)
	}
	out := refund.toRefund()
	out.PaymentIntentID = request.PaymentIntentID
	return out, nil
}

// GetRefund retrieves a refund
func (p *PayPalProvider) GetRefund(ctx context.Context, refundID string) (*provider.Refund, error) {
	resp, err := p.authedJSON(ctx, http.MethodGet, fmt.Sprintf(endpointRefundGet, refundID), nil, nil)
	if err != nil {
		return nil, err
	}
	var refund paypalRefund
	if err := p.client.ParseJSONResponse(resp, &refund); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrNetworkError, "malformed refund response", err)
	}
	return refund.toRefund(), nil
}

// webhookSignature carries the PayPal transmission headers the HTTP layer
// packs into the signature argument as JSON.
type webhookSignature struct {
	TransmissionID   string `json:"transmissionId"`
	TransmissionTime string `json:"transmissionTime"`
	TransmissionSig  string `json:"transmissionSig"`
	CertURL          string `json:"certUrl"`
	AuthAlgo         string `json:"authAlgo"`
}

// ConstructWebhookEvent verifies the event through PayPal's verification
// endpoint and fails closed on any mismatch.
func (p *PayPalProvider) ConstructWebhookEvent(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if p.webhookID == "" {
		return nil, provider.NewProviderError(providerName, provider.ErrWebhookSignatureInvalid, "webhook id is not configured")
	}

	var sig webhookSignature
	if err := json.Unmarshal([]byte(signature), &sig); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "malformed webhook signature headers", err)
	}

	verifyBody := map[string]any{
		"transmission_id":   sig.TransmissionID,
		"transmission_time": sig.TransmissionTime,
		"transmission_sig":  sig.TransmissionSig,
		"cert_url":          sig.CertURL,
		"auth_algo":         sig.AuthAlgo,
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	resp, err := p.authedJSON(context.Background(), http.MethodPost, endpointVerifyWebhook, verifyBody, nil)
	if err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "webhook verification request failed", err)
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.client.ParseJSONResponse(resp, &verification); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "malformed verification response", err)
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, provider.NewProviderError(providerName, provider.ErrWebhookSignatureInvalid, "webhook signature verification failed")
	}

	var event struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		CreateTime time.Time       `json:"create_time"`
		Resource   json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "malformed webhook payload", err)
	}

	return &provider.WebhookEvent{
		ID:        event.ID,
		Type:      event.EventType,
		Provider:  providerName,
		CreatedAt: event.CreateTime,
		Data:      event.Resource,
	}, nil
}

// HandleWebhookEvent acknowledges verified events; unknown types are dropped
func (p *PayPalProvider) HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) error {
	switch event.Type {
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED",
		"PAYMENT.CAPTURE.REFUNDED", "CHECKOUT.ORDER.APPROVED",
		"CHECKOUT.ORDER.COMPLETED":
		return nil
	default:
		return nil
	}
}

// HealthCheck probes the API by fetching an OAuth token
func (p *PayPalProvider) HealthCheck(ctx context.Context) error {
	if !p.initialized {
		return provider.NewProviderError(providerName, provider.ErrProviderNotInitialized, "provider is not initialized")
	}
	_, err := p.getAccessToken(ctx)
	return err
}

// SupportedPaymentMethods lists the method types this adapter accepts
func (p *PayPalProvider) SupportedPaymentMethods() []provider.PaymentMethodType {
	return []provider.PaymentMethodType{provider.MethodPayPal, provider.MethodCard, provider.MethodWallet}
}

// SupportedCurrencies lists the settlement currencies this adapter accepts
func (p *PayPalProvider) SupportedCurrencies() []string {
	return supportedCurrencies
}

// Features describes optional capabilities
func (p *PayPalProvider) Features() provider.Features {
	return provider.Features{
		"3d_secure":       true,
		"fraud_detection": false,
		"recurring":       false,
		"partial_refund":  true,
		"hosted_checkout": true,
	}
}

// resultFromOrder maps an order to a result by status
func (p *PayPalProvider) resultFromOrder(order *paypalOrder) *provider.PaymentResult {
	result := &provider.PaymentResult{
		Provider:      providerName,
		PaymentIntent: order.toIntent(),
		TransactionID: order.captureID(),
	}
	switch order.Status {
	case statusCompleted:
		result.Success = true
	case statusCreated, statusApproved, statusPayerActionRequired:
		result.RequiresAction = true
		result.RedirectURL = order.link("payer-action")
		if result.RedirectURL == "" {
			result.RedirectURL = order.link("approve")
		}
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentFailed,
			Message: "order requires buyer approval",
		}
	default:
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentDeclined,
			Message: fmt.Sprintf("order in status %s", order.Status),
		}
	}
	return result
}

// failedResult wraps an API error into an unsuccessful result
func (p *PayPalProvider) failedResult(err error) *provider.PaymentResult {
	result := &provider.PaymentResult{Success: false, Provider: providerName}
	if pe, ok := provider.AsProviderError(err); ok {
		result.Error = &provider.ResultError{
			Code:      pe.Code,
			Message:   pe.Message,
			Retryable: pe.Retryable,
		}
	} else {
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentFailed,
			Message: err.Error(),
		}
	}
	return result
}

// mapHTTPError translates transport and REST errors into typed errors
func (p *PayPalProvider) mapHTTPError(resp *provider.HTTPResponse, err error) error {
	if resp == nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout") {
			return provider.WrapProviderError(providerName, provider.ErrTimeoutError, "request to provider timed out", err)
		}
		return provider.WrapProviderError(providerName, provider.ErrNetworkError, err.Error(), err)
	}

	var apiErr struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &apiErr)
	message := apiErr.Message
	if message == "" {
		message = resp.RawBody
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.NewProviderError(providerName, provider.ErrProviderConfigInvalid, "invalid API credentials")
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.NewProviderError(providerName, provider.ErrProviderRateLimited, "rate limited by provider")
	case resp.StatusCode == http.StatusNotFound:
		return provider.NewProviderError(providerName, provider.ErrProviderNotFound, message)
	case resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(apiErr.Name, "UNPROCESSABLE"):
		return provider.NewProviderError(providerName, provider.ErrPaymentDeclined, message)
	case resp.StatusCode >= http.StatusInternalServerError:
		return provider.NewProviderError(providerName, provider.ErrProviderUnavailable, message)
	default:
		return provider.NewProviderError(providerName, provider.ErrPaymentFailed, message)
	}
}

// paypalOrder is the subset of the orders API response the adapter reads
type paypalOrder struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CreateTime    time.Time `json:"create_time"`
	PurchaseUnits []struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (o *paypalOrder) link(rel string) string {
	for _, l := range o.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func (o *paypalOrder) captureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			return c.ID
		}
	}
	return ""
}

func (o *paypalOrder) toIntent() *provider.PaymentIntent {
	intent := &provider.PaymentIntent{
		ID:        o.ID,
		Provider:  providerName,
		Status:    mapOrderStatus(o.Status),
		CreatedAt: o.CreateTime,
	}
	if len(o.PurchaseUnits) > 0 {
		intent.Currency = o.PurchaseUnits[0].Amount.CurrencyCode
		fmt.Sscanf(o.PurchaseUnits[0].Amount.Value, "%f", &intent.Amount)
	}
	return intent
}

func mapOrderStatus(status string) provider.PaymentStatus {
	switch status {
	case statusCompleted:
		return provider.StatusSucceeded
	case statusCreated, statusApproved, statusPayerActionRequired:
		return provider.StatusRequiresAction
	case statusVoided:
		return provider.StatusCancelled
	default:
		return provider.StatusPending
	}
}

// paypalRefund is the subset of the refund response the adapter reads
type paypalRefund struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	CreateTime time.Time `json:"create_time"`
	Amount     struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
	NoteToPayer string `json:"note_to_payer"`
}

func (r *paypalRefund) toRefund() *provider.Refund {
	out := &provider.Refund{
		ID:        r.ID,
		Provider:  providerName,
		Currency:  r.Amount.CurrencyCode,
		Status:    r.Status,
		Reason:    r.NoteToPayer,
		CreatedAt: r.CreateTime,
	}
	fmt.Sscanf(r.Amount.Value, "%f", &out.Amount)
	return out
}

// vaultToken is the subset of the vault API response the adapter reads
type vaultToken struct {
	ID       string `json:"id"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	PaymentSource struct {
		Card struct {
			Brand      string `json:"brand"`
			LastDigits string `json:"last_digits"`
			Expiry     string `json:"expiry"` // YYYY-MM
		} `json:"card"`
	} `json:"payment_source"`
}

func (t *vaultToken) toPaymentMethod() *provider.PaymentMethod {
	pm := &provider.PaymentMethod{
		ID:         t.ID,
		Type:       provider.MethodCard,
		CustomerID: t.Customer.ID,
		Brand:      t.PaymentSource.Card.Brand,
		Last4:      t.PaymentSource.Card.LastDigits,
	}
	if parts := strings.SplitN(t.PaymentSource.Card.Expiry, "-", 2); len(parts) == 2 {
		fmt.Sscanf(parts[0], "%d", &pm.ExpireYear)
		fmt.Sscanf(parts[1], "%d", &pm.ExpireMonth)
	}
	return pm
}

// formatAmount renders a major-unit amount the way PayPal expects
func formatAmount(amount float64, currency string) string {
	minor := provider.ToMinorUnits(amount, currency)
	major := provider.FromMinorUnits(minor, currency)
	if major == float64(int64(major)) && provider.ToMinorUnits(1, currency) == 1 {
		return fmt.Sprintf("%.0f", major)
	}
	return fmt.Sprintf("%.2f", major)
}
