package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/paybridge/paybridge/provider"
)

const providerName = "stripe"

var supportedCurrencies = []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "SEK", "NOK", "DKK"}

// StripeProvider implements the provider.PaymentProvider interface on the
// official Stripe SDK.
type StripeProvider struct {
	client        *client.API
	secretKey     string
	publicKey     string
	webhookSecret string
	isProduction  bool
	initialized   bool
}

// NewProvider creates a new Stripe payment provider
func NewProvider() provider.PaymentProvider {
	return &StripeProvider{}
}

// Name returns the provider identity
func (p *StripeProvider) Name() string {
	return providerName
}

// Initialize sets up the Stripe client with authentication credentials
func (p *StripeProvider) Initialize(conf map[string]string) error {
	p.secretKey = conf["secretKey"]
	p.publicKey = conf["publicKey"]
	p.webhookSecret = conf["webhookSecret"]

	if p.secretKey == "" {
		return provider.NewProviderError(providerName, provider.ErrProviderConfigInvalid, "secretKey is required")
	}

	p.isProduction = conf["environment"] == "production"

	sc := &client.API{}
	sc.Init(p.secretKey, nil)
	p.client = sc
	p.initialized = true

	return nil
}

// IsInitialized reports whether Initialize succeeded
func (p *StripeProvider) IsInitialized() bool {
	return p.initialized
}

// GetRequiredConfig returns the configuration fields required for Stripe
func (p *StripeProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	keyPattern := `^sk_test_`
	if environment == "production" {
		keyPattern = `^sk_live_`
	}
	return []provider.ConfigField{
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Stripe API secret key",
			Pattern:     keyPattern,
			MinLength:   20,
		},
		{
			Key:         "publicKey",
			Required:    false,
			Type:        "string",
			Description: "Stripe publishable key for client-side tokenization",
		},
		{
			Key:         "webhookSecret",
			Required:    false,
			Type:        "string",
			Description: "Signing secret for webhook verification",
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment to use (sandbox or production)",
		},
	}
}

// CreateCustomer creates a Stripe customer
func (p *StripeProvider) CreateCustomer(ctx context.Context, customer provider.Customer) (*provider.Customer, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(fullName(customer)),
		Email: stripe.String(customer.Email),
	}
	params.Context = ctx
	if customer.PhoneNumber != "" {
		params.Phone = stripe.String(customer.PhoneNumber)
	}
	if customer.Address != nil {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(customer.Address.Line1),
			Line2:      stripe.String(customer.Address.Line2),
			City:       stripe.String(customer.Address.City),
			State:      stripe.String(customer.Address.State),
			PostalCode: stripe.String(customer.Address.PostalCode),
			Country:    stripe.String(customer.Address.Country),
		}
	}

	c, err := p.client.Customers.New(params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCustomer(c), nil
}

// GetCustomer retrieves a Stripe customer by id
func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*provider.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := p.client.Customers.Get(customerID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCustomer(c), nil
}

// UpdateCustomer updates name, email and phone on a Stripe customer
func (p *StripeProvider) UpdateCustomer(ctx context.Context, customer provider.Customer) (*provider.Customer, error) {
	if customer.ID == "" {
		return nil, provider.NewProviderError(providerName, provider.ErrCustomerNotFound, "customer id is required")
	}
	params := &stripe.CustomerParams{
		Name:  stripe.String(fullName(customer)),
		Email: stripe.String(customer.Email),
	}
	params.Context = ctx
	if customer.PhoneNumber != "" {
		params.Phone = stripe.String(customer.PhoneNumber)
	}
	c, err := p.client.Customers.Update(customer.ID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCustomer(c), nil
}

// DeleteCustomer removes a Stripe customer
func (p *StripeProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := p.client.Customers.Del(customerID, params); err != nil {
		return p.mapError(err)
	}
	return nil
}

// CreatePaymentMethod tokenizes a raw card into a Stripe payment method
func (p *StripeProvider) CreatePaymentMethod(ctx context.Context, customerID string, card provider.CardDetails) (*provider.PaymentMethod, error) {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String("card"),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(int64(card.ExpireMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpireYear)),
			CVC:      stripe.String(card.CVV),
		},
	}
	params.Context = ctx

	pm, err := p.client.PaymentMethods.New(params)
	if err != nil {
		return nil, p.mapError(err)
	}
	if customerID != "" {
		return p.AttachPaymentMethod(ctx, pm.ID, customerID)
	}
	return mapPaymentMethod(pm), nil
}

// GetPaymentMethod retrieves a stored payment method
func (p *StripeProvider) GetPaymentMethod(ctx context.Context, methodID string) (*provider.PaymentMethod, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := p.client.PaymentMethods.Get(methodID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapPaymentMethod(pm), nil
}

// GetCustomerPaymentMethods lists the card payment methods of a customer
func (p *StripeProvider) GetCustomerPaymentMethods(ctx context.Context, customerID string) ([]provider.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}
	params.Context = ctx

	var methods []provider.PaymentMethod
	iter := p.client.PaymentMethods.List(params)
	for iter.Next() {
		methods = append(methods, *mapPaymentMethod(iter.PaymentMethod()))
	}
	if err := iter.Err(); err != nil {
		return nil, p.mapError(err)
	}
	return methods, nil
}

// AttachPaymentMethod attaches a payment method to a customer
func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, methodID, customerID string) (*provider.PaymentMethod, error) {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	pm, err := p.client.PaymentMethods.Attach(methodID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapPaymentMethod(pm), nil
}

// DetachPaymentMethod detaches a payment method from its customer
func (p *StripeProvider) DetachPaymentMethod(ctx context.Context, methodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := p.client.PaymentMethods.Detach(methodID, params); err != nil {
		return p.mapError(err)
	}
	return nil
}

// CreatePaymentIntent creates and confirms a payment intent. The caller's
// idempotency key is forwarded so a retried attempt cannot double-charge.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResult, error) {
	if !p.initialized {
		return nil, provider.NewProviderError(providerName, provider.ErrProviderNotInitialized, "provider is not initialized")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(provider.ToMinorUnits(request.Amount, request.Currency)),
		Currency: stripe.String(request.Currency),
		Customer: stripe.String(request.CustomerID),
		Confirm:  stripe.Bool(true),
	}
	params.Context = ctx
	if request.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(request.PaymentMethodID)
		params.OffSession = stripe.Bool(true)
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		}
	}
	if request.Description != "" {
		params.Description = stripe.String(request.Description)
	}
	if request.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(request.IdempotencyKey)
	}
	if len(request.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(request.Metadata))
		for k, v := range request.Metadata {
			params.Metadata[k] = v
		}
	}

	pi, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return p.failedResult(err), nil
	}
	return p.resultFromIntent(pi), nil
}

// ConfirmPaymentIntent confirms a previously created payment intent
func (p *StripeProvider) ConfirmPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return p.failedResult(err), nil
	}
	return p.resultFromIntent(pi), nil
}

// CapturePaymentIntent captures an authorized payment intent
func (p *StripeProvider) CapturePaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return p.failedResult(err), nil
	}
	return p.resultFromIntent(pi), nil
}

// CancelPaymentIntent cancels a payment intent
func (p *StripeProvider) CancelPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentResult, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("requested_by_customer"),
	}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return p.failedResult(err), nil
	}
	return p.resultFromIntent(pi), nil
}

// GetPaymentIntent retrieves the current state of a payment intent
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapIntent(pi), nil
}

// CreateCheckoutSession creates a hosted checkout page
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, request provider.CheckoutRequest) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(request.SuccessURL),
		CancelURL:  stripe.String(request.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(request.Currency),
					UnitAmount: stripe.Int64(provider.ToMinorUnits(request.Amount, request.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Payment"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if request.CustomerID != "" {
		params.Customer = stripe.String(request.CustomerID)
	}
	if len(request.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(request.Metadata))
		for k, v := range request.Metadata {
			params.Metadata[k] = v
		}
	}

	s, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCheckoutSession(s, request.Currency), nil
}

// GetCheckoutSession retrieves a checkout session
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCheckoutSession(s, ""), nil
}

// ExpireCheckoutSession expires an open checkout session
func (p *StripeProvider) ExpireCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	s, err := p.client.CheckoutSessions.Expire(sessionID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapCheckoutSession(s, ""), nil
}

// CreateRefund refunds a payment intent, partially when an amount is given
func (p *StripeProvider) CreateRefund(ctx context.Context, request provider.RefundRequest) (*provider.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(request.PaymentIntentID),
	}
	params.Context = ctx
	if request.Amount > 0 {
		params.Amount = stripe.Int64(provider.ToMinorUnits(request.Amount, request.Currency))
	}
	if request.Reason != "" {
		params.Reason = stripe.String(request.Reason)
	}

	r, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapRefund(r), nil
}

// GetRefund retrieves a refund
func (p *StripeProvider) GetRefund(ctx context.Context, refundID string) (*provider.Refund, error) {
	params := &stripe.RefundParams{}
	params.Context = ctx
	r, err := p.client.Refunds.Get(refundID, params)
	if err != nil {
		return nil, p.mapError(err)
	}
	return mapRefund(r), nil
}

// ConstructWebhookEvent verifies the Stripe signature and parses the event.
// Verification fails closed when no webhook secret is configured.
func (p *StripeProvider) ConstructWebhookEvent(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, provider.NewProviderError(providerName, provider.ErrWebhookSignatureInvalid, "webhook secret is not configured")
	}

	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "webhook signature verification failed", err)
	}

	return &provider.WebhookEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		Provider:  providerName,
		CreatedAt: time.Unix(event.Created, 0),
		Data:      json.RawMessage(event.Data.Raw),
	}, nil
}

// HandleWebhookEvent applies a verified Stripe event. Unknown event types
// are acknowledged without action so Stripe stops redelivering them.
func (p *StripeProvider) HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) error {
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed",
		"payment_intent.canceled", "charge.refunded",
		"checkout.session.completed", "checkout.session.expired":
		var intent struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data, &intent); err != nil {
			return provider.WrapProviderError(providerName, provider.ErrWebhookSignatureInvalid, "malformed webhook payload", err)
		}
		return nil
	default:
		return nil
	}
}

// HealthCheck probes the API with an authenticated balance read
func (p *StripeProvider) HealthCheck(ctx context.Context) error {
	if !p.initialized {
		return provider.NewProviderError(providerName, provider.ErrProviderNotInitialized, "provider is not initialized")
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := p.client.Balance.Get(params); err != nil {
		return p.mapError(err)
	}
	return nil
}

// SupportedPaymentMethods lists the method types this adapter accepts
func (p *StripeProvider) SupportedPaymentMethods() []provider.PaymentMethodType {
	return []provider.PaymentMethodType{provider.MethodCard, provider.MethodWallet, provider.MethodBankTransfer}
}

// SupportedCurrencies lists the settlement currencies this adapter accepts
func (p *StripeProvider) SupportedCurrencies() []string {
	return supportedCurrencies
}

// Features describes optional capabilities
func (p *StripeProvider) Features() provider.Features {
	return provider.Features{
		"3d_secure":       true,
		"fraud_detection": true,
		"recurring":       true,
		"partial_refund":  true,
		"hosted_checkout": true,
	}
}

// resultFromIntent maps a Stripe payment intent to a result. Network success
// is not payment success; the intent status decides.
func (p *StripeProvider) resultFromIntent(pi *stripe.PaymentIntent) *provider.PaymentResult {
	result := &provider.PaymentResult{
		Provider:      providerName,
		PaymentIntent: mapIntent(pi),
		TransactionID: pi.ID,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusRequiresAction:
		result.RequiresAction = true
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentFailed,
			Message: "payment requires additional authentication",
		}
	case stripe.PaymentIntentStatusProcessing:
		// treated as success for tracking; the webhook settles the final state
		result.Success = true
	default:
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentFailed,
			Message: fmt.Sprintf("payment intent in unexpected status %s", pi.Status),
		}
	}
	return result
}

// failedResult wraps an API error into an unsuccessful result
func (p *StripeProvider) failedResult(err error) *provider.PaymentResult {
	mapped := p.mapError(err)
	result := &provider.PaymentResult{
		Success:  false,
		Provider: providerName,
	}
	if pe, ok := provider.AsProviderError(mapped); ok {
		result.Error = &provider.ResultError{
			Code:      pe.Code,
			Message:   pe.Message,
			Retryable: pe.Retryable,
		}
	} else {
		result.Error = &provider.ResultError{
			Code:    provider.ErrPaymentFailed,
			Message: mapped.Error(),
		}
	}
	return result
}

// mapError translates SDK errors into typed provider errors so stripe-go
// types never leak past this package.
func (p *StripeProvider) mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined:
			return provider.NewProviderError(providerName, provider.ErrPaymentDeclined, stripeErr.Msg)
		case stripe.ErrorCodeExpiredCard:
			return provider.NewProviderError(providerName, provider.ErrPaymentExpired, "card has expired")
		case stripe.ErrorCodeBalanceInsufficient:
			return provider.NewProviderError(providerName, provider.ErrPaymentInsufficient, "insufficient funds")
		case stripe.ErrorCodeResourceMissing:
			return provider.NewProviderError(providerName, provider.ErrProviderNotFound, stripeErr.Msg)
		case stripe.ErrorCodeRateLimit:
			return provider.NewProviderError(providerName, provider.ErrProviderRateLimited, "rate limited by provider")
		}
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return provider.NewProviderError(providerName, provider.ErrProviderConfigInvalid, "invalid API credentials")
		}
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return provider.NewProviderError(providerName, provider.ErrProviderUnavailable, stripeErr.Msg)
		}
		return provider.NewProviderError(providerName, provider.ErrPaymentFailed, stripeErr.Msg)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.WrapProviderError(providerName, provider.ErrTimeoutError, "request to provider timed out", err)
	}
	return provider.WrapProviderError(providerName, provider.ErrNetworkError, err.Error(), err)
}

func fullName(c provider.Customer) string {
	if c.Surname == "" {
		return c.Name
	}
	return c.Name + " " + c.Surname
}

func mapCustomer(c *stripe.Customer) *provider.Customer {
	out := &provider.Customer{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		PhoneNumber: c.Phone,
	}
	if c.Address != nil {
		out.Address = &provider.Address{
			Line1:      c.Address.Line1,
			Line2:      c.Address.Line2,
			City:       c.Address.City,
			State:      c.Address.State,
			PostalCode: c.Address.PostalCode,
			Country:    c.Address.Country,
		}
	}
	return out
}

func mapPaymentMethod(pm *stripe.PaymentMethod) *provider.PaymentMethod {
	out := &provider.PaymentMethod{
		ID:   pm.ID,
		Type: provider.MethodCard,
	}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpireMonth = int(pm.Card.ExpMonth)
		out.ExpireYear = int(pm.Card.ExpYear)
	}
	return out
}

func mapIntent(pi *stripe.PaymentIntent) *provider.PaymentIntent {
	out := &provider.PaymentIntent{
		ID:           pi.ID,
		Provider:     providerName,
		Status:       mapIntentStatus(pi.Status),
		Amount:       provider.FromMinorUnits(pi.Amount, string(pi.Currency)),
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		CreatedAt:    time.Unix(pi.Created, 0),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

func mapIntentStatus(status stripe.PaymentIntentStatus) provider.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return provider.StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return provider.StatusProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		return provider.StatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return provider.StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

func mapCheckoutSession(s *stripe.CheckoutSession, currency string) *provider.CheckoutSession {
	if currency == "" {
		currency = string(s.Currency)
	}
	return &provider.CheckoutSession{
		ID:        s.ID,
		Provider:  providerName,
		URL:       s.URL,
		Status:    string(s.Status),
		Amount:    provider.FromMinorUnits(s.AmountTotal, currency),
		Currency:  currency,
		ExpiresAt: time.Unix(s.ExpiresAt, 0),
	}
}

func mapRefund(r *stripe.Refund) *provider.Refund {
	out := &provider.Refund{
		ID:        r.ID,
		Provider:  providerName,
		Amount:    provider.FromMinorUnits(r.Amount, string(r.Currency)),
		Currency:  string(r.Currency),
		Status:    string(r.Status),
		Reason:    string(r.Reason),
		CreatedAt: time.Unix(r.Created, 0),
	}
	if r.PaymentIntent != nil {
		out.PaymentIntentID = r.PaymentIntent.ID
	}
	return out
}
