package provider

import (
	"context"
	"encoding/json"
	"time"
)

// PaymentStatus represents the current status of a payment
type PaymentStatus string

const (
	StatusPending        PaymentStatus = "pending"
	StatusProcessing     PaymentStatus = "processing"
	StatusRequiresAction PaymentStatus = "requires_action"
	StatusSucceeded      PaymentStatus = "succeeded"
	StatusFailed         PaymentStatus = "failed"
	StatusCancelled      PaymentStatus = "cancelled"
	StatusRefunded       PaymentStatus = "refunded"
)

// PaymentMethodType identifies a class of payment instrument
type PaymentMethodType string

const (
	MethodCard         PaymentMethodType = "card"
	MethodBankTransfer PaymentMethodType = "bank_transfer"
	MethodWallet       PaymentMethodType = "wallet"
	MethodPayPal       PaymentMethodType = "paypal"
)

// Features describes optional capabilities a provider supports,
// keyed by capability name ("3d_secure", "fraud_detection", "recurring", ...)
type Features map[string]bool

// Address represents a physical billing or shipping address
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
}

// Customer represents the buyer information
type Customer struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Surname     string   `json:"surname,omitempty"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// CardDetails represents raw card information supplied with a request
type CardDetails struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpireMonth int    `json:"expireMonth"`
	ExpireYear  int    `json:"expireYear"`
	CVV         string `json:"cvv"`
}

// PaymentContext is the ephemeral, request-scoped routing context for one
// payment attempt. It is passed by value through orchestration and never
// persisted as-is; only derived records are.
type PaymentContext struct {
	UserID            string            `json:"userId"`
	Currency          string            `json:"currency"`
	Amount            int64             `json:"amount"` // minor units
	PaymentMethod     PaymentMethodType `json:"paymentMethod,omitempty"`
	BillingCountry    string            `json:"billingCountry,omitempty"`
	SubscriptionID    string            `json:"subscriptionId,omitempty"`
	PreferredProvider string            `json:"preferredProvider,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// PaymentRequest contains caller-supplied payment parameters.
// Amounts at this boundary are major currency units as decimals (19.99).
type PaymentRequest struct {
	Amount            float64           `json:"amount" validate:"required,gt=0"`
	Currency          string            `json:"currency" validate:"required,len=3"`
	CustomerID        string            `json:"customerId" validate:"required"`
	PaymentMethodID   string            `json:"paymentMethodId,omitempty"`
	PaymentMethodType PaymentMethodType `json:"paymentMethodType,omitempty"`
	Card              *CardDetails      `json:"card,omitempty"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	BillingAddress    *Address          `json:"billingAddress,omitempty"`
	ShippingAddress   *Address          `json:"shippingAddress,omitempty"`
	IdempotencyKey    string            `json:"idempotencyKey,omitempty"`
}

// ResultError carries the failure detail of a provider operation
type ResultError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// PaymentResult is the immutable outcome of one provider operation.
// A new result is built for each attempt; results are never mutated.
type PaymentResult struct {
	Success        bool           `json:"success"`
	Provider       string         `json:"provider,omitempty"`
	PaymentIntent  *PaymentIntent `json:"paymentIntent,omitempty"`
	Error          *ResultError   `json:"error,omitempty"`
	TransactionID  string         `json:"transactionId,omitempty"`
	RequiresAction bool           `json:"requiresAction,omitempty"`
	RedirectURL    string         `json:"redirectUrl,omitempty"`
}

// PaymentIntent is the provider-side record of a payment in flight
type PaymentIntent struct {
	ID           string        `json:"id"`
	Provider     string        `json:"provider"`
	Status       PaymentStatus `json:"status"`
	Amount       float64       `json:"amount"`
	Currency     string        `json:"currency"`
	CustomerID   string        `json:"customerId,omitempty"`
	ClientSecret string        `json:"clientSecret,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// PaymentMethod is a stored payment instrument
type PaymentMethod struct {
	ID          string            `json:"id"`
	Type        PaymentMethodType `json:"type"`
	CustomerID  string            `json:"customerId,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Last4       string            `json:"last4,omitempty"`
	ExpireMonth int               `json:"expireMonth,omitempty"`
	ExpireYear  int               `json:"expireYear,omitempty"`
}

// CheckoutRequest contains parameters for a hosted checkout session
type CheckoutRequest struct {
	Amount     float64           `json:"amount" validate:"required,gt=0"`
	Currency   string            `json:"currency" validate:"required,len=3"`
	CustomerID string            `json:"customerId,omitempty"`
	SuccessURL string            `json:"successUrl" validate:"required,url"`
	CancelURL  string            `json:"cancelUrl" validate:"required,url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession is a provider-hosted payment page
type CheckoutSession struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefundRequest contains information to request a refund
type RefundRequest struct {
	PaymentIntentID string  `json:"paymentIntentId" validate:"required"`
	Amount          float64 `json:"amount,omitempty"` // zero means full refund
	Currency        string  `json:"currency,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Refund is the provider-side record of a refund
type Refund struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	PaymentIntentID string    `json:"paymentIntentId"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// WebhookEvent is a verified notification from a provider
type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Provider  string          `json:"provider"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// PaymentProvider defines the interface that all payment processor adapters
// must implement. Every blocking operation takes a context; amounts are major
// currency units and adapters convert to provider-native minor units internally.
type PaymentProvider interface {
	// Name returns the unique provider identity ("stripe", "paypal")
	Name() string

	// Initialize sets up the provider with credentials and configuration
	Initialize(config map[string]string) error

	// IsInitialized reports whether Initialize succeeded
	IsInitialized() bool

	// GetRequiredConfig returns the configuration fields required for this provider
	GetRequiredConfig(environment string) []ConfigField

	// Customer operations
	CreateCustomer(ctx context.Context, customer Customer) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	UpdateCustomer(ctx context.Context, customer Customer) (*Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	// Payment method operations
	CreatePaymentMethod(ctx context.Context, customerID string, card CardDetails) (*PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, methodID string) (*PaymentMethod, error)
	GetCustomerPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, methodID, customerID string) (*PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, methodID string) error

	// Payment intent operations
	CreatePaymentIntent(ctx context.Context, request PaymentRequest) (*PaymentResult, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string) (*PaymentResult, error)
	CapturePaymentIntent(ctx context.Context, intentID string) (*PaymentResult, error)
	CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentResult, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)

	// Checkout session operations
	CreateCheckoutSession(ctx context.Context, request CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// Refund operations
	CreateRefund(ctx context.Context, request RefundRequest) (*Refund, error)
	GetRefund(ctx context.Context, refundID string) (*Refund, error)

	// ConstructWebhookEvent verifies payload integrity against the provider's
	// signing secret and fails closed on signature mismatch
	ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)

	// HandleWebhookEvent applies the side effects of a verified event
	HandleWebhookEvent(ctx context.Context, event *WebhookEvent) error

	// HealthCheck probes the provider API; an error marks the provider unhealthy
	HealthCheck(ctx context.Context) error

	// Static capability descriptors
	SupportedPaymentMethods() []PaymentMethodType
	SupportedCurrencies() []string
	Features() Features
}

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "boolean"
	Description string `json:"description"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// ProviderFactory is a function type that creates a new PaymentProvider
type ProviderFactory func() PaymentProvider

// zeroDecimalCurrencies have no minor unit; amounts pass through unscaled.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true,
}

// ToMinorUnits converts a major-unit decimal amount to provider minor units
func ToMinorUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[normalizeCurrency(currency)] {
		return int64(amount + 0.5)
	}
	return int64(amount*100 + 0.5)
}

// FromMinorUnits converts provider minor units back to a major-unit decimal
func FromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimalCurrencies[normalizeCurrency(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}
