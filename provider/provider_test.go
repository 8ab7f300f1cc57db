package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeProvider is a configurable in-memory adapter used across the package
// tests. Zero value behaves as a healthy card+wallet USD/EUR provider.
type fakeProvider struct {
	name        string
	initialized bool
	currencies  []string
	methods     []PaymentMethodType
	features    Features

	mu          sync.Mutex
	calls       int
	initErr     error
	healthErr   error
	healthDelay time.Duration

	createIntent func(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	construct    func(payload []byte, signature string) (*WebhookEvent, error)
	handleEvent  func(ctx context.Context, event *WebhookEvent) error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:        name,
		initialized: true,
		currencies:  []string{"USD", "EUR"},
		methods:     []PaymentMethodType{MethodCard, MethodWallet},
		features:    Features{"refunds": true, "fraud_detection": true},
	}
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) Initialize(map[string]string) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}
func (f *fakeProvider) IsInitialized() bool { return f.initialized }
func (f *fakeProvider) GetRequiredConfig(string) []ConfigField {
	return []ConfigField{{Key: "apiKey", Required: true, Type: "string"}}
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	return &c, nil
}
func (f *fakeProvider) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return &Customer{ID: id}, nil
}
func (f *fakeProvider) UpdateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	return &c, nil
}
func (f *fakeProvider) DeleteCustomer(ctx context.Context, id string) error { return nil }

func (f *fakeProvider) CreatePaymentMethod(ctx context.Context, customerID string, card CardDetails) (*PaymentMethod, error) {
	return &PaymentMethod{ID: "pm_fake", Type: MethodCard, CustomerID: customerID}, nil
}
func (f *fakeProvider) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	return &PaymentMethod{ID: id, Type: MethodCard}, nil
}
func (f *fakeProvider) GetCustomerPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	return nil, nil
}
func (f *fakeProvider) AttachPaymentMethod(ctx context.Context, methodID, customerID string) (*PaymentMethod, error) {
	return &PaymentMethod{ID: methodID, CustomerID: customerID}, nil
}
func (f *fakeProvider) DetachPaymentMethod(ctx context.Context, methodID string) error { return nil }

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.createIntent != nil {
		return f.createIntent(ctx, req)
	}
	return &PaymentResult{
		Success:  true,
		Provider: f.name,
		PaymentIntent: &PaymentIntent{
			ID:       "pi_" + f.name,
			Provider: f.name,
			Status:   StatusSucceeded,
			Amount:   req.Amount,
			Currency: req.Currency,
		},
	}, nil
}
func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentResult, error) {
	return &PaymentResult{Success: true, Provider: f.name}, nil
}
func (f *fakeProvider) CapturePaymentIntent(ctx context.Context, id string) (*PaymentResult, error) {
	return &PaymentResult{Success: true, Provider: f.name}, nil
}
func (f *fakeProvider) CancelPaymentIntent(ctx context.Context, id string) (*PaymentResult, error) {
	return &PaymentResult{Success: true, Provider: f.name}, nil
}
func (f *fakeProvider) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	return &PaymentIntent{ID: id, Provider: f.name, Status: StatusSucceeded}, nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return &CheckoutSession{ID: "cs_fake", Provider: f.name, Status: "open"}, nil
}
func (f *fakeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	return &CheckoutSession{ID: id, Provider: f.name}, nil
}
func (f *fakeProvider) ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	return &CheckoutSession{ID: id, Provider: f.name, Status: "expired"}, nil
}

func (f *fakeProvider) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	return &Refund{ID: "re_fake", Provider: f.name, PaymentIntentID: req.PaymentIntentID}, nil
}
func (f *fakeProvider) GetRefund(ctx context.Context, id string) (*Refund, error) {
	return &Refund{ID: id, Provider: f.name}, nil
}

func (f *fakeProvider) ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error) {
	if f.construct != nil {
		return f.construct(payload, signature)
	}
	return &WebhookEvent{ID: "evt_fake", Type: "payment.succeeded", Provider: f.name}, nil
}
func (f *fakeProvider) HandleWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if f.handleEvent != nil {
		return f.handleEvent(ctx, event)
	}
	return nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error {
	if f.healthDelay > 0 {
		time.Sleep(f.healthDelay)
	}
	return f.healthErr
}

func (f *fakeProvider) SupportedPaymentMethods() []PaymentMethodType { return f.methods }
func (f *fakeProvider) SupportedCurrencies() []string               { return f.currencies }
func (f *fakeProvider) Features() Features                          { return f.features }

// manualScheduler collects tick functions so tests fire them deterministically
type manualScheduler struct {
	mu    sync.Mutex
	ticks []func()
}

func (s *manualScheduler) Every(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, fn)
	return func() {}
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	ticks := append([]func(){}, s.ticks...)
	s.mu.Unlock()
	for _, fn := range ticks {
		fn()
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		expected int64
	}{
		{"whole dollars", 100, "USD", 10000},
		{"cents rounding", 19.99, "USD", 1999},
		{"float drift rounds correctly", 0.1 + 0.2, "EUR", 30},
		{"zero decimal currency", 5000, "JPY", 5000},
		{"zero decimal lowercase", 1000, "krw", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToMinorUnits(tt.amount, tt.currency))
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, 19.99, FromMinorUnits(1999, "USD"))
	assert.Equal(t, 5000.0, FromMinorUnits(5000, "JPY"))
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	assert.Equal(t, int64(1999), ToMinorUnits(FromMinorUnits(1999, "USD"), "USD"))
	assert.Equal(t, int64(777), ToMinorUnits(FromMinorUnits(777, "JPY"), "JPY"))
}
