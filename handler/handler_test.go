package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// stubProvider is an in-memory adapter used to exercise the HTTP layer
// without touching real provider APIs.
type stubProvider struct {
	name       string
	currencies []string
	methods    []provider.PaymentMethodType
	features   provider.Features
	healthErr  error

	createIntent func(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error)
	refund       func(ctx context.Context, req provider.RefundRequest) (*provider.Refund, error)
	construct    func(payload []byte, signature string) (*provider.WebhookEvent, error)
	handleEvent  func(ctx context.Context, event *provider.WebhookEvent) error
}

func newStubProvider(name string) *stubProvider {
	return &stubProvider{
		name:       name,
		currencies: []string{"USD", "EUR"},
		methods:    []provider.PaymentMethodType{provider.MethodCard, provider.MethodWallet},
		features:   provider.Features{"refunds": true, "fraud_detection": true},
	}
}

func (s *stubProvider) Name() string                      { return s.name }
func (s *stubProvider) Initialize(map[string]string) error { return nil }
func (s *stubProvider) IsInitialized() bool               { return true }
func (s *stubProvider) GetRequiredConfig(string) []provider.ConfigField {
	return []provider.ConfigField{{Key: "apiKey", Required: true, Type: "string"}}
}

func (s *stubProvider) CreateCustomer(ctx context.Context, c provider.Customer) (*provider.Customer, error) {
	return &c, nil
}
func (s *stubProvider) GetCustomer(ctx context.Context, id string) (*provider.Customer, error) {
	return &provider.Customer{ID: id}, nil
}
func (s *stubProvider) UpdateCustomer(ctx context.Context, c provider.Customer) (*provider.Customer, error) {
	return &c, nil
}
func (s *stubProvider) DeleteCustomer(ctx context.Context, id string) error { return nil }

func (s *stubProvider) CreatePaymentMethod(ctx context.Context, customerID string, card provider.CardDetails) (*provider.PaymentMethod, error) {
	return &provider.PaymentMethod{ID: "pm_stub", Type: provider.MethodCard, CustomerID: customerID}, nil
}
func (s *stubProvider) GetPaymentMethod(ctx context.Context, id string) (*provider.PaymentMethod, error) {
	return &provider.PaymentMethod{ID: id, Type: provider.MethodCard}, nil
}
func (s *stubProvider) GetCustomerPaymentMethods(ctx context.Context, customerID string) ([]provider.PaymentMethod, error) {
	return nil, nil
}
func (s *stubProvider) AttachPaymentMethod(ctx context.Context, methodID, customerID string) (*provider.PaymentMethod, error) {
	return &provider.PaymentMethod{ID: methodID, CustomerID: customerID}, nil
}
func (s *stubProvider) DetachPaymentMethod(ctx context.Context, methodID string) error { return nil }

func (s *stubProvider) CreatePaymentIntent(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	if s.createIntent != nil {
		return s.createIntent(ctx, req)
	}
	return &provider.PaymentResult{
		Success:  true,
		Provider: s.name,
		PaymentIntent: &provider.PaymentIntent{
			ID:       "pi_" + s.name,
			Provider: s.name,
			Status:   provider.StatusSucceeded,
			Amount:   req.Amount,
			Currency: req.Currency,
		},
	}, nil
}
func (s *stubProvider) ConfirmPaymentIntent(ctx context.Context, id string) (*provider.PaymentResult, error) {
	return &provider.PaymentResult{Success: true, Provider: s.name}, nil
}
func (s *stubProvider) CapturePaymentIntent(ctx context.Context, id string) (*provider.PaymentResult, error) {
	return &provider.PaymentResult{Success: true, Provider: s.name}, nil
}
func (s *stubProvider) CancelPaymentIntent(ctx context.Context, id string) (*provider.PaymentResult, error) {
	return &provider.PaymentResult{Success: true, Provider: s.name}, nil
}
func (s *stubProvider) GetPaymentIntent(ctx context.Context, id string) (*provider.PaymentIntent, error) {
	return &provider.PaymentIntent{ID: id, Provider: s.name, Status: provider.StatusSucceeded}, nil
}

func (s *stubProvider) CreateCheckoutSession(ctx context.Context, req provider.CheckoutRequest) (*provider.CheckoutSession, error) {
	return &provider.CheckoutSession{ID: "cs_stub", Provider: s.name, Status: "open"}, nil
}
func (s *stubProvider) GetCheckoutSession(ctx context.Context, id string) (*provider.CheckoutSession, error) {
	return &provider.CheckoutSession{ID: id, Provider: s.name}, nil
}
func (s *stubProvider) ExpireCheckoutSession(ctx context.Context, id string) (*provider.CheckoutSession, error) {
	return &provider.CheckoutSession{ID: id, Provider: s.name, Status: "expired"}, nil
}

func (s *stubProvider) CreateRefund(ctx context.Context, req provider.RefundRequest) (*provider.Refund, error) {
	if s.refund != nil {
		return s.refund(ctx, req)
	}
	return &provider.Refund{ID: "re_" + s.name, Provider: s.name, PaymentIntentID: req.PaymentIntentID}, nil
}
func (s *stubProvider) GetRefund(ctx context.Context, id string) (*provider.Refund, error) {
	return &provider.Refund{ID: id, Provider: s.name}, nil
}

func (s *stubProvider) ConstructWebhookEvent(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if s.construct != nil {
		return s.construct(payload, signature)
	}
	return &provider.WebhookEvent{ID: "evt_stub", Type: "payment.succeeded", Provider: s.name}, nil
}
func (s *stubProvider) HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) error {
	if s.handleEvent != nil {
		return s.handleEvent(ctx, event)
	}
	return nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) error { return s.healthErr }

func (s *stubProvider) SupportedPaymentMethods() []provider.PaymentMethodType { return s.methods }
func (s *stubProvider) SupportedCurrencies() []string                         { return s.currencies }
func (s *stubProvider) Features() provider.Features                           { return s.features }

// noopScheduler never fires; handler tests drive everything through HTTP.
type noopScheduler struct{}

func (noopScheduler) Every(d time.Duration, fn func()) func() { return func() {} }

// testEnv wires the full pipeline behind the handlers the way main does,
// with stub adapters in place of real ones.
type testEnv struct {
	registry   *provider.Registry
	bus        *provider.EventBus
	orch       *provider.Orchestrator
	stages     *provider.Validator
	states     *provider.MemoryStateStore
	errors     *provider.ErrorHandler
	metrics    *provider.MetricsCollector
	dispatcher *provider.WebhookDispatcher
}

func newTestEnv(t *testing.T, stubs ...*stubProvider) *testEnv {
	t.Helper()

	bus := provider.NewEventBus()
	registry := provider.NewRegistry(noopScheduler{}, provider.WithRegistryEventBus(bus))
	for _, s := range stubs {
		require.NoError(t, registry.Register(s))
	}
	states := provider.NewMemoryStateStore(0, nil)
	errors := provider.NewErrorHandler(bus)
	metrics := provider.NewMetricsCollector(prometheus.NewRegistry())
	orch := provider.NewOrchestrator(registry, bus, states, provider.OrchestratorConfig{
		RetryDelay: time.Millisecond,
	}, provider.WithErrorHandler(errors), provider.WithMetricsCollector(metrics))
	errors.SetReselector(orch)

	return &testEnv{
		registry:   registry,
		bus:        bus,
		orch:       orch,
		stages:     provider.NewValidator(),
		states:     states,
		errors:     errors,
		metrics:    metrics,
		dispatcher: provider.NewWebhookDispatcher(registry, bus),
	}
}

// router mounts the handlers on the same paths main registers.
func (e *testEnv) router() http.Handler {
	payments := NewPaymentHandler(e.orch, e.stages, e.registry, validator.New())
	providers := NewProvidersHandler(e.registry, e.orch)
	metrics := NewMetricsHandler(e.metrics, e.errors, e.bus)
	webhooks := NewWebhookHandler(e.dispatcher)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/payments", payments.ProcessPayment)
		r.Get("/payments/{paymentIntentID}/state", payments.GetPaymentState)
		r.Post("/refunds", payments.CreateRefund)
		r.Get("/providers", providers.ListProviders)
		r.Get("/providers/health", providers.GetHealth)
		r.Post("/providers/health/check", providers.TriggerHealthCheck)
		r.Get("/providers/load", providers.GetLoad)
		r.Get("/metrics", metrics.GetMetrics)
		r.Get("/errors", metrics.GetErrorStats)
		r.Get("/events", metrics.GetEvents)
	})
	r.Post("/webhooks/{provider}", webhooks.HandleWebhook)
	return r
}

// doJSON performs one request against the router and returns the recorder.
func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope parses the standard response envelope.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// dataAsMap re-decodes the envelope's Data payload into a generic map.
func dataAsMap(t *testing.T, resp response.Response) map[string]any {
	t.Helper()

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}
