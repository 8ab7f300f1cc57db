package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paybridge/paybridge/provider"
)

func initializedProvider(t *testing.T) *StripeProvider {
	t.Helper()
	p := NewProvider().(*StripeProvider)
	require.NoError(t, p.Initialize(map[string]string{
		"secretKey":     "sk_test_1234567890abcdef",
		"webhookSecret": "whsec_test",
		"environment":   "sandbox",
	}))
	return p
}

func TestStripe_Initialize(t *testing.T) {
	p := NewProvider().(*StripeProvider)
	assert.False(t, p.IsInitialized())

	err := p.Initialize(map[string]string{"environment": "sandbox"})
	require.Error(t, err)
	pe, ok := provider.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, provider.ErrProviderConfigInvalid, pe.Code)
	assert.False(t, p.IsInitialized())

	require.NoError(t, p.Initialize(map[string]string{
		"secretKey":   "sk_test_1234567890abcdef",
		"environment": "sandbox",
	}))
	assert.True(t, p.IsInitialized())
	assert.False(t, p.isProduction)

	require.NoError(t, p.Initialize(map[string]string{
		"secretKey":   "sk_live_1234567890abcdef",
		"environment": "production",
	}))
	assert.True(t, p.isProduction)
}

func TestStripe_GetRequiredConfig(t *testing.T) {
	p := NewProvider()

	sandbox := p.GetRequiredConfig("sandbox")
	require.NotEmpty(t, sandbox)
	assert.Equal(t, "secretKey", sandbox[0].Key)
	assert.True(t, sandbox[0].Required)
	assert.Equal(t, `^sk_test_`, sandbox[0].Pattern)

	production := p.GetRequiredConfig("production")
	assert.Equal(t, `^sk_live_`, production[0].Pattern)
}

func TestStripe_Capabilities(t *testing.T) {
	p := NewProvider()

	assert.Equal(t, "stripe", p.Name())
	assert.Contains(t, p.SupportedCurrencies(), "USD")
	assert.Contains(t, p.SupportedCurrencies(), "JPY")
	assert.Contains(t, p.SupportedPaymentMethods(), provider.MethodCard)
	assert.True(t, p.Features()["3d_secure"])
	assert.True(t, p.Features()["fraud_detection"])
}

func TestStripe_CreatePaymentIntent_NotInitialized(t *testing.T) {
	p := NewProvider()

	_, err := p.CreatePaymentIntent(context.Background(), provider.PaymentRequest{
		Amount: 100, Currency: "USD", CustomerID: "cus_1",
	})
	require.Error(t, err)
	pe, ok := provider.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, provider.ErrProviderNotInitialized, pe.Code)
}

func TestStripe_MapIntentStatus(t *testing.T) {
	tests := []struct {
		in       stripe.PaymentIntentStatus
		expected provider.PaymentStatus
	}{
		{stripe.PaymentIntentStatusSucceeded, provider.StatusSucceeded},
		{stripe.PaymentIntentStatusProcessing, provider.StatusProcessing},
		{stripe.PaymentIntentStatusRequiresAction, provider.StatusRequiresAction},
		{stripe.PaymentIntentStatusRequiresConfirmation, provider.StatusRequiresAction},
		{stripe.PaymentIntentStatusRequiresCapture, provider.StatusRequiresAction},
		{stripe.PaymentIntentStatusCanceled, provider.StatusCancelled},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, provider.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.expected, mapIntentStatus(tt.in))
		})
	}
}

func TestStripe_MapError(t *testing.T) {
	p := initializedProvider(t)

	tests := []struct {
		name     string
		err      error
		expected provider.ErrorCode
	}{
		{"card declined", &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "declined"}, provider.ErrPaymentDeclined},
		{"expired card", &stripe.Error{Code: stripe.ErrorCodeExpiredCard}, provider.ErrPaymentExpired},
		{"insufficient funds", &stripe.Error{Code: stripe.ErrorCodeBalanceInsufficient}, provider.ErrPaymentInsufficient},
		{"missing resource", &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "no such intent"}, provider.ErrProviderNotFound},
		{"rate limited", &stripe.Error{Code: stripe.ErrorCodeRateLimit}, provider.ErrProviderRateLimited},
		{"bad credentials", &stripe.Error{HTTPStatusCode: http.StatusUnauthorized}, provider.ErrProviderConfigInvalid},
		{"server error", &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Msg: "bad gateway"}, provider.ErrProviderUnavailable},
		{"other api error", &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "bad request"}, provider.ErrPaymentFailed},
		{"deadline exceeded", context.DeadlineExceeded, provider.ErrTimeoutError},
		{"plain error", errors.New("connection refused"), provider.ErrNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := p.mapError(tt.err)
			pe, ok := provider.AsProviderError(mapped)
			require.True(t, ok)
			assert.Equal(t, tt.expected, pe.Code)
		})
	}
}

func TestStripe_ResultFromIntent(t *testing.T) {
	p := initializedProvider(t)

	t.Run("succeeded", func(t *testing.T) {
		result := p.resultFromIntent(&stripe.PaymentIntent{
			ID:       "pi_1",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   1000,
			Currency: "usd",
		})
		assert.True(t, result.Success)
		assert.Equal(t, "pi_1", result.TransactionID)
		require.NotNil(t, result.PaymentIntent)
		assert.Equal(t, provider.StatusSucceeded, result.PaymentIntent.Status)
		assert.InDelta(t, 10.0, result.PaymentIntent.Amount, 0.001)
	})

	t.Run("processing counts as success", func(t *testing.T) {
		result := p.resultFromIntent(&stripe.PaymentIntent{
			ID: "pi_2", Status: stripe.PaymentIntentStatusProcessing, Currency: "usd",
		})
		assert.True(t, result.Success)
	})

	t.Run("requires action carries redirect", func(t *testing.T) {
		result := p.resultFromIntent(&stripe.PaymentIntent{
			ID:     "pi_3",
			Status: stripe.PaymentIntentStatusRequiresAction,
			NextAction: &stripe.PaymentIntentNextAction{
				RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://stripe.test/3ds"},
			},
			Currency: "usd",
		})
		assert.False(t, result.Success)
		assert.True(t, result.RequiresAction)
		assert.Equal(t, "https://stripe.test/3ds", result.RedirectURL)
		require.NotNil(t, result.Error)
	})

	t.Run("unexpected status fails", func(t *testing.T) {
		result := p.resultFromIntent(&stripe.PaymentIntent{
			ID: "pi_4", Status: stripe.PaymentIntentStatusCanceled, Currency: "usd",
		})
		assert.False(t, result.Success)
		require.NotNil(t, result.Error)
	})
}

func TestStripe_FailedResult(t *testing.T) {
	p := initializedProvider(t)

	result := p.failedResult(&stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "declined"})
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, provider.ErrPaymentDeclined, result.Error.Code)
	assert.False(t, result.Error.Retryable)

	retryable := p.failedResult(&stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable})
	require.NotNil(t, retryable.Error)
	assert.Equal(t, provider.ErrProviderUnavailable, retryable.Error.Code)
	assert.True(t, retryable.Error.Retryable)
}

func TestStripe_ConstructWebhookEvent_NoSecret(t *testing.T) {
	p := NewProvider().(*StripeProvider)
	require.NoError(t, p.Initialize(map[string]string{
		"secretKey":   "sk_test_1234567890abcdef",
		"environment": "sandbox",
	}))

	_, err := p.ConstructWebhookEvent([]byte(`{}`), "sig")
	require.Error(t, err)
	pe, ok := provider.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, provider.ErrWebhookSignatureInvalid, pe.Code)
}

func TestStripe_ConstructWebhookEvent_BadSignature(t *testing.T) {
	p := initializedProvider(t)

	_, err := p.ConstructWebhookEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	require.Error(t, err)
	pe, ok := provider.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, provider.ErrWebhookSignatureInvalid, pe.Code)
}

func TestStripe_HandleWebhookEvent(t *testing.T) {
	p := initializedProvider(t)
	ctx := context.Background()

	t.Run("known event with valid payload", func(t *testing.T) {
		err := p.HandleWebhookEvent(ctx, &provider.WebhookEvent{
			Type: "payment_intent.succeeded",
			Data: json.RawMessage(`{"id":"pi_1"}`),
		})
		assert.NoError(t, err)
	})

	t.Run("known event with malformed payload", func(t *testing.T) {
		err := p.HandleWebhookEvent(ctx, &provider.WebhookEvent{
			Type: "payment_intent.succeeded",
			Data: json.RawMessage(`not json`),
		})
		assert.Error(t, err)
	})

	t.Run("unknown event acknowledged", func(t *testing.T) {
		err := p.HandleWebhookEvent(ctx, &provider.WebhookEvent{
			Type: "customer.created",
			Data: json.RawMessage(`{}`),
		})
		assert.NoError(t, err)
	})
}

func TestStripe_FullName(t *testing.T) {
	assert.Equal(t, "Ada", fullName(provider.Customer{Name: "Ada"}))
	assert.Equal(t, "Ada Lovelace", fullName(provider.Customer{Name: "Ada", Surname: "Lovelace"}))
}
