package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paybridge/paybridge/provider"
)

func TestGetMetrics(t *testing.T) {
	env := newTestEnv(t, newStubProvider("stripe"))
	h := env.router()

	rec := doJSON(t, h, http.MethodPost, "/v1/payments", paymentBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	report := dataAsMap(t, resp)
	assert.Equal(t, float64(1), report["totalTransactions"])
	assert.Equal(t, float64(1), report["totalSucceeded"])
	assert.Equal(t, float64(1), report["successRate"])

	providers, ok := report["providers"].(map[string]any)
	require.True(t, ok)
	stripe, ok := providers["stripe"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 25.0, stripe["totalAmount"])
}

func TestGetErrorStats(t *testing.T) {
	env := newTestEnv(t, newStubProvider("stripe"))
	h := env.router()

	env.errors.HandleError(context.Background(),
		provider.NewProviderError("stripe", provider.ErrPaymentDeclined, "card declined"),
		provider.PaymentContext{UserID: "user-1"})

	rec := doJSON(t, h, http.MethodGet, "/v1/errors", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := dataAsMap(t, resp)
	stats, ok := data["statistics"].([]any)
	require.True(t, ok)
	require.Len(t, stats, 1)
	stat := stats[0].(map[string]any)
	assert.Equal(t, "stripe", stat["provider"])
	assert.Equal(t, "PAYMENT_DECLINED", stat["code"])
	assert.Equal(t, float64(1), stat["count"])
	assert.NotContains(t, data, "records")
}

func TestGetErrorStats_WithRecords(t *testing.T) {
	env := newTestEnv(t, newStubProvider("stripe"))
	h := env.router()

	env.errors.HandleError(context.Background(),
		provider.NewProviderError("stripe", provider.ErrNetworkError, "connection reset"),
		provider.PaymentContext{UserID: "user-1"})

	rec := doJSON(t, h, http.MethodGet, "/v1/errors?records=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := dataAsMap(t, resp)
	records, ok := data["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
}

func TestGetEvents(t *testing.T) {
	env := newTestEnv(t, newStubProvider("stripe"))
	h := env.router()

	for i := 0; i < 3; i++ {
		env.bus.Publish(context.Background(), provider.Event{
			Type:   provider.EventPaymentIntentCreated,
			Source: "test",
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/events", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	history, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, history, 3)
}

func TestGetEvents_Limit(t *testing.T) {
	env := newTestEnv(t, newStubProvider("stripe"))
	h := env.router()

	for i := 0; i < 5; i++ {
		env.bus.Publish(context.Background(), provider.Event{
			Type:   provider.EventPaymentIntentCreated,
			Source: "test",
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/events?limit=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	history, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)
}
