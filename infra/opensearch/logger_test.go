package opensearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/infra/config"
)

func disabledLogger() *Logger {
	return NewLogger(&Client{config: &config.AppConfig{EnableLogging: false}})
}

func TestLogTransactionDisabled(t *testing.T) {
	logger := disabledLogger()

	err := logger.LogTransaction(context.Background(), TransactionLog{
		Provider:        "stripe",
		PaymentIntentID: "pi_123",
		Status:          "succeeded",
		Amount:          100.50,
		Currency:        "USD",
	})

	// Disabled logging is a no-op, not an error
	assert.NoError(t, err)
}

func TestSearchTransactionsDisabled(t *testing.T) {
	logger := disabledLogger()

	_, err := logger.SearchTransactions(context.Background(), "stripe", map[string]any{
		"match_all": map[string]any{},
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging is disabled")
}

func TestGetProviderStatsDisabled(t *testing.T) {
	logger := disabledLogger()

	_, err := logger.GetProviderStats(context.Background(), "paypal", 24)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging is disabled")
}

func TestLogSystemEventDisabled(t *testing.T) {
	logger := disabledLogger()

	err := logger.LogSystemEvent(context.Background(), map[string]any{
		"level":   "info",
		"message": "test event",
	})

	assert.NoError(t, err)
}

func TestTransactionLogStructure(t *testing.T) {
	now := time.Now()
	log := TransactionLog{
		Timestamp:        now,
		Provider:         "stripe",
		CorrelationID:    "corr-123",
		PaymentIntentID:  "pi_456",
		Status:           "failed",
		Amount:           49.99,
		Currency:         "EUR",
		Attempts:         2,
		ProcessingTimeMs: 1200,
		Error: ErrorInfo{
			Code:     "PAYMENT_DECLINED",
			Message:  "card was declined",
			Severity: "high",
			Category: "card",
		},
	}

	assert.Equal(t, "stripe", log.Provider)
	assert.Equal(t, 2, log.Attempts)
	assert.Equal(t, "PAYMENT_DECLINED", log.Error.Code)
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		excludes string
	}{
		{
			name:     "card number redacted",
			input:    `{"cardNumber":"4242424242424242","amount":100}`,
			contains: "***REDACTED***",
			excludes: "4242424242424242",
		},
		{
			name:     "cvv redacted",
			input:    `{"cvv":"123","currency":"USD"}`,
			contains: "***REDACTED***",
			excludes: `"cvv":"123"`,
		},
		{
			name:     "client secret redacted",
			input:    `{"client_secret":"pi_123_secret_abc"}`,
			contains: "***REDACTED***",
			excludes: "pi_123_secret_abc",
		},
		{
			name:     "api key redacted",
			input:    `{"apiKey":"sk_test_12345"}`,
			contains: "***REDACTED***",
			excludes: "sk_test_12345",
		},
		{
			name:     "url parameter redacted",
			input:    "token=abc123xyz",
			contains: "***REDACTED***",
			excludes: "abc123xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeForLog(tt.input)
			assert.Contains(t, result, tt.contains)
			assert.NotContains(t, result, tt.excludes)
		})
	}
}

func TestSanitizeForLogPreservesSafeFields(t *testing.T) {
	input := `{"amount":100.50,"currency":"USD","status":"succeeded"}`
	result := SanitizeForLog(input)

	assert.Contains(t, result, "100.50")
	assert.Contains(t, result, "USD")
	assert.Contains(t, result, "succeeded")
}
