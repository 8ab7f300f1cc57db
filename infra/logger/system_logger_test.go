package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger() *SystemLogger {
	return NewSystemLogger(nil, SystemLoggerConfig{
		EnableConsole:    false,
		EnableOpenSearch: false,
		MinLevel:         LevelDebug,
		Service:          "paybridge",
		Version:          "1.0.0",
		Environment:      "test",
	})
}

func TestNewSystemLogger(t *testing.T) {
	logger := NewSystemLogger(nil, SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: true, // no OpenSearch logger wired, must stay off
		MinLevel:         LevelInfo,
		Service:          "paybridge",
		Version:          "1.0.0",
		Environment:      "test",
	})

	assert.NotNil(t, logger)
	assert.True(t, logger.enableConsole)
	assert.False(t, logger.enableOpenSearch)
	assert.Equal(t, LevelInfo, logger.minLevel)
}

func TestShouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel LogLevel
		level    LogLevel
		expected bool
	}{
		{"debug at debug", LevelDebug, LevelDebug, true},
		{"debug at info", LevelInfo, LevelDebug, false},
		{"info at info", LevelInfo, LevelInfo, true},
		{"warn at info", LevelInfo, LevelWarn, true},
		{"error at warn", LevelWarn, LevelError, true},
		{"info at error", LevelError, LevelInfo, false},
		{"fatal at error", LevelError, LevelFatal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newTestLogger()
			logger.minLevel = tt.minLevel
			assert.Equal(t, tt.expected, logger.shouldLog(tt.level))
		})
	}
}

func TestExtractComponent(t *testing.T) {
	logger := newTestLogger()

	tests := []struct {
		name     string
		filePath string
		expected string
	}{
		{
			name:     "provider subpackage",
			filePath: "/path/to/paybridge/provider/stripe/stripe.go",
			expected: "provider/stripe",
		},
		{
			name:     "handler package",
			filePath: "/path/to/paybridge/handler/payment.go",
			expected: "handler/payment.go",
		},
		{
			name:     "unrelated path falls back to parent dir",
			filePath: "/usr/local/go/src/net/http/server.go",
			expected: "http",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, logger.extractComponent(tt.filePath))
		})
	}
}

func TestLogLevels(t *testing.T) {
	logger := newTestLogger()

	// None of these should panic
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", assert.AnError)
}

func TestLogWithContext(t *testing.T) {
	logger := newTestLogger()

	logger.Info("payment processed", LogContext{
		Provider:  "stripe",
		RequestID: "req-456",
		Fields: map[string]any{
			"amount":   100.50,
			"currency": "USD",
		},
	})
}

func TestErrorAttachesErrorField(t *testing.T) {
	logger := newTestLogger()

	// Error with no explicit context still carries the error in fields
	logger.Error("provider call failed", assert.AnError)
	logger.Error("provider call failed", assert.AnError, LogContext{Provider: "paypal"})
}

func TestContextLogger(t *testing.T) {
	logger := newTestLogger()

	contextLogger := logger.WithContext(LogContext{Provider: "stripe"}).
		SetRequestID("req-789").
		AddField("paymentIntentId", "pi_123")

	assert.Equal(t, "stripe", contextLogger.context.Provider)
	assert.Equal(t, "req-789", contextLogger.context.RequestID)
	assert.Equal(t, "pi_123", contextLogger.context.Fields["paymentIntentId"])

	contextLogger.Debug("debug")
	contextLogger.Info("info")
	contextLogger.Warn("warn")
	contextLogger.Error("error", assert.AnError)
}

func TestContextLoggerSetProvider(t *testing.T) {
	logger := newTestLogger()

	contextLogger := logger.WithContext(LogContext{}).SetProvider("paypal")
	assert.Equal(t, "paypal", contextLogger.context.Provider)
}
