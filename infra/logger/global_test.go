package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitGlobalLogger(t *testing.T) {
	// Reset global state for testing
	globalLogger = nil
	once = sync.Once{}

	// Test initialization
	InitGlobalLogger(nil)

	assert.NotNil(t, globalLogger)
	assert.Equal(t, "paybridge", globalLogger.service)
	assert.Equal(t, "1.0.0", globalLogger.version)
}

func TestGetGlobalLogger(t *testing.T) {
	// Reset global state for testing
	globalLogger = nil
	once = sync.Once{}

	// Test getting logger before initialization
	logger := GetGlobalLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, "paybridge", logger.service)
}

func TestGlobalLoggerConvenienceFunctions(t *testing.T) {
	// Reset global state for testing
	globalLogger = nil
	once = sync.Once{}

	InitGlobalLogger(nil)

	// These should not panic
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message", assert.AnError)

	ctx := LogContext{Provider: "stripe"}
	Debug("debug with context", ctx)
	Info("info with context", ctx)
	Warn("warn with context", ctx)
	Error("error with context", assert.AnError, ctx)
}

func TestGlobalWithContext(t *testing.T) {
	globalLogger = nil
	once = sync.Once{}
	InitGlobalLogger(nil)

	contextLogger := WithContext(LogContext{
		Provider:  "paypal",
		RequestID: "req-123",
	})

	assert.NotNil(t, contextLogger)
	assert.Equal(t, "paypal", contextLogger.context.Provider)
	assert.Equal(t, "req-123", contextLogger.context.RequestID)
}

func TestGlobalWithProvider(t *testing.T) {
	globalLogger = nil
	once = sync.Once{}
	InitGlobalLogger(nil)

	contextLogger := WithProvider("stripe")

	assert.NotNil(t, contextLogger)
	assert.Equal(t, "stripe", contextLogger.context.Provider)
}
