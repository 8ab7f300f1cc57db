package provider

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed taxonomy of provider error codes used throughout
// the payment layer.
type ErrorCode string

const (
	ErrProviderNotInitialized  ErrorCode = "PROVIDER_NOT_INITIALIZED"
	ErrProviderConfigInvalid   ErrorCode = "PROVIDER_CONFIG_INVALID"
	ErrProviderNotFound        ErrorCode = "PROVIDER_NOT_FOUND"
	ErrProviderUnavailable     ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderRateLimited     ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrProviderQuotaExceeded   ErrorCode = "PROVIDER_QUOTA_EXCEEDED"
	ErrPaymentDeclined         ErrorCode = "PAYMENT_DECLINED"
	ErrPaymentInsufficient     ErrorCode = "PAYMENT_INSUFFICIENT_FUNDS"
	ErrPaymentExpired          ErrorCode = "PAYMENT_EXPIRED"
	ErrPaymentCancelled        ErrorCode = "PAYMENT_CANCELLED"
	ErrPaymentFailed           ErrorCode = "PAYMENT_FAILED"
	ErrCustomerNotFound        ErrorCode = "CUSTOMER_NOT_FOUND"
	ErrPaymentMethodInvalid    ErrorCode = "PAYMENT_METHOD_INVALID"
	ErrWebhookSignatureInvalid ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrCurrencyNotSupported    ErrorCode = "CURRENCY_NOT_SUPPORTED"
	ErrAmountTooSmall          ErrorCode = "AMOUNT_TOO_SMALL"
	ErrAmountTooLarge          ErrorCode = "AMOUNT_TOO_LARGE"
	ErrRegionNotSupported      ErrorCode = "REGION_NOT_SUPPORTED"
	ErrRegionRestricted        ErrorCode = "REGION_RESTRICTED"
	ErrFeatureNotSupported     ErrorCode = "FEATURE_NOT_SUPPORTED"
	ErrNetworkError            ErrorCode = "NETWORK_ERROR"
	ErrTimeoutError            ErrorCode = "TIMEOUT_ERROR"
	ErrTemporaryError          ErrorCode = "TEMPORARY_ERROR"
)

// retryableCodes is the fixed allow-list of codes the orchestrator retries.
var retryableCodes = map[ErrorCode]bool{
	ErrProviderUnavailable: true,
	ErrProviderRateLimited: true,
	ErrNetworkError:        true,
	ErrTimeoutError:        true,
	ErrTemporaryError:      true,
}

// ProviderError is the typed error returned by adapters and orchestration.
// It carries the closed code, the provider it came from, a retryable hint
// and optional structured context.
type ProviderError struct {
	Code      ErrorCode      `json:"code"`
	Provider  string         `json:"provider,omitempty"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context,omitempty"`
	Err       error          `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a typed provider error; the retryable flag is
// derived from the fixed allow-list of retryable codes.
func NewProviderError(providerName string, code ErrorCode, message string) *ProviderError {
	return &ProviderError{
		Code:      code,
		Provider:  providerName,
		Message:   message,
		Retryable: retryableCodes[code],
	}
}

// WrapProviderError wraps an underlying error with a typed code
func WrapProviderError(providerName string, code ErrorCode, message string, err error) *ProviderError {
	pe := NewProviderError(providerName, code, message)
	pe.Err = err
	return pe
}

// WithContext attaches structured context and returns the same error
func (e *ProviderError) WithContext(key string, value any) *ProviderError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// AsProviderError extracts a *ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
