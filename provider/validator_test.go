package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() PaymentRequest {
	return PaymentRequest{
		Amount:     100,
		Currency:   "USD",
		CustomerID: "cus_123",
	}
}

func findingCodes(errs []ValidationError) []string {
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	return codes
}

func warningCodes(warns []ValidationWarning) []string {
	codes := make([]string, 0, len(warns))
	for _, w := range warns {
		codes = append(codes, w.Code)
	}
	return codes
}

func TestValidator_ValidRequest(t *testing.T) {
	v := NewValidator()
	target := newFakeProvider("stripe")

	result := v.ValidatePaymentRequest(validRequest(), PaymentContext{}, target)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "stripe", result.Metadata["provider"])
	assert.Equal(t, 8, result.Metadata["checks_run"])
	assert.IsType(t, time.Time{}, result.Metadata["validated_at"])
}

func TestValidator_Structure(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		mutate   func(*PaymentRequest)
		code     string
		field    string
	}{
		{"missing amount", func(r *PaymentRequest) { r.Amount = 0 }, "MISSING_REQUIRED_FIELD", "amount"},
		{"negative amount", func(r *PaymentRequest) { r.Amount = -5 }, "INVALID_AMOUNT", "amount"},
		{"missing currency", func(r *PaymentRequest) { r.Currency = "" }, "MISSING_REQUIRED_FIELD", "currency"},
		{"malformed currency", func(r *PaymentRequest) { r.Currency = "US1" }, "INVALID_CURRENCY_FORMAT", "currency"},
		{"currency too long", func(r *PaymentRequest) { r.Currency = "DOLLARS" }, "INVALID_CURRENCY_FORMAT", "currency"},
		{"missing customer", func(r *PaymentRequest) { r.CustomerID = "" }, "MISSING_REQUIRED_FIELD", "customerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			result := v.ValidatePaymentRequest(req, PaymentContext{}, nil)
			assert.False(t, result.Valid)
			assert.Contains(t, findingCodes(result.Errors), tt.code)
			var found bool
			for _, e := range result.Errors {
				if e.Code == tt.code && e.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected %s on field %s", tt.code, tt.field)
		})
	}
}

func TestValidator_CurrencySupport(t *testing.T) {
	v := NewValidator()
	target := newFakeProvider("stripe") // USD and EUR only

	req := validRequest()
	req.Currency = "GBP"

	result := v.ValidatePaymentRequest(req, PaymentContext{}, target)
	assert.False(t, result.Valid)
	assert.Contains(t, findingCodes(result.Errors), string(ErrCurrencyNotSupported))
}

func TestValidator_AmountLimits(t *testing.T) {
	v := NewValidator()
	stripe := newFakeProvider("stripe")
	paypal := newFakeProvider("paypal")

	tests := []struct {
		name     string
		target   PaymentProvider
		amount   float64
		currency string
		code     string
	}{
		{"stripe below minimum", stripe, 0.25, "USD", string(ErrAmountTooSmall)},
		{"stripe at minimum", stripe, 0.50, "USD", ""},
		{"paypal below its higher minimum", paypal, 0.75, "USD", string(ErrAmountTooSmall)},
		{"paypal above its lower ceiling", paypal, 20000, "USD", string(ErrAmountTooLarge)},
		{"stripe accepts what paypal rejects", stripe, 20000, "USD", ""},
		{"no target uses global bounds", nil, 0.25, "USD", string(ErrAmountTooSmall)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Amount = tt.amount
			req.Currency = tt.currency
			result := v.ValidatePaymentRequest(req, PaymentContext{}, tt.target)
			if tt.code == "" {
				assert.NotContains(t, findingCodes(result.Errors), string(ErrAmountTooSmall))
				assert.NotContains(t, findingCodes(result.Errors), string(ErrAmountTooLarge))
			} else {
				assert.Contains(t, findingCodes(result.Errors), tt.code)
			}
		})
	}
}

func TestValidator_CustomAmountLimit(t *testing.T) {
	v := NewValidator(WithAmountLimit("stripe", "usd", AmountLimit{Min: 500, Max: 10000}))

	req := validRequest()
	req.Amount = 1 // 100 minor units, below the custom floor

	result := v.ValidatePaymentRequest(req, PaymentContext{}, newFakeProvider("stripe"))
	assert.Contains(t, findingCodes(result.Errors), string(ErrAmountTooSmall))
}

func TestValidator_GeoRestrictions(t *testing.T) {
	v := NewValidator()
	stripe := newFakeProvider("stripe")
	paypal := newFakeProvider("paypal")

	tests := []struct {
		name    string
		target  PaymentProvider
		country string
		code    string
	}{
		{"sanctioned region blocked everywhere", nil, "KP", string(ErrRegionRestricted)},
		{"sanctioned region lowercase", stripe, "ir", string(ErrRegionRestricted)},
		{"stripe blocks russia", stripe, "RU", string(ErrRegionRestricted)},
		{"paypal does not block russia", paypal, "RU", ""},
		{"ordinary country passes", stripe, "DE", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.BillingAddress = &Address{Line1: "1 Main St", City: "Metropolis", Country: tt.country}
			result := v.ValidatePaymentRequest(req, PaymentContext{}, tt.target)
			if tt.code == "" {
				assert.NotContains(t, findingCodes(result.Errors), string(ErrRegionRestricted))
			} else {
				assert.Contains(t, findingCodes(result.Errors), tt.code)
			}
		})
	}
}

func TestValidator_GeoAllowList(t *testing.T) {
	v := NewValidator(WithGeoRules("stripe", GeoRules{Allowed: []string{"US", "CA"}}))

	req := validRequest()
	req.BillingAddress = &Address{Line1: "1 Main St", City: "Metropolis", Country: "DE"}

	result := v.ValidatePaymentRequest(req, PaymentContext{}, newFakeProvider("stripe"))
	assert.Contains(t, findingCodes(result.Errors), string(ErrRegionNotSupported))
}

func TestValidator_ShippingRestriction(t *testing.T) {
	v := NewValidator()

	req := validRequest()
	req.ShippingAddress = &Address{Line1: "1 Main St", City: "Pyongyang", Country: "KP"}

	result := v.ValidatePaymentRequest(req, PaymentContext{}, newFakeProvider("stripe"))
	assert.Contains(t, findingCodes(result.Errors), "SHIPPING_REGION_RESTRICTED")
}

func TestValidator_ComplianceWarnings(t *testing.T) {
	v := NewValidator()

	t.Run("aml review for large amounts", func(t *testing.T) {
		req := validRequest()
		req.Amount = 15000 // 1.5M minor units
		result := v.ValidatePaymentRequest(req, PaymentContext{}, newFakeProvider("stripe"))
		assert.True(t, result.Valid, "warnings never block")
		assert.Contains(t, warningCodes(result.Warnings), "AML_REVIEW_RECOMMENDED")
		assert.Contains(t, warningCodes(result.Warnings), "RISK_LARGE_AMOUNT")
	})

	t.Run("fraud detection gap on card payments", func(t *testing.T) {
		target := newFakeProvider("basic")
		target.features = Features{"refunds": true}
		req := validRequest()
		req.PaymentMethodType = MethodCard
		result := v.ValidatePaymentRequest(req, PaymentContext{}, target)
		assert.Contains(t, warningCodes(result.Warnings), "PCI_FRAUD_DETECTION_MISSING")
	})

	t.Run("cross border mismatch", func(t *testing.T) {
		req := validRequest()
		req.BillingAddress = &Address{Line1: "1 Main St", City: "Metropolis", Country: "US"}
		req.ShippingAddress = &Address{Line1: "2 High St", City: "London", Country: "GB"}
		result := v.ValidatePaymentRequest(req, PaymentContext{}, newFakeProvider("stripe"))
		assert.Contains(t, warningCodes(result.Warnings), "CROSS_BORDER_TRANSACTION")
	})
}

func TestValidator_PaymentMethod(t *testing.T) {
	v := NewValidator()
	target := newFakeProvider("stripe") // card and wallet only

	req := validRequest()
	req.PaymentMethodType = MethodBankTransfer

	result := v.ValidatePaymentRequest(req, PaymentContext{}, target)
	assert.Contains(t, findingCodes(result.Errors), "PAYMENT_METHOD_NOT_SUPPORTED")
}

func TestValidator_CardExpiry(t *testing.T) {
	v := NewValidator()
	now := time.Now()

	tests := []struct {
		name  string
		month int
		year  int
		code  string
	}{
		{"month out of range", 13, now.Year() + 1, "INVALID_EXPIRY_MONTH"},
		{"zero month", 0, now.Year() + 1, "INVALID_EXPIRY_MONTH"},
		{"expired last year", 6, now.Year() - 1, "CARD_EXPIRED"},
		{"valid next year", 6, now.Year() + 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Card = &CardDetails{Number: "4242424242424242", ExpireMonth: tt.month, ExpireYear: tt.year}
			result := v.ValidatePaymentRequest(req, PaymentContext{}, nil)
			if tt.code == "" {
				assert.NotContains(t, findingCodes(result.Errors), "CARD_EXPIRED")
				assert.NotContains(t, findingCodes(result.Errors), "INVALID_EXPIRY_MONTH")
			} else {
				assert.Contains(t, findingCodes(result.Errors), tt.code)
			}
		})
	}
}

func TestValidator_AddressShape(t *testing.T) {
	v := NewValidator()

	req := validRequest()
	req.BillingAddress = &Address{Country: "USA"} // missing line1/city, bad code

	result := v.ValidatePaymentRequest(req, PaymentContext{}, nil)
	codes := findingCodes(result.Errors)
	assert.Contains(t, codes, "INVALID_ADDRESS")
	assert.Contains(t, codes, "INVALID_COUNTRY_CODE")
}

func TestValidator_RiskHeuristics(t *testing.T) {
	t.Run("high velocity", func(t *testing.T) {
		v := NewValidator()
		pctx := PaymentContext{Metadata: map[string]string{"recent_transactions": "15"}}
		result := v.ValidatePaymentRequest(validRequest(), pctx, nil)
		assert.Contains(t, warningCodes(result.Warnings), "RISK_HIGH_VELOCITY")
	})

	t.Run("velocity at threshold is quiet", func(t *testing.T) {
		v := NewValidator()
		pctx := PaymentContext{Metadata: map[string]string{"recent_transactions": "10"}}
		result := v.ValidatePaymentRequest(validRequest(), pctx, nil)
		assert.NotContains(t, warningCodes(result.Warnings), "RISK_HIGH_VELOCITY")
	})

	t.Run("non domestic billing", func(t *testing.T) {
		v := NewValidator(WithHomeCountry("de"))
		pctx := PaymentContext{BillingCountry: "FR"}
		result := v.ValidatePaymentRequest(validRequest(), pctx, nil)
		assert.Contains(t, warningCodes(result.Warnings), "RISK_NON_DOMESTIC")

		domestic := v.ValidatePaymentRequest(validRequest(), PaymentContext{BillingCountry: "DE"}, nil)
		assert.NotContains(t, warningCodes(domestic.Warnings), "RISK_NON_DOMESTIC")
	})
}

func TestValidator_AggregatesAllFindings(t *testing.T) {
	v := NewValidator()
	target := newFakeProvider("stripe")

	// one request tripping structure, currency, method and geo checks at once
	req := PaymentRequest{
		Amount:            -1,
		Currency:          "GBP",
		PaymentMethodType: MethodBankTransfer,
		BillingAddress:    &Address{Line1: "1 Main St", City: "Pyongyang", Country: "KP"},
	}

	result := v.ValidatePaymentRequest(req, PaymentContext{}, target)
	require.False(t, result.Valid)

	codes := findingCodes(result.Errors)
	assert.Contains(t, codes, "INVALID_AMOUNT")
	assert.Contains(t, codes, "MISSING_REQUIRED_FIELD") // customer id
	assert.Contains(t, codes, string(ErrCurrencyNotSupported))
	assert.Contains(t, codes, "PAYMENT_METHOD_NOT_SUPPORTED")
	assert.Contains(t, codes, string(ErrRegionRestricted))
}

func TestValidator_RecoversFromPanic(t *testing.T) {
	v := NewValidator()
	target := newFakeProvider("stripe")
	target.currencies = nil // SupportedCurrencies returning nil must not panic

	result := v.ValidatePaymentRequest(validRequest(), PaymentContext{}, target)
	// nil currencies means unsupported, not a crash
	assert.False(t, result.Valid)
}
