package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FindingSeverity grades a validation finding
type FindingSeverity string

const (
	FindingLow      FindingSeverity = "low"
	FindingMedium   FindingSeverity = "medium"
	FindingHigh     FindingSeverity = "high"
	FindingCritical FindingSeverity = "critical"
)

// ValidationError is a blocking finding from the validator
type ValidationError struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Field    string          `json:"field,omitempty"`
	Severity FindingSeverity `json:"severity"`
	Context  map[string]any  `json:"context,omitempty"`
}

// ValidationWarning is a non-blocking finding from the validator
type ValidationWarning struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Field    string          `json:"field,omitempty"`
	Severity FindingSeverity `json:"severity"` // low, medium or high
}

// ValidationResult aggregates every finding from one validation pass
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
	Metadata map[string]any      `json:"validationMetadata,omitempty"`
}

// AmountLimit bounds a payment amount in minor units
type AmountLimit struct {
	Min int64
	Max int64
}

// GeoRules are per-provider geographic restrictions using ISO country codes
type GeoRules struct {
	Allowed []string // empty means all except denied
	Denied  []string
}

// globalAmountLimit is the conservative fallback when no provider+currency
// specific entry exists.
var globalAmountLimit = AmountLimit{Min: 50, Max: 99999999}

// sanctionedRegions are always denied regardless of provider rules
var sanctionedRegions = []string{"KP", "IR", "SY", "CU", "SD"}

// largeTransactionThreshold (minor units) triggers an AML review warning
const largeTransactionThreshold = 1_000_000

// highVelocityThreshold is the recent-transaction count above which a
// velocity warning is raised
const highVelocityThreshold = 10

// Validator runs a payment request through an ordered battery of independent
// checks, never short-circuiting, so the caller sees the complete problem set
// in one round trip.
type Validator struct {
	validate     *validator.Validate
	amountLimits map[string]map[string]AmountLimit // provider -> currency -> limit
	geoRules     map[string]GeoRules               // provider -> rules
	homeCountry  string
}

// ValidatorOption configures the rule tables
type ValidatorOption func(*Validator)

// WithAmountLimit sets a provider+currency amount limit (minor units)
func WithAmountLimit(providerName, currency string, limit AmountLimit) ValidatorOption {
	return func(v *Validator) {
		currency = normalizeCurrency(currency)
		if v.amountLimits[providerName] == nil {
			v.amountLimits[providerName] = make(map[string]AmountLimit)
		}
		v.amountLimits[providerName][currency] = limit
	}
}

// WithGeoRules sets a provider's geographic allow/deny lists
func WithGeoRules(providerName string, rules GeoRules) ValidatorOption {
	return func(v *Validator) { v.geoRules[providerName] = rules }
}

// WithHomeCountry sets the country considered domestic for risk heuristics
func WithHomeCountry(country string) ValidatorOption {
	return func(v *Validator) { v.homeCountry = strings.ToUpper(country) }
}

// NewValidator creates the rule engine with default provider rules
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		validate:     validator.New(),
		amountLimits: make(map[string]map[string]AmountLimit),
		geoRules:     make(map[string]GeoRules),
		homeCountry:  "US",
	}

	// Stripe and PayPal defaults; callers can override per deployment.
	WithAmountLimit("stripe", "USD", AmountLimit{Min: 50, Max: 99999999})(v)
	WithAmountLimit("stripe", "EUR", AmountLimit{Min: 50, Max: 99999999})(v)
	WithAmountLimit("stripe", "JPY", AmountLimit{Min: 50, Max: 9999999})(v)
	WithAmountLimit("paypal", "USD", AmountLimit{Min: 100, Max: 1000000})(v)
	WithAmountLimit("paypal", "EUR", AmountLimit{Min: 100, Max: 1000000})(v)
	WithGeoRules("stripe", GeoRules{Denied: []string{"KP", "IR", "SY", "CU", "SD", "RU", "BY"}})(v)
	WithGeoRules("paypal", GeoRules{Denied: []string{"KP", "IR", "SY", "CU", "SD"}})(v)

	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidatePaymentRequest runs every check against the target provider and
// aggregates all findings. A failure inside validation itself is converted
// into a single critical VALIDATION_SYSTEM_ERROR finding; validation never
// panics into the caller.
func (v *Validator) ValidatePaymentRequest(req PaymentRequest, pctx PaymentContext, target PaymentProvider) (result ValidationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Code:     "VALIDATION_SYSTEM_ERROR",
					Message:  fmt.Sprintf("validation failed internally: %v", rec),
					Severity: FindingCritical,
				}},
			}
		}
	}()

	var errs []ValidationError
	var warns []ValidationWarning

	errs = append(errs, v.checkStructure(req)...)
	errs = append(errs, v.checkCurrencySupport(req, target)...)
	errs = append(errs, v.checkAmountLimits(req, target)...)
	errs = append(errs, v.checkGeoRestrictions(req, target)...)
	warns = append(warns, v.checkCompliance(req, target)...)
	errs = append(errs, v.checkPaymentMethod(req, target)...)
	errs = append(errs, v.checkCustomerShape(req)...)
	warns = append(warns, v.checkRiskHeuristics(req, pctx)...)

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Metadata: map[string]any{
			"provider":     providerName(target),
			"checks_run":   8,
			"validated_at": time.Now().UTC(),
		},
	}
}

func providerName(p PaymentProvider) string {
	if p == nil {
		return ""
	}
	return p.Name()
}

// checkStructure verifies required fields and basic shapes
func (v *Validator) checkStructure(req PaymentRequest) []ValidationError {
	var errs []ValidationError

	if req.Amount == 0 {
		errs = append(errs, ValidationError{
			Code: "MISSING_REQUIRED_FIELD", Message: "amount is required",
			Field: "amount", Severity: FindingHigh,
		})
	} else if req.Amount < 0 {
		errs = append(errs, ValidationError{
			Code: "INVALID_AMOUNT", Message: "amount must be positive",
			Field: "amount", Severity: FindingHigh,
		})
	}

	if req.Currency == "" {
		errs = append(errs, ValidationError{
			Code: "MISSING_REQUIRED_FIELD", Message: "currency is required",
			Field: "currency", Severity: FindingHigh,
		})
	} else if v.validate.Var(req.Currency, "len=3,alpha") != nil {
		errs = append(errs, ValidationError{
			Code: "INVALID_CURRENCY_FORMAT", Message: "currency must be a 3-letter ISO 4217 code",
			Field: "currency", Severity: FindingHigh,
		})
	}

	if req.CustomerID == "" {
		errs = append(errs, ValidationError{
			Code: "MISSING_REQUIRED_FIELD", Message: "customerId is required",
			Field: "customerId", Severity: FindingHigh,
		})
	}

	return errs
}

// checkCurrencySupport verifies the provider supports the currency
func (v *Validator) checkCurrencySupport(req PaymentRequest, target PaymentProvider) []ValidationError {
	if target == nil || req.Currency == "" {
		return nil
	}
	if supportsCurrency(target, req.Currency) {
		return nil
	}
	return []ValidationError{{
		Code:     string(ErrCurrencyNotSupported),
		Message:  fmt.Sprintf("%s does not support %s; supported: %s", target.Name(), normalizeCurrency(req.Currency), strings.Join(target.SupportedCurrencies(), ", ")),
		Field:    "currency",
		Severity: FindingCritical,
		Context:  map[string]any{"supported_currencies": target.SupportedCurrencies()},
	}}
}

// checkAmountLimits verifies provider+currency min/max, falling back to the
// conservative global bounds when no specific entry exists
func (v *Validator) checkAmountLimits(req PaymentRequest, target PaymentProvider) []ValidationError {
	if req.Amount <= 0 || req.Currency == "" {
		return nil
	}

	limit := globalAmountLimit
	if target != nil {
		if byCurrency, ok := v.amountLimits[target.Name()]; ok {
			if specific, ok := byCurrency[normalizeCurrency(req.Currency)]; ok {
				limit = specific
			}
		}
	}

	minor := ToMinorUnits(req.Amount, req.Currency)
	switch {
	case minor < limit.Min:
		return []ValidationError{{
			Code:     string(ErrAmountTooSmall),
			Message:  fmt.Sprintf("amount %d is below the minimum of %d minor units", minor, limit.Min),
			Field:    "amount",
			Severity: FindingHigh,
		}}
	case minor > limit.Max:
		return []ValidationError{{
			Code:     string(ErrAmountTooLarge),
			Message:  fmt.Sprintf("amount %d exceeds the maximum of %d minor units", minor, limit.Max),
			Field:    "amount",
			Severity: FindingHigh,
		}}
	}
	return nil
}

// checkGeoRestrictions applies the provider allow/deny lists and the
// sanctioned-region list to billing and shipping countries
func (v *Validator) checkGeoRestrictions(req PaymentRequest, target PaymentProvider) []ValidationError {
	var errs []ValidationError

	rules := GeoRules{}
	if target != nil {
		rules = v.geoRules[target.Name()]
	}
	denied := append(append([]string(nil), rules.Denied...), sanctionedRegions...)

	if req.BillingAddress != nil && req.BillingAddress.Country != "" {
		country := strings.ToUpper(req.BillingAddress.Country)
		if containsCountry(denied, country) {
			errs = append(errs, ValidationError{
				Code:     string(ErrRegionRestricted),
				Message:  fmt.Sprintf("billing country %s is restricted", country),
				Field:    "billingAddress.country",
				Severity: FindingCritical,
			})
		} else if len(rules.Allowed) > 0 && !containsCountry(rules.Allowed, country) {
			errs = append(errs, ValidationError{
				Code:     string(ErrRegionNotSupported),
				Message:  fmt.Sprintf("billing country %s is not supported by this provider", country),
				Field:    "billingAddress.country",
				Severity: FindingCritical,
			})
		}
	}

	if req.ShippingAddress != nil && req.ShippingAddress.Country != "" {
		country := strings.ToUpper(req.ShippingAddress.Country)
		if containsCountry(denied, country) {
			errs = append(errs, ValidationError{
				Code:     "SHIPPING_REGION_RESTRICTED",
				Message:  fmt.Sprintf("shipping country %s is restricted", country),
				Field:    "shippingAddress.country",
				Severity: FindingHigh,
			})
		}
	}

	return errs
}

// checkCompliance raises non-blocking compliance warnings
func (v *Validator) checkCompliance(req PaymentRequest, target PaymentProvider) []ValidationWarning {
	var warns []ValidationWarning

	if req.PaymentMethodType == MethodCard && target != nil && !target.Features()["fraud_detection"] {
		warns = append(warns, ValidationWarning{
			Code:     "PCI_FRAUD_DETECTION_MISSING",
			Message:  "card payment routed to a provider without fraud detection",
			Severity: FindingMedium,
		})
	}

	if req.Currency != "" && ToMinorUnits(req.Amount, req.Currency) >= largeTransactionThreshold {
		warns = append(warns, ValidationWarning{
			Code:     "AML_REVIEW_RECOMMENDED",
			Message:  "large transaction; anti-money-laundering review recommended",
			Field:    "amount",
			Severity: FindingHigh,
		})
	}

	if req.BillingAddress != nil && req.ShippingAddress != nil &&
		req.BillingAddress.Country != "" && req.ShippingAddress.Country != "" &&
		!strings.EqualFold(req.BillingAddress.Country, req.ShippingAddress.Country) {
		warns = append(warns, ValidationWarning{
			Code:     "CROSS_BORDER_TRANSACTION",
			Message:  "billing and shipping countries differ",
			Severity: FindingLow,
		})
	}

	return warns
}

// checkPaymentMethod verifies method support and card-specific sub-checks
func (v *Validator) checkPaymentMethod(req PaymentRequest, target PaymentProvider) []ValidationError {
	var errs []ValidationError

	if req.PaymentMethodType != "" && target != nil && !supportsMethod(target, req.PaymentMethodType) {
		errs = append(errs, ValidationError{
			Code:     "PAYMENT_METHOD_NOT_SUPPORTED",
			Message:  fmt.Sprintf("%s does not support payment method %s", target.Name(), req.PaymentMethodType),
			Field:    "paymentMethodType",
			Severity: FindingHigh,
		})
	}

	if req.Card != nil {
		if req.Card.ExpireMonth < 1 || req.Card.ExpireMonth > 12 {
			errs = append(errs, ValidationError{
				Code:     "INVALID_EXPIRY_MONTH",
				Message:  "card expiry month must be between 1 and 12",
				Field:    "card.expireMonth",
				Severity: FindingHigh,
			})
		}
		now := time.Now()
		if req.Card.ExpireYear > 0 {
			if req.Card.ExpireYear < now.Year() ||
				(req.Card.ExpireYear == now.Year() && req.Card.ExpireMonth >= 1 && req.Card.ExpireMonth < int(now.Month())) {
				errs = append(errs, ValidationError{
					Code:     "CARD_EXPIRED",
					Message:  "card has expired",
					Field:    "card.expireYear",
					Severity: FindingHigh,
				})
			}
		}
	}

	return errs
}

// checkCustomerShape verifies customer id and address field shapes
func (v *Validator) checkCustomerShape(req PaymentRequest) []ValidationError {
	var errs []ValidationError

	for field, addr := range map[string]*Address{
		"billingAddress":  req.BillingAddress,
		"shippingAddress": req.ShippingAddress,
	} {
		if addr == nil {
			continue
		}
		if addr.Line1 == "" {
			errs = append(errs, ValidationError{
				Code: "INVALID_ADDRESS", Message: "address line1 is required",
				Field: field + ".line1", Severity: FindingMedium,
			})
		}
		if addr.City == "" {
			errs = append(errs, ValidationError{
				Code: "INVALID_ADDRESS", Message: "address city is required",
				Field: field + ".city", Severity: FindingMedium,
			})
		}
		if addr.Country == "" {
			errs = append(errs, ValidationError{
				Code: "INVALID_ADDRESS", Message: "address country is required",
				Field: field + ".country", Severity: FindingMedium,
			})
		} else if v.validate.Var(addr.Country, "len=2,alpha") != nil {
			errs = append(errs, ValidationError{
				Code: "INVALID_COUNTRY_CODE", Message: "country must be a 2-letter ISO 3166-1 code",
				Field: field + ".country", Severity: FindingMedium,
			})
		}
	}

	return errs
}

// checkRiskHeuristics raises non-blocking risk signals
func (v *Validator) checkRiskHeuristics(req PaymentRequest, pctx PaymentContext) []ValidationWarning {
	var warns []ValidationWarning

	if req.Currency != "" && ToMinorUnits(req.Amount, req.Currency) >= largeTransactionThreshold {
		warns = append(warns, ValidationWarning{
			Code:     "RISK_LARGE_AMOUNT",
			Message:  "transaction amount is unusually large",
			Field:    "amount",
			Severity: FindingMedium,
		})
	}

	if recent, ok := pctx.Metadata["recent_transactions"]; ok {
		if count, err := strconv.Atoi(recent); err == nil && count > highVelocityThreshold {
			warns = append(warns, ValidationWarning{
				Code:     "RISK_HIGH_VELOCITY",
				Message:  fmt.Sprintf("customer made %d recent transactions", count),
				Severity: FindingHigh,
			})
		}
	}

	if pctx.BillingCountry != "" && !strings.EqualFold(pctx.BillingCountry, v.homeCountry) {
		warns = append(warns, ValidationWarning{
			Code:     "RISK_NON_DOMESTIC",
			Message:  "billing country is outside the domestic market",
			Severity: FindingLow,
		})
	}

	return warns
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func containsCountry(list []string, country string) bool {
	for _, c := range list {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
