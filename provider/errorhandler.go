package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paybridge/paybridge/infra/logger"
)

// ErrorSeverity ranks an error for alerting and escalation
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorCategory groups errors by their origin
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryNetwork        ErrorCategory = "network"
	CategoryBusiness       ErrorCategory = "business"
	CategorySystem         ErrorCategory = "system"
)

// Recovery strategy names
const (
	StrategyProviderFailover      = "provider_failover"
	StrategyRetryWithBackoff      = "retry_with_backoff"
	StrategyPaymentMethodFallback = "payment_method_fallback"
	StrategyAmountAdjustment      = "amount_adjustment"
	StrategyManualReview          = "manual_review"
)

// ErrorRecord is one classified error kept in the bounded history
type ErrorRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Provider  string         `json:"provider"`
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Severity  ErrorSeverity  `json:"severity"`
	Category  ErrorCategory  `json:"category"`
	Recovered bool           `json:"recovered"`
	Strategy  string         `json:"recoveryStrategy,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// ErrorStatistic aggregates occurrences per provider and code
type ErrorStatistic struct {
	Provider  string    `json:"provider"`
	Code      ErrorCode `json:"code"`
	Count     int       `json:"count"`
	Recovered int       `json:"recovered"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// HandleOutcome is the result of classifying and attempting recovery
type HandleOutcome struct {
	Handled            bool          `json:"handled"`
	Severity           ErrorSeverity `json:"severity"`
	Category           ErrorCategory `json:"category"`
	Strategy           string        `json:"strategy,omitempty"`
	RecoveryAttempted  bool          `json:"recoveryAttempted"`
	RecoverySucceeded  bool          `json:"recoverySucceeded"`
	SuggestedProvider  string        `json:"suggestedProvider,omitempty"`
	UserActionRequired bool          `json:"userActionRequired"`
	UserMessage        string        `json:"userMessage,omitempty"`
}

// ProviderReselector supplies an alternative provider for the failover
// strategy without coupling the handler to the orchestrator.
type ProviderReselector interface {
	ReselectProvider(pctx PaymentContext, exclude []string) (PaymentProvider, error)
}

// History bounds
const (
	DefaultErrorHistoryCap = 5000
	errorRetention         = 7 * 24 * time.Hour
	errorPruneEvery        = time.Hour
)

// ErrorHandler classifies provider errors, attempts recovery and keeps a
// bounded history with per-provider statistics.
type ErrorHandler struct {
	events     *EventBus
	reselector ProviderReselector
	clock      Clock

	mu      sync.Mutex
	records []ErrorRecord
	cap     int
	stats   map[string]*ErrorStatistic // provider + ":" + code
}

// ErrorHandlerOption configures the handler
type ErrorHandlerOption func(*ErrorHandler)

// WithReselector wires the failover strategy's provider source
func WithReselector(r ProviderReselector) ErrorHandlerOption {
	return func(h *ErrorHandler) { h.reselector = r }
}

// WithErrorHistoryCap overrides the bounded history size
func WithErrorHistoryCap(n int) ErrorHandlerOption {
	return func(h *ErrorHandler) {
		if n > 0 {
			h.cap = n
		}
	}
}

// WithErrorHandlerClock injects a test clock
func WithErrorHandlerClock(clock Clock) ErrorHandlerOption {
	return func(h *ErrorHandler) { h.clock = clock }
}

// NewErrorHandler creates the handler. The event bus may be nil when the
// handler runs standalone in tests.
func NewErrorHandler(events *EventBus, opts ...ErrorHandlerOption) *ErrorHandler {
	h := &ErrorHandler{
		events: events,
		clock:  NewClock(),
		cap:    DefaultErrorHistoryCap,
		stats:  make(map[string]*ErrorStatistic),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetReselector wires the reselector after construction, breaking the
// construction-order cycle with the orchestrator.
func (h *ErrorHandler) SetReselector(r ProviderReselector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reselector = r
}

// HandleError classifies the error, records it, attempts recovery and
// reports the outcome. It never panics; an internal fault degrades to an
// unhandled outcome that asks for user action.
func (h *ErrorHandler) HandleError(ctx context.Context, err error, pctx PaymentContext) (outcome HandleOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Error handler panicked", nil, logger.LogContext{
				Fields: map[string]any{"panic": rec},
			})
			outcome = HandleOutcome{
				Handled:            false,
				Severity:           SeverityCritical,
				Category:           CategorySystem,
				UserActionRequired: true,
				UserMessage:        "An unexpected error occurred. Please try again or contact support.",
			}
		}
	}()

	if err == nil {
		return HandleOutcome{Handled: true, Severity: SeverityLow, Category: CategorySystem}
	}

	pe, _ := AsProviderError(err)
	severity, category := Classify(err)

	record := ErrorRecord{
		ID:        uuid.New().String(),
		Timestamp: h.clock.Now(),
		Message:   err.Error(),
		Severity:  severity,
		Category:  category,
	}
	if pe != nil {
		record.Provider = pe.Provider
		record.Code = pe.Code
		record.Context = pe.Context
	}

	outcome = HandleOutcome{Handled: true, Severity: severity, Category: category}
	outcome.Strategy = h.strategyFor(pe, severity, category)

	switch outcome.Strategy {
	case StrategyProviderFailover:
		outcome.RecoveryAttempted = true
		if h.reselector != nil && pe != nil {
			if alt, selErr := h.reselector.ReselectProvider(pctx, []string{pe.Provider}); selErr == nil {
				outcome.RecoverySucceeded = true
				outcome.SuggestedProvider = alt.Name()
			} else {
				// nothing left to fail over to
				outcome.Strategy = StrategyManualReview
				outcome.UserActionRequired = true
				outcome.UserMessage = "Payment could not be processed right now. Please try again later."
			}
		}
	case StrategyRetryWithBackoff:
		// the orchestrator owns the retry loop; marking the strategy is
		// enough for callers outside it
		outcome.RecoveryAttempted = true
		outcome.RecoverySucceeded = true
	case StrategyPaymentMethodFallback:
		outcome.UserActionRequired = true
		outcome.UserMessage = "Your payment method was declined. Please try a different payment method."
	case StrategyAmountAdjustment:
		outcome.UserActionRequired = true
		outcome.UserMessage = "The payment amount is outside the allowed range."
	case StrategyManualReview:
		outcome.UserActionRequired = true
		if outcome.UserMessage == "" {
			outcome.UserMessage = "The payment requires manual review. Support has been notified."
		}
	}
	record.Recovered = outcome.RecoverySucceeded
	record.Strategy = outcome.Strategy

	h.store(record)
	h.publish(ctx, record, outcome)

	return outcome
}

// Classify derives severity and category for an error. Typed provider
// errors classify by code; plain errors fall back to message matching.
func Classify(err error) (ErrorSeverity, ErrorCategory) {
	pe, ok := AsProviderError(err)
	if !ok {
		// plain errors bucket by message; anything not network-like is high
		category := categorize(strings.ToUpper(err.Error()))
		if category == CategoryNetwork {
			return SeverityMedium, category
		}
		return SeverityHigh, category
	}

	var severity ErrorSeverity
	switch pe.Code {
	case ErrProviderUnavailable, ErrProviderConfigInvalid:
		severity = SeverityCritical
	case ErrPaymentDeclined, ErrPaymentFailed, ErrWebhookSignatureInvalid:
		severity = SeverityHigh
	case ErrProviderRateLimited, ErrAmountTooLarge, ErrCurrencyNotSupported:
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	return severity, categorize(string(pe.Code))
}

// categorize buckets an upper-cased code or message by substring
func categorize(s string) ErrorCategory {
	switch {
	case strings.Contains(s, "INVALID"), strings.Contains(s, "REQUIRED"):
		return CategoryValidation
	case strings.Contains(s, "AUTH"):
		return CategoryAuthentication
	case strings.Contains(s, "NETWORK"), strings.Contains(s, "TIMEOUT"):
		return CategoryNetwork
	case strings.Contains(s, "DECLINED"), strings.Contains(s, "INSUFFICIENT"):
		return CategoryBusiness
	default:
		return CategorySystem
	}
}

// strategyFor maps a classified error to its recovery strategy
func (h *ErrorHandler) strategyFor(pe *ProviderError, severity ErrorSeverity, category ErrorCategory) string {
	if pe == nil {
		if category == CategoryNetwork {
			return StrategyRetryWithBackoff
		}
		return StrategyManualReview
	}
	switch pe.Code {
	case ErrProviderUnavailable, ErrProviderRateLimited:
		return StrategyProviderFailover
	case ErrNetworkError, ErrTimeoutError, ErrTemporaryError:
		return StrategyRetryWithBackoff
	case ErrPaymentDeclined, ErrPaymentInsufficient, ErrPaymentMethodInvalid:
		return StrategyPaymentMethodFallback
	case ErrAmountTooSmall, ErrAmountTooLarge:
		return StrategyAmountAdjustment
	}
	return StrategyManualReview
}

func (h *ErrorHandler) store(record ErrorRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	if len(h.records) > h.cap {
		h.records = h.records[len(h.records)-h.cap:]
	}

	key := record.Provider + ":" + string(record.Code)
	stat, ok := h.stats[key]
	if !ok {
		stat = &ErrorStatistic{
			Provider:  record.Provider,
			Code:      record.Code,
			FirstSeen: record.Timestamp,
		}
		h.stats[key] = stat
	}
	stat.Count++
	if record.Recovered {
		stat.Recovered++
	}
	stat.LastSeen = record.Timestamp
}

func (h *ErrorHandler) publish(ctx context.Context, record ErrorRecord, outcome HandleOutcome) {
	if h.events == nil {
		return
	}
	data := ErrorEventData{
		Code:              record.Code,
		Provider:          record.Provider,
		Severity:          string(record.Severity),
		Category:          string(record.Category),
		RecoveryAttempted: outcome.RecoveryAttempted,
		RecoverySucceeded: outcome.RecoverySucceeded,
	}
	h.events.Publish(ctx, Event{
		Type:     EventErrorReported,
		Provider: record.Provider,
		Source:   "error_handler",
		Data:     data,
	})
	if record.Severity == SeverityCritical {
		h.events.Publish(ctx, Event{
			Type:     EventErrorEscalated,
			Provider: record.Provider,
			Source:   "error_handler",
			Data:     data,
		})
	}
}

// Records returns a copy of the bounded error history
func (h *ErrorHandler) Records() []ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ErrorRecord(nil), h.records...)
}

// Statistics returns the per-provider, per-code aggregates
func (h *ErrorHandler) Statistics() []ErrorStatistic {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ErrorStatistic, 0, len(h.stats))
	for _, s := range h.stats {
		out = append(out, *s)
	}
	return out
}

// Prune drops records older than the retention window
func (h *ErrorHandler) Prune() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.clock.Now().Add(-errorRetention)
	kept := h.records[:0]
	pruned := 0
	for _, r := range h.records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		} else {
			pruned++
		}
	}
	h.records = kept
	return pruned
}

// StartPruning runs Prune on a fixed tick; the returned func stops it
func (h *ErrorHandler) StartPruning(scheduler Scheduler) func() {
	return scheduler.Every(errorPruneEvery, func() {
		if n := h.Prune(); n > 0 {
			logger.Debug("Pruned expired error records", logger.LogContext{
				Fields: map[string]any{"pruned": n},
			})
		}
	})
}
