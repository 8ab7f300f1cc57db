package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paybridge/paybridge/infra/logger"
)

// Orchestrator defaults
const (
	DefaultMaxRetries     = 3
	DefaultAttemptTimeout = 30 * time.Second
	defaultLoadDecayEvery = time.Minute

	// retryFailureRateCap excludes providers whose live error rate exceeds
	// this bound when selecting for a retry attempt
	retryFailureRateCap = 0.10

	// hard global amount bounds in minor units, applied after selection
	hardAmountFloor   = 50
	hardAmountCeiling = 99999999
)

// FeeSchedule estimates a provider's cost for routing decisions
type FeeSchedule struct {
	Percent       float64 // of the amount
	Fixed         float64 // major units
	IntlSurcharge float64 // multiplier for cross-border payments, 0 = none
}

// defaultFeeSchedules reflect published card-present rates; deployments
// override via WithFeeSchedule.
var defaultFeeSchedules = map[string]FeeSchedule{
	"stripe": {Percent: 0.029, Fixed: 0.30},
	"paypal": {Percent: 0.0349, Fixed: 0.49, IntlSurcharge: 1.5},
}

// SelectionOptions tune one provider-selection call
type SelectionOptions struct {
	PreferLowestCost bool
	PreferFastest    bool
	Exclude          []string
	MaxFailureRate   float64 // 0 disables the failure-rate cap
}

// AttemptRecord captures one provider attempt for observability
type AttemptRecord struct {
	Provider   string    `json:"provider"`
	Attempt    int       `json:"attempt"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// LoadSnapshot is the system-wide load view returned by DistributeLoad
type LoadSnapshot struct {
	TotalRequests         int                    `json:"totalRequests"`
	Providers             map[string]LoadMetrics `json:"providers"`
	AverageResponseTimeMs float64                `json:"averageResponseTimeMs"`
	SuccessRate           float64                `json:"successRate"`
}

// OrchestratorConfig bounds the failover attempt loop
type OrchestratorConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration // 0 means exponential backoff
	AttemptTimeout time.Duration
	HomeCountry    string
}

// Orchestrator routes a payment context to a provider, executes the payment
// with bounded retries, and fails over across providers.
type Orchestrator struct {
	registry *Registry
	events   *EventBus
	errors   *ErrorHandler
	metrics  *MetricsCollector
	states   StateStore
	clock    Clock

	cfg  OrchestratorConfig
	fees map[string]FeeSchedule

	mu        sync.Mutex
	load      map[string]*LoadMetrics
	attempts  map[string][]AttemptRecord // correlation id -> records
	attemptsQ []string                   // eviction order
}

// maxAttemptHistories bounds the retained attempt histories
const maxAttemptHistories = 1000

// OrchestratorOption configures optional collaborators
type OrchestratorOption func(*Orchestrator)

// WithErrorHandler wires the classification/recovery engine
func WithErrorHandler(h *ErrorHandler) OrchestratorOption {
	return func(o *Orchestrator) { o.errors = h }
}

// WithMetricsCollector wires the metrics collector
func WithMetricsCollector(m *MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFeeSchedule overrides a provider's fee estimate
func WithFeeSchedule(providerName string, fees FeeSchedule) OrchestratorOption {
	return func(o *Orchestrator) { o.fees[providerName] = fees }
}

// WithOrchestratorClock injects a test clock
func WithOrchestratorClock(clock Clock) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = clock }
}

// NewOrchestrator creates the orchestrator. Registry, event bus and state
// store are required collaborators; the rest are optional.
func NewOrchestrator(registry *Registry, events *EventBus, states StateStore, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.HomeCountry == "" {
		cfg.HomeCountry = "US"
	}
	o := &Orchestrator{
		registry: registry,
		events:   events,
		states:   states,
		clock:    NewClock(),
		cfg:      cfg,
		fees:     make(map[string]FeeSchedule),
		load:     make(map[string]*LoadMetrics),
		attempts: make(map[string][]AttemptRecord),
	}
	for name, fees := range defaultFeeSchedules {
		o.fees[name] = fees
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EstimateFee computes the expected provider cost in major units for the
// given context, applying the cross-border surcharge when the billing
// country differs from the home market.
func (o *Orchestrator) EstimateFee(providerName string, pctx PaymentContext) float64 {
	fees, ok := o.fees[providerName]
	if !ok {
		return 0
	}
	amount := FromMinorUnits(pctx.Amount, pctx.Currency)
	fee := amount*fees.Percent + fees.Fixed
	if fees.IntlSurcharge > 0 && pctx.BillingCountry != "" &&
		!strings.EqualFold(pctx.BillingCountry, o.cfg.HomeCountry) {
		fee *= fees.IntlSurcharge
	}
	return fee
}

// healthScore reads the live load-derived health score for a provider,
// defaulting to 1 when no traffic has been seen.
func (o *Orchestrator) healthScore(providerName string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if lm, ok := o.load[providerName]; ok {
		return lm.HealthScore
	}
	return 1
}

func (o *Orchestrator) errorRate(providerName string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if lm, ok := o.load[providerName]; ok {
		return lm.ErrorRate
	}
	return 0
}

// SelectOptimalProvider chooses a provider for the context. Base filtering
// is delegated to the registry; when lowest cost is preferred and more than
// one healthy candidate remains, each candidate's estimated fee is weighted
// by its health score (cost x (2 - score), lower wins). The chosen provider
// is then validated for initialization and hard amount bounds.
func (o *Orchestrator) SelectOptimalProvider(pctx PaymentContext, opts SelectionOptions) (PaymentProvider, error) {
	criteria := SelectionCriteria{
		Currency:      pctx.Currency,
		PaymentMethod: pctx.PaymentMethod,
		Exclude:       opts.Exclude,
		PreferFastest: opts.PreferFastest,
	}

	var chosen PaymentProvider

	// honor an explicit preference when the provider is usable
	if pctx.PreferredProvider != "" && !contains(opts.Exclude, pctx.PreferredProvider) {
		if p, err := o.registry.Get(pctx.PreferredProvider); err == nil {
			if status, err := o.registry.GetHealth(p.Name()); err == nil && status.Status == HealthHealthy &&
				supportsCurrency(p, pctx.Currency) {
				chosen = p
			}
		}
	}

	if chosen == nil {
		candidates := o.selectionCandidates(criteria, opts)
		if len(candidates) == 0 {
			return nil, NewProviderError("", ErrProviderUnavailable, "no provider available for the request")
		}
		if opts.PreferLowestCost && len(candidates) > 1 {
			chosen = o.cheapestCandidate(candidates, pctx)
		} else {
			chosen = candidates[0]
		}
	}

	if !chosen.IsInitialized() {
		return nil, NewProviderError(chosen.Name(), ErrProviderNotInitialized, "provider is not initialized")
	}
	if pctx.Amount < hardAmountFloor {
		return nil, NewProviderError(chosen.Name(), ErrAmountTooSmall,
			fmt.Sprintf("amount %d is below the global floor of %d minor units", pctx.Amount, hardAmountFloor))
	}
	if pctx.Amount > hardAmountCeiling {
		return nil, NewProviderError(chosen.Name(), ErrAmountTooLarge,
			fmt.Sprintf("amount %d exceeds the global ceiling of %d minor units", pctx.Amount, hardAmountCeiling))
	}

	return chosen, nil
}

// selectionCandidates builds the ordered candidate list for one selection
func (o *Orchestrator) selectionCandidates(criteria SelectionCriteria, opts SelectionOptions) []PaymentProvider {
	// registry applies currency/method/exclusion filters; the failure-rate
	// cap comes from live load metrics the registry does not own
	var candidates []PaymentProvider
	if best := o.registry.SelectBestProvider(criteria); best != nil {
		// SelectBestProvider returns one; rebuild the full filtered set for
		// cost weighting by re-running the filters over healthy providers
		for _, p := range o.registry.GetHealthy() {
			if criteria.Currency != "" && !supportsCurrency(p, criteria.Currency) {
				continue
			}
			if criteria.PaymentMethod != "" && !supportsMethod(p, criteria.PaymentMethod) {
				continue
			}
			if contains(criteria.Exclude, p.Name()) {
				continue
			}
			candidates = append(candidates, p)
		}
	}
	if opts.MaxFailureRate > 0 {
		candidates = filterProviders(candidates, func(p PaymentProvider) bool {
			return o.errorRate(p.Name()) <= opts.MaxFailureRate
		})
	}
	if opts.PreferFastest && len(candidates) > 1 {
		best := candidates[0]
		bestStatus, _ := o.registry.GetHealth(best.Name())
		for _, p := range candidates[1:] {
			status, err := o.registry.GetHealth(p.Name())
			if err == nil && status.Latency < bestStatus.Latency {
				best, bestStatus = p, status
			}
		}
		// move the fastest to the front, keep the rest in order
		reordered := []PaymentProvider{best}
		for _, p := range candidates {
			if p.Name() != best.Name() {
				reordered = append(reordered, p)
			}
		}
		candidates = reordered
	}
	return candidates
}

// cheapestCandidate picks the minimum of fee x (2 - health score)
func (o *Orchestrator) cheapestCandidate(candidates []PaymentProvider, pctx PaymentContext) PaymentProvider {
	best := candidates[0]
	bestScore := o.EstimateFee(best.Name(), pctx) * (2 - o.healthScore(best.Name()))
	for _, p := range candidates[1:] {
		score := o.EstimateFee(p.Name(), pctx) * (2 - o.healthScore(p.Name()))
		if score < bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

// ReselectProvider returns a provider excluding the given names; it is the
// ProviderReselector capability the error handler's failover strategy uses.
func (o *Orchestrator) ReselectProvider(pctx PaymentContext, exclude []string) (PaymentProvider, error) {
	return o.SelectOptimalProvider(pctx, SelectionOptions{
		Exclude:        exclude,
		PreferFastest:  true,
		MaxFailureRate: retryFailureRateCap,
	})
}

// smartFailoverTarget returns the cross-provider fallback for a failed
// provider, biased by international, card and subscription signals.
func (o *Orchestrator) smartFailoverTarget(failed string, pctx PaymentContext) string {
	international := pctx.BillingCountry != "" && !strings.EqualFold(pctx.BillingCountry, o.cfg.HomeCountry)
	switch failed {
	case "stripe":
		// PayPal handles wallet flows and cross-border retail well
		if international || pctx.PaymentMethod == MethodCard || pctx.PaymentMethod == MethodWallet || pctx.PaymentMethod == MethodPayPal {
			return "paypal"
		}
	case "paypal":
		// Stripe is the stronger card and recurring processor
		if pctx.PaymentMethod == MethodCard || pctx.SubscriptionID != "" || international {
			return "stripe"
		}
	}
	return ""
}

// ProcessPaymentWithFailover executes the payment with bounded retries and
// provider failover. Attempts are strictly sequential; the loop returns on
// the first success or the first non-retryable failure.
func (o *Orchestrator) ProcessPaymentWithFailover(ctx context.Context, pctx PaymentContext, req PaymentRequest) (*PaymentResult, error) {
	correlationID := uuid.New().String()
	tried := make([]string, 0, o.cfg.MaxRetries)
	var lastErr error
	var lastFailed string

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		p, selErr := o.chooseForAttempt(ctx, pctx, attempt, lastFailed, tried, correlationID)
		if selErr != nil {
			// keep the attempt failure as the reported cause when there was one
			if lastErr == nil {
				lastErr = selErr
			}
			break
		}
		tried = append(tried, p.Name())

		result, attemptErr := o.executeAttempt(ctx, p, req)
		o.recordAttempt(correlationID, p.Name(), attempt, result, attemptErr)

		if attemptErr == nil && result != nil && result.Success {
			o.finishSuccess(ctx, p.Name(), pctx, req, result, attempt, correlationID)
			return result, nil
		}

		// failed attempt
		failure := attemptFailure(p.Name(), result, attemptErr)
		lastErr = failure
		lastFailed = p.Name()
		o.recordLoad(p.Name(), false, 0)
		o.registry.RecordOutcome(p.Name(), false)
		if o.metrics != nil {
			o.metrics.RecordAttempt(p.Name(), req.Currency, req.Amount, 0, false, 0)
		}
		if o.errors != nil {
			o.errors.HandleError(ctx, failure, pctx)
		}

		if !IsRetryableError(failure) {
			logger.Info("Non-retryable payment failure, stopping attempts", logger.LogContext{
				Provider: p.Name(),
				Fields:   map[string]any{"attempt": attempt, "error": failure.Error()},
			})
			break
		}
		if attempt < o.cfg.MaxRetries {
			select {
			case <-o.clock.After(o.retryDelay(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = o.cfg.MaxRetries // exit loop
			}
		}
	}

	attemptsMade := len(o.AttemptHistory(correlationID))
	if attemptsMade == 0 {
		attemptsMade = len(tried)
	}
	message := fmt.Sprintf("payment failed after %d attempts", attemptsMade)
	if lastErr != nil {
		message = fmt.Sprintf("%s: %s", message, lastErr.Error())
	}

	result := &PaymentResult{
		Success: false,
		Error:   resultErrorFrom(lastErr, message),
	}
	if lastFailed != "" {
		result.Provider = lastFailed
	}

	o.events.Publish(ctx, Event{
		Type:          EventPaymentFailed,
		Provider:      lastFailed,
		CorrelationID: correlationID,
		Source:        "orchestrator",
		Data: PaymentEventData{
			Provider: lastFailed,
			Amount:   req.Amount,
			Currency: req.Currency,
			Attempts: attemptsMade,
			Error:    message,
		},
	})

	return result, nil
}

// chooseForAttempt picks the provider for one attempt: the smart-failover
// target on early retries when applicable, otherwise optimal selection
// excluding everything already tried this run. When every candidate has
// been tried the last failed provider is re-attempted, so a retryable
// failure still consumes the full retry budget.
func (o *Orchestrator) chooseForAttempt(ctx context.Context, pctx PaymentContext, attempt int, lastFailed string, tried []string, correlationID string) (PaymentProvider, error) {
	if lastFailed != "" && attempt <= 2 {
		if target := o.smartFailoverTarget(lastFailed, pctx); target != "" && !contains(tried, target) {
			if p, err := o.registry.Get(target); err == nil && p.IsInitialized() {
				o.events.Publish(ctx, Event{
					Type:          EventProviderFailoverTriggered,
					Provider:      target,
					CorrelationID: correlationID,
					Source:        "orchestrator",
					Data: FailoverEventData{
						FromProvider: lastFailed,
						ToProvider:   target,
						Attempt:      attempt,
						Reason:       "smart failover",
					},
				})
				return p, nil
			}
		}
	}

	p, err := o.SelectOptimalProvider(pctx, SelectionOptions{
		PreferLowestCost: attempt == 1,
		PreferFastest:    attempt > 1,
		Exclude:          tried,
		MaxFailureRate:   retryFailureRateCap,
	})
	if err == nil {
		return p, nil
	}
	if lastFailed != "" {
		if prev, getErr := o.registry.Get(lastFailed); getErr == nil && prev.IsInitialized() {
			return prev, nil
		}
	}
	return nil, err
}

// executeAttempt invokes the provider under the hard attempt timeout. The
// context cancels the underlying call on timeout, but completion of the
// provider-side charge is not guaranteed to be aborted; adapters pass
// idempotency keys where supported.
func (o *Orchestrator) executeAttempt(ctx context.Context, p PaymentProvider, req PaymentRequest) (*PaymentResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	start := o.clock.Now()
	o.beginLoad(p.Name())

	type outcome struct {
		result *PaymentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: NewProviderError(p.Name(), ErrTemporaryError,
					fmt.Sprintf("provider panicked: %v", rec))}
			}
		}()
		result, err := p.CreatePaymentIntent(attemptCtx, req)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-o.clock.After(o.cfg.AttemptTimeout):
		out = outcome{err: NewProviderError(p.Name(), ErrTimeoutError,
			fmt.Sprintf("provider did not respond within %s", o.cfg.AttemptTimeout))}
	}

	elapsed := o.clock.Now().Sub(start)
	o.endLoad(p.Name(), elapsed)
	return out.result, out.err
}

// finishSuccess persists state, updates metrics and emits the success event
func (o *Orchestrator) finishSuccess(ctx context.Context, providerName string, pctx PaymentContext, req PaymentRequest, result *PaymentResult, attempt int, correlationID string) {
	if result.PaymentIntent != nil {
		if _, err := o.TrackPaymentState(ctx, result.PaymentIntent.ID, providerName, result.PaymentIntent.Status); err != nil {
			logger.Warn("Failed to track payment state", logger.LogContext{
				Provider: providerName,
				Fields:   map[string]any{"payment_intent_id": result.PaymentIntent.ID, "error": err.Error()},
			})
		}
	}

	o.recordLoad(providerName, true, 0)
	o.registry.RecordOutcome(providerName, true)
	if o.metrics != nil {
		o.metrics.RecordAttempt(providerName, req.Currency, req.Amount, o.EstimateFee(providerName, pctx), true, 0)
	}

	intentID := ""
	status := ""
	if result.PaymentIntent != nil {
		intentID = result.PaymentIntent.ID
		status = string(result.PaymentIntent.Status)
	}
	o.events.Publish(ctx, Event{
		Type:          EventPaymentSucceeded,
		Provider:      providerName,
		CorrelationID: correlationID,
		Source:        "orchestrator",
		Data: PaymentEventData{
			PaymentIntentID: intentID,
			Provider:        providerName,
			Amount:          req.Amount,
			Currency:        req.Currency,
			Status:          status,
			Attempts:        attempt,
		},
	})
}

// retryDelay returns the configured fixed delay or exponential backoff
// (1000 x 2^(attempt-1) ms).
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	if o.cfg.RetryDelay > 0 {
		return o.cfg.RetryDelay
	}
	return time.Duration(1000<<(attempt-1)) * time.Millisecond
}

// TrackPaymentState upserts the lifecycle record for a payment intent.
// Tracking an existing id increments its retry count without duplicating.
func (o *Orchestrator) TrackPaymentState(ctx context.Context, paymentIntentID, providerName string, status PaymentStatus) (PaymentState, error) {
	return o.states.Upsert(ctx, PaymentState{
		PaymentIntentID: paymentIntentID,
		Provider:        providerName,
		Status:          status,
	})
}

// GetPaymentState loads the tracked state; nil when unknown
func (o *Orchestrator) GetPaymentState(ctx context.Context, paymentIntentID string) (*PaymentState, error) {
	return o.states.Get(ctx, paymentIntentID)
}

// AttemptHistory returns the attempt records for one orchestration run
func (o *Orchestrator) AttemptHistory(correlationID string) []AttemptRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]AttemptRecord(nil), o.attempts[correlationID]...)
}

func (o *Orchestrator) recordAttempt(correlationID, providerName string, attempt int, result *PaymentResult, err error) {
	record := AttemptRecord{
		Provider:   providerName,
		Attempt:    attempt,
		StartedAt:  o.clock.Now(),
		FinishedAt: o.clock.Now(),
		Success:    err == nil && result != nil && result.Success,
	}
	if err != nil {
		record.Error = err.Error()
	} else if result != nil && result.Error != nil {
		record.Error = result.Error.Message
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.attempts[correlationID]; !ok {
		if len(o.attemptsQ) >= maxAttemptHistories {
			oldest := o.attemptsQ[0]
			o.attemptsQ = o.attemptsQ[1:]
			delete(o.attempts, oldest)
		}
		o.attemptsQ = append(o.attemptsQ, correlationID)
	}
	o.attempts[correlationID] = append(o.attempts[correlationID], record)
}

// beginLoad marks a request in flight for a provider
func (o *Orchestrator) beginLoad(providerName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	lm := o.loadFor(providerName)
	lm.CurrentRequests++
	lm.RequestsPerMinute++
}

// endLoad folds the response time into the provider's rolling average
func (o *Orchestrator) endLoad(providerName string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	lm := o.loadFor(providerName)
	if lm.CurrentRequests > 0 {
		lm.CurrentRequests--
	}
	ms := float64(elapsed.Milliseconds())
	if lm.AverageResponseTimeMs == 0 {
		lm.AverageResponseTimeMs = ms
	} else {
		lm.AverageResponseTimeMs = lm.AverageResponseTimeMs*0.8 + ms*0.2
	}
}

// recordLoad nudges the provider's health score and error rate
func (o *Orchestrator) recordLoad(providerName string, success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	lm := o.loadFor(providerName)
	if success {
		lm.HealthScore = clamp01(lm.HealthScore + 0.05)
		lm.ErrorRate = lm.ErrorRate * 0.9
	} else {
		lm.HealthScore = clamp01(lm.HealthScore - 0.15)
		lm.ErrorRate = clamp01(lm.ErrorRate*0.9 + 0.1)
	}
}

// loadFor must be called with the mutex held
func (o *Orchestrator) loadFor(providerName string) *LoadMetrics {
	lm, ok := o.load[providerName]
	if !ok {
		lm = &LoadMetrics{HealthScore: 1}
		o.load[providerName] = lm
	}
	return lm
}

// DistributeLoad aggregates live load metrics into a system-wide snapshot
func (o *Orchestrator) DistributeLoad() LoadSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := LoadSnapshot{Providers: make(map[string]LoadMetrics, len(o.load))}
	var totalMs, totalScore float64
	for name, lm := range o.load {
		snapshot.Providers[name] = *lm
		snapshot.TotalRequests += lm.RequestsPerMinute
		totalMs += lm.AverageResponseTimeMs
		totalScore += lm.HealthScore
	}
	if n := len(o.load); n > 0 {
		snapshot.AverageResponseTimeMs = totalMs / float64(n)
		snapshot.SuccessRate = totalScore / float64(n)
	}
	return snapshot
}

// StartLoadDecay decays per-minute counters and error rates toward zero on a
// fixed tick, approximating a sliding window without storing timestamps.
func (o *Orchestrator) StartLoadDecay(scheduler Scheduler) func() {
	return scheduler.Every(defaultLoadDecayEvery, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, lm := range o.load {
			lm.RequestsPerMinute /= 2
			lm.ErrorRate *= 0.5
		}
	})
}

// IsRetryableError reports whether the orchestrator should retry after the
// error: a code on the fixed allow-list, an explicit retryable flag, or a
// timeout/network-looking message.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		if retryableCodes[pe.Code] || pe.Retryable {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "network")
}

// attemptFailure normalizes a failed attempt into a typed error
func attemptFailure(providerName string, result *PaymentResult, err error) error {
	if err != nil {
		if _, ok := AsProviderError(err); ok {
			return err
		}
		return WrapProviderError(providerName, ErrPaymentFailed, err.Error(), err)
	}
	if result != nil && result.Error != nil {
		pe := NewProviderError(providerName, result.Error.Code, result.Error.Message)
		pe.Retryable = pe.Retryable || result.Error.Retryable
		return pe
	}
	return NewProviderError(providerName, ErrPaymentFailed, "provider returned an unsuccessful result")
}

// resultErrorFrom builds the aggregated failure detail for the final result
func resultErrorFrom(err error, message string) *ResultError {
	re := &ResultError{Code: ErrPaymentFailed, Message: message}
	if pe, ok := AsProviderError(err); ok {
		re.Code = pe.Code
		re.Retryable = pe.Retryable
	}
	return re
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
