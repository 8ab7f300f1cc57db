package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paybridge/paybridge/infra/logger"
)

// DefaultHealthCheckInterval is how often registered providers are polled
const DefaultHealthCheckInterval = 30 * time.Second

// healthCheckTimeout bounds a single provider probe
const healthCheckTimeout = 10 * time.Second

// degradedLatency is the probe latency above which a responding provider is
// reported degraded rather than healthy
const degradedLatency = 2 * time.Second

// SelectionCriteria narrows the candidate set for provider selection
type SelectionCriteria struct {
	Currency         string            `json:"currency,omitempty"`
	PaymentMethod    PaymentMethodType `json:"paymentMethod,omitempty"`
	RequiredFeatures []string          `json:"requiredFeatures,omitempty"`
	Exclude          []string          `json:"exclude,omitempty"`
	PreferFastest    bool              `json:"preferFastest,omitempty"`
}

// RegistryCallback is notified on provider registration and removal
type RegistryCallback func(providerName string)

// HealthChangedCallback is notified when a provider's health state changes
type HealthChangedCallback func(providerName string, status HealthStatus)

// Registry is the single source of truth for which provider adapters exist,
// whether they are healthy, and which one best matches selection criteria.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]PaymentProvider
	order     []string // registration order, keeps selection deterministic
	health    map[string]*HealthStatus

	onRegister      []RegistryCallback
	onRemove        []RegistryCallback
	onHealthChanged []HealthChangedCallback

	events      *EventBus
	healthStore HealthStore
	scheduler   Scheduler
	clock       Clock
	stopChecks  func()
}

// RegistryOption configures optional registry collaborators
type RegistryOption func(*Registry)

// WithRegistryEventBus emits health-check lifecycle events
func WithRegistryEventBus(events *EventBus) RegistryOption {
	return func(r *Registry) { r.events = events }
}

// WithHealthStore mirrors health snapshots to a shared store
func WithHealthStore(store HealthStore) RegistryOption {
	return func(r *Registry) { r.healthStore = store }
}

// WithRegistryClock injects a test clock
func WithRegistryClock(clock Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates a provider registry
func NewRegistry(scheduler Scheduler, opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: make(map[string]PaymentProvider),
		health:    make(map[string]*HealthStatus),
		scheduler: scheduler,
		clock:     NewClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider adapter. An adapter with an empty name, no
// supported currencies or nil features fails with PROVIDER_CONFIG_INVALID.
// Re-registering a name overwrites the prior adapter with a warning.
func (r *Registry) Register(p PaymentProvider) error {
	if err := validateAdapter(p); err != nil {
		return err
	}

	name := p.Name()

	r.mu.Lock()
	if _, exists := r.providers[name]; exists {
		logger.Warn("Overwriting previously registered provider", logger.LogContext{
			Provider: name,
		})
	} else {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	r.health[name] = &HealthStatus{
		Status:      HealthHealthy,
		SuccessRate: 1,
		LastChecked: r.clock.Now(),
	}
	callbacks := append([]RegistryCallback(nil), r.onRegister...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(name)
	}
	return nil
}

func validateAdapter(p PaymentProvider) error {
	if p == nil {
		return NewProviderError("", ErrProviderConfigInvalid, "provider adapter is nil")
	}
	if strings.TrimSpace(p.Name()) == "" {
		return NewProviderError("", ErrProviderConfigInvalid, "provider name cannot be empty")
	}
	if len(p.SupportedCurrencies()) == 0 {
		return NewProviderError(p.Name(), ErrProviderConfigInvalid, "provider must declare supported currencies")
	}
	if p.Features() == nil {
		return NewProviderError(p.Name(), ErrProviderConfigInvalid, "provider must declare a feature set")
	}
	return nil
}

// Get retrieves a registered provider by name
func (r *Registry) Get(name string) (PaymentProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[name]
	if !exists {
		return nil, NewProviderError(name, ErrProviderNotFound, "provider is not registered")
	}
	return p, nil
}

// GetAll returns every registered provider in registration order
func (r *Registry) GetAll() []PaymentProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]PaymentProvider, 0, len(r.order))
	for _, name := range r.order {
		providers = append(providers, r.providers[name])
	}
	return providers
}

// GetHealthy returns providers whose current health status is healthy.
// Filtering is by health only, not capability.
func (r *Registry) GetHealthy() []PaymentProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var healthy []PaymentProvider
	for _, name := range r.order {
		if status, ok := r.health[name]; ok && status.Status == HealthHealthy {
			healthy = append(healthy, r.providers[name])
		}
	}
	return healthy
}

// GetHealth returns a copy of the provider's health snapshot
func (r *Registry) GetHealth(name string) (HealthStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, exists := r.health[name]
	if !exists {
		return HealthStatus{}, NewProviderError(name, ErrProviderNotFound, "provider is not registered")
	}
	return *status, nil
}

// Remove deregisters a provider and deletes its health status
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	if _, exists := r.providers[name]; !exists {
		r.mu.Unlock()
		return NewProviderError(name, ErrProviderNotFound, "provider is not registered")
	}
	delete(r.providers, name)
	delete(r.health, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	callbacks := append([]RegistryCallback(nil), r.onRemove...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(name)
	}
	return nil
}

// Clear deregisters all providers
func (r *Registry) Clear() {
	r.mu.Lock()
	names := append([]string(nil), r.order...)
	r.providers = make(map[string]PaymentProvider)
	r.health = make(map[string]*HealthStatus)
	r.order = nil
	callbacks := append([]RegistryCallback(nil), r.onRemove...)
	r.mu.Unlock()

	for _, name := range names {
		for _, cb := range callbacks {
			cb(name)
		}
	}
}

// OnRegister adds a registration callback
func (r *Registry) OnRegister(cb RegistryCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegister = append(r.onRegister, cb)
}

// OnRemove adds a removal callback
func (r *Registry) OnRemove(cb RegistryCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, cb)
}

// OnHealthChanged adds a health-transition callback
func (r *Registry) OnHealthChanged(cb HealthChangedCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHealthChanged = append(r.onHealthChanged, cb)
}

// GetByCapability filters providers by a feature flag value
func (r *Registry) GetByCapability(key string, value bool) []PaymentProvider {
	var matched []PaymentProvider
	for _, p := range r.GetAll() {
		if p.Features()[key] == value {
			matched = append(matched, p)
		}
	}
	return matched
}

// GetByCurrency filters providers supporting the currency (case-insensitive)
func (r *Registry) GetByCurrency(currency string) []PaymentProvider {
	var matched []PaymentProvider
	for _, p := range r.GetAll() {
		if supportsCurrency(p, currency) {
			matched = append(matched, p)
		}
	}
	return matched
}

// GetByPaymentMethod filters providers supporting the method type
func (r *Registry) GetByPaymentMethod(method PaymentMethodType) []PaymentProvider {
	var matched []PaymentProvider
	for _, p := range r.GetAll() {
		if supportsMethod(p, method) {
			matched = append(matched, p)
		}
	}
	return matched
}

func supportsCurrency(p PaymentProvider, currency string) bool {
	want := normalizeCurrency(currency)
	for _, c := range p.SupportedCurrencies() {
		if normalizeCurrency(c) == want {
			return true
		}
	}
	return false
}

func supportsMethod(p PaymentProvider, method PaymentMethodType) bool {
	for _, m := range p.SupportedPaymentMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// SelectBestProvider applies, in order, the currency filter, payment-method
// filter, required-feature filter and exclusion filter over healthy providers.
// With PreferFastest it returns the lowest-latency candidate, otherwise the
// first remaining candidate in registration order. Returns nil when no
// candidate remains; callers must handle that.
func (r *Registry) SelectBestProvider(criteria SelectionCriteria) PaymentProvider {
	candidates := r.GetHealthy()

	if criteria.Currency != "" {
		candidates = filterProviders(candidates, func(p PaymentProvider) bool {
			return supportsCurrency(p, criteria.Currency)
		})
	}
	if criteria.PaymentMethod != "" {
		candidates = filterProviders(candidates, func(p PaymentProvider) bool {
			return supportsMethod(p, criteria.PaymentMethod)
		})
	}
	for _, feature := range criteria.RequiredFeatures {
		feature := feature
		candidates = filterProviders(candidates, func(p PaymentProvider) bool {
			return p.Features()[feature]
		})
	}
	if len(criteria.Exclude) > 0 {
		excluded := make(map[string]bool, len(criteria.Exclude))
		for _, name := range criteria.Exclude {
			excluded[name] = true
		}
		candidates = filterProviders(candidates, func(p PaymentProvider) bool {
			return !excluded[p.Name()]
		})
	}

	if len(candidates) == 0 {
		return nil
	}

	if criteria.PreferFastest {
		best := candidates[0]
		bestLatency, _ := r.GetHealth(best.Name())
		for _, p := range candidates[1:] {
			status, err := r.GetHealth(p.Name())
			if err == nil && status.Latency < bestLatency.Latency {
				best = p
				bestLatency = status
			}
		}
		return best
	}

	return candidates[0]
}

func filterProviders(providers []PaymentProvider, keep func(PaymentProvider) bool) []PaymentProvider {
	var out []PaymentProvider
	for _, p := range providers {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// PerformHealthCheck probes every registered adapter concurrently with
// independent failure isolation: one adapter's failure never blocks or
// corrupts another's result.
func (r *Registry) PerformHealthCheck(ctx context.Context) map[string]HealthStatus {
	providers := r.GetAll()

	type probeResult struct {
		name    string
		latency time.Duration
		err     error
	}

	results := make(chan probeResult, len(providers))
	for _, p := range providers {
		go func(p PaymentProvider) {
			probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()

			start := r.clock.Now()
			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = NewProviderError(p.Name(), ErrProviderUnavailable, "health check panicked")
					}
				}()
				err = p.HealthCheck(probeCtx)
			}()
			results <- probeResult{name: p.Name(), latency: r.clock.Now().Sub(start), err: err}
		}(p)
	}

	snapshot := make(map[string]HealthStatus, len(providers))
	for range providers {
		res := <-results
		status := r.applyProbeResult(res.name, res.latency, res.err)
		snapshot[res.name] = status

		if r.healthStore != nil {
			if err := r.healthStore.Save(ctx, res.name, status); err != nil {
				logger.Warn("Failed to save health snapshot", logger.LogContext{
					Provider: res.name,
					Fields:   map[string]any{"error": err.Error()},
				})
			}
		}
	}

	if r.events != nil {
		r.events.Publish(ctx, Event{
			Type:     EventProviderHealthCheckCompleted,
			Source:   "registry",
			Data:     HealthCheckEventData{Results: snapshot},
			Provider: "",
		})
	}

	return snapshot
}

// applyProbeResult updates one provider's health snapshot and fires
// health-changed callbacks on state transitions.
func (r *Registry) applyProbeResult(name string, latency time.Duration, probeErr error) HealthStatus {
	r.mu.Lock()
	status, exists := r.health[name]
	if !exists {
		// removed while probing
		r.mu.Unlock()
		return HealthStatus{Status: HealthUnhealthy}
	}

	previous := status.Status
	status.Latency = latency
	status.LastChecked = r.clock.Now()

	if probeErr != nil {
		status.Status = HealthUnhealthy
		status.ErrorRate = nudge(status.ErrorRate, 1)
		status.SuccessRate = nudge(status.SuccessRate, 0)
	} else {
		if latency > degradedLatency {
			status.Status = HealthDegraded
		} else {
			status.Status = HealthHealthy
		}
		status.ErrorRate = nudge(status.ErrorRate, 0)
		status.SuccessRate = nudge(status.SuccessRate, 1)
	}

	changed := status.Status != previous
	snapshot := *status
	callbacks := append([]HealthChangedCallback(nil), r.onHealthChanged...)
	r.mu.Unlock()

	if probeErr != nil {
		logger.Warn("Provider health check failed", logger.LogContext{
			Provider: name,
			Fields:   map[string]any{"error": probeErr.Error()},
		})
	}
	if changed {
		for _, cb := range callbacks {
			cb(name, snapshot)
		}
	}
	return snapshot
}

// nudge moves a rate toward a target with exponential smoothing
func nudge(current, target float64) float64 {
	const alpha = 0.3
	return current*(1-alpha) + target*alpha
}

// RecordOutcome updates a provider's health rates after a load-affecting
// event (payment success or error) outside the periodic probe.
func (r *Registry) RecordOutcome(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.health[name]
	if !exists {
		return
	}
	if success {
		status.SuccessRate = nudge(status.SuccessRate, 1)
		status.ErrorRate = nudge(status.ErrorRate, 0)
	} else {
		status.SuccessRate = nudge(status.SuccessRate, 0)
		status.ErrorRate = nudge(status.ErrorRate, 1)
	}
	status.LastChecked = r.clock.Now()
}

// StartHealthChecks begins periodic polling; returns a stop function
func (r *Registry) StartHealthChecks(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	stop := r.scheduler.Every(interval, func() {
		r.PerformHealthCheck(context.Background())
	})
	r.mu.Lock()
	r.stopChecks = stop
	r.mu.Unlock()
	return stop
}

// factories is the package-level factory catalog; provider subpackages
// register themselves in init (stripe, paypal).
var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterFactory adds a provider factory to the package catalog
func RegisterFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// FactoryNames lists all registered factory names
func FactoryNames() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// CredentialSource resolves provider credentials; returns nil when the
// provider has no credentials configured.
type CredentialSource func(providerName string) map[string]string

// DiscoverProviders auto-registers every cataloged provider whose
// credentials are configured. A provider with no credentials at all is
// simply not enabled; a provider whose credentials are present but do not
// initialize is a fatal startup error.
func (r *Registry) DiscoverProviders(credentials CredentialSource) ([]string, error) {
	factoriesMu.RLock()
	catalog := make(map[string]ProviderFactory, len(factories))
	for name, factory := range factories {
		catalog[name] = factory
	}
	factoriesMu.RUnlock()

	var registered []string
	for name, factory := range catalog {
		creds := credentials(name)
		if len(creds) == 0 {
			continue
		}
		p := factory()
		if err := p.Initialize(creds); err != nil {
			return registered, fmt.Errorf("provider %s is configured but failed to initialize: %w", name, err)
		}
		if err := r.Register(p); err != nil {
			return registered, fmt.Errorf("provider %s could not be registered: %w", name, err)
		}
		registered = append(registered, name)
		logger.Info("Provider discovered and registered", logger.LogContext{Provider: name})
	}
	return registered, nil
}
