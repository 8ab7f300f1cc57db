package provider

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paybridge/paybridge/infra/logger"
)

// Lifecycle event types
const (
	EventPaymentIntentCreated         = "payment.intent.created"
	EventPaymentSucceeded             = "payment.succeeded"
	EventPaymentFailed                = "payment.failed"
	EventProviderHealthCheckCompleted = "provider.healthcheck.completed"
	EventProviderFailoverTriggered    = "provider.failover.triggered"
	EventErrorReported                = "error.reported"
	EventErrorEscalated               = "error.escalated"
	EventMetricsCollected             = "metrics.collected"
)

// EventSeverity grades an event for downstream filtering
type EventSeverity string

const (
	EventSeverityInfo     EventSeverity = "info"
	EventSeverityWarning  EventSeverity = "warning"
	EventSeverityError    EventSeverity = "error"
	EventSeverityCritical EventSeverity = "critical"
)

// EventData is the tagged payload of an event; one variant per event family.
type EventData interface {
	eventData()
}

// PaymentEventData accompanies payment lifecycle events
type PaymentEventData struct {
	PaymentIntentID string  `json:"paymentIntentId,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Status          string  `json:"status,omitempty"`
	Attempts        int     `json:"attempts,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// HealthCheckEventData accompanies provider.healthcheck.completed
type HealthCheckEventData struct {
	Results map[string]HealthStatus `json:"results"`
}

// FailoverEventData accompanies provider.failover.triggered
type FailoverEventData struct {
	FromProvider string `json:"fromProvider"`
	ToProvider   string `json:"toProvider"`
	Attempt      int    `json:"attempt"`
	Reason       string `json:"reason,omitempty"`
}

// ErrorEventData accompanies error.reported and error.escalated
type ErrorEventData struct {
	Code              ErrorCode `json:"code"`
	Provider          string    `json:"provider,omitempty"`
	Severity          string    `json:"severity"`
	Category          string    `json:"category"`
	RecoveryAttempted bool      `json:"recoveryAttempted"`
	RecoverySucceeded bool      `json:"recoverySucceeded"`
}

// MetricsEventData accompanies metrics.collected
type MetricsEventData struct {
	Report MetricsReport `json:"report"`
}

func (PaymentEventData) eventData()     {}
func (HealthCheckEventData) eventData() {}
func (FailoverEventData) eventData()    {}
func (ErrorEventData) eventData()       {}
func (MetricsEventData) eventData()     {}

// Event is the pub/sub envelope. Events are never mutated after emission;
// middleware that modifies an event produces a new value.
type Event struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Provider      string        `json:"provider,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Data          EventData     `json:"data,omitempty"`
	Severity      EventSeverity `json:"severity"`
	CorrelationID string        `json:"correlationId,omitempty"`
	Source        string        `json:"source,omitempty"`
}

// ErrStopPropagation short-circuits the remaining handler chain for an event
var ErrStopPropagation = errors.New("stop event propagation")

// EventHandler processes one event. Returning ErrStopPropagation stops the
// remaining chain for that event; other errors are logged and the chain
// continues.
type EventHandler func(ctx context.Context, evt Event) error

// EventMiddleware hooks run around handler dispatch in ascending priority
// order (lower number first). Before may return a modified event or false to
// drop the event entirely.
type EventMiddleware struct {
	Priority int
	Before   func(evt Event) (Event, bool)
	After    func(evt Event)
}

// DefaultHandlerTimeout bounds one subscriber so a slow handler cannot stall
// event delivery.
const DefaultHandlerTimeout = 10 * time.Second

// DefaultEventHistoryCap bounds the in-memory event history ring
const DefaultEventHistoryCap = 1000

type subscription struct {
	id       string
	typ      string // event type or "*"
	priority int
	handler  EventHandler
}

// EventBus fans lifecycle events out to subscribed handlers and middleware.
type EventBus struct {
	mu             sync.RWMutex
	subs           []subscription
	middleware     []EventMiddleware
	history        []Event
	historyCap     int
	handlerTimeout time.Duration
	clock          Clock
}

// EventBusOption configures the bus
type EventBusOption func(*EventBus)

// WithHandlerTimeout overrides the per-handler timeout
func WithHandlerTimeout(d time.Duration) EventBusOption {
	return func(b *EventBus) { b.handlerTimeout = d }
}

// WithEventHistoryCap overrides the history ring capacity
func WithEventHistoryCap(n int) EventBusOption {
	return func(b *EventBus) { b.historyCap = n }
}

// WithEventBusClock injects a test clock
func WithEventBusClock(clock Clock) EventBusOption {
	return func(b *EventBus) { b.clock = clock }
}

// NewEventBus creates an event bus
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		historyCap:     DefaultEventHistoryCap,
		handlerTimeout: DefaultHandlerTimeout,
		clock:          NewClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type ("*" matches every type).
// Handlers run in ascending priority order. Returns the subscription id.
func (b *EventBus) Subscribe(eventType string, priority int, handler EventHandler) string {
	id := uuid.New().String()
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, typ: eventType, priority: priority, handler: handler})
	sort.SliceStable(b.subs, func(i, j int) bool { return b.subs[i].priority < b.subs[j].priority })
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a handler by subscription id
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Use registers middleware; hooks execute in ascending priority order
func (b *EventBus) Use(mw EventMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
	sort.SliceStable(b.middleware, func(i, j int) bool {
		return b.middleware[i].Priority < b.middleware[j].Priority
	})
}

// Publish enriches the event (id, timestamp, severity, correlation id),
// appends it to the bounded history and dispatches it through middleware and
// handlers. Returns the event as delivered.
func (b *EventBus) Publish(ctx context.Context, evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.clock.Now()
	}
	if evt.Severity == "" {
		evt.Severity = deriveSeverity(evt.Type)
	}
	if evt.CorrelationID == "" {
		evt.CorrelationID = evt.ID
	}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historyCap {
		// drop oldest
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	middleware := append([]EventMiddleware(nil), b.middleware...)
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	delivered := evt
	for _, mw := range middleware {
		if mw.Before == nil {
			continue
		}
		next, keep := mw.Before(delivered)
		if !keep {
			return delivered
		}
		delivered = next
	}

	for _, sub := range subs {
		if sub.typ != "*" && sub.typ != delivered.Type {
			continue
		}
		if err := b.dispatch(ctx, sub, delivered); err != nil {
			if errors.Is(err, ErrStopPropagation) {
				break
			}
			logger.Warn("Event handler failed", logger.LogContext{
				Fields: map[string]any{
					"event_type": delivered.Type,
					"event_id":   delivered.ID,
					"error":      err.Error(),
				},
			})
		}
	}

	for _, mw := range middleware {
		if mw.After != nil {
			mw.After(delivered)
		}
	}

	return delivered
}

// dispatch runs one handler under the bus timeout
func (b *EventBus) dispatch(ctx context.Context, sub subscription, evt Event) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- NewProviderError("", ErrTemporaryError, "event handler panicked")
			}
		}()
		done <- sub.handler(ctx, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-b.clock.After(b.handlerTimeout):
		return NewProviderError("", ErrTimeoutError, "event handler timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns a copy of the bounded event history, oldest first
func (b *EventBus) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.history...)
}

// deriveSeverity grades an event by substring heuristics on its type string
func deriveSeverity(eventType string) EventSeverity {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "critical") || strings.Contains(t, "escalated"):
		return EventSeverityCritical
	case strings.Contains(t, "error") || strings.Contains(t, "failed"):
		return EventSeverityError
	case strings.Contains(t, "warning") || strings.Contains(t, "degraded"):
		return EventSeverityWarning
	default:
		return EventSeverityInfo
	}
}
