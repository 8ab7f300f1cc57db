package provider

import (
	"context"
	"sync"

	"github.com/paybridge/paybridge/infra/logger"
)

// DefaultWebhookSeenCap bounds the deduplication set
const DefaultWebhookSeenCap = 10000

// WebhookDeduper drops webhook events whose id was already processed.
// Providers redeliver webhooks on timeout, so handlers must tolerate
// duplicates; the deduper absorbs them before dispatch.
type WebhookDeduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

// NewWebhookDeduper creates a deduper; n <= 0 uses the default capacity
func NewWebhookDeduper(n int) *WebhookDeduper {
	if n <= 0 {
		n = DefaultWebhookSeenCap
	}
	return &WebhookDeduper{
		seen: make(map[string]struct{}, n),
		cap:  n,
	}
}

// Seen records the event id and reports whether it was already present.
// Events with an empty id are never deduplicated.
func (d *WebhookDeduper) Seen(eventID string) bool {
	if eventID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return true
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[eventID] = struct{}{}
	d.order = append(d.order, eventID)
	return false
}

// WebhookDispatcher verifies, deduplicates and routes incoming webhooks to
// the owning provider adapter.
type WebhookDispatcher struct {
	registry *Registry
	deduper  *WebhookDeduper
	events   *EventBus
}

// NewWebhookDispatcher wires the dispatcher
func NewWebhookDispatcher(registry *Registry, events *EventBus) *WebhookDispatcher {
	return &WebhookDispatcher{
		registry: registry,
		deduper:  NewWebhookDeduper(0),
		events:   events,
	}
}

// Dispatch verifies the payload signature with the named provider, drops
// duplicates and hands the event to the adapter. Duplicate deliveries
// return the parsed event with no error.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, providerName string, payload []byte, signature string) (*WebhookEvent, error) {
	p, err := d.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	event, err := p.ConstructWebhookEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	if d.deduper.Seen(event.ID) {
		logger.Debug("Dropping duplicate webhook delivery", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"event_id": event.ID, "event_type": event.Type},
		})
		return event, nil
	}

	if err := p.HandleWebhookEvent(ctx, event); err != nil {
		return event, err
	}

	if d.events != nil {
		d.events.Publish(ctx, Event{
			Type:     "webhook." + event.Type,
			Provider: providerName,
			Source:   "webhook_dispatcher",
		})
	}
	return event, nil
}
