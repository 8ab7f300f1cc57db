package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink forwards bus events to a NATS subject so external consumers
// (ledgers, notification services) can follow the payment lifecycle without
// subscribing in-process.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects the sink to a subject prefix; events publish to
// <prefix>.<event type>.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// Handler returns an EventHandler suitable for a wildcard subscription
func (s *NATSSink) Handler() EventHandler {
	return func(ctx context.Context, evt Event) error {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
		}
		subject := fmt.Sprintf("%s.%s", s.subject, evt.Type)
		if err := s.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("failed to publish event %s to %s: %w", evt.ID, subject, err)
		}
		return nil
	}
}

// Attach subscribes the sink to every event on the bus at low priority so
// in-process handlers run first.
func (s *NATSSink) Attach(bus *EventBus) string {
	return bus.Subscribe("*", 100, s.Handler())
}
