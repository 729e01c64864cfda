package topologyevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Dispatcher defines the high-level contract for outgoing discovery
// events, keeping the resolver agnostic of the transport implementation
// (adapted from the teacher's internal/adapter/pubsub.EventDispatcher).
type Dispatcher interface {
	Publish(ctx context.Context, ev Eventer) error
}

type dispatcher struct {
	publisher message.Publisher
}

// NewDispatcher returns the interface instead of the pointer to the
// struct, matching the teacher's constructor style.
func NewDispatcher(pub message.Publisher) Dispatcher {
	return &dispatcher{publisher: pub}
}

func (d *dispatcher) Publish(ctx context.Context, ev Eventer) error {
	if ev == nil {
		return fmt.Errorf("topology event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("topology event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(ev.GetRoutingKey(), msg); err != nil {
		return fmt.Errorf("topology event dispatcher: failed to publish to topic %s: %w", ev.GetRoutingKey(), err)
	}
	return nil
}

// NoopDispatcher discards every event; the default when no AMQP broker is
// configured, so wiring topologyevents stays optional.
type NoopDispatcher struct{}

func (NoopDispatcher) Publish(context.Context, Eventer) error { return nil }
