package topologyevents

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

type recordingPublisher struct {
	topic string
	msgs  []*message.Message
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, messages...)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

func TestDispatcherPublishesToEventsRoutingKey(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub)

	ev := TopologyChanged{At: time.Unix(0, 0), Eligible: 2, Total: 3}
	if err := d.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.topic != routingKeyTopologyChanged {
		t.Fatalf("expected topic %q, got %q", routingKeyTopologyChanged, pub.topic)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected exactly one published message, got %d", len(pub.msgs))
	}
}

func TestDispatcherRejectsNilEvent(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{})
	if err := d.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a nil event")
	}
}

func TestNoopDispatcherNeverFails(t *testing.T) {
	var d Dispatcher = NoopDispatcher{}
	if err := d.Publish(context.Background(), DiscoveryExhausted{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
