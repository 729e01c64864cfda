package seedpool

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

func TestGetChannelCachesOnePerEndpoint(t *testing.T) {
	p := New(false, nil, nil, 0)
	t.Cleanup(func() { _ = p.Close() })

	ep := clustertypes.Endpoint{Host: "localhost", Port: 1}
	c1, err := p.GetChannel(context.Background(), ep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := p.GetChannel(context.Background(), ep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected the same cached channel for repeated GetChannel calls")
	}
}

func TestGetChannelFailsAfterClose(t *testing.T) {
	p := New(false, nil, nil, 0)
	ep := clustertypes.Endpoint{Host: "localhost", Port: 1}
	if _, err := p.GetChannel(context.Background(), ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	_, err := p.GetChannel(context.Background(), clustertypes.Endpoint{Host: "other", Port: 2})
	if err == nil {
		t.Fatal("expected ErrResourceClosed after Close")
	}
	var closedErr *clustertypes.ErrResourceClosed
	if !errors.As(err, &closedErr) {
		t.Fatalf("expected *clustertypes.ErrResourceClosed, got %T: %v", err, err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(false, nil, nil, 0)
	ep := clustertypes.Endpoint{Host: "localhost", Port: 1}
	if _, err := p.GetChannel(context.Background(), ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestDialOptionsHookIsInvokedPerEndpoint(t *testing.T) {
	var seen []clustertypes.Endpoint
	hook := DialOptionsHook(func(endpoint clustertypes.Endpoint, opts []grpc.DialOption) []grpc.DialOption {
		seen = append(seen, endpoint)
		return opts
	})
	p := New(false, hook, nil, 0)
	t.Cleanup(func() { _ = p.Close() })

	ep := clustertypes.Endpoint{Host: "a", Port: 1}
	if _, err := p.GetChannel(context.Background(), ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != ep {
		t.Fatalf("expected hook invoked once with %v, got %v", ep, seen)
	}

	// A second GetChannel for the same endpoint must not redial, so the
	// hook is not invoked again.
	if _, err := p.GetChannel(context.Background(), ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected hook invoked exactly once across repeated GetChannel calls, got %d", len(seen))
	}
}

func TestBreakerIsPerEndpointAndStable(t *testing.T) {
	p := New(false, nil, nil, 0)
	t.Cleanup(func() { _ = p.Close() })

	a := clustertypes.Endpoint{Host: "a", Port: 1}
	b := clustertypes.Endpoint{Host: "b", Port: 1}

	ba, err := p.Breaker(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bb, err := p.Breaker(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ba == bb {
		t.Fatalf("expected distinct breakers per endpoint")
	}

	again, err := p.Breaker(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != ba {
		t.Fatalf("expected the same breaker instance on repeated Breaker calls for the same endpoint")
	}
}

func TestBreakerFailsAfterClose(t *testing.T) {
	p := New(false, nil, nil, 0)
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	_, err := p.Breaker(context.Background(), clustertypes.Endpoint{Host: "a", Port: 1})
	if err == nil {
		t.Fatal("expected error from Breaker after Close")
	}
}
