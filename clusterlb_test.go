package clusterlb

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

type stubPolling struct{}

func (stubPolling) Poll(context.Context, topologysource.Context) (clustertypes.Topology, error) {
	return clustertypes.Topology{}, nil
}
func (stubPolling) Comparer() topologysource.Comparer { return nil }

func TestBuildRejectsMissingSeeds(t *testing.T) {
	b := New().WithPollingTopologySource(stubPolling{}, time.Second)
	if err := b.Build(); err == nil {
		t.Fatal("expected error for missing seeds")
	}
}

func TestWithSeedsAccumulatesAndKeepsPrimaryFirst(t *testing.T) {
	a := clustertypes.Endpoint{Host: "a", Port: 1}
	c := clustertypes.Endpoint{Host: "c", Port: 3}
	d := clustertypes.Endpoint{Host: "d", Port: 4}

	b := New().WithSeeds(a).WithSeeds(c, d)
	if len(b.seeds) != 3 || b.seeds[0] != a || b.seeds[1] != c || b.seeds[2] != d {
		t.Fatalf("expected seeds [a c d], got %v", b.seeds)
	}
}

func TestBuildRejectsMissingTopologySource(t *testing.T) {
	b := New().WithSeeds(clustertypes.Endpoint{Host: "a", Port: 1})
	if err := b.Build(); err == nil {
		t.Fatal("expected error for missing topology source")
	}
}

func TestBuildRejectsBothTopologySources(t *testing.T) {
	b := New().
		WithSeeds(clustertypes.Endpoint{Host: "a", Port: 1}).
		WithPollingTopologySource(stubPolling{}, time.Second).
		WithStreamingTopologySource(fakeStreaming{})
	if err := b.Build(); err == nil {
		t.Fatal("expected error when both sources are configured")
	}
}

func TestBuildSucceedsWithSeedsAndSource(t *testing.T) {
	b := New().
		WithSeeds(clustertypes.Endpoint{Host: "a", Port: 1}).
		WithPollingTopologySource(stubPolling{}, time.Second)
	if err := b.Build(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, bal := b.Handles()
	if r == nil || bal == nil {
		t.Fatal("expected non-nil resolver and balancer handles")
	}
}

func TestConfigureChannelReturnsDialOptions(t *testing.T) {
	b := New().
		WithSeeds(clustertypes.Endpoint{Host: "a", Port: 1}).
		WithPollingTopologySource(stubPolling{}, time.Second)
	if err := b.Build(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := b.ConfigureChannel()
	if len(opts) == 0 {
		t.Fatal("expected at least one dial option")
	}
}

type fakeStreaming struct{}

func (fakeStreaming) Subscribe(context.Context, topologysource.Context) (<-chan topologysource.Snapshot, error) {
	ch := make(chan topologysource.Snapshot)
	close(ch)
	return ch, nil
}
func (fakeStreaming) Comparer() topologysource.Comparer { return nil }
