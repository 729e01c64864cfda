package staticsource

import (
	"context"
	"testing"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

func TestSourceReportsSeedsAsEligibleNodes(t *testing.T) {
	seeds := []clustertypes.Endpoint{{Host: "a", Port: 1}, {Host: "b", Port: 2}}
	s := New(seeds)

	top, err := s.Poll(context.Background(), topologysource.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if top.Count != 2 || top.EligibleCount != 2 {
		t.Fatalf("expected 2 eligible nodes, got count=%d eligible=%d", top.Count, top.EligibleCount)
	}
	for _, n := range top.Nodes {
		if !n.IsEligible {
			t.Fatalf("expected every seed to be reported eligible, got %+v", n)
		}
	}
}

func TestSourceComparerIsNil(t *testing.T) {
	s := New(nil)
	if s.Comparer() != nil {
		t.Fatal("expected a nil comparer, resolver falls back to comparing Node.Priority directly")
	}
}
