// Package staticsource provides the demo harness's only topology source:
// it reports the configured seeds themselves as the cluster's full,
// eligible node set. Real deployments plug in a source that calls an
// actual membership/discovery protocol (§4's Polling/Streaming
// interfaces); this one exists so cmd can dial "cluster:///primary" and
// exercise the resolver/balancer/picker without requiring a live backend.
package staticsource

import (
	"context"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

// Source reports Seeds as the full topology on every Poll, all eligible
// at priority 0.
type Source struct {
	Seeds []clustertypes.Endpoint
}

// New builds a Source over seeds.
func New(seeds []clustertypes.Endpoint) *Source {
	return &Source{Seeds: seeds}
}

var _ topologysource.Polling = (*Source)(nil)

func (s *Source) Poll(ctx context.Context, _ topologysource.Context) (clustertypes.Topology, error) {
	nodes := make([]clustertypes.Node, len(s.Seeds))
	for i, ep := range s.Seeds {
		nodes[i] = clustertypes.Node{Endpoint: ep, IsEligible: true, Priority: 0}
	}
	return clustertypes.NewTopology(nodes), nil
}

func (s *Source) Comparer() topologysource.Comparer { return nil }
