// Package discoveryadapter is the integration point for the Webitel
// service-discovery backend: a topologysource.Polling wrapper around a
// discovery.DiscoveryProvider.
package discoveryadapter

import (
	"context"
	"errors"

	"github.com/webitel/webitel-go-kit/infra/discovery"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

// ErrProviderNotIntegrated is returned by Poll. discovery.DiscoveryProvider's
// exported method set isn't visible anywhere this module's source was
// grounded on, so Source holds the dependency as DI plumbing (the same
// no-op shape the teacher's own cmd/fx.go wires it with) rather than guess
// at a query call. A real integration replaces Poll's body once that
// interface's methods are available to build against.
var ErrProviderNotIntegrated = errors.New("cluster lb: discoveryadapter: provider wired but not integrated")

// Source adapts a discovery.DiscoveryProvider into a Polling topology
// source.
type Source struct {
	Provider discovery.DiscoveryProvider
}

// New wraps provider. provider is never nil-checked against its own
// methods here, only held, for the same reason documented on
// ErrProviderNotIntegrated.
func New(provider discovery.DiscoveryProvider) *Source {
	return &Source{Provider: provider}
}

var _ topologysource.Polling = (*Source)(nil)

func (s *Source) Poll(context.Context, topologysource.Context) (clustertypes.Topology, error) {
	return clustertypes.Topology{}, ErrProviderNotIntegrated
}

func (s *Source) Comparer() topologysource.Comparer { return nil }
