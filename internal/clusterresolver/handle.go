package clusterresolver

import (
	"sync/atomic"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// Handle is the one stable object the refresh-trigger interceptor and the
// rest of the builder surface hold onto across resolver (re)builds. gRPC
// owns the resolver.Resolver instance's lifetime internally and gives
// callers no way to reach it directly, so the Builder publishes each
// instance it creates into a Handle shared with the interceptor.
type Handle struct {
	active atomic.Pointer[clusterResolverImpl]
}

// NewHandle returns an empty handle; pair it with a Builder via
// Builder.Handle before registering the builder.
func NewHandle() *Handle {
	return &Handle{}
}

// Refresh forwards to the currently active resolver instance's Refresh,
// per §4.7. A no-op if no resolver instance is active yet (e.g. the
// channel has not been built).
func (h *Handle) Refresh() {
	if r := h.active.Load(); r != nil {
		r.Refresh()
	}
}

// Snapshot returns the active resolver's last published topology for
// read-only diagnostics (internal/adminhttp). Returns the zero Topology
// and false if no resolver instance is active yet.
func (h *Handle) Snapshot() (clustertypes.Topology, bool) {
	r := h.active.Load()
	if r == nil {
		return clustertypes.Topology{}, false
	}
	return r.Snapshot()
}

func (h *Handle) set(r *clusterResolverImpl) { h.active.Store(r) }

func (h *Handle) clear(r *clusterResolverImpl) {
	h.active.CompareAndSwap(r, nil)
}
