package clusterbalancer

import "sync/atomic"

// Handle is the stable object internal/adminhttp holds onto across
// balancer (re)builds, mirroring clusterresolver.Handle: gRPC owns the
// balancer.Balancer instance's lifetime internally, so the Builder
// publishes each instance it creates into a Handle shared with the admin
// HTTP surface.
type Handle struct {
	active atomic.Pointer[clusterBalancer]
}

// NewHandle returns an empty handle; pair it with a Builder via
// Builder.Handle before registering the builder.
func NewHandle() *Handle {
	return &Handle{}
}

// Subchannels forwards to the currently active balancer instance, or
// returns nil if no balancer instance is active yet.
func (h *Handle) Subchannels() []SubchannelInfo {
	if b := h.active.Load(); b != nil {
		return b.Subchannels()
	}
	return nil
}

func (h *Handle) set(b *clusterBalancer) { h.active.Store(b) }

func (h *Handle) clear(b *clusterBalancer) {
	h.active.CompareAndSwap(b, nil)
}
