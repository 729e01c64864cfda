// Package clusterbalancer implements the Subchannel Manager and Picker
// (§4.5, §4.6): a balancer.Builder/balancer.Balancer pair registered under
// the "cluster" scheme that reconciles the resolver's address set against
// per-endpoint SubConns, tracks their connectivity, and rebuilds an
// immutable, allocation-free round-robin picker on every change.
package clusterbalancer

import (
	"log/slog"
	"sort"
	"sync"

	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/resolver"

	"github.com/webitel/cluster-grpclb/internal/clusterresolver"
	"github.com/webitel/cluster-grpclb/internal/clustersubset"
)

// Name is the balancer name this package registers under, matching the
// resolver's URI scheme (§6 "the resolver-factory and balancer-factory are
// registered under the name cluster").
const Name = "cluster"

// Builder implements balancer.Builder.
type Builder struct {
	Logger *slog.Logger

	// SubsetSize, when > 0, bounds the Ready set the picker is built from
	// to at most this many subchannels, chosen by rendezvous hashing
	// (internal/clustersubset) keyed on SubsetKey. Zero disables
	// subsetting: the picker sees every Ready subchannel, the behaviour
	// §4.6 fixes as normative.
	SubsetSize int
	SubsetKey  string

	// Handle, when set, receives the live balancer instance on every
	// Build so internal/adminhttp can read subchannel state for
	// diagnostics.
	Handle *Handle
}

var _ balancer.Builder = (*Builder)(nil)

func (b *Builder) Name() string { return Name }

func (b *Builder) Build(cc balancer.ClientConn, opts balancer.BuildOptions) balancer.Balancer {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bal := &clusterBalancer{
		cc:         cc,
		logger:     logger,
		subconns:   make(map[resolver.Address]*subchannel),
		buildOpts:  opts,
		subsetSize: b.SubsetSize,
		subsetKey:  b.SubsetKey,
		handle:     b.Handle,
	}
	if b.Handle != nil {
		b.Handle.set(bal)
	}
	return bal
}

// Register installs Builder under Name with the gRPC runtime. Call once
// during process init, mirroring clusterresolver's registration.
func Register(logger *slog.Logger, handle *Handle) {
	balancer.Register(&Builder{Logger: logger, Handle: handle})
}

// clusterBalancer is the Subchannel Manager. All mutation of subconns and
// aggState happens under mu; picker publication is a lock-free atomic swap
// consumed by the RPC hot path (§4.5 "Thread safety").
type clusterBalancer struct {
	cc        balancer.ClientConn
	logger    *slog.Logger
	buildOpts balancer.BuildOptions

	mu         sync.Mutex
	subconns   map[resolver.Address]*subchannel
	closed     bool
	subsetSize int
	subsetKey  string
	handle     *Handle
}

var _ balancer.Balancer = (*clusterBalancer)(nil)

// subchannel is the Subchannel value from §3: one address, its priority
// attribute, and an observed connectivity state.
type subchannel struct {
	sc       balancer.SubConn
	addr     resolver.Address
	priority int
	state    connectivity.State
}

// SubsetKey satisfies clustersubset.Member.
func (s *subchannel) SubsetKey() string { return s.addr.Addr }

func addrKey(a resolver.Address) resolver.Address {
	// Addresses compare by Addr only for reconciliation purposes; strip
	// attributes/metadata so priority-only changes are detected as an
	// update rather than a remove+create (§4.5 step 4).
	return resolver.Address{Addr: a.Addr}
}

func (b *clusterBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	next := make(map[resolver.Address]resolver.Address, len(s.ResolverState.Addresses))
	for _, a := range s.ResolverState.Addresses {
		next[addrKey(a)] = a
	}

	// Step 2: current \ next -> remove and dispose.
	for key, sub := range b.subconns {
		if _, ok := next[key]; !ok {
			sub.sc.Shutdown()
			delete(b.subconns, key)
			b.logger.Info("SUBCHANNEL_REMOVED", slog.String("addr", key.Addr))
		}
	}

	// Step 3 & 4: next \ current -> create; current ∩ next -> update priority.
	for key, addr := range next {
		priority := clusterresolver.Priority(addr.Attributes)
		if sub, ok := b.subconns[key]; ok {
			if sub.priority != priority {
				sub.priority = priority
				sub.addr = addr
			}
			continue
		}

		sub := &subchannel{addr: addr, priority: priority, state: connectivity.Idle}
		sc, err := b.cc.NewSubConn([]resolver.Address{addr}, balancer.NewSubConnOptions{
			StateListener: func(scs balancer.SubConnState) {
				b.handleSubConnState(sub, scs)
			},
		})
		if err != nil {
			b.logger.Warn("SUBCHANNEL_CREATE_FAILED", slog.String("addr", addr.Addr), slog.Any("err", err))
			continue
		}
		sub.sc = sc
		b.subconns[key] = sub
		sc.Connect()
		b.logger.Info("SUBCHANNEL_CREATED", slog.String("addr", addr.Addr), slog.Int("priority", priority))
	}

	b.rebuildAndPublishLocked()
	return nil
}

func (b *clusterBalancer) handleSubConnState(sub *subchannel, scs balancer.SubConnState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	prev := sub.state
	sub.state = scs.ConnectivityState
	b.logger.Info("SUBCHANNEL_STATE_CHANGED",
		slog.String("addr", sub.addr.Addr),
		slog.String("from", prev.String()),
		slog.String("to", scs.ConnectivityState.String()))

	// §4.5 "Auto-reconnect": a subchannel that settles into Idle is
	// re-armed; TransientFailure backoff is the transport's own concern.
	if scs.ConnectivityState == connectivity.Idle {
		sub.sc.Connect()
	}

	b.rebuildAndPublishLocked()
}

func (b *clusterBalancer) rebuildAndPublishLocked() {
	ready := make([]*subchannel, 0, len(b.subconns))
	var anyConnecting, anyFailure, any bool
	for _, sub := range b.subconns {
		any = true
		switch sub.state {
		case connectivity.Ready:
			ready = append(ready, sub)
		case connectivity.Connecting:
			anyConnecting = true
		case connectivity.TransientFailure:
			anyFailure = true
		}
	}
	if b.subsetSize > 0 {
		ready = clustersubset.Subset(b.subsetKey, ready, b.subsetSize)
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].priority < ready[j].priority })

	entries := make([]pickEntry, len(ready))
	for i, sub := range ready {
		entries[i] = pickEntry{sc: sub.sc, addr: sub.addr.Addr}
	}

	state := aggregateState(any, len(ready) > 0, anyConnecting, anyFailure)
	b.cc.UpdateState(balancer.State{
		ConnectivityState: state,
		Picker:            newPicker(entries),
	})
}

// aggregateState implements §4.5's mapping: Ready > Connecting >
// TransientFailure > Idle.
func aggregateState(any, anyReady, anyConnecting, anyFailure bool) connectivity.State {
	switch {
	case anyReady:
		return connectivity.Ready
	case anyConnecting:
		return connectivity.Connecting
	case any && anyFailure:
		return connectivity.TransientFailure
	default:
		return connectivity.Idle
	}
}

// ResolverError is called when the resolver reports a failure (e.g. after
// a ClusterDiscoveryError or NoEligibleNodesError, both reported via
// resolver.ClientConn.ReportError per §4.4). The existing picker, if any,
// is left in place; RPCs in flight continue to see the last-known-good
// Ready set.
func (b *clusterBalancer) ResolverError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.logger.Warn("RESOLVER_ERROR", slog.Any("err", err))
	if len(b.subconns) == 0 {
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.TransientFailure,
			Picker:            newPicker(nil),
		})
	}
}

// UpdateSubConnState is retained only to satisfy older balancer.Balancer
// call sites; state transitions arrive through the StateListener passed to
// NewSubConn instead.
func (b *clusterBalancer) UpdateSubConnState(balancer.SubConn, balancer.SubConnState) {}

func (b *clusterBalancer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, sub := range b.subconns {
		sub.sc.Shutdown()
		delete(b.subconns, key)
	}
	if b.handle != nil {
		b.handle.clear(b)
	}
}

// SubchannelInfo is a read-only snapshot of one subchannel, for
// internal/adminhttp.
type SubchannelInfo struct {
	Addr     string
	Priority int
	State    string
}

// Subchannels returns a snapshot of every tracked subchannel's address,
// priority and connectivity state.
func (b *clusterBalancer) Subchannels() []SubchannelInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SubchannelInfo, 0, len(b.subconns))
	for _, sub := range b.subconns {
		out = append(out, SubchannelInfo{Addr: sub.addr.Addr, Priority: sub.priority, State: sub.state.String()})
	}
	return out
}
