// Package clusterresolver implements the Resolver (§4.4): it drives the
// Topology Subscription Engine, diffs consecutive snapshots, and publishes
// a sorted list of eligible addresses carrying their priority attribute to
// the gRPC ClientConn. It registers itself as a resolver.Builder under the
// "cluster" scheme.
package clusterresolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/grpc/resolver"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/subscription"
	"github.com/webitel/cluster-grpclb/internal/topologyevents"
)

// Scheme is the URI scheme this resolver registers under (§6).
const Scheme = "cluster"

// EngineFactory builds the subscription engine for a resolver instance.
// Supplied by the top-level builder (clusterlb.Builder) once seeds,
// resilience config and the topology source are known.
type EngineFactory func() *subscription.Engine

// Builder implements resolver.Builder.
type Builder struct {
	NewEngine EngineFactory
	Logger    *slog.Logger
	// Handle, when set, receives the live resolver instance on every
	// Build so the refresh-trigger interceptor can call Refresh() on it.
	Handle *Handle
	// Events, when set, receives a TopologyChanged/DiscoveryExhausted/
	// NoEligibleNodes notification alongside every log line the resolver
	// already emits for the same condition. Nil means events are dropped
	// (equivalent to topologyevents.NoopDispatcher).
	Events topologyevents.Dispatcher
}

var _ resolver.Builder = (*Builder)(nil)

// Register installs Builder under Scheme with the gRPC runtime. Call once
// during process init, mirroring clusterbalancer's registration.
func Register(newEngine EngineFactory, logger *slog.Logger, handle *Handle, events topologyevents.Dispatcher) {
	resolver.Register(&Builder{NewEngine: newEngine, Logger: logger, Handle: handle, Events: events})
}

func (b *Builder) Scheme() string { return Scheme }

func (b *Builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events := b.Events
	if events == nil {
		events = topologyevents.NoopDispatcher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &clusterResolverImpl{
		cc:      cc,
		engine:  b.NewEngine(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		refresh: make(chan struct{}, 1),
		handle:  b.Handle,
		events:  events,
	}
	fingerprints, _ := lru.New[string, struct{}](128)
	r.seenFingerprints = fingerprints

	if b.Handle != nil {
		b.Handle.set(r)
	}

	r.wg.Add(1)
	go r.loop()
	return r, nil
}

type clusterResolverImpl struct {
	cc     resolver.ClientConn
	engine *subscription.Engine
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	refresh chan struct{}

	first            bool
	lastTopology     clustertypes.Topology
	hasLast          bool
	seenFingerprints *lru.Cache[string, struct{}]
	handle           *Handle
	events           topologyevents.Dispatcher
}

var _ resolver.Resolver = (*clusterResolverImpl)(nil)

// ResolveNow is a no-op: the engine has no concept of "resolve once" since
// it is a live subscription that keeps delivering snapshots on its own.
func (r *clusterResolverImpl) ResolveNow(resolver.ResolveNowOptions) {}

// Close cancels the subscription loop and waits for it to exit (§4.4
// Operations). Idempotent.
func (r *clusterResolverImpl) Close() {
	r.mu.Lock()
	select {
	case <-r.ctx.Done():
		r.mu.Unlock()
		return
	default:
	}
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
	if r.handle != nil {
		r.handle.clear(r)
	}
}

// Refresh atomically cancels the current subscription and starts a new
// one (§4.4 Operations). Safe under arbitrary concurrency with RPC-path
// callers; concurrent Refresh calls coalesce onto at most one restart
// (§5, §8 idempotence law) via the single-slot refresh channel.
func (r *clusterResolverImpl) Refresh() {
	select {
	case r.refresh <- struct{}{}:
	default:
		// A restart is already pending/in-flight; this call coalesces
		// into it rather than queuing a second one.
	}
}

func (r *clusterResolverImpl) loop() {
	defer r.wg.Done()

	for {
		roundCtx, roundCancel := context.WithCancel(r.ctx)
		r.first = true
		done := r.runOnce(roundCtx)

		select {
		case <-r.ctx.Done():
			roundCancel()
			return
		case <-done:
			roundCancel()
			// The engine surfaced a terminal discovery failure; §4.4
			// says wait a retry delay then resume.
			select {
			case <-r.ctx.Done():
				return
			case <-fallbackDelay(r):
			}
		case <-r.refresh:
			r.logger.Info("REFRESH_TRIGGERED")
			roundCancel()
			<-done // wait for the old loop's goroutine to observe cancellation
		}
	}
}

// runOnce drives one engine lifetime (until ctx is cancelled or the
// engine exhausts discovery) and returns a channel closed when it ends.
func (r *clusterResolverImpl) runOnce(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	events := r.engine.Run(ctx)

	go func() {
		defer close(done)
		for ev := range events {
			if ev.Err != nil {
				r.logger.Warn("DISCOVERY_EXHAUSTED", slog.Any("err", ev.Err))
				r.cc.ReportError(ev.Err)
				var discErr *clustertypes.ClusterDiscoveryError
				if errors.As(ev.Err, &discErr) {
					_ = r.events.Publish(ctx, topologyevents.DiscoveryExhausted{
						At:       time.Now(),
						Attempts: discErr.Attempts,
						Seeds:    discErr.Seeds,
						Reason:   discErr.Error(),
					})
				}
				return
			}
			r.handleTopology(ev.Topology)
		}
	}()

	return done
}

func (r *clusterResolverImpl) handleTopology(top clustertypes.Topology) {
	if top.EligibleCount == 0 {
		fp := top.Fingerprint()
		if _, seen := r.seenFingerprints.Get(fp); !seen {
			r.seenFingerprints.Add(fp, struct{}{})
			r.logger.Warn("NO_ELIGIBLE_NODES", slog.Int("total_nodes", top.Count))
			_ = r.events.Publish(r.ctx, topologyevents.NoEligibleNodes{At: time.Now(), TotalNodes: top.Count})
		}
		r.cc.ReportError(&clustertypes.NoEligibleNodesError{TotalNodeCount: top.Count})
		return
	}

	r.mu.Lock()
	if !r.first && r.hasLast && r.lastTopology.Equivalent(top) {
		r.mu.Unlock()
		return // §8: publishing the same topology twice yields no further notification
	}
	previous := r.lastTopologyOrEmptyLocked()
	r.mu.Unlock()

	added, removed := diff(previous, top)
	r.logger.Info("TOPOLOGY_CHANGED",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
		slog.Int("eligible", top.EligibleCount),
		slog.Int("total", top.Count))
	_ = r.events.Publish(r.ctx, topologyevents.TopologyChanged{
		At:       time.Now(),
		Added:    added,
		Removed:  removed,
		Eligible: top.EligibleCount,
		Total:    top.Count,
	})

	r.publish(top)

	r.mu.Lock()
	r.lastTopology = top
	r.hasLast = true
	r.first = false
	r.mu.Unlock()
}

func (r *clusterResolverImpl) lastTopologyOrEmptyLocked() clustertypes.Topology {
	if !r.hasLast {
		return clustertypes.Topology{}
	}
	return r.lastTopology
}

// Snapshot returns the last published topology for read-only diagnostics
// (internal/adminhttp); hasLast is false until the first publication.
func (r *clusterResolverImpl) Snapshot() (clustertypes.Topology, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTopology, r.hasLast
}

func (r *clusterResolverImpl) publish(top clustertypes.Topology) {
	eligible := make([]clustertypes.Node, 0, top.EligibleCount)
	for _, n := range top.Nodes {
		if n.IsEligible {
			eligible = append(eligible, n)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Priority < eligible[j].Priority })

	addrs := make([]resolver.Address, 0, len(eligible))
	for _, n := range eligible {
		addr := resolver.Address{Addr: n.Endpoint.String()}
		addr.Attributes = WithPriority(addr.Attributes, n.Priority)
		addrs = append(addrs, addr)
	}

	_ = r.cc.UpdateState(resolver.State{Addresses: addrs})
}

// fallbackDelay returns a timer channel for the "wait then resume" step of
// §4.4's failure handling: the engine's own MaxBackoff when configured,
// else a fallback of a few seconds.
func fallbackDelay(r *clusterResolverImpl) <-chan time.Time {
	d := r.engine.Config.MaxBackoff
	if d <= 0 {
		d = 5 * time.Second
	}
	return time.After(d)
}

// diff computes added/removed endpoints between two topologies, comparing
// by endpoint only (§4.4 "Change detection").
func diff(old, new clustertypes.Topology) (added, removed []clustertypes.Endpoint) {
	oldSet := make(map[clustertypes.Endpoint]struct{}, len(old.Nodes))
	for _, n := range old.Nodes {
		oldSet[n.Endpoint] = struct{}{}
	}
	newSet := make(map[clustertypes.Endpoint]struct{}, len(new.Nodes))
	for _, n := range new.Nodes {
		newSet[n.Endpoint] = struct{}{}
	}
	for ep := range newSet {
		if _, ok := oldSet[ep]; !ok {
			added = append(added, ep)
		}
	}
	for ep := range oldSet {
		if _, ok := newSet[ep]; !ok {
			removed = append(removed, ep)
		}
	}
	return added, removed
}
