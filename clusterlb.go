// Package clusterlb is the fluent configuration surface of §6: it
// assembles a Topology Subscription Engine, Resolver and Subchannel
// Manager behind the gRPC "cluster" URI scheme and hands back dial
// options ready to pass to grpc.NewClient.
package clusterlb

import (
	"crypto/tls"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	grpcbalancer "google.golang.org/grpc/balancer"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/webitel/cluster-grpclb/internal/clusterbalancer"
	"github.com/webitel/cluster-grpclb/internal/clusterresolver"
	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/refreshtrigger"
	"github.com/webitel/cluster-grpclb/internal/seedpool"
	"github.com/webitel/cluster-grpclb/internal/subscription"
	"github.com/webitel/cluster-grpclb/internal/topologyevents"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

// Builder assembles the cluster load balancer's runtime pieces (§6). The
// zero value is not usable; start from New().
type Builder struct {
	seeds      []clustertypes.Endpoint
	resilience clustertypes.ResilienceConfig
	polling    topologysource.Polling
	pollDelay  time.Duration
	streaming  topologysource.Streaming
	refresh    refreshtrigger.Policy
	useTLS     bool
	tlsConfig  *tls.Config
	subsetSize int
	subsetKey  string
	logger     *slog.Logger
	events     topologyevents.Dispatcher
	resolverH  *clusterresolver.Handle
	balancerH  *clusterbalancer.Handle
}

// New starts a Builder with clustertypes.DefaultResilienceConfig applied.
func New() *Builder {
	return &Builder{
		resilience: clustertypes.DefaultResilienceConfig(),
		resolverH:  clusterresolver.NewHandle(),
		balancerH:  clusterbalancer.NewHandle(),
	}
}

// WithSeeds accumulates bootstrap endpoints raced by the subscription
// engine (§4.1, §6); calling it more than once appends rather than
// replacing, so WithSeeds(a).WithSeeds(b, c) yields [a, b, c]. The first
// endpoint ever added stays the primary at index 0 regardless of how many
// further calls follow. At least one seed is required.
func (b *Builder) WithSeeds(seeds ...clustertypes.Endpoint) *Builder {
	b.seeds = append(b.seeds, seeds...)
	return b
}

// WithResilience overrides the retry/backoff/timeout knobs (§6).
func (b *Builder) WithResilience(cfg clustertypes.ResilienceConfig) *Builder {
	b.resilience = cfg
	return b
}

// WithPollingTopologySource configures a Polling source, adapted to
// streaming internally via topologysource.PollingAdapter (§4.3, §6).
// Mutually exclusive with WithStreamingTopologySource.
func (b *Builder) WithPollingTopologySource(source topologysource.Polling, pollDelay time.Duration) *Builder {
	b.polling = source
	b.pollDelay = pollDelay
	return b
}

// WithStreamingTopologySource configures a native Streaming source (§6).
// Mutually exclusive with WithPollingTopologySource.
func (b *Builder) WithStreamingTopologySource(source topologysource.Streaming) *Builder {
	b.streaming = source
	return b
}

// WithRefreshPolicy overrides the refresh-trigger predicate (§4.7, §9);
// the default derives from ResilienceConfig.RefreshOnStatusCodes.
func (b *Builder) WithRefreshPolicy(policy refreshtrigger.Policy) *Builder {
	b.refresh = policy
	return b
}

// UseTls switches the seed channel pool and subchannels to TLS transport
// credentials; cfg may be nil to use the platform default root pool (§6).
func (b *Builder) UseTls(cfg *tls.Config) *Builder {
	b.useTLS = true
	b.tlsConfig = cfg
	return b
}

// WithSubsetSize bounds the picker's Ready set to at most n subchannels,
// chosen by rendezvous hashing keyed on key (the clustersubset enrichment;
// zero disables subsetting, the normative §4.6 behaviour).
func (b *Builder) WithSubsetSize(n int, key string) *Builder {
	b.subsetSize = n
	b.subsetKey = key
	return b
}

// WithLogger sets the *slog.Logger every component logs bracketed event
// tags through. Nil (the default) falls back to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventDispatcher wires a topologyevents.Dispatcher so the resolver
// fans TopologyChanged/DiscoveryExhausted/NoEligibleNodes notifications out
// over it in addition to logging them. Nil (the default) discards events.
func (b *Builder) WithEventDispatcher(d topologyevents.Dispatcher) *Builder {
	b.events = d
	return b
}

// Handles returns the resolver and balancer handles this Builder will wire
// into the channel it builds, so callers can reach live diagnostic state
// (internal/adminhttp) or trigger a manual refresh before ConfigureChannel
// is ever called.
func (b *Builder) Handles() (*clusterresolver.Handle, *clusterbalancer.Handle) {
	return b.resolverH, b.balancerH
}

// Build validates the configuration and registers the resolver and
// balancer factories under the "cluster" scheme (§6). It is safe to call
// more than once; later calls overwrite the global gRPC registration.
func (b *Builder) Build() error {
	if len(b.seeds) == 0 {
		return &clustertypes.LoadBalancingConfigurationError{Reason: "at least one seed endpoint is required"}
	}
	if b.polling == nil && b.streaming == nil {
		return &clustertypes.LoadBalancingConfigurationError{Reason: "exactly one topology source must be configured"}
	}
	if b.polling != nil && b.streaming != nil {
		return &clustertypes.LoadBalancingConfigurationError{Reason: "WithPollingTopologySource and WithStreamingTopologySource are mutually exclusive"}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	events := b.events
	if events == nil {
		events = topologyevents.NoopDispatcher{}
	}

	pool := seedpool.New(b.useTLS, nil, logger, b.resilience.MaxBackoff)
	if b.useTLS {
		pool.WithTLSConfig(b.tlsConfig)
	}

	source := b.resolveSource(logger)
	newEngine := func() *subscription.Engine {
		e := subscription.New(b.seeds, func(clustertypes.Endpoint) topologysource.Streaming { return source }, b.resilience, logger)
		e.Pool = pool
		return e
	}

	clusterresolver.Register(newEngine, logger, b.resolverH, events)
	grpcbalancer.Register(&clusterbalancer.Builder{
		Logger:     logger,
		SubsetSize: b.subsetSize,
		SubsetKey:  b.subsetKey,
		Handle:     b.balancerH,
	})

	return nil
}

// ConfigureChannel returns the dial options a caller should pass to
// grpc.NewClient alongside the "cluster:///<name>" target: the refresh
// trigger interceptor (§4.7) bound to this Builder's resolver handle, plus
// transport credentials matching UseTls. Call after Build.
func (b *Builder) ConfigureChannel() []grpc.DialOption {
	policy := b.refresh
	if policy == nil {
		policy = refreshtrigger.PolicyFromCodes(b.resilience.RefreshOnStatusCodes)
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	interceptor := refreshtrigger.New(b.resolverH, policy, logger)
	opts := interceptor.DialOptions()

	if b.useTLS {
		creds := credentials.NewTLS(b.tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return opts
}

func (b *Builder) resolveSource(logger *slog.Logger) topologysource.Streaming {
	if b.streaming != nil {
		return b.streaming
	}
	return topologysource.NewPollingAdapter(b.polling, b.resilience, b.pollDelay, logger)
}
