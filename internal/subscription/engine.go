// Package subscription implements the Topology Subscription Engine (§4.2):
// a lazy, restartable stream of topology snapshots sourced from any one
// live seed among a configured set, racing seeds in parallel and retrying
// with exponential backoff when every seed loses.
package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/seedpool"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

// Event is one item delivered to the Resolver: either a Topology or a
// terminal failure for the whole engine (after MaxDiscoveryAttempts
// rounds).
type Event struct {
	Topology clustertypes.Topology
	Err      error // non-nil only on *clustertypes.ClusterDiscoveryError
}

// Engine races subscription attempts across all seeds of a single
// Streaming source family, transparently retrying on total failure.
type Engine struct {
	Seeds   []clustertypes.Endpoint
	Resolve func(seed clustertypes.Endpoint) topologysource.Streaming
	Config  clustertypes.ResilienceConfig
	Logger  *slog.Logger

	// Pool, when set, is made reachable to topology sources through
	// topologysource.Context.Dial so a gRPC-based source can reuse the
	// Seed Channel Pool's cached channels (§4.2 step 2a) instead of
	// dialing its own.
	Pool *seedpool.Pool
}

// New builds an Engine. resolve maps a seed endpoint to the Streaming
// source that should be raced for it (usually the same source instance
// for every seed, parameterized by the Context.Endpoint field).
func New(seeds []clustertypes.Endpoint, resolve func(clustertypes.Endpoint) topologysource.Streaming, cfg clustertypes.ResilienceConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Seeds: seeds, Resolve: resolve, Config: cfg, Logger: logger}
}

// Run produces snapshots on the returned channel until ctx is cancelled or
// discovery is exhausted. Each snapshot is delivered at most once. The
// channel is closed when Run returns, which happens only when ctx is
// cancelled or exhaustion occurs.
func (e *Engine) Run(ctx context.Context) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			attempt++
			topCh, causes := e.runRound(ctx)
			if causes != nil {
				if ctx.Err() != nil {
					return
				}
				if e.Config.MaxDiscoveryAttempts > 0 && attempt >= e.Config.MaxDiscoveryAttempts {
					finalErr := &clustertypes.ClusterDiscoveryError{Attempts: attempt, Seeds: e.Seeds, Causes: causes}
					select {
					case out <- Event{Err: finalErr}:
					case <-ctx.Done():
					}
					return
				}
				wait := clustertypes.Backoff(attempt, e.Config.InitialBackoff, e.Config.MaxBackoff)
				e.Logger.Warn("DISCOVERY_ROUND_FAILED",
					slog.Int("attempt", attempt),
					slog.Duration("backoff", wait),
					slog.Any("causes", causes))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
				continue
			}

			// Won: drain the winner's stream until it ends, then start a
			// fresh round (new race) rather than treating stream-end as
			// exhaustion, per §4.4's "resubscribe immediately" rule.
			attempt = 0
			for snap := range topCh {
				select {
				case out <- Event{Topology: snap}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	return out
}

// runRound executes one race across all seeds. On success it returns a
// channel of already-validated topology snapshots from the winning seed
// (empty-topology snapshots are filtered out before this point — see
// raceSeed). On failure (every seed lost) it returns the accumulated
// per-seed causes; the caller (Run) decides whether to retry or, on
// exhaustion, wraps them into a *clustertypes.ClusterDiscoveryError.
func (e *Engine) runRound(ctx context.Context) (<-chan clustertypes.Topology, []error) {
	type seedResult struct {
		idx  int
		seed clustertypes.Endpoint
		ch   <-chan clustertypes.Topology
		err  error
	}

	cancels := make([]context.CancelFunc, len(e.Seeds))
	results := make(chan seedResult, len(e.Seeds))
	for idx, seed := range e.Seeds {
		childCtx, cancel := context.WithCancel(ctx)
		cancels[idx] = cancel
		idx, seed := idx, seed
		go func() {
			ch, err := e.raceSeed(childCtx, seed)
			results <- seedResult{idx: idx, seed: seed, ch: ch, err: err}
		}()
	}

	var causes []error
	for received := 0; received < len(e.Seeds); received++ {
		r := <-results
		if r.err != nil {
			causes = append(causes, &clustertypes.TopologyError{Seed: r.seed, Cause: r.err})
			continue
		}

		// First winner: cancel every other seed's task group immediately
		// (§4.2 step 3), then keep draining the remaining results in the
		// background so their goroutines are never left blocked sending.
		e.Logger.Info("SEED_RACE_WON", slog.String("seed", r.seed.String()))
		winner := r.ch
		remaining := len(e.Seeds) - received - 1
		go func(n int) {
			for k := 0; k < n; k++ {
				<-results
			}
		}(remaining)

		winnerCancel := cancels[r.idx]
		for idx, cancel := range cancels {
			if idx == r.idx {
				continue
			}
			cancel()
		}
		return wrapWithCancelOnDrain(winner, winnerCancel), nil
	}

	for _, cancel := range cancels {
		cancel()
	}
	return nil, causes
}

// wrapWithCancelOnDrain forwards items from in to a new channel and
// releases the winning seed's cancellation scope once in closes, so the
// scope's lifetime matches the winner's stream exactly.
func wrapWithCancelOnDrain(in <-chan clustertypes.Topology, cancel context.CancelFunc) <-chan clustertypes.Topology {
	out := make(chan clustertypes.Topology)
	go func() {
		defer close(out)
		defer cancel()
		for v := range in {
			out <- v
		}
	}()
	return out
}
