package subscription

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource"
)

var errStreamEnded = errors.New("subscription: seed stream ended")

// raceSeed runs one seed's subscription task. It awaits the first
// validated snapshot within a deadline measured from task start (reset on
// every successful event, per §4.2 step 2b). On success it returns a
// channel that continues forwarding later snapshots from the same
// underlying stream, itself subject to the same reset-on-activity
// deadline. A snapshot with zero nodes is treated as a per-seed failure
// for the purposes of winning the race (§4.2 "Snapshot validation"); once
// a seed has won, a later empty snapshot is dropped rather than failing
// the whole subscription (the race is already decided).
func (e *Engine) raceSeed(ctx context.Context, seed clustertypes.Endpoint) (<-chan clustertypes.Topology, error) {
	if e.Pool != nil {
		if breaker, err := e.Pool.Breaker(ctx, seed); err == nil {
			if _, execErr := breaker.Execute(func() (struct{}, error) {
				return struct{}{}, e.breakerProbe(ctx, seed)
			}); execErr != nil {
				return nil, execErr
			}
		}
	}

	source := e.Resolve(seed)
	if source == nil {
		return nil, errors.New("subscription: no streaming source resolved for seed")
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, e.Config.Timeout)
	tc := topologysource.Context{Endpoint: seed, Timeout: int64(e.Config.Timeout)}
	if e.Pool != nil {
		tc.Dial = func(dialCtx context.Context) (*grpc.ClientConn, error) { return e.Pool.GetChannel(dialCtx, seed) }
	}
	snapCh, err := source.Subscribe(ctx, tc)
	if err != nil {
		cancel()
		return nil, err
	}

	select {
	case snap, ok := <-snapCh:
		if !ok {
			cancel()
			return nil, errStreamEnded
		}
		if snap.Err != nil {
			cancel()
			return nil, snap.Err
		}
		if snap.Topology.Count == 0 {
			cancel()
			return nil, &clustertypes.EmptyTopologyError{Seed: seed}
		}
		cancel() // first-event deadline no longer needed; replaced below
		return e.continueStream(ctx, seed, snap.Topology, snapCh), nil
	case <-deadlineCtx.Done():
		cancel()
		return nil, deadlineCtx.Err()
	}
}

// breakerProbe is the cheap pre-flight gobreaker wraps: it only confirms
// the seed channel pool can hand back a channel for seed (dial errors
// count as breaker failures); the actual topology round-trip below is not
// itself breaker-gated; a repeatedly undialable seed trips the breaker and
// is skipped by future rounds for a cooldown window (§4.1, §4.2 enrichment
// — see SPEC_FULL.md's gobreaker wiring).
func (e *Engine) breakerProbe(ctx context.Context, seed clustertypes.Endpoint) error {
	_, err := e.Pool.GetChannel(ctx, seed)
	return err
}

// continueStream forwards first (already received) plus subsequent
// snapshots, applying a fresh inactivity deadline after each delivery.
func (e *Engine) continueStream(parent context.Context, seed clustertypes.Endpoint, first clustertypes.Topology, snapCh <-chan topologysource.Snapshot) <-chan clustertypes.Topology {
	out := make(chan clustertypes.Topology)

	go func() {
		defer close(out)

		select {
		case out <- first:
		case <-parent.Done():
			return
		}

		for {
			deadlineCtx, cancel := context.WithTimeout(parent, e.Config.Timeout)
			select {
			case snap, ok := <-snapCh:
				cancel()
				if !ok {
					return // stream ended normally: resubscribe on next round
				}
				if snap.Err != nil {
					return
				}
				if snap.Topology.Count == 0 {
					continue // drop; race already decided for this seed
				}
				select {
				case out <- snap.Topology:
				case <-parent.Done():
					return
				}
			case <-deadlineCtx.Done():
				cancel()
				if parent.Err() != nil {
					return
				}
				// true inactivity timeout: drop this seed's stream, the
				// engine will start a fresh round.
				return
			}
		}
	}()

	return out
}
