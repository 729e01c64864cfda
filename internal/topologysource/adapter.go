package topologysource

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// BackoffCalculator computes the wait before retrying a failed poll, given
// the consecutive-failure counter and the configured bounds (§4.3).
type BackoffCalculator func(consecutiveFailures int, initial, max time.Duration) time.Duration

// PollingAdapter presents a Polling source as a Streaming one: it repeats
// the poll, yields the result, sleeps Delay, and loops until cancellation.
// Delay <= 0 means one-shot mode: yield exactly one snapshot and stop.
type PollingAdapter struct {
	Source               Polling
	Delay                time.Duration
	MaxDiscoveryAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	Backoff              BackoffCalculator
	Logger               *slog.Logger
}

var _ Streaming = (*PollingAdapter)(nil)

// NewPollingAdapter builds an adapter with default exponential backoff.
func NewPollingAdapter(source Polling, cfg clustertypes.ResilienceConfig, delay time.Duration, logger *slog.Logger) *PollingAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingAdapter{
		Source:               source,
		Delay:                delay,
		MaxDiscoveryAttempts: cfg.MaxDiscoveryAttempts,
		InitialBackoff:       cfg.InitialBackoff,
		MaxBackoff:           cfg.MaxBackoff,
		Backoff:              defaultBackoffCalculator,
		Logger:               logger,
	}
}

func defaultBackoffCalculator(consecutiveFailures int, initial, max time.Duration) time.Duration {
	return clustertypes.Backoff(consecutiveFailures, initial, max)
}

func (a *PollingAdapter) Comparer() Comparer {
	return a.Source.Comparer()
}

// Subscribe starts a goroutine that drives the poll loop and feeds the
// returned channel. The goroutine exits (closing the channel) once ctx is
// cancelled, once a one-shot poll completes, or once consecutive failures
// reach MaxDiscoveryAttempts (the last failure is propagated so the
// subscription engine can switch seeds).
func (a *PollingAdapter) Subscribe(ctx context.Context, tc Context) (<-chan Snapshot, error) {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		consecutiveFailures := 0
		for {
			top, err := a.Source.Poll(ctx, tc)
			if err != nil {
				consecutiveFailures++
				a.Logger.Warn("POLL_FAILED",
					slog.String("seed", tc.Endpoint.String()),
					slog.Int("consecutive_failures", consecutiveFailures),
					slog.Any("err", err))

				if a.MaxDiscoveryAttempts > 0 && consecutiveFailures >= a.MaxDiscoveryAttempts {
					select {
					case out <- Snapshot{Err: err}:
					case <-ctx.Done():
					}
					return
				}

				wait := a.Backoff(consecutiveFailures, a.InitialBackoff, a.MaxBackoff)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
				continue
			}

			consecutiveFailures = 0
			select {
			case out <- Snapshot{Topology: top}:
			case <-ctx.Done():
				return
			}

			if a.Delay <= 0 {
				return
			}

			select {
			case <-time.After(a.Delay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
