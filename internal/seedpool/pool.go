// Package seedpool caches one transport channel per seed endpoint and
// tracks each seed's dial health with a per-seed circuit breaker, so a
// seed whose channel persistently fails to dial stops being raced every
// round (§4.1 of the load-balancer spec).
package seedpool

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// DialOptionsHook lets the caller mutate transport-channel construction
// options before a seed connection is dialed (§6 "Channel construction
// hooks").
type DialOptionsHook func(endpoint clustertypes.Endpoint, opts []grpc.DialOption) []grpc.DialOption

// Pool caches one *grpc.ClientConn per seed endpoint. It is safe for
// concurrent use and performs check-then-insert via sync.Map.LoadOrStore.
// The hot path is not lock-free: every GetChannel call takes mu briefly to
// check whether the pool has been closed.
type Pool struct {
	useTLS      bool
	tlsConfig   *tls.Config
	hook        DialOptionsHook
	logger      *slog.Logger
	breakerOpen time.Duration
	conns       sync.Map // Endpoint -> *entry
	mu          sync.Mutex
	closed      bool
}

type entry struct {
	once    sync.Once
	conn    *grpc.ClientConn
	breaker *gobreaker.CircuitBreaker[struct{}]
	err     error
}

// New builds a Pool. hook and logger may be nil. breakerOpen sets how long
// a seed's circuit breaker stays open after tripping before allowing a
// single probe request through again (gobreaker.Settings.Timeout); zero
// falls back to gobreaker's own 60s default.
func New(useTLS bool, hook DialOptionsHook, logger *slog.Logger, breakerOpen time.Duration) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{useTLS: useTLS, hook: hook, logger: logger, breakerOpen: breakerOpen}
}

// WithTLSConfig attaches a custom tls.Config used when the pool was built
// with useTLS. Returns p for chaining at construction time.
func (p *Pool) WithTLSConfig(cfg *tls.Config) *Pool {
	p.tlsConfig = cfg
	return p
}

// GetChannel returns the cached channel for endpoint, dialing it on first
// use. Fails with *clustertypes.ErrResourceClosed if the pool is closed.
func (p *Pool) GetChannel(ctx context.Context, endpoint clustertypes.Endpoint) (*grpc.ClientConn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, &clustertypes.ErrResourceClosed{Resource: "seed channel pool"}
	}

	v, _ := p.conns.LoadOrStore(endpoint, &entry{})
	e := v.(*entry)
	e.once.Do(func() {
		e.conn, e.err = p.dial(ctx, endpoint)
		e.breaker = newBreaker(endpoint, p.breakerOpen)
	})
	if e.err != nil {
		return nil, e.err
	}
	return e.conn, nil
}

// Breaker returns the circuit breaker tracking endpoint's dial health,
// creating the channel (and breaker) first if needed. A dial failure still
// returns the breaker; only a closed pool is an error. The subscription
// engine's race loop runs each per-seed channel pre-flight through it, so a
// seed whose channel repeatedly fails to dial is skipped by future rounds
// for a cooldown window, without ever being removed from the configured
// seed list. Failures of the topology subscription itself are not recorded.
func (p *Pool) Breaker(ctx context.Context, endpoint clustertypes.Endpoint) (*gobreaker.CircuitBreaker[struct{}], error) {
	if _, err := p.GetChannel(ctx, endpoint); err != nil {
		var closedErr *clustertypes.ErrResourceClosed
		if errors.As(err, &closedErr) {
			return nil, err
		}
	}
	v, ok := p.conns.Load(endpoint)
	if !ok {
		return nil, &clustertypes.ErrResourceClosed{Resource: "seed channel pool"}
	}
	return v.(*entry).breaker, nil
}

func newBreaker(endpoint clustertypes.Endpoint, open time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "seed:" + endpoint.String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     open, // ResilienceConfig.MaxBackoff, passed in via New; 0 keeps gobreaker's 60s default
	})
}

func (p *Pool) dial(ctx context.Context, endpoint clustertypes.Endpoint) (*grpc.ClientConn, error) {
	scheme := grpc.WithTransportCredentials(insecureCreds())
	if p.useTLS {
		scheme = grpc.WithTransportCredentials(tlsCreds(p.tlsConfig))
	}
	opts := []grpc.DialOption{scheme}
	if p.hook != nil {
		opts = p.hook(endpoint, opts)
	}
	conn, err := grpc.NewClient(endpoint.String(), opts...)
	if err != nil {
		p.logger.Error("SEED_DIAL_FAILED", slog.String("seed", endpoint.String()), slog.Any("err", err))
		return nil, err
	}
	return conn, nil
}

// Close concurrently shuts each cached channel down then releases
// resources; subsequent GetChannel calls fail with ErrResourceClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	p.conns.Range(func(key, value any) bool {
		e := value.(*entry)
		if e.conn == nil {
			return true
		}
		wg.Add(1)
		go func(c *grpc.ClientConn) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(e.conn)
		return true
	})
	wg.Wait()
	return firstErr
}
