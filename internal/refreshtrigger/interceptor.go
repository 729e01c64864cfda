package refreshtrigger

import (
	"context"
	"io"
	"log/slog"

	"google.golang.org/grpc"
)

// Refresher is the resolver-side operation the interceptors trigger.
// clusterresolver.Handle satisfies this.
type Refresher interface {
	Refresh()
}

// Interceptor bundles the chained unary and streaming client interceptors
// of §4.7 behind one configuration surface.
type Interceptor struct {
	Refresher Refresher
	Policy    Policy
	Logger    *slog.Logger
}

// New builds an Interceptor. A nil policy defaults to DefaultPolicy(); a
// nil logger defaults to slog.Default().
func New(refresher Refresher, policy Policy, logger *slog.Logger) *Interceptor {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{Refresher: refresher, Policy: policy, Logger: logger}
}

// Unary observes end-of-call completion for unary RPCs (§4.7 "For unary
// and client-streaming, it observes the response completion").
func (i *Interceptor) Unary() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		i.observe(method, err)
		return err
	}
}

// Stream wraps the returned ClientStream so its RecvMsg calls are
// observed. This covers all three streaming shapes uniformly: for
// client-streaming the final RecvMsg (via CloseAndRecv) is the "response
// completion" §4.7 names; for server-streaming and bidi it is "each
// item-read failure".
func (i *Interceptor) Stream() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			i.observe(method, err)
			return cs, err
		}
		return &observedStream{ClientStream: cs, method: method, i: i}, nil
	}
}

// observe is the protocol's steps 2-3: evaluate the policy, log, and
// trigger a refresh; it never alters the error it was given.
func (i *Interceptor) observe(method string, err error) {
	if err == nil {
		return
	}
	code, refresh := shouldRefresh(i.Policy, err)
	if !refresh {
		return
	}
	i.Logger.Warn("REFRESH_TRIGGERED", slog.String("method", method), slog.String("code", code.String()))
	i.Refresher.Refresh()
}

// observedStream wraps grpc.ClientStream so RecvMsg failures are observed
// exactly once per failing read, per §4.7 "server/bidi streams trigger
// once per failing read".
type observedStream struct {
	grpc.ClientStream
	method string
	i      *Interceptor
}

func (s *observedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil && err != io.EOF {
		s.i.observe(s.method, err)
	}
	return err
}
