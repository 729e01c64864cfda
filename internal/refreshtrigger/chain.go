package refreshtrigger

import (
	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware/v2"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// DialOptions returns the dial options that install this interceptor on
// every RPC shape, chained via go-grpc-middleware/v2 the way a
// multi-interceptor client stack is normally assembled, plus otel stats
// instrumentation so a refresh-triggering failure is still captured in the
// active span.
func (i *Interceptor) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(grpcmiddleware.ChainUnaryClient(i.Unary())),
		grpc.WithChainStreamInterceptor(grpcmiddleware.ChainStreamClient(i.Stream())),
	}
}
