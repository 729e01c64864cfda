// Package topologysource defines the two external Topology Source shapes
// (polling and streaming) consumed by the subscription engine, plus the
// adapter that presents a polling source as a streaming one (§4.3, §6).
package topologysource

import (
	"context"

	"google.golang.org/grpc"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// Context is the argument bundle every Topology Source call receives.
type Context struct {
	Endpoint clustertypes.Endpoint
	Timeout  int64 // nanoseconds; zero means "no deadline beyond ctx"

	// Dial, when set, returns the Seed Channel Pool's cached transport
	// channel for Endpoint (§4.1 "Acquires the seed channel from the
	// pool" — §4.2 step 2a). A source implementation built on gRPC should
	// prefer this over dialing its own channel, so seed channels are
	// shared across subscription rounds. Nil when the engine was built
	// without a Seed Channel Pool, in which case the source must dial
	// itself.
	Dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// Comparer orders two nodes for priority purposes. Topology sources may
// optionally supply one (nil means "no opinion"), and PollingAdapter
// forwards it. The resolver does not consult it: published addresses are
// always ordered by Node.Priority.
type Comparer func(a, b clustertypes.Node) int

// Polling is a topology source that returns a single snapshot per call.
type Polling interface {
	Poll(ctx context.Context, tc Context) (clustertypes.Topology, error)
	// Comparer may return nil.
	Comparer() Comparer
}

// Snapshot is one item of a Streaming source's lazy sequence.
type Snapshot struct {
	Topology clustertypes.Topology
	Err      error
}

// Streaming is a topology source that produces a lazy, finite-or-infinite
// sequence of snapshots. The channel closes to signal "stream ended
// normally, please resubscribe" (§4.4 failure handling table).
type Streaming interface {
	// Subscribe returns a channel of snapshots. The source must stop
	// sending and close the channel promptly once ctx is cancelled.
	Subscribe(ctx context.Context, tc Context) (<-chan Snapshot, error)
	Comparer() Comparer
}
