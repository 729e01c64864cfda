package clusterbalancer

import (
	"sync/atomic"

	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// pickEntry is the picker's fixed-size array element (§4.6 "store as a
// fixed-size array"). Kept minimal so picker construction stays cheap and
// Pick itself touches no heap.
type pickEntry struct {
	sc   balancer.SubConn
	addr string
}

// picker is the immutable, allocation-free selector of §4.6. Never mutated
// after construction; the Subchannel Manager swaps the whole value via
// balancer.ClientConn.UpdateState.
type picker struct {
	entries []pickEntry
	counter atomic.Uint64
}

var _ balancer.Picker = (*picker)(nil)

func newPicker(entries []pickEntry) *picker {
	return &picker{entries: entries}
}

// Pick selects the next subchannel in priority-sorted round robin. The
// counter increment and modulo are the only operations on the hot path;
// both are branch-free and allocation-free.
func (p *picker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	n := len(p.entries)
	if n == 0 {
		return balancer.PickResult{}, status.Error(codes.Unavailable, "no ready nodes available")
	}

	c := p.counter.Add(1)
	// N is always > 0 here, and c is unsigned, so this modulo cannot
	// produce a negative index; the (x mod N + N) mod N dance from the
	// spec's signed-overflow note is unnecessary with an unsigned counter
	// but kept conceptually equivalent: a plain non-negative modulo.
	idx := int(c % uint64(n))
	return balancer.PickResult{SubConn: p.entries[idx].sc}, nil
}
