package clusterbalancer

import (
	"sync"
	"testing"

	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/resolver"

	"github.com/webitel/cluster-grpclb/internal/clusterresolver"
)

// fakeClientConn is a minimal balancer.ClientConn recording every call
// UpdateClientConnState triggers, so reconciliation (§4.5 step 2-4, §8's
// "subchannel set always matches the current address list" invariant) can
// be asserted without a real gRPC transport. A SubConn it creates reports
// its Shutdown back through RemoveSubConn, so removed lists every disposed
// SubConn.
type fakeClientConn struct {
	balancer.ClientConn
	mu      sync.Mutex
	created []resolver.Address
	removed []balancer.SubConn
	states  []balancer.State
}

func (f *fakeClientConn) NewSubConn(addrs []resolver.Address, _ balancer.NewSubConnOptions) (balancer.SubConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, addrs[0])
	return &stubSubConn{cc: f}, nil
}
func (f *fakeClientConn) RemoveSubConn(sc balancer.SubConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, sc)
}
func (f *fakeClientConn) UpdateAddresses(balancer.SubConn, []resolver.Address) {}
func (f *fakeClientConn) UpdateState(s balancer.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}
func (f *fakeClientConn) ResolveNow(resolver.ResolveNowOptions) {}
func (f *fakeClientConn) Target() string { return "cluster:///test" }

func addrWithPriority(addr string, priority int) resolver.Address {
	a := resolver.Address{Addr: addr}
	a.Attributes = clusterresolver.WithPriority(a.Attributes, priority)
	return a
}

func TestUpdateClientConnStateCreatesOneSubConnPerAddress(t *testing.T) {
	cc := &fakeClientConn{}
	bal := (&Builder{}).Build(cc, balancer.BuildOptions{}).(*clusterBalancer)

	addrs := []resolver.Address{addrWithPriority("a:1", 0), addrWithPriority("b:1", 1)}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: addrs}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cc.created) != 2 {
		t.Fatalf("expected 2 NewSubConn calls, got %d", len(cc.created))
	}
	if len(bal.subconns) != 2 {
		t.Fatalf("expected 2 tracked subconns, got %d", len(bal.subconns))
	}
}

func TestUpdateClientConnStateRemovesDroppedAddresses(t *testing.T) {
	cc := &fakeClientConn{}
	bal := (&Builder{}).Build(cc, balancer.BuildOptions{}).(*clusterBalancer)

	first := []resolver.Address{addrWithPriority("a:1", 0), addrWithPriority("b:1", 0)}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: first}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bSC := bal.subconns[resolver.Address{Addr: "b:1"}].sc

	second := []resolver.Address{addrWithPriority("a:1", 0)}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: second}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cc.removed) != 1 || cc.removed[0] != bSC {
		t.Fatalf("expected b:1's subconn to be the one removed, got %v", cc.removed)
	}
	if len(bal.subconns) != 1 {
		t.Fatalf("expected §8's invariant to hold: 1 tracked subconn left, got %d", len(bal.subconns))
	}
	if _, stillThere := bal.subconns[resolver.Address{Addr: "b:1"}]; stillThere {
		t.Fatal("expected b:1 to be gone from the tracked set")
	}
}

func TestUpdateClientConnStateUpdatesPriorityInPlace(t *testing.T) {
	cc := &fakeClientConn{}
	bal := (&Builder{}).Build(cc, balancer.BuildOptions{}).(*clusterBalancer)

	first := []resolver.Address{addrWithPriority("a:1", 0)}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: first}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	originalSC := bal.subconns[resolver.Address{Addr: "a:1"}].sc

	second := []resolver.Address{addrWithPriority("a:1", 7)}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: second}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cc.created) != 1 {
		t.Fatalf("expected no additional NewSubConn for a priority-only change, got %d total creates", len(cc.created))
	}
	sub := bal.subconns[resolver.Address{Addr: "a:1"}]
	if sub.sc != originalSC {
		t.Fatal("expected the same SubConn to be reused across a priority-only update")
	}
	if sub.priority != 7 {
		t.Fatalf("expected priority to be updated in place to 7, got %d", sub.priority)
	}
}

func TestAggregateState(t *testing.T) {
	cases := []struct {
		name                                    string
		any, anyReady, anyConnecting, anyFailure bool
		want                                    connectivity.State
	}{
		{"ready wins", true, true, true, true, connectivity.Ready},
		{"connecting over failure", true, false, true, true, connectivity.Connecting},
		{"failure when only failures", true, false, false, true, connectivity.TransientFailure},
		{"idle when nothing tracked", false, false, false, false, connectivity.Idle},
		{"idle when subconns exist but none settled", true, false, false, false, connectivity.Idle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := aggregateState(tc.any, tc.anyReady, tc.anyConnecting, tc.anyFailure)
			if got != tc.want {
				t.Fatalf("aggregateState(%v,%v,%v,%v) = %v, want %v", tc.any, tc.anyReady, tc.anyConnecting, tc.anyFailure, got, tc.want)
			}
		})
	}
}
