// Package clustertypes holds the value types shared across the cluster
// load balancer: endpoints, nodes, topology snapshots and the resilience
// knobs that configure discovery retries.
package clustertypes

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// Endpoint is a (host, port) pair. Equality is by both fields.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ParseEndpoint parses "host:port" into an Endpoint.
func ParseEndpoint(raw string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("clustertypes: invalid seed %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("clustertypes: invalid port in seed %q: %w", raw, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Node is an Endpoint plus eligibility and priority. Nodes are value-typed:
// two nodes are equal iff endpoint, eligibility and priority are equal.
type Node struct {
	Endpoint   Endpoint
	IsEligible bool
	Priority   int
}

// Equal reports whether two nodes carry identical state.
func (n Node) Equal(o Node) bool {
	return n.Endpoint == o.Endpoint && n.IsEligible == o.IsEligible && n.Priority == o.Priority
}

// Topology is an ordered sequence of nodes plus derived counts.
type Topology struct {
	Nodes         []Node
	Count         int
	EligibleCount int
}

// NewTopology builds a Topology from raw nodes, deduplicating by endpoint
// (keeping the first occurrence) per §3's invariant.
func NewTopology(nodes []Node) Topology {
	seen := make(map[Endpoint]struct{}, len(nodes))
	deduped := make([]Node, 0, len(nodes))
	eligible := 0
	for _, n := range nodes {
		if _, ok := seen[n.Endpoint]; ok {
			continue
		}
		seen[n.Endpoint] = struct{}{}
		deduped = append(deduped, n)
		if n.IsEligible {
			eligible++
		}
	}
	return Topology{Nodes: deduped, Count: len(deduped), EligibleCount: eligible}
}

// Fingerprint returns a stable identity for the topology's set of
// (host, port, isEligible, priority) tuples, used for change detection
// and for the resolver's LRU de-duplication of repeated failure logs.
func (t Topology) Fingerprint() string {
	keys := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		keys = append(keys, fmt.Sprintf("%s|%t|%d", n.Endpoint, n.IsEligible, n.Priority))
	}
	sort.Strings(keys)
	out := make([]byte, 0, 64)
	for i, k := range keys {
		if i > 0 {
			out = append(out, ';')
		}
		out = append(out, k...)
	}
	return string(out)
}

// Equivalent reports whether two topologies carry the same tuple set,
// per §4.4's change-detection rule. Order is irrelevant.
func (t Topology) Equivalent(o Topology) bool {
	return t.Fingerprint() == o.Fingerprint()
}

// ResilienceConfig groups the retry/backoff/timeout knobs shared by the
// subscription engine, the polling adapter and the refresh trigger.
type ResilienceConfig struct {
	Timeout               time.Duration
	MaxDiscoveryAttempts  int
	InitialBackoff        time.Duration
	MaxBackoff            time.Duration
	RefreshOnStatusCodes  []uint32 // google.golang.org/grpc/codes.Code values, stored numerically to keep this package transport-agnostic
}

// DefaultResilienceConfig mirrors the teacher's habit of shipping sane
// production defaults from functional-option constructors.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Timeout:              10 * time.Second,
		MaxDiscoveryAttempts: 5,
		InitialBackoff:       200 * time.Millisecond,
		MaxBackoff:           30 * time.Second,
		RefreshOnStatusCodes: DefaultRefreshStatusCodes(),
	}
}
