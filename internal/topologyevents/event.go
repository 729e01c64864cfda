// Package topologyevents fans discovery lifecycle events out over AMQP so
// operators can observe topology churn and discovery exhaustion without
// polling this process — an enrichment SPEC_FULL.md adds as a natural
// complement to the Resolver's "log the diff" step (§4.4).
package topologyevents

import (
	"time"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// Eventer is the routing contract every published event satisfies,
// mirroring the teacher's internal/domain/event.Eventer shape.
type Eventer interface {
	GetRoutingKey() string
}

const (
	routingKeyTopologyChanged    = "cluster.topology.changed"
	routingKeyDiscoveryExhausted = "cluster.discovery.exhausted"
	routingKeyNoEligibleNodes    = "cluster.topology.no_eligible_nodes"
)

// TopologyChanged is published every time the resolver publishes a new
// address set (§4.4 change detection).
type TopologyChanged struct {
	At       time.Time             `json:"at"`
	Added    []clustertypes.Endpoint `json:"added"`
	Removed  []clustertypes.Endpoint `json:"removed"`
	Eligible int                    `json:"eligible_count"`
	Total    int                    `json:"total_count"`
}

func (TopologyChanged) GetRoutingKey() string { return routingKeyTopologyChanged }

// DiscoveryExhausted is published when the subscription engine surfaces a
// *clustertypes.ClusterDiscoveryError (§4.2 step 5).
type DiscoveryExhausted struct {
	At       time.Time              `json:"at"`
	Attempts int                    `json:"attempts"`
	Seeds    []clustertypes.Endpoint `json:"seeds"`
	Reason   string                 `json:"reason"`
}

func (DiscoveryExhausted) GetRoutingKey() string { return routingKeyDiscoveryExhausted }

// NoEligibleNodes is published when a topology is observed with nodes but
// none eligible (§7 "No eligible nodes").
type NoEligibleNodes struct {
	At         time.Time `json:"at"`
	TotalNodes int       `json:"total_nodes"`
}

func (NoEligibleNodes) GetRoutingKey() string { return routingKeyNoEligibleNodes }
