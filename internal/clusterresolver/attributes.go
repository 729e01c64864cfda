package clusterresolver

import "google.golang.org/grpc/attributes"

// priorityAttrKey is the constant attribute key the priority value
// traverses resolver -> subchannel -> picker under (§9 "Priority attribute
// carriage").
type priorityAttrKey struct{}

// WithPriority attaches a priority attribute to addr's Attributes. Exported
// so tests building resolver.Address values outside this package (e.g.
// internal/clusterbalancer's reconciliation tests) can construct realistic
// input without reaching into priorityAttrKey directly.
func WithPriority(a *attributes.Attributes, priority int) *attributes.Attributes {
	return a.WithValue(priorityAttrKey{}, priority)
}

// Priority reads the priority attribute back off addr's Attributes,
// defaulting to 0 if absent (e.g. an address created outside this
// resolver).
func Priority(a *attributes.Attributes) int {
	if a == nil {
		return 0
	}
	v := a.Value(priorityAttrKey{})
	p, ok := v.(int)
	if !ok {
		return 0
	}
	return p
}
