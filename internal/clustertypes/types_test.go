package clustertypes

import (
	"testing"
	"time"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw     string
		want    Endpoint
		wantErr bool
	}{
		{raw: "a:1", want: Endpoint{Host: "a", Port: 1}},
		{raw: "10.0.0.1:9090", want: Endpoint{Host: "10.0.0.1", Port: 9090}},
		{raw: "no-port", wantErr: true},
		{raw: "host:notanumber", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseEndpoint(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseEndpoint(%q): expected error, got nil", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint(%q): unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseEndpoint(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNewTopologyDeduplicatesByEndpoint(t *testing.T) {
	ep := Endpoint{Host: "x", Port: 1}
	top := NewTopology([]Node{
		{Endpoint: ep, IsEligible: true, Priority: 0},
		{Endpoint: ep, IsEligible: false, Priority: 5}, // later duplicate dropped
		{Endpoint: Endpoint{Host: "y", Port: 1}, IsEligible: true, Priority: 1},
	})

	if top.Count != 2 {
		t.Fatalf("Count = %d, want 2", top.Count)
	}
	if top.EligibleCount != 2 {
		t.Fatalf("EligibleCount = %d, want 2", top.EligibleCount)
	}
	if !top.Nodes[0].IsEligible {
		t.Fatalf("expected first occurrence of %s to be kept", ep)
	}
}

func TestTopologyEquivalentIgnoresOrder(t *testing.T) {
	a := NewTopology([]Node{
		{Endpoint: Endpoint{Host: "x", Port: 1}, IsEligible: true, Priority: 0},
		{Endpoint: Endpoint{Host: "y", Port: 1}, IsEligible: true, Priority: 1},
	})
	b := NewTopology([]Node{
		{Endpoint: Endpoint{Host: "y", Port: 1}, IsEligible: true, Priority: 1},
		{Endpoint: Endpoint{Host: "x", Port: 1}, IsEligible: true, Priority: 0},
	})
	if !a.Equivalent(b) {
		t.Fatalf("expected topologies to be equivalent regardless of order")
	}

	c := NewTopology([]Node{
		{Endpoint: Endpoint{Host: "x", Port: 1}, IsEligible: false, Priority: 0},
		{Endpoint: Endpoint{Host: "y", Port: 1}, IsEligible: true, Priority: 1},
	})
	if a.Equivalent(c) {
		t.Fatalf("expected topologies with different eligibility to differ")
	}
}

func TestBackoffBoundaries(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 1000 * time.Millisecond

	for attempt := 1; attempt <= 10; attempt++ {
		d := Backoff(attempt, initial, max)
		if d < 0 {
			t.Fatalf("attempt %d: backoff negative: %v", attempt, d)
		}
		if d > time.Duration(float64(max)*1.1)+1 {
			t.Fatalf("attempt %d: backoff %v exceeds jittered max", attempt, d)
		}
	}
}
