package core

import (
	"testing"

	"github.com/matkvaid/evse-load-balancer/api"
)

func TestBalancerConservativePassesThrough(t *testing.T) {
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Conservative)

	out := b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1000)
	if out[api.L1] != -2 {
		t.Fatalf("expected -2, got %d", out[api.L1])
	}

	out = b.ComputeAvailability(api.PerPhaseAmps{api.L1: 5}, 1001)
	if out[api.L1] != 5 {
		t.Fatalf("expected 5, got %d", out[api.L1])
	}
}

func TestBalancerOptimisedToleratesBriefSpike(t *testing.T) {
	// threshold = 1.0 * windowSeconds = 60 A·s, independent of fuse size.
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Optimised)

	// Spike of -2A (27A draw) held for 2 seconds.
	out := b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1000)
	if out[api.L1] != 0 {
		t.Fatalf("expected tolerated spike to surface 0, got %d", out[api.L1])
	}

	out = b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1001)
	if out[api.L1] != 0 {
		t.Fatalf("expected tolerated spike to surface 0, got %d", out[api.L1])
	}

	// Recovers.
	out = b.ComputeAvailability(api.PerPhaseAmps{api.L1: 3}, 1002)
	if out[api.L1] != 3 {
		t.Fatalf("expected recovery to surface as-is, got %d", out[api.L1])
	}
}

func TestBalancerOptimisedSurfacesSustainedOvercurrent(t *testing.T) {
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Optimised)

	var last int
	for i := 0; i < 40; i++ {
		out := b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, float64(1000+i))
		last = out[api.L1]
	}

	if last != -2 {
		t.Fatalf("expected sustained overcurrent to surface -2 after 40s, got %d", last)
	}
}

func TestBalancerOptimisedResetsOnRecovery(t *testing.T) {
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Optimised)

	for i := 0; i < 10; i++ {
		b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, float64(1000+i))
	}

	// Recovers for a while, clearing the window.
	for i := 10; i < 80; i++ {
		b.ComputeAvailability(api.PerPhaseAmps{api.L1: 1}, float64(1000+i))
	}

	// New brief spike should be tolerated again, not carry over old excess.
	out := b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1080)
	if out[api.L1] != 0 {
		t.Fatalf("expected fresh spike to be tolerated, got %d", out[api.L1])
	}
}

// fakeOvercurrentRecorder captures every ObserveOvercurrentExcess call
// so tests can assert the Balancer feeds it the same integral it uses
// for its own threshold decision.
type fakeOvercurrentRecorder struct {
	calls []float64
}

func (f *fakeOvercurrentRecorder) ObserveOvercurrentExcess(phase api.Phase, excess float64) {
	f.calls = append(f.calls, excess)
}

func TestBalancerFeedsOvercurrentMetric(t *testing.T) {
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Optimised)
	rec := &fakeOvercurrentRecorder{}
	b.SetMetricsRecorder(rec)

	b.ComputeAvailability(api.PerPhaseAmps{api.L1: 5}, 1000)
	if len(rec.calls) != 1 || rec.calls[0] != 0 {
		t.Fatalf("expected a single zero-excess observation, got %v", rec.calls)
	}

	// The first spike sample's own hold time is only known on the next
	// tick, so its observation is still the zero-excess integral.
	b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1001)
	if len(rec.calls) != 2 {
		t.Fatalf("expected a second observation, got %v", rec.calls)
	}
	if rec.calls[1] != 0 {
		t.Fatalf("expected zero integrated excess on the first spike sample, got %v", rec.calls[1])
	}

	// One second later the -2A spike has accumulated 2 A·s.
	b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2}, 1002)
	if len(rec.calls) != 3 {
		t.Fatalf("expected a third observation, got %v", rec.calls)
	}
	if rec.calls[2] != 2 {
		t.Fatalf("expected a positive integrated excess of 2 A·s once the spike continues, got %v", rec.calls[2])
	}
}

func TestBalancerMultiPhaseIndependent(t *testing.T) {
	b := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25, api.L2: 25, api.L3: 25}, api.Conservative)

	out := b.ComputeAvailability(api.PerPhaseAmps{api.L1: -2, api.L2: 5, api.L3: 0}, 1000)
	if out[api.L1] != -2 || out[api.L2] != 5 || out[api.L3] != 0 {
		t.Fatalf("unexpected multi-phase output: %v", out)
	}
}
