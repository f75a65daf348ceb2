package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/matkvaid/evse-load-balancer/api"
)

func TestChargerStateInitialize(t *testing.T) {
	mc := newMockCharger("c1", 10, []api.Phase{api.L1, api.L2, api.L3})
	cs := NewChargerState(nil, clock.NewMock(), mc)

	if !cs.Initialize() {
		t.Fatal("expected initialize to succeed")
	}
	if !cs.Initialized {
		t.Fatal("expected Initialized to be true")
	}
	// Second call is a no-op success.
	if !cs.Initialize() {
		t.Fatal("expected second initialize to still report success")
	}
}

func TestChargerStateInitializeRetriesWhenUnknown(t *testing.T) {
	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	mc.current = nil
	cs := NewChargerState(nil, clock.NewMock(), mc)

	if cs.Initialize() {
		t.Fatal("expected initialize to fail while limits are unknown")
	}
	if cs.Initialized {
		t.Fatal("expected Initialized to remain false")
	}
}

func TestChargerStateSettleTimeShieldsReads(t *testing.T) {
	mockClock := clock.NewMock()
	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	mc.settle = 30
	cs := NewChargerState(nil, mockClock, mc)
	cs.Initialize()

	cs.LastAppliedCurrent = api.PerPhaseAmps{api.L1: 8}
	cs.LastUpdateTime = float64(mockClock.Now().Unix())

	// Hardware lags and still reports the old value.
	mc.current = api.PerPhaseAmps{api.L1: 10}

	got := cs.GetCurrentLimit()
	if !got.Equal(api.PerPhaseAmps{api.L1: 8}) {
		t.Fatalf("expected shielded read to return last applied, got %v", got)
	}

	// Advance past the settle window.
	mockClock.Add(31 * clockSecond)
	got = cs.GetCurrentLimit()
	if !got.Equal(api.PerPhaseAmps{api.L1: 10}) {
		t.Fatalf("expected unshielded read after settle, got %v", got)
	}
}

// Scenario 6: manual override without corruption.
func TestChargerStateManualOverrideWithoutCorruption(t *testing.T) {
	mc := newMockCharger("c1", 32, []api.Phase{api.L1})
	cs := NewChargerState(nil, clock.NewMock(), mc)
	cs.Initialize()

	// Load balancer applies 27A.
	cs.LastAppliedCurrent = api.PerPhaseAmps{api.L1: 27}
	cs.RequestedCurrent = api.PerPhaseAmps{api.L1: 32}

	// Settle expires; adapter still reports 32A (its pre-write value,
	// which happens to equal the user's original intent).
	mc.current = api.PerPhaseAmps{api.L1: 32}
	cs.DetectManualOverride()

	if cs.ManualOverrideDetected {
		t.Fatal("expected no override: 32 equals requested_current")
	}
	if cs.RequestedCurrent[api.L1] != 32 {
		t.Fatalf("expected requested current to stay 32, got %v", cs.RequestedCurrent)
	}

	// Adapter later reports 27A: equals last_applied, still no override.
	mc.current = api.PerPhaseAmps{api.L1: 27}
	cs.DetectManualOverride()

	if cs.ManualOverrideDetected {
		t.Fatal("expected no override: 27 equals last_applied_current")
	}
	if cs.RequestedCurrent[api.L1] != 32 {
		t.Fatalf("expected requested current to stay 32, got %v", cs.RequestedCurrent)
	}
}

func TestChargerStateGenuineManualOverride(t *testing.T) {
	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	cs := NewChargerState(nil, clock.NewMock(), mc)
	cs.Initialize()

	cs.LastAppliedCurrent = api.PerPhaseAmps{api.L1: 10}
	cs.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}

	// User dials the charger to 6A directly, differing from both.
	mc.current = api.PerPhaseAmps{api.L1: 6}
	cs.DetectManualOverride()

	if !cs.ManualOverrideDetected {
		t.Fatal("expected a genuine manual override to be detected")
	}
	if cs.RequestedCurrent[api.L1] != 6 {
		t.Fatalf("expected requested current to follow override to 6, got %v", cs.RequestedCurrent)
	}
}

func TestChargerStateDetectOverrideIdempotent(t *testing.T) {
	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	cs := NewChargerState(nil, clock.NewMock(), mc)
	cs.Initialize()

	cs.LastAppliedCurrent = api.PerPhaseAmps{api.L1: 10}
	cs.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}
	mc.current = api.PerPhaseAmps{api.L1: 6}

	cs.DetectManualOverride()
	firstRequested := cs.RequestedCurrent.Clone()
	firstFlag := cs.ManualOverrideDetected

	cs.DetectManualOverride()

	if !cs.RequestedCurrent.Equal(firstRequested) {
		t.Fatalf("expected idempotent requested current, got %v then %v", firstRequested, cs.RequestedCurrent)
	}
	if cs.ManualOverrideDetected != firstFlag {
		t.Fatalf("expected idempotent override flag")
	}
}

func TestChargerStateNewSessionResetsToMax(t *testing.T) {
	mc := newMockCharger("c1", 6, []api.Phase{api.L1})
	mc.max = api.PerPhaseAmps{api.L1: 32}
	mc.canCharge = false
	cs := NewChargerState(nil, clock.NewMock(), mc)
	cs.Initialize()
	if cs.ActiveSession() {
		t.Fatal("expected no active session before can_charge transitions true")
	}

	mc.canCharge = true
	cs.DetectManualOverride()

	if cs.RequestedCurrent[api.L1] != 32 {
		t.Fatalf("expected new-session reset to hardware max 32A, got %v", cs.RequestedCurrent)
	}
	if !cs.ActiveSession() {
		t.Fatal("expected active session to be set true")
	}
}

const clockSecond = time.Second
