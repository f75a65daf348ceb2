package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/push"
)

func newTestCoordinator(t *testing.T, meter *mockMeter, hysteresisMinutes int) (*Coordinator, *syncDispatcher) {
	t.Helper()
	alloc := NewAllocator(nil, clock.NewMock())
	bal := NewBalancer(nil, api.PerPhaseAmps{api.L1: 25}, api.Conservative)
	dispatch := newSyncDispatcher()
	bus := push.NewBus()

	c := NewCoordinator(
		nil,
		clock.NewMock(),
		meter,
		bal,
		alloc,
		dispatch,
		bus,
		nil,
		[]api.Phase{api.L1},
		hysteresisMinutes,
	)
	return c, dispatch
}

// Scenario 1: immediate dispatch regardless of recency for a decrease.
func TestCoordinatorSinglePhaseOvercurrentAppliesImmediately(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 27})
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	c.AddCharger(mc)

	now := time.Unix(1000, 0)
	c.Tick(now)

	got, _ := mc.GetCurrentLimit()
	if got[api.L1] != 14 {
		t.Fatalf("expected c1 cut to 14A, got %v", got)
	}
	if c.LastCheckTimestamp() != 1000 {
		t.Fatalf("expected last check timestamp recorded, got %v", c.LastCheckTimestamp())
	}
}

func TestCoordinatorMeterUnavailableAborts(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{})
	meter.missing[api.L1] = true
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	c.AddCharger(mc)

	c.Tick(time.Unix(1000, 0))

	got, _ := mc.GetCurrentLimit()
	if got[api.L1] != 16 {
		t.Fatalf("expected no change when meter is unavailable, got %v", got)
	}
	if len(mc.setCalls) != 0 {
		t.Fatalf("expected no dispatch when meter is unavailable, got %d calls", len(mc.setCalls))
	}
}

func TestCoordinatorNoActiveChargersSkipsAllocation(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 27})
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	mc.canCharge = false
	c.AddCharger(mc)

	c.Tick(time.Unix(1000, 0))

	if len(mc.setCalls) != 0 {
		t.Fatalf("expected no dispatch with no active chargers, got %d calls", len(mc.setCalls))
	}
}

func TestCoordinatorMinChargerUpdateDelayBlocksRecentIncrease(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 5}) // available = min(25, 25-5) = 20
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	c.AddCharger(mc)
	state, _ := c.allocator.State("c1")
	state.Initialize()
	state.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}

	nowTs := 1000.0
	recentUpdate := nowTs - 10 // 10s ago, inside MinChargerUpdateDelay (20s)
	c.chargers["c1"].lastUpdateTime = &recentUpdate

	c.Tick(time.Unix(int64(nowTs), 0))

	if len(mc.setCalls) != 0 {
		t.Fatalf("expected increase to be blocked by MinChargerUpdateDelay, got %d calls", len(mc.setCalls))
	}
}

func TestCoordinatorDecreaseBypassesMinUpdateDelay(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 27}) // available = -2, a cut
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 16, []api.Phase{api.L1})
	c.AddCharger(mc)

	nowTs := 1000.0
	recentUpdate := nowTs - 10
	c.chargers["c1"].lastUpdateTime = &recentUpdate

	c.Tick(time.Unix(int64(nowTs), 0))

	got, _ := mc.GetCurrentLimit()
	if got[api.L1] != 14 {
		t.Fatalf("expected decrease to bypass the update delay gate, got %v", got)
	}
}

func TestCoordinatorHysteresisBlocksIncreaseShortlyAfterDecrease(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 5}) // available = 20, an increase
	c, _ := newTestCoordinator(t, meter, 15)             // 15 minute hysteresis

	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	c.AddCharger(mc)
	state, _ := c.allocator.State("c1")
	state.Initialize()
	state.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}

	nowTs := 10000.0
	lastUpdate := nowTs - 30   // outside the 20s MinChargerUpdateDelay
	lastDecrease := nowTs - 30 // but well inside the 900s hysteresis window
	c.chargers["c1"].lastUpdateTime = &lastUpdate
	c.chargers["c1"].lastDecreaseTime = &lastDecrease

	c.Tick(time.Unix(int64(nowTs), 0))

	if len(mc.setCalls) != 0 {
		t.Fatalf("expected hysteresis to block the increase, got %d calls", len(mc.setCalls))
	}
}

func TestCoordinatorHysteresisAllowsIncreaseAfterWindow(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 5})
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	c.AddCharger(mc)
	state, _ := c.allocator.State("c1")
	state.Initialize()
	state.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}

	nowTs := 10000.0
	lastUpdate := nowTs - 1000
	lastDecrease := nowTs - 1000 // well outside the 900s hysteresis window
	c.chargers["c1"].lastUpdateTime = &lastUpdate
	c.chargers["c1"].lastDecreaseTime = &lastDecrease

	c.Tick(time.Unix(int64(nowTs), 0))

	got, _ := mc.GetCurrentLimit()
	if got[api.L1] != 16 {
		t.Fatalf("expected increase to be allowed once past hysteresis window, got %v", got)
	}
}

func TestCoordinatorFirstEverUpdateAppliesRegardlessOfHysteresis(t *testing.T) {
	meter := newMockMeter(map[api.Phase]int{api.L1: 5})
	c, _ := newTestCoordinator(t, meter, 15)

	mc := newMockCharger("c1", 10, []api.Phase{api.L1})
	c.AddCharger(mc)
	state, _ := c.allocator.State("c1")
	state.Initialize()
	state.RequestedCurrent = api.PerPhaseAmps{api.L1: 16}

	c.Tick(time.Unix(1000, 0))

	got, _ := mc.GetCurrentLimit()
	if got[api.L1] != 16 {
		t.Fatalf("expected first-ever update to apply without gating, got %v", got)
	}
}
