package core

import (
	"github.com/matkvaid/evse-load-balancer/api"
)

// mockCharger is a minimal, fully in-memory api.Charger used across
// the core package's tests, in the spirit of the original test
// suite's MockCharger helper.
type mockCharger struct {
	id     api.ChargerID
	synced bool
	settle int

	current api.PerPhaseAmps
	max     api.PerPhaseAmps

	canCharge    bool
	isCharging   bool
	carConnected bool

	setCalls []api.PerPhaseAmps
	setErr   error

	phaseMode api.PhaseMode
}

func newMockCharger(id api.ChargerID, initial int, phases []api.Phase) *mockCharger {
	current := api.Flatten(phases, initial)
	max := api.Flatten(phases, 32)
	return &mockCharger{
		id:           id,
		current:      current,
		max:          max,
		canCharge:    true,
		isCharging:   true,
		carConnected: true,
	}
}

func (m *mockCharger) ID() api.ChargerID          { return m.id }
func (m *mockCharger) Kind() api.ChargerKind      { return api.ChargerUnknown }
func (m *mockCharger) SyncedPhaseLimits() bool    { return m.synced }
func (m *mockCharger) CurrentChangeSettleTime() int { return m.settle }

func (m *mockCharger) GetCurrentLimit() (api.PerPhaseAmps, error) {
	if m.current == nil {
		return nil, nil
	}
	return m.current.Clone(), nil
}

func (m *mockCharger) GetMaxCurrentLimit() (api.PerPhaseAmps, error) {
	if m.max == nil {
		return nil, nil
	}
	return m.max.Clone(), nil
}

func (m *mockCharger) CanCharge() bool    { return m.canCharge }
func (m *mockCharger) IsCharging() bool   { return m.isCharging }
func (m *mockCharger) CarConnected() bool { return m.carConnected }

func (m *mockCharger) SetCurrentLimit(limit api.PerPhaseAmps) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls = append(m.setCalls, limit.Clone())
	m.current = limit.Clone()
	return nil
}

func (m *mockCharger) PhaseMode() api.PhaseMode { return m.phaseMode }

func (m *mockCharger) SetPhaseMode(mode api.PhaseMode) error {
	m.phaseMode = mode
	return nil
}

// syncDispatcher applies writes inline so Coordinator tests stay
// deterministic without waiting on real goroutines.
type syncDispatcher struct {
	results chan DispatchResult
}

func newSyncDispatcher() *syncDispatcher {
	return &syncDispatcher{results: make(chan DispatchResult, 64)}
}

func (d *syncDispatcher) Register(charger api.Charger)   {}
func (d *syncDispatcher) Unregister(id api.ChargerID)    {}

func (d *syncDispatcher) Dispatch(charger api.Charger, limits api.PerPhaseAmps) {
	err := charger.SetCurrentLimit(limits)
	d.results <- DispatchResult{ID: charger.ID(), Limits: limits, Err: err}
}

func (d *syncDispatcher) Results() <-chan DispatchResult {
	return d.results
}

// mockMeter reports fixed (or missing) per-phase currents.
type mockMeter struct {
	readings map[api.Phase]int
	missing  map[api.Phase]bool
}

func newMockMeter(readings map[api.Phase]int) *mockMeter {
	return &mockMeter{readings: readings, missing: map[api.Phase]bool{}}
}

func (m *mockMeter) GetActivePhaseCurrent(p api.Phase) (int, bool) {
	if m.missing[p] {
		return 0, false
	}
	v, ok := m.readings[p]
	return v, ok
}
