package core

import (
	"math"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// Allocator is the multi-charger apportioner described in spec.md
// §4.5, grounded on power_allocator.py's PowerAllocator.
type Allocator struct {
	log   *util.Logger
	clock util.Clock

	order []api.ChargerID
	states map[api.ChargerID]*ChargerState
}

// NewAllocator creates an empty Allocator.
func NewAllocator(log *util.Logger, clock util.Clock) *Allocator {
	return &Allocator{
		log:    log,
		clock:  clock,
		states: make(map[api.ChargerID]*ChargerState),
	}
}

// AddCharger registers charger for allocation. Returns false if it is
// already tracked.
func (a *Allocator) AddCharger(charger api.Charger) bool {
	id := charger.ID()
	if _, ok := a.states[id]; ok {
		if a.log != nil {
			a.log.WARN.Printf("charger %s already exists in allocator", id)
		}
		return false
	}

	a.states[id] = NewChargerState(a.log, a.clock, charger)
	a.order = append(a.order, id)
	if a.log != nil {
		a.log.INFO.Printf("added charger %s to allocator", id)
	}
	return true
}

// AddChargerAndInitialize adds charger and immediately initializes
// its state.
func (a *Allocator) AddChargerAndInitialize(charger api.Charger) bool {
	if !a.AddCharger(charger) {
		return false
	}
	return a.states[charger.ID()].Initialize()
}

// RemoveCharger drops a charger from allocation.
func (a *Allocator) RemoveCharger(id api.ChargerID) bool {
	if _, ok := a.states[id]; !ok {
		return false
	}
	delete(a.states, id)
	for i, oid := range a.order {
		if oid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if a.log != nil {
		a.log.INFO.Printf("removed charger %s from allocator", id)
	}
	return true
}

// State returns the tracked state for id, if any.
func (a *Allocator) State(id api.ChargerID) (*ChargerState, bool) {
	s, ok := a.states[id]
	return s, ok
}

// activeChargers returns the ids (in insertion order) of chargers
// currently reporting can_charge() == true.
func (a *Allocator) activeChargers() []api.ChargerID {
	active := make([]api.ChargerID, 0, len(a.order))
	for _, id := range a.order {
		if a.states[id].charger.CanCharge() {
			active = append(active, id)
		}
	}
	return active
}

// ShouldMonitor reports whether any tracked charger currently reports
// CanCharge() and should be monitored.
func (a *Allocator) ShouldMonitor() bool {
	return len(a.activeChargers()) > 0
}

// UpdateAllocation runs one allocation pass. It is the Allocator half
// of the control loop: restrict to active chargers, initialize/detect
// overrides, distribute deltas proportionally, flatten synced-phase
// chargers, and filter out chargers with no effective change.
func (a *Allocator) UpdateAllocation(deltas api.PerPhaseAmps) map[api.ChargerID]api.PerPhaseAmps {
	active := a.activeChargers()
	if len(active) == 0 {
		return map[api.ChargerID]api.PerPhaseAmps{}
	}

	for _, id := range active {
		state := a.states[id]
		if !state.Initialized && !state.Initialize() {
			continue
		}
		state.DetectManualOverride()
	}

	allocated := a.allocateCurrent(active, deltas)

	result := make(map[api.ChargerID]api.PerPhaseAmps)
	for _, id := range active {
		newLimits, ok := allocated[id]
		if !ok {
			continue
		}

		state := a.states[id]
		currentSetting := state.GetCurrentLimit()
		if currentSetting == nil {
			continue
		}

		var hasChanges bool
		if state.charger.SyncedPhaseLimits() {
			hasChanges = minOfMap(newLimits) != minOfMap(currentSetting)
		} else {
			for p, v := range newLimits {
				if currentSetting[p] != v {
					hasChanges = true
					break
				}
			}
		}

		if hasChanges {
			result[id] = newLimits
			state.LastCalculatedCurrent = newLimits.Clone()
			state.ManualOverrideDetected = false
		}
	}

	return result
}

// UpdateAppliedCurrent is called by the Coordinator after a successful
// dispatch to record what was actually written to the hardware.
func (a *Allocator) UpdateAppliedCurrent(id api.ChargerID, applied api.PerPhaseAmps, ts float64) {
	state, ok := a.states[id]
	if !ok {
		if a.log != nil {
			a.log.WARN.Printf("charger %s not found in allocator", id)
		}
		return
	}
	state.LastAppliedCurrent = applied.Clone()
	state.LastUpdateTime = ts
}

// allocateCurrent distributes deltas per-phase across active chargers
// and flattens synced-phase chargers over the processed phases.
func (a *Allocator) allocateCurrent(active []api.ChargerID, deltas api.PerPhaseAmps) map[api.ChargerID]api.PerPhaseAmps {
	result := make(map[api.ChargerID]api.PerPhaseAmps)

	processedPhases := make([]api.Phase, 0, len(deltas))
	for phase, delta := range deltas {
		if delta == 0 {
			continue
		}
		processedPhases = append(processedPhases, phase)

		if delta < 0 {
			a.distributeCuts(active, phase, delta, result)
		} else {
			a.distributeIncreases(active, phase, delta, result)
		}
	}

	for id, limits := range result {
		state := a.states[id]
		if !state.charger.SyncedPhaseLimits() {
			continue
		}

		processed := make(api.PerPhaseAmps, len(processedPhases))
		for _, p := range processedPhases {
			if v, ok := limits[p]; ok {
				processed[p] = v
			}
		}
		if len(processed) == 0 {
			continue
		}

		min := minOfMap(processed)
		result[id] = api.Flatten(api.Phases3p[:], min)
	}

	return result
}

// distributeCuts implements the proportional-cut rule of spec.md
// §4.5 step 3.
func (a *Allocator) distributeCuts(active []api.ChargerID, phase api.Phase, deficit int, result map[api.ChargerID]api.PerPhaseAmps) {
	type entry struct {
		id      api.ChargerID
		current int
	}
	var entries []entry
	total := 0

	for _, id := range active {
		state := a.states[id]
		currentSetting := state.GetCurrentLimit()
		if currentSetting == nil {
			continue
		}
		current := currentSetting[phase]
		entries = append(entries, entry{id: id, current: current})
		total += current
	}

	if total == 0 {
		return
	}

	for _, e := range entries {
		cut := int(math.Floor(float64(deficit) * float64(e.current) / float64(total)))

		state := a.states[e.id]
		currentSetting := state.GetCurrentLimit()

		if _, ok := result[e.id]; !ok {
			result[e.id] = currentSetting.Clone()
		}
		newValue := currentSetting[phase] + cut
		if newValue < 0 {
			newValue = 0
		}
		result[e.id][phase] = newValue
	}
}

// distributeIncreases implements the proportional-increase rule of
// spec.md §4.5 step 3.
func (a *Allocator) distributeIncreases(active []api.ChargerID, phase api.Phase, surplus int, result map[api.ChargerID]api.PerPhaseAmps) {
	type entry struct {
		id        api.ChargerID
		potential int
	}
	var entries []entry
	totalPotential := 0

	for _, id := range active {
		state := a.states[id]
		currentSetting := state.GetCurrentLimit()
		if currentSetting == nil || state.RequestedCurrent == nil {
			continue
		}

		current := currentSetting[phase]
		requested, ok := state.RequestedCurrent[phase]
		if !ok {
			continue
		}

		potential := requested - current
		if potential <= 0 {
			continue
		}
		entries = append(entries, entry{id: id, potential: potential})
		totalPotential += potential
	}

	if totalPotential == 0 {
		return
	}

	for _, e := range entries {
		increase := float64(surplus) * float64(e.potential) / float64(totalPotential)
		if increase > float64(e.potential) {
			increase = float64(e.potential)
		}

		state := a.states[e.id]
		currentSetting := state.GetCurrentLimit()

		if _, ok := result[e.id]; !ok {
			result[e.id] = currentSetting.Clone()
		}
		result[e.id][phase] = currentSetting[phase] + int(math.Floor(increase))
	}
}

func minOfMap(m api.PerPhaseAmps) int {
	min := 0
	first := true
	for _, v := range m {
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}
