package core

import (
	"math"
	"time"

	"github.com/avast/retry-go"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/push"
	"github.com/matkvaid/evse-load-balancer/util"
)

// meterRetryOptions bounds a single phase read to a handful of
// attempts within the current tick's budget; a retry never carries
// over into the next tick. Mirrors loadpoint.go's
// retry.Do(..., retryOptions...) pattern.
var meterRetryOptions = []retry.Option{
	retry.Attempts(3),
	retry.Delay(20 * time.Millisecond),
	retry.LastErrorOnly(true),
}

// MinChargerUpdateDelay is the minimum number of seconds between two
// setpoint writes to the same charger. A setpoint that lowers any
// phase bypasses it and is written immediately.
const MinChargerUpdateDelay = 20

// ExecutionCycleDelay is the default period between ticks.
const ExecutionCycleDelay = 1 * time.Second

// MetricsRecorder is the subset of metrics.Recorder the Coordinator
// needs. Kept as an interface here so core never imports the
// prometheus client directly.
type MetricsRecorder interface {
	ObserveAvailability(deltas api.PerPhaseAmps)
	ObserveSetpoint(id api.ChargerID, limits api.PerPhaseAmps)
	ObserveDispatch(id api.ChargerID, outcome string)
}

// chargerEntry is the Coordinator's own per-charger bookkeeping,
// distinct from ChargerState (owned by the Allocator): gating
// timestamps live here because they are a Coordinator concern
// (timing policy), not an allocation concern.
type chargerEntry struct {
	charger           api.Charger
	lastUpdateTime    *float64
	lastDecreaseTime  *float64
}

// Coordinator is the periodic driver of spec.md §4.6: it samples the
// meter, calls Balancer then Allocator, applies timing policy, and
// pushes setpoints to chargers while emitting observability events.
type Coordinator struct {
	log   *util.Logger
	clock util.Clock

	meter     api.Meter
	balancer  *Balancer
	allocator *Allocator
	dispatch  chargerDispatcher
	bus       *push.Bus
	metrics   MetricsRecorder

	livePhases        []api.Phase
	hysteresisMinutes int

	chargers map[api.ChargerID]*chargerEntry

	lastCheckTimestamp float64
}

// NewCoordinator wires the control loop's collaborators together.
// livePhases must be the first N entries of api.Phases3p for the
// deployment's phase count.
func NewCoordinator(
	log *util.Logger,
	clock util.Clock,
	meter api.Meter,
	balancer *Balancer,
	allocator *Allocator,
	dispatch chargerDispatcher,
	bus *push.Bus,
	metrics MetricsRecorder,
	livePhases []api.Phase,
	hysteresisMinutes int,
) *Coordinator {
	return &Coordinator{
		log:               log,
		clock:             clock,
		meter:             meter,
		balancer:          balancer,
		allocator:         allocator,
		dispatch:          dispatch,
		bus:               bus,
		metrics:           metrics,
		livePhases:        livePhases,
		hysteresisMinutes: hysteresisMinutes,
		chargers:          make(map[api.ChargerID]*chargerEntry),
	}
}

// AddCharger registers charger with both the Allocator and the
// dispatch worker pool.
func (c *Coordinator) AddCharger(charger api.Charger) {
	c.allocator.AddCharger(charger)
	c.dispatch.Register(charger)
	c.chargers[charger.ID()] = &chargerEntry{charger: charger}
}

// RemoveCharger tears a charger out of both the Allocator and the
// dispatch worker pool.
func (c *Coordinator) RemoveCharger(id api.ChargerID) {
	c.allocator.RemoveCharger(id)
	c.dispatch.Unregister(id)
	delete(c.chargers, id)
}

// LastCheckTimestamp returns the epoch-seconds of the most recent
// tick, for sensor/UI exposure.
func (c *Coordinator) LastCheckTimestamp() float64 {
	return c.lastCheckTimestamp
}

// Tick executes one full control-loop cycle at wall-clock time now.
func (c *Coordinator) Tick(now time.Time) {
	nowTs := float64(now.Unix())
	c.lastCheckTimestamp = nowTs

	c.drainDispatchResults()

	available, ok := c.sampleMeter()
	c.refreshSensors()

	if !ok {
		if c.log != nil {
			c.log.WARN.Println("available current unknown, cannot adjust limits this tick")
		}
		return
	}

	if !c.allocator.ShouldMonitor() {
		return
	}

	deltas := c.balancer.ComputeAvailability(available, nowTs)
	if c.metrics != nil {
		c.metrics.ObserveAvailability(deltas)
	}

	proposals := c.allocator.UpdateAllocation(deltas)

	for id, proposal := range proposals {
		c.applyProposal(id, proposal, nowTs)
	}
}

// sampleMeter reads every live phase and computes the Balancer's
// input: min(fuse[p], floor(fuse[p] - active)). fuse[p] comes from
// the Balancer's own configured limits (the effective, possibly
// overridden fuse size), never a separate copy, so an operator's
// fuse_size_override always reaches this computation. A single
// missing phase aborts the whole sample.
func (c *Coordinator) sampleMeter() (api.PerPhaseAmps, bool) {
	fuseLimits := c.balancer.Limits()
	available := make(api.PerPhaseAmps, len(c.livePhases))

	for _, p := range c.livePhases {
		var active int
		err := retry.Do(func() error {
			v, ok := c.meter.GetActivePhaseCurrent(p)
			if !ok {
				return api.ErrMeterUnavailable
			}
			active = v
			return nil
		}, meterRetryOptions...)

		if err != nil {
			if c.log != nil {
				c.log.ERROR.Printf("available current for phase %s is unknown, cannot proceed with balancing cycle: %v", p, err)
			}
			return nil, false
		}
		fuse := float64(fuseLimits[p])
		available[p] = int(math.Min(fuse, math.Floor(fuse-float64(active))))
	}

	return available, true
}

// refreshSensors is a hook for UI/sensor consumers; the Coordinator
// itself carries no sensor registry, but the method exists so callers
// matching spec.md §4.6 step 3 ("refresh derived sensors
// unconditionally") have a stable extension point.
func (c *Coordinator) refreshSensors() {}

func (c *Coordinator) applyProposal(id api.ChargerID, proposal api.PerPhaseAmps, nowTs float64) {
	entry, ok := c.chargers[id]
	if !ok {
		return
	}

	currentLimit, err := entry.charger.GetCurrentLimit()
	if err != nil || currentLimit == nil {
		if c.log != nil {
			c.log.WARN.Printf("charger %s: current limit unknown, cannot adjust", id)
		}
		return
	}

	if !c.mayApply(entry, proposal, currentLimit, nowTs) {
		return
	}

	isDecrease := false
	for p, v := range proposal {
		if v < currentLimit[p] {
			isDecrease = true
			break
		}
	}

	if isDecrease {
		t := nowTs
		entry.lastDecreaseTime = &t
	}
	t := nowTs
	entry.lastUpdateTime = &t

	c.dispatch.Dispatch(entry.charger, proposal)
	c.bus.PublishCoordinatorEvent(string(id), proposal)
	c.allocator.UpdateAppliedCurrent(id, proposal, nowTs)

	if c.metrics != nil {
		c.metrics.ObserveSetpoint(id, proposal)
	}
}

// mayApply implements the gating policy of spec.md §4.6.
func (c *Coordinator) mayApply(entry *chargerEntry, proposal, current api.PerPhaseAmps, nowTs float64) bool {
	for p, v := range proposal {
		if v < current[p] {
			return true // safety: decreases bypass all timing
		}
	}

	if entry.lastUpdateTime == nil {
		return true // never updated before
	}

	if nowTs-*entry.lastUpdateTime <= MinChargerUpdateDelay {
		return false
	}

	lastDecrease := *entry.lastUpdateTime
	if entry.lastDecreaseTime != nil {
		lastDecrease = *entry.lastDecreaseTime
	}

	isIncrease := false
	for p, v := range proposal {
		if v > current[p] {
			isIncrease = true
			break
		}
	}

	if isIncrease && nowTs-lastDecrease > float64(c.hysteresisMinutes*60) {
		return true
	}

	return false
}

// drainDispatchResults consumes outstanding results from the previous
// tick's asynchronous writes, purely for logging and metrics: control
// state was already advanced optimistically in applyProposal per
// spec.md §5.
func (c *Coordinator) drainDispatchResults() {
	for {
		select {
		case res := <-c.dispatch.Results():
			if res.Err != nil {
				if c.log != nil {
					c.log.ERROR.Printf("charger %s: dispatch failure: %v [%s]", res.ID, res.Err, res.CorrelationID)
				}
				if c.metrics != nil {
					c.metrics.ObserveDispatch(res.ID, "failure")
				}
				continue
			}
			if c.log != nil {
				c.log.DEBUG.Printf("charger %s: dispatched %v [%s]", res.ID, res.Limits, res.CorrelationID)
			}
			if c.metrics != nil {
				c.metrics.ObserveDispatch(res.ID, "success")
			}
		default:
			return
		}
	}
}

// Run drives Tick on a fixed interval until ctx-like stop is
// requested via the returned stop function. It is the production
// entrypoint; tests call Tick directly for determinism.
func (c *Coordinator) Run(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = ExecutionCycleDelay
	}

	done := make(chan struct{})
	go func() {
		ticker := c.clock.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				c.Tick(t)
			}
		}
	}()

	return func() { close(done) }
}
