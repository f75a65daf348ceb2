package core

import (
	"sync"

	"github.com/google/uuid"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// chargerDispatcher is the Coordinator's view of a Dispatcher, so
// tests can substitute a synchronous fake without starting real
// goroutines.
type chargerDispatcher interface {
	Register(charger api.Charger)
	Unregister(id api.ChargerID)
	Dispatch(charger api.Charger, limits api.PerPhaseAmps)
	Results() <-chan DispatchResult
}

// dispatchCommand is one setpoint write queued for a charger's worker.
type dispatchCommand struct {
	id            api.ChargerID
	correlationID uuid.UUID
	limits        api.PerPhaseAmps
	charger       api.Charger
}

// DispatchResult reports the outcome of an asynchronous adapter write,
// consumed by the Coordinator at the start of the following tick (per
// spec.md §5: adapter writes are fire-and-forget and never
// back-pressure the control loop). CorrelationID lets a log line for
// the queued write be matched up with the log line for its result,
// since the two can be seconds apart and interleaved with other
// chargers' writes.
type DispatchResult struct {
	CorrelationID uuid.UUID
	ID            api.ChargerID
	Limits        api.PerPhaseAmps
	Err           error
}

// Dispatcher runs one worker goroutine per charger so that
// set-current-limit writes never delay a tick. Each charger's queue
// has capacity 1: a newer setpoint supersedes a stale, not-yet-picked-
// up one rather than queuing behind it.
type Dispatcher struct {
	log *util.Logger

	mu    sync.Mutex
	cmdCh map[api.ChargerID]chan dispatchCommand
	stop  map[api.ChargerID]chan struct{}

	results chan DispatchResult
}

// NewDispatcher creates a Dispatcher. resultBuffer sizes the result
// channel; a small positive number (e.g. 16) is enough since results
// are drained once per tick.
func NewDispatcher(log *util.Logger, resultBuffer int) *Dispatcher {
	return &Dispatcher{
		log:     log,
		cmdCh:   make(map[api.ChargerID]chan dispatchCommand),
		stop:    make(map[api.ChargerID]chan struct{}),
		results: make(chan DispatchResult, resultBuffer),
	}
}

// Register starts a dispatch worker for charger. Safe to call once
// per charger; a second call is a no-op.
func (d *Dispatcher) Register(charger api.Charger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := charger.ID()
	if _, ok := d.cmdCh[id]; ok {
		return
	}

	cmdCh := make(chan dispatchCommand, 1)
	stopCh := make(chan struct{})
	d.cmdCh[id] = cmdCh
	d.stop[id] = stopCh

	go d.run(cmdCh, stopCh)
}

// Unregister stops the worker for id, if any.
func (d *Dispatcher) Unregister(id api.ChargerID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stopCh, ok := d.stop[id]; ok {
		close(stopCh)
		delete(d.stop, id)
		delete(d.cmdCh, id)
	}
}

func (d *Dispatcher) run(cmdCh chan dispatchCommand, stopCh chan struct{}) {
	for {
		select {
		case cmd := <-cmdCh:
			if d.log != nil {
				d.log.DEBUG.Printf("charger %s: dispatching %v [%s]", cmd.id, cmd.limits, cmd.correlationID)
			}
			err := cmd.charger.SetCurrentLimit(cmd.limits)
			select {
			case d.results <- DispatchResult{CorrelationID: cmd.correlationID, ID: cmd.id, Limits: cmd.limits, Err: err}:
			default:
				if d.log != nil {
					d.log.WARN.Printf("charger %s: dispatch result dropped, result channel full [%s]", cmd.id, cmd.correlationID)
				}
			}
		case <-stopCh:
			return
		}
	}
}

// Dispatch queues limits for charger, replacing any not-yet-started
// pending command. Returns immediately.
func (d *Dispatcher) Dispatch(charger api.Charger, limits api.PerPhaseAmps) {
	d.mu.Lock()
	ch, ok := d.cmdCh[charger.ID()]
	d.mu.Unlock()

	if !ok {
		d.Register(charger)
		d.mu.Lock()
		ch = d.cmdCh[charger.ID()]
		d.mu.Unlock()
	}

	cmd := dispatchCommand{id: charger.ID(), correlationID: uuid.New(), limits: limits, charger: charger}

	select {
	case ch <- cmd:
		return
	default:
	}

	// Channel full: drop the stale pending command and replace it.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cmd:
	default:
	}
}

// Results exposes the channel the Coordinator drains at tick start.
func (d *Dispatcher) Results() <-chan DispatchResult {
	return d.results
}
