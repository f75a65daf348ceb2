// Package push carries notification events from the control loop out
// to UI channels and the device event log, mirroring evcc's push
// package but generalised to the coordinator event contract of §6.
package push

import (
	"github.com/matkvaid/evse-load-balancer/api"

	evbus "github.com/asaskevich/EventBus"
)

// Event is a lifecycle notification, e.g. a session edge.
type Event struct {
	Event     string
	ChargerID api.ChargerID
}

// CoordinatorEventName is the event bus topic every successful
// dispatch publishes to, named per spec.md §6:
// "<domain>_coordinator_event".
const CoordinatorEventName = "evse_load_balancer_coordinator_event"

// CoordinatorEvent is the payload published on CoordinatorEventName.
type CoordinatorEvent struct {
	DeviceID  string           `json:"device_id"`
	Action    string           `json:"action"`
	NewLimits api.PerPhaseAmps `json:"new_limits"`
}

const ActionNewChargerLimits = "new_charger_limits"

// Bus fans out lifecycle and dispatch events. It wraps asaskevich's
// EventBus, the teacher's own in-process pub/sub dependency.
type Bus struct {
	bus evbus.Bus
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe registers fn for topic. fn's signature must match what
// Publish passes for that topic.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Publish fires topic with args.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// PublishCoordinatorEvent publishes the §6 device-event-log entry for
// a successful dispatch.
func (b *Bus) PublishCoordinatorEvent(deviceID string, newLimits api.PerPhaseAmps) {
	b.bus.Publish(CoordinatorEventName, CoordinatorEvent{
		DeviceID:  deviceID,
		Action:    ActionNewChargerLimits,
		NewLimits: newLimits,
	})
}
