// Package api defines the capability surfaces shared by the balancing
// core and its charger/meter adapters.
package api

import "fmt"

// Phase identifies one conductor of the premises feed.
type Phase int

const (
	L1 Phase = iota
	L2
	L3
)

func (p Phase) String() string {
	switch p {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Phases3p lists all phases in canonical order. A 1-phase deployment
// uses Phases3p[:1].
var Phases3p = [3]Phase{L1, L2, L3}

// PerPhaseAmps maps a live phase to a signed ampere value. Keys
// present always equal the deployment's live phases.
type PerPhaseAmps map[Phase]int

// Clone returns a shallow copy.
func (p PerPhaseAmps) Clone() PerPhaseAmps {
	if p == nil {
		return nil
	}
	out := make(PerPhaseAmps, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal reports whether two maps hold identical phase/value pairs.
func (p PerPhaseAmps) Equal(other PerPhaseAmps) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Min returns the smallest value across the given phases. Phases
// missing from p are skipped; if none is present, Min returns 0.
func (p PerPhaseAmps) Min(phases []Phase) int {
	min := 0
	first := true
	for _, ph := range phases {
		v, ok := p[ph]
		if !ok {
			continue
		}
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}

// Flatten returns a copy where every phase in phases is set to value.
func Flatten(phases []Phase, value int) PerPhaseAmps {
	out := make(PerPhaseAmps, len(phases))
	for _, ph := range phases {
		out[ph] = value
	}
	return out
}

// ChargerID is the opaque stable identifier of a charger.
type ChargerID string

// OvercurrentMode selects the Balancer's tolerance strategy.
type OvercurrentMode int

const (
	Conservative OvercurrentMode = iota
	Optimised
)

func (m OvercurrentMode) String() string {
	switch m {
	case Conservative:
		return "conservative"
	case Optimised:
		return "optimised"
	default:
		return "unknown"
	}
}

// ParseOvercurrentMode validates a configured mode string.
func ParseOvercurrentMode(s string) (OvercurrentMode, error) {
	switch s {
	case "conservative", "":
		return Conservative, nil
	case "optimised", "optimized":
		return Optimised, nil
	default:
		return Conservative, fmt.Errorf("%w: %q", ErrInvalidPhaseMode, s)
	}
}

// ChargerKind enumerates the vendor adapter implementations the
// charger factory can construct.
type ChargerKind int

const (
	ChargerUnknown ChargerKind = iota
	ChargerEasee
	ChargerZaptec
	ChargerKeba
	ChargerLektrico
	ChargerWebastoUnite
	ChargerAmina
)

func (k ChargerKind) String() string {
	switch k {
	case ChargerEasee:
		return "easee"
	case ChargerZaptec:
		return "zaptec"
	case ChargerKeba:
		return "keba"
	case ChargerLektrico:
		return "lektrico"
	case ChargerWebastoUnite:
		return "webasto_unite_modbus"
	case ChargerAmina:
		return "amina"
	default:
		return "unknown"
	}
}

// ParseChargerKind maps a config-file device kind string (matching
// const.py's CHARGER_DOMAIN_* values) onto its ChargerKind.
func ParseChargerKind(s string) (ChargerKind, error) {
	switch s {
	case "easee":
		return ChargerEasee, nil
	case "zaptec":
		return ChargerZaptec, nil
	case "keba":
		return ChargerKeba, nil
	case "lektrico":
		return ChargerLektrico, nil
	case "webasto_unite_modbus":
		return ChargerWebastoUnite, nil
	case "amina":
		return ChargerAmina, nil
	default:
		return ChargerUnknown, fmt.Errorf("api: unrecognised charger kind %q", s)
	}
}

// MeterKind enumerates the meter adapter implementations the meter
// factory can construct.
type MeterKind int

const (
	MeterUnknown MeterKind = iota
	MeterDSMR
	MeterHomeWizard
	MeterTibber
	MeterZigbee2MQTTAmsleser
)

func (k MeterKind) String() string {
	switch k {
	case MeterDSMR:
		return "dsmr"
	case MeterHomeWizard:
		return "homewizard"
	case MeterTibber:
		return "tibber"
	case MeterZigbee2MQTTAmsleser:
		return "zigbee2mqtt"
	default:
		return "unknown"
	}
}

// PhaseMode describes how a 1p/3p-switchable charger currently applies
// its limit.
type PhaseMode int

const (
	PhaseModeSingle PhaseMode = iota
	PhaseModeMulti
)

// Charger is the capability surface exposed by every vendor adapter.
// All methods must be safe to call repeatedly within a single tick.
type Charger interface {
	ID() ChargerID
	Kind() ChargerKind

	// SyncedPhaseLimits is true when the hardware applies one limit to
	// all connected phases simultaneously.
	SyncedPhaseLimits() bool

	// CurrentChangeSettleTime is how long after a setpoint write the
	// reported limit may still lag reality.
	CurrentChangeSettleTime() int

	GetCurrentLimit() (PerPhaseAmps, error)
	GetMaxCurrentLimit() (PerPhaseAmps, error)

	CanCharge() bool
	IsCharging() bool
	CarConnected() bool

	// SetCurrentLimit dispatches a new setpoint. It is asynchronous:
	// implementations should return once the write has been
	// dispatched to the device, not once it has taken effect. Values
	// above the device max must be clamped by the adapter.
	SetCurrentLimit(limit PerPhaseAmps) error

	// PhaseMode reports whether the charger currently applies its
	// limit across a single phase or all three.
	PhaseMode() PhaseMode

	// SetPhaseMode requests a 1p/3p switch. Hardware that has no
	// dynamic switching capability (phase count fixed by
	// installation) validates mode and returns nil without effect.
	SetPhaseMode(mode PhaseMode) error
}

// Meter exposes per-phase current sampling.
type Meter interface {
	// GetActivePhaseCurrent returns the net-import amperes on phase p,
	// or (0, false) if the sensor is currently unavailable.
	GetActivePhaseCurrent(p Phase) (int, bool)
}
