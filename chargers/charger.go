// Package chargers holds one adapter per supported charger vendor,
// each implementing api.Charger, plus a Factory that picks an
// implementation by device kind.
package chargers

import (
	"fmt"
	"time"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// AdapterConfigFromMap decodes a device's free-form config-file section
// (the "other" block viper leaves un-typed per entry under the chargers
// list) into an AdapterConfig, the way evcc's util.DecodeOther
// populates per-charger config from the generic YAML blob.
func AdapterConfigFromMap(other interface{}) (AdapterConfig, error) {
	var cfg AdapterConfig
	if err := util.DecodeOther(other, &cfg); err != nil {
		return AdapterConfig{}, fmt.Errorf("chargers: decode adapter config: %w", err)
	}
	return cfg, nil
}

// AdapterConfig is the union of connection parameters every adapter
// might need. Only the fields a given kind actually reads are
// required; the factory does not validate cross-kind fields.
type AdapterConfig struct {
	ID api.ChargerID

	// Cloud adapters (Easee, Zaptec).
	APIBaseURL string
	APIToken   string
	DeviceID   string

	// Local-LAN adapters (Keba, Lektrico).
	Host string
	Port int

	// Modbus adapters (Webasto Unite).
	ModbusAddr string
	SlaveID    byte

	// Pub/sub adapters (Amina).
	PubSub PubSub

	PollInterval time.Duration
}

// phaseModeSupport is embedded by every adapter to implement the
// PhaseMode/SetPhaseMode pair of api.Charger. None of the vendors
// wired in this package support switching live phase mode in
// software: phase count is fixed by how the hardware was installed.
// This mirrors webasto_unite_charger.py's set_phase_mode, which
// validates the requested mode but documents the write as having no
// hardware effect.
type phaseModeSupport struct {
	mode api.PhaseMode
}

func (p *phaseModeSupport) PhaseMode() api.PhaseMode { return p.mode }

func (p *phaseModeSupport) SetPhaseMode(mode api.PhaseMode) error {
	if mode != api.PhaseModeSingle && mode != api.PhaseModeMulti {
		return fmt.Errorf("chargers: invalid phase mode %v", mode)
	}
	return nil
}

// PubSub is the minimal command/telemetry channel an adapter needs
// when its vendor transport is a message broker rather than a
// request/response protocol. No MQTT client library appears anywhere
// in the example pack this module was built from, so the transport is
// expressed as this small injected interface instead of a concrete
// broker dependency (see DESIGN.md).
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
}

// Factory constructs api.Charger adapters by vendor kind.
type Factory struct {
	log *util.Logger
}

// NewFactory creates a Factory that logs adapter construction with log.
func NewFactory(log *util.Logger) *Factory {
	return &Factory{log: log}
}

// New builds the adapter for kind using cfg. ChargerUnknown and any
// unrecognised kind are rejected.
func (f *Factory) New(kind api.ChargerKind, cfg AdapterConfig) (api.Charger, error) {
	switch kind {
	case api.ChargerEasee:
		return NewEasee(f.log, cfg), nil
	case api.ChargerZaptec:
		return NewZaptec(f.log, cfg), nil
	case api.ChargerKeba:
		return NewKeba(f.log, cfg), nil
	case api.ChargerLektrico:
		return NewLektrico(f.log, cfg), nil
	case api.ChargerWebastoUnite:
		return NewWebastoUnite(f.log, cfg)
	case api.ChargerAmina:
		return NewAmina(f.log, cfg)
	default:
		return nil, fmt.Errorf("chargers: unsupported charger kind %q", kind)
	}
}
