// Package meters holds one adapter per supported grid meter, each
// implementing api.Meter, plus a Factory that picks an implementation
// by device kind.
package meters

import (
	"fmt"
	"time"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// AdapterConfig is the union of connection parameters every meter
// adapter might need.
type AdapterConfig struct {
	ID string

	// DSMR (Modbus RTU over serial).
	SerialDevice string
	BaudRate     int
	SlaveID      byte

	// HomeWizard (local HTTP).
	Host string

	// Tibber (cloud GraphQL).
	APIBaseURL string
	APIToken   string
	HomeID     string

	// Zigbee2MQTTAmsleser (pub/sub).
	PubSub   PubSub
	DeviceID string

	PollInterval time.Duration
}

// PubSub is the minimal telemetry subscription surface a meter adapter
// needs when its transport is a message broker. Mirrors
// chargers.PubSub; kept as a separate type so this package has no
// dependency on chargers.
type PubSub interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// Factory constructs api.Meter adapters by vendor kind.
type Factory struct {
	log *util.Logger
}

// NewFactory creates a Factory that logs adapter construction with log.
func NewFactory(log *util.Logger) *Factory {
	return &Factory{log: log}
}

// New builds the adapter for kind using cfg.
func (f *Factory) New(kind api.MeterKind, cfg AdapterConfig) (api.Meter, error) {
	switch kind {
	case api.MeterDSMR:
		return NewDSMR(f.log, cfg)
	case api.MeterHomeWizard:
		return NewHomeWizard(f.log, cfg), nil
	case api.MeterTibber:
		return NewTibber(f.log, cfg), nil
	case api.MeterZigbee2MQTTAmsleser:
		return NewZigbee2MQTTAmsleser(f.log, cfg)
	default:
		return nil, fmt.Errorf("meters: unsupported meter kind %q", kind)
	}
}
