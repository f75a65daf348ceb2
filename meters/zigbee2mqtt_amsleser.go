package meters

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

const z2mAmsleserTopic = "zigbee2mqtt/%s"

// amsleserState mirrors the subset of the amsleser.no device's
// Zigbee2MQTT state payload this adapter reads, per
// SUPPORTED_METER_DEVICES's (mqtt, amsleser.no) row.
type amsleserState struct {
	CurrentL1 float64 `json:"current_l1"`
	CurrentL2 float64 `json:"current_l2"`
	CurrentL3 float64 `json:"current_l3"`
}

// Zigbee2MQTTAmsleser is the pub/sub-backed adapter for amsleser.no
// current meters bridged through Zigbee2MQTT. No MQTT client library
// appears in the example pack, so transport is the injected PubSub
// interface (see DESIGN.md).
type Zigbee2MQTTAmsleser struct {
	log *util.Logger

	mu    sync.RWMutex
	state amsleserState
	fresh bool
}

// NewZigbee2MQTTAmsleser subscribes to cfg.PubSub for cfg.DeviceID's
// Zigbee2MQTT state topic.
func NewZigbee2MQTTAmsleser(log *util.Logger, cfg AdapterConfig) (*Zigbee2MQTTAmsleser, error) {
	if cfg.PubSub == nil {
		return nil, errors.New("zigbee2mqtt amsleser: no pub/sub transport configured")
	}

	m := &Zigbee2MQTTAmsleser{log: log}
	topic := fmt.Sprintf(z2mAmsleserTopic, cfg.DeviceID)

	err := cfg.PubSub.Subscribe(topic, func(payload []byte) {
		var s amsleserState
		if err := json.Unmarshal(payload, &s); err != nil {
			if log != nil {
				log.WARN.Printf("zigbee2mqtt amsleser: malformed state payload: %v", err)
			}
			return
		}
		m.mu.Lock()
		m.state = s
		m.fresh = true
		m.mu.Unlock()
	})
	if err != nil {
		return nil, errors.Wrap(err, "zigbee2mqtt amsleser: subscribe")
	}
	return m, nil
}

func (m *Zigbee2MQTTAmsleser) GetActivePhaseCurrent(p api.Phase) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.fresh {
		return 0, false
	}
	switch p {
	case api.L1:
		return int(m.state.CurrentL1), true
	case api.L2:
		return int(m.state.CurrentL2), true
	case api.L3:
		return int(m.state.CurrentL3), true
	default:
		return 0, false
	}
}
