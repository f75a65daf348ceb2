package meters

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// homeWizardData mirrors the subset of HomeWizard's local P1 meter
// /api/v1/data response this adapter reads: signed active power per
// phase, in Watts.
type homeWizardData struct {
	ActivePowerL1W float64 `json:"active_power_l1_w"`
	ActivePowerL2W float64 `json:"active_power_l2_w"`
	ActivePowerL3W float64 `json:"active_power_l3_w"`
	VoltageL1V     float64 `json:"active_voltage_l1_v"`
	VoltageL2V     float64 `json:"active_voltage_l2_v"`
	VoltageL3V     float64 `json:"active_voltage_l3_v"`
}

// HomeWizard is the local-HTTP polling adapter for HomeWizard P1
// meters (METER_DOMAIN_HOMEWIZARD).
type HomeWizard struct {
	log     *util.Logger
	http    *http.Client
	baseURL string
}

// NewHomeWizard builds a HomeWizard adapter targeting cfg.Host.
func NewHomeWizard(log *util.Logger, cfg AdapterConfig) *HomeWizard {
	return &HomeWizard{
		log:     log,
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: fmt.Sprintf("http://%s/api/v1", cfg.Host),
	}
}

func (h *HomeWizard) fetch() (*homeWizardData, error) {
	resp, err := h.http.Get(h.baseURL + "/data")
	if err != nil {
		return nil, errors.Wrap(err, "homewizard: fetch data")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("homewizard: unexpected status %d", resp.StatusCode)
	}

	var out homeWizardData
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "homewizard: decode data")
	}
	return &out, nil
}

func (h *HomeWizard) GetActivePhaseCurrent(p api.Phase) (int, bool) {
	data, err := h.fetch()
	if err != nil {
		if h.log != nil {
			h.log.WARN.Printf("homewizard: phase %s read failed: %v", p, err)
		}
		return 0, false
	}

	var power, voltage float64
	switch p {
	case api.L1:
		power, voltage = data.ActivePowerL1W, data.VoltageL1V
	case api.L2:
		power, voltage = data.ActivePowerL2W, data.VoltageL2V
	case api.L3:
		power, voltage = data.ActivePowerL3W, data.VoltageL3V
	default:
		return 0, false
	}

	if voltage == 0 {
		return 0, false
	}
	return int(math.Floor(power / voltage)), true
}
