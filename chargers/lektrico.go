package chargers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// lektricoInfo mirrors the subset of Lektrico's /info REST response
// this adapter reads.
type lektricoInfo struct {
	State             string  `json:"state"`
	DynamicCurrent    float64 `json:"dynamic_current"`
	InstallationCurrent float64 `json:"installation_current"`
	HasCable          bool    `json:"has_cable"`
}

type lektricoCurrentLimitRequest struct {
	DynamicCurrent float64 `json:"dynamic_current"`
}

// Lektrico charger states, matching the charger's own state machine.
const (
	lektricoStateAvailable = "available"
	lektricoStateConnected = "connected"
	lektricoStateCharging  = "charging"
	lektricoStatePaused    = "paused"
	lektricoStateError     = "error"
)

// Lektrico is the local-REST adapter for Lektrico chargers
// (CHARGER_DOMAIN_LEKTRICO), a plain LAN HTTP API with no cloud
// dependency, so it is not wrapped by a circuit breaker.
type Lektrico struct {
	phaseModeSupport

	log     *util.Logger
	id      api.ChargerID
	http    *http.Client
	baseURL string
}

// NewLektrico builds a Lektrico adapter targeting cfg.Host.
func NewLektrico(log *util.Logger, cfg AdapterConfig) *Lektrico {
	port := cfg.Port
	if port == 0 {
		port = 80
	}
	return &Lektrico{
		phaseModeSupport: phaseModeSupport{mode: api.PhaseModeMulti},
		log:              log,
		id:               cfg.ID,
		http:             &http.Client{Timeout: 5 * time.Second},
		baseURL:          fmt.Sprintf("http://%s:%d", cfg.Host, port),
	}
}

func (l *Lektrico) ID() api.ChargerID          { return l.id }
func (l *Lektrico) Kind() api.ChargerKind      { return api.ChargerLektrico }
func (l *Lektrico) SyncedPhaseLimits() bool    { return true }
func (l *Lektrico) CurrentChangeSettleTime() int { return 3 }

func (l *Lektrico) info() (*lektricoInfo, error) {
	resp, err := l.http.Get(l.baseURL + "/info")
	if err != nil {
		return nil, errors.Wrap(err, "lektrico: fetch info")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("lektrico: unexpected status %d", resp.StatusCode)
	}

	var out lektricoInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "lektrico: decode info")
	}
	return &out, nil
}

func (l *Lektrico) GetCurrentLimit() (api.PerPhaseAmps, error) {
	info, err := l.info()
	if err != nil {
		return nil, err
	}
	return api.Flatten(api.Phases3p[:], int(info.DynamicCurrent)), nil
}

func (l *Lektrico) GetMaxCurrentLimit() (api.PerPhaseAmps, error) {
	info, err := l.info()
	if err != nil {
		return nil, err
	}
	return api.Flatten(api.Phases3p[:], int(info.InstallationCurrent)), nil
}

func (l *Lektrico) CanCharge() bool {
	info, err := l.info()
	if err != nil {
		return false
	}
	return info.State == lektricoStateConnected || info.State == lektricoStateCharging || info.State == lektricoStatePaused
}

func (l *Lektrico) IsCharging() bool {
	info, err := l.info()
	return err == nil && info.State == lektricoStateCharging
}

func (l *Lektrico) CarConnected() bool {
	info, err := l.info()
	if err != nil {
		return false
	}
	return info.HasCable
}

func (l *Lektrico) SetCurrentLimit(limit api.PerPhaseAmps) error {
	value := limit.Min(api.Phases3p[:])
	body, err := json.Marshal(lektricoCurrentLimitRequest{DynamicCurrent: float64(value)})
	if err != nil {
		return errors.Wrap(err, "lektrico: encode request")
	}

	req, err := http.NewRequest(http.MethodPut, l.baseURL+"/dynamic_current", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "lektrico: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "lektrico: perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("lektrico: unexpected status %d setting current limit", resp.StatusCode)
	}
	return nil
}
