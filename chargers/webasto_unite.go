package chargers

import (
	"encoding/binary"
	"time"

	"github.com/grid-x/modbus"
	"github.com/pkg/errors"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// Webasto Unite Modbus holding register addresses, grounded on
// WebastoUniteEntityMap (charge_point_state, charging_current_limit,
// evse_max_current) of the source integration's register mapping.
const (
	webastoRegChargePointState     = 0x0302
	webastoRegChargingCurrentLimit = 0x0400
	webastoRegMaxCurrent           = 0x0401
)

// Webasto Unite charge point states, per OCPP charge point state
// values (WebastoUniteStatusMap).
const (
	webastoStatusAvailable     = 0
	webastoStatusPreparing     = 1
	webastoStatusCharging      = 2
	webastoStatusSuspendedEVSE = 3
	webastoStatusSuspendedEV   = 4
	webastoStatusFinishing     = 5
	webastoStatusReserved      = 6
	webastoStatusUnavailable   = 7
	webastoStatusFaulted       = 8
)

// WebastoUnite is the Modbus TCP adapter for Webasto Unite chargers
// (CHARGER_DOMAIN_WEBASTO_UNITE). It applies one current limit across
// all phases (SyncedPhaseLimits), matching the original integration's
// has_synced_phase_limits().
// WebastoUnite's phase mode is fixed by the physical installation:
// set_phase_mode in the source integration validates the requested
// mode but never changes hardware behaviour. phaseModeSupport
// reproduces exactly that.
type WebastoUnite struct {
	phaseModeSupport

	log     *util.Logger
	id      api.ChargerID
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewWebastoUnite dials cfg.ModbusAddr and wraps it as an api.Charger.
func NewWebastoUnite(log *util.Logger, cfg AdapterConfig) (*WebastoUnite, error) {
	handler := modbus.NewTCPClientHandler(cfg.ModbusAddr)
	handler.Timeout = 5 * time.Second
	handler.SlaveID = cfg.SlaveID
	if handler.SlaveID == 0 {
		handler.SlaveID = 1
	}

	if err := handler.Connect(); err != nil {
		return nil, errors.Wrapf(err, "webasto unite %s: connect", cfg.ID)
	}

	return &WebastoUnite{
		phaseModeSupport: phaseModeSupport{mode: api.PhaseModeMulti},
		log:              log,
		id:               cfg.ID,
		handler:          handler,
		client:           modbus.NewClient(handler),
	}, nil
}

func (w *WebastoUnite) Close() error {
	return w.handler.Close()
}

func (w *WebastoUnite) ID() api.ChargerID          { return w.id }
func (w *WebastoUnite) Kind() api.ChargerKind      { return api.ChargerWebastoUnite }
func (w *WebastoUnite) SyncedPhaseLimits() bool    { return true }
func (w *WebastoUnite) CurrentChangeSettleTime() int { return 5 }

func (w *WebastoUnite) readRegister(addr uint16) (int, error) {
	bytes, err := w.client.ReadHoldingRegisters(addr, 1)
	if err != nil {
		return 0, errors.Wrapf(err, "webasto unite %s: read register 0x%04x", w.id, addr)
	}
	return int(binary.BigEndian.Uint16(bytes)), nil
}

func (w *WebastoUnite) writeRegister(addr uint16, value int) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(value))
	_, err := w.client.WriteMultipleRegisters(addr, 1, buf)
	if err != nil {
		return errors.Wrapf(err, "webasto unite %s: write register 0x%04x", w.id, addr)
	}
	return nil
}

func (w *WebastoUnite) GetCurrentLimit() (api.PerPhaseAmps, error) {
	v, err := w.readRegister(webastoRegChargingCurrentLimit)
	if err != nil {
		return nil, err
	}
	return api.Flatten(api.Phases3p[:], v), nil
}

func (w *WebastoUnite) GetMaxCurrentLimit() (api.PerPhaseAmps, error) {
	v, err := w.readRegister(webastoRegMaxCurrent)
	if err != nil {
		return nil, err
	}
	return api.Flatten(api.Phases3p[:], v), nil
}

func (w *WebastoUnite) status() (int, error) {
	return w.readRegister(webastoRegChargePointState)
}

func (w *WebastoUnite) CanCharge() bool {
	s, err := w.status()
	if err != nil {
		return false
	}
	switch s {
	case webastoStatusPreparing, webastoStatusCharging, webastoStatusSuspendedEV:
		return true
	default:
		return false
	}
}

func (w *WebastoUnite) IsCharging() bool {
	s, err := w.status()
	return err == nil && s == webastoStatusCharging
}

func (w *WebastoUnite) CarConnected() bool {
	s, err := w.status()
	if err != nil {
		return false
	}
	switch s {
	case webastoStatusPreparing, webastoStatusCharging, webastoStatusSuspendedEVSE, webastoStatusSuspendedEV, webastoStatusFinishing:
		return true
	default:
		return false
	}
}

// SetCurrentLimit writes the lowest of the requested per-phase values,
// since Webasto Unite only supports one limit shared by all phases.
func (w *WebastoUnite) SetCurrentLimit(limit api.PerPhaseAmps) error {
	value := limit.Min(api.Phases3p[:])
	return w.writeRegister(webastoRegChargingCurrentLimit, value)
}
