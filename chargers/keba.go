package chargers

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// Keba is the local UDP adapter for Keba wallboxes (CHARGER_DOMAIN_KEBA).
// Keba speaks a plain-text request/response protocol over UDP port
// 7090; no library in the example pack speaks it, so this talks stdlib
// net directly (see DESIGN.md).
type Keba struct {
	phaseModeSupport

	log  *util.Logger
	id   api.ChargerID
	addr *net.UDPAddr

	maxCurrentMilliamps int
}

// NewKeba builds a Keba adapter targeting cfg.Host on the wallbox's
// fixed UDP command port.
func NewKeba(log *util.Logger, cfg AdapterConfig) *Keba {
	port := cfg.Port
	if port == 0 {
		port = 7090
	}
	addr, _ := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, port))
	return &Keba{
		phaseModeSupport: phaseModeSupport{mode: api.PhaseModeMulti},
		log:              log,
		id:               cfg.ID,
		addr:             addr,
	}
}

func (k *Keba) ID() api.ChargerID          { return k.id }
func (k *Keba) Kind() api.ChargerKind      { return api.ChargerKeba }
func (k *Keba) SyncedPhaseLimits() bool    { return true } // Keba exposes one installation current
func (k *Keba) CurrentChangeSettleTime() int { return 2 }

// send writes cmd and reads the single-datagram reply. Keba replies to
// "report N" with a JSON object and to imperative commands ("curr
// 16000") with a bare status code.
func (k *Keba) send(cmd string) (string, error) {
	conn, err := net.DialUDP("udp", nil, k.addr)
	if err != nil {
		return "", fmt.Errorf("keba %s: dial: %w", k.id, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("keba %s: write: %w", k.id, err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("keba %s: read: %w", k.id, err)
	}
	return string(buf[:n]), nil
}

// report2 is the subset of "report 2" fields this adapter reads:
// State (charging state), Curr_user (current limit actually applied,
// 1/1000 A), Curr_HW (hardware max, 1/1000 A), Plug (plug state bits).
type report2 struct {
	State    int `json:"State"`
	CurrUser int `json:"Curr_user"`
	CurrHW   int `json:"Curr_HW"`
	Plug     int `json:"Plug"`
}

func (k *Keba) readReport2() (*report2, error) {
	reply, err := k.send("report 2")
	if err != nil {
		return nil, err
	}
	return parseReport2(reply)
}

// parseReport2 extracts the handful of integer fields this adapter
// needs out of Keba's flat JSON report, avoiding a full JSON struct
// dependency for a handful of keys.
func parseReport2(reply string) (*report2, error) {
	r := &report2{}
	fields := map[string]*int{
		`"State":`:    &r.State,
		`"Curr_user":`: &r.CurrUser,
		`"Curr_HW":`:   &r.CurrHW,
		`"Plug":`:      &r.Plug,
	}
	for key, dst := range fields {
		idx := strings.Index(reply, key)
		if idx < 0 {
			continue
		}
		rest := strings.TrimLeft(reply[idx+len(key):], " ")
		end := strings.IndexAny(rest, ",}")
		if end < 0 {
			end = len(rest)
		}
		v, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
		if err != nil {
			return nil, fmt.Errorf("keba: parse %s: %w", key, err)
		}
		*dst = v
	}
	return r, nil
}

// Keba plug-state bits (Plug field of report 2).
const kebaPlugConnectedLocked = 1 << 2

// Keba charging-state codes.
const (
	kebaStateStarting = 1
	kebaStateNotReady = 2
	kebaStateReady    = 3
	kebaStateCharging = 4
	kebaStateError    = 5
	kebaStateAuthRej  = 6
)

func (k *Keba) GetCurrentLimit() (api.PerPhaseAmps, error) {
	r, err := k.readReport2()
	if err != nil {
		return nil, err
	}
	return api.Flatten(api.Phases3p[:], r.CurrUser/1000), nil
}

func (k *Keba) GetMaxCurrentLimit() (api.PerPhaseAmps, error) {
	r, err := k.readReport2()
	if err != nil {
		return nil, err
	}
	if k.maxCurrentMilliamps == 0 {
		k.maxCurrentMilliamps = r.CurrHW
	}
	return api.Flatten(api.Phases3p[:], k.maxCurrentMilliamps/1000), nil
}

func (k *Keba) CanCharge() bool {
	r, err := k.readReport2()
	if err != nil {
		return false
	}
	return r.State == kebaStateReady || r.State == kebaStateCharging
}

func (k *Keba) IsCharging() bool {
	r, err := k.readReport2()
	return err == nil && r.State == kebaStateCharging
}

func (k *Keba) CarConnected() bool {
	r, err := k.readReport2()
	if err != nil {
		return false
	}
	return r.Plug&kebaPlugConnectedLocked != 0
}

func (k *Keba) SetCurrentLimit(limit api.PerPhaseAmps) error {
	milliamps := limit.Min(api.Phases3p[:]) * 1000
	_, err := k.send(fmt.Sprintf("curr %d", milliamps))
	return err
}
