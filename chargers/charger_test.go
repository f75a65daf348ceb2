package chargers

import (
	"testing"
	"time"

	"github.com/matkvaid/evse-load-balancer/api"
)

func TestAdapterConfigFromMap(t *testing.T) {
	other := map[string]interface{}{
		"id":          "wallbox-1",
		"host":        "192.168.1.50",
		"port":        80,
		"pollinterval": "5s",
	}

	cfg, err := AdapterConfigFromMap(other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID != "wallbox-1" {
		t.Fatalf("expected id wallbox-1, got %q", cfg.ID)
	}
	if cfg.Host != "192.168.1.50" {
		t.Fatalf("expected host 192.168.1.50, got %q", cfg.Host)
	}
	if cfg.Port != 80 {
		t.Fatalf("expected port 80, got %d", cfg.Port)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected poll interval 5s, got %v", cfg.PollInterval)
	}
}

func TestAdapterConfigFromMapRejectsWrongShape(t *testing.T) {
	if _, err := AdapterConfigFromMap("not-a-map"); err == nil {
		t.Fatal("expected an error decoding a non-map value")
	}
}

func TestPhaseModeSupportValidatesAndNoOps(t *testing.T) {
	p := &phaseModeSupport{mode: api.PhaseModeMulti}

	if p.PhaseMode() != api.PhaseModeMulti {
		t.Fatalf("expected initial mode multi, got %v", p.PhaseMode())
	}

	if err := p.SetPhaseMode(api.PhaseModeSingle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Matches webasto_unite_charger.py's set_phase_mode: the request is
	// validated but never applied, since phase count is fixed by the
	// physical installation.
	if p.PhaseMode() != api.PhaseModeMulti {
		t.Fatalf("expected mode to remain unchanged after a no-op set, got %v", p.PhaseMode())
	}

	if err := p.SetPhaseMode(api.PhaseMode(99)); err == nil {
		t.Fatal("expected an error for an invalid phase mode")
	}
}
