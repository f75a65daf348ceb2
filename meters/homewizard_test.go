package meters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matkvaid/evse-load-balancer/api"
)

func TestHomeWizardGetActivePhaseCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"active_power_l1_w": 2300,
			"active_power_l2_w": -460,
			"active_power_l3_w": 0,
			"active_voltage_l1_v": 230,
			"active_voltage_l2_v": 230,
			"active_voltage_l3_v": 230
		}`))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	h := NewHomeWizard(nil, AdapterConfig{Host: host})

	got, ok := h.GetActivePhaseCurrent(api.L1)
	if !ok || got != 10 {
		t.Fatalf("expected L1=10A, got %d (ok=%v)", got, ok)
	}

	got, ok = h.GetActivePhaseCurrent(api.L2)
	if !ok || got != -2 {
		t.Fatalf("expected L2=-2A, got %d (ok=%v)", got, ok)
	}

	got, ok = h.GetActivePhaseCurrent(api.L3)
	if !ok || got != 0 {
		t.Fatalf("expected L3=0A, got %d (ok=%v)", got, ok)
	}
}

func TestHomeWizardUnreachableReportsMissing(t *testing.T) {
	h := NewHomeWizard(nil, AdapterConfig{Host: "127.0.0.1:1"})

	_, ok := h.GetActivePhaseCurrent(api.L1)
	if ok {
		t.Fatal("expected unreachable meter to report unavailable")
	}
}
