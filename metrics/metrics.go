// Package metrics mirrors the control loop's event stream as
// Prometheus gauges/counters. Metrics are a passive observer: nothing
// in the control loop reads them back, so a stalled scrape can never
// gate a tick.
package metrics

import (
	"github.com/matkvaid/evse-load-balancer/api"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics sink the Coordinator pushes into. A nil
// *Recorder is valid and simply drops observations.
type Recorder struct {
	available      *prometheus.GaugeVec
	setpoint       *prometheus.GaugeVec
	overcurrent    *prometheus.GaugeVec
	dispatchTotal  *prometheus.CounterVec
}

// NewRecorder registers the control loop's metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evse_phase_available_amps",
			Help: "Signed headroom amps computed by the Balancer, per phase.",
		}, []string{"phase"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evse_charger_setpoint_amps",
			Help: "Last dispatched per-phase current limit, per charger.",
		}, []string{"charger", "phase"}),
		overcurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evse_balancer_overcurrent_excess_amps",
			Help: "Integrated excess current within the tolerance window, per phase.",
		}, []string{"phase"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evse_coordinator_dispatch_total",
			Help: "Count of charger setpoint dispatches, labeled by outcome.",
		}, []string{"charger", "outcome"}),
	}

	reg.MustRegister(r.available, r.setpoint, r.overcurrent, r.dispatchTotal)
	return r
}

// ObserveAvailability records the Balancer's per-phase delta.
func (r *Recorder) ObserveAvailability(deltas api.PerPhaseAmps) {
	if r == nil {
		return
	}
	for phase, v := range deltas {
		r.available.WithLabelValues(phase.String()).Set(float64(v))
	}
}

// ObserveSetpoint records a dispatched per-charger setpoint.
func (r *Recorder) ObserveSetpoint(id api.ChargerID, limits api.PerPhaseAmps) {
	if r == nil {
		return
	}
	for phase, v := range limits {
		r.setpoint.WithLabelValues(string(id), phase.String()).Set(float64(v))
	}
}

// ObserveOvercurrentExcess records the Balancer's integrated excess
// for a phase.
func (r *Recorder) ObserveOvercurrentExcess(phase api.Phase, excess float64) {
	if r == nil {
		return
	}
	r.overcurrent.WithLabelValues(phase.String()).Set(excess)
}

// ObserveDispatch increments the dispatch counter for id with the
// given outcome ("success" or "failure").
func (r *Recorder) ObserveDispatch(id api.ChargerID, outcome string) {
	if r == nil {
		return
	}
	r.dispatchTotal.WithLabelValues(string(id), outcome).Inc()
}
