package api

import "errors"

// Error taxonomy per the control loop's error handling design. None of
// these are fatal: every site that can produce one degrades to safe
// inaction rather than propagating a crash.
var (
	// ErrMeterUnavailable is returned when a live phase's meter read
	// comes back unavailable.
	ErrMeterUnavailable = errors.New("meter: phase current unavailable")

	// ErrChargerLimitUnknown is returned when an adapter cannot report
	// its current limit.
	ErrChargerLimitUnknown = errors.New("charger: current limit unknown")

	// ErrChargerMaxUnknown is returned when an adapter cannot report
	// its maximum limit during a new-session reset.
	ErrChargerMaxUnknown = errors.New("charger: max current limit unknown")

	// ErrDispatchFailure wraps a failed adapter write.
	ErrDispatchFailure = errors.New("charger: dispatch failed")

	// ErrInvalidPhaseMode is returned for an unrecognised overcurrent
	// mode or phase count. This one is fatal to configuration loading.
	ErrInvalidPhaseMode = errors.New("config: invalid phase mode")
)
