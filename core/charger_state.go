package core

import (
	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// ChargerState is the per-charger bookkeeping owned by the Allocator,
// grounded on power_allocator.py's ChargerState.
type ChargerState struct {
	log     *util.Logger
	clock   util.Clock
	charger api.Charger

	RequestedCurrent      api.PerPhaseAmps
	LastCalculatedCurrent api.PerPhaseAmps
	LastAppliedCurrent    api.PerPhaseAmps
	LastUpdateTime        float64

	ManualOverrideDetected bool
	Initialized            bool

	activeSession bool
}

// NewChargerState wraps charger for allocation bookkeeping.
func NewChargerState(log *util.Logger, clock util.Clock, charger api.Charger) *ChargerState {
	return &ChargerState{
		log:     log,
		clock:   clock,
		charger: charger,
	}
}

// Initialize reads the adapter's current limit. Returns false (retry
// next tick) if the adapter cannot yet report one.
func (s *ChargerState) Initialize() bool {
	if s.Initialized {
		return true
	}

	limits, err := s.charger.GetCurrentLimit()
	if err != nil || limits == nil {
		if s.log != nil {
			s.log.WARN.Printf("charger %s: could not initialize, no current limits available", s.charger.ID())
		}
		return false
	}

	s.RequestedCurrent = limits.Clone()
	s.LastAppliedCurrent = limits.Clone()
	s.activeSession = s.charger.CanCharge()
	s.Initialized = true

	if s.log != nil {
		s.log.INFO.Printf("charger %s: initialized with limits %v", s.charger.ID(), limits)
	}
	return true
}

// GetCurrentLimit shields a just-written setpoint against reporting
// lag: within the adapter's settle time it returns what we last
// applied rather than re-reading potentially-stale hardware state.
func (s *ChargerState) GetCurrentLimit() api.PerPhaseAmps {
	now := float64(s.clock.Now().Unix())

	if now-s.LastUpdateTime < float64(s.charger.CurrentChangeSettleTime()) {
		return s.LastAppliedCurrent
	}

	limits, err := s.charger.GetCurrentLimit()
	if err != nil || limits == nil {
		return nil
	}
	return limits
}

// DetectManualOverride implements power_allocator.py's
// detect_manual_override: new-session reset and the dual-difference
// manual-change check.
func (s *ChargerState) DetectManualOverride() {
	currentSetting := s.GetCurrentLimit()
	if currentSetting == nil {
		return
	}

	isCharging := s.charger.CanCharge()

	switch {
	case isCharging && !s.activeSession:
		maxLimits, err := s.charger.GetMaxCurrentLimit()
		if err == nil && maxLimits != nil {
			s.RequestedCurrent = maxLimits.Clone()
			if s.log != nil {
				s.log.INFO.Printf("charger %s: new charging session detected, resetting requested current to max %v", s.charger.ID(), maxLimits)
			}
			s.activeSession = true
		}
		// ErrChargerMaxUnknown: defer the reset to a future tick; no error surfaced.

	case s.LastAppliedCurrent != nil &&
		!currentSetting.Equal(s.LastAppliedCurrent) &&
		!currentSetting.Equal(s.RequestedCurrent):
		s.RequestedCurrent = currentSetting.Clone()
		s.ManualOverrideDetected = true
		if s.log != nil {
			s.log.INFO.Printf("charger %s: manual override detected, new requested current %v", s.charger.ID(), currentSetting)
		}
	}

	s.activeSession = isCharging
}

// ActiveSession reports whether a session is currently tracked as
// active (used only for tests; production code derives it from the
// adapter directly).
func (s *ChargerState) ActiveSession() bool {
	return s.activeSession
}
