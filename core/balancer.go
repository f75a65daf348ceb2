package core

import (
	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// DefaultToleranceWindowSeconds is the sliding window used by the
// Optimised overcurrent mode to distinguish a brief spike from a
// sustained overload. 60s approximates typical residential B/C-curve
// fuse behaviour.
const DefaultToleranceWindowSeconds = 60

// excessSample is one (timestamp, excess) observation in the sliding
// window. excess is always >= 0.
type excessSample struct {
	ts     float64
	excess int
}

// OvercurrentRecorder is the subset of metrics the Balancer can feed
// directly, since it is the only component that computes the
// integrated excess.
type OvercurrentRecorder interface {
	ObserveOvercurrentExcess(phase api.Phase, excess float64)
}

// Balancer is the per-phase availability computer described in
// spec.md §4.3. It holds no charger knowledge; it only turns raw
// meter headroom into a signed delta the Allocator can act on.
type Balancer struct {
	log     *util.Logger
	mode    api.OvercurrentMode
	limits  api.PerPhaseAmps
	metrics OvercurrentRecorder

	windowSeconds float64
	samples       map[api.Phase][]excessSample
}

// NewBalancer constructs a Balancer bounded by maxLimits (the fuse
// size per live phase) operating in mode.
func NewBalancer(log *util.Logger, maxLimits api.PerPhaseAmps, mode api.OvercurrentMode) *Balancer {
	return &Balancer{
		log:           log,
		mode:          mode,
		limits:        maxLimits.Clone(),
		windowSeconds: DefaultToleranceWindowSeconds,
		samples:       make(map[api.Phase][]excessSample, len(maxLimits)),
	}
}

// SetMetricsRecorder wires an OvercurrentRecorder so every Optimised-
// mode sample feeds the evse_balancer_overcurrent_excess_amps gauge.
// Optional: a nil recorder (the default) simply skips the observation.
func (b *Balancer) SetMetricsRecorder(metrics OvercurrentRecorder) {
	b.metrics = metrics
}

// Limits returns the per-phase fuse ceiling the Balancer was
// configured with, the same maxLimits passed to NewBalancer. The
// Coordinator uses this as the single source of truth for the
// operator-configured (and possibly overridden) fuse size, so the
// value driving `available[p]` computation can never drift from the
// value the Balancer itself was built against.
func (b *Balancer) Limits() api.PerPhaseAmps {
	return b.limits.Clone()
}

// threshold is the per-phase excess-ampere-seconds integral above
// which a spike is treated as a sustained overload. It is calibrated
// so that the integral of a spike approximates the energy a
// continuous draw of max_limits[p]+1 amps (i.e. exactly 1A of excess
// over the fuse) would accumulate over the full window: 1A held for
// windowSeconds. This keeps the tolerance independent of fuse size
// (a bigger fuse doesn't earn a bigger tolerated spike, only the same
// brief one) while still being phase-local bookkeeping.
func (b *Balancer) threshold(p api.Phase) float64 {
	return 1.0 * b.windowSeconds
}

// ComputeAvailability turns the meter-derived per-phase headroom into
// a signed delta: negative = cut, positive = grant, zero = hold.
func (b *Balancer) ComputeAvailability(available api.PerPhaseAmps, now float64) api.PerPhaseAmps {
	out := make(api.PerPhaseAmps, len(available))

	for p, avail := range available {
		switch b.mode {
		case api.Conservative:
			out[p] = avail

		case api.Optimised:
			out[p] = b.computeOptimised(p, avail, now)

		default:
			out[p] = avail
		}
	}

	return out
}

func (b *Balancer) computeOptimised(p api.Phase, avail int, now float64) int {
	if avail >= 0 {
		b.appendSample(p, now, 0)
		if b.metrics != nil {
			b.metrics.ObserveOvercurrentExcess(p, 0)
		}
		return avail
	}

	excess := -avail
	b.appendSample(p, now, excess)

	integral := b.integratedExcess(p, now)
	if b.metrics != nil {
		b.metrics.ObserveOvercurrentExcess(p, integral)
	}
	if integral > b.threshold(p) {
		if b.log != nil {
			b.log.DEBUG.Printf("phase %s: integrated excess %.1f A·s exceeds threshold %.1f, surfacing overcurrent", p, integral, b.threshold(p))
		}
		return avail
	}

	if b.log != nil {
		b.log.TRACE.Printf("phase %s: tolerating spike, integrated excess %.1f A·s (threshold %.1f)", p, integral, b.threshold(p))
	}
	return 0
}

// appendSample records a sample and evicts anything that has fallen
// entirely outside the sliding window.
func (b *Balancer) appendSample(p api.Phase, now float64, excess int) {
	samples := append(b.samples[p], excessSample{ts: now, excess: excess})

	cutoff := now - b.windowSeconds
	start := 0
	for start < len(samples) && samples[start].ts < cutoff {
		start++
	}
	b.samples[p] = samples[start:]
}

// integratedExcess sums excess_i * (ts_{i+1} - ts_i) across retained
// samples. The most recent sample's own hold duration is attributed
// on the following tick, once its end time is known; this converges
// correctly over a sustained spike while never over-counting a single
// instant.
func (b *Balancer) integratedExcess(p api.Phase, now float64) float64 {
	samples := b.samples[p]
	if len(samples) < 2 {
		return 0
	}

	var total float64
	for i := 0; i < len(samples)-1; i++ {
		dt := samples[i+1].ts - samples[i].ts
		if dt < 0 {
			dt = 0
		}
		total += float64(samples[i].excess) * dt
	}
	return total
}
