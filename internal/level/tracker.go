// SPDX-License-Identifier: MIT
/*
Package level implements the two-stage automatic gain control that
normalizes raw microphone energy into a bounded level signal.

Signal flow: raw energy → hardware gain (coarse, minutes) → software
gain (continuous, seconds) → window/range normalization (peak/valley
tracking) → level output.

The hardware loop compensates for venue scale and is stepped at most
once per calibration period; the software loop adapts to musical
dynamics with asymmetric attack/release so loud passages are captured
quickly while decays release slowly enough to avoid pumping.

Thread Safety: not safe for concurrent use. The tracker is owned by the
control loop and touched only from tick context.
*/
package level

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

// Hardware gain limits for the PDM capture path. The driver applies the
// step; the tracker only decides it.
const (
	HWGainMin = 0
	HWGainMax = 80
)

const (
	// minTau prevents divide-by-near-zero alpha blowups on tiny taus.
	minTau = 0.1
	// hwTrackingTau is the raw-input EMA window feeding the hardware
	// loop in normal mode.
	hwTrackingTau = 30.0
	// hwDeadZone suppresses hardware steps when tracked raw input is
	// already within ±0.01 of target.
	hwDeadZone = 0.01
	// instantAdaptThreshold: jump the peak straight to the signal when
	// input exceeds peak by this ratio, so loud transients never clip.
	instantAdaptThreshold = 1.3
	// valleyReleaseMultiplier: the valley drifts upward 4x slower than
	// the peak releases, keeping the noise floor estimate stable.
	valleyReleaseMultiplier = 4.0
	valleyFloor             = 0.001
	minNormalizationRange   = 0.01

	// Software gain bounds. Gain never dips below unity; the ceiling
	// allows strong amplification of quiet sources.
	swGainMin = 1.0
	swGainMax = 12.0

	// fastAGCPinnedRatio: fast mode requires hardware gain at or above
	// this fraction of max (pinned, nothing left to give).
	fastAGCPinnedRatio = 0.875
)

// State is the per-tick snapshot of the tracker, read by telemetry and
// downstream consumers.
type State struct {
	LevelPreGain  float64 // raw capture level before software gain
	LevelPostGain float64 // final normalized output, 0-1
	HardwareGain  int     // discrete driver gain step
	SoftwareGain  float64 // continuous multiplier [swGainMin, swGainMax]
	TrackedRMS    float64 // EMA of pre-gain level over the AGC window
	PeakLevel     float64 // tracked window peak (boosted range)
	ValleyLevel   float64 // tracked window valley (boosted range)
	FastAGCActive bool    // shortened loop engaged
	ErrorCount    uint64  // rejected (non-finite / out-of-range) frames
	LastHWCalibMs float64 // internal clock time of last hardware step
}

// Tracker owns all AGC state. Construct with New, drive with Update
// once per control tick.
type Tracker struct {
	params config.AGCParams

	// Window/range normalization.
	peakLevel   float64
	valleyLevel float64

	// Raw-input EMA feeding the hardware loop.
	rawTracked float64

	// Software AGC.
	trackedRMS   float64
	softwareGain float64

	hardwareGain  int
	fastActive    bool
	state         State
	clockMs       float64
	lastHWCalibMs float64
}

// New creates a tracker with the given AGC parameters and an initial
// mid-range hardware gain.
func New(p config.AGCParams) *Tracker {
	t := &Tracker{params: p}
	t.Reset()
	return t
}

// SetParams swaps the parameter set. Called between ticks only.
func (t *Tracker) SetParams(p config.AGCParams) { t.params = p }

// Reset returns the tracker to power-on defaults.
func (t *Tracker) Reset() {
	t.peakLevel = 0.01
	t.valleyLevel = valleyFloor
	t.rawTracked = 0
	t.trackedRMS = 0
	t.softwareGain = swGainMin
	t.hardwareGain = (HWGainMin + HWGainMax) / 2
	t.fastActive = false
	t.clockMs = 0
	t.lastHWCalibMs = 0
	errCount := t.state.ErrorCount
	t.state = State{
		HardwareGain: t.hardwareGain,
		SoftwareGain: t.softwareGain,
		ErrorCount:   errCount,
	}
}

// Level returns the current post-gain output, 0-1.
func (t *Tracker) Level() float64 { return t.state.LevelPostGain }

// State returns the latest per-tick snapshot.
func (t *Tracker) State() State { return t.state }

// HardwareGain returns the discrete gain step the capture driver should
// apply.
func (t *Tracker) HardwareGain() int { return t.hardwareGain }

// Update advances the tracker by one control tick. raw is the
// instantaneous energy magnitude normalized to 0-1 by the capture path;
// dt is the tick duration in seconds. Malformed input (NaN, Inf,
// outside 0-1) freezes the level at its previous value and bumps the
// error counter; nothing invalid propagates downstream.
func (t *Tracker) Update(raw, dt float64) State {
	if dt <= 0 {
		return t.state
	}
	t.clockMs += dt * 1000

	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 || raw > 1 {
		t.state.ErrorCount++
		return t.state
	}

	// Raw input EMA for the hardware loop. Fast mode shortens the
	// window so a pinned-gain quiet source recovers in seconds, not
	// half a minute.
	trackTau := hwTrackingTau
	if t.fastActive {
		trackTau = t.params.FastAGCTau
	}
	t.rawTracked += alpha(dt, trackTau) * (raw - t.rawTracked)

	// Software AGC: track the pre-gain level with asymmetric taus and
	// steer gain so tracked×gain converges on the target. The attack
	// tau reacts quickly to loud passages; the slow release preserves
	// musical dynamics instead of pumping.
	rmsTau := t.params.ReleaseTau
	if raw > t.trackedRMS {
		rmsTau = t.params.PeakTau
	}
	if t.fastActive {
		rmsTau = t.params.FastAGCTau
	}
	t.trackedRMS += alpha(dt, rmsTau) * (raw - t.trackedRMS)

	const swTarget = 0.5
	if t.trackedRMS > 1e-3 {
		desired := swTarget / t.trackedRMS
		desired = math.Min(math.Max(desired, swGainMin), swGainMax)
		gainTau := t.params.ReleaseTau
		if t.fastActive {
			gainTau = t.params.FastAGCTau
		}
		t.softwareGain += alpha(dt, gainTau) * (desired - t.softwareGain)
	}
	t.softwareGain = math.Min(math.Max(t.softwareGain, swGainMin), swGainMax)

	boosted := clamp01(raw * t.softwareGain)

	// Peak tracking with asymmetric attack/release on the gain-adjusted
	// signal.
	tau := t.params.ReleaseTau
	if boosted > t.peakLevel {
		tau = t.params.PeakTau
	}
	t.peakLevel += alpha(dt, tau) * (boosted - t.peakLevel)
	if boosted > t.peakLevel*instantAdaptThreshold {
		t.peakLevel = boosted
	}

	// Valley tracking: fast attack to new minimums, slow drift upward.
	vTau := t.params.ReleaseTau * valleyReleaseMultiplier
	if boosted < t.valleyLevel {
		vTau = t.params.PeakTau
	}
	t.valleyLevel += alpha(dt, vTau) * (boosted - t.valleyLevel)
	t.valleyLevel = math.Max(t.valleyLevel, valleyFloor)

	// Map into the tracked window. The valley doubles as an adaptive
	// noise floor, so no separate gate is needed.
	window := math.Max(minNormalizationRange, t.peakLevel-t.valleyLevel)
	post := clamp01((boosted - t.valleyLevel) / window)

	t.updateFastAGC(raw)
	t.hardwareCalibrate()

	t.state.LevelPreGain = raw
	t.state.LevelPostGain = post
	t.state.HardwareGain = t.hardwareGain
	t.state.SoftwareGain = t.softwareGain
	t.state.TrackedRMS = t.trackedRMS
	t.state.PeakLevel = t.peakLevel
	t.state.ValleyLevel = t.valleyLevel
	t.state.FastAGCActive = t.fastActive
	t.state.LastHWCalibMs = t.lastHWCalibMs
	return t.state
}

// updateFastAGC engages the shortened loop when hardware gain is pinned
// near max and the raw input still sits below threshold, then reverts
// once the signal recovers. The two-tier design otherwise converges too
// slowly when the hardware stage is already saturated.
func (t *Tracker) updateFastAGC(raw float64) {
	if !t.params.FastAGCEnabled {
		t.fastActive = false
		return
	}
	pinned := float64(t.hardwareGain) >= fastAGCPinnedRatio*HWGainMax
	quiet := t.rawTracked < t.params.FastAGCThreshold
	t.fastActive = pinned && quiet
}

// hardwareCalibrate steps the discrete gain toward keeping the raw
// input at target, at most once per calibration period. Step size
// scales with error magnitude so far-off venues converge in a few
// periods while fine-tuning moves one step at a time.
func (t *Tracker) hardwareCalibrate() {
	period := float64(t.params.HWCalibPeriodMs)
	if t.fastActive {
		period = float64(t.params.FastAGCPeriodMs)
	}
	if t.clockMs-t.lastHWCalibMs < period {
		return
	}

	err := t.rawTracked - t.params.HWTarget
	mag := math.Abs(err)
	if mag <= hwDeadZone {
		t.lastHWCalibMs = t.clockMs
		return
	}

	step := 1
	switch {
	case mag > 0.15:
		step = 4
	case mag > 0.05:
		step = 2
	}
	if err > 0 {
		step = -step
	}

	t.hardwareGain += step
	if t.hardwareGain < HWGainMin {
		t.hardwareGain = HWGainMin
	}
	if t.hardwareGain > HWGainMax {
		t.hardwareGain = HWGainMax
	}
	t.lastHWCalibMs = t.clockMs
}

// alpha converts a time constant into an EMA blend factor for this dt.
func alpha(dt, tau float64) float64 {
	return 1 - math.Exp(-dt/math.Max(tau, minTau))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
