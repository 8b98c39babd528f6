// SPDX-License-Identifier: MIT
/*
Package onset converts the normalized level stream into discrete onset
impulses using an ensemble of five detection strategies: amplitude
(drummer), bass-band, high-frequency content, spectral flux, and a
hybrid fusion of drummer and flux.

An onset is reported as a single-tick impulse. Downstream consumers
trigger one-shot events on the impulse and read the continuous level
separately, so the ensemble must never emit a decaying envelope in
place of the pulse.

Cooldown is enforced at the ensemble level, not per strategy, and
survives detection mode switches.

Thread Safety: not safe for concurrent use. Owned by the control loop.
*/
package onset

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

// Result is the per-tick ensemble output. Impulse is true for exactly
// one tick per detected onset; Strength is only meaningful on that
// tick.
type Result struct {
	Impulse  bool
	Strength float64 // 0-1, how far above threshold the onset landed
	Mode     config.DetectionMode
}

// detection is the raw per-strategy verdict before ensemble gating.
type detection struct {
	fired      bool
	strength   float64
	confidence float64
}

// features is the per-tick input bundle handed to each strategy.
type features struct {
	level          float64   // post-AGC normalized level
	bassLevel      float64   // biquad low-passed block RMS
	mags           []float64 // magnitude spectrum, valid for one tick
	spectralValid  bool
	thresholdScale float64 // adaptive threshold multiplier, 1 = off
}

type detector interface {
	detect(f features, p *config.OnsetParams, dt float64) detection
	reset()
}

// Ensemble runs the selected detection strategy over per-tick features
// assembled from the level stream and the raw sample stream.
type Ensemble struct {
	params     config.OnsetParams
	sampleRate float64

	bassFilter biquad
	bassSumSq  float64
	bassCount  int
	lastBass   float64

	spec spectrum

	drummer drummerDetector
	bass    bassDetector
	hfc     hfcDetector
	flux    fluxDetector
	hybrid  hybridDetector

	trackedPeak float64 // slow raw-level EMA driving adaptive scaling
	cooldownMs  float64
}

// New creates an ensemble for the given parameters and capture sample
// rate.
func New(p config.OnsetParams, sampleRate float64) *Ensemble {
	e := &Ensemble{params: p, sampleRate: sampleRate}
	e.bassFilter.setLowpass(p.BassFreq, sampleRate, p.BassQ)
	e.spec.init()
	return e
}

// SetParams swaps the parameter set between ticks. The ensemble
// cooldown is deliberately preserved so a mode switch cannot be used
// to double-fire inside the minimum inter-onset spacing.
func (e *Ensemble) SetParams(p config.OnsetParams) {
	if p.BassFreq != e.params.BassFreq || p.BassQ != e.params.BassQ {
		e.bassFilter.setLowpass(p.BassFreq, e.sampleRate, p.BassQ)
	}
	e.params = p
}

// Reset clears all detector state. Called on session reset.
func (e *Ensemble) Reset() {
	e.bassFilter.reset()
	e.bassSumSq, e.bassCount, e.lastBass = 0, 0, 0
	e.spec.reset()
	e.drummer.reset()
	e.bass.reset()
	e.hfc.reset()
	e.flux.reset()
	e.hybrid.reset()
	e.trackedPeak = 0
	e.cooldownMs = 0
}

// PushSamples feeds a raw capture block (normalized -1..1) into the
// spectral and bass front ends. Called from the control loop as blocks
// drain from the capture queue, before Detect for the same tick.
func (e *Ensemble) PushSamples(block []float64) {
	for _, s := range block {
		filtered := e.bassFilter.process(s)
		e.bassSumSq += filtered * filtered
		e.bassCount++
	}
	e.spec.addSamples(block)
}

// Detect runs the configured strategy for one control tick. level is
// the post-AGC output of the level tracker; dt is the tick duration in
// seconds. A zero or negative dt skips the tick entirely.
func (e *Ensemble) Detect(level, dt float64) Result {
	if dt <= 0 {
		return Result{Mode: e.params.Mode}
	}

	if e.cooldownMs > 0 {
		e.cooldownMs -= dt * 1000
		if e.cooldownMs < 0 {
			e.cooldownMs = 0
		}
	}

	f := features{
		level:          level,
		bassLevel:      e.drainBassLevel(),
		thresholdScale: e.adaptiveScale(level, dt),
	}
	if mags, ok := e.spec.takeFrame(); ok {
		f.mags = mags
		f.spectralValid = true
	}

	det := e.strategy().detect(f, &e.params, dt)

	r := Result{Mode: e.params.Mode}
	if det.fired && e.cooldownMs <= 0 {
		r.Impulse = true
		r.Strength = clamp01(det.strength)
		e.cooldownMs = float64(e.params.CooldownMs)
	}
	return r
}

func (e *Ensemble) strategy() detector {
	switch e.params.Mode {
	case config.ModeBassBand:
		return &e.bass
	case config.ModeHFC:
		return &e.hfc
	case config.ModeSpectralFlux:
		return &e.flux
	case config.ModeHybrid:
		return &e.hybrid
	default:
		return &e.drummer
	}
}

// drainBassLevel converts the accumulated filtered energy into a block
// RMS and resets the accumulator. Holds the last value on ticks where
// no samples arrived so the bass baseline does not collapse.
func (e *Ensemble) drainBassLevel() float64 {
	if e.bassCount == 0 {
		return e.lastBass
	}
	rms := math.Sqrt(e.bassSumSq / float64(e.bassCount))
	e.bassSumSq, e.bassCount = 0, 0
	e.lastBass = clamp01(rms)
	return e.lastBass
}

// adaptiveScale lowers the effective detection thresholds on quiet
// sources. A slow EMA tracks the recent raw peak; when it sits below
// adaptiveMinRaw the thresholds scale down, bottoming out at
// adaptiveMaxScale.
func (e *Ensemble) adaptiveScale(level, dt float64) float64 {
	if !e.params.AdaptiveEnabled {
		return 1
	}
	if level > e.trackedPeak {
		e.trackedPeak = level
	} else {
		e.trackedPeak += alpha(dt, e.params.AdaptiveBlendTau) * (level - e.trackedPeak)
	}
	if e.params.AdaptiveMinRaw <= 0 {
		return 1
	}
	scale := e.trackedPeak / e.params.AdaptiveMinRaw
	if scale > 1 {
		return 1
	}
	if scale < e.params.AdaptiveMaxScale {
		return e.params.AdaptiveMaxScale
	}
	return scale
}

func alpha(dt, tau float64) float64 {
	if tau < 0.05 {
		tau = 0.05
	}
	return 1 - math.Exp(-dt/tau)
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
