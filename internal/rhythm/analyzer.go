// SPDX-License-Identifier: MIT
/*
Package rhythm estimates tempo from the onset strength signal (OSS) by
autocorrelation. The analyzer buffers ~4.3 seconds of per-tick onset
strengths and, on a throttled interval, searches the lag range
corresponding to the configured BPM window for the strongest periodic
alignment. Between recomputes it free-runs a beat phase and exposes a
continuously sampled beat likelihood.

The tempo estimate here is advisory: the beat tracker blends it with
its own inter-onset interval histogram and owns the authoritative BPM.

Thread Safety: not safe for concurrent use. Owned by the control loop.
*/
package rhythm

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/pkg/ringbuf"
)

// ossBufferSize is 256 ticks, about 4.3 seconds at 60 ticks/s: long
// enough to hold several bars at 60 BPM, short enough to follow tempo
// changes.
const ossBufferSize = 256

const (
	// Tempo smoothing: 80% previous estimate, 20% new detection.
	tempoSmoothingOld = 0.8
	tempoSmoothingNew = 0.2
	// A detection differing more than 10% from the running estimate is
	// treated as a tempo change and resyncs the phase.
	tempoChangeThreshold = 0.10
)

// Estimate is the analyzer output snapshot consumed by the beat
// tracker and telemetry every tick.
type Estimate struct {
	Valid               bool
	BPM                 float64
	PeriodMs            float64
	Phase               float64 // 0 at the beat, wraps at 1
	PeriodicityStrength float64 // autocorrelation peak vs signal energy, 0-1
	BeatLikelihood      float64 // continuous, peaks near beat positions
}

// Analyzer owns the OSS ring and the autocorrelation tempo estimate.
type Analyzer struct {
	params config.RhythmParams

	oss     *ringbuf.Ring[float64]
	ordered []float64 // scratch for lag-domain correlation

	clockMs        float64
	lastAutocorrMs float64

	periodMs   float64
	strength   float64
	phase      float64
	likelihood float64
	tickRate   float64
}

// New creates an analyzer with the given parameters.
func New(p config.RhythmParams) *Analyzer {
	return &Analyzer{
		params:   p,
		oss:      ringbuf.New[float64](ossBufferSize),
		ordered:  make([]float64, ossBufferSize),
		tickRate: 60,
	}
}

// SetParams swaps the parameter set. Called between ticks only.
func (a *Analyzer) SetParams(p config.RhythmParams) { a.params = p }

// Reset clears all state. Called on session reset.
func (a *Analyzer) Reset() {
	a.oss.Reset()
	a.clockMs = 0
	a.lastAutocorrMs = 0
	a.periodMs = 0
	a.strength = 0
	a.phase = 0
	a.likelihood = 0
}

// Push appends one tick's onset strength to the OSS buffer. Zero is a
// meaningful sample: silence between onsets is what gives the
// autocorrelation its contrast.
func (a *Analyzer) Push(strength float64) {
	a.oss.Push(strength)
}

// Fill returns the OSS buffer fill fraction in [0,1].
func (a *Analyzer) Fill() float64 {
	return float64(a.oss.Len()) / float64(a.oss.Cap())
}

// Update advances the analyzer by one control tick and reruns the
// autocorrelation if the throttle interval has elapsed. Returns true
// when a new tempo detection was accepted this tick.
func (a *Analyzer) Update(dt float64) bool {
	if dt <= 0 {
		return false
	}
	a.clockMs += dt * 1000
	a.tickRate = 1 / dt

	// Free-run the phase between recomputes.
	if a.periodMs > 0 {
		a.phase = math.Mod(a.phase+dt*1000/a.periodMs, 1)
	}

	accepted := false
	if a.clockMs-a.lastAutocorrMs >= float64(a.params.AutocorrIntervalMs) && a.oss.Full() {
		a.lastAutocorrMs = a.clockMs
		accepted = a.recompute()
	}

	a.likelihood = a.computeBeatLikelihood()
	return accepted
}

// Estimate returns the current tempo snapshot.
func (a *Analyzer) Estimate() Estimate {
	if a.periodMs <= 0 || a.strength < a.params.MinPeriodicityStrength {
		return Estimate{}
	}
	return Estimate{
		Valid:               true,
		BPM:                 60000 / a.periodMs,
		PeriodMs:            a.periodMs,
		Phase:               a.phase,
		PeriodicityStrength: a.strength,
		BeatLikelihood:      a.likelihood,
	}
}

// ConfirmPastBeat reports whether the OSS shows a clear spike
// framesAgo ticks back, compared against its immediate neighbors. The
// beat tracker uses this to validate a predicted beat position after
// the fact.
func (a *Analyzer) ConfirmPastBeat(framesAgo int, threshold float64) bool {
	if framesAgo <= 0 || framesAgo >= a.oss.Len() {
		return false
	}
	target := a.oss.At(framesAgo)
	before := a.oss.At(framesAgo + 1)
	after := 0.0
	if framesAgo > 1 {
		after = a.oss.At(framesAgo - 1)
	}
	return target > (before+after)/2*threshold
}

// recompute runs the lag-domain autocorrelation over the full OSS
// buffer and folds an accepted detection into the smoothed estimate.
func (a *Analyzer) recompute() bool {
	a.oss.CopyOrdered(a.ordered)

	msPerFrame := 1000 / a.tickRate
	minLag := int(60000 / a.params.MaxBPM / msPerFrame)
	maxLag := int(60000 / a.params.MinBPM / msPerFrame)
	if minLag < 2 {
		minLag = 2
	}
	if maxLag > ossBufferSize/2 {
		maxLag = ossBufferSize / 2
	}

	bestLag, peak := autocorrelatePeak(a.ordered, minLag, maxLag)

	energy := floats.Dot(a.ordered, a.ordered) / float64(len(a.ordered))
	strength := 0.0
	if energy > 0 {
		strength = math.Min(peak/energy, 1)
	}

	if strength <= a.params.MinPeriodicityStrength {
		// No credible pattern. Drop the estimate rather than hold a
		// stale tempo forever.
		a.periodMs = 0
		a.strength = 0
		a.phase = 0
		return false
	}

	newPeriodMs := float64(bestLag) * msPerFrame
	if a.periodMs > 0 {
		if math.Abs(a.periodMs-newPeriodMs) > a.periodMs*tempoChangeThreshold {
			a.phase = a.alignPhase(newPeriodMs) // resync on a real tempo change
		}
		a.periodMs = a.periodMs*tempoSmoothingOld + newPeriodMs*tempoSmoothingNew
	} else {
		a.periodMs = newPeriodMs
		a.phase = a.alignPhase(newPeriodMs)
	}
	a.strength = strength
	return true
}

// alignPhase anchors the free-running phase to the strongest onset in
// the most recent period, so the likelihood curve peaks on actual beat
// positions instead of wherever the recompute happened to land.
func (a *Analyzer) alignPhase(periodMs float64) float64 {
	periodFrames := int(periodMs * a.tickRate / 1000)
	if periodFrames < 1 || periodFrames > a.oss.Len() {
		return 0
	}
	best := 0
	bestVal := a.oss.At(0)
	for i := 1; i < periodFrames; i++ {
		if v := a.oss.At(i); v > bestVal {
			bestVal = v
			best = i
		}
	}
	return float64(best) / float64(periodFrames)
}

// subharmonicRatio is the fraction of the peak correlation a half lag
// must reach to be preferred as the fundamental. For a periodic spike
// train the fundamental and its 2x subharmonic have near-identical
// count-normalized correlations, so a plain argmax flips between them
// with buffer alignment.
const subharmonicRatio = 0.9

// autocorrelatePeak finds the lag in [minLag, maxLag] with the highest
// count-normalized correlation, then walks down to the fundamental:
// while lag/2 is in range and correlates at least subharmonicRatio of
// the peak, the half lag wins.
func autocorrelatePeak(signal []float64, minLag, maxLag int) (int, float64) {
	if maxLag >= len(signal) {
		maxLag = len(signal) - 1
	}
	corrAt := func(lag int) float64 {
		n := len(signal) - lag
		return floats.Dot(signal[lag:], signal[:n]) / float64(n)
	}
	bestLag := minLag
	var best float64
	for lag := minLag; lag <= maxLag; lag++ {
		if corr := corrAt(lag); corr > best {
			best = corr
			bestLag = lag
		}
	}
	for half := bestLag / 2; half >= minLag; half = bestLag / 2 {
		corr := corrAt(half)
		if corr < best*subharmonicRatio {
			break
		}
		bestLag = half
		best = corr
	}
	return bestLag, best
}

// computeBeatLikelihood samples the continuous beat expectation: how
// elevated the newest OSS sample is against its one-period average,
// shaped by the phase position and scaled by periodicity strength.
func (a *Analyzer) computeBeatLikelihood() float64 {
	if a.periodMs <= 0 || a.strength < a.params.MinPeriodicityStrength {
		return 0
	}

	periodFrames := int(a.periodMs * a.tickRate / 1000)
	if periodFrames < 1 {
		periodFrames = 1
	}
	if periodFrames > a.oss.Len() {
		periodFrames = a.oss.Len()
	}
	if periodFrames == 0 {
		return 0
	}

	var avg float64
	for i := 0; i < periodFrames; i++ {
		avg += a.oss.At(i)
	}
	avg /= float64(periodFrames)

	ratio := 0.0
	if avg > 0 {
		ratio = a.oss.At(0) / avg
	}
	phaseFactor := 0.5 + 0.5*math.Cos(2*math.Pi*a.phase)
	likelihood := (ratio - 1) * phaseFactor * a.strength
	if likelihood < 0 {
		return 0
	}
	if likelihood > 1 {
		return 1
	}
	return likelihood
}
