// SPDX-License-Identifier: MIT
package onset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/pkg/dsptest"
)

const (
	testRate     = 16000.0
	testTickRate = 60.0
	testDt       = 1.0 / testTickRate
	// One capture block per tick keeps the spectral frame cadence
	// aligned with the control loop.
	testBlock = 256
)

func newEnsemble(mode config.DetectionMode) *Ensemble {
	p := config.DefaultParams().Onset
	p.Mode = mode
	return New(p, testRate)
}

// sineBlock generates the next block of a continuous sine, carrying
// phase across calls.
func sineBlock(freq, amp float64, phase *float64) []float64 {
	out := make([]float64, testBlock)
	step := 2 * math.Pi * freq / testRate
	for i := range out {
		out[i] = amp * math.Sin(*phase)
		*phase += step
	}
	return out
}

func TestDrummerFiresOncePerClick(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)
	signal := dsptest.ClickTrack(120, testTickRate, 600, 0.05, 0.9)

	impulses := 0
	prevImpulse := false
	for _, lvl := range signal {
		r := e.Detect(lvl, testDt)
		if r.Impulse {
			impulses++
			assert.False(t, prevImpulse, "impulse must last exactly one tick")
			assert.Greater(t, r.Strength, 0.0)
		}
		prevImpulse = r.Impulse
	}

	// 10 seconds at 120 BPM is 20 clicks; the very first may be eaten
	// while the history primes.
	assert.GreaterOrEqual(t, impulses, 18)
	assert.LessOrEqual(t, impulses, 21)
}

func TestCooldownSpacing(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)

	// Clicks every 3 ticks (50ms), faster than the 80ms cooldown
	// allows.
	var fireTicks []int
	for i := 0; i < 300; i++ {
		lvl := 0.02
		if i%3 == 0 {
			lvl = 0.9
		}
		if e.Detect(lvl, testDt).Impulse {
			fireTicks = append(fireTicks, i)
		}
	}

	require.NotEmpty(t, fireTicks)
	minGapMs := float64(config.DefaultParams().Onset.CooldownMs)
	for i := 1; i < len(fireTicks); i++ {
		gapMs := float64(fireTicks[i]-fireTicks[i-1]) * testDt * 1000
		assert.GreaterOrEqual(t, gapMs, minGapMs,
			"impulses %d and %d violate cooldown", fireTicks[i-1], fireTicks[i])
	}
}

func TestCooldownSurvivesModeSwitch(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)
	for i := 0; i < 30; i++ {
		e.Detect(0.02, testDt)
	}

	r := e.Detect(0.9, testDt)
	require.True(t, r.Impulse)

	// Switch strategy mid-cooldown. The next click lands 33ms after
	// the first impulse, well inside the 80ms window.
	p := config.DefaultParams().Onset
	p.Mode = config.ModeHybrid
	e.SetParams(p)

	e.Detect(0.02, testDt)
	r = e.Detect(0.9, testDt)
	assert.False(t, r.Impulse, "mode switch must not bypass cooldown")
}

func TestZeroDtTickSkipped(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)
	for i := 0; i < 30; i++ {
		e.Detect(0.02, testDt)
	}
	require.True(t, e.Detect(0.9, testDt).Impulse)

	// Zero-dt ticks must not consume the cooldown.
	for i := 0; i < 100; i++ {
		r := e.Detect(0.9, 0)
		assert.False(t, r.Impulse)
	}
	e.Detect(0.02, testDt)
	assert.False(t, e.Detect(0.9, testDt).Impulse,
		"cooldown should still be active after zero-dt ticks")
}

func TestSwellNeverFires(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)
	// 4-second musical swell oscillating 0.05..0.75.
	signal := dsptest.SineLevel(600, 0.4, 0.35, 240)

	for i, lvl := range signal {
		r := e.Detect(clamp01(lvl), testDt)
		assert.False(t, r.Impulse, "swell fired at tick %d", i)
	}
}

func TestFluxFiresOnSpectralJump(t *testing.T) {
	e := newEnsemble(config.ModeSpectralFlux)

	var phase float64
	for i := 0; i < 40; i++ {
		e.PushSamples(sineBlock(220, 0.05, &phase))
		require.False(t, e.Detect(0.05, testDt).Impulse)
	}

	e.PushSamples(sineBlock(220, 0.9, &phase))
	r := e.Detect(0.9, testDt)
	assert.True(t, r.Impulse, "amplitude jump must spike spectral flux")
}

func TestFluxIgnoresSteadyTone(t *testing.T) {
	e := newEnsemble(config.ModeSpectralFlux)

	var phase float64
	impulses := 0
	for i := 0; i < 300; i++ {
		e.PushSamples(sineBlock(220, 0.4, &phase))
		if e.Detect(0.4, testDt).Impulse {
			impulses++
		}
	}
	assert.Zero(t, impulses, "steady tone has no positive flux")
}

func TestHFCPrefersHighFrequencyAttacks(t *testing.T) {
	e := newEnsemble(config.ModeHFC)

	var phase float64
	for i := 0; i < 40; i++ {
		e.PushSamples(sineBlock(110, 0.3, &phase))
		e.Detect(0.3, testDt)
	}

	// A low-frequency burst adds nothing above 2 kHz.
	e.PushSamples(sineBlock(110, 0.9, &phase))
	assert.False(t, e.Detect(0.9, testDt).Impulse)

	e.Reset()
	phase = 0
	for i := 0; i < 40; i++ {
		e.PushSamples(sineBlock(110, 0.3, &phase))
		e.Detect(0.3, testDt)
	}

	var hfPhase float64
	e.PushSamples(sineBlock(6000, 0.8, &hfPhase))
	assert.True(t, e.Detect(0.8, testDt).Impulse,
		"6 kHz burst should register as high-frequency content")
}

func TestBassRejectsHighFrequency(t *testing.T) {
	e := newEnsemble(config.ModeBassBand)

	quiet := make([]float64, testBlock)
	for i := 0; i < 40; i++ {
		e.PushSamples(quiet)
		e.Detect(0.0, testDt)
	}

	// 5 kHz sits ~68dB down after the 120 Hz low-pass.
	var hfPhase float64
	e.PushSamples(sineBlock(5000, 0.8, &hfPhase))
	assert.False(t, e.Detect(0.8, testDt).Impulse)

	e.Reset()
	for i := 0; i < 40; i++ {
		e.PushSamples(quiet)
		e.Detect(0.0, testDt)
	}

	var loPhase float64
	e.PushSamples(sineBlock(80, 0.8, &loPhase))
	assert.True(t, e.Detect(0.8, testDt).Impulse,
		"80 Hz burst should pass the bass filter and fire")
}

func TestHybridBoostsAgreement(t *testing.T) {
	// Drummer-only evidence: level clicks with no sample stream.
	drumOnly := newEnsemble(config.ModeHybrid)
	for i := 0; i < 30; i++ {
		drumOnly.Detect(0.02, testDt)
	}
	rDrum := drumOnly.Detect(0.9, testDt)
	require.True(t, rDrum.Impulse)

	// Both strategies see the hit: level click plus a spectral jump.
	both := newEnsemble(config.ModeHybrid)
	var phase float64
	for i := 0; i < 30; i++ {
		both.PushSamples(sineBlock(220, 0.03, &phase))
		both.Detect(0.02, testDt)
	}
	both.PushSamples(sineBlock(220, 0.9, &phase))
	rBoth := both.Detect(0.9, testDt)
	require.True(t, rBoth.Impulse)

	assert.Greater(t, rBoth.Strength, rDrum.Strength,
		"agreement between strategies should outscore a single fire")
}

func TestAdaptiveThresholdRecoversQuietClicks(t *testing.T) {
	signal := dsptest.ClickTrack(120, testTickRate, 600, 0.04, 0.07)

	fixed := newEnsemble(config.ModeDrummer)
	fixedImpulses := 0
	for _, lvl := range signal {
		if fixed.Detect(lvl, testDt).Impulse {
			fixedImpulses++
		}
	}

	p := config.DefaultParams().Onset
	p.Mode = config.ModeDrummer
	p.AdaptiveEnabled = true
	adaptive := New(p, testRate)
	adaptiveImpulses := 0
	for _, lvl := range signal {
		if adaptive.Detect(lvl, testDt).Impulse {
			adaptiveImpulses++
		}
	}

	assert.Zero(t, fixedImpulses, "clicks this quiet sit below the fixed threshold")
	assert.Greater(t, adaptiveImpulses, 10,
		"adaptive scaling should recover most quiet clicks")
}

func TestResetClearsState(t *testing.T) {
	e := newEnsemble(config.ModeDrummer)
	for i := 0; i < 30; i++ {
		e.Detect(0.02, testDt)
	}
	require.True(t, e.Detect(0.9, testDt).Impulse)

	e.Reset()
	assert.Zero(t, e.cooldownMs)
	assert.Zero(t, e.drummer.baseline)
	assert.False(t, e.drummer.primed)
}

func BenchmarkDetectHybrid(b *testing.B) {
	e := newEnsemble(config.ModeHybrid)
	var phase float64
	block := sineBlock(220, 0.4, &phase)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.PushSamples(block)
		e.Detect(0.4, testDt)
	}
}
