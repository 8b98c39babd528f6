// SPDX-License-Identifier: MIT
// Package dsptest provides synthetic control-rate signals for exercising
// the level, onset, rhythm, and beat packages without live audio input.
package dsptest

import "math"

// ClickTrack returns per-tick level samples containing periodic clicks at
// the given BPM. Each click raises the level to peak for one tick with a
// short decay tail; between clicks the level sits at floor.
//
// tickRate is the control loop rate in Hz (e.g. 60).
func ClickTrack(bpm, tickRate float64, ticks int, floor, peak float64) []float64 {
	out := make([]float64, ticks)
	periodTicks := tickRate * 60.0 / bpm
	for i := range out {
		out[i] = floor
		// Distance to the nearest click tick.
		phase := math.Mod(float64(i), periodTicks)
		switch {
		case phase < 1:
			out[i] = peak
		case phase < 2:
			out[i] = floor + (peak-floor)*0.4 // decay tail
		case phase < 3:
			out[i] = floor + (peak-floor)*0.15
		}
	}
	return out
}

// Step returns a constant-level signal that jumps from before to after
// at tick stepAt. Used for AGC settling tests.
func Step(ticks, stepAt int, before, after float64) []float64 {
	out := make([]float64, ticks)
	for i := range out {
		if i < stepAt {
			out[i] = before
		} else {
			out[i] = after
		}
	}
	return out
}

// SineLevel returns a slowly varying level signal oscillating around
// center with the given amplitude and period in ticks. Models musical
// swells that must NOT trigger onset detection.
func SineLevel(ticks int, center, amplitude, periodTicks float64) []float64 {
	out := make([]float64, ticks)
	for i := range out {
		out[i] = center + amplitude*math.Sin(2*math.Pi*float64(i)/periodTicks)
	}
	return out
}

// ClickOSS returns a periodic onset-strength signal at the given BPM:
// a spike of the given strength on each beat tick, zero elsewhere.
// Suppressed beats (every nth real beat skipped when suppressEvery > 0)
// model missed onsets for graceful-degradation tests.
func ClickOSS(bpm, tickRate float64, ticks int, strength float64, suppressEvery int) []float64 {
	out := make([]float64, ticks)
	periodTicks := tickRate * 60.0 / bpm
	beat := 0
	for i := range out {
		phase := math.Mod(float64(i), periodTicks)
		if phase < 1 {
			beat++
			if suppressEvery > 0 && beat%suppressEvery == 0 {
				continue
			}
			out[i] = strength
		}
	}
	return out
}

// PCMSine generates int PCM samples of a sine wave for WAV round-trip
// tests, scaled to the given bit depth.
func PCMSine(n int, sampleRate, freq float64, bitDepth int) []int {
	out := make([]int, n)
	amp := float64(int64(1)<<(bitDepth-1)) - 1
	for i := range out {
		tm := float64(i) / sampleRate
		out[i] = int(math.Sin(2*math.Pi*freq*tm) * amp * 0.9)
	}
	return out
}
