// SPDX-License-Identifier: MIT
package onset

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftSize balances latency against bin resolution: 256 samples is 16ms
// at 16 kHz, giving 62.5 Hz bins and roughly one spectral frame per
// control tick.
const (
	fftSize = 256
	numBins = fftSize / 2
)

// spectrum accumulates raw samples into non-overlapping fftSize frames
// and produces a Hamming-windowed magnitude spectrum per frame. The
// spectral detectors consume at most one frame per control tick.
type spectrum struct {
	fft    *fourier.FFT
	window [fftSize]float64
	buf    [fftSize]float64
	n      int

	scratch [fftSize]float64
	coeffs  []complex128
	mags    [numBins]float64
	ready   bool
}

func (s *spectrum) init() {
	s.fft = fourier.NewFFT(fftSize)
	s.coeffs = make([]complex128, fftSize/2+1)
	for i := range s.window {
		s.window[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}
}

func (s *spectrum) reset() {
	s.n = 0
	s.ready = false
	for i := range s.mags {
		s.mags[i] = 0
	}
}

func (s *spectrum) addSamples(block []float64) {
	for _, v := range block {
		s.buf[s.n] = v
		s.n++
		if s.n == fftSize {
			s.compute()
			s.n = 0
		}
	}
}

func (s *spectrum) compute() {
	for i := range s.buf {
		s.scratch[i] = s.buf[i] * s.window[i]
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.scratch[:])
	for i := 0; i < numBins; i++ {
		s.mags[i] = 2 * cmplx.Abs(s.coeffs[i]) / fftSize
	}
	s.ready = true
}

// takeFrame returns the latest magnitude spectrum once. The returned
// slice aliases internal storage and is only valid until the next
// compute.
func (s *spectrum) takeFrame() ([]float64, bool) {
	if !s.ready {
		return nil, false
	}
	s.ready = false
	return s.mags[:], true
}
