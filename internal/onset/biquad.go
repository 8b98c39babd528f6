// SPDX-License-Identifier: MIT
package onset

import "math"

// biquad is a 2nd-order IIR section in Direct Form II Transposed,
// coefficients from the Audio EQ Cookbook (Robert Bristow-Johnson).
// Direct Form II Transposed keeps the state variables well scaled for
// low cutoff frequencies.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *biquad) reset() {
	f.z1, f.z2 = 0, 0
}

// setLowpass configures the section as a low-pass with cutoff fc at
// sample rate fs. Q 0.707 gives a Butterworth response; higher values
// sharpen the knee. State is cleared because old state is meaningless
// under new coefficients.
func (f *biquad) setLowpass(fc, fs, q float64) {
	w0 := 2 * math.Pi * fc / fs
	cosw0 := math.Cos(w0)
	sinw0 := math.Sin(w0)
	a := sinw0 / (2 * q)

	a0 := 1 + a
	f.b0 = ((1 - cosw0) / 2) / a0
	f.b1 = (1 - cosw0) / a0
	f.b2 = f.b0
	f.a1 = (-2 * cosw0) / a0
	f.a2 = (1 - a) / a0

	f.reset()
}
