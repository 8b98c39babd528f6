// SPDX-License-Identifier: MIT
/*
Package audio implements lock-free audio capture for the analysis engine:
- PortAudio input streams with pre-allocated buffers
- Fixed-size sample blocks handed to the control loop over an SPSC queue
- Optional WAV recording with atomic state management
- WAV file playback for offline analysis

Thread Safety:
- The capture callback runs on a locked OS thread and never allocates
- Recording state uses atomic operations so it can toggle mid-stream
*/
package audio

// BlockSize is the number of samples per analysis block. The control
// loop drains whole blocks, so capture granularity is decoupled from
// the PortAudio callback size.
const BlockSize = 256

// Block is a fixed-size chunk of normalized mono samples in [-1, 1].
// N is the number of valid samples; a partial final block from a WAV
// file or an undersized callback has N < BlockSize.
type Block struct {
	Samples [BlockSize]float64
	N       int
}

// appendSamples copies int32 frames into blocks, normalizing to [-1, 1],
// and invokes emit for every full block. The returned Block holds any
// remainder to carry into the next call.
func appendSamples(carry Block, in []int32, stride int, emit func(Block)) Block {
	for i := 0; i < len(in); i += stride {
		carry.Samples[carry.N] = float64(in[i]) / 2147483648.0
		carry.N++
		if carry.N == BlockSize {
			emit(carry)
			carry = Block{}
		}
	}
	return carry
}
