// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVInfo describes a decoded file's format.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// WAVReader streams analysis blocks out of a WAV file, mono-mixed from
// channel 0 and normalized to [-1, 1]. Used by the offline analyze
// command.
type WAVReader struct {
	file  *os.File
	dec   *wav.Decoder
	info  WAVInfo
	scale float64
	buf   *goaudio.IntBuffer

	pending []int
	eof     bool
}

// OpenWAV opens and validates a WAV file. The format is available from
// Info before any blocks are read.
func OpenWAV(path string) (*WAVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}

	info := WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.BitDepth < 8 || info.BitDepth > 32 {
		file.Close()
		return nil, fmt.Errorf("unsupported bit depth %d", info.BitDepth)
	}

	return &WAVReader{
		file:  file,
		dec:   dec,
		info:  info,
		scale: float64(int64(1) << (info.BitDepth - 1)),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: info.Channels,
				SampleRate:  info.SampleRate,
			},
			Data: make([]int, BlockSize*info.Channels),
		},
	}, nil
}

// Info returns the file format.
func (r *WAVReader) Info() WAVInfo { return r.info }

// ReadBlock returns the next block. ok is false once the file is
// exhausted; the final block may be partial.
func (r *WAVReader) ReadBlock() (Block, bool, error) {
	var out Block
	for out.N < BlockSize {
		if len(r.pending) == 0 {
			if r.eof {
				break
			}
			n, err := r.dec.PCMBuffer(r.buf)
			if err != nil {
				return out, false, fmt.Errorf("failed to decode wav: %w", err)
			}
			if n == 0 {
				r.eof = true
				break
			}
			r.pending = r.buf.Data[:n]
		}
		out.Samples[out.N] = float64(r.pending[0]) / r.scale
		out.N++
		r.pending = r.pending[r.info.Channels:]
		if len(r.pending) < r.info.Channels {
			r.pending = nil
		}
	}
	return out, out.N > 0, nil
}

// Close releases the underlying file.
func (r *WAVReader) Close() error { return r.file.Close() }

// StreamWAV opens path and invokes emit for every block.
func StreamWAV(path string, emit func(Block)) (WAVInfo, error) {
	r, err := OpenWAV(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer r.Close()

	for {
		b, ok, err := r.ReadBlock()
		if err != nil {
			return r.info, err
		}
		if !ok {
			break
		}
		emit(b)
	}
	return r.info, nil
}
