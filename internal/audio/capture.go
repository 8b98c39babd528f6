// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/pkg/spsc"
)

// Capture owns a PortAudio input stream and feeds normalized sample
// blocks into an SPSC queue drained by the control loop. Multichannel
// devices are reduced to mono by taking channel 0.
type Capture struct {
	cfg   config.AudioConfig
	queue *spsc.Queue[Block]
	log   *logrus.Logger

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	channels     int
	carry        Block

	// Recording state and buffers.
	isRecording int32 // atomic flag, toggled from outside the callback
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *goaudio.IntBuffer
}

// NewCapture resolves the input device and prepares a capture pipeline
// that pushes into queue. The stream is not started until Start.
func NewCapture(cfg config.AudioConfig, queue *spsc.Queue[Block], log *logrus.Logger) (*Capture, error) {
	inputDevice, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if inputDevice.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", inputDevice.Name)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Capture{
		cfg:         cfg,
		queue:       queue,
		log:         log,
		inputDevice: inputDevice,
		channels:    1,
	}

	if cfg.LowLatency {
		c.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		c.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return c, nil
}

// Device returns the resolved input device.
func (c *Capture) Device() *portaudio.DeviceInfo {
	return c.inputDevice
}

// Start opens and starts the input stream.
func (c *Capture) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.channels,
			Device:   c.inputDevice,
			Latency:  c.inputLatency,
		},
		FramesPerBuffer: c.cfg.FramesPerBuffer,
		SampleRate:      c.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	c.inputStream = stream

	if err := c.inputStream.Start(); err != nil {
		c.inputStream.Close()
		c.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	return nil
}

// Stop stops and closes the input stream. Safe to call when not started.
func (c *Capture) Stop() error {
	if c.inputStream == nil {
		return nil
	}
	if err := c.inputStream.Stop(); err != nil {
		return err
	}
	if err := c.inputStream.Close(); err != nil {
		return err
	}
	c.inputStream = nil
	return nil
}

// processInputStream is the capture callback.
// Performance Critical:
// - Runs on a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - Queue pushes never block; overflow drops the incoming block
func (c *Capture) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.carry = appendSamples(c.carry, in, c.channels, func(b Block) {
		c.queue.Push(b)
	})

	if atomic.LoadInt32(&c.isRecording) == 1 && c.wavEncoder != nil {
		c.sampleBuf.Data = c.sampleBuf.Data[:len(in)]
		for i, sample := range in {
			c.sampleBuf.Data[i] = int(sample)
		}
		if err := c.wavEncoder.Write(c.sampleBuf); err != nil {
			c.log.WithError(err).Error("WAV write failed")
		}
	}
}

// StartRecording begins writing raw captured samples to a 32-bit WAV
// file alongside analysis. Returns an error if already recording.
func (c *Capture) StartRecording(filename string) error {
	if atomic.LoadInt32(&c.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	c.outputFile = file

	c.wavEncoder = wav.NewEncoder(file, int(c.cfg.SampleRate), 32, c.channels, 1)

	c.sampleBuf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: c.channels,
			SampleRate:  int(c.cfg.SampleRate),
		},
		Data: make([]int, c.cfg.FramesPerBuffer*c.channels),
	}

	atomic.StoreInt32(&c.isRecording, 1)
	return nil
}

// StopRecording finishes the WAV file. Safe to call when not recording.
func (c *Capture) StopRecording() error {
	if atomic.LoadInt32(&c.isRecording) == 0 {
		return nil
	}
	atomic.StoreInt32(&c.isRecording, 0)

	if c.wavEncoder != nil {
		if err := c.wavEncoder.Close(); err != nil {
			return err
		}
		c.wavEncoder = nil
	}
	if c.outputFile != nil {
		if err := c.outputFile.Close(); err != nil {
			return err
		}
		c.outputFile = nil
	}
	return nil
}

// Close stops recording and the input stream.
func (c *Capture) Close() error {
	if err := c.StopRecording(); err != nil {
		return err
	}
	return c.Stop()
}
