// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/internal/audio"
	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/internal/telemetry"
	"github.com/Jdubz/blinky-time-sub007/pkg/spsc"
)

// Engine owns the control loop. It implements telemetry.ParamStore so
// the command channel can read and replace the parameter set, and it
// stages resets requested from other goroutines.
type Engine struct {
	cfg      *config.Config
	queue    *spsc.Queue[audio.Block]
	streamer *telemetry.Streamer
	log      *logrus.Logger

	session *Session

	// Current is the set the loop runs with; pending (if non-nil) is
	// swapped in at the next tick boundary.
	current atomic.Pointer[config.Params]
	pending atomic.Pointer[config.Params]

	resetRequested atomic.Bool

	// Last observed totals for delta-reporting into counters.
	lastDrops   uint64
	lastInvalid uint64

	blocks []audio.Block // drain scratch, reused across ticks
}

// New builds an engine around an already-filled capture queue. The
// streamer may be nil for headless runs.
func New(cfg *config.Config, params config.Params, queue *spsc.Queue[audio.Block],
	streamer *telemetry.Streamer, log *logrus.Logger) *Engine {

	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		cfg:      cfg,
		queue:    queue,
		streamer: streamer,
		log:      log,
		session:  NewSession(params, cfg.Audio.SampleRate, log),
		blocks:   make([]audio.Block, 0, queue.Cap()),
	}
	p := params
	e.current.Store(&p)
	if streamer != nil {
		streamer.SetSession(e.session.ID)
	}
	return e
}

// SessionID returns the current session identifier.
func (e *Engine) SessionID() string { return e.session.ID }

// Current returns the parameter set the loop is running with.
func (e *Engine) Current() config.Params {
	return *e.current.Load()
}

// Apply validates a parameter set and stages it for the next tick.
// An invalid set is rejected as a whole and the running set is kept.
func (e *Engine) Apply(p config.Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("parameter set rejected: %w", err)
	}
	e.pending.Store(&p)
	return nil
}

// ResetDefaults stages the built-in defaults for the next tick.
func (e *Engine) ResetDefaults() {
	p := config.DefaultParams()
	e.pending.Store(&p)
}

// RequestReset asks the loop to discard all analysis state and start a
// fresh session at the next tick boundary.
func (e *Engine) RequestReset() {
	e.resetRequested.Store(true)
}

// Run drives the control loop until ctx is cancelled. Tick pacing comes
// from the configured tick rate; dt is measured, not assumed, and
// clamped so scheduler stalls cannot blow up the integrators.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / e.cfg.Audio.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.WithFields(logrus.Fields{
		"session":   e.session.ID,
		"tick_rate": e.cfg.Audio.TickRate,
	}).Info("control loop started")

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("control loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > config.MaxTickSeconds {
				dt = config.MaxTickSeconds
			}
			e.Tick(dt)
		}
	}
}

// Tick runs one control iteration: apply staged changes, drain capture,
// advance the analysis chain, publish telemetry and metrics. Exposed so
// the offline analyze command can pace the loop itself.
func (e *Engine) Tick(dt float64) telemetry.Frame {
	if p := e.pending.Swap(nil); p != nil {
		e.session.SetParams(*p)
		e.current.Store(p)
		e.log.Info("parameter set applied")
	}
	if e.resetRequested.Swap(false) {
		old := e.session.ID
		e.session = NewSession(e.Current(), e.cfg.Audio.SampleRate, e.log)
		e.lastInvalid = 0
		if e.streamer != nil {
			e.streamer.SetSession(e.session.ID)
		}
		if telemetry.SessionResets != nil {
			telemetry.SessionResets.Inc()
		}
		e.log.WithFields(logrus.Fields{
			"old_session": old,
			"new_session": e.session.ID,
		}).Info("session reset")
	}

	e.blocks = e.blocks[:0]
	for {
		b, ok := e.queue.Pop()
		if !ok {
			break
		}
		e.blocks = append(e.blocks, b)
	}

	frame := e.session.Tick(dt, e.blocks)
	e.report(frame)

	if e.streamer != nil {
		e.streamer.Publish(frame)
	}
	return frame
}

// report pushes the tick's observations into the Prometheus metrics.
// All metric handles are nil until InitMetrics runs; headless tests
// skip it.
func (e *Engine) report(f telemetry.Frame) {
	if telemetry.SamplesDropped != nil {
		if d := e.queue.Drops(); d > e.lastDrops {
			telemetry.SamplesDropped.Add(float64(d - e.lastDrops))
			e.lastDrops = d
		}
	}
	if telemetry.InvalidFrames != nil {
		if n := e.session.InvalidFrames(); n > e.lastInvalid {
			telemetry.InvalidFrames.Add(float64(n - e.lastInvalid))
			e.lastInvalid = n
		}
	}
	if telemetry.OnsetsDetected != nil && f.Onset.Impulse {
		telemetry.OnsetsDetected.WithLabelValues(f.Onset.Mode.String()).Inc()
	}
	if telemetry.BeatsEmitted != nil && f.Beat.BeatOccurred {
		kind := "real"
		if f.Beat.Beat.Virtual {
			kind = "virtual"
		}
		telemetry.BeatsEmitted.WithLabelValues(kind).Inc()
	}
	if telemetry.TrackerActive != nil {
		if f.Beat.Active() {
			telemetry.TrackerActive.Set(1)
		} else {
			telemetry.TrackerActive.Set(0)
		}
	}
	if telemetry.CurrentBPM != nil {
		telemetry.CurrentBPM.Set(f.Beat.BPM)
	}
}
