// SPDX-License-Identifier: MIT
package telemetry

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/internal/beat"
	"github.com/Jdubz/blinky-time-sub007/internal/level"
	"github.com/Jdubz/blinky-time-sub007/internal/onset"
	"github.com/Jdubz/blinky-time-sub007/internal/rhythm"
	"github.com/Jdubz/blinky-time-sub007/internal/transport"
)

// Stream cadences, matching the device console rates. The STATUS rate
// is configurable; RHYTHM is fixed.
const (
	rhythmPeriodMs    = 50   // ~20 Hz
	defStatusPeriodMs = 1000 // 1 Hz
	maxStatusHz       = 60
)

// Frame is one control tick's worth of analysis output handed to the
// streamer.
type Frame struct {
	NowMs      float64
	Level      level.State
	Onset      onset.Result
	Rhythm     rhythm.Estimate
	RhythmFill float64 // OSS buffer fill fraction [0,1]
	Beat       beat.Snapshot
}

// Streamer converts frames into telemetry records and hands them to a
// transport. Publish and SetSession belong to the control loop; the
// enable toggle is atomic because it arrives on command goroutines.
type Streamer struct {
	tr      transport.Transport
	log     *logrus.Logger
	session string

	enabled        atomic.Bool
	statusPeriodMs float64
	lastRhythmMs   float64
	lastStatusMs   float64
}

// NewStreamer creates a streamer publishing on tr. Streaming starts
// enabled; the "stream" command toggles it at runtime.
func NewStreamer(tr transport.Transport, log *logrus.Logger, session string) *Streamer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Streamer{tr: tr, log: log, session: session, statusPeriodMs: defStatusPeriodMs}
	s.enabled.Store(true)
	return s
}

// SetStatusRate sets the STATUS record cadence in records per second,
// clamped to [1, 60]. Called before the control loop starts.
func (s *Streamer) SetStatusRate(hz int) {
	if hz < 1 {
		hz = 1
	}
	if hz > maxStatusHz {
		hz = maxStatusHz
	}
	s.statusPeriodMs = 1000 / float64(hz)
}

// SetSession updates the session ID stamped on STATUS records. Called
// by the control loop when it starts a fresh session.
func (s *Streamer) SetSession(id string) { s.session = id }

// SetEnabled toggles record emission. Disabling does not close the
// transport; clients stay connected and silent.
func (s *Streamer) SetEnabled(on bool) { s.enabled.Store(on) }

// Enabled reports whether records are being emitted.
func (s *Streamer) Enabled() bool { return s.enabled.Load() }

// Publish emits the records due for this frame.
func (s *Streamer) Publish(f Frame) {
	if !s.enabled.Load() {
		return
	}

	if f.Onset.Impulse {
		s.send(TransientRecord{
			Type:     TypeTransient,
			TS:       f.NowMs,
			Strength: f.Onset.Strength,
			Mode:     f.Onset.Mode.String(),
			Level:    f.Level.LevelPostGain,
		})
	}

	if f.Beat.BeatOccurred {
		s.send(MusicRecord{
			Type:       TypeMusic,
			TS:         f.NowMs,
			Active:     f.Beat.Active(),
			BPM:        f.Beat.BPM,
			Phase:      f.Beat.Phase,
			Confidence: f.Beat.Confidence,
			BeatType:   f.Beat.Beat.Type,
			Virtual:    f.Beat.Beat.Virtual,
			BeatNumber: f.Beat.Beat.BeatNumber,
		})
	}

	if f.NowMs-s.lastRhythmMs >= rhythmPeriodMs {
		s.lastRhythmMs = f.NowMs
		s.send(RhythmRecord{
			Type:       TypeRhythm,
			TS:         f.NowMs,
			BPM:        f.Rhythm.BPM,
			Strength:   f.Rhythm.PeriodicityStrength,
			PeriodMs:   f.Rhythm.PeriodMs,
			Likelihood: f.Rhythm.BeatLikelihood,
			Phase:      f.Rhythm.Phase,
			BufferFill: f.RhythmFill,
		})
	}

	if f.NowMs-s.lastStatusMs >= s.statusPeriodMs {
		s.lastStatusMs = f.NowMs
		s.send(s.status(f))
	}
}

func (s *Streamer) status(f Frame) StatusRecord {
	return StatusRecord{
		Type:      TypeStatus,
		TS:        f.NowMs,
		Session:   s.session,
		Mode:      f.Onset.Mode.String(),
		HWGain:    f.Level.HardwareGain,
		Level:     f.Level.LevelPostGain,
		AvgLevel:  f.Level.TrackedRMS,
		PeakLevel: f.Level.PeakLevel,
		Active:    f.Beat.Active(),
	}
}

func (s *Streamer) send(rec any) {
	if err := s.tr.Send(rec); err != nil {
		s.log.WithError(err).Warn("telemetry send failed")
	}
}
