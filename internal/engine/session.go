// SPDX-License-Identifier: MIT
/*
Package engine runs the control loop: it drains captured sample blocks,
drives the level, onset, rhythm, and beat stages once per tick, and
publishes the resulting telemetry frame.

The loop owns all analysis state. Parameter updates and session resets
arriving from other goroutines are staged atomically and applied at
tick boundaries, so the analysis chain itself is single-threaded.
*/
package engine

import (
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/internal/audio"
	"github.com/Jdubz/blinky-time-sub007/internal/beat"
	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/internal/level"
	"github.com/Jdubz/blinky-time-sub007/internal/onset"
	"github.com/Jdubz/blinky-time-sub007/internal/rhythm"
	"github.com/Jdubz/blinky-time-sub007/internal/telemetry"
)

// Session is one continuous run of the analysis chain. A reset swaps in
// a fresh session with a new ID while keeping the current parameters.
type Session struct {
	ID string

	level  *level.Tracker
	onsets *onset.Ensemble
	rhythm *rhythm.Analyzer
	beats  *beat.Tracker

	clockMs       float64
	lastRaw       float64
	invalidFrames uint64
}

// NewSession builds the analysis chain for the given parameter set.
func NewSession(p config.Params, sampleRate float64, log *logrus.Logger) *Session {
	return &Session{
		ID:     uuid.NewString(),
		level:  level.New(p.AGC),
		onsets: onset.New(p.Onset, sampleRate),
		rhythm: rhythm.New(p.Rhythm),
		beats:  beat.New(p, log),
	}
}

// SetParams applies a new parameter set to every stage. Analysis state
// carries over; only tunables change.
func (s *Session) SetParams(p config.Params) {
	s.level.SetParams(p.AGC)
	s.onsets.SetParams(p.Onset)
	s.rhythm.SetParams(p.Rhythm)
	s.beats.SetParams(p)
}

// Tick advances the chain by dt seconds over the blocks drained this
// tick and returns the telemetry frame. An empty drain reuses the last
// raw level so capture jitter does not read as silence.
func (s *Session) Tick(dt float64, blocks []audio.Block) telemetry.Frame {
	s.clockMs += dt * 1000

	raw := s.lastRaw
	if len(blocks) > 0 {
		var sumSq float64
		var n int
		for i := range blocks {
			b := &blocks[i]
			s.onsets.PushSamples(b.Samples[:b.N])
			for _, sample := range b.Samples[:b.N] {
				sumSq += sample * sample
			}
			n += b.N
		}
		raw = math.Sqrt(sumSq / float64(n))
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 || raw > 1 {
		s.invalidFrames++
		raw = s.lastRaw
	}
	s.lastRaw = raw

	lvl := s.level.Update(raw, dt)
	res := s.onsets.Detect(lvl.LevelPostGain, dt)

	if res.Impulse {
		s.rhythm.Push(res.Strength)
	} else {
		s.rhythm.Push(0)
	}
	s.rhythm.Update(dt)
	est := s.rhythm.Estimate()

	snap := s.beats.Update(dt, res.Impulse, res.Strength, est)

	return telemetry.Frame{
		NowMs:      s.clockMs,
		Level:      lvl,
		Onset:      res,
		Rhythm:     est,
		RhythmFill: s.rhythm.Fill(),
		Beat:       snap,
	}
}

// InvalidFrames returns the count of rejected raw levels this session.
func (s *Session) InvalidFrames() uint64 { return s.invalidFrames }
