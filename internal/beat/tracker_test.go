// SPDX-License-Identifier: MIT
package beat

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/internal/rhythm"
)

const (
	testDt       = 1.0 / 60
	ticksPerBeat = 30 // 500ms at 60 ticks/sec = 120 BPM
	beatPeriodMs = 500.0
)

func newTestTracker() *Tracker {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(config.DefaultParams(), l)
}

// driveClicks advances the tracker through n ticks, firing an onset on
// every tick where onsetAt returns true. Returns all snapshots.
func driveClicks(tr *Tracker, n int, est rhythm.Estimate, onsetAt func(tick int) bool) []Snapshot {
	snaps := make([]Snapshot, 0, n)
	for i := 1; i <= n; i++ {
		snaps = append(snaps, tr.Update(testDt, onsetAt(i), 0.8, est))
	}
	return snaps
}

func everyBeat(tick int) bool { return tick%ticksPerBeat == 0 }

func TestActivationRequiresMinimumBeats(t *testing.T) {
	tr := newTestTracker()
	minBeats := tr.params.MinBeatsToActivate

	// minBeats-1 consistent intervals means minBeats onsets. Run well
	// past them with silence after; the tracker must never activate.
	onsets := 0
	snaps := driveClicks(tr, 20*ticksPerBeat, rhythm.Estimate{}, func(tick int) bool {
		if everyBeat(tick) && onsets < minBeats {
			onsets++
			return true
		}
		return false
	})
	for _, s := range snaps {
		require.NotEqual(t, StateActive, s.State, "activated on too few intervals")
	}
}

func TestActivationOnMinimumBeats(t *testing.T) {
	tr := newTestTracker()
	minBeats := tr.params.MinBeatsToActivate

	// minBeats consistent intervals means minBeats+1 onsets. The
	// transition must land on the tick carrying the final onset.
	var activatedTick int
	onsets := 0
	for i := 1; i <= 20*ticksPerBeat; i++ {
		impulse := everyBeat(i) && onsets < minBeats+1
		if impulse {
			onsets++
		}
		s := tr.Update(testDt, impulse, 0.8, rhythm.Estimate{})
		if s.Active() && activatedTick == 0 {
			activatedTick = i
		}
	}
	require.NotZero(t, activatedTick, "never activated")
	assert.Equal(t, (minBeats+1)*ticksPerBeat, activatedTick,
		"activation should land on the tick of the final consistent onset")
}

func TestEndToEndClickTrack(t *testing.T) {
	tr := newTestTracker()

	// 10 seconds of 120 BPM clicks.
	var activatedBeat int
	realEvents := 0
	var last Snapshot
	for i := 1; i <= 600; i++ {
		s := tr.Update(testDt, everyBeat(i), 0.9, rhythm.Estimate{})
		if s.Active() && activatedBeat == 0 {
			activatedBeat = i / ticksPerBeat
		}
		if s.BeatOccurred && !s.Beat.Virtual {
			realEvents++
		}
		last = s
	}
	require.NotZero(t, activatedBeat, "never activated on a steady click track")
	assert.GreaterOrEqual(t, activatedBeat, 4)
	assert.LessOrEqual(t, activatedBeat, 6)
	assert.InDelta(t, 120, last.BPM, 2.0)
	// One real event per beat once active.
	assert.GreaterOrEqual(t, realEvents, 13)

	// Four bars of silence. The tracker should coast for a while, then
	// deactivate with its session state cleared.
	stillActiveAt1s := false
	for i := 1; i <= 480; i++ {
		s := tr.Update(testDt, false, 0, rhythm.Estimate{})
		if i == 60 {
			stillActiveAt1s = s.Active()
		}
		last = s
	}
	assert.True(t, stillActiveAt1s, "deactivated too eagerly after onsets stopped")
	assert.Equal(t, StateInactive, last.State)
	assert.Zero(t, last.Confidence)
	assert.InDelta(t, defaultBPM, last.BPM, 0.001)
}

func TestVirtualBeatsBridgeMissedOnsets(t *testing.T) {
	tr := newTestTracker()

	// Activate on a full click track first.
	driveClicks(tr, 8*ticksPerBeat, rhythm.Estimate{}, everyBeat)
	require.Equal(t, StateActive, tr.state)

	// Suppress every other onset while the rhythm analyzer still
	// reports strong periodicity.
	est := rhythm.Estimate{
		Valid:               true,
		BPM:                 120,
		PeriodMs:            beatPeriodMs,
		PeriodicityStrength: 0.9,
		BeatLikelihood:      0.9,
	}
	virtualTimes := []float64{}
	for i := 8*ticksPerBeat + 1; i <= 24*ticksPerBeat; i++ {
		impulse := i%(2*ticksPerBeat) == 0
		s := tr.Update(testDt, impulse, 0.8, est)
		require.Equal(t, StateActive, s.State, "lost activation at tick %d", i)
		if s.BeatOccurred && s.Beat.Virtual {
			virtualTimes = append(virtualTimes, s.Beat.TimestampMs)
		}
	}
	require.GreaterOrEqual(t, len(virtualTimes), 5,
		"suppressed beats should be bridged by virtual events")

	// Each virtual beat must land near the true beat grid.
	tol := tr.params.PhaseErrorTolerance * beatPeriodMs
	for _, ts := range virtualTimes {
		offGrid := math.Mod(ts, beatPeriodMs)
		if offGrid > beatPeriodMs/2 {
			offGrid = beatPeriodMs - offGrid
		}
		assert.LessOrEqual(t, offGrid, tol, "virtual beat at %.1fms off grid", ts)
	}
}

func TestVirtualBeatsNeedPeriodicityEvidence(t *testing.T) {
	tr := newTestTracker()
	driveClicks(tr, 8*ticksPerBeat, rhythm.Estimate{}, everyBeat)
	require.Equal(t, StateActive, tr.state)

	// Silence with no analyzer support: no virtual events, ever.
	for i := 0; i < 480; i++ {
		s := tr.Update(testDt, false, 0, rhythm.Estimate{})
		require.False(t, s.BeatOccurred && s.Beat.Virtual)
	}
}

func TestBPMLockEngagesAndReleases(t *testing.T) {
	tr := newTestTracker()

	sawLocked := false
	driveClicks(tr, 12*ticksPerBeat, rhythm.Estimate{}, everyBeat)
	if tr.locked {
		sawLocked = true
	}
	require.True(t, sawLocked, "steady clicks should engage the BPM lock")

	// Silence bleeds confidence through missed beats; the lock must
	// release before the tracker deactivates.
	unlockedWhileActive := false
	for i := 0; i < 600; i++ {
		s := tr.Update(testDt, false, 0, rhythm.Estimate{})
		if s.Active() && !s.Locked {
			unlockedWhileActive = true
		}
		if s.State == StateInactive {
			break
		}
	}
	assert.True(t, unlockedWhileActive)
}

func TestLockedBPMRateLimited(t *testing.T) {
	tr := newTestTracker()
	tr.locked = true
	tr.bpm = 120
	tr.periodMs = 500

	// A 20 BPM jump upward is limited to the per-update maximum.
	tr.setPeriod(60000.0 / 140)
	assert.InDelta(t, 120+tr.params.BPMLockMaxChange, tr.bpm, 1e-9)

	// Same limit downward.
	tr.setPeriod(60000.0 / 100)
	assert.InDelta(t, 120, tr.bpm, 1e-9)
}

func TestHistogramBPM(t *testing.T) {
	tr := newTestTracker()

	// Three timestamps give two intervals, below the vote minimum.
	for _, ts := range []float64{0, 500, 1000} {
		tr.onsetTimes.Push(ts)
	}
	_, ok := tr.histogramBPM()
	assert.False(t, ok)

	tr.onsetTimes.Reset()
	for _, ts := range []float64{0, 500, 1000, 1500, 2000} {
		tr.onsetTimes.Push(ts)
	}
	bpm, ok := tr.histogramBPM()
	require.True(t, ok)
	assert.InDelta(t, 120, bpm, 3.0)
}

func TestBlendWeightLinearRamp(t *testing.T) {
	cases := []struct {
		recent int
		want   float64
	}{
		{0, 0.7}, {4, 0.7}, {5, 0.6}, {6, 0.5}, {7, 0.4}, {8, 0.3}, {20, 0.3},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, blendWeight(c.recent), 1e-9,
			"weight at %d recent onsets", c.recent)
	}
}

func TestZeroDtIsNoOp(t *testing.T) {
	tr := newTestTracker()
	driveClicks(tr, 6*ticksPerBeat, rhythm.Estimate{}, everyBeat)
	before := tr.snapshot(Snapshot{})

	after := tr.Update(0, true, 1.0, rhythm.Estimate{})
	assert.Equal(t, before, after)
}

func TestResetClearsSession(t *testing.T) {
	tr := newTestTracker()
	driveClicks(tr, 10*ticksPerBeat, rhythm.Estimate{}, everyBeat)
	require.Equal(t, StateActive, tr.state)

	tr.Reset()
	assert.Equal(t, StateInactive, tr.state)
	assert.Zero(t, tr.confidence)
	assert.Zero(t, tr.beatNumber)
	assert.Zero(t, tr.onsetTimes.Len())
	assert.InDelta(t, defaultBPM, tr.bpm, 0.001)
}

func BenchmarkUpdate(b *testing.B) {
	tr := newTestTracker()
	est := rhythm.Estimate{Valid: true, BPM: 120, PeriodMs: 500, PeriodicityStrength: 0.8}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Update(testDt, i%30 == 0, 0.8, est)
	}
}
