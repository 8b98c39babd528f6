// SPDX-License-Identifier: MIT
/*
Package beat fuses discrete onset impulses with the rhythm analyzer's
continuous tempo estimate into an authoritative beat clock.

The tracker is a state machine: Inactive until repeated plausible
inter-onset intervals build confidence, Activating while a tempo
hypothesis firms up, Active once enough consistent intervals land. In
the Active state a proportional-integral phase-locked loop keeps the
beat phase glued to incoming onsets, and missed beats are bridged with
synthesized virtual events while the rhythm analyzer still reports
periodicity. A sustained dropout deactivates the tracker and resets
the session.

Every transition is a deterministic function of (state, onset, rhythm
estimate, dt); the tracker holds no global state and many can coexist.

Thread Safety: not safe for concurrent use. Owned by the control loop.
*/
package beat

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
	"github.com/Jdubz/blinky-time-sub007/internal/rhythm"
	"github.com/Jdubz/blinky-time-sub007/pkg/ringbuf"
)

// State is the tracker's position in the activation lifecycle.
type State uint8

const (
	StateInactive State = iota
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "inactive"
	}
}

// Event is a single beat, real or synthesized. Real events fire on the
// onset that confirmed the beat; predicted events fire on the phase
// wrap when no onset arrived in time.
type Event struct {
	TimestampMs float64
	BPM         float64
	Type        string // currently always "quarter"
	Virtual     bool   // synthesized from the tempo model, no real onset
	Predicted   bool   // emitted by the phase wrap rather than an onset
	BeatNumber  uint64
	HalfNote    bool // every second beat
	WholeNote   bool // every fourth beat
}

// Snapshot is the per-tick output read by telemetry and downstream
// consumers.
type Snapshot struct {
	State        State
	Locked       bool
	BPM          float64
	Phase        float64
	Confidence   float64
	BeatNumber   uint64
	MissedBeats  int
	BeatOccurred bool
	Beat         Event
}

// Active reports whether the tracker is in the Active state.
func (s Snapshot) Active() bool { return s.State == StateActive }

// IOI histogram constants: intervals between 300ms (200 BPM) and
// 1000ms (60 BPM) vote into 20ms bins, and a bin needs three votes
// before its tempo is believed.
const (
	histMinIOIMs = 300
	histMaxIOIMs = 1000
	histBinMs    = 20
	histBins     = (histMaxIOIMs - histMinIOIMs) / histBinMs
	histMinVotes = 3
)

const (
	// maxOnsetTimes bounds the timestamp ring feeding the histogram.
	maxOnsetTimes = 64
	// tempoEstimateEvery throttles the histogram recount.
	tempoEstimateEvery = 8
	// recentOnsetWindowMs is the lookback for the blend-weight onset
	// count.
	recentOnsetWindowMs = 4000
	// tempoSmoothingOld/New: 80% held estimate, 20% new detection.
	tempoSmoothingOld = 0.8
	tempoSmoothingNew = 0.2
	// bpmAgreementRatio: discrete and continuous estimates within 10%
	// of each other corroborate the tempo.
	bpmAgreementRatio = 0.10
	// defaultBPM seeds the free-running clock before any evidence.
	defaultBPM = 120
)

// Tracker owns all beat tracking state. Construct with New, drive with
// Update once per control tick.
type Tracker struct {
	params     config.BeatParams
	virtThresh float64 // beat likelihood needed for virtual events
	log        *logrus.Logger

	state  State
	locked bool

	clockMs  float64
	bpm      float64
	periodMs float64
	phase    float64

	errorIntegral float64
	confidence    float64
	stableBeats   int
	missedBeats   int
	beatNumber    uint64

	onsetTimes  *ringbuf.Ring[float64]
	onsetTotal  uint64
	lastOnsetMs float64
	haveOnset   bool

	histBPM float64 // last accepted histogram tempo, 0 when none

	// likelihoodHold peak-holds the analyzer's beat likelihood with a
	// per-period decay, so virtual beats survive the zero-OSS ticks
	// between real onsets.
	likelihoodHold float64

	// lastEmittedBeat is the highest beat index that has produced an
	// event, real or virtual. -1 before the first beat.
	lastEmittedBeat int64

	// A wrap without a confirming onset arms a pending virtual beat;
	// it fires once the phase passes the error tolerance, giving a
	// slightly late real onset the chance to claim the beat first.
	pendingVirtual bool
	pendingBeat    int64
	pendingWrapMs  float64
}

// New creates a tracker. The rhythm likelihood threshold is taken from
// the same parameter set so virtual-beat gating stays consistent with
// the analyzer's tuning.
func New(p config.Params, log *logrus.Logger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Tracker{
		params:     p.Beat,
		virtThresh: p.Rhythm.BeatLikelihoodThreshold,
		log:        log,
		onsetTimes: ringbuf.New[float64](maxOnsetTimes),
	}
	t.Reset()
	return t
}

// SetParams swaps the parameter set. Called between ticks only.
func (t *Tracker) SetParams(p config.Params) {
	t.params = p.Beat
	t.virtThresh = p.Rhythm.BeatLikelihoodThreshold
}

// Reset returns the tracker to power-on defaults.
func (t *Tracker) Reset() {
	t.state = StateInactive
	t.locked = false
	t.clockMs = 0
	t.bpm = defaultBPM
	t.periodMs = 60000.0 / defaultBPM
	t.phase = 0
	t.errorIntegral = 0
	t.confidence = 0
	t.stableBeats = 0
	t.missedBeats = 0
	t.beatNumber = 0
	t.onsetTimes.Reset()
	t.onsetTotal = 0
	t.lastOnsetMs = 0
	t.haveOnset = false
	t.histBPM = 0
	t.likelihoodHold = 0
	t.lastEmittedBeat = -1
	t.pendingVirtual = false
}

// Update advances the tracker one control tick. impulse and strength
// are this tick's ensemble output; est is the rhythm analyzer's
// current snapshot. Returns the post-tick state including at most one
// beat event.
func (t *Tracker) Update(dt float64, impulse bool, strength float64, est rhythm.Estimate) Snapshot {
	snap := Snapshot{}
	if dt <= 0 {
		return t.snapshot(snap)
	}
	t.clockMs += dt * 1000

	// Peak-hold the likelihood so the virtual-beat gate sees the most
	// recent peak, not the zero between onsets.
	decay := math.Exp(-dt * 1000 / (4 * t.periodMs))
	t.likelihoodHold *= decay
	if est.BeatLikelihood > t.likelihoodHold {
		t.likelihoodHold = est.BeatLikelihood
	}

	if impulse {
		t.onOnset(strength, est, &snap)
	}

	t.advancePhase(dt, &snap)
	t.checkTransitions()

	return t.snapshot(snap)
}

func (t *Tracker) snapshot(snap Snapshot) Snapshot {
	snap.State = t.state
	snap.Locked = t.locked
	snap.BPM = t.bpm
	snap.Phase = t.phase
	snap.Confidence = t.confidence
	snap.BeatNumber = t.beatNumber
	snap.MissedBeats = t.missedBeats
	return snap
}

// onOnset folds a real onset into the tempo and phase estimates.
func (t *Tracker) onOnset(strength float64, est rhythm.Estimate, snap *Snapshot) {
	now := t.clockMs
	t.onsetTimes.Push(now)
	t.onsetTotal++

	ioi := 0.0
	if t.haveOnset {
		ioi = now - t.lastOnsetMs
	}
	t.lastOnsetMs = now
	t.haveOnset = true

	switch t.state {
	case StateActive:
		t.trackOnset(snap)
	default:
		t.acquireOnset(ioi)
	}

	// Throttled discrete tempo estimate, blended against the
	// analyzer's continuous one.
	if t.onsetTotal%tempoEstimateEvery == 0 {
		t.estimateTempo(est)
	}
}

// acquireOnset builds the tempo hypothesis while not yet Active:
// consistency is judged on raw inter-onset intervals, and the phase is
// snapped to each onset so activation starts aligned.
func (t *Tracker) acquireOnset(ioi float64) {
	if ioi <= 0 {
		// First onset of the session seeds the phase only.
		t.phase = 0
		return
	}
	minIOI := 60000 / t.params.BPMMax
	maxIOI := 60000 / t.params.BPMMin
	if ioi < minIOI || ioi > maxIOI {
		// Sub-beat fills and long gaps carry no tempo vote.
		return
	}

	if math.Abs(ioi-t.periodMs) <= t.params.PhaseErrorTolerance*t.periodMs {
		t.periodMs = t.periodMs*tempoSmoothingOld + ioi*tempoSmoothingNew
		t.confidence = math.Min(t.confidence+t.params.ConfidenceIncrement, 1)
		t.stableBeats++
		if t.state == StateInactive {
			t.state = StateActivating
		}
	} else {
		// New hypothesis: reseed the period from this interval.
		t.periodMs = ioi
		t.confidence = math.Max(t.confidence-t.params.ConfidenceDecrement, 0)
		t.stableBeats = 1
	}
	t.bpm = t.clampBPM(60000 / t.periodMs)
	t.periodMs = 60000 / t.bpm
	t.phase = 0
}

// trackOnset is the Active-state PLL step: a phase error inside the
// tolerance nudges phase and period, outside it only costs confidence.
func (t *Tracker) trackOnset(snap *Snapshot) {
	// Error relative to the nearest predicted beat, in [-0.5, 0.5).
	err := t.phase
	if err > 0.5 {
		err -= 1
	}

	if math.Abs(err) <= t.params.PhaseErrorTolerance {
		// A positive error means the onset arrived after the predicted
		// beat, so the period is too short. Lengthen it and pull the
		// phase back toward the onset.
		t.errorIntegral += err
		correction := t.params.PLLKp*err + t.params.PLLKi*t.errorIntegral
		t.setPeriod(t.periodMs * (1 + correction))
		t.phase -= t.params.PLLKp * err
		if t.phase < 0 {
			t.phase += 1
		}

		t.stableBeats++
		t.missedBeats = 0
		t.confidence = math.Min(t.confidence+t.params.ConfidenceIncrement, 1)

		// A late onset (err >= 0) confirms the beat whose wrap just
		// passed; an early one claims the upcoming beat.
		claim := int64(t.beatNumber)
		if err < 0 {
			claim++
		}
		if claim > t.lastEmittedBeat {
			t.lastEmittedBeat = claim
			t.emit(snap, claim, Event{
				TimestampMs: t.clockMs,
				BPM:         t.bpm,
				Type:        "quarter",
			})
		}
	} else {
		t.confidence = math.Max(t.confidence-t.params.ConfidenceDecrement, 0)
	}
}

// advancePhase runs the free-running beat clock and handles the wrap:
// beat bookkeeping, missed-beat counting, and virtual events.
func (t *Tracker) advancePhase(dt float64, snap *Snapshot) {
	if t.state == StateInactive {
		return
	}
	t.phase += dt * 1000 / t.periodMs

	// An armed virtual beat fires once the phase clears the error
	// tolerance without a real onset claiming the beat first.
	if t.pendingVirtual && t.phase >= t.params.PhaseErrorTolerance {
		t.pendingVirtual = false
		if t.lastEmittedBeat < t.pendingBeat &&
			t.state == StateActive && t.likelihoodHold > t.virtThresh {
			t.lastEmittedBeat = t.pendingBeat
			t.emit(snap, t.pendingBeat, Event{
				TimestampMs: t.pendingWrapMs,
				BPM:         t.bpm,
				Type:        "quarter",
				Virtual:     true,
				Predicted:   true,
			})
		}
	}

	if t.phase < 1 {
		return
	}
	t.phase -= 1
	t.beatNumber++

	if t.lastEmittedBeat >= int64(t.beatNumber) {
		return
	}

	// The predicted beat passed without a confirming onset. A short
	// gap inside the miss tolerance is forgiven; beyond it the beat
	// counts as missed.
	if !t.haveOnset || t.clockMs-t.lastOnsetMs > t.params.MissedBeatTolerance*t.periodMs {
		t.missedBeats++
		t.confidence = math.Max(t.confidence-t.params.ConfidenceDecrement, 0)
	}

	t.pendingVirtual = true
	t.pendingBeat = int64(t.beatNumber)
	t.pendingWrapMs = t.clockMs
}

func (t *Tracker) emit(snap *Snapshot, beat int64, ev Event) {
	ev.BeatNumber = uint64(beat)
	ev.HalfNote = beat%2 == 0
	ev.WholeNote = beat%4 == 0
	snap.BeatOccurred = true
	snap.Beat = ev
}

// checkTransitions applies the activation and deactivation rules after
// the tick's evidence has been folded in.
func (t *Tracker) checkTransitions() {
	switch t.state {
	case StateActivating:
		if t.confidence >= t.params.ActivationThreshold &&
			t.stableBeats >= t.params.MinBeatsToActivate {
			t.state = StateActive
			t.missedBeats = 0
			t.log.WithFields(logrus.Fields{
				"bpm":        t.bpm,
				"confidence": t.confidence,
			}).Info("beat tracking active")
		} else if t.confidence <= 0 {
			t.state = StateInactive
			t.stableBeats = 0
		}

	case StateActive:
		t.updateLock()
		if t.missedBeats > t.params.MaxMissedBeats {
			t.log.WithFields(logrus.Fields{
				"missed_beats": t.missedBeats,
				"bpm":          t.bpm,
			}).Info("beat tracking lost, deactivating")
			t.deactivate()
		}
	}
}

// updateLock applies the BPM lock hysteresis.
func (t *Tracker) updateLock() {
	if !t.locked && t.confidence >= t.params.BPMLockThreshold {
		t.locked = true
	} else if t.locked && t.confidence < t.params.BPMUnlockThreshold {
		t.locked = false
	}
}

// deactivate returns to Inactive, clearing the session the way a
// power cycle would. Loss of lock is a normal transition, not an
// error.
func (t *Tracker) deactivate() {
	t.state = StateInactive
	t.locked = false
	t.confidence = 0
	t.stableBeats = 0
	t.missedBeats = 0
	t.errorIntegral = 0
	t.phase = 0
	t.bpm = defaultBPM
	t.periodMs = 60000.0 / defaultBPM
	t.histBPM = 0
	t.onsetTimes.Reset()
	t.haveOnset = false
	t.lastEmittedBeat = -1
	t.pendingVirtual = false
}

// estimateTempo recounts the IOI histogram and blends the winning bin
// against the analyzer's autocorrelation estimate. The blend weight
// follows the evidence: plenty of recent onsets favors the discrete
// estimate, a sparse stretch favors the continuous one.
func (t *Tracker) estimateTempo(est rhythm.Estimate) {
	discrete, ok := t.histogramBPM()
	if !ok {
		return
	}
	t.histBPM = discrete

	target := discrete
	if est.Valid {
		w := blendWeight(t.recentOnsetCount())
		target = discrete*(1-w) + est.BPM*w

		if math.Abs(discrete-est.BPM) < discrete*bpmAgreementRatio {
			// Two independent estimators agree: strong corroboration.
			t.confidence = math.Min(t.confidence+2*t.params.ConfidenceIncrement, 1)
		}
	}

	blended := t.bpm*tempoSmoothingOld + target*tempoSmoothingNew
	t.setPeriod(60000 / blended)
}

// blendWeight is the autocorrelation share of the tempo blend for a
// given recent onset count: 0.7 at 4 or fewer onsets, 0.3 at 8 or
// more, linear in between.
func blendWeight(recent int) float64 {
	switch {
	case recent >= 8:
		return 0.3
	case recent <= 4:
		return 0.7
	}
	return 0.7 - 0.1*float64(recent-4)
}

// setPeriod applies a period change through the BPM clamp and, when
// locked, the per-update rate limit.
func (t *Tracker) setPeriod(periodMs float64) {
	newBPM := t.clampBPM(60000 / periodMs)
	if t.locked {
		delta := newBPM - t.bpm
		if delta > t.params.BPMLockMaxChange {
			delta = t.params.BPMLockMaxChange
		} else if delta < -t.params.BPMLockMaxChange {
			delta = -t.params.BPMLockMaxChange
		}
		newBPM = t.bpm + delta
	}
	t.bpm = newBPM
	t.periodMs = 60000 / t.bpm
}

func (t *Tracker) clampBPM(bpm float64) float64 {
	return math.Min(math.Max(bpm, t.params.BPMMin), t.params.BPMMax)
}

// histogramBPM finds the dominant inter-onset interval over the
// timestamp ring.
func (t *Tracker) histogramBPM() (float64, bool) {
	n := t.onsetTimes.Len()
	if n < 4 {
		return 0, false
	}

	var hist [histBins]int
	// At(0) is newest; walk pairs oldest-to-newest.
	for i := n - 1; i >= 1; i-- {
		ioi := t.onsetTimes.At(i-1) - t.onsetTimes.At(i)
		if ioi < histMinIOIMs || ioi > histMaxIOIMs {
			continue
		}
		bin := int((ioi - histMinIOIMs) / histBinMs)
		if bin >= histBins {
			bin = histBins - 1
		}
		hist[bin]++
	}

	peakBin, peakVotes := 0, 0
	for i, v := range hist {
		if v > peakVotes {
			peakVotes = v
			peakBin = i
		}
	}
	if peakVotes < histMinVotes {
		return 0, false
	}

	ioi := float64(histMinIOIMs + peakBin*histBinMs + histBinMs/2)
	return 60000 / ioi, true
}

// recentOnsetCount counts onsets inside the blend lookback window.
func (t *Tracker) recentOnsetCount() int {
	cutoff := t.clockMs - recentOnsetWindowMs
	count := 0
	for i := 0; i < t.onsetTimes.Len(); i++ {
		if t.onsetTimes.At(i) < cutoff {
			break
		}
		count++
	}
	return count
}
