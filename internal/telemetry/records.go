// SPDX-License-Identifier: MIT
/*
Package telemetry turns per-tick analysis state into the JSON record
stream consumed by external tooling (web consoles, protocol bridges),
and exposes Prometheus counters for the long-running process.

Record cadence mirrors the device console: TRANSIENT and MUSIC records
are event-driven, RHYTHM records stream at a bounded rate, STATUS at
1 Hz.
*/
package telemetry

// Record type tags, one per JSON record variant.
const (
	TypeTransient = "TRANSIENT"
	TypeRhythm    = "RHYTHM"
	TypeMusic     = "MUSIC"
	TypeStatus    = "STATUS"
)

// TransientRecord is emitted once per detected onset.
type TransientRecord struct {
	Type     string  `json:"type"`
	TS       float64 `json:"ts"`
	Strength float64 `json:"strength"`
	Mode     string  `json:"mode"`
	Level    float64 `json:"level"`
}

// RhythmRecord carries the tempo analyzer's latest estimate.
type RhythmRecord struct {
	Type       string  `json:"type"`
	TS         float64 `json:"ts"`
	BPM        float64 `json:"bpm"`
	Strength   float64 `json:"strength"`
	PeriodMs   float64 `json:"periodMs"`
	Likelihood float64 `json:"likelihood"`
	Phase      float64 `json:"phase"`
	BufferFill float64 `json:"bufferFill"`
}

// MusicRecord is emitted once per beat event, real or virtual.
type MusicRecord struct {
	Type       string  `json:"type"`
	TS         float64 `json:"ts"`
	Active     bool    `json:"active"`
	BPM        float64 `json:"bpm"`
	Phase      float64 `json:"phase"`
	Confidence float64 `json:"confidence"`
	BeatType   string  `json:"beatType"`
	Virtual    bool    `json:"virtual"`
	BeatNumber uint64  `json:"beatNumber"`
}

// StatusRecord is the 1 Hz health summary.
type StatusRecord struct {
	Type      string  `json:"type"`
	TS        float64 `json:"ts"`
	Session   string  `json:"session"`
	Mode      string  `json:"mode"`
	HWGain    int     `json:"hwGain"`
	Level     float64 `json:"level"`
	AvgLevel  float64 `json:"avgLevel"`
	PeakLevel float64 `json:"peakLevel"`
	Active    bool    `json:"active"`
}
