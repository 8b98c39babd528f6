// SPDX-License-Identifier: MIT
package config

// DetectionMode selects the onset detection strategy.
type DetectionMode uint8

const (
	ModeDrummer DetectionMode = iota
	ModeBassBand
	ModeHFC
	ModeSpectralFlux
	ModeHybrid
)

func (m DetectionMode) String() string {
	switch m {
	case ModeDrummer:
		return "drummer"
	case ModeBassBand:
		return "bass"
	case ModeHFC:
		return "hfc"
	case ModeSpectralFlux:
		return "flux"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Params is the full tunable parameter set consumed by the analysis
// chain. It is loaded at startup, validated as a whole (an out-of-range
// field rejects the entire set), and treated as immutable for the
// duration of a control tick. Runtime changes swap the whole struct
// between ticks.
type Params struct {
	AGC    AGCParams    `yaml:"agc"`
	Onset  OnsetParams  `yaml:"onset"`
	Rhythm RhythmParams `yaml:"rhythm"`
	Beat   BeatParams   `yaml:"beat"`
}

// AGCParams tunes the two-stage gain control.
type AGCParams struct {
	HWTarget         float64 `yaml:"hw_target"`             // raw input target level [0.05, 0.9]
	HWCalibPeriodMs  int     `yaml:"hw_calib_period_ms"`    // hardware gain step cadence
	PeakTau          float64 `yaml:"peak_tau"`              // attack time constant, seconds [0.5, 10]
	ReleaseTau       float64 `yaml:"release_tau"`           // release time constant, seconds [1, 30]
	FastAGCEnabled   bool    `yaml:"fast_agc_enabled"`      // shortened loop when hw gain pinned
	FastAGCThreshold float64 `yaml:"fast_agc_threshold"`    // raw level below which fast mode engages [0.01, 0.5]
	FastAGCPeriodMs  int     `yaml:"fast_agc_period_ms"`    // [500, 30000]
	FastAGCTau       float64 `yaml:"fast_agc_tracking_tau"` // seconds [0.5, 30]
}

// OnsetParams tunes the onset detector ensemble.
type OnsetParams struct {
	Mode               DetectionMode `yaml:"detection_mode"`      // 0=drummer 1=bass 2=hfc 3=flux 4=hybrid
	TransientThreshold float64       `yaml:"transient_threshold"` // multiples of recent average [1.5, 10]
	AttackMultiplier   float64       `yaml:"attack_multiplier"`   // required sudden rise ratio [1.1, 2]
	AverageTau         float64       `yaml:"average_tau"`         // baseline EMA seconds [0.1, 5]
	CooldownMs         int           `yaml:"cooldown_ms"`         // min inter-onset spacing [20, 500]

	BassFreq   float64 `yaml:"bass_freq"`   // low-pass cutoff Hz [40, 200]
	BassQ      float64 `yaml:"bass_q"`      // filter Q [0.5, 3]
	BassThresh float64 `yaml:"bass_thresh"` // [1.5, 10]

	HFCWeight float64 `yaml:"hfc_weight"` // high-bin weighting [0.5, 5]
	HFCThresh float64 `yaml:"hfc_thresh"` // [1.5, 10]

	FluxThresh float64 `yaml:"flux_thresh"` // [1, 10]
	FluxBins   int     `yaml:"flux_bins"`   // FFT bins analyzed [4, 128]

	HybridFluxWeight float64 `yaml:"hybrid_flux_weight"` // flux-only weight [0.1, 1]
	HybridDrumWeight float64 `yaml:"hybrid_drum_weight"` // drummer-only weight [0.1, 1]
	HybridBothBoost  float64 `yaml:"hybrid_both_boost"`  // both-agree boost [1, 2]

	AdaptiveEnabled  bool    `yaml:"adaptive_threshold_enabled"`
	AdaptiveMinRaw   float64 `yaml:"adaptive_min_raw"`   // raw level where scaling starts [0.01, 0.5]
	AdaptiveMaxScale float64 `yaml:"adaptive_max_scale"` // minimum threshold scale [0.3, 1]
	AdaptiveBlendTau float64 `yaml:"adaptive_blend_tau"` // seconds [1, 15]
}

// RhythmParams tunes the autocorrelation tempo analyzer.
type RhythmParams struct {
	MinBPM                  float64 `yaml:"min_bpm"`                     // [40, 120]
	MaxBPM                  float64 `yaml:"max_bpm"`                     // [120, 300]
	AutocorrIntervalMs      int     `yaml:"autocorr_update_interval_ms"` // [500, 2000]
	BeatLikelihoodThreshold float64 `yaml:"beat_likelihood_threshold"`   // [0.5, 0.9]
	MinPeriodicityStrength  float64 `yaml:"min_periodicity_strength"`    // [0.3, 0.8]
}

// BeatParams tunes the beat tracker state machine.
type BeatParams struct {
	ActivationThreshold float64 `yaml:"activation_threshold"`  // [0, 1]
	MinBeatsToActivate  int     `yaml:"min_beats_to_activate"` // [2, 16]
	MaxMissedBeats      int     `yaml:"max_missed_beats"`      // [4, 16]

	PLLKp float64 `yaml:"pll_kp"` // [0.01, 0.5]
	PLLKi float64 `yaml:"pll_ki"` // [0.001, 0.1]

	ConfidenceIncrement float64 `yaml:"confidence_increment"` // [0.05, 0.2]
	ConfidenceDecrement float64 `yaml:"confidence_decrement"` // [0.05, 0.2]

	PhaseErrorTolerance float64 `yaml:"phase_error_tolerance"` // fraction of period [0.1, 0.5]
	MissedBeatTolerance float64 `yaml:"missed_beat_tolerance"` // multiples of period [1, 3]

	BPMMin float64 `yaml:"bpm_min"` // [40, 120]
	BPMMax float64 `yaml:"bpm_max"` // [120, 240], must exceed BPMMin

	BPMLockThreshold   float64 `yaml:"bpm_lock_threshold"`   // confidence to engage lock [0, 1]
	BPMLockMaxChange   float64 `yaml:"bpm_lock_max_change"`  // max BPM delta per update while locked
	BPMUnlockThreshold float64 `yaml:"bpm_unlock_threshold"` // confidence to release lock, < lock threshold
}

// DefaultParams returns the production parameter set. Values match the
// tuned firmware defaults where the hardware had an equivalent knob.
func DefaultParams() Params {
	return Params{
		AGC: AGCParams{
			HWTarget:         0.35,
			HWCalibPeriodMs:  180000,
			PeakTau:          2.0,
			ReleaseTau:       10.0,
			FastAGCEnabled:   true,
			FastAGCThreshold: 0.15,
			FastAGCPeriodMs:  5000,
			FastAGCTau:       5.0,
		},
		Onset: OnsetParams{
			Mode:               ModeHybrid, // best ensemble F1 in calibration
			TransientThreshold: 2.0,
			AttackMultiplier:   1.2,
			AverageTau:         0.8,
			CooldownMs:         80,
			BassFreq:           120,
			BassQ:              1.0,
			BassThresh:         2.5,
			HFCWeight:          2.0,
			HFCThresh:          2.5,
			FluxThresh:         2.8,
			FluxBins:           64,
			HybridFluxWeight:   0.5,
			HybridDrumWeight:   0.5,
			HybridBothBoost:    1.2,
			AdaptiveEnabled:    false,
			AdaptiveMinRaw:     0.1,
			AdaptiveMaxScale:   0.6,
			AdaptiveBlendTau:   5.0,
		},
		Rhythm: RhythmParams{
			MinBPM:                  60,
			MaxBPM:                  200,
			AutocorrIntervalMs:      1000,
			BeatLikelihoodThreshold: 0.7,
			MinPeriodicityStrength:  0.5,
		},
		Beat: BeatParams{
			ActivationThreshold: 0.6,
			MinBeatsToActivate:  4,
			MaxMissedBeats:      8,
			PLLKp:               0.1,
			PLLKi:               0.01,
			ConfidenceIncrement: 0.16,
			ConfidenceDecrement: 0.1,
			PhaseErrorTolerance: 0.2,
			MissedBeatTolerance: 2.0,
			BPMMin:              60,
			BPMMax:              200,
			BPMLockThreshold:    0.8,
			BPMLockMaxChange:    2.0,
			BPMUnlockThreshold:  0.5,
		},
	}
}
