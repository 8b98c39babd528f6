// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidParams wraps every validation failure so callers can detect
// a rejected set with errors.Is and fall back to defaults.
var ErrInvalidParams = errors.New("invalid parameter set")

type rangeCheck struct {
	name     string
	value    float64
	min, max float64
}

// Validate checks every field against its documented range. It returns
// nil for a fully valid set, or an error naming each offending field.
// A set that fails validation must be discarded entirely; Validate never
// mutates the receiver, so there is no partially applied state to undo.
func (p Params) Validate() error {
	checks := []rangeCheck{
		{"agc.hw_target", p.AGC.HWTarget, 0.05, 0.9},
		{"agc.hw_calib_period_ms", float64(p.AGC.HWCalibPeriodMs), 30000, 600000},
		{"agc.peak_tau", p.AGC.PeakTau, 0.5, 10},
		{"agc.release_tau", p.AGC.ReleaseTau, 1, 30},
		{"agc.fast_agc_threshold", p.AGC.FastAGCThreshold, 0.01, 0.5},
		{"agc.fast_agc_period_ms", float64(p.AGC.FastAGCPeriodMs), 500, 30000},
		{"agc.fast_agc_tracking_tau", p.AGC.FastAGCTau, 0.5, 30},

		{"onset.transient_threshold", p.Onset.TransientThreshold, 1.5, 10},
		{"onset.attack_multiplier", p.Onset.AttackMultiplier, 1.1, 2},
		{"onset.average_tau", p.Onset.AverageTau, 0.1, 5},
		{"onset.cooldown_ms", float64(p.Onset.CooldownMs), 20, 500},
		{"onset.bass_freq", p.Onset.BassFreq, 40, 200},
		{"onset.bass_q", p.Onset.BassQ, 0.5, 3},
		{"onset.bass_thresh", p.Onset.BassThresh, 1.5, 10},
		{"onset.hfc_weight", p.Onset.HFCWeight, 0.5, 5},
		{"onset.hfc_thresh", p.Onset.HFCThresh, 1.5, 10},
		{"onset.flux_thresh", p.Onset.FluxThresh, 1, 10},
		{"onset.flux_bins", float64(p.Onset.FluxBins), 4, 128},
		{"onset.hybrid_flux_weight", p.Onset.HybridFluxWeight, 0.1, 1},
		{"onset.hybrid_drum_weight", p.Onset.HybridDrumWeight, 0.1, 1},
		{"onset.hybrid_both_boost", p.Onset.HybridBothBoost, 1, 2},
		{"onset.adaptive_min_raw", p.Onset.AdaptiveMinRaw, 0.01, 0.5},
		{"onset.adaptive_max_scale", p.Onset.AdaptiveMaxScale, 0.3, 1},
		{"onset.adaptive_blend_tau", p.Onset.AdaptiveBlendTau, 1, 15},

		{"rhythm.min_bpm", p.Rhythm.MinBPM, 40, 120},
		{"rhythm.max_bpm", p.Rhythm.MaxBPM, 120, 300},
		{"rhythm.autocorr_update_interval_ms", float64(p.Rhythm.AutocorrIntervalMs), 500, 2000},
		{"rhythm.beat_likelihood_threshold", p.Rhythm.BeatLikelihoodThreshold, 0.5, 0.9},
		{"rhythm.min_periodicity_strength", p.Rhythm.MinPeriodicityStrength, 0.3, 0.8},

		{"beat.activation_threshold", p.Beat.ActivationThreshold, 0, 1},
		{"beat.min_beats_to_activate", float64(p.Beat.MinBeatsToActivate), 2, 16},
		{"beat.max_missed_beats", float64(p.Beat.MaxMissedBeats), 4, 16},
		{"beat.pll_kp", p.Beat.PLLKp, 0.01, 0.5},
		{"beat.pll_ki", p.Beat.PLLKi, 0.001, 0.1},
		{"beat.confidence_increment", p.Beat.ConfidenceIncrement, 0.05, 0.2},
		{"beat.confidence_decrement", p.Beat.ConfidenceDecrement, 0.05, 0.2},
		{"beat.phase_error_tolerance", p.Beat.PhaseErrorTolerance, 0.1, 0.5},
		{"beat.missed_beat_tolerance", p.Beat.MissedBeatTolerance, 1, 3},
		{"beat.bpm_min", p.Beat.BPMMin, 40, 120},
		{"beat.bpm_max", p.Beat.BPMMax, 120, 240},
		{"beat.bpm_lock_threshold", p.Beat.BPMLockThreshold, 0, 1},
		{"beat.bpm_lock_max_change", p.Beat.BPMLockMaxChange, 0.1, 20},
		{"beat.bpm_unlock_threshold", p.Beat.BPMUnlockThreshold, 0, 1},
	}

	var errs []error
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			errs = append(errs, fmt.Errorf("%s=%g out of range [%g, %g]", c.name, c.value, c.min, c.max))
		}
	}

	if p.Onset.Mode > ModeHybrid {
		errs = append(errs, fmt.Errorf("onset.detection_mode=%d out of range [0, 4]", p.Onset.Mode))
	}
	if p.Rhythm.MinBPM >= p.Rhythm.MaxBPM {
		errs = append(errs, fmt.Errorf("rhythm.min_bpm=%g must be below rhythm.max_bpm=%g",
			p.Rhythm.MinBPM, p.Rhythm.MaxBPM))
	}
	if p.Beat.BPMMin >= p.Beat.BPMMax {
		errs = append(errs, fmt.Errorf("beat.bpm_min=%g must be below beat.bpm_max=%g",
			p.Beat.BPMMin, p.Beat.BPMMax))
	}
	if p.Beat.BPMUnlockThreshold >= p.Beat.BPMLockThreshold {
		errs = append(errs, fmt.Errorf("beat.bpm_unlock_threshold=%g must be below beat.bpm_lock_threshold=%g",
			p.Beat.BPMUnlockThreshold, p.Beat.BPMLockThreshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}
