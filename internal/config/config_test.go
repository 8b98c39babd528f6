// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestDefaultParamsValid(t *testing.T) {
	require.NoError(t, DefaultParams().Validate(),
		"built-in defaults must always pass validation")
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"hwTarget too high", func(p *Params) { p.AGC.HWTarget = 0.95 }},
		{"peakTau too low", func(p *Params) { p.AGC.PeakTau = 0.1 }},
		{"cooldown too short", func(p *Params) { p.Onset.CooldownMs = 10 }},
		{"transient threshold too low", func(p *Params) { p.Onset.TransientThreshold = 1.0 }},
		{"flux bins too many", func(p *Params) { p.Onset.FluxBins = 256 }},
		{"detection mode out of range", func(p *Params) { p.Onset.Mode = 9 }},
		{"bpm min above max", func(p *Params) { p.Beat.BPMMin = 120; p.Beat.BPMMax = 120 }},
		{"rhythm bpm inverted", func(p *Params) { p.Rhythm.MinBPM = 120; p.Rhythm.MaxBPM = 120 }},
		{"unlock above lock threshold", func(p *Params) {
			p.Beat.BPMLockThreshold = 0.5
			p.Beat.BPMUnlockThreshold = 0.6
		}},
		{"pll kp too high", func(p *Params) { p.Beat.PLLKp = 0.9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams))
		})
	}
}

func TestLoadParamsRejectsWholeSet(t *testing.T) {
	// One bad field must reject the entire set, not just that field.
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	data := []byte("onset:\n  cooldown_ms: 5\n  transient_threshold: 3.5\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	params, err := LoadParams(path, testLogger())
	require.Error(t, err)

	// The valid field from the file must NOT have been applied.
	defaults := DefaultParams()
	assert.Equal(t, defaults.Onset.TransientThreshold, params.Onset.TransientThreshold)
	assert.Equal(t, defaults.Onset.CooldownMs, params.Onset.CooldownMs)
}

func TestLoadParamsPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	data := []byte("onset:\n  cooldown_ms: 120\nbeat:\n  max_missed_beats: 12\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	params, err := LoadParams(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 120, params.Onset.CooldownMs)
	assert.Equal(t, 12, params.Beat.MaxMissedBeats)
	// Untouched fields keep defaults.
	assert.Equal(t, DefaultParams().AGC.HWTarget, params.AGC.HWTarget)
}

func TestLoadParamsMissingPathUsesDefaults(t *testing.T) {
	params, err := LoadParams("", testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), params)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BLINKY_TELEMETRY_ADDR", ":9191")
	cfg, err := Load("", testLogger())
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.Telemetry.Addr)
}

func TestDetectionModeString(t *testing.T) {
	assert.Equal(t, "drummer", ModeDrummer.String())
	assert.Equal(t, "hybrid", ModeHybrid.String())
	assert.Equal(t, "unknown", DetectionMode(9).String())
}
