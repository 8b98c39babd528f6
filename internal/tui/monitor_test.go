// SPDX-License-Identifier: MIT
package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jdubz/blinky-time-sub007/internal/telemetry"
)

func TestModelAppliesRecords(t *testing.T) {
	var m tea.Model = model{}

	m, _ = m.Update(recordMsg{rec: telemetry.StatusRecord{
		Type: telemetry.TypeStatus, Session: "abcdef012345", Active: true, Level: 0.4,
	}})
	m, _ = m.Update(recordMsg{rec: telemetry.RhythmRecord{
		Type: telemetry.TypeRhythm, BPM: 128.5,
	}})
	m, _ = m.Update(recordMsg{rec: telemetry.MusicRecord{
		Type: telemetry.TypeMusic, BPM: 128.5, BeatNumber: 7, Confidence: 0.9,
	}})

	mod := m.(model)
	assert.True(t, mod.status.Active)
	assert.InDelta(t, 128.5, mod.rhythm.BPM, 1e-9)
	assert.Equal(t, uint64(7), mod.music.BeatNumber)
	assert.Equal(t, 3, mod.beatFlash, "a beat should arm the flash")

	view := mod.View()
	assert.Contains(t, view, "128.5")
	assert.Contains(t, view, "abcdef01")
	assert.Contains(t, view, "ACTIVE")
}

func TestBeatFlashDecays(t *testing.T) {
	var m tea.Model = model{}
	m, _ = m.Update(recordMsg{rec: telemetry.MusicRecord{Type: telemetry.TypeMusic}})
	require.Equal(t, 3, m.(model).beatFlash)

	for i := 0; i < 5; i++ {
		m, _ = m.Update(flashTickMsg(time.Now()))
	}
	assert.Equal(t, 0, m.(model).beatFlash)
}

func TestQuitKey(t *testing.T) {
	var m tea.Model = model{}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.True(t, m.(model).quitting)
	assert.Empty(t, m.(model).View())
}

func TestLevelBarClamps(t *testing.T) {
	assert.NotPanics(t, func() {
		levelBar(-0.5)
		levelBar(1.5)
	})
}
