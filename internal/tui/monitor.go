// SPDX-License-Identifier: MIT
// Package tui renders a live terminal monitor fed by telemetry records.
// The monitor implements transport.Transport, so it plugs into the same
// fan-out as the websocket and UDP sinks.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Jdubz/blinky-time-sub007/internal/telemetry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	beatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB454")).
			Bold(true)
)

const levelBarWidth = 30

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// recordMsg wraps one telemetry record delivered through Send.
type recordMsg struct{ rec any }

type flashTickMsg time.Time

type model struct {
	status    telemetry.StatusRecord
	rhythm    telemetry.RhythmRecord
	music     telemetry.MusicRecord
	onset     telemetry.TransientRecord
	beatFlash int
	onsetAge  int
	quitting  bool
}

func flashTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return flashTickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return flashTick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case flashTickMsg:
		if m.beatFlash > 0 {
			m.beatFlash--
		}
		if m.onsetAge < 100 {
			m.onsetAge++
		}
		return m, flashTick()

	case recordMsg:
		switch rec := msg.rec.(type) {
		case telemetry.StatusRecord:
			m.status = rec
		case telemetry.RhythmRecord:
			m.rhythm = rec
		case telemetry.MusicRecord:
			m.music = rec
			m.beatFlash = 3
		case telemetry.TransientRecord:
			m.onset = rec
			m.onsetAge = 0
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("blinky-time"))
	b.WriteString("\n\n")

	state := "inactive"
	style := labelStyle
	if m.status.Active {
		state = "ACTIVE"
		style = activeStyle
	}
	b.WriteString(fmt.Sprintf("  %s %s   %s %s\n",
		labelStyle.Render("session"), valueStyle.Render(shortID(m.status.Session)),
		labelStyle.Render("tracker"), style.Render(state)))

	beatMark := " "
	if m.beatFlash > 0 {
		beatMark = beatStyle.Render("●")
	}
	b.WriteString(fmt.Sprintf("  %s %s %s   %s %s   %s %s\n",
		labelStyle.Render("bpm"), valueStyle.Render(fmt.Sprintf("%6.1f", m.rhythm.BPM)), beatMark,
		labelStyle.Render("conf"), valueStyle.Render(fmt.Sprintf("%.2f", m.music.Confidence)),
		labelStyle.Render("beat"), valueStyle.Render(fmt.Sprintf("#%d", m.music.BeatNumber))))

	b.WriteString(fmt.Sprintf("  %s %s %s\n",
		labelStyle.Render("level"), levelBar(m.status.Level),
		valueStyle.Render(fmt.Sprintf("%.2f  hw %d", m.status.Level, m.status.HWGain))))

	onsetMark := labelStyle.Render("·")
	if m.onsetAge < 2 {
		onsetMark = beatStyle.Render("●")
	}
	b.WriteString(fmt.Sprintf("  %s %s %s %s\n",
		labelStyle.Render("onset"), onsetMark,
		valueStyle.Render(m.onset.Mode),
		valueStyle.Render(fmt.Sprintf("%.2f", m.onset.Strength))))

	b.WriteString("\n  ")
	b.WriteString(labelStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func levelBar(level float64) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level * levelBarWidth)
	return activeStyle.Render(strings.Repeat("█", filled)) +
		labelStyle.Render(strings.Repeat("─", levelBarWidth-filled))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "--------"
	}
	return id
}

// Monitor runs the terminal program and feeds it telemetry records.
type Monitor struct {
	program *tea.Program
}

// NewMonitor builds the program. Run blocks until the user quits.
func NewMonitor() *Monitor {
	return &Monitor{
		program: tea.NewProgram(model{}, tea.WithAltScreen()),
	}
}

// Run starts the terminal UI and blocks until quit.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Send implements transport.Transport.
func (m *Monitor) Send(v any) error {
	m.program.Send(recordMsg{rec: v})
	return nil
}

// Close implements transport.Transport.
func (m *Monitor) Close() error {
	m.program.Quit()
	return nil
}
