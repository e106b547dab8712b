package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

// snapshotMsg carries a fresh snapshot into the program.
type snapshotMsg snapshot.Snapshot

// Model is the root Bubble Tea model. It only ever displays the latest
// snapshot it was handed.
type Model struct {
	keys   KeyMap
	width  int
	height int

	snap    snapshot.Snapshot
	hasSnap bool

	// Navigation.
	offset     int
	showLimits bool

	onQuit   func()
	quitting bool
}

// NewModel creates the root model. onQuit is called when the user asks to
// quit; the program keeps drawing until the presenter is closed so the
// final frame is still shown. A nil onQuit quits the program directly.
func NewModel(onQuit func()) Model {
	return Model{
		keys:       DefaultKeyMap(),
		showLimits: true,
		onQuit:     onQuit,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = snapshot.Snapshot(msg)
		m.hasSnap = true
		m.clampOffset()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.onQuit == nil {
			return m, tea.Quit
		}
		if !m.quitting {
			m.quitting = true
			m.onQuit()
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.offset++
		m.clampOffset()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.offset > 0 {
			m.offset--
		}
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.offset = 0
		return m, nil

	case key.Matches(msg, m.keys.Limits):
		m.showLimits = !m.showLimits
		return m, nil
	}

	return m, nil
}

func (m *Model) clampOffset() {
	limit := len(m.snap.Workers) - m.workerRows()
	if limit < 0 {
		limit = 0
	}
	if m.offset > limit {
		m.offset = limit
	}
}
