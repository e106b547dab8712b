// Package theme provides the Lip Gloss color palette and reusable styles
// for the live display. It imports nothing but lifecycle so every view can
// depend on it.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
)

// State colors.
var (
	ColorConnecting = lipgloss.Color("#d97706")
	ColorPending    = lipgloss.Color("#06b6d4")
	ColorActive     = lipgloss.Color("#22c55e")
	ColorErrored    = lipgloss.Color("#dc2626")
	ColorRejected   = lipgloss.Color("#a855f7")
	ColorClosed     = lipgloss.Color("#4b5563")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Load bar thresholds.
var (
	ColorLoadLow  = lipgloss.Color("#22c55e") // <50%
	ColorLoadMid  = lipgloss.Color("#d97706") // 50-80%
	ColorLoadHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#3b82f6")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the Lip Gloss color for a lifecycle state.
func StateColor(s lifecycle.State) lipgloss.Color {
	switch s {
	case lifecycle.Connecting:
		return ColorConnecting
	case lifecycle.Pending:
		return ColorPending
	case lifecycle.Active:
		return ColorActive
	case lifecycle.Errored:
		return ColorErrored
	case lifecycle.Rejected:
		return ColorRejected
	case lifecycle.Closed:
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a lifecycle state.
func StateGlyph(s lifecycle.State) string {
	switch s {
	case lifecycle.Connecting:
		return "◌"
	case lifecycle.Pending:
		return "◎"
	case lifecycle.Active:
		return "●"
	case lifecycle.Errored:
		return "✗"
	case lifecycle.Rejected:
		return "⊘"
	case lifecycle.Closed:
		return "○"
	default:
		return "·"
	}
}

// LoadColor returns the bar color for a utilization fraction.
func LoadColor(frac float64) lipgloss.Color {
	switch {
	case frac > 0.8:
		return ColorLoadHigh
	case frac > 0.5:
		return ColorLoadMid
	default:
		return ColorLoadLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)
)

// StateLabel renders the upper-case state label in its color.
func StateLabel(s lifecycle.State) string {
	return lipgloss.NewStyle().Foreground(StateColor(s)).Bold(true).Render(s.Label())
}
