package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/theme"
)

// Column widths (fixed layout).
const (
	colGroup   = 12
	colTarget  = 12
	colIndex   = 5
	colState   = 13
	colReason  = 22
	colSince   = 8
	colCount   = 8
	colStatus  = 9
	colLatency = 9

	minWidth     = 60
	minTableRows = 3
)

var (
	dimStyle    = theme.StyleDimmed
	brightStyle = lipgloss.NewStyle().Foreground(theme.ColorBright).Bold(true)
	sepStyle    = lipgloss.NewStyle().Foreground(theme.ColorBorder)
)

// View renders the full display.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if !m.hasSnap {
		return dimStyle.Render("  Waiting for first snapshot...")
	}

	sections := []string{m.renderHeader()}
	if m.snap.StateCounts != nil {
		sections = append(sections, m.renderCounts())
	}
	if m.snap.Workers != nil {
		sections = append(sections, m.withLimits(m.renderWorkers()))
	}
	if m.snap.Targets != nil {
		sections = append(sections, m.withLimits(m.renderTargets()))
	}
	if m.snap.Instances != nil {
		sections = append(sections, m.withLimits(m.renderInstances()))
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) contentWidth() int {
	return max(m.width, minWidth)
}

// renderHeader is the double-bordered status bar.
func (m Model) renderHeader() string {
	s := m.snap
	title := brightStyle.Render(s.Title)

	parts := []string{
		lipgloss.NewStyle().Foreground(theme.ColorAccent).Render(s.Mode),
		"run " + shortID(s.RunID),
		"up " + s.Uptime.Truncate(time.Second).String(),
	}
	switch {
	case s.Final:
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Bold(true).Render("FINAL"))
	case m.quitting:
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("stopping..."))
	}

	content := title + sepStyle.Render(" | ") + strings.Join(parts, sepStyle.Render(" | "))

	return lipgloss.NewStyle().
		Width(m.contentWidth()-2).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderCounts shows the per-state totals in a single row.
func (m Model) renderCounts() string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := make([]string, 0, len(lifecycle.All))
	for _, st := range lifecycle.All {
		stats = append(stats, statStyle.Foreground(theme.StateColor(st)).Render(
			fmt.Sprintf("%s %s: %d", theme.StateGlyph(st), st, m.snap.Count(st))))
	}
	content := strings.Join(stats, sepStyle.Render("|"))

	return theme.StyleBorder.
		Width(m.contentWidth() - 2).
		Render(content)
}

func (m Model) renderWorkers() string {
	header := theme.StyleHeader.Render("  Workers")
	if len(m.snap.Workers) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, dimStyle.Render("  No workers yet"))
	}

	tableHeader := fmt.Sprintf("  %-*s %-*s %*s %-*s %-*s %*s",
		colGroup, "Group",
		colTarget, "Target",
		colIndex, "#",
		colState, "State",
		colReason, "Reason",
		colSince, "Since",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", colGroup+colTarget+colIndex+colState+colReason+colSince+5)),
	}

	rows := m.workerRows()
	end := min(m.offset+rows, len(m.snap.Workers))
	for _, e := range m.snap.Workers[m.offset:end] {
		color := theme.StateColor(e.State)
		state := lipgloss.NewStyle().Foreground(color).Bold(true).Width(colState).
			Render(theme.StateGlyph(e.State) + " " + e.State.Label())
		since := ""
		if !e.Since.IsZero() {
			since = m.snap.TakenAt.Sub(e.Since).Truncate(time.Second).String()
		}

		lines = append(lines, fmt.Sprintf("  %-*s %-*s %*d %s %s %*s",
			colGroup, truncate(e.Identity.Group, colGroup),
			colTarget, truncate(e.Identity.Target, colTarget),
			colIndex, e.Identity.Index,
			state,
			dimStyle.Width(colReason).Render(truncate(e.Reason, colReason)),
			colSince, since,
		))
	}
	if hidden := len(m.snap.Workers) - end; hidden > 0 || m.offset > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  rows %d-%d of %d",
			m.offset+1, end, len(m.snap.Workers))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// workerRows is how many worker rows fit under the fixed sections.
func (m Model) workerRows() int {
	// header bar 3, counts row 3, table title and rule 3, scroll line 1,
	// footer 1
	used := 11
	return max(m.height-used, minTableRows)
}

func (m Model) renderTargets() string {
	header := theme.StyleHeader.Render("  Targets")

	tableHeader := fmt.Sprintf("  %-*s %*s %*s %*s %*s  %s",
		colTarget, "Target",
		colCount, "Active",
		colCount, "Total",
		colCount, "Rejected",
		colCount, "Errored",
		"Load",
	)
	barWidth := max(m.contentWidth()-(colTarget+4*colCount+10), 10)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", colTarget+4*colCount+6+barWidth)),
	}
	for _, t := range m.snap.Targets {
		lines = append(lines, fmt.Sprintf("  %-*s %s %*d %*d %*d  %s",
			colTarget, truncate(t.Target, colTarget),
			lipgloss.NewStyle().Foreground(theme.ColorActive).Bold(true).Width(colCount).Align(lipgloss.Right).
				Render(fmt.Sprint(t.Active)),
			colCount, t.Total,
			colCount, t.Rejected,
			colCount, t.Errored,
			renderBar(t.Active, barWidth),
		))
	}
	lines = append(lines, brightStyle.Render(fmt.Sprintf("  %-*s %*d %*d",
		colTarget, "TOTAL",
		colCount, m.snap.TotalActive(),
		colCount, m.snap.TotalLaunched(),
	)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBar draws one block per active worker, clipped to width. The color
// warms as the bar fills the available width.
func renderBar(n, width int) string {
	if n <= 0 {
		return ""
	}
	filled := min(n, width)
	color := theme.LoadColor(float64(filled) / float64(width))
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	if n > width {
		bar += dimStyle.Render("+")
	}
	return bar
}

func (m Model) renderInstances() string {
	header := theme.StyleHeader.Render("  Instances")

	tableHeader := fmt.Sprintf("  %-*s %-*s %*s %*s  %s",
		colTarget, "Instance",
		colStatus, "Status",
		colCount, "Clients",
		colLatency, "Latency",
		"Error",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", colTarget+colStatus+colCount+colLatency+colReason+6)),
	}
	for _, in := range m.snap.Instances {
		status := lipgloss.NewStyle().Foreground(theme.ColorHealthy).Bold(true).Width(colStatus).Render("ONLINE")
		clients := fmt.Sprint(in.Clients)
		latency := in.Latency.Round(time.Millisecond).String()
		switch {
		case !in.Checked:
			// Not probed yet.
			status = dimStyle.Width(colStatus).Render("PENDING")
			clients, latency = "-", "-"
		case !in.Online:
			status = lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).Width(colStatus).Render("OFFLINE")
			clients = "-"
		}
		lines = append(lines, fmt.Sprintf("  %-*s %s %*s %*s  %s",
			colTarget, truncate(in.Name, colTarget),
			status,
			colCount, clients,
			colLatency, latency,
			dimStyle.Render(truncate(in.Err, colReason)),
		))
	}
	lines = append(lines, brightStyle.Render(fmt.Sprintf("  %-*s %-*s %*d",
		colTarget, "TOTAL",
		colStatus, fmt.Sprintf("%d/%d", m.snap.InstancesOnline, len(m.snap.Instances)),
		colCount, m.snap.InstanceClients,
	)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// withLimits places the configured limits beside a table.
func (m Model) withLimits(table string) string {
	if !m.showLimits || len(m.snap.Limits) == 0 {
		return table
	}
	lines := []string{theme.StyleHeader.Render("Limits")}
	for _, l := range m.snap.Limits {
		lines = append(lines, dimStyle.Render(l.Name+": ")+brightStyle.Render(l.Value))
	}
	sidebar := theme.StyleBorder.Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.JoinHorizontal(lipgloss.Top, table, "  ", sidebar)
}

func (m Model) renderFooter() string {
	p := m.snap.Process
	stats := fmt.Sprintf("  goroutines %d  cpu %.1f%%  rss %s",
		p.Goroutines, p.CPUPercent, formatBytes(p.RSSBytes))
	return dimStyle.Render(stats + "    j/k:scroll  g:top  l:limits  q:quit")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
