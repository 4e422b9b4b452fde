package tui

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
)

// RenderTable renders a static table in the monitor's theme, for output that
// is printed rather than run as a program.
func RenderTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(RGBPink).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(RGBPink)).
		BorderColumn(false).
		BorderRow(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// RenderChange colors a percentage change: red when it crosses threshold,
// green when the page got faster.
func RenderChange(text string, changePct, thresholdPct float64) string {
	switch {
	case changePct > thresholdPct:
		return StatusErrorStyle.Render(text)
	case changePct < 0:
		return StatusOKStyle.Render(text)
	default:
		return text
	}
}
