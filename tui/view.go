package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pb33f/pagecycle/motor"
)

func (m *MonitorModel) render() string {
	if !m.ready {
		// aborted before the page list was resolved
		return m.renderErrorView()
	}

	var builder strings.Builder

	builder.WriteString(m.renderTitle())
	builder.WriteString("\n")
	builder.WriteString(m.table.View())
	builder.WriteString("\n")
	builder.WriteString(m.renderProgress())
	builder.WriteString("\n")
	builder.WriteString(m.renderStatusBar())

	return builder.String()
}

func (m *MonitorModel) renderTitle() string {
	titleStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		Padding(0, 1).
		Width(m.width).BorderForeground(RGBBlue).BorderTop(false).BorderLeft(false).BorderRight(false).BorderBottom(true)

	titleText := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("pagecycle: %s | ", m.manifest))

	count := fmt.Sprintf("(%d pages, %d cycles", len(m.pages), m.cycles)
	if m.elapsed > 0 {
		count += fmt.Sprintf(", ran for %v", m.elapsed.Round(time.Millisecond))
	}
	count += ")"

	return titleStyle.Render(titleText + StyleFaint.Render(count))
}

func (m *MonitorModel) renderProgress() string {
	switch m.state {
	case RunStateFinished:
		line := StatusOKStyle.Render("✓ finished")
		if m.outcome.Err != nil {
			line += " " + StatusWarningStyle.Render(m.outcome.Err.Error())
		}
		return line + m.renderCycleCollection()

	case RunStateAborted:
		return StatusErrorStyle.Render(fmt.Sprintf("✗ aborted: %v", m.outcome.Err))
	}

	cycle := min(m.cycle+1, max(m.cycles, 1))
	line := fmt.Sprintf("%s cycle %d/%d", m.loadingSpinner.View(), cycle, m.cycles)
	if m.current >= 0 {
		line += fmt.Sprintf(", page %d/%d ", m.current+1, len(m.pages))
		line += SubtitleStyle.Render(truncateString(m.currentURL, pageColumnWidth(m.width)))
	}
	return line + m.renderCycleCollection()
}

func (m *MonitorModel) renderCycleCollection() string {
	if m.ccTotal <= 0 {
		return ""
	}
	return StyleFaint.Render(fmt.Sprintf("  cc %s", formatDuration(m.ccTotal)))
}

func (m *MonitorModel) renderStatusBar() string {
	parts := []string{
		HelpKeyStyle.Render("↑/↓") + HelpStyle.Render(": Navigate"),
		HelpKeyStyle.Render("q") + HelpStyle.Render(": Quit"),
	}
	if m.state == RunStateRunning {
		parts[1] += HelpStyle.Render(" (aborts the run)")
	}
	return strings.Join(parts, HelpStyle.Render(" • "))
}

// Summary is the one-line result printed after the program exits.
func (m *MonitorModel) Summary() string {
	switch m.outcome.Status {
	case motor.StatusFinished:
		return fmt.Sprintf("finished %d pages x %d cycles", len(m.pages), m.cycles)
	case motor.StatusAborted:
		return fmt.Sprintf("aborted: %v", m.outcome.Err)
	default:
		return "not started"
	}
}
