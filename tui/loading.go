package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/lipgloss/v2"
)

func (m *MonitorModel) renderLoadingView() string {
	spinnerStyle := lipgloss.NewStyle().
		Width(m.width).
		Align(lipgloss.Left)

	title := TitleStyle.Render("Resolving manifest")
	fileInfo := SubtitleStyle.Render(fmt.Sprintf("\n%s", m.manifest))

	return spinnerStyle.Render(fmt.Sprintf("%s %s%s", m.loadingSpinner.View(), title, fileInfo))
}

func (m *MonitorModel) renderErrorView() string {
	errorStyle := StatusErrorStyle.
		Width(m.width)

	msg := fmt.Sprintf("✗ Run aborted\n\n%v", m.outcome.Err)
	return errorStyle.Render(msg)
}

// matching vacuum's Dot spinner
func createLoadingSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(RGBPink)
	return s
}
