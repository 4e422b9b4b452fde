package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/pb33f/pagecycle/report"
)

func (m *MonitorModel) buildColumns() []table.Column {
	return []table.Column{
		{Title: "#", Width: indexColumnWidth},
		{Title: "Page", Width: pageColumnWidth(m.width)},
		{Title: "Runs", Width: runsColumnWidth},
		{Title: "Median", Width: timingColumnWidth},
		{Title: "Min", Width: timingColumnWidth},
		{Title: "Max", Width: timingColumnWidth},
	}
}

func (m *MonitorModel) buildTableRows() {
	width := pageColumnWidth(m.width)
	rows := make([]table.Row, 0, len(m.pages))

	for i, page := range m.pages {
		rows = append(rows, formatPageRow(i, page, m.prefix, width))
	}

	m.rows = rows
}

func formatPageRow(index int, page *pageRow, prefix, width int) table.Row {
	name := page.name
	if prefix < len(name) {
		name = name[prefix:]
	}

	row := table.Row{
		strconv.Itoa(index),
		truncateString(name, width),
		strconv.Itoa(len(page.samples)),
		"---", "---", "---",
	}
	if len(page.samples) == 0 {
		return row
	}

	s := report.Summarize(page.samples)
	row[3] = formatDuration(s.Median)
	row[4] = formatDuration(s.Min)
	row[5] = formatDuration(s.Max)
	return row
}

func pageColumnWidth(terminalWidth int) int {
	available := terminalWidth - indexColumnWidth - runsColumnWidth - 3*timingColumnWidth - columnPadding
	return min(max(available, minPageColumnWidth), maxPageColumnWidth)
}

func formatDuration(durationMs float64) string {
	if durationMs <= 0 {
		return "---"
	}

	d := time.Duration(durationMs * float64(time.Millisecond))

	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dμs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
	default:
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - (minutes * 60)
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
}

// truncateString keeps the tail of s, which is the distinguishing part of a page URL.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[len(s)-maxLen:]
	}
	return "..." + s[len(s)-maxLen+3:]
}
