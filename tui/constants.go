package tui

const (
	tableVerticalPadding = 6
	minTableHeight       = 3
	minPageColumnWidth   = 20
	maxPageColumnWidth   = 80

	indexColumnWidth  = 5
	runsColumnWidth   = 6
	timingColumnWidth = 10

	// cell padding and borders across all columns
	columnPadding = 14

	defaultWidth = 100
)
