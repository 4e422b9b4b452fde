package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/pb33f/pagecycle/motor"
	"github.com/pb33f/pagecycle/report"
)

// RunState tracks what the monitored controller is doing.
type RunState int

const (
	RunStateWaiting RunState = iota
	RunStateRunning
	RunStateFinished
	RunStateAborted
)

type pageRow struct {
	name    string
	samples []float64
}

// MonitorModel renders live progress of a benchmark run. It is fed the
// controller's events through Program.Send, see Observer.
type MonitorModel struct {
	table   table.Model
	columns []table.Column
	rows    []table.Row

	manifest string
	pages    []*pageRow
	prefix   int

	state      RunState
	cycle      int
	cycles     int
	current    int
	currentURL string
	ccTotal    float64
	startedAt  time.Time
	elapsed    time.Duration
	outcome    motor.Outcome

	width    int
	height   int
	ready    bool
	quitting bool

	loadingSpinner spinner.Model
	exitOnFinish   bool
}

type MonitorOption func(*MonitorModel)

// ExitOnFinish quits the program once the run reaches a terminal state,
// leaving the final table on screen.
func ExitOnFinish() MonitorOption {
	return func(m *MonitorModel) { m.exitOnFinish = true }
}

func NewMonitorModel(manifest string, opts ...MonitorOption) *MonitorModel {
	m := &MonitorModel{
		manifest:       manifest,
		current:        -1,
		loadingSpinner: createLoadingSpinner(),
		width:          defaultWidth,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.columns = m.buildColumns()
	return m
}

// Observer forwards controller events into a running program.
func Observer(send func(tea.Msg)) motor.Observer {
	return motor.ObserverFunc(func(e motor.Event) {
		send(e)
	})
}

func (m *MonitorModel) Init() tea.Cmd {
	return m.loadingSpinner.Tick
}

func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.state == RunStateWaiting || m.state == RunStateRunning {
		var cmd tea.Cmd
		m.loadingSpinner, cmd = m.loadingSpinner.Update(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	switch msg := msg.(type) {
	case motor.RunStarted:
		m.handleRunStarted(msg)

	case motor.PageStarted:
		m.cycle = msg.Cycle
		m.current = msg.Index
		m.currentURL = msg.URL
		if m.ready {
			m.table.SetCursor(msg.Index)
		}

	case motor.PageTimed:
		if msg.Index >= 0 && msg.Index < len(m.pages) {
			row := m.pages[msg.Index]
			row.samples = append(row.samples, msg.ElapsedMs)
			m.buildTableRows()
			if m.ready {
				m.table.SetRows(m.rows)
			}
		}

	case motor.CycleCollected:
		m.ccTotal += msg.Ms

	case motor.CycleCompleted:
		m.cycle = msg.Cycle + 1

	case motor.RunFinished:
		m.outcome = msg.Outcome
		m.elapsed = time.Since(m.startedAt)
		if msg.Outcome.Status == motor.StatusFinished {
			m.state = RunStateFinished
		} else {
			m.state = RunStateAborted
		}
		if m.exitOnFinish {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.ready {
			m.updateTableDimensions()
		}

	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *MonitorModel) View() string {
	if m.quitting && m.state != RunStateFinished && m.state != RunStateAborted {
		return ""
	}

	switch m.state {
	case RunStateWaiting:
		return m.renderLoadingView()
	default:
		return m.render()
	}
}

// State reports the run state as last seen by the monitor.
func (m *MonitorModel) State() RunState {
	return m.state
}

// Quitting is true when the user asked to leave before the run ended.
func (m *MonitorModel) Quitting() bool {
	return m.quitting
}

func (m *MonitorModel) handleRunStarted(msg motor.RunStarted) {
	m.state = RunStateRunning
	m.cycles = msg.Cycles
	m.startedAt = time.Now()
	m.prefix = report.CommonPrefixLength(msg.Pages)

	m.pages = make([]*pageRow, len(msg.Pages))
	for i, name := range msg.Pages {
		m.pages[i] = &pageRow{name: name}
	}
	m.initializeTable()
	m.ready = true
}

func (m *MonitorModel) tableHeight() int {
	h := len(m.pages) + 1
	if m.height > 0 {
		h = min(h, m.height-tableVerticalPadding)
	}
	return max(h, minTableHeight)
}

func (m *MonitorModel) initializeTable() {
	m.columns = m.buildColumns()
	m.buildTableRows()

	m.table = table.New(
		table.WithColumns(m.columns),
		table.WithRows(m.rows),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
		table.WithWidth(m.width),
	)

	m.table = ApplyTableStyles(m.table)
}

func (m *MonitorModel) updateTableDimensions() {
	m.table.SetHeight(m.tableHeight())
	m.table.SetWidth(m.width)

	m.columns = m.buildColumns()
	m.buildTableRows()
	m.table.SetColumns(m.columns)
	m.table.SetRows(m.rows)
}
