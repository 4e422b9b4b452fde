package motor

import (
	"fmt"
	"time"

	"github.com/pb33f/pagecycle/motor/model"
)

// State is the controller's position in the run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateNavigating
	StateAwaitingSignal
	StateAdvancing
	StateCycleComplete
	StateFinished
	StateAborted
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateRunning:        "running",
	StateNavigating:     "navigating",
	StateAwaitingSignal: "awaiting-signal",
	StateAdvancing:      "advancing",
	StateCycleComplete:  "cycle-complete",
	StateFinished:       "finished",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

func allowedTransition(from, to State) bool {
	if to == StateAborted {
		return !from.Terminal()
	}
	switch from {
	case StateIdle:
		return to == StateRunning
	case StateRunning:
		return to == StateNavigating
	case StateNavigating:
		return to == StateAwaitingSignal
	case StateAwaitingSignal:
		return to == StateAdvancing
	case StateAdvancing:
		return to == StateNavigating || to == StateCycleComplete
	case StateCycleComplete:
		return to == StateNavigating || to == StateFinished
	default:
		return false
	}
}

// CycleState is the controller's cursor. PageIndex is relative to the working
// page list and StartedAt is when the current cycle began.
type CycleState struct {
	CycleIndex int
	PageIndex  int
	StartedAt  time.Time
}

// Status distinguishes the two ways a run ends.
type Status int

const (
	StatusFinished Status = iota + 1
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusAborted:
		return "aborted"
	default:
		return "pending"
	}
}

// ExitCode maps the status to a process exit code.
func (s Status) ExitCode() int {
	if s == StatusFinished {
		return 0
	}
	return 1
}

// Outcome is the single terminal result of a run. On abort, Report holds
// whatever was aggregated before the failure and has not been handed to the
// sink. A finished run whose sink failed keeps StatusFinished and carries the
// sink error in Err.
type Outcome struct {
	Status Status
	Err    error
	Report *model.Report
}

// Options configures a run.
type Options struct {
	// Manifest is the location of the page manifest, a path or URL.
	Manifest string

	// StartIndex and EndIndex bound the working page list, inclusive. A
	// negative or out of range EndIndex selects the last page.
	StartIndex int
	EndIndex   int

	Cycles int

	// Width and Height are passed through to surfaces that open a window.
	Width  int
	Height int

	// Timeout bounds each page load. Zero disables it.
	Timeout time.Duration

	// Delay is waited before every navigation.
	Delay time.Duration

	PaintTracking bool

	// ForceCycleCollection runs a timed collection between pages when the
	// surface implements Collector.
	ForceCycleCollection bool
}

func DefaultOptions() Options {
	return Options{
		StartIndex:           0,
		EndIndex:             -1,
		Cycles:               5,
		Width:                1024,
		Height:               768,
		Timeout:              0,
		Delay:                250 * time.Millisecond,
		PaintTracking:        false,
		ForceCycleCollection: true,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Manifest == "":
		return configErrorf("a manifest location is required")
	case o.Cycles < 1:
		return configErrorf("cycles must be at least 1, got %d", o.Cycles)
	case o.Timeout < 0:
		return configErrorf("timeout must not be negative, got %s", o.Timeout)
	case o.Delay < 0:
		return configErrorf("delay must not be negative, got %s", o.Delay)
	case o.Width < 0 || o.Height < 0:
		return configErrorf("invalid geometry %dx%d", o.Width, o.Height)
	}
	return nil
}

// selectRange clamps the configured bounds against a page list of length n.
func selectRange(n, start, end int) (int, int, error) {
	if start < 0 {
		start = 0
	}
	if end < 0 || end >= n {
		end = n - 1
	}
	if start > end {
		return 0, 0, configErrorf("start index %d is past end index %d", start, end)
	}
	return start, end, nil
}
