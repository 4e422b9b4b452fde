package motor

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrTimeout           = errors.New("page load timeout")
	ErrProtocolViolation = errors.New("signal protocol violation")
	ErrNavigation        = errors.New("navigation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// RunError is a fatal, run-local failure tied to a page where one is known.
// Kind is one of the sentinel errors above.
type RunError struct {
	Kind      error
	Page      string
	Cycle     int
	PageIndex int
	Expected  string
	Received  string
	Msg       string
	Err       error
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Kind.Error()
	if e.Page != "" {
		msg = fmt.Sprintf("%s on %s (cycle %d, page %d)", msg, e.Page, e.Cycle, e.PageIndex)
	}
	if e.Expected != "" || e.Received != "" {
		msg = fmt.Sprintf("%s: expected %s, received %s", msg, e.Expected, e.Received)
	}
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configErrorf(format string, args ...any) error {
	return &RunError{Kind: ErrConfiguration, Msg: fmt.Sprintf(format, args...)}
}
