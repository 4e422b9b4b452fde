package manifest

import (
	"errors"
	"fmt"
)

// ErrParse is the kind shared by every manifest failure.
var ErrParse = errors.New("manifest parse error")

// ParseError identifies the manifest and 1-based line that could not be parsed.
// Line is zero when the failure is not tied to a line (open or read errors).
type ParseError struct {
	Manifest string
	Line     int
	Msg      string
	Err      error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	where := e.Manifest
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Manifest, e.Line)
	}

	msg := e.Msg
	if where != "" {
		msg = fmt.Sprintf("%s: %s", where, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}
