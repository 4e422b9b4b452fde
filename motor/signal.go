package motor

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message names used on the cross-process channel.
const (
	MessageLoad       = "PageLoader:Load"
	MessageRecordTime = "PageLoader:RecordTime"
	MessagePaint      = "PageLoader:MozAfterPaint"
)

// SignalKind identifies the shape of a completion signal.
type SignalKind int

const (
	SignalLoad SignalKind = iota + 1
	SignalPaint
	SignalRecord
)

func (k SignalKind) String() string {
	switch k {
	case SignalLoad:
		return "load"
	case SignalPaint:
		return "paint"
	case SignalRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Origin tells whether a signal was delivered directly or as a message.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Reported is the (time, startTime) pair a page hands to the reporting
// capability. Time is the page's own elapsed measurement in milliseconds and
// StartTime is the page's start stamp in milliseconds since the Unix epoch.
type Reported struct {
	Time      float64 `json:"time"`
	StartTime float64 `json:"startTime"`
}

// Signal is the tagged variant every completion signal is normalized into
// before arbitration.
type Signal struct {
	Kind   SignalKind
	Origin Origin
	At     time.Time
	Report *Reported

	malformed error
}

// Message is one named message from a separate execution context.
type Message struct {
	Name    string
	Payload []byte
	At      time.Time
}

// SignalFromMessage decodes a channel message into a signal. A RecordTime
// message without a usable payload still yields a record signal, marked
// malformed, so arbitration can report it against the current page.
func SignalFromMessage(m Message) Signal {
	sig := Signal{Origin: OriginRemote, At: m.At}

	switch m.Name {
	case MessageLoad:
		sig.Kind = SignalLoad
	case MessagePaint:
		sig.Kind = SignalPaint
	case MessageRecordTime:
		sig.Kind = SignalRecord
		if len(m.Payload) == 0 {
			sig.malformed = fmt.Errorf("%s message without payload", m.Name)
			break
		}
		var r Reported
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			sig.malformed = fmt.Errorf("%s payload: %w", m.Name, err)
			break
		}
		sig.Report = &r
	default:
		sig.malformed = fmt.Errorf("unknown message %q", m.Name)
	}

	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	return sig
}

func (s Signal) String() string {
	return s.Origin.String() + " " + s.Kind.String()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func epochMs(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}
