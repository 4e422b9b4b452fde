package motor

import (
	"context"
)

// Navigation is a single request for the surface to load a page.
type Navigation struct {
	URL string

	// OwnTiming pages get the page-reporting capability installed and must not
	// produce the default load completion signal.
	OwnTiming bool

	// PaintTracking asks the surface to follow load (or the page report) with a
	// paint-stable signal.
	PaintTracking bool
}

// Surface is the navigation capability being benchmarked. The controller is
// its only writer of navigation commands and the only owner of listener
// registration.
type Surface interface {
	// Navigate starts loading nav.URL. It returns once the navigation has been
	// issued, not when the page has finished loading.
	Navigate(ctx context.Context, nav Navigation) error

	// OutOfProcess reports whether the surface executes in a separate process,
	// in which case completion signals arrive through Messages.
	OutOfProcess() bool

	// AddListener registers fn for signals delivered directly by an in-process
	// surface. The returned function unregisters it.
	AddListener(fn func(Signal)) (remove func())

	// Messages returns the cross-process message channel, nil when the surface
	// runs in-process.
	Messages() MessageChannel
}

// MessageChannel carries named messages from a separate execution context.
type MessageChannel interface {
	// AddMessageListener registers fn for messages called name. The returned
	// function unregisters it.
	AddMessageListener(name string, fn func(Message)) (remove func())
}

// Collector is implemented by surfaces that can run a synchronous memory
// reclamation pass between page loads.
type Collector interface {
	CollectGarbage(ctx context.Context) error
}

// Observer receives controller progress events. Observe is called from the
// controller goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
