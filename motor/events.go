package motor

// Event is a progress notification delivered to an Observer.
type Event interface {
	event()
}

type RunStarted struct {
	Pages  []string
	Cycles int
}

type PageStarted struct {
	Cycle int
	Index int
	URL   string
}

type PageTimed struct {
	Cycle     int
	Index     int
	Name      string
	ElapsedMs float64
}

type CycleCollected struct {
	Ms float64
}

type CycleCompleted struct {
	Cycle int
}

type RunFinished struct {
	Outcome Outcome
}

func (RunStarted) event()     {}
func (PageStarted) event()    {}
func (PageTimed) event()      {}
func (CycleCollected) event() {}
func (CycleCompleted) event() {}
func (RunFinished) event()    {}
