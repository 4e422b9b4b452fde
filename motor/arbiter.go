package motor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pb33f/pagecycle/motor/model"
)

// listenerScope owns every listener registered for one page load. release
// unregisters all of them and is safe to call from any exit path. Signals
// queue without bound until the arbiter takes them.
type listenerScope struct {
	notify   chan struct{}
	done     chan struct{}
	mu       sync.Mutex
	queue    []Signal
	removers []func()
	once     sync.Once
}

func newListenerScope() *listenerScope {
	return &listenerScope{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *listenerScope) add(remove func()) {
	if remove == nil {
		return
	}
	s.mu.Lock()
	s.removers = append(s.removers, remove)
	s.mu.Unlock()
}

// deliver never blocks the surface's delivery path and never drops a signal
// while the scope is live.
func (s *listenerScope) deliver(sig Signal) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mu.Lock()
	s.queue = append(s.queue, sig)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued signal in arrival order.
func (s *listenerScope) drain() []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.queue
	s.queue = nil
	return queued
}

func (s *listenerScope) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *listenerScope) release() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		removers := s.removers
		s.removers = nil
		s.mu.Unlock()
		for _, remove := range removers {
			remove()
		}
	})
}

// pageLoad is the arbiter's view of one in-flight navigation.
type pageLoad struct {
	cycle   int
	index   int
	name    string
	nav     Navigation
	start   time.Time
	timeout time.Duration
}

func (p *pageLoad) expected() string {
	if p.nav.OwnTiming {
		return SignalRecord.String()
	}
	return SignalLoad.String()
}

func (p *pageLoad) violation(sig Signal, msg string) *RunError {
	return &RunError{
		Kind:      ErrProtocolViolation,
		Page:      p.name,
		Cycle:     p.cycle,
		PageIndex: p.index,
		Expected:  p.expected(),
		Received:  sig.String(),
		Msg:       msg,
	}
}

// arbitration accumulates the signals seen for one page until they add up to
// a completion.
type arbitration struct {
	load       *pageLoad
	loadAt     time.Time
	paintAt    time.Time
	report     *Reported
	reportedAt time.Time
}

// accept folds sig into the arbitration. It returns a sample once the page
// is complete, and an error when sig breaks the page's signal protocol.
func (a *arbitration) accept(sig Signal) (*model.Sample, error) {
	p := a.load
	if sig.malformed != nil {
		return nil, p.violation(sig, sig.malformed.Error())
	}

	switch sig.Kind {
	case SignalLoad:
		if p.nav.OwnTiming {
			return nil, p.violation(sig, "default completion for an own-timing page")
		}
		if a.loadAt.IsZero() {
			a.loadAt = sig.At
		}
		if p.nav.PaintTracking && a.paintAt.IsZero() {
			return nil, nil
		}
		return a.defaultSample(sig)

	case SignalPaint:
		if !p.nav.PaintTracking {
			return nil, nil
		}
		if p.nav.OwnTiming {
			// a paint only counts once the page has reported
			if a.report == nil {
				return nil, nil
			}
			return a.reportedSample(sig, epochMs(sig.At)-a.report.StartTime)
		}
		if a.paintAt.IsZero() {
			a.paintAt = sig.At
		}
		if a.loadAt.IsZero() {
			return nil, nil
		}
		return a.defaultSample(sig)

	case SignalRecord:
		if !p.nav.OwnTiming {
			return nil, p.violation(sig, "self-reported completion for a default page")
		}
		if sig.Report == nil {
			return nil, p.violation(sig, "report without a (time, startTime) payload")
		}
		if a.report != nil {
			return nil, p.violation(sig, "page reported more than once")
		}
		if sig.Report.Time <= 0 {
			return nil, p.violation(sig, fmt.Sprintf("non-positive reported time %g", sig.Report.Time))
		}
		if p.nav.PaintTracking {
			// elapsed runs from the reported start to the next paint
			if sig.Report.StartTime <= 0 {
				return nil, p.violation(sig, "report without a start time")
			}
			a.report = sig.Report
			a.reportedAt = sig.At
			return nil, nil
		}
		a.report = sig.Report
		return a.reportedSample(sig, sig.Report.Time)
	}

	return nil, p.violation(sig, "unknown signal kind")
}

func (a *arbitration) defaultSample(sig Signal) (*model.Sample, error) {
	stop := a.loadAt
	if a.paintAt.After(stop) {
		stop = a.paintAt
	}
	elapsed := durationMs(stop.Sub(a.load.start))
	if elapsed < 0 {
		return nil, a.load.violation(sig, fmt.Sprintf("completion %gms before navigation start", -elapsed))
	}
	return &model.Sample{
		Cycle:     a.load.cycle,
		ElapsedMs: elapsed,
		Start:     a.load.start,
		Stop:      stop,
	}, nil
}

func (a *arbitration) reportedSample(sig Signal, elapsed float64) (*model.Sample, error) {
	if elapsed <= 0 {
		return nil, a.load.violation(sig, fmt.Sprintf("non-positive elapsed time %g", elapsed))
	}
	start := a.load.start
	if a.report.StartTime > 0 {
		start = time.UnixMicro(int64(a.report.StartTime * 1000))
	}
	return &model.Sample{
		Cycle:     a.load.cycle,
		ElapsedMs: elapsed,
		Start:     start,
		Stop:      sig.At,
	}, nil
}

// arbiter turns the signals of one navigation into exactly one sample or
// one failure.
type arbiter struct {
	surface Surface
	logger  *slog.Logger
}

// attach registers the listeners for nav. Out-of-process surfaces are heard
// through their message channel, in-process ones directly.
func (a *arbiter) attach(nav Navigation) *listenerScope {
	scope := newListenerScope()

	if !a.surface.OutOfProcess() {
		scope.add(a.surface.AddListener(func(sig Signal) {
			sig.Origin = OriginLocal
			if sig.At.IsZero() {
				sig.At = time.Now()
			}
			scope.deliver(sig)
		}))
		return scope
	}

	names := []string{MessageLoad, MessageRecordTime}
	if nav.PaintTracking {
		names = append(names, MessagePaint)
	}
	channel := a.surface.Messages()
	for _, name := range names {
		scope.add(channel.AddMessageListener(name, func(m Message) {
			if m.Name == "" {
				m.Name = name
			}
			scope.deliver(SignalFromMessage(m))
		}))
	}
	return scope
}

// await blocks until the page completes, the timeout fires, a signal breaks
// protocol or ctx is done.
func (a *arbiter) await(ctx context.Context, scope *listenerScope, load *pageLoad, timeout <-chan time.Time) (model.Sample, error) {
	state := &arbitration{load: load}

	for {
		select {
		case <-ctx.Done():
			return model.Sample{}, &RunError{
				Kind:      ctx.Err(),
				Page:      load.name,
				Cycle:     load.cycle,
				PageIndex: load.index,
			}

		case <-timeout:
			return model.Sample{}, &RunError{
				Kind:      ErrTimeout,
				Page:      load.name,
				Cycle:     load.cycle,
				PageIndex: load.index,
				Expected:  load.expected(),
				Msg:       fmt.Sprintf("no completion signal within %s", load.timeout),
			}

		case <-scope.notify:
			for _, sig := range scope.drain() {
				a.logger.Debug("signal", "page", load.name, "cycle", load.cycle, "signal", sig.String())
				sample, err := state.accept(sig)
				if err != nil {
					return model.Sample{}, err
				}
				if sample != nil {
					return *sample, nil
				}
			}
		}
	}
}
