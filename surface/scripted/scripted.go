// Package scripted provides a navigation surface that plays back per-URL
// scripts instead of loading pages. It backs dry runs and engine tests.
package scripted

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pb33f/pagecycle/motor"
)

// Script describes how a page behaves once navigated to.
type Script struct {
	// LoadAfter is the delay before a default page signals load.
	LoadAfter time.Duration

	// ReportAfter is the delay before an own-timing page reports.
	ReportAfter time.Duration

	// Report is what an own-timing page reports. When nil the page reports the
	// time since navigation, started at navigation.
	Report *motor.Reported

	// PaintAfter is the delay, after load or report, before paint settles.
	// Paint is only signalled for navigations that track it.
	PaintAfter time.Duration

	// Jitter adds a random delay up to this long to LoadAfter and ReportAfter.
	Jitter time.Duration

	// Silent pages never signal anything.
	Silent bool

	// WrongShape pages signal with the opposite shape to the one expected:
	// default pages report, own-timing pages fire load.
	WrongShape bool

	// FailNavigate is returned from Navigate.
	FailNavigate error
}

type Option func(*Surface)

// Remote delivers every signal through the message channel, the way an
// out-of-process surface would.
func Remote() Option {
	return func(s *Surface) { s.remote = true }
}

// WithDefault sets the script for URLs without their own.
func WithDefault(script Script) Option {
	return func(s *Surface) { s.def = script }
}

func WithScript(url string, script Script) Option {
	return func(s *Surface) { s.scripts[url] = script }
}

// WithCollectionCost makes each CollectGarbage call take d.
func WithCollectionCost(d time.Duration) Option {
	return func(s *Surface) { s.collectionCost = d }
}

type messageListener struct {
	name string
	fn   func(motor.Message)
}

var (
	_ motor.Surface        = (*Surface)(nil)
	_ motor.MessageChannel = (*Surface)(nil)
	_ motor.Collector      = (*Surface)(nil)
)

// Surface implements motor.Surface, motor.MessageChannel and motor.Collector.
type Surface struct {
	remote         bool
	def            Script
	scripts        map[string]Script
	collectionCost time.Duration

	mu               sync.Mutex
	nextID           int
	listeners        map[int]func(motor.Signal)
	messageListeners map[int]messageListener
	navigations      []motor.Navigation
	activeAtNavigate []int
	collections      int

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func New(opts ...Option) *Surface {
	s := &Surface{
		def:              Script{LoadAfter: time.Millisecond, ReportAfter: time.Millisecond},
		scripts:          make(map[string]Script),
		listeners:        make(map[int]func(motor.Signal)),
		messageListeners: make(map[int]messageListener),
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Surface) OutOfProcess() bool { return s.remote }

func (s *Surface) Messages() motor.MessageChannel {
	if !s.remote {
		return nil
	}
	return s
}

func (s *Surface) AddListener(fn func(motor.Signal)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Surface) AddMessageListener(name string, fn func(motor.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.messageListeners[id] = messageListener{name: name, fn: fn}
	return func() {
		s.mu.Lock()
		delete(s.messageListeners, id)
		s.mu.Unlock()
	}
}

func (s *Surface) Navigate(ctx context.Context, nav motor.Navigation) error {
	s.mu.Lock()
	s.navigations = append(s.navigations, nav)
	s.activeAtNavigate = append(s.activeAtNavigate, len(s.listeners)+len(s.messageListeners))
	script, ok := s.scripts[nav.URL]
	if !ok {
		script = s.def
	}
	s.mu.Unlock()

	if script.FailNavigate != nil {
		return script.FailNavigate
	}
	if script.Silent {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.play(ctx, nav, script, time.Now())
	}()
	return nil
}

func (s *Surface) play(ctx context.Context, nav motor.Navigation, script Script, start time.Time) {
	own := nav.OwnTiming != script.WrongShape

	wait := script.LoadAfter
	if own {
		wait = script.ReportAfter
	}
	if script.Jitter > 0 {
		wait += rand.N(script.Jitter)
	}
	if !s.sleep(ctx, wait) {
		return
	}

	if own {
		rep := script.Report
		if rep == nil {
			now := time.Now()
			rep = &motor.Reported{
				Time:      float64(now.Sub(start)) / float64(time.Millisecond),
				StartTime: float64(start.UnixMicro()) / 1000,
			}
		}
		s.Emit(motor.Signal{Kind: motor.SignalRecord, Report: rep})
	} else {
		s.Emit(motor.Signal{Kind: motor.SignalLoad})
	}

	if !nav.PaintTracking || !s.sleep(ctx, script.PaintAfter) {
		return
	}
	s.Emit(motor.Signal{Kind: motor.SignalPaint})
}

func (s *Surface) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	}
}

// Emit delivers sig to whoever is listening now, as a direct signal or as
// the equivalent message when the surface is remote.
func (s *Surface) Emit(sig motor.Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	if !s.remote {
		sig.Origin = motor.OriginLocal
		for _, fn := range s.snapshotListeners() {
			fn(sig)
		}
		return
	}

	msg := motor.Message{At: sig.At}
	switch sig.Kind {
	case motor.SignalLoad:
		msg.Name = motor.MessageLoad
	case motor.SignalPaint:
		msg.Name = motor.MessagePaint
	case motor.SignalRecord:
		msg.Name = motor.MessageRecordTime
		if sig.Report != nil {
			msg.Payload, _ = json.Marshal(sig.Report)
		}
	}
	s.EmitMessage(msg)
}

// EmitMessage delivers m to the message listeners registered for its name.
func (s *Surface) EmitMessage(m motor.Message) {
	for _, l := range s.snapshotMessageListeners() {
		if l.name == m.Name {
			l.fn(m)
		}
	}
}

func (s *Surface) snapshotListeners() []func(motor.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(motor.Signal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *Surface) snapshotMessageListeners() []messageListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]messageListener, 0, len(s.messageListeners))
	for _, l := range s.messageListeners {
		out = append(out, l)
	}
	return out
}

func (s *Surface) CollectGarbage(ctx context.Context) error {
	s.mu.Lock()
	s.collections++
	s.mu.Unlock()

	if s.collectionCost > 0 && !s.sleep(ctx, s.collectionCost) {
		return context.Cause(ctx)
	}
	return ctx.Err()
}

// Navigations returns every navigation issued so far, in order.
func (s *Surface) Navigations() []motor.Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motor.Navigation(nil), s.navigations...)
}

// ListenersAtNavigate returns how many listeners were registered at the
// moment of each navigation.
func (s *Surface) ListenersAtNavigate() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.activeAtNavigate...)
}

// ActiveListeners counts listeners registered right now.
func (s *Surface) ActiveListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners) + len(s.messageListeners)
}

func (s *Surface) Collections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections
}

// Close stops pending playback and waits for it to exit.
func (s *Surface) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

// WithoutCollector hides the Collector capability of s.
func WithoutCollector(s *Surface) motor.Surface {
	return plain{s}
}

type plain struct {
	s *Surface
}

func (p plain) Navigate(ctx context.Context, nav motor.Navigation) error { return p.s.Navigate(ctx, nav) }
func (p plain) OutOfProcess() bool                                      { return p.s.OutOfProcess() }
func (p plain) AddListener(fn func(motor.Signal)) func()                { return p.s.AddListener(fn) }
func (p plain) Messages() motor.MessageChannel                          { return p.s.Messages() }
