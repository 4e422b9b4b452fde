// Package cdp drives a Chrome tab over the DevTools protocol. The browser is
// out of process, so every completion signal reaches the harness as a
// message through a runtime binding.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/chromedp/cdproto/heapprofiler"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/pb33f/pagecycle/motor"
)

type Options struct {
	Width     int
	Height    int
	Headless  bool
	ExecPath  string
	NoSandbox bool
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Width:    1024,
		Height:   768,
		Headless: true,
	}
}

var (
	_ motor.Surface        = (*Surface)(nil)
	_ motor.MessageChannel = (*Surface)(nil)
	_ motor.Collector      = (*Surface)(nil)
)

type listenFunc func(ctx context.Context, fn func(ev any))

// Surface is a single Chrome tab.
type Surface struct {
	logger *slog.Logger
	tab    context.Context
	listen listenFunc
	cancel func()

	mu      sync.Mutex
	current motor.Navigation
	live    map[runtime.ExecutionContextID]bool
	stale   map[runtime.ExecutionContextID]bool
	now     func() time.Time
}

// New launches a browser and prepares its tab. The browser lives until Close
// or until ctx is done.
func New(ctx context.Context, opts Options) (*Surface, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		logger.Error("devtools", "error", fmt.Sprintf(format, args...))
	}))

	s := newSurface(tab, chromedp.ListenTarget, logger)
	s.cancel = func() {
		if err := chromedp.Cancel(tab); err != nil {
			logger.Debug("closing tab", "error", err)
		}
		tabCancel()
		allocCancel()
	}

	// starts the browser
	if err := chromedp.Run(tab, chromedp.ActionFunc(setup)); err != nil {
		s.cancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	logger.Debug("browser ready", "width", opts.Width, "height", opts.Height, "headless", opts.Headless)
	return s, nil
}

func newSurface(tab context.Context, listen listenFunc, logger *slog.Logger) *Surface {
	s := &Surface{
		logger: logger,
		tab:    tab,
		listen: listen,
		cancel: func() {},
		live:   make(map[runtime.ExecutionContextID]bool),
		stale:  make(map[runtime.ExecutionContextID]bool),
		now:    time.Now,
	}
	s.listen(tab, s.track)
	return s
}

func setup(ctx context.Context) error {
	if err := runtime.Enable().Do(ctx); err != nil {
		return fmt.Errorf("enabling runtime: %w", err)
	}
	if err := page.Enable().Do(ctx); err != nil {
		return fmt.Errorf("enabling page: %w", err)
	}
	if err := runtime.AddBinding(BindingName).Do(ctx); err != nil {
		return fmt.Errorf("adding binding: %w", err)
	}
	if _, err := page.AddScriptToEvaluateOnNewDocument(bootstrapScript).Do(ctx); err != nil {
		return fmt.Errorf("installing bootstrap script: %w", err)
	}
	return nil
}

// track follows execution contexts so signals from a document that was
// already showing when a navigation started can be dropped.
func (s *Surface) track(ev any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		if ev.Context != nil {
			s.live[ev.Context.ID] = true
		}
	case *runtime.EventExecutionContextDestroyed:
		delete(s.live, ev.ExecutionContextID)
		delete(s.stale, ev.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		clear(s.live)
		clear(s.stale)
	}
}

func (s *Surface) OutOfProcess() bool { return true }

func (s *Surface) Messages() motor.MessageChannel { return s }

// AddListener is unused: every signal arrives as a message.
func (s *Surface) AddListener(func(motor.Signal)) func() {
	return func() {}
}

// AddMessageListener listens for binding calls carrying messages called
// name. Removing the listener cancels its listen context.
func (s *Surface) AddMessageListener(name string, fn func(motor.Message)) func() {
	ctx, cancel := context.WithCancel(s.tab)
	s.listen(ctx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != BindingName {
			return
		}
		msg, ok := s.decode(called)
		if !ok || msg.Name != name {
			return
		}
		select {
		case <-ctx.Done():
		default:
			fn(msg)
		}
	})
	return cancel
}

type envelope struct {
	Name string `json:"name"`
}

// decode turns a binding call into a message for the current navigation.
// Load is only passed on for default pages, paint only when tracked.
func (s *Surface) decode(called *runtime.EventBindingCalled) (motor.Message, bool) {
	s.mu.Lock()
	nav := s.current
	stale := s.stale[called.ExecutionContextID]
	s.mu.Unlock()

	if stale {
		return motor.Message{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(called.Payload), &env); err != nil {
		s.logger.Warn("undecodable page signal", "payload", called.Payload, "error", err)
		return motor.Message{}, false
	}

	switch env.Name {
	case motor.MessageLoad:
		if nav.OwnTiming {
			return motor.Message{}, false
		}
	case motor.MessagePaint:
		if !nav.PaintTracking {
			return motor.Message{}, false
		}
	}

	return motor.Message{Name: env.Name, Payload: []byte(called.Payload), At: s.now()}, true
}

func (s *Surface) Navigate(ctx context.Context, nav motor.Navigation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = nav
	s.stale = maps.Clone(s.live)
	s.mu.Unlock()

	return chromedp.Run(s.tab, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(nav.URL).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigating to %s: %s", nav.URL, errorText)
		}
		return nil
	}))
}

// CollectGarbage forces a full collection in the page's isolate.
func (s *Surface) CollectGarbage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.tab, chromedp.ActionFunc(func(ctx context.Context) error {
		return heapprofiler.CollectGarbage().Do(ctx)
	}))
}

// Close shuts the tab and the browser down.
func (s *Surface) Close() error {
	s.cancel()
	return nil
}
