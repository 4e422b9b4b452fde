package motor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pb33f/pagecycle/manifest"
	"github.com/pb33f/pagecycle/motor/model"
	"github.com/pb33f/pagecycle/report"
)

// Aggregator collects the samples of a run. report.Aggregator is the default.
type Aggregator interface {
	RecordTiming(page string, sample model.Sample)
	RecordCycleCollectionTime(ms float64)
	BuildReport() *model.Report
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver adds an observer; it may be given more than once.
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithSink sets the collaborator the final report is handed to.
func WithSink(s report.Sink) ControllerOption {
	return func(c *Controller) { c.sink = s }
}

func WithLoader(l manifest.Loader) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.loader = l
		}
	}
}

func WithAggregator(a Aggregator) ControllerOption {
	return func(c *Controller) {
		if a != nil {
			c.agg = a
		}
	}
}

// Controller drives a surface through every page of a manifest for the
// configured number of cycles. All run state lives on the instance, so any
// number of controllers may run side by side.
type Controller struct {
	surface   Surface
	opts      Options
	logger    *slog.Logger
	observers []Observer
	sink      report.Sink
	loader    manifest.Loader
	agg       Aggregator
	arbiter   *arbiter

	mu      sync.Mutex
	state   State
	cycle   CycleState
	scope   *listenerScope
	pages   []manifest.Page
	outcome Outcome
	started time.Time
	done    chan struct{}
}

func NewController(surface Surface, opts Options, options ...ControllerOption) *Controller {
	c := &Controller{
		surface: surface,
		opts:    opts,
		logger:  slog.Default(),
		loader:  manifest.DefaultLoader{},
		agg:     report.NewAggregator(),
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	c.arbiter = &arbiter{surface: surface, logger: c.logger}
	return c
}

// Start launches the run in its own goroutine. It returns false, and does
// nothing, when the controller has already been started.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return false
	}
	c.state = StateRunning
	c.started = time.Now()
	go c.run(ctx)
	return true
}

// Done is closed once the run has reached a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run ends. It blocks forever on a controller that was
// never started.
func (c *Controller) Wait() Outcome {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Run starts the controller and waits for the outcome.
func (c *Controller) Run(ctx context.Context) Outcome {
	c.Start(ctx)
	return c.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Cycle() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle
}

// Pages returns the working page list, available once the run has started
// navigating.
func (c *Controller) Pages() []manifest.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	outcome := c.execute(ctx)

	c.mu.Lock()
	c.outcome = outcome
	c.mu.Unlock()

	c.emit(RunFinished{Outcome: outcome})
}

func (c *Controller) execute(ctx context.Context) Outcome {
	pages, err := c.initialize(ctx)
	if err != nil {
		return c.abort(err)
	}

	names := make([]string, len(pages))
	for i, p := range pages {
		names[i] = p.Name()
	}
	c.logger.Info("run started", "manifest", c.opts.Manifest, "pages", len(pages), "cycles", c.opts.Cycles)
	c.emit(RunStarted{Pages: names, Cycles: c.opts.Cycles})

	for cycle := 0; cycle < c.opts.Cycles; cycle++ {
		c.mu.Lock()
		c.cycle = CycleState{CycleIndex: cycle, StartedAt: time.Now()}
		c.mu.Unlock()

		for i, page := range pages {
			c.mu.Lock()
			c.cycle.PageIndex = i
			c.mu.Unlock()

			if err := sleep(ctx, c.opts.Delay); err != nil {
				return c.abort(&RunError{Kind: err, Page: page.Name(), Cycle: cycle, PageIndex: i})
			}

			sample, err := c.loadPage(ctx, cycle, i, page)
			if err != nil {
				return c.abort(err)
			}

			c.agg.RecordTiming(page.Name(), sample)
			c.logger.Debug("page timed", "page", page.Name(), "cycle", cycle, "elapsed_ms", sample.ElapsedMs)
			c.emit(PageTimed{Cycle: cycle, Index: i, Name: page.Name(), ElapsedMs: sample.ElapsedMs})

			if err := c.transition(StateAdvancing); err != nil {
				return c.abort(err)
			}
			if i < len(pages)-1 {
				c.collect(ctx)
			}
		}

		if err := c.transition(StateCycleComplete); err != nil {
			return c.abort(err)
		}
		c.emit(CycleCompleted{Cycle: cycle})
	}

	if err := c.transition(StateFinished); err != nil {
		return c.abort(err)
	}

	rep := c.buildReport(pages)
	c.logger.Info("run finished", "pages", len(rep.Pages), "samples", rep.SampleCount(),
		"cc_total_ms", rep.CycleCollectionMs)

	out := Outcome{Status: StatusFinished, Report: rep}
	if c.sink != nil {
		if err := c.sink.Save(ctx, rep); err != nil {
			c.logger.Error("saving report", "error", err)
			out.Err = fmt.Errorf("saving report: %w", err)
		}
	}
	return out
}

// initialize resolves the working page list.
func (c *Controller) initialize(ctx context.Context) ([]manifest.Page, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}
	if c.surface == nil {
		return nil, configErrorf("no navigation surface")
	}
	if c.surface.OutOfProcess() && c.surface.Messages() == nil {
		return nil, configErrorf("out-of-process surface without a message channel")
	}

	all, err := manifest.Parse(ctx, c.opts.Manifest, c.loader)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, configErrorf("manifest %s lists no pages", c.opts.Manifest)
	}

	start, end, err := selectRange(len(all), c.opts.StartIndex, c.opts.EndIndex)
	if err != nil {
		return nil, err
	}
	pages := all[start : end+1]

	c.mu.Lock()
	c.pages = pages
	c.mu.Unlock()
	return pages, nil
}

func (c *Controller) loadPage(ctx context.Context, cycle, index int, page manifest.Page) (model.Sample, error) {
	if err := c.transition(StateNavigating); err != nil {
		return model.Sample{}, err
	}

	nav := Navigation{
		URL:           page.URL.String(),
		OwnTiming:     page.OwnTiming,
		PaintTracking: c.opts.PaintTracking,
	}

	// the previous page's scope is always released by now
	scope := c.arbiter.attach(nav)
	c.mu.Lock()
	c.scope = scope
	c.mu.Unlock()
	defer c.releaseScope()

	var timeout <-chan time.Time
	if c.opts.Timeout > 0 {
		timer := time.NewTimer(c.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	load := &pageLoad{
		cycle:   cycle,
		index:   index,
		name:    page.Name(),
		nav:     nav,
		// stamped before Navigate returns, so a surface that signals
		// synchronously never completes ahead of its start
		start:   time.Now(),
		timeout: c.opts.Timeout,
	}
	c.emit(PageStarted{Cycle: cycle, Index: index, URL: nav.URL})

	if err := c.surface.Navigate(ctx, nav); err != nil {
		return model.Sample{}, &RunError{
			Kind:      ErrNavigation,
			Page:      load.name,
			Cycle:     cycle,
			PageIndex: index,
			Err:       err,
		}
	}
	if err := c.transition(StateAwaitingSignal); err != nil {
		return model.Sample{}, err
	}

	return c.arbiter.await(ctx, scope, load, timeout)
}

// collect runs a forced collection pass when configured and supported.
// A failed pass is logged and not recorded.
func (c *Controller) collect(ctx context.Context) {
	if !c.opts.ForceCycleCollection {
		return
	}
	collector, ok := c.surface.(Collector)
	if !ok {
		return
	}

	start := time.Now()
	if err := collector.CollectGarbage(ctx); err != nil {
		c.logger.Warn("cycle collection failed", "error", err)
		return
	}
	ms := durationMs(time.Since(start))
	c.agg.RecordCycleCollectionTime(ms)
	c.emit(CycleCollected{Ms: ms})
}

func (c *Controller) buildReport(pages []manifest.Page) *model.Report {
	rep := c.agg.BuildReport()

	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.String()
	}
	rep.Fingerprint = report.Fingerprint(urls)
	rep.Cycles = c.opts.Cycles

	c.mu.Lock()
	rep.StartedAt = c.started
	c.mu.Unlock()
	if rep.CompletedAt.IsZero() {
		rep.CompletedAt = time.Now()
	}
	return rep
}

// abort moves the run to Aborted, releasing any listeners still attached.
func (c *Controller) abort(err error) Outcome {
	c.releaseScope()

	c.mu.Lock()
	from := c.state
	if !from.Terminal() {
		c.state = StateAborted
	}
	cycle := c.cycle
	c.mu.Unlock()

	var parseErr *manifest.ParseError
	var runErr *RunError
	switch {
	case errors.As(err, &parseErr):
		c.logger.Error("run aborted", "state", from, "manifest", parseErr.Manifest, "line", parseErr.Line, "error", err)
	case errors.As(err, &runErr) && runErr.Page != "":
		c.logger.Error("run aborted", "state", from, "page", runErr.Page,
			"cycle", runErr.Cycle, "index", runErr.PageIndex, "error", err)
	default:
		c.logger.Error("run aborted", "state", from, "cycle", cycle.CycleIndex, "error", err)
	}

	return Outcome{Status: StatusAborted, Err: err, Report: c.agg.BuildReport()}
}

func (c *Controller) releaseScope() {
	c.mu.Lock()
	scope := c.scope
	c.scope = nil
	c.mu.Unlock()

	if scope != nil {
		scope.release()
	}
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !allowedTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.state = to
	return nil
}

func (c *Controller) emit(e Event) {
	for _, o := range c.observers {
		o.Observe(e)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
