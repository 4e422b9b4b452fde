package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/pb33f/pagecycle/motor"
	"github.com/pb33f/pagecycle/tui"
	"golang.org/x/sync/errgroup"
)

// LaunchMonitor runs the benchmark with the live monitor attached. Quitting
// the monitor aborts the run.
func LaunchMonitor(ctx context.Context, surface motor.Surface, opts motor.Options, options ...motor.ControllerOption) (motor.Outcome, error) {
	model := tui.NewMonitorModel(opts.Manifest, tui.ExitOnFinish())
	p := tea.NewProgram(model, tea.WithContext(ctx))

	ctrl := motor.NewController(surface, opts, append(options, motor.WithObserver(tui.Observer(p.Send)))...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var outcome motor.Outcome
	g := new(errgroup.Group)

	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		outcome = ctrl.Run(runCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return outcome, err
	}

	if model.Quitting() {
		GetLogger().Warn("monitor closed before the run ended")
	}
	fmt.Println(model.Summary())
	return outcome, nil
}
