package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pb33f/pagecycle/history"
	"github.com/pb33f/pagecycle/motor"
	"github.com/pb33f/pagecycle/report"
	"github.com/pb33f/pagecycle/surface/cdp"
	"github.com/pb33f/pagecycle/surface/scripted"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configFile string
	Logger     *slog.Logger

	// ErrRunAborted is returned by the root command when the run did not finish.
	ErrRunAborted = errors.New("run aborted")

	rootCmd = &cobra.Command{
		Use:   "pagecycle",
		Short: "A page load benchmark harness",
		Long: `pagecycle loads every page of a manifest in a browser, cycle after cycle,
and records how long each load took. Pages either finish on the browser's
load event or report their own timing through tpRecordTime(time, startTime).
The collected samples are written as a tp report, a JSON results document
or a HAR file, and can be recorded in a SQLite history for comparison.`,
		Args: cobra.NoArgs,
		Example: `  pagecycle -m pages.manifest
  pagecycle -m http://localhost:8080/pages.manifest -c 10 --timeout 30s -f json -o results.json
  pagecycle -m pages.manifest --surface scripted --monitor
  pagecycle --config profile.toml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(os.Stderr)
		},
		RunE: runBenchmark,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Run profile (TOML, YAML or JSON)")
	addRunFlags(rootCmd.Flags())

	// will be reconfigured in PersistentPreRun based on flags
	setupLogger(os.Stderr)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the monitor owns the terminal, logs are held back until it exits
	var held bytes.Buffer
	if cfg.Monitor {
		setupLogger(&held)
		defer func() {
			setupLogger(os.Stderr)
			if _, err := held.WriteTo(os.Stderr); err != nil {
				GetLogger().Debug("flushing held logs", "error", err)
			}
		}()
	}
	logger := GetLogger()

	surface, closer, err := openSurface(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Debug("closing surface", "error", err)
		}
	}()

	sinks := report.Sinks{report.FileSink{Path: cfg.Output, Format: cfg.Format, Stdout: cmd.OutOrStdout()}}
	if cfg.History != "" {
		store, err := history.Open(ctx, cfg.History, history.DefaultThresholdPct, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	logger.Info("starting run",
		"manifest", cfg.Options.Manifest,
		"surface", cfg.Surface,
		"cycles", cfg.Options.Cycles,
		"timeout", cfg.Options.Timeout,
		"delay", cfg.Options.Delay)

	opts := []motor.ControllerOption{
		motor.WithLogger(logger),
		motor.WithSink(sinks),
	}

	var outcome motor.Outcome
	if cfg.Monitor {
		outcome, err = LaunchMonitor(ctx, surface, cfg.Options, opts...)
		if err != nil {
			return err
		}
	} else {
		outcome = motor.NewController(surface, cfg.Options, opts...).Run(ctx)
	}

	return finish(cmd.OutOrStdout(), outcome)
}

// finish turns a run outcome into the command result, printing the legacy
// failure marker that harness log scrapers look for.
func finish(w io.Writer, outcome motor.Outcome) error {
	if outcome.Status == motor.StatusFinished {
		if outcome.Err != nil {
			return outcome.Err
		}
		return nil
	}

	var runErr *motor.RunError
	if errors.As(outcome.Err, &runErr) && errors.Is(runErr, motor.ErrTimeout) {
		fmt.Fprintf(w, "__FAILTimeout exceeded on %s__FAIL\n", runErr.Page)
	}
	return fmt.Errorf("%w: %w", ErrRunAborted, outcome.Err)
}

func openSurface(ctx context.Context, cfg *RunConfig, logger *slog.Logger) (motor.Surface, io.Closer, error) {
	switch cfg.Surface {
	case SurfaceScripted:
		s := scripted.New(scripted.WithDefault(scripted.Script{
			LoadAfter:   50 * time.Millisecond,
			ReportAfter: 50 * time.Millisecond,
			PaintAfter:  10 * time.Millisecond,
			Jitter:      25 * time.Millisecond,
		}), scripted.WithCollectionCost(2*time.Millisecond))
		logger.Warn("using the scripted surface, timings are simulated")
		return s, s, nil

	default:
		s, err := cdp.New(ctx, cdp.Options{
			Width:     cfg.Options.Width,
			Height:    cfg.Options.Height,
			Headless:  cfg.Headless,
			ExecPath:  cfg.ChromePath,
			NoSandbox: cfg.NoSandbox,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

// setupLogger configures the global slog logger based on the verbose flag
func setupLogger(w io.Writer) {
	var opts *slog.HandlerOptions

	if verbose {
		opts = &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		}
	} else {
		opts = &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
	}

	handler := slog.NewTextHandler(w, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// GetLogger returns the global logger instance
func GetLogger() *slog.Logger {
	if Logger == nil {
		setupLogger(os.Stderr)
	}
	return Logger
}
