package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pb33f/pagecycle/motor"
	"github.com/pb33f/pagecycle/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PAGECYCLE"

// Surfaces a run can drive.
const (
	SurfaceCDP      = "cdp"
	SurfaceScripted = "scripted"
)

// RunConfig is everything the root command needs, after flags, the
// optional config file and PAGECYCLE_* environment variables are merged.
type RunConfig struct {
	Options motor.Options

	Surface    string
	Output     string
	Format     report.Format
	History    string
	Monitor    bool
	ChromePath string
	Headless   bool
	NoSandbox  bool
}

func addRunFlags(flags *pflag.FlagSet) {
	d := motor.DefaultOptions()

	flags.StringP("manifest", "m", "", "Page manifest location (path, file:// or http(s):// URL)")
	flags.Int("start", d.StartIndex, "Index of the first page to load")
	flags.Int("end", d.EndIndex, "Index of the last page to load (-1 = last page)")
	flags.IntP("cycles", "c", d.Cycles, "Number of times to cycle through the page list")
	flags.Int("width", d.Width, "Window width")
	flags.Int("height", d.Height, "Window height")
	flags.Duration("timeout", d.Timeout, "Per-page load timeout (0 = disabled)")
	flags.Duration("delay", d.Delay, "Delay before each navigation")
	flags.Bool("paint", d.PaintTracking, "Wait for paint stability before timing a page")
	flags.Bool("force-cc", d.ForceCycleCollection, "Force a timed garbage collection between pages")

	flags.String("surface", SurfaceCDP, "Navigation surface: cdp or scripted")
	flags.StringP("output", "o", "-", "Report destination ('-' = stdout)")
	flags.StringP("format", "f", string(report.FormatText), "Report format: text, json or har")
	flags.String("history", "", "SQLite database to record the run in (empty = off)")
	flags.Bool("monitor", false, "Show a live monitor while the run progresses")
	flags.String("chrome-path", "", "Chrome executable (default: search PATH)")
	flags.Bool("headless", true, "Run Chrome headless")
	flags.Bool("no-sandbox", false, "Disable the Chrome sandbox")
}

// loadRunConfig merges flags, config file and environment. Flags the user set
// win over the environment, which wins over the file.
func loadRunConfig(cmd *cobra.Command, configFile string) (*RunConfig, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
			return nil, fmt.Errorf("failed to read config file at %s: %w", configFile, err)
		}
	}

	return runConfigFrom(v)
}

func runConfigFrom(v *viper.Viper) (*RunConfig, error) {
	format, err := report.ParseFormat(v.GetString("format"))
	if err != nil {
		return nil, err
	}

	timeout, err := durationValue(v, "timeout")
	if err != nil {
		return nil, err
	}
	delay, err := durationValue(v, "delay")
	if err != nil {
		return nil, err
	}

	cfg := &RunConfig{
		Options: motor.Options{
			Manifest:             v.GetString("manifest"),
			StartIndex:           v.GetInt("start"),
			EndIndex:             v.GetInt("end"),
			Cycles:               v.GetInt("cycles"),
			Width:                v.GetInt("width"),
			Height:               v.GetInt("height"),
			Timeout:              timeout,
			Delay:                delay,
			PaintTracking:        v.GetBool("paint"),
			ForceCycleCollection: v.GetBool("force-cc"),
		},
		Surface:    strings.ToLower(v.GetString("surface")),
		Output:     v.GetString("output"),
		Format:     format,
		History:    v.GetString("history"),
		Monitor:    v.GetBool("monitor"),
		ChromePath: v.GetString("chrome-path"),
		Headless:   v.GetBool("headless"),
		NoSandbox:  v.GetBool("no-sandbox"),
	}

	switch cfg.Surface {
	case SurfaceCDP, SurfaceScripted:
	default:
		return nil, fmt.Errorf("unknown surface %q (want %s or %s)", cfg.Surface, SurfaceCDP, SurfaceScripted)
	}

	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationValue accepts Go durations ("2s") and, like the legacy
// tp options, a bare number of milliseconds.
func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	ms := v.GetFloat64(key)
	if ms == 0 && raw != "0" {
		return 0, fmt.Errorf("invalid %s %q: want a duration like 250ms or a number of milliseconds", key, raw)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
