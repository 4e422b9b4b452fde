package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pb33f/pagecycle/motor"
	"github.com/pb33f/pagecycle/report"
	"github.com/pb33f/pagecycle/sitegen"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addRunFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadRunConfig_Defaults(t *testing.T) {
	cfg, err := loadRunConfig(newRunCommand(t, "-m", "pages.manifest"), "")
	require.NoError(t, err)

	d := motor.DefaultOptions()
	d.Manifest = "pages.manifest"
	assert.Equal(t, d, cfg.Options)
	assert.Equal(t, SurfaceCDP, cfg.Surface)
	assert.Equal(t, report.FormatText, cfg.Format)
	assert.Equal(t, "-", cfg.Output)
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.Monitor)
}

func TestLoadRunConfig_Flags(t *testing.T) {
	cfg, err := loadRunConfig(newRunCommand(t,
		"-m", "pages.manifest",
		"--start", "1", "--end", "3",
		"-c", "2",
		"--timeout", "30s",
		"--delay", "0",
		"--paint",
		"--force-cc=false",
		"--surface", "scripted",
		"-f", "json",
	), "")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Options.StartIndex)
	assert.Equal(t, 3, cfg.Options.EndIndex)
	assert.Equal(t, 2, cfg.Options.Cycles)
	assert.Equal(t, 30*time.Second, cfg.Options.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Options.Delay)
	assert.True(t, cfg.Options.PaintTracking)
	assert.False(t, cfg.Options.ForceCycleCollection)
	assert.Equal(t, SurfaceScripted, cfg.Surface)
	assert.Equal(t, report.FormatJSON, cfg.Format)
}

func TestLoadRunConfig_Environment(t *testing.T) {
	t.Setenv("PAGECYCLE_MANIFEST", "env.manifest")
	t.Setenv("PAGECYCLE_CYCLES", "7")
	t.Setenv("PAGECYCLE_DELAY", "500")
	t.Setenv("PAGECYCLE_FORCE_CC", "false")

	cfg, err := loadRunConfig(newRunCommand(t), "")
	require.NoError(t, err)

	assert.Equal(t, "env.manifest", cfg.Options.Manifest)
	assert.Equal(t, 7, cfg.Options.Cycles)
	assert.Equal(t, 500*time.Millisecond, cfg.Options.Delay)
	assert.False(t, cfg.Options.ForceCycleCollection)
}

func TestLoadRunConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
manifest = "file.manifest"
cycles = 3
timeout = "5s"
surface = "scripted"
`), 0644))

	t.Run("file values", func(t *testing.T) {
		cfg, err := loadRunConfig(newRunCommand(t), path)
		require.NoError(t, err)
		assert.Equal(t, "file.manifest", cfg.Options.Manifest)
		assert.Equal(t, 3, cfg.Options.Cycles)
		assert.Equal(t, 5*time.Second, cfg.Options.Timeout)
		assert.Equal(t, SurfaceScripted, cfg.Surface)
	})

	t.Run("flags win", func(t *testing.T) {
		cfg, err := loadRunConfig(newRunCommand(t, "-c", "9"), path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Options.Cycles)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadRunConfig(newRunCommand(t), filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestLoadRunConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no manifest", nil},
		{"bad surface", []string{"-m", "x", "--surface", "webkit"}},
		{"bad format", []string{"-m", "x", "-f", "xml"}},
		{"zero cycles", []string{"-m", "x", "--cycles", "0"}},
		{"negative delay", []string{"-m", "x", "--delay", "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadRunConfig(newRunCommand(t, tt.args...), "")
			assert.Error(t, err)
		})
	}
}

func TestFinish(t *testing.T) {
	t.Run("finished", func(t *testing.T) {
		var out bytes.Buffer
		assert.NoError(t, finish(&out, motor.Outcome{Status: motor.StatusFinished}))
		assert.Empty(t, out.String())
	})

	t.Run("sink failure", func(t *testing.T) {
		sinkErr := errors.New("disk full")
		err := finish(&bytes.Buffer{}, motor.Outcome{Status: motor.StatusFinished, Err: sinkErr})
		assert.ErrorIs(t, err, sinkErr)
	})

	t.Run("timeout prints marker", func(t *testing.T) {
		var out bytes.Buffer
		err := finish(&out, motor.Outcome{
			Status: motor.StatusAborted,
			Err:    &motor.RunError{Kind: motor.ErrTimeout, Page: "http://localhost/a.html"},
		})
		assert.ErrorIs(t, err, ErrRunAborted)
		assert.ErrorIs(t, err, motor.ErrTimeout)
		assert.Equal(t, "__FAILTimeout exceeded on http://localhost/a.html__FAIL\n", out.String())
	})

	t.Run("other abort", func(t *testing.T) {
		var out bytes.Buffer
		err := finish(&out, motor.Outcome{
			Status: motor.StatusAborted,
			Err:    &motor.RunError{Kind: motor.ErrProtocolViolation, Page: "a"},
		})
		assert.ErrorIs(t, err, ErrRunAborted)
		assert.Empty(t, out.String())
	})
}

func TestRootCommand_ScriptedRun(t *testing.T) {
	dir := t.TempDir()
	_, manifestPath, err := sitegen.GenerateToDir(filepath.Join(dir, "site"), sitegen.GenerateOptions{
		PageCount:      3,
		SubPageCount:   1,
		OwnTimingEvery: 2,
		Paragraphs:     1,
		DictionaryPath: filepath.Join(dir, "missing-words"),
		Seed:           1,
	})
	require.NoError(t, err)

	output := filepath.Join(dir, "out", "results.json")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{
		"-m", manifestPath,
		"--surface", "scripted",
		"-c", "2",
		"--delay", "0",
		"-f", "json",
		"-o", output,
		"--history", filepath.Join(dir, "runs.db"),
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	doc, err := report.ReadJSON(f)
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 4)
	assert.Equal(t, 2, doc.Meta.Cycles)
	for name, runs := range doc.Pages {
		assert.Len(t, runs, 2, name)
	}
	assert.FileExists(t, filepath.Join(dir, "runs.db"))
}
