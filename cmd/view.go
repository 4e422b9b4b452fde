package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pb33f/pagecycle/report"
	"github.com/pb33f/pagecycle/tui"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view <report.json>",
	Short: "Summarize a saved JSON report",
	Long: `Print the per-page summary of a JSON results document written with
'--format json': sample count, median, mean, min, max and standard deviation
of every page's load time.`,
	Args: cobra.ExactArgs(1), // Require exactly one positional argument
	Example: `  pagecycle view results.json
  pagecycle view results.json -v`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	reportFile := args[0]
	logger := GetLogger()

	if err := ValidateReportFile(reportFile); err != nil {
		return err
	}

	f, err := os.Open(reportFile)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	doc, err := report.ReadJSON(f)
	if err != nil {
		return err
	}

	logger.Debug("report loaded",
		"file", reportFile,
		"pages", len(doc.Pages),
		"fingerprint", doc.Meta.Fingerprint)

	pages := doc.Meta.Pages
	if doc.Meta.Fingerprint == "" {
		// no _meta, fall back to name order
		sort.Slice(pages, func(i, j int) bool { return pages[i].Name < pages[j].Name })
	}

	rows := make([][]string, 0, len(pages))
	for i, p := range pages {
		s := p.Summary
		rows = append(rows, []string{
			strconv.Itoa(i),
			p.DisplayName,
			strconv.Itoa(s.Count),
			formatMillis(s.Median),
			formatMillis(s.Mean),
			formatMillis(s.Min),
			formatMillis(s.Max),
			formatMillis(s.StdDev),
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report: %s\n", reportFile)
	if doc.Meta.Fingerprint != "" {
		fmt.Fprintf(out, "Fingerprint: %s, %d cycles\n", doc.Meta.Fingerprint, doc.Meta.Cycles)
	}
	if doc.Meta.CompletedAt > 0 {
		fmt.Fprintf(out, "Completed: %s\n", time.UnixMilli(doc.Meta.CompletedAt).Format("2006-01-02 15:04:05"))
	}
	if doc.Meta.CycleCollectionMs != nil {
		fmt.Fprintf(out, "Cycle collection: %s\n", formatMillis(*doc.Meta.CycleCollectionMs))
	}
	fmt.Fprintln(out, tui.RenderTable(
		[]string{"#", "Page", "Runs", "Median", "Mean", "Min", "Max", "StdDev"}, rows))

	return nil
}

func formatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 2, 64) + "ms"
}

// ValidateReportFile checks if the provided report exists and is a file.
func ValidateReportFile(path string) error {
	if path == "" {
		return fmt.Errorf("report file path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("report file does not exist: %s", path)
		}
		return fmt.Errorf("error accessing report file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("provided path is a directory, not a file: %s", path)
	}

	return nil
}
