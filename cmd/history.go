package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pb33f/pagecycle/history"
	"github.com/pb33f/pagecycle/tui"
	"github.com/spf13/cobra"
)

var (
	historyDB        string
	historyLimit     int
	historyThreshold float64
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs and compare the latest against the previous one",
	Long: `List the runs recorded with '--history' and, for the most recent run,
compare every page's median load time against the previous run of the same
page list. A page that got slower by more than the threshold is flagged.`,
	Args: cobra.NoArgs,
	Example: `  pagecycle history --db runs.db
  pagecycle history --db runs.db --limit 5 --threshold 5`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyDB, "db", "pagecycle.db", "History database")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().Float64Var(&historyThreshold, "threshold", history.DefaultThresholdPct, "Median growth, in percent, flagged as a degradation")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := GetLogger()

	if err := ValidateReportFile(historyDB); err != nil {
		return err
	}

	store, err := history.Open(ctx, historyDB, historyThreshold, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.FinishedAt.Format("2006-01-02 15:04:05"),
			r.Fingerprint,
			strconv.Itoa(r.Cycles),
			strconv.Itoa(r.Samples),
			formatMillis(r.CycleCollectionMs),
		})
	}
	fmt.Fprintln(out, tui.RenderTable([]string{"Run", "Finished", "Fingerprint", "Cycles", "Samples", "CC"}, rows))

	cmp, err := store.Compare(ctx, runs[0].Fingerprint)
	if errors.Is(err, history.ErrNotEnoughRuns) {
		fmt.Fprintf(out, "Run %d has no earlier run to compare with.\n", runs[0].ID)
		return nil
	}
	if err != nil {
		return err
	}

	deltas := make([][]string, 0, len(cmp.Pages))
	for _, d := range cmp.Pages {
		change := fmt.Sprintf("%+.1f%%", d.ChangePct)
		deltas = append(deltas, []string{
			d.Page,
			formatMillis(d.PreviousMedian),
			formatMillis(d.CurrentMedian),
			tui.RenderChange(change, d.ChangePct, cmp.ThresholdPct),
		})
	}

	fmt.Fprintf(out, "\nRun %d against run %d:\n", cmp.Current.ID, cmp.Previous.ID)
	fmt.Fprintln(out, tui.RenderTable([]string{"Page", "Previous", "Current", "Change"}, deltas))

	if cmp.Degradation {
		fmt.Fprintln(out, tui.StatusErrorStyle.Render(
			fmt.Sprintf("✗ degradation above %.1f%%", cmp.ThresholdPct)))
	} else {
		fmt.Fprintln(out, tui.StatusOKStyle.Render("✓ no degradation"))
	}
	return nil
}
