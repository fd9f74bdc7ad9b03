package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/ctesttrace/pkg/history"
	"github.com/spf13/cobra"
)

var (
	historyTest   string
	historyRun    string
	historyDelete string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query recorded runs and test durations",
	Long: `Without flags, list recorded runs newest first. --test lists every recorded
interval of one test, --run lists the intervals of one run, --delete removes a run.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyTest, "test", "",
		"Test name whose recorded durations are listed")
	historyCmd.Flags().StringVar(&historyRun, "run", "",
		"Run id whose test durations are listed")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "",
		"Run id to delete")

	historyCmd.MarkFlagsMutuallyExclusive("test", "run", "delete")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store := history.NewStore(log, &cfg.History.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop history store")
		}
	}()

	out := cmd.OutOrStdout()

	switch {
	case historyDelete != "":
		if err := store.DeleteRun(ctx, historyDelete); err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}

		log.WithField("run_id", historyDelete).Info("Run deleted")

		return nil
	case historyTest != "":
		durations, err := store.ListTestDurations(ctx, historyTest)
		if err != nil {
			return err
		}

		return printDurations(out, durations)
	case historyRun != "":
		durations, err := store.ListTestDurationsForRun(ctx, historyRun)
		if err != nil {
			return err
		}

		return printDurations(out, durations)
	default:
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return err
		}

		return printRuns(out, runs, time.Now())
	}
}

func printRuns(out io.Writer, runs []history.Run, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "RUN ID\tSOURCE\tRECORDED\tTESTS\tLANES\tSPAN")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s ago\t%d\t%d\t%s\n",
			r.RunID, r.Source,
			units.HumanDuration(now.Sub(time.Unix(r.Timestamp, 0))),
			r.Tests, r.Lanes,
			time.Duration(r.SpanUs)*time.Microsecond)
	}

	return w.Flush()
}

func printDurations(out io.Writer, durations []history.TestDuration) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "RUN ID\tTEST\tSTART\tDURATION\tLANE")

	for _, d := range durations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			d.RunID, d.TestName,
			time.Duration(d.StartUs)*time.Microsecond,
			time.Duration(d.DurationUs)*time.Microsecond,
			d.Lane)
	}

	return w.Flush()
}
