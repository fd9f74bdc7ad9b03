package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/convert"
	"github.com/ethpandaops/ctesttrace/pkg/history"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	recordRunID  string
	recordSource string
)

var recordCmd = &cobra.Command{
	Use:   "record [input]",
	Short: "Convert a log and store its test durations",
	Long: `Reconstruct the timeline of a ctest log and persist every test interval
in the history database, keyed by run id. Re-recording a run id replaces it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordRunID, "run-id", "",
		"Run identifier (default: random UUID)")
	recordCmd.Flags().StringVar(&recordSource, "source", "",
		"Free form origin of the run, e.g. a CI job name (default: input base name)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	input := inputArg(args)

	runID := recordRunID
	if runID == "" {
		runID = uuid.New().String()
	}

	source := recordSource
	if source == "" {
		source = displayName(input)
		if input != "" && input != "-" {
			source = filepath.Base(input)
		}
	}

	in, err := openInput(input)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	ctx := cmd.Context()

	res, err := convert.Convert(ctx, in, convertOptions(cfg, cmd))
	if err != nil {
		return err
	}

	store := history.NewStore(log, &cfg.History.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop history store")
		}
	}()

	run := history.NewRun(runID, source, time.Now(), res.Records, res.Stats)
	if err := store.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("storing run: %w", err)
	}

	rows := history.FromRecords(runID, res.Records)
	if err := store.ReplaceTestDurations(ctx, runID, rows); err != nil {
		return fmt.Errorf("storing test durations: %w", err)
	}

	log.WithField("run_id", runID).
		WithField("tests", len(rows)).
		Info("Run recorded")

	fmt.Fprintln(cmd.OutOrStdout(), runID)

	return nil
}
