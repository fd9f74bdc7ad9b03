package main

import (
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/ctesttrace/pkg/convert"
	"github.com/ethpandaops/ctesttrace/pkg/report"
	"github.com/spf13/cobra"
)

const maxMarkdownChars = 65000

var (
	summaryOutput   string
	summaryMaxChars int
)

var summaryCmd = &cobra.Command{
	Use:   "summary [input]",
	Short: "Generate a markdown summary of a ctest log",
	Long: `Reconstruct the timeline of a ctest log and render it as a markdown
table, slowest test first. Suitable for CI job summaries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVarP(&summaryOutput, "output", "o", "",
		"Output file path (default: stdout)")
	summaryCmd.Flags().IntVar(&summaryMaxChars, "max-chars", maxMarkdownChars,
		"Truncate the test table beyond this many characters (0 disables)")
}

func runSummary(cmd *cobra.Command, args []string) error {
	input := inputArg(args)

	in, err := openInput(input)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	res, err := convert.Convert(cmd.Context(), in, convertOptions(cfg, cmd))
	if err != nil {
		return err
	}

	title := displayName(input)
	if input != "" && input != "-" {
		title = filepath.Base(input)
	}

	md := report.GenerateMarkdown(title, res.Records, res.Stats, summaryMaxChars)

	if err := writeOutput(cmd.OutOrStdout(), summaryOutput, []byte(md)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	return nil
}
