package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethpandaops/ctesttrace/pkg/config"
	"github.com/ethpandaops/ctesttrace/pkg/convert"
	"github.com/ethpandaops/ctesttrace/pkg/ctest"
	"github.com/ethpandaops/ctesttrace/pkg/fsutil"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/spf13/cobra"
)

var (
	convertOutput       string
	convertAllowOrphans bool
	convertTee          bool
)

func init() {
	rootCmd.Flags().StringVarP(&convertOutput, "output", "o", "",
		"Output file path (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&convertAllowOrphans, "allow-orphans", false,
		"Drop finish lines without a matching start instead of failing")
	rootCmd.PersistentFlags().BoolVar(&convertTee, "tee", false,
		"Echo the input log to stderr while converting")
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := inputArg(args)

	in, err := openInput(input)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	opts := convertOptions(cfg, cmd)

	res, err := convert.Convert(cmd.Context(), in, opts)
	if err != nil {
		return err
	}

	log.WithField("input", displayName(input)).
		WithField("tests", len(res.Records)).
		WithField("lanes", res.Stats.Lanes).
		WithField("lines", res.Lines).
		Info("Converted log")

	if res.Stats.Unfinished > 0 {
		log.WithField("unfinished", res.Stats.Unfinished).
			Warn("Some tests started but never finished")
	}

	data, err := res.Marshal()
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), convertOutput, data)
}

// convertOptions merges the config with the command line flags. A flag
// given on the command line wins over the config in both directions.
func convertOptions(c *config.Config, cmd *cobra.Command) convert.Options {
	opts := convert.Options{
		Format: ctest.Format(c.Convert.Format),
		Policy: c.Convert.OrphanPolicy(),
	}

	if cmd.Flags().Changed("allow-orphans") {
		opts.Policy = trace.OrphanFail
		if convertAllowOrphans {
			opts.Policy = trace.OrphanDrop
		}
	}

	tee := c.Convert.Tee
	if cmd.Flags().Changed("tee") {
		tee = convertTee
	}

	if tee {
		opts.Tee = os.Stderr
	}

	return opts
}

func inputArg(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}

// openInput opens path, or stdin for "" and "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %s: %w", path, err)
	}

	return f, nil
}

func displayName(path string) string {
	if path == "" || path == "-" {
		return "<stdin>"
	}

	return path
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		return nil
	}

	owner, err := fsutil.ParseOwner(cfg.Output.Owner)
	if err != nil {
		return fmt.Errorf("parsing output.owner: %w", err)
	}

	if err := fsutil.WriteOutput(path, data, owner); err != nil {
		return err
	}

	log.WithField("output", path).Info("Trace written")

	return nil
}
