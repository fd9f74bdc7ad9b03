package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/ctesttrace/pkg/convert"
	"github.com/ethpandaops/ctesttrace/pkg/fsutil"
	"github.com/ethpandaops/ctesttrace/pkg/upload"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchOutputDir   string
	batchConcurrency int
	batchUpload      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch --output-dir DIR INPUT...",
	Short: "Convert several logs concurrently",
	Long: `Convert independent ctest logs concurrently. Each input gets its own
reconstructor and is written to <output-dir>/<input base name>.json.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "",
		"Directory the traces are written to")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0,
		"Maximum logs converted at once (default: batch.concurrency)")
	batchCmd.Flags().BoolVar(&batchUpload, "upload", false,
		"Upload every trace to S3 after writing it")

	_ = batchCmd.MarkFlagRequired("output-dir")
}

func runBatch(cmd *cobra.Command, args []string) error {
	outputs, err := batchOutputs(batchOutputDir, args)
	if err != nil {
		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Output.Owner)
	if err != nil {
		return fmt.Errorf("parsing output.owner: %w", err)
	}

	var uploader upload.Uploader

	if batchUpload {
		if !cfg.Upload.S3.Enabled {
			return fmt.Errorf("S3 upload is not enabled in config")
		}

		uploader, err = upload.NewS3Uploader(log, &cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(cmd.Context()); err != nil {
			return fmt.Errorf("S3 preflight check failed: %w", err)
		}
	}

	// Concurrent inputs would interleave on stderr.
	opts := convertOptions(cfg, cmd)
	opts.Tee = nil

	limit := cfg.Batch.Concurrency
	if batchConcurrency > 0 {
		limit = batchConcurrency
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(limit)

	for i, input := range args {
		output := outputs[i]

		g.Go(func() error {
			res, err := convert.ConvertFile(ctx, input, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}

			data, err := res.Marshal()
			if err != nil {
				return fmt.Errorf("%s: encoding trace: %w", input, err)
			}

			if err := fsutil.WriteOutput(output, data, owner); err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}

			entry := log.WithField("input", input).
				WithField("output", output).
				WithField("tests", len(res.Records))

			if uploader != nil {
				key, err := uploader.UploadFile(ctx, output)
				if err != nil {
					return fmt.Errorf("%s: uploading trace: %w", input, err)
				}

				entry = entry.WithField("key", key)
			}

			entry.Info("Converted log")

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.WithField("logs", len(args)).
		WithField("output_dir", batchOutputDir).
		Info("Batch completed")

	return nil
}

// batchOutputs maps each input to its trace path under dir. Inputs that
// share a base name are rejected.
func batchOutputs(dir string, inputs []string) ([]string, error) {
	outputs := make([]string, 0, len(inputs))
	seen := make(map[string]string, len(inputs))

	for _, input := range inputs {
		if input == "" || input == "-" {
			return nil, fmt.Errorf("batch does not read stdin")
		}

		name := traceName(input)

		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("inputs %s and %s both map to %s", prev, input, name)
		}

		seen[name] = input
		outputs = append(outputs, filepath.Join(dir, name))
	}

	return outputs, nil
}

// traceName replaces the extension of the input base name with .json.
func traceName(input string) string {
	base := filepath.Base(input)

	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}
