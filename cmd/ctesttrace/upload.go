package main

import (
	"fmt"

	"github.com/ethpandaops/ctesttrace/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadFile string
	uploadDir  string
	uploadList bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload traces to remote storage",
	Long:  `Upload a trace file or a directory of traces to S3-compatible storage using the upload.s3 config.`,
	Args:  cobra.NoArgs,
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadFile, "file", "",
		"Trace file to upload")
	uploadCmd.Flags().StringVar(&uploadDir, "dir", "",
		"Directory whose .json traces are uploaded")
	uploadCmd.Flags().BoolVar(&uploadList, "list", false,
		"List the traces stored under the configured prefix")

	uploadCmd.MarkFlagsMutuallyExclusive("file", "dir", "list")
	uploadCmd.MarkFlagsOneRequired("file", "dir", "list")
}

func runUpload(cmd *cobra.Command, _ []string) error {
	if !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	ctx := cmd.Context()

	if uploadList {
		names, err := upload.NewS3Reader(log, &cfg.Upload.S3).ListTraces(ctx)
		if err != nil {
			return fmt.Errorf("listing traces: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintln(out, name)
		}

		return nil
	}

	uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("S3 preflight check failed: %w", err)
	}

	if uploadFile != "" {
		key, err := uploader.UploadFile(ctx, uploadFile)
		if err != nil {
			return fmt.Errorf("uploading trace: %w", err)
		}

		log.WithField("key", key).Info("Upload completed successfully")

		return nil
	}

	n, err := uploader.UploadDir(ctx, uploadDir)
	if err != nil {
		return fmt.Errorf("uploading traces: %w", err)
	}

	log.WithField("dir", uploadDir).
		WithField("files", n).
		Info("Upload completed successfully")

	return nil
}
