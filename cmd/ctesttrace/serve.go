package main

import (
	"fmt"

	"github.com/ethpandaops/ctesttrace/pkg/api"
	"github.com/ethpandaops/ctesttrace/pkg/config"
	"github.com/ethpandaops/ctesttrace/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API. It converts posted logs and serves stored traces to
browser trace viewers, from api.server.traces_dir and then from S3 when
upload.s3 is enabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	log.SetLevel(serveLogLevel(log.GetLevel(), levelExplicit(cmd)))

	opts := []api.Option{api.WithOrphanPolicy(cfg.Convert.OrphanPolicy())}

	if cfg.Upload.S3.Enabled {
		opts = append(opts, api.WithTraceFetcher(upload.NewS3Reader(log, &cfg.Upload.S3)))
	}

	srv, err := api.NewServer(log, &cfg.API, opts...)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	log.WithField("listen", srv.Addr()).Info("API server listening")

	// Wait for shutdown signal.
	<-ctx.Done()
	log.Info("Shutting down API server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}

// serveLogLevel raises the default level to info so a long running server
// reports its lifecycle. An explicitly chosen level is kept.
func serveLogLevel(current logrus.Level, explicit bool) logrus.Level {
	if explicit || current >= logrus.InfoLevel {
		return current
	}

	return logrus.InfoLevel
}

// levelExplicit reports whether the log level came from the flag or was
// changed from the default in the config.
func levelExplicit(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("log-level") ||
		cfg.Global.LogLevel != config.DefaultLogLevel
}
