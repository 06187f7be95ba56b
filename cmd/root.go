// Package cmd defines the CLI commands for the dolma-harvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dolma-harvest/internal/config"
	"github.com/JakeFAU/dolma-harvest/internal/logging"

	"go.uber.org/zap"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dolma-harvest",
		Short: "Batch URL ingestion pipeline for web-crawl datasets.",
		Long: `dolma-harvest ingests large lists of web-crawl URLs, partitions them
into fixed-size batches, downloads each batch under bounded concurrency,
transforms the downloaded content into a columnar artifact, and uploads
the artifact to durable storage. Re-running after a crash never redoes
completed batches.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus HARVEST_* env)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSplitCmd())

	return cmd
}

// loadConfigAndLogger builds the immutable configuration and a logger for
// one command invocation.
func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point. Any fatal pipeline condition surfaces
// here as a non-zero exit.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dolma-harvest: %v\n", err)
		os.Exit(1)
	}
}
