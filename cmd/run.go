package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dolma-harvest/internal/api"
	"github.com/JakeFAU/dolma-harvest/internal/config"
	"github.com/JakeFAU/dolma-harvest/internal/fetch"
	"github.com/JakeFAU/dolma-harvest/internal/metrics"
	"github.com/JakeFAU/dolma-harvest/internal/notify"
	"github.com/JakeFAU/dolma-harvest/internal/pipeline"
	"github.com/JakeFAU/dolma-harvest/internal/state"
	"github.com/JakeFAU/dolma-harvest/internal/transform"
	"github.com/JakeFAU/dolma-harvest/internal/upload"
)

// newRunCmd creates the 'run' subcommand, which executes the full pipeline
// over every source and batch not yet marked done.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the batch fetch/transform/upload pipeline",
		RunE:  runPipeline,
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	tracker, err := buildTracker(ctx, cfg)
	if err != nil {
		return err
	}
	uploader, err := buildUploader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var filter *regexp.Regexp
	if cfg.Pipeline.URLFilter != "" {
		// Validated at load time.
		filter = regexp.MustCompile(cfg.Pipeline.URLFilter)
	}

	pool := fetch.New(fetch.Config{
		Concurrency:    cfg.Fetch.Concurrency,
		Timeout:        cfg.FetchTimeout(),
		Retries:        cfg.Fetch.Retries,
		BackoffInitial: msDuration(cfg.Fetch.BackoffInitialMs),
		BackoffMax:     msDuration(cfg.Fetch.BackoffMaxMs),
		UserAgent:      cfg.Fetch.UserAgent,
	}, logger)

	orchestrator := pipeline.New(
		pipeline.Config{
			WorkDir:   cfg.Pipeline.WorkDir,
			SourceDir: cfg.Pipeline.SourceDir,
			Sources:   cfg.Pipeline.Sources,
			URLFilter: filter,
			BatchSize: cfg.Batch.Size,
		},
		pool,
		buildTransformer(cfg, logger),
		uploader,
		tracker,
		notifier,
		transform.Naming{
			Owner:   cfg.Naming.Owner,
			Dataset: cfg.Naming.Dataset,
			Variant: cfg.Naming.Variant,
		},
		logger,
	)

	if cfg.Server.Enabled {
		go api.NewServer(orchestrator, logger).Serve(ctx, cfg.Server.Port)
	}

	if err := orchestrator.Run(ctx); err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func buildTracker(ctx context.Context, cfg config.Config) (state.Tracker, error) {
	switch cfg.State.Provider {
	case "postgres":
		return state.NewPostgres(ctx, cfg.State.DSN)
	default:
		return state.NewMarker(filepath.Join(cfg.Pipeline.WorkDir, "state"))
	}
}

func buildUploader(ctx context.Context, cfg config.Config, logger *zap.Logger) (upload.Uploader, error) {
	switch cfg.Upload.Provider {
	case "gcs":
		return upload.NewGCS(ctx, cfg.Upload.GCSBucket, cfg.Upload.BasePath, cfg.UploadTimeout(), logger)
	default:
		return upload.NewLocal(cfg.Upload.BasePath)
	}
}

func buildTransformer(cfg config.Config, logger *zap.Logger) transform.Transformer {
	if cfg.Transform.Mode == "exec" {
		return transform.NewExec(cfg.Transform.Command, cfg.TransformTimeout(), logger)
	}
	return transform.NewParquet(logger)
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Notifier, func(), error) {
	if cfg.Notify.Provider != "pubsub" {
		return notify.NoOp{}, func() {}, nil
	}
	ps, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.Topic, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub notifier: %w", err)
	}
	return ps, func() {
		if err := ps.Close(); err != nil {
			logger.Warn("failed to close pubsub notifier", zap.Error(err))
		}
	}, nil
}
