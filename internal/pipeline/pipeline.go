// Package pipeline sequences the batch execution engine: for every source
// and every batch not yet marked done, it builds the manifest, fetches
// content, invokes the transformer, uploads the artifact, and only then
// writes the durable completion marker.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dolma-harvest/internal/batch"
	"github.com/JakeFAU/dolma-harvest/internal/fetch"
	"github.com/JakeFAU/dolma-harvest/internal/manifest"
	"github.com/JakeFAU/dolma-harvest/internal/metrics"
	"github.com/JakeFAU/dolma-harvest/internal/notify"
	"github.com/JakeFAU/dolma-harvest/internal/state"
	"github.com/JakeFAU/dolma-harvest/internal/transform"
	"github.com/JakeFAU/dolma-harvest/internal/upload"
)

// Config locates the pipeline's inputs and scratch space.
type Config struct {
	// WorkDir is the base directory for batches, scratch state, artifacts,
	// and (for the marker tracker) state markers.
	WorkDir string
	// SourceDir holds one <source>.txt URL list per source.
	SourceDir string
	// Sources restricts the run; empty means every list under SourceDir.
	Sources []string
	// URLFilter keeps only matching URLs at batching time; nil keeps all.
	URLFilter *regexp.Regexp
	// BatchSize is the maximum number of URLs per batch.
	BatchSize int
}

// Fetcher is the slice of fetch.Pool the orchestrator depends on.
type Fetcher interface {
	Run(ctx context.Context, entries []manifest.Entry) fetch.Summary
}

// SourceProgress is a point-in-time view of one source's completion.
type SourceProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Orchestrator drives the per-batch state machine. Batches are processed
// strictly sequentially; only the fetch stage inside a batch is parallel.
type Orchestrator struct {
	cfg         Config
	fetcher     Fetcher
	transformer transform.Transformer
	uploader    upload.Uploader
	tracker     state.Tracker
	notifier    notify.Notifier
	naming      transform.Naming
	logger      *zap.Logger

	// runID identifies the current Run invocation in logs and events.
	// Run is single-flight per Orchestrator; only Progress is read
	// concurrently (by the status server).
	runID string

	mu       sync.Mutex
	progress map[string]SourceProgress
}

// New constructs an Orchestrator. A nil notifier defaults to NoOp.
func New(
	cfg Config,
	fetcher Fetcher,
	transformer transform.Transformer,
	uploader upload.Uploader,
	tracker state.Tracker,
	notifier notify.Notifier,
	naming transform.Naming,
	logger *zap.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Orchestrator{
		cfg:         cfg,
		fetcher:     fetcher,
		transformer: transformer,
		uploader:    uploader,
		tracker:     tracker,
		notifier:    notifier,
		naming:      naming,
		logger:      logger,
		progress:    make(map[string]SourceProgress),
	}
}

// Progress returns a snapshot of per-source completion counts.
func (o *Orchestrator) Progress() map[string]SourceProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := make(map[string]SourceProgress, len(o.progress))
	for k, v := range o.progress {
		snapshot[k] = v
	}
	return snapshot
}

func (o *Orchestrator) setTotal(source string, total int) {
	o.mu.Lock()
	p := o.progress[source]
	p.Total = total
	o.progress[source] = p
	o.mu.Unlock()
}

func (o *Orchestrator) addDone(source string) {
	o.mu.Lock()
	p := o.progress[source]
	p.Done++
	o.progress[source] = p
	o.mu.Unlock()
}

// Run processes every source in deterministic order. The first fatal error
// aborts the whole run; scratch state for the failing batch is preserved
// for post-mortem inspection and the batch is retried in full next run.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.runID = uuid.NewString()
	logger := o.logger.With(zap.String("run_id", o.runID))

	sources, err := o.discoverSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		logger.Warn("no sources found, nothing to do",
			zap.String("source_dir", o.cfg.SourceDir),
		)
		return nil
	}
	logger.Info("starting run", zap.Strings("sources", sources))

	for _, source := range sources {
		if err := o.runSource(ctx, logger, source); err != nil {
			return err
		}
	}

	logger.Info("run complete")
	return nil
}

// discoverSources returns the configured sources, or every *.txt list under
// SourceDir, in sorted order so reruns make deterministic forward progress.
func (o *Orchestrator) discoverSources() ([]string, error) {
	if len(o.cfg.Sources) > 0 {
		sources := append([]string(nil), o.cfg.Sources...)
		sort.Strings(sources)
		return sources, nil
	}

	dirEntries, err := os.ReadDir(o.cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", o.cfg.SourceDir, err)
	}
	var sources []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		sources = append(sources, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(sources)
	return sources, nil
}

func (o *Orchestrator) batchDir(source string) string {
	return filepath.Join(o.cfg.WorkDir, "batches", source)
}

func (o *Orchestrator) scratchDir(source string, batchNum int) string {
	return filepath.Join(o.cfg.WorkDir, "scratch", source, fmt.Sprintf("batch_%d", batchNum))
}

func (o *Orchestrator) artifactDir(source string) string {
	return filepath.Join(o.cfg.WorkDir, "artifacts", source)
}

func (o *Orchestrator) runSource(ctx context.Context, logger *zap.Logger, source string) error {
	logger = logger.With(zap.String("source", source))

	batches, err := o.ensureBatches(logger, source)
	if err != nil {
		return err
	}
	o.setTotal(source, len(batches))
	if len(batches) == 0 {
		logger.Info("source has no batches")
		return nil
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled before %s batch %d: %w", source, b.Number, err)
		}
		if err := o.processBatch(ctx, logger, b); err != nil {
			return err
		}
	}
	return nil
}

// ensureBatches splits the source list if no partition exists yet, then
// enumerates the authoritative batch files in ascending numeric order.
func (o *Orchestrator) ensureBatches(logger *zap.Logger, source string) ([]batch.Batch, error) {
	dir := o.batchDir(source)

	existing, err := batch.List(logger, dir, source)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	listPath := filepath.Join(o.cfg.SourceDir, source+".txt")
	urls, err := batch.LoadURLList(listPath)
	if err != nil {
		return nil, err
	}
	return batch.Split(logger, dir, source, urls, o.cfg.URLFilter, o.cfg.BatchSize)
}

// processBatch walks one batch through
// MANIFEST_BUILT -> FETCHED -> TRANSFORMED -> UPLOADED -> DONE.
// Only DONE is durable; any earlier failure leaves the batch looking not
// started, which forces a full redo on the next run.
func (o *Orchestrator) processBatch(ctx context.Context, logger *zap.Logger, b batch.Batch) error {
	logger = logger.With(zap.Int("batch", b.Number))

	done, err := o.tracker.IsDone(ctx, b.Source, b.Number)
	if err != nil {
		return fmt.Errorf("check state for %s batch %d: %w", b.Source, b.Number, err)
	}
	if done {
		logger.Info("batch already done, skipping")
		metrics.ObserveBatch(b.Source, "skipped")
		o.addDone(b.Source)
		return nil
	}

	scratchDir := o.scratchDir(b.Source, b.Number)
	entries, manifestPath, err := manifest.Build(b, scratchDir)
	if err != nil {
		return fmt.Errorf("build manifest for %s batch %d: %w", b.Source, b.Number, err)
	}
	logger.Info("manifest built",
		zap.String("manifest", manifestPath),
		zap.Int("entries", len(entries)),
	)

	summary := o.fetcher.Run(ctx, entries)
	metrics.ObserveFilesFetched(b.Source, summary.FilesPresent())
	logger.Info("fetch complete",
		zap.Int("files_present", summary.FilesPresent()),
		zap.Int("failed", summary.Failed),
	)

	artifactPath, err := o.transformer.Transform(ctx, transform.Request{
		ManifestPath: manifestPath,
		BatchNum:     b.Number,
		OutputDir:    o.artifactDir(b.Source),
		Naming:       o.naming,
	})
	if err != nil {
		return fmt.Errorf("transform %s batch %d (manifest %s): %w",
			b.Source, b.Number, manifestPath, err)
	}
	// The transformer contract requires a non-empty artifact on success.
	// Verify here too so a misbehaving implementation aborts the run
	// instead of surfacing as a confusing upload error.
	if info, statErr := os.Stat(artifactPath); statErr != nil || info.Size() == 0 {
		return fmt.Errorf("transform %s batch %d (manifest %s): %w",
			b.Source, b.Number, manifestPath, transform.ErrArtifactMissing)
	}

	if err := o.uploader.Upload(ctx, artifactPath); err != nil {
		return fmt.Errorf("upload artifact for %s batch %d (manifest %s): %w",
			b.Source, b.Number, manifestPath, err)
	}
	if info, statErr := os.Stat(artifactPath); statErr == nil {
		metrics.ObserveUploadBytes(b.Source, info.Size())
	}

	if err := o.tracker.MarkDone(ctx, b.Source, b.Number); err != nil {
		return fmt.Errorf("mark %s batch %d done: %w", b.Source, b.Number, err)
	}

	o.cleanup(logger, scratchDir, manifestPath)
	metrics.ObserveBatch(b.Source, "done")
	o.addDone(b.Source)

	if err := o.notifier.BatchDone(ctx, notify.Event{
		RunID:     o.runID,
		Source:    b.Source,
		Batch:     b.Number,
		Artifact:  filepath.Base(artifactPath),
		RepoID:    transform.RepoID(o.naming),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		// Notifications are advisory; the marker is already durable.
		logger.Warn("completion notification failed", zap.Error(err))
	}

	logger.Info("batch done", zap.String("artifact", artifactPath))
	return nil
}

// cleanup removes the batch's scratch downloads and manifest record. It is
// best-effort: the upload already succeeded and a cleanup failure must not
// mask that.
func (o *Orchestrator) cleanup(logger *zap.Logger, scratchDir, manifestPath string) {
	if err := os.RemoveAll(scratchDir); err != nil {
		logger.Warn("failed to remove scratch dir",
			zap.String("dir", scratchDir),
			zap.Error(err),
		)
	}
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove manifest",
			zap.String("manifest", manifestPath),
			zap.Error(err),
		)
	}
}
