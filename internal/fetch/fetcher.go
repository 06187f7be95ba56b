// Package fetch downloads a batch's manifest entries under a bounded worker
// pool with per-request timeout and jittered retry.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dolma-harvest/internal/manifest"
	"github.com/JakeFAU/dolma-harvest/internal/metrics"
)

// Config controls Pool behavior.
type Config struct {
	// Concurrency is the number of parallel download workers.
	Concurrency int
	// Timeout bounds each individual request attempt.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first.
	Retries int
	// BackoffInitial and BackoffMax bound the retry backoff window.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// UserAgent is sent verbatim on every request.
	UserAgent string
}

// Summary reports what the pool accomplished for one batch. The counts are
// for logging and metrics only; no downstream decision gates on them.
type Summary struct {
	// Entries is the number of manifest entries handed to the pool.
	Entries int
	// Downloaded is the number of files fetched during this run.
	Downloaded int
	// Skipped is the number of destinations that already held content.
	Skipped int
	// Failed is the number of entries with no file after all attempts.
	Failed int
}

// FilesPresent is the count of non-empty local files after the run.
func (s Summary) FilesPresent() int {
	return s.Downloaded + s.Skipped
}

// Pool downloads manifest entries with bounded parallelism. Individual
// failures are absorbed: an entry that cannot be fetched simply leaves no
// file behind, which is the downstream signal that content was unavailable.
type Pool struct {
	cfg    Config
	client *http.Client
	policy *ExponentialRetryPolicy
	logger *zap.Logger
}

// New constructs a Pool.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Pool{
		cfg: cfg,
		client: &http.Client{
			// Per-attempt deadlines come from the request context.
			Timeout: 0,
		},
		policy: NewExponentialRetryPolicy(cfg.Retries+1, cfg.BackoffInitial, cfg.BackoffMax),
		logger: logger,
	}
}

// Run downloads all entries and blocks until every attempt has resolved.
func (p *Pool) Run(ctx context.Context, entries []manifest.Entry) Summary {
	summary := Summary{Entries: len(entries)}
	if len(entries) == 0 {
		return summary
	}

	jobs := make(chan manifest.Entry)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				outcome := p.process(ctx, entry)
				mu.Lock()
				switch outcome {
				case outcomeDownloaded:
					summary.Downloaded++
				case outcomeSkipped:
					summary.Skipped++
				default:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	p.logger.Info("fetch pool finished",
		zap.Int("entries", summary.Entries),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeDownloaded
	outcomeSkipped
)

func (p *Pool) process(ctx context.Context, entry manifest.Entry) outcome {
	// A previous partial run may already have produced this file; a
	// non-empty destination is never overwritten.
	if info, err := os.Stat(entry.LocalPath); err == nil && info.Size() > 0 {
		metrics.ObserveFetchAttempt("skipped")
		return outcomeSkipped
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		err := p.download(ctx, entry)
		if err == nil {
			metrics.ObserveFetchAttempt("success")
			return outcomeDownloaded
		}
		lastErr = err

		if !p.policy.ShouldRetry(err, attempt+1) {
			break
		}
		metrics.ObserveFetchAttempt("retry")
		select {
		case <-time.After(p.policy.Backoff(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	metrics.ObserveFetchAttempt("failure")
	p.logger.Warn("download failed, leaving entry absent",
		zap.String("url", entry.URL),
		zap.Error(lastErr),
	)
	return outcomeFailed
}

// download performs one attempt, writing through a temp file so a truncated
// body never masquerades as a completed download.
func (p *Pool) download(ctx context.Context, entry manifest.Entry) error {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	tmpPath := entry.LocalPath + ".part"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if n == 0 {
		// An empty body is not content; absence is the downstream signal.
		os.Remove(tmpPath)
		return fmt.Errorf("empty response body for %s", entry.URL)
	}

	if err := os.Rename(tmpPath, entry.LocalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", entry.LocalPath, err)
	}
	return nil
}
