package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/dolma-harvest/internal/manifest"
)

func testPool(t *testing.T, concurrency, retries int) *Pool {
	t.Helper()
	return New(Config{
		Concurrency:    concurrency,
		Timeout:        5 * time.Second,
		Retries:        retries,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		UserAgent:      "harvest-test/0.0",
	}, zaptest.NewLogger(t))
}

func TestRunDownloadsReachableEntries(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		assert.Equal(t, "harvest-test/0.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"metadata":{"url":"https://inner.example.org/x"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	entries := []manifest.Entry{
		{URL: srv.URL + "/a", LocalPath: filepath.Join(dir, "doc_00001.json.gz")},
		{URL: srv.URL + "/b", LocalPath: filepath.Join(dir, "doc_00002.json.gz")},
		{URL: "http://127.0.0.1:1/unreachable", LocalPath: filepath.Join(dir, "doc_00003.json.gz")},
	}

	summary := testPool(t, 2, 0).Run(context.Background(), entries)

	assert.Equal(t, 3, summary.Entries)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.FilesPresent())
	assert.EqualValues(t, 2, gets.Load())

	for _, e := range entries[:2] {
		info, err := os.Stat(e.LocalPath)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	_, err := os.Stat(entries[2].LocalPath)
	assert.True(t, os.IsNotExist(err), "failed entry must leave no file")
}

func TestRunSkipsExistingNonEmptyFiles(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gets.Add(1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	existing := filepath.Join(dir, "doc_00001.json.gz")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o600))

	summary := testPool(t, 1, 0).Run(context.Background(), []manifest.Entry{
		{URL: srv.URL, LocalPath: existing},
	})

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, gets.Load(), "existing non-empty file must not be re-fetched")

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(content))
}

func TestRunRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if gets.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("eventually"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	summary := testPool(t, 1, 3).Run(context.Background(), []manifest.Entry{
		{URL: srv.URL, LocalPath: filepath.Join(dir, "doc_00001.json.gz")},
	})

	assert.Equal(t, 1, summary.Downloaded)
	assert.EqualValues(t, 3, gets.Load())
}

func TestRunDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gets.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	summary := testPool(t, 1, 5).Run(context.Background(), []manifest.Entry{
		{URL: srv.URL, LocalPath: filepath.Join(dir, "doc_00001.json.gz")},
	})

	assert.Equal(t, 1, summary.Failed)
	assert.EqualValues(t, 1, gets.Load(), "404 must not be retried")
}

func TestRunDiscardsEmptyBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "doc_00001.json.gz")
	summary := testPool(t, 1, 0).Run(context.Background(), []manifest.Entry{
		{URL: srv.URL, LocalPath: dest},
	})

	assert.Equal(t, 1, summary.Failed)
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestRunEmptyEntrySet(t *testing.T) {
	t.Parallel()

	summary := testPool(t, 4, 0).Run(context.Background(), nil)
	assert.Zero(t, summary.Entries)
	assert.Zero(t, summary.FilesPresent())
}
