package transform

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap/zaptest"
)

func writeGzippedNDJSON(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	for _, line := range lines {
		_, err := gz.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func writeManifest(t *testing.T, path string, pairs [][2]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	for _, p := range pairs {
		require.NoError(t, w.Write([]string{p[0], p[1]}))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, f.Close())
}

func readArtifact(t *testing.T, path string) []innerURLRow {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(innerURLRow), 2)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]innerURLRow, pr.GetNumRows())
	if len(rows) > 0 {
		require.NoError(t, pr.Read(&rows))
	}
	return rows
}

func TestParquetTransform(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	docA := filepath.Join(dir, "doc_00001.json.gz")
	writeGzippedNDJSON(t, docA, []string{
		`{"text":"x","metadata":{"url":"https://news.example.co.uk/story/1"}}`,
		`{"text":"y","metadata":{"url":"https://blog.example.org/post"}}`,
		`{"text":"z","metadata":{}}`,
		"not json at all",
	})
	docB := filepath.Join(dir, "doc_00002.json.gz")
	writeGzippedNDJSON(t, docB, []string{
		`{"metadata":{"url":"https://example.org/other"}}`,
	})

	manifestPath := filepath.Join(dir, "manifest_batch_1.csv")
	writeManifest(t, manifestPath, [][2]string{
		{"https://data.example.org/a.json.gz", docA},
		{"https://data.example.org/missing.json.gz", filepath.Join(dir, "doc_00003.json.gz")},
		{"https://data.example.org/b.json.gz", docB},
	})

	tr := NewParquet(zaptest.NewLogger(t))
	artifact, err := tr.Transform(context.Background(), Request{
		ManifestPath: manifestPath,
		BatchNum:     1,
		OutputDir:    filepath.Join(dir, "out"),
		Naming:       Naming{Owner: "jakefau", Dataset: "dolma_urls"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "dolma_urls_extracted_inner_urls_batch_1.parquet"), artifact)

	rows := readArtifact(t, artifact)
	require.Len(t, rows, 3, "rows without a url and unparseable lines are dropped")

	assert.Equal(t, "https://news.example.co.uk/story/1", rows[0].URL)
	require.NotNil(t, rows[0].Domain)
	assert.Equal(t, "example.co.uk", *rows[0].Domain)

	assert.Equal(t, "https://blog.example.org/post", rows[1].URL)
	require.NotNil(t, rows[1].Domain)
	assert.Equal(t, "example.org", *rows[1].Domain)
}

func TestParquetTransformEmptyManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	manifestPath := filepath.Join(dir, "manifest_batch_2.csv")
	writeManifest(t, manifestPath, nil)

	tr := NewParquet(zaptest.NewLogger(t))
	artifact, err := tr.Transform(context.Background(), Request{
		ManifestPath: manifestPath,
		BatchNum:     2,
		OutputDir:    dir,
		Naming:       Naming{Dataset: "dolma_urls"},
	})
	require.NoError(t, err, "an empty manifest must still yield a valid artifact")

	info, err := os.Stat(artifact)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Empty(t, readArtifact(t, artifact))
}

func TestParquetTransformPlainNDJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	doc := filepath.Join(dir, "doc_00001.json.gz")
	require.NoError(t, os.WriteFile(doc,
		[]byte(`{"metadata":{"url":"https://example.org/plain"}}`+"\n"), 0o600))

	manifestPath := filepath.Join(dir, "manifest_batch_3.csv")
	writeManifest(t, manifestPath, [][2]string{{"https://data.example.org/a", doc}})

	tr := NewParquet(zaptest.NewLogger(t))
	artifact, err := tr.Transform(context.Background(), Request{
		ManifestPath: manifestPath,
		BatchNum:     3,
		OutputDir:    dir,
		Naming:       Naming{Dataset: "dolma_urls"},
	})
	require.NoError(t, err)

	rows := readArtifact(t, artifact)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://example.org/plain", rows[0].URL)
}

func TestRegisteredDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string // empty means nil expected
	}{
		{"https://news.example.co.uk/story", "example.co.uk"},
		{"https://sub.deep.example.com/x?y=z", "example.com"},
		{"https://example.org", "example.org"},
		{"not a url", ""},
		{"https://", ""},
	}

	for _, tc := range tests {
		got := registeredDomain(tc.url)
		if tc.want == "" {
			assert.Nil(t, got, tc.url)
		} else {
			require.NotNil(t, got, tc.url)
			assert.Equal(t, tc.want, *got, tc.url)
		}
	}
}
