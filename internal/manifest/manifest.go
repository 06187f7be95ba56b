// Package manifest builds the durable (url, local_path) record for a batch
// before any network activity happens.
package manifest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/dolma-harvest/internal/batch"
)

// Entry pairs one batch URL with its assigned local download destination.
type Entry struct {
	URL       string
	LocalPath string
}

// FileName returns the manifest record name for a batch number.
func FileName(number int) string {
	return fmt.Sprintf("manifest_batch_%d.csv", number)
}

// Build assigns each URL in the batch a deterministic, collision-free local
// path under scratchDir and writes the manifest CSV next to it. It returns
// the entries in batch-file order along with the manifest path.
//
// An empty batch still produces an (empty) manifest file so downstream
// stages have a well-defined record to consume. Local paths use a per-batch
// counter; content-derived names are deliberately avoided.
func Build(b batch.Batch, scratchDir string) ([]Entry, string, error) {
	urls, err := b.URLs()
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create scratch dir %s: %w", scratchDir, err)
	}

	entries := make([]Entry, 0, len(urls))
	for i, u := range urls {
		entries = append(entries, Entry{
			URL:       u,
			LocalPath: filepath.Join(scratchDir, fmt.Sprintf("doc_%05d.json.gz", i+1)),
		})
	}

	manifestPath := filepath.Join(filepath.Dir(scratchDir), FileName(b.Number))
	if err := write(manifestPath, entries); err != nil {
		return nil, "", err
	}
	return entries, manifestPath, nil
}

// write records the entries as two quoted CSV fields per line. Every field
// is quoted, with quotes inside a URL doubled per standard CSV escaping;
// encoding/csv is not used here because it quotes only when forced to.
func write(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create manifest %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s,%s\n", quote(e.URL), quote(e.LocalPath)); err != nil {
			f.Close()
			return fmt.Errorf("write manifest %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush manifest %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest %s: %w", path, err)
	}
	return nil
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Read loads a manifest CSV back into ordered entries. The transformer uses
// this to correlate downloaded files with their original URLs.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{URL: rec[0], LocalPath: rec[1]})
	}
	return entries, nil
}
