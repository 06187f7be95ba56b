// Package state tracks durable per-batch completion. The tracker is the
// single source of truth for "is this batch done"; markers are only ever
// created, never toggled back, so a crash mid-batch reads as not started.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Tracker records and reports batch completion.
type Tracker interface {
	// IsDone reports whether the batch's artifact was already uploaded.
	IsDone(ctx context.Context, source string, batch int) (bool, error)
	// MarkDone durably records that the batch's artifact was uploaded.
	// Marking an already-done batch is a no-op, not an error.
	MarkDone(ctx context.Context, source string, batch int) error
}

// MarkerName returns the marker file name for a (source, batch) pair.
func MarkerName(source string, batch int) string {
	return fmt.Sprintf("%s_content_batch_%d.success", source, batch)
}

// Marker implements Tracker with one empty marker file per completed batch.
// The file's existence is the completion signal; its content is never read.
type Marker struct {
	dir string
}

// NewMarker creates a marker-file tracker rooted at dir.
func NewMarker(dir string) (*Marker, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &Marker{dir: dir}, nil
}

// IsDone checks for the marker file.
func (m *Marker) IsDone(_ context.Context, source string, batch int) (bool, error) {
	_, err := os.Stat(filepath.Join(m.dir, MarkerName(source, batch)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat marker for %s batch %d: %w", source, batch, err)
}

// MarkDone creates the marker file.
func (m *Marker) MarkDone(_ context.Context, source string, batch int) error {
	path := filepath.Join(m.dir, MarkerName(source, batch))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o640)
	if err != nil {
		return fmt.Errorf("create marker for %s batch %d: %w", source, batch, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close marker for %s batch %d: %w", source, batch, err)
	}
	return nil
}
