// Package upload copies finished batch artifacts to durable storage. The
// destination layout is flat: base path plus the artifact's file name.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Uploader copies one local artifact to the destination store, preserving
// its file name. Failures are not retried here; rerunning the pipeline is
// safe because the batch's state marker has not been written yet.
type Uploader interface {
	Upload(ctx context.Context, localPath string) error
}

// openArtifact opens the artifact for reading, refusing symbolic links and
// empty files.
func openArtifact(localPath string) (*os.File, int64, error) {
	info, err := os.Lstat(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("stat artifact %s: %w", localPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, 0, fmt.Errorf("artifact %s is a symbolic link", localPath)
	}
	if info.Size() == 0 {
		return nil, 0, fmt.Errorf("artifact %s is empty", localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact %s: %w", localPath, err)
	}
	return f, info.Size(), nil
}

// Local is a filesystem-backed Uploader for development and tests.
type Local struct {
	destDir string
}

// NewLocal creates the destination directory if needed.
func NewLocal(destDir string) (*Local, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination dir %s: %w", destDir, err)
	}
	return &Local{destDir: destDir}, nil
}

// Upload copies the artifact into the destination directory.
func (l *Local) Upload(_ context.Context, localPath string) error {
	src, _, err := openArtifact(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	destPath := filepath.Join(l.destDir, filepath.Base(localPath))
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", destPath, err)
	}

	_, err = io.Copy(dest, src)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy artifact to %s: %w", destPath, err)
	}
	return nil
}
