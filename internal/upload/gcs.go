package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCS uploads artifacts to a Google Cloud Storage bucket.
type GCS struct {
	client   *storage.Client
	bucket   string
	basePath string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGCS initializes a GCS client and verifies the bucket is reachable, so
// a misconfigured destination fails at startup rather than after the first
// batch has been fetched and transformed. Authentication uses Application
// Default Credentials. A zero timeout means no per-upload limit.
func NewGCS(ctx context.Context, bucket, basePath string, timeout time.Duration, logger *zap.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close gcs client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}

	return &GCS{
		client:   client,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Upload streams the artifact into the bucket under base path + file name.
func (g *GCS) Upload(ctx context.Context, localPath string) error {
	src, size, err := openArtifact(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	objectName := filepath.Base(localPath)
	if g.basePath != "" {
		objectName = path.Join(g.basePath, objectName)
	}

	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(wc, src); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("failed to close gcs writer after copy failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	// Close finalizes the upload; until it returns nil the object does not
	// exist, so a crash here cannot leave a partial object mistaken for a
	// finished artifact.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", objectName, err)
	}

	g.logger.Info("artifact uploaded",
		zap.String("bucket", g.bucket),
		zap.String("object", objectName),
		zap.Int64("bytes", size),
	)
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
