// Package transform defines the batch transformer boundary: a collaborator
// that turns one batch's manifest plus downloaded content into a single
// columnar artifact.
package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrArtifactMissing reports that a transformer claimed success but the
// expected artifact is absent or empty. This is a contract violation and is
// fatal for the run; it must never be masked by skipping the batch.
var ErrArtifactMissing = errors.New("transformer reported success but artifact is missing")

// Naming carries the owner/dataset identifiers that shape artifact and
// destination names.
type Naming struct {
	Owner   string
	Dataset string
	Variant string
}

// Request describes one batch transformation.
type Request struct {
	// ManifestPath is the CSV mapping original URLs to local downloads.
	ManifestPath string
	// BatchNum is the batch number being processed.
	BatchNum int
	// OutputDir receives the artifact.
	OutputDir string
	Naming    Naming
}

// Transformer converts one fetched batch into an artifact file. It must
// tolerate manifest entries whose local file is absent (failed downloads)
// and an entirely empty manifest, and must return the artifact path only
// when the artifact exists with non-zero size.
type Transformer interface {
	Transform(ctx context.Context, req Request) (artifactPath string, err error)
}

// ArtifactName returns the deterministic artifact file name for a batch.
func ArtifactName(n Naming, batchNum int) string {
	return fmt.Sprintf("%s_extracted_inner_urls_batch_%d.parquet", n.Dataset, batchNum)
}

func artifactFor(req Request) string {
	return filepath.Join(req.OutputDir, ArtifactName(req.Naming, req.BatchNum))
}

// RepoID builds the destination dataset identifier from the naming parts.
// A variant of "default" (any case) is ignored, doubled underscores are
// collapsed, and leading/trailing underscores are trimmed.
func RepoID(n Naming) string {
	parts := []string{n.Owner, n.Dataset}
	if n.Variant != "" && !strings.EqualFold(n.Variant, "default") {
		parts = append(parts, n.Variant)
	}
	id := strings.Join(parts, "_")
	for strings.Contains(id, "__") {
		id = strings.ReplaceAll(id, "__", "_")
	}
	return strings.Trim(id, "_")
}
