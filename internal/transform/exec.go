package transform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Exec shells out to an external transformer program. The program receives
// the manifest path, batch number, output directory, and naming parameters
// on its command line and must exit non-zero on failure.
type Exec struct {
	command string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExec builds an exec adapter. A zero timeout means no limit beyond the
// caller's context.
func NewExec(command string, timeout time.Duration, logger *zap.Logger) *Exec {
	return &Exec{command: command, timeout: timeout, logger: logger}
}

// Transform invokes the external program and verifies the artifact it was
// contractually required to produce.
func (t *Exec) Transform(ctx context.Context, req Request) (string, error) {
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", req.OutputDir, err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := []string{
		"--manifest_file", req.ManifestPath,
		"--batch_num", strconv.Itoa(req.BatchNum),
		"--output_dir", req.OutputDir,
		"--hf_username", req.Naming.Owner,
		"--hf_base_dataset_name", req.Naming.Dataset,
	}
	if req.Naming.Variant != "" {
		args = append(args, "--hf_variant", req.Naming.Variant)
	}

	cmd := exec.CommandContext(ctx, t.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.logger.Error("transformer command failed",
			zap.String("command", t.command),
			zap.Int("batch", req.BatchNum),
			zap.ByteString("output", output),
		)
		return "", fmt.Errorf("transformer for batch %d: %w", req.BatchNum, err)
	}

	artifactPath := artifactFor(req)
	info, statErr := os.Stat(artifactPath)
	if statErr != nil || info.Size() == 0 {
		return "", fmt.Errorf("batch %d artifact %s: %w", req.BatchNum, artifactPath, ErrArtifactMissing)
	}
	return artifactPath, nil
}
