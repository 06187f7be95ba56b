package state_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dolma-harvest/internal/state"
)

func TestMarkerName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "dolma_content_batch_7.success", state.MarkerName("dolma", 7))
}

func TestMarkerTracker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	tracker, err := state.NewMarker(dir)
	require.NoError(t, err)

	done, err := tracker.IsDone(ctx, "dolma", 1)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tracker.MarkDone(ctx, "dolma", 1))

	done, err = tracker.IsDone(ctx, "dolma", 1)
	require.NoError(t, err)
	assert.True(t, done)

	// The marker is an empty file named by (source, batch).
	info, err := os.Stat(filepath.Join(dir, "dolma_content_batch_1.success"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// Other batches stay unaffected.
	done, err = tracker.IsDone(ctx, "dolma", 2)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkerMarkDoneIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tracker, err := state.NewMarker(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, tracker.MarkDone(ctx, "dolma", 3))
	require.NoError(t, tracker.MarkDone(ctx, "dolma", 3))

	done, err := tracker.IsDone(ctx, "dolma", 3)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMemoryTracker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tracker := state.NewMemory()

	done, err := tracker.IsDone(ctx, "dolma", 1)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tracker.MarkDone(ctx, "dolma", 1))

	done, err = tracker.IsDone(ctx, "dolma", 1)
	require.NoError(t, err)
	assert.True(t, done)
}
