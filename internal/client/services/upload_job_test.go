package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadTracker_ProgressIsMonotonicAndClamped(t *testing.T) {
	tr := newUploadTracker()
	tr.start("f1", "a.mp4", 200, nil)

	assert.True(t, tr.progress("f1", 50))
	assert.Equal(t, 25.0, tr.snapshot().ProgressPercent)

	assert.False(t, tr.progress("f1", 20), "older cumulative count")
	assert.Equal(t, 25.0, tr.snapshot().ProgressPercent)

	assert.True(t, tr.progress("f1", 1000))
	job := tr.snapshot()
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.Equal(t, int64(200), job.UploadedBytes)
}

func TestUploadTracker_IgnoresOtherFileIDs(t *testing.T) {
	tr := newUploadTracker()
	tr.start("f1", "a.mp4", 100, nil)

	before := tr.snapshot()
	assert.False(t, tr.progress("f2", 50))
	assert.False(t, tr.progress("", 50))
	assert.Equal(t, before, tr.snapshot())
}

func TestUploadTracker_ZeroSizeStaysAtZeroUntilDone(t *testing.T) {
	tr := newUploadTracker()
	tr.start("f1", "empty.mp4", 0, nil)

	tr.progress("f1", 10)
	assert.Zero(t, tr.snapshot().ProgressPercent)

	require.True(t, tr.complete("f1", "9"))
	job := tr.snapshot()
	assert.Equal(t, PhaseCompleted, job.Phase)
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.Equal(t, "9", job.RemoteObjectID)
	assert.Equal(t, "f1", job.FileID, "identity kept until reset")
}

func TestUploadTracker_NewJobSupersedesRunningOne(t *testing.T) {
	tr := newUploadTracker()
	oldCtx, oldCancel := context.WithCancelCause(context.Background())
	tr.start("old", "a.mp4", 100, oldCancel)
	require.True(t, tr.progress("old", 30))

	tr.start("new", "b.mp4", 200, nil)
	require.NoError(t, oldCtx.Err(), "superseded job keeps running")
	assert.False(t, tr.owns("old"))
	assert.True(t, tr.owns("new"))

	assert.False(t, tr.progress("old", 50))
	assert.False(t, tr.complete("old", "v-old"))
	assert.False(t, tr.fail("old", PhaseFailed, "boom"))

	job := tr.snapshot()
	assert.Equal(t, "new", job.FileID)
	assert.Equal(t, "b.mp4", job.FileName)
	assert.Equal(t, PhaseUploading, job.Phase)
	assert.Zero(t, job.ProgressPercent)
	assert.Empty(t, job.RemoteObjectID)

	require.True(t, tr.progress("new", 50))
	assert.Equal(t, 25.0, tr.snapshot().ProgressPercent)

	// cancel reaches only the active job
	_, ok := tr.abort()
	require.True(t, ok)
	assert.NoError(t, oldCtx.Err())

	tr.start("third", "c.mp4", 1, nil)
	require.ErrorIs(t, tr.reset(), ErrUploadInProgress, "a running job is not forgotten")
}

func TestUploadTracker_AbortStopsProgress(t *testing.T) {
	tr := newUploadTracker()
	ctx, cancel := context.WithCancelCause(context.Background())
	tr.start("f1", "a.mp4", 100, cancel)
	tr.progress("f1", 40)

	job, ok := tr.abort()
	require.True(t, ok)
	assert.Equal(t, "f1", job.FileID)
	assert.ErrorIs(t, context.Cause(ctx), apierr.ErrCancelled)

	assert.False(t, tr.progress("f1", 80))
	after := tr.snapshot()
	assert.Equal(t, PhaseCancelled, after.Phase)
	assert.Zero(t, after.ProgressPercent)
	assert.Zero(t, after.UploadedBytes)
	assert.Empty(t, after.FileID)

	assert.False(t, tr.complete("f1", "1"), "late completion after cancel")
	_, ok = tr.abort()
	assert.False(t, ok)

	require.NoError(t, tr.reset())
	assert.Equal(t, UploadJob{Phase: PhaseIdle}, tr.snapshot())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(10, 0))
	assert.Equal(t, 50.0, percent(1, 2))
	assert.Equal(t, 100.0, percent(3, 2))
	assert.Equal(t, 0.0, percent(-1, 2))
}
