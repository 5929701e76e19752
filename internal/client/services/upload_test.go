package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/blockstore"
	"github.com/dmitrijs2005/vidloader/internal/client/validation"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparseFile creates a file of size zero bytes without writing them.
func sparseFile(t *testing.T, name string, size int64) *validation.FileInput {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return &validation.FileInput{Path: path, Name: name, Size: size}
}

// watchingUploader checks after every progress event that the job never
// moves backwards.
type watchingUploader struct {
	inner blockstore.Uploader
	svc   func() UploadJob

	mu      sync.Mutex
	last    float64
	events  int
	regress bool
}

func (w *watchingUploader) Upload(ctx context.Context, target string, src io.ReaderAt, size int64, ct string, progress blockstore.ProgressFunc) error {
	return w.inner.Upload(ctx, target, src, size, ct, func(n int64) {
		w.mu.Lock()
		defer w.mu.Unlock()
		progress(n)
		p := w.svc().ProgressPercent
		w.events++
		if p < w.last {
			w.regress = true
		}
		w.last = p
	})
}

type rejectAll struct{ calls atomic.Int32 }

func (r *rejectAll) Validate(context.Context, *validation.FileInput) validation.Result {
	r.calls.Add(1)
	return validation.Result{Errors: []string{"Invalid file format. Allowed formats are: mp4"}}
}

func TestUpload_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.backend.DiscardBlobData = true
	e.login(t)

	n := &notices{}
	var svc UploadService
	w := &watchingUploader{inner: blockstore.NewRouter(e.blob, nil), svc: func() UploadJob { return svc.Job() }}
	svc = NewUploadService(e.api, w, logging.Discard(), WithUploadNotifier(n))

	const size = 50 * blockstore.MiB
	in := sparseFile(t, "holiday.mp4", size)

	job, err := svc.Upload(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, job.Phase)
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.Equal(t, int64(size), job.UploadedBytes)
	assert.Equal(t, "1", job.RemoteObjectID)
	assert.NotEmpty(t, job.FileID)

	assert.False(t, w.regress, "progress went backwards")
	assert.Equal(t, 13, w.events)
	assert.Equal(t, int32(13), e.backend.BlockPuts.Load())
	assert.Zero(t, e.backend.BlobAuthLeaks.Load())

	keys := e.backend.CommittedBlobs()
	require.Len(t, keys, 1)
	got, ok := e.backend.BlobSize(keys[0])
	require.True(t, ok)
	assert.Equal(t, int64(size), got)

	done := e.backend.Completions()
	require.Len(t, done, 1)
	assert.Equal(t, "1", done[0].VideoID)
	assert.Equal(t, "holiday.mp4", done[0].FileName)
	assert.Equal(t, int64(size), done[0].FileSize)
	assert.Equal(t, e.backend.URL()+"/blob/"+keys[0], done[0].ObjectURL)
	assert.False(t, strings.Contains(done[0].ObjectURL, "?"))

	assert.Equal(t, []string{"success: " + uploadSuccessMessage}, n.all())

	require.NoError(t, svc.Reset())
	assert.Equal(t, PhaseIdle, svc.Job().Phase)
}

func TestUpload_CancelWhileBlocksInFlight(t *testing.T) {
	e := newEnv(t)
	e.backend.DiscardBlobData = true
	e.backend.BlobDelay = 5 * time.Second
	e.login(t)

	var hooked atomic.Int32
	svc := NewUploadService(e.api, blockstore.NewRouter(e.blob, nil), logging.Discard(),
		WithCancelHook(func(_ context.Context, job UploadJob) error {
			hooked.Add(1)
			assert.Equal(t, "long.mov", job.FileName)
			return errors.New("hook failures are only logged")
		}),
	)

	in := sparseFile(t, "long.mov", 20*blockstore.MiB)

	type result struct {
		job UploadJob
		err error
	}
	out := make(chan result, 1)
	go func() {
		job, err := svc.Upload(context.Background(), in)
		out <- result{job, err}
	}()

	require.Eventually(t, func() bool { return svc.Job().Active() }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.True(t, svc.Cancel())

	var res result
	select {
	case res = <-out:
	case <-time.After(4 * time.Second):
		t.Fatal("upload did not stop after cancel")
	}

	require.ErrorIs(t, res.err, apierr.ErrCancelled)
	_, msg := apierr.Describe(res.err)
	assert.Equal(t, "Upload cancelled.", msg)

	job := svc.Job()
	assert.Equal(t, PhaseCancelled, job.Phase)
	assert.Zero(t, job.ProgressPercent)
	assert.Empty(t, job.FileID)
	assert.Equal(t, int32(1), hooked.Load())
	assert.Empty(t, e.backend.Completions())
	assert.Empty(t, e.backend.CommittedBlobs())

	assert.False(t, svc.Cancel(), "nothing left to cancel")
}

// gatedUploader reports half of each file, then holds the call until the
// matching gate is closed.
type gatedUploader struct {
	calls atomic.Int32
	gates []chan struct{}
	errs  []error
}

func (g *gatedUploader) Upload(ctx context.Context, _ string, _ io.ReaderAt, size int64, _ string, progress blockstore.ProgressFunc) error {
	i := int(g.calls.Add(1)) - 1
	progress(size / 2)
	select {
	case <-g.gates[i]:
	case <-ctx.Done():
		return ctx.Err()
	}
	progress(size)
	return g.errs[i]
}

func TestUpload_NewUploadSupersedesRunningOne(t *testing.T) {
	tests := []struct {
		name   string
		oldErr error
	}{
		{name: "old upload finishes", oldErr: nil},
		{name: "old upload fails", oldErr: errors.New("storage went away")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.login(t)

			g := &gatedUploader{
				gates: []chan struct{}{make(chan struct{}), make(chan struct{})},
				errs:  []error{tt.oldErr, nil},
			}
			n := &notices{}
			svc := NewUploadService(e.api, g, logging.Discard(), WithUploadNotifier(n))

			type result struct {
				job UploadJob
				err error
			}
			run := func(in *validation.FileInput) <-chan result {
				out := make(chan result, 1)
				go func() {
					job, err := svc.Upload(context.Background(), in)
					out <- result{job, err}
				}()
				return out
			}

			oldOut := run(sparseFile(t, "first.mp4", 4*blockstore.MiB))
			require.Eventually(t, func() bool {
				j := svc.Job()
				return j.FileName == "first.mp4" && j.ProgressPercent == 50
			}, 5*time.Second, 5*time.Millisecond)

			newOut := run(sparseFile(t, "second.mp4", 8*blockstore.MiB))
			require.Eventually(t, func() bool {
				j := svc.Job()
				return j.FileName == "second.mp4" && j.ProgressPercent == 50
			}, 5*time.Second, 5*time.Millisecond)
			newID := svc.Job().FileID

			close(g.gates[0])
			var old result
			select {
			case old = <-oldOut:
			case <-time.After(5 * time.Second):
				t.Fatal("superseded upload did not return")
			}

			job := svc.Job()
			assert.Equal(t, newID, job.FileID)
			assert.Equal(t, PhaseUploading, job.Phase)
			assert.Equal(t, 50.0, job.ProgressPercent, "late events of the old upload are ignored")
			assert.Empty(t, job.ErrorMessage)
			assert.Empty(t, n.all())

			if tt.oldErr != nil {
				require.Error(t, old.err)
				assert.Equal(t, PhaseFailed, old.job.Phase)
				assert.Empty(t, e.backend.Completions())
			} else {
				require.NoError(t, old.err)
				assert.Equal(t, PhaseCompleted, old.job.Phase)
				assert.Equal(t, "first.mp4", old.job.FileName)
				assert.Equal(t, "1", old.job.RemoteObjectID)
			}

			close(g.gates[1])
			res := <-newOut
			require.NoError(t, res.err)
			assert.Equal(t, "second.mp4", res.job.FileName)
			assert.Equal(t, PhaseCompleted, svc.Job().Phase)
			assert.Equal(t, "2", svc.Job().RemoteObjectID)
			assert.Equal(t, []string{"success: " + uploadSuccessMessage}, n.all())
		})
	}
}

func TestUpload_ValidationFailureMakesNoCalls(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	v := &rejectAll{}
	svc := NewUploadService(e.api, blockstore.NewRouter(e.blob, nil), logging.Discard(), WithValidator(v))

	_, err := svc.Upload(context.Background(), sparseFile(t, "clip.mkv", 1024))
	require.ErrorIs(t, err, apierr.ErrValidation)
	assert.Equal(t, int32(1), v.calls.Load())
	assert.Equal(t, PhaseIdle, svc.Job().Phase)
	assert.Empty(t, e.backend.Completions())
}

func TestUpload_NoFile(t *testing.T) {
	e := newEnv(t)
	svc := NewUploadService(e.api, blockstore.NewRouter(e.blob, nil), logging.Discard())

	_, err := svc.Upload(context.Background(), nil)
	require.ErrorIs(t, err, apierr.ErrValidation)

	_, err = svc.Upload(context.Background(), &validation.FileInput{Path: filepath.Join(t.TempDir(), "gone.mp4")})
	require.ErrorIs(t, err, apierr.ErrValidation)
	assert.Equal(t, PhaseIdle, svc.Job().Phase)
}

func TestUpload_NegotiationFailureMarksJobFailed(t *testing.T) {
	e := newEnv(t)
	n := &notices{}
	svc := NewUploadService(e.api, blockstore.NewRouter(e.blob, nil), logging.Discard(), WithUploadNotifier(n))

	// never signed in: the renewal fails too
	job, err := svc.Upload(context.Background(), sparseFile(t, "a.mp4", 1024))
	require.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Equal(t, PhaseFailed, job.Phase)
	assert.Empty(t, job.FileID)
	assert.Zero(t, job.ProgressPercent)
	assert.NotEmpty(t, job.ErrorMessage)
	require.Len(t, n.all(), 1)
	assert.True(t, strings.HasPrefix(n.all()[0], "error: "))
}

func TestUpload_UnsupportedTargetFails(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	svc := NewUploadService(e.api, blockstore.NewRouter(nil, nil), logging.Discard())
	job, err := svc.Upload(context.Background(), sparseFile(t, "a.mp4", 1024))
	require.Error(t, err)
	assert.True(t, errors.Is(err, blockstore.ErrUnsupportedTarget))
	assert.Equal(t, PhaseFailed, job.Phase)
	assert.Empty(t, e.backend.Completions())
}

func TestStripQuery(t *testing.T) {
	got, err := stripQuery("https://acct.blob.core.windows.net/videos/a.mp4?sv=1&sig=x")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/videos/a.mp4", got)

	got, err = stripQuery("s3://bucket/key.mp4")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.mp4", got)
}
