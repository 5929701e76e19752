package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/client/testbackend"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastImport(e *env, n Notifier, cfg ImportConfig) ImportService {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	cfg.PollTimeout = 2 * time.Second
	return NewImportService(e.api, cfg, logging.Discard(), WithImportNotifier(n))
}

func waitJob(t *testing.T, svc ImportService) ImportJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := svc.Wait(ctx)
	require.NoError(t, err)
	return job
}

func TestImport_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.backend.NextTaskID = "abc123"
	e.backend.ScriptTask("abc123",
		testbackend.TaskStep{Status: "transcribing", Progress: 40, Step: "Transcribing audio"},
		testbackend.TaskStep{Status: "ready"},
	)

	n := &notices{}
	svc := fastImport(e, n, ImportConfig{})

	job, err := svc.Submit(context.Background(), "https://example.com/v.mp4", "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", job.TaskID)
	assert.Equal(t, "https://example.com/v.mp4", job.SourceURL)

	job = waitJob(t, svc)
	assert.Equal(t, "ready", job.Status)
	assert.Equal(t, "Ready!", job.Stage)
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.Equal(t, "Transcribing audio", job.CurrentStep)
	assert.False(t, job.Polling)
	assert.NoError(t, job.Err())
	assert.Equal(t, []string{"success: " + msgImportComplete}, n.all())

	time.Sleep(50 * time.Millisecond)
	calls := e.backend.StatusCalls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, e.backend.StatusCalls.Load(), "polling stopped at the terminal state")

	require.Eventually(t, func() bool { return svc.LastServerStats() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, svc.LastServerStats().AvailableSlots)
}

func TestImport_ConfigurableCompleteStatus(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.backend.NextTaskID = "t-uploaded"
	e.backend.ScriptTask("t-uploaded",
		testbackend.TaskStep{Status: "uploading", Progress: 55},
		testbackend.TaskStep{Status: "uploaded", Progress: 80},
	)

	svc := fastImport(e, &notices{}, ImportConfig{CompleteStatus: StatusUploaded})
	_, err := svc.Submit(context.Background(), "http://example.com/a", "clip")
	require.NoError(t, err)

	job := waitJob(t, svc)
	assert.Equal(t, "uploaded", job.Status)
	assert.Equal(t, "Uploaded", job.Stage)
	assert.Equal(t, 100.0, job.ProgressPercent)
}

func TestImport_FailedTaskStopsPolling(t *testing.T) {
	for _, tc := range []struct {
		name, serverErr, want string
	}{
		{"server message", "Video is private", "Video is private"},
		{"default message", "", "Upload failed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.login(t)
			e.backend.NextTaskID = "t1"
			e.backend.ScriptTask("t1",
				testbackend.TaskStep{Status: "uploading", Progress: 5},
				testbackend.TaskStep{Status: "failed", Error: tc.serverErr},
			)

			n := &notices{}
			svc := fastImport(e, n, ImportConfig{})
			_, err := svc.Submit(context.Background(), "https://example.com/v.mp4", "")
			require.NoError(t, err)

			job := waitJob(t, svc)
			assert.Equal(t, "failed", job.Status)
			assert.Equal(t, "Failed", job.Stage)
			assert.Equal(t, tc.want, job.ErrorMessage)
			assert.EqualError(t, job.Err(), tc.want)
			assert.Equal(t, []string{"error: " + tc.want}, n.all())
		})
	}
}

func TestImport_InvalidURLMakesNoCalls(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	svc := fastImport(e, &notices{}, ImportConfig{})

	for _, raw := range []string{"not-a-url", "", "  ", "ftp://example.com/v.mp4", "http://", "/relative/path"} {
		_, err := svc.Submit(context.Background(), raw, "")
		require.ErrorIs(t, err, apierr.ErrValidation, raw)
		_, msg := apierr.Describe(err)
		assert.Equal(t, "Please enter a valid URL", msg)
	}
	assert.Zero(t, e.backend.ImportCalls.Load())
	assert.Zero(t, e.backend.StatusCalls.Load())
}

func TestImport_SubmitErrorDoesNotPoll(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.backend.ImportError = "Unsupported URL"

	svc := fastImport(e, &notices{}, ImportConfig{})
	job, err := svc.Submit(context.Background(), "https://example.com/v.mp4", "")
	require.ErrorIs(t, err, apierr.ErrServer)
	_, msg := apierr.Describe(err)
	assert.Equal(t, "Unsupported URL", msg)
	assert.Equal(t, "Unsupported URL", job.ErrorMessage)
	assert.False(t, job.Polling)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, e.backend.StatusCalls.Load())
}

func TestImport_PollErrorIsNormalizedAndStops(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.backend.NextTaskID = "unknown-task"

	n := &notices{}
	svc := fastImport(e, n, ImportConfig{})
	_, err := svc.Submit(context.Background(), "https://example.com/v.mp4", "")
	require.NoError(t, err)

	job := waitJob(t, svc)
	assert.Equal(t, "Task not found", job.ErrorMessage)
	assert.False(t, job.Polling)
	assert.Equal(t, []string{"error: Task not found"}, n.all())
}

func TestImport_ResetDiscardsLateAnswers(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.backend.NextTaskID = "slow"
	e.backend.ScriptTask("slow", testbackend.TaskStep{Status: "transcribing", Progress: 40, Delay: 200 * time.Millisecond})

	svc := fastImport(e, &notices{}, ImportConfig{PollInterval: time.Hour})
	_, err := svc.Submit(context.Background(), "https://example.com/v.mp4", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return e.backend.StatusCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	svc.Reset()
	assert.Equal(t, ImportJob{}, svc.Job())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, ImportJob{}, svc.Job())

	job, err := svc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ImportJob{}, job)
}

func TestImport_ApplyDropsStaleAndForeignAnswers(t *testing.T) {
	s := NewImportService(nil, ImportConfig{}, logging.Discard()).(*importService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &pollRun{taskID: "t1", ctx: ctx, cancel: cancel, stopped: make(chan struct{})}
	s.run = r
	s.job = ImportJob{TaskID: "t1", Polling: true}

	s.apply(r, 2, &client.TaskStatus{TaskID: "t1", Status: "transcribing", ProgressPercentage: 40}, nil)
	s.apply(r, 1, &client.TaskStatus{TaskID: "t1", Status: "uploading", ProgressPercentage: 10}, nil)
	s.apply(r, 3, &client.TaskStatus{TaskID: "other", Status: "failed"}, nil)

	job := s.Job()
	assert.Equal(t, "transcribing", job.Status)
	assert.Equal(t, 40.0, job.ProgressPercent)
	assert.True(t, job.Polling)

	s.apply(r, 4, &client.TaskStatus{TaskID: "t1", Status: "analyzing", ProgressPercentage: 250}, nil)
	assert.Equal(t, 100.0, s.Job().ProgressPercent, "clamped")

	old := &pollRun{taskID: "t0", ctx: ctx, cancel: cancel, stopped: make(chan struct{})}
	s.apply(old, 9, &client.TaskStatus{TaskID: "t0", Status: "failed"}, nil)
	assert.Equal(t, "analyzing", s.Job().Status)
}

func TestImport_ApplyReadyAndCompleteStatus(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	n := &notices{}
	s := NewImportService(e.api, ImportConfig{CompleteStatus: StatusUploaded}, logging.Discard(), WithImportNotifier(n)).(*importService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &pollRun{taskID: "t1", ctx: ctx, cancel: cancel, stopped: make(chan struct{})}
	s.run = r
	s.job = ImportJob{TaskID: "t1", Polling: true}

	s.apply(r, 1, &client.TaskStatus{TaskID: "t1", Status: StatusReady, ProgressPercentage: 30}, nil)
	job := s.Job()
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.True(t, job.Polling, "ready does not end the job when another status does")
	assert.Empty(t, n.all())

	s.apply(r, 2, &client.TaskStatus{TaskID: "t1", Status: StatusUploaded, ProgressPercentage: 60}, nil)
	job = s.Job()
	assert.Equal(t, 100.0, job.ProgressPercent)
	assert.False(t, job.Polling)
	assert.Equal(t, []string{"success: " + msgImportComplete}, n.all())
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "Queued", StageLabel("pending_upload"))
	assert.Equal(t, "Importing video...", StageLabel("uploading"))
	assert.Equal(t, "Analyzing...", StageLabel("analyzing"))
	assert.Equal(t, "mystery", StageLabel("mystery"))
}
