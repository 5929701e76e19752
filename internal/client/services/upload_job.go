package services

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
)

type UploadPhase string

const (
	PhaseIdle      UploadPhase = "idle"
	PhaseUploading UploadPhase = "uploading"
	PhaseCompleted UploadPhase = "completed"
	PhaseCancelled UploadPhase = "cancelled"
	PhaseFailed    UploadPhase = "failed"
)

var (
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrNoActiveUpload   = errors.New("no active upload")
)

// UploadJob is a copy of the upload state at one point in time.
type UploadJob struct {
	FileID          string
	FileName        string
	TotalBytes      int64
	UploadedBytes   int64
	ProgressPercent float64
	Phase           UploadPhase
	RemoteObjectID  string
	ErrorMessage    string
}

func (j UploadJob) Active() bool {
	return j.Phase == PhaseUploading
}

// uploadTracker holds the single upload job of a client. Progress is only
// applied for the active FileID and never moves backwards.
type uploadTracker struct {
	mu     sync.Mutex
	job    UploadJob
	cancel context.CancelCauseFunc
}

func newUploadTracker() *uploadTracker {
	return &uploadTracker{job: UploadJob{Phase: PhaseIdle}}
}

func (t *uploadTracker) snapshot() UploadJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// start makes fileID the active job. A job still running is superseded, not
// cancelled: its requests go on, but its events no longer match the active
// FileID and are dropped.
func (t *uploadTracker) start(fileID, name string, total int64, cancel context.CancelCauseFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.job = UploadJob{FileID: fileID, FileName: name, TotalBytes: total, Phase: PhaseUploading}
	t.cancel = cancel
}

// owns reports whether fileID is still the active job.
func (t *uploadTracker) owns(fileID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fileID != "" && t.job.FileID == fileID && t.job.Phase == PhaseUploading
}

// progress records uploaded bytes for fileID and reports whether the event
// was applied.
func (t *uploadTracker) progress(fileID string, uploaded int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fileID == "" || t.job.FileID != fileID || t.job.Phase != PhaseUploading {
		return false
	}
	if uploaded <= t.job.UploadedBytes {
		return false
	}
	if t.job.TotalBytes > 0 && uploaded > t.job.TotalBytes {
		uploaded = t.job.TotalBytes
	}
	t.job.UploadedBytes = uploaded
	t.job.ProgressPercent = max(t.job.ProgressPercent, percent(uploaded, t.job.TotalBytes))
	return true
}

func (t *uploadTracker) complete(fileID, remoteID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.FileID != fileID || t.job.Phase != PhaseUploading {
		return false
	}
	t.job.Phase = PhaseCompleted
	t.job.UploadedBytes = t.job.TotalBytes
	t.job.ProgressPercent = 100
	t.job.RemoteObjectID = remoteID
	t.cancel = nil
	return true
}

// fail ends the job for fileID. Byte counts and the FileID are cleared so
// late progress events are ignored.
func (t *uploadTracker) fail(fileID string, phase UploadPhase, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.FileID != fileID || t.job.Phase != PhaseUploading {
		return false
	}
	t.endLocked(phase, msg)
	return true
}

// abort cancels the active job, whatever its FileID.
func (t *uploadTracker) abort() (UploadJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Phase != PhaseUploading {
		return t.job, false
	}
	job := t.job
	cancel := t.cancel
	t.endLocked(PhaseCancelled, apierr.CancelledMessage)
	if cancel != nil {
		cancel(apierr.ErrCancelled)
	}
	return job, true
}

func (t *uploadTracker) endLocked(phase UploadPhase, msg string) {
	t.job.Phase = phase
	t.job.FileID = ""
	t.job.UploadedBytes = 0
	t.job.ProgressPercent = 0
	t.job.ErrorMessage = msg
	t.cancel = nil
}

func (t *uploadTracker) reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Phase == PhaseUploading {
		return ErrUploadInProgress
	}
	t.job = UploadJob{Phase: PhaseIdle}
	return nil
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) * 100 / float64(total)
	return min(max(p, 0), 100)
}
