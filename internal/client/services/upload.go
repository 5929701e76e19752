package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/blockstore"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/client/validation"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/google/uuid"
)

const uploadSuccessMessage = "File uploaded and registered successfully!"

// Validator checks a file before it is uploaded.
type Validator interface {
	Validate(ctx context.Context, in *validation.FileInput) validation.Result
}

// UploadService uploads one local file at a time.
type UploadService interface {
	// Upload blocks until the file is stored and registered, fails, or is
	// cancelled.
	Upload(ctx context.Context, in *validation.FileInput) (UploadJob, error)
	// Cancel stops the active upload. It reports false when nothing runs.
	Cancel() bool
	Job() UploadJob
	// Reset forgets a finished job.
	Reset() error
}

type UploadOption func(*uploadService)

func WithValidator(v Validator) UploadOption {
	return func(s *uploadService) { s.validator = v }
}

// WithCancelHook registers fn to run after a user cancel. Its error is
// logged only.
func WithCancelHook(fn func(ctx context.Context, job UploadJob) error) UploadOption {
	return func(s *uploadService) { s.onCancel = fn }
}

func WithUploadNotifier(n Notifier) UploadOption {
	return func(s *uploadService) { s.notifier = n }
}

type uploadService struct {
	api       client.Client
	store     blockstore.Uploader
	log       logging.Logger
	validator Validator
	onCancel  func(ctx context.Context, job UploadJob) error
	notifier  Notifier
	jobs      *uploadTracker
}

func NewUploadService(api client.Client, store blockstore.Uploader, log logging.Logger, opts ...UploadOption) UploadService {
	s := &uploadService{
		api:      api,
		store:    store,
		log:      log.With("component", "upload"),
		notifier: nopNotifier{},
		jobs:     newUploadTracker(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *uploadService) Job() UploadJob {
	return s.jobs.snapshot()
}

func (s *uploadService) Reset() error {
	return s.jobs.reset()
}

func (s *uploadService) Cancel() bool {
	job, ok := s.jobs.abort()
	if ok {
		s.log.Info(context.Background(), "upload cancelled", "file_id", job.FileID, "file", job.FileName)
	}
	return ok
}

func (s *uploadService) Upload(ctx context.Context, in *validation.FileInput) (UploadJob, error) {
	if in == nil || in.Path == "" {
		return s.Job(), apierr.Validation(validation.MsgNoFile)
	}
	name := in.Name
	if name == "" {
		name = filepath.Base(in.Path)
	}

	if s.validator != nil {
		if res := s.validator.Validate(ctx, in); !res.IsValid {
			return s.Job(), res.Err()
		}
	}

	f, err := os.Open(in.Path)
	if err != nil {
		return s.Job(), &apierr.Error{Kind: apierr.KindValidation, Message: "Could not read the selected file.", Err: err}
	}
	defer f.Close()

	size := in.Size
	if size <= 0 {
		st, err := f.Stat()
		if err != nil {
			return s.Job(), &apierr.Error{Kind: apierr.KindValidation, Message: "Could not read the selected file.", Err: err}
		}
		size = st.Size()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	fileID := uuid.NewString()
	if prev := s.jobs.snapshot(); prev.Active() {
		s.log.Info(ctx, "upload superseded", "file_id", prev.FileID, "file", prev.FileName)
	}
	s.jobs.start(fileID, name, size, cancel)
	log := s.log.With("file_id", fileID, "file", name)
	log.Info(ctx, "upload started", "size", size)

	target, err := s.api.GenerateUploadURL(ctx, name, size)
	if err != nil {
		return s.finish(ctx, fileID, fmt.Errorf("negotiate upload url: %w", err))
	}

	progress := func(n int64) { s.jobs.progress(fileID, n) }
	if err := s.store.Upload(ctx, target.URL(), f, size, validation.ContentType(name), progress); err != nil {
		return s.finish(ctx, fileID, fmt.Errorf("store blocks: %w", err))
	}

	objectURL, err := stripQuery(target.URL())
	if err != nil {
		return s.finish(ctx, fileID, err)
	}
	resp, err := s.api.CompleteUpload(ctx, target.VideoID.String(), client.CompleteUploadRequest{
		FileName:  name,
		FileSize:  size,
		ObjectURL: objectURL,
	})
	if err != nil {
		return s.finish(ctx, fileID, fmt.Errorf("complete upload: %w", err))
	}

	remoteID := target.VideoID.String()
	if resp.VideoID != "" {
		remoteID = resp.VideoID.String()
	}
	if !s.jobs.complete(fileID, remoteID) {
		if errors.Is(context.Cause(ctx), apierr.ErrCancelled) {
			// cancelled after the last request already succeeded
			return s.finish(ctx, fileID, apierr.ErrCancelled)
		}
		log.Info(ctx, "superseded upload completed", "video_id", remoteID)
		return UploadJob{
			FileID:          fileID,
			FileName:        name,
			TotalBytes:      size,
			UploadedBytes:   size,
			ProgressPercent: 100,
			Phase:           PhaseCompleted,
			RemoteObjectID:  remoteID,
		}, nil
	}
	log.Info(ctx, "upload completed", "video_id", remoteID)
	s.notifier.Notify(LevelSuccess, uploadSuccessMessage)
	return s.Job(), nil
}

// finish records a failed or cancelled job and returns the normalised error.
func (s *uploadService) finish(ctx context.Context, fileID string, err error) (UploadJob, error) {
	userCancel := errors.Is(context.Cause(ctx), apierr.ErrCancelled)

	if !userCancel && !s.jobs.owns(fileID) {
		// a newer upload owns the shared state
		e := apierr.Normalize(err)
		s.log.Warn(ctx, "superseded upload ended", "file_id", fileID, "error", err)
		return UploadJob{FileID: fileID, Phase: PhaseFailed, ErrorMessage: e.Message}, e
	}

	if userCancel || errors.Is(err, apierr.ErrCancelled) {
		// Cancel has already ended the job.
		s.jobs.fail(fileID, PhaseCancelled, apierr.CancelledMessage)
		job := s.Job()
		s.runCancelHook(ctx, job)
		s.notifier.Notify(LevelInfo, apierr.CancelledMessage)
		return job, apierr.Cancelled(err)
	}

	e := apierr.Normalize(err)
	if e.Kind == apierr.KindCancelled {
		s.jobs.fail(fileID, PhaseCancelled, e.Message)
	} else {
		s.jobs.fail(fileID, PhaseFailed, e.Message)
	}
	s.log.Warn(ctx, "upload failed", "file_id", fileID, "error", err)
	s.notifier.Notify(LevelError, e.Message)
	return s.Job(), e
}

func (s *uploadService) runCancelHook(ctx context.Context, job UploadJob) {
	if s.onCancel == nil {
		return
	}
	if err := s.onCancel(context.WithoutCancel(ctx), job); err != nil {
		s.log.Warn(ctx, "cancel hook failed", "error", err)
	}
}

// stripQuery drops the signature part of a pre-signed URL.
func stripQuery(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse upload url: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
