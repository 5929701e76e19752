package services

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/logging"
)

const (
	StatusPendingUpload = "pending_upload"
	StatusUploading     = "uploading"
	StatusUploaded      = "uploaded"
	StatusTranscribing  = "transcribing"
	StatusAnalyzing     = "analyzing"
	StatusReady         = "ready"
	StatusFailed        = "failed"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultPollTimeout    = 10 * time.Second
	DefaultFormatSelector = "best[ext=mp4]/best[height<=720]"

	msgInvalidURL     = "Please enter a valid URL"
	msgImportFailed   = "Upload failed"
	msgImportComplete = "Video imported successfully!"
)

var stageLabels = map[string]string{
	StatusPendingUpload: "Queued",
	StatusUploading:     "Importing video...",
	StatusUploaded:      "Uploaded",
	StatusTranscribing:  "Transcribing...",
	StatusAnalyzing:     "Analyzing...",
	StatusReady:         "Ready!",
	StatusFailed:        "Failed",
}

// StageLabel returns the display label of an import status.
func StageLabel(status string) string {
	if l, ok := stageLabels[status]; ok {
		return l
	}
	return status
}

// ImportJob is a copy of the import state at one point in time.
type ImportJob struct {
	TaskID          string
	SourceURL       string
	Status          string
	ProgressPercent float64
	CurrentStep     string
	Stage           string
	ErrorMessage    string
	Polling         bool
}

// Err returns the failure of a job that ended badly.
func (j ImportJob) Err() error {
	if j.ErrorMessage == "" {
		return nil
	}
	return &apierr.Error{Kind: apierr.KindServer, Message: j.ErrorMessage}
}

type ImportConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	// CompleteStatus is the status treated as success; "ready" by default.
	CompleteStatus string
	FormatSelector string
}

func (c ImportConfig) withDefaults() ImportConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.CompleteStatus == "" {
		c.CompleteStatus = StatusReady
	}
	if c.FormatSelector == "" {
		c.FormatSelector = DefaultFormatSelector
	}
	return c
}

// ImportService submits remote URLs for server side ingestion and polls the
// resulting task until it ends.
type ImportService interface {
	Submit(ctx context.Context, rawURL, customFileName string) (ImportJob, error)
	Job() ImportJob
	// Wait blocks until polling stops or ctx is done.
	Wait(ctx context.Context) (ImportJob, error)
	// Reset discards the job and stops polling at once.
	Reset()
	ServerStats(ctx context.Context) (*client.ServerStats, error)
	LastServerStats() *client.ServerStats
}

// pollRun is one polling session for one task.
type pollRun struct {
	taskID  string
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	ended   bool
}

type importService struct {
	api      client.Client
	log      logging.Logger
	notifier Notifier
	cfg      ImportConfig

	mu      sync.Mutex
	job     ImportJob
	run     *pollRun
	seq     uint64
	applied uint64
	stats   *client.ServerStats
}

type ImportOption func(*importService)

func WithImportNotifier(n Notifier) ImportOption {
	return func(s *importService) { s.notifier = n }
}

func NewImportService(api client.Client, cfg ImportConfig, log logging.Logger, opts ...ImportOption) ImportService {
	s := &importService{
		api:      api,
		log:      log.With("component", "import"),
		notifier: nopNotifier{},
		cfg:      cfg.withDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateSourceURL accepts absolute http and https URLs with a host.
func ValidateSourceURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apierr.Validation(msgInvalidURL)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apierr.Validation(msgInvalidURL)
	}
	return nil
}

func (s *importService) Submit(ctx context.Context, rawURL, customFileName string) (ImportJob, error) {
	if err := ValidateSourceURL(rawURL); err != nil {
		return s.Job(), err
	}
	rawURL = strings.TrimSpace(rawURL)

	// a new import replaces whatever was tracked before
	s.Reset()

	resp, err := s.api.ImportVideo(ctx, client.ImportRequest{
		URL:            rawURL,
		CustomFileName: strings.TrimSpace(customFileName),
		FormatSelector: s.cfg.FormatSelector,
	})
	if err != nil {
		e := apierr.Normalize(err)
		s.mu.Lock()
		s.job = ImportJob{SourceURL: rawURL, ErrorMessage: e.Message}
		job := s.job
		s.mu.Unlock()
		s.log.Warn(ctx, "import submit failed", "url", rawURL, "error", err)
		return job, e
	}

	status := resp.Status
	if status == "" {
		status = StatusPendingUpload
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &pollRun{taskID: resp.TaskID, ctx: runCtx, cancel: cancel, stopped: make(chan struct{})}

	s.mu.Lock()
	if s.run != nil {
		s.endLocked(s.run)
	}
	s.run = r
	s.job = ImportJob{
		TaskID:    resp.TaskID,
		SourceURL: rawURL,
		Status:    status,
		Stage:     StageLabel(status),
		Polling:   true,
	}
	job := s.job
	s.mu.Unlock()

	s.log.Info(ctx, "import submitted", "task_id", resp.TaskID, "url", rawURL)
	go s.loop(r)
	go s.refreshStats(runCtx)
	return job, nil
}

func (s *importService) Job() ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *importService) Wait(ctx context.Context) (ImportJob, error) {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r != nil {
		select {
		case <-r.stopped:
		case <-ctx.Done():
			return s.Job(), ctx.Err()
		}
	}
	return s.Job(), nil
}

func (s *importService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		s.endLocked(s.run)
		s.run = nil
	}
	s.job = ImportJob{}
}

func (s *importService) ServerStats(ctx context.Context) (*client.ServerStats, error) {
	st, err := s.api.ServerStats(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
	return st, nil
}

func (s *importService) LastServerStats() *client.ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *importService) refreshStats(ctx context.Context) {
	if _, err := s.ServerStats(ctx); err != nil {
		s.log.Debug(ctx, "server stats unavailable", "error", err)
	}
}

// loop fires one poll right away and one per interval until the run ends.
// Polls run independently; apply sorts out overlapping answers.
func (s *importService) loop(r *pollRun) {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()

	s.poll(r)
	for {
		select {
		case <-r.stopped:
			return
		case <-t.C:
			s.poll(r)
		}
	}
}

func (s *importService) poll(r *pollRun) {
	s.mu.Lock()
	if r.ended {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, s.cfg.PollTimeout)
		defer cancel()
		st, err := s.api.TaskStatus(ctx, r.taskID)
		s.apply(r, seq, st, err)
	}()
}

func (s *importService) apply(r *pollRun, seq uint64, st *client.TaskStatus, err error) {
	s.mu.Lock()

	if s.run != r || r.ended || seq <= s.applied {
		s.mu.Unlock()
		return
	}
	if err == nil && st.TaskID != "" && st.TaskID != r.taskID {
		s.mu.Unlock()
		return
	}
	s.applied = seq

	if err != nil {
		e := apierr.Normalize(err)
		s.job.ErrorMessage = e.Message
		s.endLocked(r)
		s.mu.Unlock()
		s.log.Warn(r.ctx, "status poll failed", "task_id", r.taskID, "error", err)
		s.notifier.Notify(LevelError, e.Message)
		return
	}

	s.job.Status = st.Status
	s.job.Stage = StageLabel(st.Status)
	s.job.ProgressPercent = min(max(st.ProgressPercentage, 0), 100)
	if st.CurrentStep != "" {
		s.job.CurrentStep = st.CurrentStep
	} else if st.Message != "" {
		s.job.CurrentStep = st.Message
	}

	var level Level
	var msg string
	switch {
	case st.Status == StatusFailed:
		msg = st.ErrorMessage
		if msg == "" {
			msg = msgImportFailed
		}
		s.job.ErrorMessage = msg
		level = LevelError
		s.endLocked(r)
	case st.Status == s.cfg.CompleteStatus:
		s.job.ProgressPercent = 100
		msg = msgImportComplete
		level = LevelSuccess
		s.endLocked(r)
	case st.Status == StatusReady:
		// ready is always 100%, even when another status ends the job
		s.job.ProgressPercent = 100
	}
	s.mu.Unlock()

	if msg == "" {
		return
	}
	s.log.Info(r.ctx, "import finished", "task_id", r.taskID, "status", st.Status)
	s.notifier.Notify(level, msg)
	go s.refreshStats(context.WithoutCancel(r.ctx))
}

// endLocked stops r. In-flight polls are cancelled and their answers
// dropped.
func (s *importService) endLocked(r *pollRun) {
	if r.ended {
		return
	}
	r.ended = true
	r.cancel()
	close(r.stopped)
	if s.run == r {
		s.job.Polling = false
	}
}
