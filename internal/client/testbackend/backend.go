// Package testbackend is an in-process fake of the video backend and its
// object store, used by end-to-end tests. It speaks the same REST contract
// as the real service: bearer credentials with cookie based refresh,
// double-submit CSRF tokens, upload URL negotiation, block blob writes and
// scripted import tasks.
package testbackend

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	csrfCookie    = "csrf_token"
	refreshCookie = "refresh_token"
	csrfHeader    = "X-CSRF-Token"
)

// TaskStep is one scripted answer of the task status endpoint.
type TaskStep struct {
	Status   string
	Progress float64
	Step     string
	Error    string
	// Delay holds the response back, to produce out-of-order answers.
	Delay time.Duration
}

// Completion records a call to /upload/complete.
type Completion struct {
	VideoID   string
	FileName  string
	FileSize  int64
	ObjectURL string
}

type user struct {
	password  string
	firstName string
}

type Backend struct {
	Echo   *echo.Echo
	Server *httptest.Server

	// Behaviour knobs; set them before the calls they affect.
	EnforceCSRF     bool
	FailRefresh     bool
	RefreshDelay    time.Duration
	BlobDelay       time.Duration
	DiscardBlobData bool
	ImportError     string
	NextTaskID      string
	Stats           ServerStats

	// FailCSRF makes /auth/csrf-token answer 500; it may be flipped between calls.
	FailCSRF atomic.Bool

	RefreshCalls   atomic.Int32
	CSRFFetches    atomic.Int32
	CSRFRejections atomic.Int32
	LoginCalls     atomic.Int32
	LogoutCalls    atomic.Int32
	StatusCalls    atomic.Int32
	ImportCalls    atomic.Int32
	BlockPuts      atomic.Int32
	BlobAuthLeaks  atomic.Int32

	mu            sync.Mutex
	users         map[string]user
	accessTokens  map[string]string // token -> email
	refreshTokens map[string]string // token -> email
	csrfTokens    map[string]bool
	rejectCSRF    int
	tasks         map[string][]TaskStep
	completions   []Completion
	blobs         map[string]*blob
	videoSeq      int
}

type ServerStats struct {
	ActiveUploads  int `json:"active_uploads"`
	MaxConcurrent  int `json:"max_concurrent"`
	AvailableSlots int `json:"available_slots"`
}

// New starts a backend that is shut down when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		Echo:          echo.New(),
		users:         make(map[string]user),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		csrfTokens:    make(map[string]bool),
		tasks:         make(map[string][]TaskStep),
		blobs:         make(map[string]*blob),
		Stats:         ServerStats{ActiveUploads: 1, MaxConcurrent: 4, AvailableSlots: 3},
	}
	b.Echo.HideBanner = true
	b.Echo.HidePort = true
	b.routes()

	b.Server = httptest.NewServer(b.Echo)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string {
	return b.Server.URL
}

func (b *Backend) routes() {
	e := b.Echo
	protected := []echo.MiddlewareFunc{b.requireCSRF, b.requireAuth}

	e.POST("/auth/csrf-token", b.handleCSRFToken)
	e.POST("/auth/login", b.handleLogin, b.requireCSRF)
	e.POST("/auth/refresh", b.handleRefresh, b.requireCSRF)
	e.POST("/auth/logout", b.handleLogout, b.requireCSRF)

	e.GET("/users/me", b.handleMe, protected...)
	e.POST("/upload/generate-sas", b.handleGenerateSAS, protected...)
	e.POST("/upload/complete", b.handleComplete, protected...)
	e.POST("/import/import-video", b.handleImport, protected...)
	e.GET("/import/task-status/:id", b.handleTaskStatus, protected...)
	e.GET("/import/server-stats", b.handleServerStats, protected...)

	e.PUT("/blob/*", b.handleBlobPut)
}

// AddUser registers an account accepted by /auth/login.
func (b *Backend) AddUser(email, password, firstName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = user{password: password, firstName: firstName}
}

// IssueToken returns a valid access token for email, as a login would.
func (b *Backend) IssueToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(email)
}

func (b *Backend) issueLocked(email string) string {
	tok := "at-" + uuid.NewString()
	b.accessTokens[tok] = email
	return tok
}

// IssueRefreshCookie returns a refresh cookie for email that /auth/refresh
// accepts.
func (b *Backend) IssueRefreshCookie(email string) *http.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := "rt-" + uuid.NewString()
	b.refreshTokens[tok] = email
	return &http.Cookie{Name: refreshCookie, Value: tok, Path: "/", HttpOnly: true}
}

// ExpireAccessTokens invalidates every issued access token.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTokens = make(map[string]string)
}

// RejectNextCSRF makes the next n CSRF-checked requests fail with a CSRF
// 403 even when the token is valid.
func (b *Backend) RejectNextCSRF(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectCSRF = n
}

// ScriptTask sets the answers of the status endpoint for taskID. The last
// step repeats once the script is exhausted.
func (b *Backend) ScriptTask(taskID string, steps ...TaskStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[taskID] = steps
}

func (b *Backend) Completions() []Completion {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Completion(nil), b.completions...)
}
