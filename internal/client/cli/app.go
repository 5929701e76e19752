package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/blockstore"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/client/config"
	"github.com/dmitrijs2005/vidloader/internal/client/jar"
	"github.com/dmitrijs2005/vidloader/internal/client/services"
	"github.com/dmitrijs2005/vidloader/internal/client/session"
	"github.com/dmitrijs2005/vidloader/internal/client/validation"
	"github.com/dmitrijs2005/vidloader/internal/logging"
)

const progressInterval = 500 * time.Millisecond

// sessionView exposes the current session for the prompt.
type sessionView interface {
	Snapshot() session.Session
}

// App is the composition root of the CLI. It also acts as the navigator
// of the request pipeline: the "location" is the command being run.
type App struct {
	config    *config.Config
	db        *sql.DB
	log       logging.Logger
	session   sessionView
	auth      services.AuthService
	uploads   services.UploadService
	imports   services.ImportService
	validator services.Validator
	reader    *bufio.Reader
	out       io.Writer

	outMu    sync.Mutex
	mu       sync.Mutex
	location string
	expired  bool
	bg       sync.WaitGroup
	last     progressState
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogLevel, c.LogFormat, os.Stderr)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	repos := client.NewRepositories(db)

	app := &App{
		config:   c,
		db:       db,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		location: "/",
	}
	if err := app.wire(ctx, repos); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// wire builds the stores and services over repos.
func (a *App) wire(ctx context.Context, repos *client.Repositories) error {
	c := a.config

	origin, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}

	cookieJar, err := jar.New(repos.Cookies, a.log, jar.RefreshCookie)
	if err != nil {
		return err
	}
	if err := cookieJar.Load(ctx); err != nil {
		a.log.Warn(ctx, "failed to restore cookies", "error", err)
	}

	store := session.NewStore(repos.DB, cookieJar, origin, a.log)
	api, err := client.NewHTTPClient(c.BackendURL, store, cookieJar, a.log,
		client.WithNavigator(a),
		client.WithTimeout(c.RequestTimeout),
	)
	if err != nil {
		return err
	}
	store.SetRenewer(api)

	opts := blockstore.Options{BlockSize: int64(c.BlockSizeMB) * blockstore.MiB, Concurrency: c.UploadConcurrency}
	router := blockstore.NewRouter(
		blockstore.NewBlockBlob(nil, opts, a.log),
		func(ctx context.Context) (blockstore.Uploader, error) {
			m, err := blockstore.NewS3Multipart(ctx, blockstore.S3Config{
				Region:    c.S3Region,
				Endpoint:  c.S3Endpoint,
				AccessKey: c.S3AccessKey,
				SecretKey: c.S3SecretKey,
			}, opts, a.log)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	)

	a.validator = validation.New(c.Validation, validation.NewFFProbe(c.FFProbePath), a.log)
	a.session = store
	a.auth = services.NewAuthService(api, store, a.log)
	a.uploads = services.NewUploadService(api, router, a.log, services.WithValidator(a.validator))
	a.imports = services.NewImportService(api, services.ImportConfig{
		PollInterval:   c.PollInterval,
		PollTimeout:    c.PollTimeout,
		CompleteStatus: c.ImportCompleteStatus,
		FormatSelector: c.FormatSelector,
	}, a.log, services.WithImportNotifier(a))
	return nil
}

// Run restores the saved session and runs the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

// Close waits for background uploads and releases the database.
func (a *App) Close() {
	if a.uploads != nil {
		a.uploads.Cancel()
	}
	a.bg.Wait()
	if a.imports != nil {
		a.imports.Reset()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil && a.session.Snapshot().HasCredential
}

func (a *App) Location() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

func (a *App) setLocation(loc string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.location = loc
}

// RedirectToLogin is called by the pipeline once the session can no longer
// be renewed.
func (a *App) RedirectToLogin() {
	a.mu.Lock()
	a.location = "/auth/login"
	a.expired = true
	a.mu.Unlock()
	a.printf("Your session has expired. Please log in again.\n")
}

// Notify prints service notices.
func (a *App) Notify(level services.Level, msg string) {
	switch level {
	case services.LevelError:
		a.printf("Error: %s\n", msg)
	default:
		a.printf("%s\n", msg)
	}
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
