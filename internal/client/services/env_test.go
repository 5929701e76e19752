package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/blockstore"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/client/jar"
	"github.com/dmitrijs2005/vidloader/internal/client/models"
	"github.com/dmitrijs2005/vidloader/internal/client/session"
	"github.com/dmitrijs2005/vidloader/internal/client/testbackend"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ann@example.com"
	testPassword = "correct horse"
)

type nav struct {
	mu  sync.Mutex
	loc string
}

func (n *nav) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loc
}

func (n *nav) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loc = "/auth/login"
}

type notices struct {
	mu   sync.Mutex
	list []string
}

func (n *notices) Notify(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, string(level)+": "+msg)
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.list...)
}

type env struct {
	backend *testbackend.Backend
	store   *session.Store
	api     *client.HTTPClient
	blob    *blockstore.BlockBlob
}

func newEnv(t *testing.T) *env {
	t.Helper()

	b := testbackend.New(t)
	b.EnforceCSRF = true
	b.AddUser(testEmail, testPassword, "Ann")

	j, err := jar.New(nil, logging.Discard(), jar.RefreshCookie)
	require.NoError(t, err)

	base, err := url.Parse(b.URL())
	require.NoError(t, err)

	st := session.NewStore(nil, j, base, logging.Discard())
	api, err := client.NewHTTPClient(b.URL(), st, j, logging.Discard(),
		client.WithNavigator(&nav{loc: "/upload-video"}),
		client.WithTimeout(10*time.Second),
	)
	require.NoError(t, err)
	st.SetRenewer(api)

	return &env{
		backend: b,
		store:   st,
		api:     api,
		blob:    blockstore.NewBlockBlob(nil, blockstore.Options{}, logging.Discard()),
	}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	tok, err := e.api.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, e.store.Login(ctx, tok, models.Identity{Email: testEmail}))
}
