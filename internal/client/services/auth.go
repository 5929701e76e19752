package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/client"
	"github.com/dmitrijs2005/vidloader/internal/client/models"
	"github.com/dmitrijs2005/vidloader/internal/client/session"
	"github.com/dmitrijs2005/vidloader/internal/logging"
)

// SessionStore is the part of the credential store the auth service needs.
type SessionStore interface {
	Hydrate(ctx context.Context) error
	CheckAuth(ctx context.Context) error
	Login(ctx context.Context, credential string, identity models.Identity) error
	Logout(ctx context.Context) error
	SetCredential(credential string)
	Snapshot() session.Session
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Restore: two-phase start up; loads the saved session, then re-validates it.
//   - Login: exchange email and password for a credential and load the identity.
//   - Logout: tell the backend (best effort) and clear local state.
//   - WhoAmI: fetch the identity of the current credential.
type AuthService interface {
	Restore(ctx context.Context) (session.Session, error)
	Login(ctx context.Context, email, password string) (*models.Identity, error)
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*client.User, error)
}

type authService struct {
	client client.Client
	store  SessionStore
	log    logging.Logger
}

func NewAuthService(client client.Client, store SessionStore, log logging.Logger) AuthService {
	return &authService{client: client, store: store, log: log.With("component", "auth")}
}

func (a *authService) Restore(ctx context.Context) (session.Session, error) {
	if err := a.store.Hydrate(ctx); err != nil {
		return a.store.Snapshot(), fmt.Errorf("hydrate session: %w", err)
	}
	if err := a.store.CheckAuth(ctx); err != nil {
		a.log.Info(ctx, "saved session is no longer valid", "error", err)
	}
	return a.store.Snapshot(), nil
}

// Login authenticates and records the identity returned by /users/me. The
// credential is kept in memory only until the identity is confirmed.
func (a *authService) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apierr.Validation("Email and password are required")
	}

	token, err := a.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	a.store.SetCredential(token)
	me, err := a.client.Me(ctx)
	if err != nil {
		a.store.SetCredential("")
		return nil, fmt.Errorf("load identity: %w", err)
	}

	identity := models.Identity{Email: me.Email, DisplayName: me.FirstName}
	if identity.Email == "" {
		identity.Email = email
	}
	if err := a.store.Login(ctx, token, identity); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &identity, nil
}

func (a *authService) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		a.log.Warn(ctx, "backend logout failed", "error", err)
	}
	return a.store.Logout(ctx)
}

func (a *authService) WhoAmI(ctx context.Context) (*client.User, error) {
	return a.client.Me(ctx)
}
