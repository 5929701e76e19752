package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/jar"
	"github.com/dmitrijs2005/vidloader/internal/client/models"
	"github.com/dmitrijs2005/vidloader/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/vidloader/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vidloader/internal/dbx"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// expirySkew treats a credential as expired slightly before its exp claim.
const expirySkew = 10 * time.Second

const renewKey = "renew"

var ErrNoRenewer = errors.New("session: no renewer configured")

// Renewer obtains a fresh credential from the durable (cookie based) session.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

// CookieJar is the part of the cookie jar the store needs on logout.
type CookieJar interface {
	Clear(ctx context.Context, u *url.URL, names ...string) error
}

type Store struct {
	db      *sql.DB
	cookies CookieJar
	origin  *url.URL
	log     logging.Logger

	mu      sync.RWMutex
	sess    Session
	renewer Renewer

	hydrateOnce sync.Once
	hydrateErr  error

	sf  singleflight.Group
	now func() time.Time
}

// NewStore creates an empty store. db may be nil, in which case nothing is
// persisted. origin is the backend URL whose cookies are cleared on logout.
func NewStore(db *sql.DB, cookieJar CookieJar, origin *url.URL, log logging.Logger) *Store {
	return &Store{
		db:      db,
		cookies: cookieJar,
		origin:  origin,
		log:     log.With("component", "session"),
		now:     time.Now,
	}
}

func (s *Store) SetRenewer(r Renewer) {
	s.mu.Lock()
	s.renewer = r
	s.mu.Unlock()
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.sess
	if s.sess.Identity != nil {
		id := *s.sess.Identity
		out.Identity = &id
	}
	return out
}

// Credential returns the in-memory credential, or "" when there is none.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.Credential
}

// Hydrate loads the persisted snapshot. Only the first call does any work.
func (s *Store) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		var snap models.SessionSnapshot
		if s.db != nil {
			_, s.hydrateErr = metadata.GetJSON(ctx, metadata.NewSQLiteRepository(s.db), metadata.KeySession, &snap)
		}

		s.mu.Lock()
		if s.hydrateErr == nil {
			s.sess.HasCredential = snap.IsAuthenticated
			s.sess.Identity = snap.Identity
		}
		s.sess.IsHydrated = true
		s.mu.Unlock()

		if s.hydrateErr != nil {
			s.log.Warn(ctx, "failed to load session snapshot", "error", s.hydrateErr)
		}
	})
	return s.hydrateErr
}

// Login marks the session authenticated and persists the identity.
func (s *Store) Login(ctx context.Context, credential string, identity models.Identity) error {
	s.mu.Lock()
	s.sess.HasCredential = true
	s.sess.Credential = credential
	s.sess.ExpiresAt = expiryOf(credential)
	s.sess.Identity = &identity
	s.mu.Unlock()

	s.log.Info(ctx, "signed in", "email", identity.Email)
	return s.persist(ctx, models.SessionSnapshot{Identity: &identity, IsAuthenticated: true}, false)
}

// Logout clears the session, the anti-forgery cookie and the refresh cookie.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.sess.HasCredential = false
	s.sess.Credential = ""
	s.sess.ExpiresAt = time.Time{}
	s.sess.Identity = nil
	s.mu.Unlock()

	var errs []error
	if s.cookies != nil && s.origin != nil {
		if err := s.cookies.Clear(ctx, s.origin, jar.AntiForgeryCookie, jar.RefreshCookie); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear cookies: %w", err))
		}
	}
	if err := s.persist(ctx, models.SessionSnapshot{}, true); err != nil {
		errs = append(errs, err)
	}

	s.log.Info(ctx, "signed out")
	return errors.Join(errs...)
}

// SetCredential replaces the in-memory credential. The identity is untouched.
func (s *Store) SetCredential(credential string) {
	s.mu.Lock()
	s.sess.Credential = credential
	s.sess.ExpiresAt = expiryOf(credential)
	if credential != "" {
		s.sess.HasCredential = true
	}
	s.mu.Unlock()
}

// CheckAuth reconciles the authenticated flag with the in-memory credential.
// When the flag is set but no usable credential is held, it renews; if that
// fails the session is logged out and the renewal error returned. Safe to
// call concurrently: callers share one renewal.
func (s *Store) CheckAuth(ctx context.Context) error {
	s.mu.Lock()
	if !s.sess.HasCredential || s.usableLocked() {
		s.mu.Unlock()
		return nil
	}
	s.sess.IsAuthCheckInProgress = true
	stale := s.sess.Credential
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sess.IsAuthCheckInProgress = false
		s.mu.Unlock()
	}()

	_, err := s.Renew(ctx, stale)
	return err
}

// Renew returns a credential newer than stale. If the stored credential
// already differs from stale (someone else renewed), it is returned without
// a network call. Otherwise one shared renewal runs; on failure the session
// is logged out before any waiter is released.
func (s *Store) Renew(ctx context.Context, stale string) (string, error) {
	if cur := s.Credential(); cur != "" && cur != stale {
		return cur, nil
	}

	ch := s.sf.DoChan(renewKey, func() (any, error) {
		// the first caller's cancellation must not abort a shared renewal
		rctx := context.WithoutCancel(ctx)

		if cur := s.Credential(); cur != "" && cur != stale {
			return cur, nil
		}

		s.mu.RLock()
		r := s.renewer
		s.mu.RUnlock()

		token, err := "", ErrNoRenewer
		if r != nil {
			token, err = r.Renew(rctx)
		}
		if err != nil {
			s.log.Warn(rctx, "credential renewal failed", "error", err)
			if lerr := s.Logout(rctx); lerr != nil {
				s.log.Error(rctx, "logout after failed renewal", "error", lerr)
			}
			return "", err
		}

		s.SetCredential(token)
		s.log.Debug(rctx, "credential renewed")
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Store) usableLocked() bool {
	if s.sess.Credential == "" {
		return false
	}
	if s.sess.ExpiresAt.IsZero() {
		return true
	}
	return s.now().Add(expirySkew).Before(s.sess.ExpiresAt)
}

func (s *Store) persist(ctx context.Context, snap models.SessionSnapshot, dropRefresh bool) error {
	if s.db == nil {
		return nil
	}
	snap.SavedAt = s.now().UTC()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := metadata.SetJSON(ctx, metadata.NewSQLiteRepository(tx), metadata.KeySession, snap); err != nil {
			return err
		}
		if dropRefresh {
			return cookies.NewSQLiteRepository(tx).DeleteByName(ctx, jar.RefreshCookie)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// expiryOf decodes the exp claim of a JWT without verifying it. The backend
// verifies signatures; the client only needs to know when to renew.
func expiryOf(credential string) time.Time {
	if credential == "" {
		return time.Time{}
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
