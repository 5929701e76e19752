// Package jar provides the client's cookie jar. It wraps net/http/cookiejar
// and writes a configured set of durable cookies (the refresh cookie) through
// to the local database, so a restarted CLI can still renew its session.
package jar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/models"
	"github.com/dmitrijs2005/vidloader/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"golang.org/x/net/publicsuffix"
)

const (
	AntiForgeryCookie = "csrf_token"
	RefreshCookie     = "refresh_token"
)

type Jar struct {
	inner   *cookiejar.Jar
	repo    cookies.Repository
	durable map[string]struct{}
	log     logging.Logger

	// persistMu serialises write-through so rows follow SetCookies order.
	persistMu sync.Mutex
	now       func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// New returns a jar persisting the named cookies to repo. A nil repo keeps
// everything in memory.
func New(repo cookies.Repository, log logging.Logger, durable ...string) (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	d := make(map[string]struct{}, len(durable))
	for _, name := range durable {
		d[name] = struct{}{}
	}

	return &Jar{
		inner:   inner,
		repo:    repo,
		durable: d,
		log:     log.With("component", "cookie-jar"),
		now:     time.Now,
	}, nil
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

func (j *Jar) SetCookies(u *url.URL, cs []*http.Cookie) {
	j.inner.SetCookies(u, cs)

	if j.repo == nil {
		return
	}
	for _, c := range cs {
		if _, ok := j.durable[c.Name]; !ok {
			continue
		}
		if err := j.persist(context.Background(), u, c); err != nil {
			j.log.Warn(context.Background(), "failed to persist cookie", "name", c.Name, "error", err)
		}
	}
}

// Get returns the value of the named cookie as it would be sent to u.
func (j *Jar) Get(u *url.URL, name string) (string, bool) {
	for _, c := range j.inner.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Put stores a cookie for u's host that the server delivered out of band,
// e.g. a token returned in a response body.
func (j *Jar) Put(u *url.URL, name, value string) {
	j.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Clear expires the named cookies for u. Both the host-only and the
// domain-scoped variants are expired since the jar treats them as distinct.
func (j *Jar) Clear(ctx context.Context, u *url.URL, names ...string) error {
	host := u.Hostname()
	for _, name := range names {
		j.inner.SetCookies(u, []*http.Cookie{
			{Name: name, Path: "/", MaxAge: -1},
			{Name: name, Path: "/", Domain: host, MaxAge: -1},
		})
		if _, ok := j.durable[name]; ok && j.repo != nil {
			j.persistMu.Lock()
			err := j.repo.DeleteByName(ctx, name)
			j.persistMu.Unlock()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Load restores persisted cookies into the jar, dropping expired ones.
func (j *Jar) Load(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}

	stored, err := j.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	now := j.now()
	for _, sc := range stored {
		if sc.Expired(now) {
			continue
		}
		scheme := "http"
		if sc.Secure {
			scheme = "https"
		}
		u := &url.URL{Scheme: scheme, Host: sc.Domain, Path: sc.Path}
		c := &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
			Expires:  sc.ExpiresAt,
		}
		j.inner.SetCookies(u, []*http.Cookie{c})
	}

	j.log.Debug(ctx, "cookies restored", "count", len(stored))
	return nil
}

func (j *Jar) persist(ctx context.Context, u *url.URL, c *http.Cookie) error {
	j.persistMu.Lock()
	defer j.persistMu.Unlock()

	now := j.now()
	var expires time.Time
	switch {
	case c.MaxAge < 0:
		return j.repo.DeleteByName(ctx, c.Name)
	case c.MaxAge > 0:
		expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		expires = c.Expires
	}
	if !expires.IsZero() && !expires.After(now) {
		return j.repo.DeleteByName(ctx, c.Name)
	}

	domain := strings.TrimPrefix(c.Domain, ".")
	if domain == "" {
		domain = u.Hostname()
	}
	path := c.Path
	if path == "" {
		path = "/"
	}

	return j.repo.Save(ctx, models.StoredCookie{
		Name:      c.Name,
		Value:     c.Value,
		Domain:    domain,
		Path:      path,
		Secure:    c.Secure,
		HttpOnly:  c.HttpOnly,
		ExpiresAt: expires,
	})
}
