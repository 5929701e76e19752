package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
)

const antiForgeryCookie = "csrf_token"

func (c *HTTPClient) normalizeErrors(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return resp, apierr.Normalize(err)
		}
		return resp, nil
	}
}

func (c *HTTPClient) renewOnUnauthorized(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := next(ctx, req)
		if err == nil || req.Anonymous || req.NoRenew || req.authRetried || !errors.Is(err, apierr.ErrUnauthorized) {
			return resp, err
		}
		req.authRetried = true

		if _, rerr := c.store.Renew(ctx, req.credential); rerr != nil {
			c.log.Warn(ctx, "renewal failed, signing out", "path", req.Path, "error", rerr)
			c.redirectToLogin()
			return resp, err
		}

		return next(ctx, req)
	}
}

func (c *HTTPClient) retryOnAntiForgery(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := next(ctx, req)
		if err == nil || req.csrfRetried || !errors.Is(err, apierr.ErrAntiForgery) {
			return resp, err
		}
		req.csrfRetried = true

		if cerr := c.jar.Clear(ctx, c.base, antiForgeryCookie); cerr != nil {
			c.log.Warn(ctx, "failed to clear anti-forgery cookie", "error", cerr)
		}
		c.log.Debug(ctx, "anti-forgery token rejected, retrying", "path", req.Path)

		return next(ctx, req)
	}
}

func (c *HTTPClient) attachCredential(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		if !req.Anonymous {
			req.credential = c.store.Credential()
			if req.credential != "" {
				req.setHeader("Authorization", "Bearer "+req.credential)
			}
		}
		return next(ctx, req)
	}
}

func (c *HTTPClient) attachAntiForgery(next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		if isSafeMethod(req.Method) {
			return next(ctx, req)
		}

		token, ok := c.jar.Get(c.base, antiForgeryCookie)
		if !ok || token == "" {
			var err error
			if token, err = c.fetchAntiForgery(ctx); err != nil {
				return nil, err
			}
		}
		req.setHeader(HeaderAntiForgery, token)

		return next(ctx, req)
	}
}

// fetchAntiForgery obtains a new token. Concurrent callers share one request.
func (c *HTTPClient) fetchAntiForgery(ctx context.Context) (string, error) {
	v, err, _ := c.csrfFlight.Do("csrf", func() (any, error) {
		var out struct {
			CSRFToken string `json:"csrf_token"`
		}
		_, err := c.transport(ctx, &Request{Method: http.MethodPost, Path: "/auth/csrf-token", Out: &out, Anonymous: true})
		if err != nil {
			c.log.Warn(ctx, "failed to fetch anti-forgery token", "error", err)
			return "", err
		}

		if out.CSRFToken != "" {
			if cur, ok := c.jar.Get(c.base, antiForgeryCookie); !ok || cur != out.CSRFToken {
				c.jar.Put(c.base, antiForgeryCookie, out.CSRFToken)
			}
			return out.CSRFToken, nil
		}
		if cur, ok := c.jar.Get(c.base, antiForgeryCookie); ok {
			return cur, nil
		}
		return "", &apierr.Error{Kind: apierr.KindAntiForgery, Message: "Could not obtain an anti-forgery token."}
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// redirectToLogin sends the user to the login surface once: after the first
// redirect the location is an auth page and later callers skip it.
func (c *HTTPClient) redirectToLogin() {
	if c.nav == nil {
		return
	}

	c.navMu.Lock()
	defer c.navMu.Unlock()

	if IsAuthLocation(c.nav.Location()) {
		return
	}
	c.nav.RedirectToLogin()
}

func isSafeMethod(m string) bool {
	switch m {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
