package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	HeaderAntiForgery = "X-CSRF-Token"

	defaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
)

// CredentialStore is what the pipeline needs from the session store.
type CredentialStore interface {
	Credential() string
	Renew(ctx context.Context, stale string) (string, error)
}

// CookieJar is the client's cookie jar with direct token access.
type CookieJar interface {
	http.CookieJar
	Get(u *url.URL, name string) (string, bool)
	Put(u *url.URL, name, value string)
	Clear(ctx context.Context, u *url.URL, names ...string) error
}

// Request describes one backend call. A Request must not be reused across
// calls: it carries the retry state of the call it belongs to.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is sent as JSON; Form, when set, takes precedence and is sent
	// form-encoded.
	Body any
	Form url.Values

	// Out receives the decoded JSON body of a 2xx response.
	Out any

	// Anonymous calls carry no credential and never trigger renewal.
	Anonymous bool
	// NoRenew calls carry the credential but a 401 is returned as is.
	NoRenew bool

	header      http.Header
	credential  string
	csrfRetried bool
	authRetried bool
}

func (r *Request) setHeader(key, value string) {
	if r.header == nil {
		r.header = make(http.Header)
	}
	r.header.Set(key, value)
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type Handler func(ctx context.Context, req *Request) (*Response, error)

type Middleware func(next Handler) Handler

// HTTPClient implements Client on top of net/http.
type HTTPClient struct {
	base  *url.URL
	http  *http.Client
	jar   CookieJar
	store CredentialStore
	log   logging.Logger

	nav   Navigator
	navMu sync.Mutex

	chain Handler
	bare  Handler

	csrfFlight singleflight.Group
}

var _ Client = (*HTTPClient)(nil)

type Option func(*HTTPClient)

func WithNavigator(n Navigator) Option {
	return func(c *HTTPClient) { c.nav = n }
}

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) { c.http.Transport = rt }
}

func NewHTTPClient(baseURL string, store CredentialStore, cookieJar CookieJar, log logging.Logger, opts ...Option) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	c := &HTTPClient{
		base:  base,
		http:  &http.Client{Jar: cookieJar, Timeout: defaultTimeout},
		jar:   cookieJar,
		store: store,
		log:   log.With("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.chain = chain(c.transport,
		c.normalizeErrors,
		c.renewOnUnauthorized,
		c.retryOnAntiForgery,
		c.attachCredential,
		c.attachAntiForgery,
	)
	// renewal must not recurse into itself or carry a stale credential
	c.bare = chain(c.transport,
		c.retryOnAntiForgery,
		c.attachAntiForgery,
	)

	return c, nil
}

// chain wraps h so that mws[0] is the outermost middleware.
func chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// BaseURL returns the backend origin.
func (c *HTTPClient) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Do sends req through the full pipeline.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.chain(ctx, req)
}

func (c *HTTPClient) transport(ctx context.Context, req *Request) (*Response, error) {
	u := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s %s: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.header {
		hr.Header[k] = v
	}
	if contentType != "" {
		hr.Header.Set("Content-Type", contentType)
	}
	hr.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
	c.log.Debug(ctx, "request", "method", req.Method, "path", req.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, apierr.FromResponse(resp.StatusCode, data)
	}

	if req.Out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, req.Out); err != nil {
			return out, &apierr.Error{
				Kind:    apierr.KindServer,
				Status:  resp.StatusCode,
				Message: apierr.GenericMessage,
				Err:     fmt.Errorf("failed to decode %s %s: %w", req.Method, req.Path, err),
			}
		}
	}

	return out, nil
}
