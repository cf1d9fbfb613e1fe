// Package apiclient is the one HTTP client used for all festmatch REST traffic.
//
// It attaches the session's bearer token, renews the token shortly before it
// expires, and when the backend answers 401 it refreshes once and replays the
// request. Concurrent callers that need a refresh share a single call to the
// refresh endpoint. A refresh that fails tears the session down.
package apiclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/internal/config"
	"github.com/jrsteele09/festmatch-client/internal/metrics"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/jrsteele09/festmatch-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Defaults applied by New when the matching option is not given
const (
	// DefaultRefreshPath is the endpoint that trades the refresh cookie for a new access token
	DefaultRefreshPath = "/auth/refresh"
	// DefaultRefreshTimeout bounds one refresh call, independent of any caller's context
	DefaultRefreshTimeout = 10 * time.Second
	// DefaultRequestTimeout is the timeout of the http.Client New builds itself
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "festmatch-client/1.0"
)

// DefaultLoginPaths are the endpoints where a 401 means bad credentials rather
// than an expired token
var DefaultLoginPaths = []string{"/auth/kakao/login", "/auth/login"}

// Client sends authenticated requests to the festmatch backend and keeps the
// session token in store fresh. It is safe for concurrent use.
type Client struct {
	baseURL         *url.URL
	store           *sessions.Store
	httpClient      *http.Client
	jar             http.CookieJar
	refreshPath     string
	loginPaths      []string
	expiryThreshold time.Duration
	refreshTimeout  time.Duration
	limiter         *rate.Limiter
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	userAgent       string

	refreshURL *url.URL
	loginSet   map[string]struct{}
	refresher  *refresher
}

// New creates a client for the backend at baseURL backed by store
func New(baseURL string, store *sessions.Store, options ...Option) (*Client, error) {
	if store == nil {
		return nil, clienterrors.Wrapf(clienterrors.ErrInternal, "apiclient.New: session store is required")
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, clienterrors.Wrapf(err, "apiclient.New: parse base URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, clienterrors.Wrapf(clienterrors.ErrInternal, "apiclient.New: base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:         base,
		store:           store,
		refreshPath:     DefaultRefreshPath,
		loginPaths:      DefaultLoginPaths,
		expiryThreshold: token.DefaultExpiryThreshold,
		refreshTimeout:  DefaultRefreshTimeout,
		logger:          log.Logger,
		userAgent:       DefaultUserAgent,
	}
	for _, opt := range options {
		opt(c)
	}

	if err := c.initHTTPClient(); err != nil {
		return nil, err
	}

	c.refreshURL = c.endpoint(c.refreshPath)
	c.loginSet = make(map[string]struct{}, len(c.loginPaths))
	for _, p := range c.loginPaths {
		c.loginSet[c.endpoint(p).Path] = struct{}{}
	}
	c.refresher = newRefresher(c)
	return c, nil
}

// NewFromConfig builds a client from the api and client config sections.
// Explicit options are applied after the config values.
func NewFromConfig(cfg config.Config, store *sessions.Store, options ...Option) (*Client, error) {
	opts := []Option{
		WithRefreshPath(cfg.GetRefreshPath()),
		WithLoginPaths(cfg.GetLoginPaths()...),
		WithExpiryThreshold(cfg.GetExpiryThreshold()),
		WithRefreshTimeout(cfg.GetRefreshTimeout()),
		WithHTTPClient(&http.Client{Timeout: cfg.GetRequestTimeout()}),
	}
	if limit := cfg.GetRateLimit(); limit > 0 {
		opts = append(opts, WithRateLimiter(rate.NewLimiter(rate.Limit(limit), cfg.GetRateBurst())))
	}
	return New(cfg.GetBaseURL(), store, append(opts, options...)...)
}

func (c *Client) initHTTPClient() error {
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if c.jar == nil && c.httpClient.Jar != nil {
		return nil
	}

	jar := c.jar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return clienterrors.Wrapf(err, "apiclient.New: cookie jar")
		}
	}
	hc := *c.httpClient
	hc.Jar = jar
	c.httpClient = &hc
	c.jar = jar
	return nil
}

// endpoint resolves path, which may carry a query string, against the base URL
func (c *Client) endpoint(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return &u
}

func (c *Client) isRefreshRequest(req *http.Request) bool {
	return samePath(req.URL.Path, c.refreshURL.Path)
}

func (c *Client) isLoginRequest(req *http.Request) bool {
	_, ok := c.loginSet[strings.TrimSuffix(req.URL.Path, "/")]
	return ok
}

// Store returns the session store the client reads tokens from
func (c *Client) Store() *sessions.Store {
	return c.store
}

// HTTPClient returns the underlying client, cookie jar included
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// URL resolves an API path against the base URL
func (c *Client) URL(path string) string {
	return c.endpoint(path).String()
}

// ExpiryThreshold is how close to exp a token may get before it is renewed
func (c *Client) ExpiryThreshold() time.Duration {
	return c.expiryThreshold
}

// InFlight reports whether a refresh call is currently outstanding
func (c *Client) InFlight() bool {
	return c.refresher.inFlight.Load()
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
