package apiclient

import (
	"net/http"
	"time"

	"github.com/jrsteele09/festmatch-client/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Option configures a Client in New
type Option func(*Client)

// WithHTTPClient sets the transport client. A client without a cookie jar is
// copied and given one, since the refresh call depends on the refresh cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCookieJar sets the jar that holds the refresh cookie
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithRefreshPath overrides DefaultRefreshPath
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = path
	}
}

// WithLoginPaths replaces the set of endpoints whose 401 is returned as is
func WithLoginPaths(paths ...string) Option {
	return func(c *Client) {
		c.loginPaths = paths
	}
}

// WithExpiryThreshold sets how close to exp a token is renewed before use
func WithExpiryThreshold(d time.Duration) Option {
	return func(c *Client) {
		c.expiryThreshold = d
	}
}

// WithRefreshTimeout overrides DefaultRefreshTimeout
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithRateLimiter makes every outbound call, refreshes included, wait on l
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMetrics records refresh outcomes, replays and session teardowns in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}
