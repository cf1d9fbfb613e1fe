// Package bridge exchanges the festmatch session for a realtime custom token,
// which the messaging store uses as its sign-in credential.
package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/festmatch-client/apiclient"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const DefaultPath = "/auth/firebase-token"

// CustomToken is the realtime credential issued for the signed-in user
type CustomToken struct {
	Token string `json:"customToken"`
	UID   string `json:"uid"`
}

// TokenSourceProvider hands out a token source bound to one call's context.
// *apiclient.Client implements it.
type TokenSourceProvider interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
}

type Bridge struct {
	tokens   TokenSourceProvider
	endpoint string
	base     http.RoundTripper
	timeout  time.Duration
	logger   zerolog.Logger
}

type Option func(*Bridge)

// WithTransport sets the transport the bearer is added on top of
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Bridge) {
		b.base = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge that posts to endpoint with a bearer from tokens
func New(tokens TokenSourceProvider, endpoint string, options ...Option) (*Bridge, error) {
	if tokens == nil {
		return nil, errors.New("[bridge.New] token source is required")
	}
	if endpoint == "" {
		return nil, errors.New("[bridge.New] endpoint is required")
	}

	b := &Bridge{
		tokens:   tokens,
		endpoint: endpoint,
		base:     http.DefaultTransport,
		timeout:  apiclient.DefaultRequestTimeout,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// NewFromClient wires a bridge to the API client: its session tokens, its
// transport and its base URL
func NewFromClient(client *apiclient.Client, path string, options ...Option) (*Bridge, error) {
	if client == nil {
		return nil, errors.New("[bridge.NewFromClient] client is required")
	}
	if path == "" {
		path = DefaultPath
	}
	opts := []Option{}
	if rt := client.HTTPClient().Transport; rt != nil {
		opts = append(opts, WithTransport(rt))
	}
	return New(client, client.URL(path), append(opts, options...)...)
}

// Exchange trades the current session for a custom token. The bearer comes
// from the token source, so an expiring session is renewed first.
func (b *Bridge) Exchange(ctx context.Context) (*CustomToken, error) {
	hc := &http.Client{
		Transport: &oauth2.Transport{
			Source: b.tokens.TokenSource(ctx),
			Base:   b.base,
		},
		Timeout: b.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "Bridge.Exchange")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		// token source errors arrive wrapped in *url.Error and still match errors.Is
		return nil, clienterrors.Wrapf(err, "Bridge.Exchange")
	}

	var ct CustomToken
	if err := apiclient.ParseResponse(resp, &ct); err != nil {
		return nil, clienterrors.Wrapf(err, "Bridge.Exchange")
	}
	if ct.Token == "" {
		return nil, clienterrors.ErrBridgeMissingToken
	}

	b.logger.Debug().Str("uid", ct.UID).Msg("Realtime identity bridge established")
	return &ct, nil
}
