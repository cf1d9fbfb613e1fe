// Package bootstrap restores the signed-in state at process start and when
// the app wakes up: hydrate the session, renew a token that is about to
// lapse, then re-establish the realtime identity bridge.
package bootstrap

import (
	"context"

	"github.com/jrsteele09/festmatch-client/apiclient"
	"github.com/jrsteele09/festmatch-client/bridge"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/jrsteele09/festmatch-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Exchanger re-establishes the realtime identity. *bridge.Bridge implements it.
type Exchanger interface {
	Exchange(ctx context.Context) (*bridge.CustomToken, error)
}

// Result describes the session Run left behind. BridgeErr is set when the
// session is fine but the realtime bridge could not be re-established.
type Result struct {
	Session   sessions.Session
	Refreshed bool
	Bridge    *bridge.CustomToken
	BridgeErr error
}

type Bootstrapper struct {
	client *apiclient.Client
	bridge Exchanger
	logger zerolog.Logger
}

type Option func(*Bootstrapper)

// WithBridge enables the bridge step
func WithBridge(e Exchanger) Option {
	return func(b *Bootstrapper) {
		b.bridge = e
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bootstrapper) {
		b.logger = logger
	}
}

func New(client *apiclient.Client, options ...Option) (*Bootstrapper, error) {
	if client == nil {
		return nil, errors.New("[bootstrap.New] client is required")
	}
	b := &Bootstrapper{
		client: client,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Run returns ErrNoSession when nobody is signed in. A failed renewal is
// returned as is; the client has already torn the session down by then.
func (b *Bootstrapper) Run(ctx context.Context) (*Result, error) {
	store := b.client.Store()
	if err := store.Hydrate(ctx); err != nil {
		return nil, clienterrors.Wrapf(err, "Bootstrapper.Run")
	}

	current, err := store.Current(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if token.WillExpireSoon(current.AccessToken, b.client.ExpiryThreshold()) {
		b.logger.Debug().Msg("Stored access token close to expiry, renewing")
		if _, err := b.client.Refresh(ctx); err != nil {
			return nil, clienterrors.Wrapf(err, "Bootstrapper.Run")
		}
		result.Refreshed = true

		if current, err = store.Current(ctx); err != nil {
			return nil, err
		}
	}
	result.Session = current

	if b.bridge != nil {
		result.Bridge, result.BridgeErr = b.bridge.Exchange(ctx)
		if result.BridgeErr != nil {
			b.logger.Warn().Err(result.BridgeErr).Msg("Realtime identity bridge failed")
		}
	}

	b.logger.Info().
		Str("user_id", current.User.ID).
		Bool("refreshed", result.Refreshed).
		Bool("bridged", result.Bridge != nil).
		Msg("Session restored")
	return result, nil
}
