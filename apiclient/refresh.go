package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/internal/metrics"
	"github.com/jrsteele09/festmatch-client/token"
	"golang.org/x/sync/singleflight"
)

// maxRefreshBody caps how much of the refresh response is read
const maxRefreshBody = 64 << 10

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// refresher coalesces refreshes. Every caller that asks while a refresh is
// outstanding waits on that refresh and gets its result; once it settles the
// next caller starts a new one.
type refresher struct {
	c        *Client
	group    singleflight.Group
	inFlight atomic.Bool

	// lastFailed is the token whose refresh most recently failed. A request
	// sent with it that comes back after the session was torn down gets the
	// same error instead of a second refresh call.
	mu         sync.Mutex
	lastFailed string
	lastErr    error
}

func newRefresher(c *Client) *refresher {
	return &refresher{c: c}
}

// refresh returns a fresh token. stale is the token the caller holds (possibly
// empty). The call to the backend is detached from ctx so one caller giving up
// does not fail the others; ctx only bounds how long this caller waits.
func (r *refresher) refresh(ctx context.Context, stale string) (string, error) {
	ch := r.group.DoChan(r.c.refreshURL.Path, func() (any, error) {
		r.inFlight.Store(true)
		defer r.inFlight.Store(false)
		return r.run(context.WithoutCancel(ctx), stale)
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

func (r *refresher) run(ctx context.Context, stale string) (string, error) {
	c := r.c

	current, gen, err := c.store.AccessTokenGeneration(ctx)
	if err != nil {
		return "", err
	}
	if current != "" && stale != "" && current != stale && token.Subject(current) != token.Subject(stale) {
		// signed out and back in as someone else; the request must not be replayed
		c.logger.Warn().Msg("Session belongs to a different user, not refreshing for the old one")
		return "", clienterrors.ErrSessionChanged
	}
	// Another cycle already replaced the token this caller was holding
	if current != "" && current != stale && !token.WillExpireSoon(current, c.expiryThreshold) {
		c.logger.Debug().Msg("Token already renewed, skipping refresh call")
		return current, nil
	}
	if current == "" && stale != "" {
		if err := r.failedFor(stale); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	c.logger.Debug().Str("endpoint", c.refreshURL.Path).Msg("Refreshing access token")
	accessToken, err := c.callRefresh(ctx)
	if err != nil {
		outcome := refreshOutcome(err)
		c.metrics.Refresh(outcome)
		c.logger.Warn().Err(err).Str("outcome", outcome).Msg("Access token refresh failed, clearing session")
		c.clearSession(ctx, "refresh_"+outcome)
		r.setFailed(stale, err)
		return "", err
	}

	c.metrics.Refresh(metrics.RefreshSuccess)
	r.setFailed("", nil)
	if err := c.store.SetAccessTokenIf(ctx, accessToken, gen); err != nil {
		if clienterrors.Is(err, clienterrors.ErrSessionChanged) {
			c.logger.Info().Msg("Session was replaced or cleared during refresh, dropping refreshed token")
			return "", err
		}
		// the in-memory session already holds the new token
		c.logger.Err(err).Msg("Failed to persist refreshed access token")
	}
	c.logger.Info().Msg("Access token refreshed")
	return accessToken, nil
}

func (r *refresher) failedFor(stale string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastFailed == stale {
		return r.lastErr
	}
	return nil
}

func (r *refresher) setFailed(stale string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFailed = stale
	r.lastErr = err
}

// callRefresh posts to the refresh endpoint with cookies and no Authorization
func (c *Client) callRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL.String(), nil)
	if err != nil {
		return "", clienterrors.Wrapf(clienterrors.ErrRefreshFailed, "create refresh request: %s", err.Error())
	}

	resp, err := c.send(ctx, req, "")
	if err != nil {
		return "", refreshTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		statusErr := newStatusError(resp)
		statusErr.Err = clienterrors.ErrRefreshUnauthorized
		return "", statusErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := newStatusError(resp)
		statusErr.Err = clienterrors.ErrRefreshFailed
		return "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return "", refreshTransportError(ctx, err)
	}

	var parsed refreshResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", clienterrors.Wrapf(clienterrors.ErrRefreshMissingToken, "decode refresh response: %s", err.Error())
		}
	}
	if parsed.AccessToken == "" {
		return "", clienterrors.ErrRefreshMissingToken
	}
	return parsed.AccessToken, nil
}

func refreshTransportError(ctx context.Context, err error) error {
	if clienterrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return clienterrors.Wrapf(clienterrors.ErrRefreshTimeout, "refresh: %s", err.Error())
	}
	return clienterrors.Wrapf(clienterrors.ErrRefreshFailed, "refresh: %s", err.Error())
}

func refreshOutcome(err error) string {
	switch {
	case clienterrors.Is(err, clienterrors.ErrRefreshUnauthorized):
		return metrics.RefreshUnauthorized
	case clienterrors.Is(err, clienterrors.ErrRefreshMissingToken):
		return metrics.RefreshMissingToken
	case clienterrors.Is(err, clienterrors.ErrRefreshTimeout):
		return metrics.RefreshTimeout
	default:
		return metrics.RefreshError
	}
}

// clearSession drops the session in memory and in durable storage
func (c *Client) clearSession(ctx context.Context, reason string) {
	c.metrics.SessionCleared(reason)
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Err(err).Str("reason", reason).Msg("Failed to clear durable session")
	}
}

// Refresh forces a refresh through the shared single-flight path
func (c *Client) Refresh(ctx context.Context) (string, error) {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return c.refresher.refresh(ctx, current)
}

// ValidToken returns the session token, renewing it first when it is close
// to expiry. With no session it returns ErrNoSession.
func (c *Client) ValidToken(ctx context.Context) (string, error) {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", clienterrors.ErrNoSession
	}
	if !token.WillExpireSoon(current, c.expiryThreshold) {
		return current, nil
	}
	return c.refresher.refresh(ctx, current)
}
