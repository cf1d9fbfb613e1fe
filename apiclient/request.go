package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/token"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	contentTypeJSON     = "application/json"
)

// attempt is one logical request. retried is set once the request has been
// replayed after a refresh, and a second 401 is then returned to the caller.
type attempt struct {
	req     *http.Request
	retried bool
}

// Do sends req with the session's credentials, the same way http.Client.Do
// does. Responses other than the 401s it handles are returned unchanged. A
// refresh failure is returned as an error and the session is gone afterwards.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	if c.isRefreshRequest(req) {
		return c.doRefreshEndpoint(ctx, req)
	}

	accessToken, err := c.store.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if accessToken != "" && token.WillExpireSoon(accessToken, c.expiryThreshold) {
		c.logger.Debug().Str("path", req.URL.Path).Msg("Access token close to expiry, refreshing before send")
		accessToken, err = c.refresher.refresh(ctx, accessToken)
		if err != nil {
			return nil, err
		}
	}

	return c.sendAttempt(ctx, &attempt{req: req}, accessToken)
}

func (c *Client) sendAttempt(ctx context.Context, a *attempt, accessToken string) (*http.Response, error) {
	resp, err := c.send(ctx, a.req, accessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || a.retried || c.isLoginRequest(a.req) {
		return resp, nil
	}
	drain(resp)

	c.logger.Debug().Str("path", a.req.URL.Path).Msg("Request unauthorized, refreshing and replaying")
	fresh, err := c.refresher.refresh(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	a.retried = true
	c.metrics.Replay()
	return c.sendAttempt(ctx, a, fresh)
}

// doRefreshEndpoint handles a caller addressing the refresh endpoint directly.
// It never carries a bearer and a 401 ends the session.
func (c *Client) doRefreshEndpoint(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.send(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	statusErr := newStatusError(resp)
	resp.Body.Close()
	statusErr.Err = clienterrors.ErrRefreshUnauthorized
	c.logger.Warn().Msg("Refresh endpoint rejected the session, clearing it")
	c.clearSession(ctx, "refresh_unauthorized")
	return nil, statusErr
}

// send puts one copy of req on the wire. The caller's request is never
// modified, so it can be sent again.
func (c *Client) send(ctx context.Context, req *http.Request, accessToken string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, clienterrors.Wrapf(err, "apiclient: rewind request body")
		}
		out.Body = body
	}

	if accessToken != "" {
		out.Header.Set(headerAuthorization, "Bearer "+accessToken)
	} else {
		out.Header.Del(headerAuthorization)
	}
	if out.Header.Get(headerRequestID) == "" {
		out.Header.Set(headerRequestID, uuid.NewString())
	}
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", contentTypeJSON)
	}
	out.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(out)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", out.Method).Str("path", out.URL.Path).Msg("Request failed")
		return nil, err
	}
	c.metrics.Response(resp.StatusCode)
	c.logger.Debug().
		Str("method", out.Method).
		Str("path", out.URL.Path).
		Str("request_id", out.Header.Get(headerRequestID)).
		Int("status", resp.StatusCode).
		Msg("Request completed")
	return resp, nil
}

// makeReplayable buffers a body that cannot be rewound
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return clienterrors.Wrapf(err, "apiclient: read request body")
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRefreshBody))
	resp.Body.Close()
}

// Get performs a GET and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST with a JSON body and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

// doJSON is the typed path: non-2xx responses become *StatusError and out,
// when non-nil, receives the decoded body
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return clienterrors.Wrapf(err, "apiclient: marshal %s %s body", method, path)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), bodyReader)
	if err != nil {
		return clienterrors.Wrapf(err, "apiclient: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return ParseResponse(resp, out)
}
