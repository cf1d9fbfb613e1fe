package apiclient

import (
	"context"

	"github.com/jrsteele09/festmatch-client/token"
	"golang.org/x/oauth2"
)

// TokenSource exposes the session token as an oauth2.TokenSource so other
// transports (oauth2.Transport, the realtime bridge) ride the same refresh
// path. Expiry is pulled in by the expiry threshold, so wrapping it in
// oauth2.ReuseTokenSource never hands out a token this client would renew.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: c}
}

type sessionTokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.client.ValidToken(s.ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}
	if exp, err := token.ExpiresAt(accessToken); err == nil {
		tok.Expiry = exp.Add(-s.client.expiryThreshold)
	}
	return tok, nil
}
