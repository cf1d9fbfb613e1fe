// Package token inspects access tokens on the client side. Signatures are
// never checked here; the backend is the only party that can verify them.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
)

// DefaultExpiryThreshold is the window before exp in which a token is renewed up front.
const DefaultExpiryThreshold = 90 * time.Second

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// payloadClaims decodes the second segment only. The header and signature
// are never looked at, so tokens with an alg golang-jwt does not know still
// yield their claims.
func payloadClaims(rawToken string) (jwt.MapClaims, error) {
	parts := strings.Split(rawToken, ".")
	if len(parts) < 2 {
		return nil, errors.Wrap(clienterrors.ErrInvalidToken, "token has no payload segment")
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, errors.Wrap(clienterrors.ErrInvalidToken, err.Error())
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errors.Wrap(clienterrors.ErrInvalidToken, err.Error())
	}
	return claims, nil
}

// ExpiresAt decodes the exp claim from the token payload.
func ExpiresAt(rawToken string) (time.Time, error) {
	claims, err := payloadClaims(rawToken)
	if err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(clienterrors.ErrInvalidToken, err.Error())
	}
	if exp == nil {
		return time.Time{}, clienterrors.ErrMissingExp
	}
	return exp.Time, nil
}

// WillExpireSoon reports whether the token expires within threshold of now.
// A token whose exp cannot be read counts as expired so that callers renew it.
func WillExpireSoon(rawToken string, threshold time.Duration) bool {
	exp, err := ExpiresAt(rawToken)
	if err != nil {
		return true
	}
	return exp.Sub(NowTimeFunc()) <= threshold
}

// Subject returns the sub claim, or "" when the token cannot be decoded.
func Subject(rawToken string) string {
	claims, err := payloadClaims(rawToken)
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
