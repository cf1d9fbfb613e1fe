package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/festmatch-client/token"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator mints access tokens in the shape the festmatch backend issues them.
// The client only ever reads them; minting exists for the fake backend and tests.
type Creator struct {
	issuer string
	signer token.Signer
}

// NewCreator creates a new JWT creator
func NewCreator(issuer string, signer token.Signer) *Creator {
	return &Creator{
		issuer: issuer,
		signer: signer,
	}
}

// CreateAccessToken creates an access token for userID that expires after ttl
func (c *Creator) CreateAccessToken(userID string, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss": c.issuer,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.New().String(),
	}
	return c.sign(claims)
}

// CreateWithoutExpiry creates a token with no exp claim
func (c *Creator) CreateWithoutExpiry(userID string) (string, error) {
	claims := jwtlib.MapClaims{
		"iss": c.issuer,
		"sub": userID,
		"iat": NowTimeFunc().Unix(),
		"jti": uuid.New().String(),
	}
	return c.sign(claims)
}

func (c *Creator) sign(claims jwtlib.MapClaims) (string, error) {
	signedToken, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signedToken, nil
}
