package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/festmatch-client/token"
)

// VerifiedToken is what the issuer can learn from one of its own tokens
type VerifiedToken struct {
	Subject   string
	ID        string
	ExpiresAt time.Time
}

// Verify checks signature and expiry against NowTimeFunc
func Verify(rawToken string, signer token.Signer) (*VerifiedToken, error) {
	parsed, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, signer.Keyfunc(),
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithValidMethods([]string{signer.Method().Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims from token")
	}

	sub, _ := claims.GetSubject()
	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token missing exp claim")
	}

	return &VerifiedToken{
		Subject:   sub,
		ID:        jti,
		ExpiresAt: exp.Time,
	}, nil
}
