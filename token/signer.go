package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// minSecretLen matches the HS256 output size; shorter secrets are rejected
const minSecretLen = 32

// Signer mints and checks tokens the way the backend does. The client never
// signs anything itself; this exists for the in-process backend used in tests.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)

	// Keyfunc is handed to jwt.Parse to pick the verification key
	Keyfunc() jwt.Keyfunc

	Method() jwt.SigningMethod
}

// HS256Signer signs with a shared secret
type HS256Signer struct {
	secret []byte
}

var _ Signer = (*HS256Signer)(nil)

func NewHS256Signer(secret []byte) (*HS256Signer, error) {
	if len(secret) < minSecretLen {
		return nil, errors.Errorf("token.NewHS256Signer: secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	return &HS256Signer{secret: secret}, nil
}

func (s *HS256Signer) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "HS256Signer.Sign")
	}
	return signed, nil
}

func (s *HS256Signer) Keyfunc() jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}
}

func (s *HS256Signer) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
