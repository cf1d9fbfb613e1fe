package backendfake

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/festmatch-client/token/jwt"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyUserID stores the authenticated user ID
const ContextKeyUserID ContextKey = "user_id"

// RequireAuth validates the Bearer access token. Expired, malformed and revoked
// tokens all get 401, which is what drives the client's refresh path.
func (b *Backend) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, "missing_token", "Authorization header required", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		b.mu.Lock()
		revoked := b.revoked[raw]
		b.mu.Unlock()
		if revoked {
			writeJSONError(w, "token_revoked", "Access token has been revoked", http.StatusUnauthorized)
			return
		}

		verified, err := jwt.Verify(raw, b.signer)
		if err != nil {
			writeJSONError(w, "invalid_token", "Access token is invalid or expired", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserID, verified.Subject)
		next(w, r.WithContext(ctx))
	}
}

// record keeps a copy of every request; the body is restored for the handler
func (b *Backend) record(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		b.mu.Unlock()

		next(w, r)
	}
}
