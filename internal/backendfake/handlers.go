package backendfake

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jrsteele09/festmatch-client/sessions"
)

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	AccessToken string        `json:"accessToken"`
	User        sessions.User `json:"user"`
}

// RefreshHandler exchanges the refresh cookie for a new access token
func (b *Backend) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.refreshCalls++
		holds := append([]chan struct{}(nil), b.holds...)
		mode := b.refreshMode
		b.mu.Unlock()

		for _, hold := range holds {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		cookie, err := r.Cookie(refreshCookieName)
		if err != nil {
			writeJSONError(w, "missing_refresh_token", "Refresh cookie required", http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		userID, ok := b.refreshTokens[cookie.Value]
		ttl := b.tokenTTL
		b.mu.Unlock()
		if !ok {
			writeJSONError(w, "invalid_refresh_token", "Refresh token is invalid or expired", http.StatusUnauthorized)
			return
		}

		switch mode {
		case RefreshUnauthorized:
			writeJSONError(w, "invalid_refresh_token", "Refresh token is invalid or expired", http.StatusUnauthorized)
			return
		case RefreshServerError:
			writeJSONError(w, "internal_error", "Refresh failed", http.StatusInternalServerError)
			return
		case RefreshEmptyBody:
			w.WriteHeader(http.StatusOK)
			return
		case RefreshNoToken:
			writeJSON(w, http.StatusOK, accessTokenResponse{})
			return
		}

		accessToken, err := b.creator.CreateAccessToken(userID, ttl)
		if err != nil {
			writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: accessToken})
	}
}

// KakaoLoginHandler accepts any authorization code except "bad"
func (b *Backend) KakaoLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			writeJSONError(w, "invalid_request", "code is required", http.StatusBadRequest)
			return
		}
		if req.Code == "bad" {
			writeJSONError(w, "invalid_code", "Kakao rejected the authorization code", http.StatusUnauthorized)
			return
		}

		user := b.User()
		b.mu.Lock()
		ttl := b.tokenTTL
		b.mu.Unlock()

		accessToken, err := b.creator.CreateAccessToken(user.ID, ttl)
		if err != nil {
			writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    b.newRefreshToken(user.ID),
			Path:     "/",
			HttpOnly: true,
		})
		writeJSON(w, http.StatusOK, loginResponse{AccessToken: accessToken, User: user})
	}
}

// LogoutHandler revokes the refresh cookie
func (b *Backend) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			b.mu.Lock()
			delete(b.refreshTokens, cookie.Value)
			b.mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{
			Name:   refreshCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) GetMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.User())
	}
}

func (b *Backend) PatchMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch sessions.UserPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSONError(w, "invalid_request", "Invalid profile patch", http.StatusBadRequest)
			return
		}

		b.mu.Lock()
		b.user = b.user.Apply(patch)
		user := b.user
		b.mu.Unlock()

		writeJSON(w, http.StatusOK, user)
	}
}

func (b *Backend) DeleteMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.refreshTokens = make(map[string]string)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) CreditsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"credits": b.User().Credits})
	}
}

// BridgeTokenHandler issues a realtime custom token for the caller
func (b *Backend) BridgeTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(ContextKeyUserID).(string)

		b.mu.Lock()
		empty := b.bridgeEmpty
		b.mu.Unlock()
		if empty {
			writeJSON(w, http.StatusOK, map[string]string{"uid": userID})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"customToken": "custom-" + userID,
			"uid":         userID,
		})
	}
}

// EchoHandler reflects the call back to the client. A "status" query
// parameter forces that status code with a backend error body.
func (b *Backend) EchoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s := r.URL.Query().Get("status"); s != "" {
			code, err := strconv.Atoi(s)
			if err == nil {
				writeJSONError(w, "forced_status", "Forced status "+s, code)
				return
			}
		}

		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, EchoResponse{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          string(body),
		})
	}
}

// EchoResponse is the body returned by the echo routes
type EchoResponse struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Authorization string `json:"authorization"`
	RequestID     string `json:"requestId"`
	Body          string `json:"body"`
}

// SetBridgeEmpty makes the bridge endpoint omit the custom token
func (b *Backend) SetBridgeEmpty(empty bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridgeEmpty = empty
}

func (b *Backend) newRefreshToken(userID string) string {
	refreshToken := uuid.New().String()
	b.mu.Lock()
	b.refreshTokens[refreshToken] = userID
	b.mu.Unlock()
	return refreshToken
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the backend's {code,message} error body
func writeJSONError(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"code":    code,
		"message": message,
	})
}
