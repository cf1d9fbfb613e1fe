// Package backendfake is an in-process stand-in for the festmatch REST backend.
// It issues real HS256 access tokens, keeps the refresh token in an httpOnly
// cookie, and records every call so tests can count refreshes and replays.
package backendfake

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/jrsteele09/festmatch-client/token"
	"github.com/jrsteele09/festmatch-client/token/jwt"
	"github.com/stretchr/testify/require"
)

// RefreshMode selects how the refresh endpoint answers
type RefreshMode int

const (
	RefreshOK           RefreshMode = iota // 200 {"accessToken": ...}
	RefreshUnauthorized                    // 401
	RefreshEmptyBody                       // 200 with no body
	RefreshNoToken                         // 200 {"accessToken": ""}
	RefreshServerError                     // 500
)

// RecordedRequest is one call seen by the backend
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

type Backend struct {
	Server *httptest.Server

	mux     *http.ServeMux
	signer  token.Signer
	creator *jwt.Creator

	mu            sync.Mutex
	user          sessions.User
	tokenTTL      time.Duration
	refreshMode   RefreshMode
	refreshTokens map[string]string // refresh token -> user ID
	revoked       map[string]bool
	requests      []RecordedRequest
	bridgeEmpty   bool
	refreshCalls  int
	holds         []chan struct{}
}

// New starts a backend that is closed when the test ends
func New(t *testing.T) *Backend {
	t.Helper()

	signer, err := token.NewHS256Signer([]byte("backendfake-signing-secret-32byte"))
	require.NoError(t, err)
	b := &Backend{
		mux:     http.NewServeMux(),
		signer:  signer,
		creator: jwt.NewCreator("festmatch-backend", signer),
		user: sessions.User{
			ID:                 "user-1",
			KakaoID:            "kakao-1",
			Nickname:           "mina",
			Credits:            3,
			RegistrationStatus: sessions.RegistrationComplete,
		},
		tokenTTL:      time.Hour,
		refreshTokens: make(map[string]string),
		revoked:       make(map[string]bool),
	}
	b.initRoutes()
	b.Server = httptest.NewServer(b)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *Backend) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.mux.HandleFunc(pattern, b.record(handler))
}

func (b *Backend) initRoutes() {
	b.RegisterRouteFunc("POST "+RouteAuthRefresh, b.RefreshHandler())
	b.RegisterRouteFunc("POST "+RouteAuthKakaoLogin, b.KakaoLoginHandler())
	b.RegisterRouteFunc("POST "+RouteAuthLogout, b.LogoutHandler())
	b.RegisterRouteFunc("POST "+RouteBridgeToken, b.RequireAuth(b.BridgeTokenHandler()))

	b.RegisterRouteFunc("GET "+RouteUsersMe, b.RequireAuth(b.GetMeHandler()))
	b.RegisterRouteFunc("PATCH "+RouteUsersMe, b.RequireAuth(b.PatchMeHandler()))
	b.RegisterRouteFunc("DELETE "+RouteUsersMe, b.RequireAuth(b.DeleteMeHandler()))
	b.RegisterRouteFunc("GET "+RouteUsersMeCredits, b.RequireAuth(b.CreditsHandler()))

	b.RegisterRouteFunc("GET "+RouteCandidates, b.RequireAuth(b.EchoHandler()))
	b.RegisterRouteFunc("POST "+RouteSignals, b.RequireAuth(b.EchoHandler()))
	b.RegisterRouteFunc("GET "+RouteFestivals, b.EchoHandler())
}

// URL returns the base URL clients should use
func (b *Backend) URL() string {
	return b.Server.URL
}

// HTTPClient returns a client whose cookie jar already holds a valid refresh
// cookie for userID, as if the user had signed in earlier.
func (b *Backend) HTTPClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	u, err := url.Parse(b.Server.URL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{
		Name:     refreshCookieName,
		Value:    b.newRefreshToken(b.User().ID),
		Path:     "/",
		HttpOnly: true,
	}})
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// IssueAccessToken mints a token for the current user that expires after ttl
func (b *Backend) IssueAccessToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := b.creator.CreateAccessToken(b.User().ID, ttl)
	require.NoError(t, err)
	return tok
}

// Revoke makes the backend answer 401 to tok even though it has not expired
func (b *Backend) Revoke(tok string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[tok] = true
}

// SetRefreshMode changes how subsequent refresh calls are answered
func (b *Backend) SetRefreshMode(mode RefreshMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshMode = mode
}

// SetTokenTTL changes the lifetime of tokens issued by refresh and login
func (b *Backend) SetTokenTTL(ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenTTL = ttl
}

// HoldRefresh blocks refresh calls until the returned release func is called.
// Release is also registered as test cleanup so the server can shut down.
func (b *Backend) HoldRefresh(t *testing.T) (release func()) {
	t.Helper()

	hold := make(chan struct{})
	b.mu.Lock()
	b.holds = append(b.holds, hold)
	b.mu.Unlock()

	var once sync.Once
	release = func() { once.Do(func() { close(hold) }) }
	t.Cleanup(release)
	return release
}

// RefreshCalls is the number of refresh requests received
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// Requests returns every call received for path, in arrival order
func (b *Backend) Requests(path string) []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []RecordedRequest
	for _, r := range b.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) User() sessions.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

func (b *Backend) SetUser(u sessions.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = u
}
