package apiclient_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/festmatch-client/apiclient"
	"github.com/jrsteele09/festmatch-client/internal/backendfake"
	"github.com/jrsteele09/festmatch-client/internal/config"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/internal/metrics"
	"github.com/jrsteele09/festmatch-client/sessions"
	fakesessionrepo "github.com/jrsteele09/festmatch-client/sessions/repofakes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fixture struct {
	backend *backendfake.Backend
	repo    *fakesessionrepo.FakeSessionRepo
	store   *sessions.Store
	client  *apiclient.Client
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, options ...apiclient.Option) *fixture {
	t.Helper()

	backend := backendfake.New(t)
	repo := fakesessionrepo.NewFakeSessionRepo()
	store := sessions.NewStore(repo)
	m := metrics.New(prometheus.NewRegistry())

	opts := append([]apiclient.Option{
		apiclient.WithHTTPClient(backend.HTTPClient(t)),
		apiclient.WithMetrics(m),
	}, options...)
	client, err := apiclient.New(backend.URL(), store, opts...)
	require.NoError(t, err)

	return &fixture{
		backend: backend,
		repo:    repo,
		store:   store,
		client:  client,
		metrics: m,
	}
}

// signIn stores a session whose token expires after ttl
func (f *fixture) signIn(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok := f.backend.IssueAccessToken(t, ttl)
	require.NoError(t, f.store.Set(context.Background(), tok, f.backend.User()))
	return tok
}

func (f *fixture) currentToken(t *testing.T) string {
	t.Helper()
	tok, err := f.store.AccessToken(context.Background())
	require.NoError(t, err)
	return tok
}

func (f *fixture) waitForRequests(t *testing.T, path string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.backend.Requests(path)) >= n
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	store := sessions.NewStore(fakesessionrepo.NewFakeSessionRepo())

	_, err := apiclient.New("http://localhost:8080", nil)
	require.Error(t, err)

	_, err = apiclient.New("not-a-url", store)
	require.Error(t, err)

	c, err := apiclient.New("http://localhost:8080/", store)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", c.BaseURL())
	require.NotNil(t, c.HTTPClient().Jar)
	require.Equal(t, "http://localhost:8080/users/me?fields=id", c.URL("/users/me?fields=id"))
}

func TestNewFromConfig(t *testing.T) {
	backend := backendfake.New(t)
	cfg, err := config.New(
		config.WithValue("api.base_url", backend.URL()),
		config.WithValue("client.rate_limit", 100.0),
	)
	require.NoError(t, err)

	store := sessions.NewStore(fakesessionrepo.NewFakeSessionRepo())
	c, err := apiclient.NewFromConfig(cfg, store, apiclient.WithCookieJar(backend.HTTPClient(t).Jar))
	require.NoError(t, err)
	require.Equal(t, backend.URL(), c.BaseURL())

	tok := backend.IssueAccessToken(t, time.Hour)
	require.NoError(t, store.Set(context.Background(), tok, backend.User()))

	var echo backendfake.EchoResponse
	require.NoError(t, c.Get(context.Background(), backendfake.RouteCandidates, &echo))
	require.Equal(t, "Bearer "+tok, echo.Authorization)
}

func TestDo_AttachesBearer(t *testing.T) {
	f := newFixture(t)
	tok := f.signIn(t, time.Hour)

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, &echo))
	require.Equal(t, "Bearer "+tok, echo.Authorization)
	require.NotEmpty(t, echo.RequestID)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestDo_NoSessionSendsUnauthenticated(t *testing.T) {
	f := newFixture(t)

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteFestivals, &echo))
	require.Empty(t, echo.Authorization)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestDo_HydratesOnFirstUse(t *testing.T) {
	f := newFixture(t)
	tok := f.backend.IssueAccessToken(t, time.Hour)
	require.NoError(t, f.repo.Save(context.Background(), &sessions.Session{
		Version:     sessions.CurrentVersion,
		AccessToken: tok,
		User:        f.backend.User(),
	}))
	require.False(t, f.store.Hydrated())

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, &echo))
	require.Equal(t, "Bearer "+tok, echo.Authorization)
	require.True(t, f.store.Hydrated())
}

func TestDo_DoesNotModifyCallerRequest(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, time.Hour)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, f.client.URL(backendfake.RouteCandidates), nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace", "abc")

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, req.Header.Get("Authorization"))
	require.Empty(t, req.Header.Get("X-Request-ID"))
	require.Equal(t, "abc", req.Header.Get("X-Trace"))
}

func TestDo_RefreshEndpointNeverCarriesBearer(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, time.Hour)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.client.URL(backendfake.RouteAuthRefresh), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer caller-supplied")

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	calls := f.backend.Requests(backendfake.RouteAuthRefresh)
	require.Len(t, calls, 1)
	require.Empty(t, calls[0].Authorization)
}

func TestDo_RefreshEndpoint401ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, time.Hour)
	f.backend.SetRefreshMode(backendfake.RefreshUnauthorized)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.client.URL(backendfake.RouteAuthRefresh), nil)
	require.NoError(t, err)

	resp, err := f.client.Do(req)
	require.Nil(t, resp)
	require.ErrorIs(t, err, clienterrors.ErrRefreshUnauthorized)

	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	_, err = f.store.Current(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.Nil(t, f.repo.Stored())
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestDo_OtherStatusesPropagate(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, time.Hour)
	ctx := context.Background()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.client.URL(backendfake.RouteCandidates+"?status=404"), nil)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	err = f.client.Get(ctx, backendfake.RouteCandidates+"?status=500", nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Equal(t, "forced_status", statusErr.Code)
	require.ErrorIs(t, err, clienterrors.ErrInternal)

	err = f.client.Get(ctx, backendfake.RouteCandidates+"?status=404", nil)
	require.ErrorIs(t, err, clienterrors.ErrNotFound)

	require.Zero(t, f.backend.RefreshCalls())
	_, err = f.store.Current(ctx)
	require.NoError(t, err)
}

func TestDo_LoginPath401IsNotRefreshed(t *testing.T) {
	f := newFixture(t)

	err := f.client.Post(context.Background(), backendfake.RouteAuthKakaoLogin, map[string]string{"code": "bad"}, nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.Equal(t, "invalid_code", statusErr.Code)
	require.ErrorIs(t, err, clienterrors.ErrUnauthorized)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestDo_ProactiveRefresh(t *testing.T) {
	// 60s left against a 90s threshold: renewed before the request goes out
	f := newFixture(t)
	stale := f.signIn(t, 60*time.Second)

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, &echo))

	fresh := f.currentToken(t)
	require.NotEqual(t, stale, fresh)
	require.Equal(t, "Bearer "+fresh, echo.Authorization)
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.Len(t, f.backend.Requests(backendfake.RouteCandidates), 1)

	stored := f.repo.Stored()
	require.NotNil(t, stored)
	require.Equal(t, fresh, stored.AccessToken)
	require.Equal(t, f.backend.User().Nickname, stored.User.Nickname)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.RefreshSuccess)))
}

func TestDo_ProactiveRefreshWithinThresholdOnly(t *testing.T) {
	f := newFixture(t, apiclient.WithExpiryThreshold(30*time.Second))
	tok := f.signIn(t, 60*time.Second)

	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, nil))
	require.Equal(t, tok, f.currentToken(t))
	require.Zero(t, f.backend.RefreshCalls())
}

func TestDo_ConcurrentProactiveRefreshCoalesces(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 30*time.Second)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	auths := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var echo backendfake.EchoResponse
			errs[i] = f.client.Get(context.Background(), backendfake.RouteCandidates, &echo)
			auths[i] = echo.Authorization
		}(i)
	}
	wg.Wait()

	fresh := f.currentToken(t)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "Bearer "+fresh, auths[i])
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestDo_ReactiveRefreshAndReplay(t *testing.T) {
	f := newFixture(t)
	revoked := f.signIn(t, time.Hour)
	f.backend.Revoke(revoked)

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, &echo))

	fresh := f.currentToken(t)
	require.NotEqual(t, revoked, fresh)
	require.Equal(t, "Bearer "+fresh, echo.Authorization)
	require.Equal(t, 1, f.backend.RefreshCalls())

	calls := f.backend.Requests(backendfake.RouteCandidates)
	require.Len(t, calls, 2)
	require.Equal(t, "Bearer "+revoked, calls[0].Authorization)
	require.Equal(t, "Bearer "+fresh, calls[1].Authorization)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Replays))
}

func TestDo_ReplayResendsBody(t *testing.T) {
	f := newFixture(t)
	f.backend.Revoke(f.signIn(t, time.Hour))

	var echo backendfake.EchoResponse
	require.NoError(t, f.client.Post(context.Background(), backendfake.RouteSignals, map[string]string{"kind": "wink"}, &echo))
	require.JSONEq(t, `{"kind":"wink"}`, echo.Body)

	calls := f.backend.Requests(backendfake.RouteSignals)
	require.Len(t, calls, 2)
	require.Equal(t, calls[0].Body, calls[1].Body)
}

func TestDo_ReplayBuffersUnrewindableBody(t *testing.T) {
	f := newFixture(t)
	f.backend.Revoke(f.signIn(t, time.Hour))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.client.URL(backendfake.RouteSignals), nil)
	require.NoError(t, err)
	req.Body = io.NopCloser(bytes.NewReader([]byte(`{"kind":"heart"}`)))
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	calls := f.backend.Requests(backendfake.RouteSignals)
	require.Len(t, calls, 2)
	require.Equal(t, `{"kind":"heart"}`, calls[1].Body)
}

func TestDo_RetriedRequestIsNotRefreshedAgain(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, time.Hour)

	// the endpoint answers 401 to every token, so only the retried flag ends this
	err := f.client.Get(context.Background(), backendfake.RouteCandidates+"?status=401", nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	require.Equal(t, 1, f.backend.RefreshCalls())
	require.Len(t, f.backend.Requests(backendfake.RouteCandidates), 2)

	_, err = f.store.Current(context.Background())
	require.NoError(t, err)
}

func TestDo_ThreeSimultaneous401sShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	revoked := f.signIn(t, time.Hour)
	f.backend.Revoke(revoked)
	release := f.backend.HoldRefresh(t)

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	auths := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var echo backendfake.EchoResponse
			errs[i] = f.client.Get(context.Background(), backendfake.RouteCandidates, &echo)
			auths[i] = echo.Authorization
		}(i)
	}

	f.waitForRequests(t, backendfake.RouteCandidates, n)
	require.Eventually(t, f.client.InFlight, 5*time.Second, 5*time.Millisecond)
	release()
	wg.Wait()

	fresh := f.currentToken(t)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "Bearer "+fresh, auths[i])
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.Len(t, f.backend.Requests(backendfake.RouteCandidates), 2*n)
	require.Equal(t, float64(n), testutil.ToFloat64(f.metrics.Replays))
	require.False(t, f.client.InFlight())
}

func TestDo_RefreshUnauthorizedRejectsAllWaiters(t *testing.T) {
	f := newFixture(t)
	f.backend.Revoke(f.signIn(t, time.Hour))
	f.backend.SetRefreshMode(backendfake.RefreshUnauthorized)
	release := f.backend.HoldRefresh(t)

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), backendfake.RouteCandidates, nil)
		}(i)
	}

	f.waitForRequests(t, backendfake.RouteCandidates, n)
	release()
	wg.Wait()

	for i := 0; i < n; i++ {
		require.ErrorIs(t, errs[i], clienterrors.ErrRefreshUnauthorized)
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.Len(t, f.backend.Requests(backendfake.RouteCandidates), n)

	_, err := f.store.Current(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.Nil(t, f.repo.Stored())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionClears.WithLabelValues("refresh_"+metrics.RefreshUnauthorized)))
}

func TestDo_ProactiveRefreshUnauthorizedClearsWithoutSending(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 10*time.Second)
	f.backend.SetRefreshMode(backendfake.RefreshUnauthorized)

	err := f.client.Get(context.Background(), backendfake.RouteCandidates, nil)
	require.ErrorIs(t, err, clienterrors.ErrRefreshUnauthorized)
	require.Empty(t, f.backend.Requests(backendfake.RouteCandidates))

	_, err = f.store.Current(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.GreaterOrEqual(t, f.repo.Deletes(), 1)
}

func TestDo_RefreshWithoutTokenClearsSession(t *testing.T) {
	for _, tc := range []struct {
		name string
		mode backendfake.RefreshMode
	}{
		{name: "empty body", mode: backendfake.RefreshEmptyBody},
		{name: "empty token", mode: backendfake.RefreshNoToken},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.Revoke(f.signIn(t, time.Hour))
			f.backend.SetRefreshMode(tc.mode)

			err := f.client.Get(context.Background(), backendfake.RouteCandidates, nil)
			require.ErrorIs(t, err, clienterrors.ErrRefreshMissingToken)

			_, err = f.store.Current(context.Background())
			require.ErrorIs(t, err, clienterrors.ErrNoSession)
			require.Nil(t, f.repo.Stored())
			require.Len(t, f.backend.Requests(backendfake.RouteCandidates), 1)
		})
	}
}

func TestDo_RefreshServerErrorClearsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 10*time.Second)
	f.backend.SetRefreshMode(backendfake.RefreshServerError)

	err := f.client.Get(context.Background(), backendfake.RouteCandidates, nil)
	require.ErrorIs(t, err, clienterrors.ErrRefreshFailed)

	_, err = f.store.Current(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
}

func TestDo_RefreshTimeout(t *testing.T) {
	f := newFixture(t, apiclient.WithRefreshTimeout(50*time.Millisecond))
	f.signIn(t, 10*time.Second)
	f.backend.HoldRefresh(t)

	err := f.client.Get(context.Background(), backendfake.RouteCandidates, nil)
	require.ErrorIs(t, err, clienterrors.ErrRefreshTimeout)

	_, err = f.store.Current(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.RefreshTimeout)))
}

func TestDo_CancelledWaiterLeavesRefreshRunning(t *testing.T) {
	f := newFixture(t)
	stale := f.signIn(t, 10*time.Second)
	release := f.backend.HoldRefresh(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.client.Get(ctx, backendfake.RouteCandidates, nil)
	}()

	require.Eventually(t, f.client.InFlight, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	release()
	require.Eventually(t, func() bool {
		return !f.client.InFlight()
	}, 5*time.Second, 5*time.Millisecond)
	require.NotEqual(t, stale, f.currentToken(t))
	require.NotEmpty(t, f.currentToken(t))
}

func TestDo_RefreshAfterSettlementStartsNewCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, time.Hour)

	first, err := f.client.Refresh(ctx)
	require.NoError(t, err)
	second, err := f.client.Refresh(ctx)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, 2, f.backend.RefreshCalls())
}

func TestDo_RateLimiterRespectsContext(t *testing.T) {
	f := newFixture(t, apiclient.WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	f.signIn(t, time.Hour)

	require.NoError(t, f.client.Get(context.Background(), backendfake.RouteCandidates, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, f.client.Get(ctx, backendfake.RouteCandidates, nil))
	require.Len(t, f.backend.Requests(backendfake.RouteCandidates), 1)
}

func TestValidToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.ValidToken(ctx)
	require.ErrorIs(t, err, clienterrors.ErrNoSession)

	tok := f.signIn(t, time.Hour)
	got, err := f.client.ValidToken(ctx)
	require.NoError(t, err)
	require.Equal(t, tok, got)

	expiring := f.signIn(t, 5*time.Second)
	got, err = f.client.ValidToken(ctx)
	require.NoError(t, err)
	require.NotEqual(t, expiring, got)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestRefresh_ClearWhileInFlightStaysCleared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, time.Hour)
	release := f.backend.HoldRefresh(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.client.Refresh(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, f.store.Clear(ctx))
	release()

	require.ErrorIs(t, <-done, clienterrors.ErrSessionChanged)
	_, err := f.store.Current(ctx)
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.Nil(t, f.repo.Stored())
}

func TestRefresh_WithoutSessionStartsTokenOnlySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.client.Refresh(ctx)
	require.NoError(t, err)

	current, err := f.store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, tok, current.AccessToken)
	require.Equal(t, sessions.User{}, current.User)
	require.Equal(t, tok, f.repo.Stored().AccessToken)
}

func TestDo_Late401FromPreviousUserIsNotReplayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, time.Hour)

	const slowRoute = "/slow"
	unblock := make(chan struct{})
	var once sync.Once
	respond := func() { once.Do(func() { close(unblock) }) }
	t.Cleanup(respond)
	f.backend.RegisterRouteFunc("GET "+slowRoute, func(w http.ResponseWriter, r *http.Request) {
		<-unblock
		w.WriteHeader(http.StatusUnauthorized)
	})

	done := make(chan error, 1)
	go func() {
		done <- f.client.Get(ctx, slowRoute, nil)
	}()
	f.waitForRequests(t, slowRoute, 1)

	// sign out, then in again as someone else before the old request returns
	require.NoError(t, f.store.Clear(ctx))
	f.backend.SetUser(sessions.User{ID: "user-2", Nickname: "jun"})
	next := f.signIn(t, time.Hour)
	respond()

	require.ErrorIs(t, <-done, clienterrors.ErrSessionChanged)
	require.Zero(t, f.backend.RefreshCalls())
	require.Len(t, f.backend.Requests(slowRoute), 1)
	require.Equal(t, next, f.currentToken(t))
}
