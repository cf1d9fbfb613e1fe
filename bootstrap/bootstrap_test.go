package bootstrap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/festmatch-client/apiclient"
	"github.com/jrsteele09/festmatch-client/bootstrap"
	"github.com/jrsteele09/festmatch-client/bridge"
	"github.com/jrsteele09/festmatch-client/internal/backendfake"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
	fakesessionrepo "github.com/jrsteele09/festmatch-client/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend *backendfake.Backend
	repo    *fakesessionrepo.FakeSessionRepo
	client  *apiclient.Client
	runner  *bootstrap.Bootstrapper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := backendfake.New(t)
	repo := fakesessionrepo.NewFakeSessionRepo()
	client, err := apiclient.New(backend.URL(), sessions.NewStore(repo), apiclient.WithHTTPClient(backend.HTTPClient(t)))
	require.NoError(t, err)

	br, err := bridge.NewFromClient(client, "")
	require.NoError(t, err)
	runner, err := bootstrap.New(client, bootstrap.WithBridge(br))
	require.NoError(t, err)

	return &fixture{backend: backend, repo: repo, client: client, runner: runner}
}

// persist writes a session the way a previous run of the app would have
func (f *fixture) persist(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok := f.backend.IssueAccessToken(t, ttl)
	require.NoError(t, f.repo.Save(context.Background(), &sessions.Session{
		Version:     sessions.CurrentVersion,
		AccessToken: tok,
		User:        f.backend.User(),
	}))
	return tok
}

func TestRun_NoSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrNoSession)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestRun_FreshToken(t *testing.T) {
	f := newFixture(t)
	tok := f.persist(t, time.Hour)

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Refreshed)
	require.Equal(t, tok, res.Session.AccessToken)
	require.Equal(t, "user-1", res.Session.User.ID)
	require.NoError(t, res.BridgeErr)
	require.Equal(t, "custom-user-1", res.Bridge.Token)
	require.Zero(t, f.backend.RefreshCalls())
}

func TestRun_RenewsExpiringToken(t *testing.T) {
	f := newFixture(t)
	stale := f.persist(t, time.Minute)

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Refreshed)
	require.NotEqual(t, stale, res.Session.AccessToken)
	require.Equal(t, res.Session.AccessToken, f.repo.Stored().AccessToken)
	require.Equal(t, 1, f.backend.RefreshCalls())

	calls := f.backend.Requests(backendfake.RouteBridgeToken)
	require.Len(t, calls, 1)
	require.Equal(t, "Bearer "+res.Session.AccessToken, calls[0].Authorization)
}

func TestRun_RenewalFailureClearsSession(t *testing.T) {
	f := newFixture(t)
	f.persist(t, time.Minute)
	f.backend.SetRefreshMode(backendfake.RefreshUnauthorized)

	_, err := f.runner.Run(context.Background())
	require.ErrorIs(t, err, clienterrors.ErrRefreshUnauthorized)
	require.Nil(t, f.repo.Stored())
	require.Empty(t, f.backend.Requests(backendfake.RouteBridgeToken))
}

func TestRun_BridgeFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	tok := f.persist(t, time.Hour)
	f.backend.SetBridgeEmpty(true)

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, tok, res.Session.AccessToken)
	require.Nil(t, res.Bridge)
	require.ErrorIs(t, res.BridgeErr, clienterrors.ErrBridgeMissingToken)
}

func TestRun_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.LoadErr = errors.New("disk gone")

	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := bootstrap.New(nil)
	require.Error(t, err)
}
