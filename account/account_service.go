// Package account covers the session lifecycle calls: sign-in, profile and
// credit sync, sign-out and account deletion. Every call goes through the
// shared apiclient.Client, so it gets the same refresh handling as the rest
// of the app.
package account

import (
	"context"

	"github.com/jrsteele09/festmatch-client/apiclient"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backend paths used by the service
const (
	PathKakaoLogin = "/auth/kakao/login"
	PathLogout     = "/auth/logout"
	PathMe         = "/users/me"
	PathMeCredits  = "/users/me/credits"
)

type loginRequest struct {
	Code string `json:"code"`
}

// LoginResponse is the backend's answer to a successful sign-in
type LoginResponse struct {
	AccessToken string        `json:"accessToken"`
	User        sessions.User `json:"user"`
}

type creditsResponse struct {
	Credits int `json:"credits"`
}

type Service struct {
	client *apiclient.Client
	store  *sessions.Store
	logger zerolog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an account service. The store must be the one the client reads from.
func NewService(client *apiclient.Client, options ...ServiceOption) (*Service, error) {
	if client == nil {
		return nil, errors.New("[NewService] client is required")
	}

	s := &Service{
		client: client,
		store:  client.Store(),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login exchanges a Kakao authorization code for a session. The refresh
// cookie set by the backend lands in the client's cookie jar.
func (s *Service) Login(ctx context.Context, code string) (*sessions.Session, error) {
	if code == "" {
		return nil, errors.New("[Login] authorization code is required")
	}

	var resp LoginResponse
	if err := s.client.Post(ctx, PathKakaoLogin, loginRequest{Code: code}, &resp); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.Login")
	}
	if resp.AccessToken == "" {
		return nil, clienterrors.Wrapf(clienterrors.ErrInvalidToken, "Service.Login: response carried no access token")
	}

	if err := s.store.Set(ctx, resp.AccessToken, resp.User); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.Login")
	}
	s.logger.Info().Str("user_id", resp.User.ID).Msg("Signed in")
	return s.current(ctx)
}

// BootstrapToken starts a session from a token obtained out of band and
// fills in the profile from the backend
func (s *Service) BootstrapToken(ctx context.Context, accessToken string) (*sessions.Session, error) {
	if accessToken == "" {
		return nil, errors.New("[BootstrapToken] access token is required")
	}
	if err := s.store.Set(ctx, accessToken, sessions.User{}); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.BootstrapToken")
	}
	return s.RefreshProfile(ctx)
}

// RefreshProfile replaces the cached user with the backend's copy
func (s *Service) RefreshProfile(ctx context.Context) (*sessions.Session, error) {
	var user sessions.User
	if err := s.client.Get(ctx, PathMe, &user); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.RefreshProfile")
	}
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.RefreshProfile")
	}
	return s.current(ctx)
}

// RefreshCredits fetches the credit balance and patches it into the session
func (s *Service) RefreshCredits(ctx context.Context) (int, error) {
	var resp creditsResponse
	if err := s.client.Get(ctx, PathMeCredits, &resp); err != nil {
		return 0, clienterrors.Wrapf(err, "Service.RefreshCredits")
	}
	if err := s.store.PatchUser(ctx, sessions.UserPatch{Credits: &resp.Credits}); err != nil {
		return 0, clienterrors.Wrapf(err, "Service.RefreshCredits")
	}
	return resp.Credits, nil
}

// UpdateProfile sends patch to the backend and merges it locally once accepted
func (s *Service) UpdateProfile(ctx context.Context, patch sessions.UserPatch) (*sessions.Session, error) {
	if patch.IsEmpty() {
		return s.current(ctx)
	}
	if err := s.client.Patch(ctx, PathMe, patch, nil); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.UpdateProfile")
	}
	if err := s.store.PatchUser(ctx, patch); err != nil {
		return nil, clienterrors.Wrapf(err, "Service.UpdateProfile")
	}
	return s.current(ctx)
}

// Logout tells the backend to drop the refresh cookie. The local session is
// cleared whatever the backend answers.
func (s *Service) Logout(ctx context.Context) error {
	callErr := s.client.Post(ctx, PathLogout, nil, nil)
	if callErr != nil {
		s.logger.Warn().Err(callErr).Msg("Logout call failed, clearing local session anyway")
	}
	if err := s.store.Clear(ctx); err != nil {
		return clienterrors.Wrapf(err, "Service.Logout")
	}
	s.logger.Info().Msg("Signed out")
	return nil
}

// DeleteAccount deletes the user on the backend, then the local session
func (s *Service) DeleteAccount(ctx context.Context) error {
	if err := s.client.Delete(ctx, PathMe, nil); err != nil {
		return clienterrors.Wrapf(err, "Service.DeleteAccount")
	}
	if err := s.store.Clear(ctx); err != nil {
		return clienterrors.Wrapf(err, "Service.DeleteAccount")
	}
	s.logger.Info().Msg("Account deleted")
	return nil
}

func (s *Service) current(ctx context.Context) (*sessions.Session, error) {
	current, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &current, nil
}
