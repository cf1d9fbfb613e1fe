package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store is the authoritative in-memory session. Every mutation is flushed to
// the Repo before the call returns, while the store lock is still held, so the
// durable copy is always written in the same order as the in-memory one.
type Store struct {
	repo    Repo
	logger  zerolog.Logger
	nowFunc func() time.Time

	mu       sync.RWMutex
	current  *Session
	hydrated bool
	// generation changes whenever the session is replaced or cleared, never
	// when fields of the same session are updated
	generation uint64
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func NewStore(repo Repo, options ...StoreOption) *Store {
	s := &Store{
		repo:   repo,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s
}

// Hydrate replaces the in-memory session with the durable one. A record with an
// unknown version or one that cannot be decoded is deleted and treated as absent.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrateLocked(ctx)
}

func (s *Store) hydrateLocked(ctx context.Context) error {
	stored, err := s.repo.Load(ctx)
	switch {
	case err == nil:
	case clienterrors.Is(err, clienterrors.ErrSessionNotFound):
		stored = nil
	case clienterrors.Is(err, clienterrors.ErrSessionCorrupted):
		s.logger.Warn().Err(err).Msg("Discarding unreadable session record")
		if err := s.repo.Delete(ctx); err != nil {
			return fmt.Errorf("Store.Hydrate Delete: %w", err)
		}
		stored = nil
	default:
		return fmt.Errorf("Store.Hydrate Load: %w", err)
	}

	if stored != nil && stored.Version != CurrentVersion {
		s.logger.Warn().Int("version", stored.Version).Msg("Discarding session record with unsupported version")
		if err := s.repo.Delete(ctx); err != nil {
			return fmt.Errorf("Store.Hydrate Delete: %w", err)
		}
		stored = nil
	}

	s.current = stored
	s.hydrated = true
	s.generation++
	return nil
}

// ensureHydratedLocked loads from durable storage on first use. Callers hold s.mu for writing.
func (s *Store) ensureHydratedLocked(ctx context.Context) error {
	if s.hydrated {
		return nil
	}
	return s.hydrateLocked(ctx)
}

// Hydrated reports whether the store has read durable storage yet
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Current returns a copy of the session, or ErrNoSession
func (s *Store) Current(ctx context.Context) (Session, error) {
	current, ok, _, err := s.peek(ctx)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, clienterrors.ErrNoSession
	}
	return current, nil
}

// AccessToken returns the current token, or "" when signed out
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	accessToken, _, err := s.AccessTokenGeneration(ctx)
	return accessToken, err
}

// AccessTokenGeneration returns the current token together with the session
// generation it belongs to. Pass the generation to SetAccessTokenIf.
func (s *Store) AccessTokenGeneration(ctx context.Context) (string, uint64, error) {
	current, ok, gen, err := s.peek(ctx)
	if err != nil || !ok {
		return "", gen, err
	}
	return current.AccessToken, gen, nil
}

func (s *Store) peek(ctx context.Context) (Session, bool, uint64, error) {
	s.mu.RLock()
	if s.hydrated {
		defer s.mu.RUnlock()
		if s.current == nil {
			return Session{}, false, s.generation, nil
		}
		return *s.current, true, s.generation, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureHydratedLocked(ctx); err != nil {
		return Session{}, false, 0, err
	}
	if s.current == nil {
		return Session{}, false, s.generation, nil
	}
	return *s.current, true, s.generation, nil
}

// Set starts a new session, replacing whatever was there
func (s *Store) Set(ctx context.Context, accessToken string, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hydrated = true
	s.generation++
	return s.flushLocked(ctx, &Session{
		AccessToken: accessToken,
		User:        user,
	})
}

// SetAccessToken swaps the token and keeps every other field. With no session
// present a token-only session is created.
func (s *Store) SetAccessToken(ctx context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHydratedLocked(ctx); err != nil {
		return err
	}
	return s.setAccessTokenLocked(ctx, accessToken)
}

// SetAccessTokenIf behaves like SetAccessToken as long as the session is still
// the one gen was read from. After a Set or Clear in between, the token is
// dropped and ErrSessionChanged is returned.
func (s *Store) SetAccessTokenIf(ctx context.Context, accessToken string, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHydratedLocked(ctx); err != nil {
		return err
	}
	if s.generation != gen {
		return clienterrors.ErrSessionChanged
	}
	return s.setAccessTokenLocked(ctx, accessToken)
}

func (s *Store) setAccessTokenLocked(ctx context.Context, accessToken string) error {
	next := Session{}
	if s.current != nil {
		next = *s.current
	}
	next.AccessToken = accessToken
	return s.flushLocked(ctx, &next)
}

// PatchUser merges p into the current user
func (s *Store) PatchUser(ctx context.Context, p UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHydratedLocked(ctx); err != nil {
		return err
	}
	if s.current == nil {
		return clienterrors.ErrNoSession
	}

	next := *s.current
	next.User = next.User.Apply(p)
	return s.flushLocked(ctx, &next)
}

// ReplaceUser overwrites the user record, used after a full profile fetch
func (s *Store) ReplaceUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHydratedLocked(ctx); err != nil {
		return err
	}
	if s.current == nil {
		return clienterrors.ErrNoSession
	}

	next := *s.current
	next.User = user
	return s.flushLocked(ctx, &next)
}

// Clear drops the session from memory and durable storage
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.hydrated = true
	s.generation++
	if err := s.repo.Delete(ctx); err != nil {
		s.logger.Err(err).Msg("Failed to delete durable session")
		return fmt.Errorf("Store.Clear Delete: %w", err)
	}
	return nil
}

// flushLocked makes next the current session and writes it through. The
// in-memory value stays authoritative when the write fails; the error is returned.
func (s *Store) flushLocked(ctx context.Context, next *Session) error {
	next.Version = CurrentVersion
	next.UpdatedAt = s.nowFunc()
	s.current = next

	stored := *next
	if err := s.repo.Save(ctx, &stored); err != nil {
		s.logger.Err(err).Msg("Failed to flush session to durable storage")
		return fmt.Errorf("Store flush Save: %w", err)
	}
	return nil
}
