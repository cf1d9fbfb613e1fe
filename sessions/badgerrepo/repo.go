// Package badgerrepo persists the client session in an embedded Badger store,
// optionally sealed with ChaCha20-Poly1305.
package badgerrepo

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

var sessionKey = []byte("session/current")

var _ sessions.Repo = (*Repo)(nil)

type Repo struct {
	db     *badger.DB
	aead   cipher.AEAD
	logger zerolog.Logger
}

type options struct {
	inMemory bool
	key      []byte
	logger   zerolog.Logger
}

type Option func(*options)

// WithInMemory keeps everything in memory; dir is ignored
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithEncryptionKey seals the record with a 32 byte key
func WithEncryptionKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ParseKey decodes a hex encoded key from configuration. An empty string yields no key.
func ParseKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "badgerrepo.ParseKey")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("badgerrepo.ParseKey: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Open opens (or creates) the store in dir
func Open(dir string, opts ...Option) (*Repo, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	if dir == "" && !o.inMemory {
		return nil, errors.New("badgerrepo: dir is required")
	}

	bopts := badger.DefaultOptions(dir)
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(&badgerLogger{logger: o.logger}).WithSyncWrites(true)

	r := &Repo{logger: o.logger}
	if o.key != nil {
		aead, err := chacha20poly1305.New(o.key)
		if err != nil {
			return nil, errors.Wrap(err, "badgerrepo: cipher")
		}
		r.aead = aead
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "badgerrepo: open db")
	}
	r.db = db
	return r, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Load(_ context.Context) (*sessions.Session, error) {
	var value []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, clienterrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, clienterrors.Wrapf(clienterrors.ErrStorageUnavailable, "Repo.Load: %s", err.Error())
	}

	plain, err := r.open(value)
	if err != nil {
		return nil, clienterrors.Wrapf(clienterrors.ErrSessionCorrupted, "Repo.Load open: %s", err.Error())
	}

	var s sessions.Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, clienterrors.Wrapf(clienterrors.ErrSessionCorrupted, "Repo.Load decode: %s", err.Error())
	}
	return &s, nil
}

func (r *Repo) Save(_ context.Context, session *sessions.Session) error {
	plain, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "Repo.Save encode")
	}
	value, err := r.seal(plain)
	if err != nil {
		return errors.Wrap(err, "Repo.Save seal")
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey, value)
	})
	if err != nil {
		return clienterrors.Wrapf(clienterrors.ErrStorageUnavailable, "Repo.Save: %s", err.Error())
	}
	return nil
}

func (r *Repo) Delete(_ context.Context) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey)
	})
	if err != nil {
		return clienterrors.Wrapf(clienterrors.ErrStorageUnavailable, "Repo.Delete: %s", err.Error())
	}
	return nil
}

// seal prefixes a random nonce; the key name is bound as additional data
func (r *Repo) seal(plain []byte) ([]byte, error) {
	if r.aead == nil {
		return plain, nil
	}
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plain)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return r.aead.Seal(nonce, nonce, plain, sessionKey), nil
}

func (r *Repo) open(value []byte) ([]byte, error) {
	if r.aead == nil {
		return value, nil
	}
	if len(value) < r.aead.NonceSize() {
		return nil, fmt.Errorf("sealed record too short: %d bytes", len(value))
	}
	nonce, sealed := value[:r.aead.NonceSize()], value[r.aead.NonceSize():]
	return r.aead.Open(nil, nonce, sealed, sessionKey)
}

// badgerLogger adapts zerolog to Badger's Logger interface
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
