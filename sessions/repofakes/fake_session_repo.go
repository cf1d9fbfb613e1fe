package fakesessionrepo

import (
	"context"
	"encoding/json"
	"sync"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps the record as JSON so callers can't alias stored data
type FakeSessionRepo struct {
	data    []byte
	saves   int
	deletes int
	SaveErr error
	LoadErr error
	lock    sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

func (sr *FakeSessionRepo) Load(_ context.Context) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	if sr.LoadErr != nil {
		return nil, sr.LoadErr
	}
	if sr.data == nil {
		return nil, clienterrors.ErrSessionNotFound
	}

	var s sessions.Session
	if err := json.Unmarshal(sr.data, &s); err != nil {
		return nil, clienterrors.Wrapf(clienterrors.ErrSessionCorrupted, "%s", err.Error())
	}
	return &s, nil
}

func (sr *FakeSessionRepo) Save(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if sr.SaveErr != nil {
		return sr.SaveErr
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	sr.data = data
	sr.saves++
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.data = nil
	sr.deletes++
	return nil
}

// Put stores a raw record, bypassing Save
func (sr *FakeSessionRepo) Put(data []byte) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.data = data
}

// Stored returns the decoded record, or nil when empty
func (sr *FakeSessionRepo) Stored() *sessions.Session {
	s, err := sr.Load(context.Background())
	if err != nil {
		return nil
	}
	return s
}

func (sr *FakeSessionRepo) Saves() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.saves
}

func (sr *FakeSessionRepo) Deletes() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.deletes
}
