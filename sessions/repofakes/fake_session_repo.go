package fakesessionrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory sessions.Repo
type FakeSessionRepo struct {
	records map[string]sessions.Record
	lock    sync.RWMutex
	nowTime func() time.Time
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		records: make(map[string]sessions.Record),
		nowTime: time.Now,
	}
}

func (sr *FakeSessionRepo) Load(_ context.Context, key string) (*backend.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	record, ok := sr.records[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	session := record.Session
	return &session, nil
}

func (sr *FakeSessionRepo) Save(_ context.Context, key string, session *backend.Session) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if session == nil {
		return fmt.Errorf("session is required")
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	// Store a copy to avoid external modifications
	sr.records[key] = sessions.Record{Session: *session, UpdatedAt: sr.nowTime()}
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, key string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.records, key)
	return nil
}

// Len returns how many sessions are stored
func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.records)
}
