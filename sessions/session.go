// Package sessions persists backend sessions between requests. Each browser
// session ID maps to the backend.Session its session store last issued, so a
// returning browser is still signed in after the process restarts.
package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
)

// Record is what gets stored per browser session.
type Record struct {
	Session   backend.Session `json:"session"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Repo defines the interface for persisted session storage.
// Load returns errors.ErrNotFound when nothing is stored under key.
type Repo interface {
	Load(ctx context.Context, key string) (*backend.Session, error)
	Save(ctx context.Context, key string, session *backend.Session) error
	Delete(ctx context.Context, key string) error
}
