package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
	"github.com/redis/go-redis/v9"
)

var _ sessions.Repo = (*Repo)(nil)

const defaultPrefix = "movieratings:session"

// Repo stores sessions as JSON blobs with a sliding TTL.
type Repo struct {
	redis   redis.UniversalClient
	prefix  string
	ttl     time.Duration
	nowTime func() time.Time
}

// New creates a Redis backed sessions.Repo. ttl <= 0 stores without expiry.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Repo {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Repo{
		redis:   client,
		prefix:  prefix,
		ttl:     ttl,
		nowTime: time.Now,
	}
}

func (r *Repo) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Repo) Load(ctx context.Context, key string) (*backend.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrTransport, "[redisrepo Load] %s", err)
	}

	var record sessions.Record
	if err := json.Unmarshal(data, &record); err != nil {
		// A corrupt blob is as good as no session
		_ = r.redis.Del(ctx, r.key(key)).Err()
		return nil, apperrors.ErrNotFound
	}
	if r.ttl > 0 {
		_ = r.redis.Expire(ctx, r.key(key), r.ttl).Err()
	}
	return &record.Session, nil
}

func (r *Repo) Save(ctx context.Context, key string, session *backend.Session) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if session == nil {
		return fmt.Errorf("session is required")
	}
	data, err := json.Marshal(sessions.Record{Session: *session, UpdatedAt: r.nowTime()})
	if err != nil {
		return fmt.Errorf("[redisrepo Save] encode: %w", err)
	}
	if err := r.redis.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "[redisrepo Save] %s", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "[redisrepo Delete] %s", err)
	}
	return nil
}
