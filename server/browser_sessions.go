package server

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/movie-ratings/auth"
	"github.com/jrsteele09/movie-ratings/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// browserSession is the auth state of one browser, keyed by its session cookie.
type browserSession struct {
	id          string
	store       backend.SessionStore
	coordinator *auth.Coordinator
	lastSeen    time.Time
}

// sessionRegistry owns a Coordinator per browser session and closes the ones
// that have been idle for longer than idle. The persisted backend session
// outlives the coordinator, so a returning browser is restored on next use.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*browserSession
	create   func(id string) (*browserSession, error)
	idle     time.Duration
	nowTime  func() time.Time
	gauge    prometheus.Gauge
	logger   zerolog.Logger
}

func newSessionRegistry(create func(id string) (*browserSession, error), idle time.Duration, nowTime func() time.Time, gauge prometheus.Gauge, logger zerolog.Logger) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*browserSession),
		create:   create,
		idle:     idle,
		nowTime:  nowTime,
		gauge:    gauge,
		logger:   logger,
	}
}

// get returns the started session for id, creating it on first use
func (r *sessionRegistry) get(ctx context.Context, id string) (*browserSession, error) {
	r.mu.Lock()
	bs, ok := r.sessions[id]
	if !ok {
		created, err := r.create(id)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		bs = created
		r.sessions[id] = bs
		r.gauge.Set(float64(len(r.sessions)))
	}
	bs.lastSeen = r.nowTime()
	r.mu.Unlock()

	// Start is idempotent; concurrent first requests share the initial read
	if err := bs.coordinator.Start(ctx); err != nil {
		r.logger.Warn().Err(err).Str("browser_session", shortID(id)).Msg("session restore failed")
		r.remove(id, bs)
		return nil, err
	}
	return bs, nil
}

func (r *sessionRegistry) remove(id string, bs *browserSession) {
	r.mu.Lock()
	if current, ok := r.sessions[id]; ok && current == bs {
		delete(r.sessions, id)
		r.gauge.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()
	bs.coordinator.Close()
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweep closes idle sessions and returns how many were closed
func (r *sessionRegistry) sweep() int {
	cutoff := r.nowTime().Add(-r.idle)

	r.mu.Lock()
	var expired []*browserSession
	for id, bs := range r.sessions {
		if bs.lastSeen.Before(cutoff) {
			expired = append(expired, bs)
			delete(r.sessions, id)
		}
	}
	r.gauge.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, bs := range expired {
		bs.coordinator.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug().Int("closed", len(expired)).Msg("idle browser sessions closed")
	}
	return len(expired)
}

func (r *sessionRegistry) run(ctx context.Context) {
	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *sessionRegistry) close() {
	r.mu.Lock()
	all := make([]*browserSession, 0, len(r.sessions))
	for id, bs := range r.sessions {
		all = append(all, bs)
		delete(r.sessions, id)
	}
	r.gauge.Set(0)
	r.mu.Unlock()

	for _, bs := range all {
		bs.coordinator.Close()
	}
}
