package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/movie-ratings/backend/memory"
	"github.com/jrsteele09/movie-ratings/backend/supabase"
	"github.com/jrsteele09/movie-ratings/internal/config"
	"github.com/jrsteele09/movie-ratings/server"
	"github.com/jrsteele09/movie-ratings/sessions"
	"github.com/jrsteele09/movie-ratings/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/movie-ratings/sessions/repofakes"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionKeyPrefix = "movieratings:session:"

func newBackend(ctx context.Context, c config.Config) (server.Backend, error) {
	switch c.GetBackend() {
	case config.BackendMemory:
		b := memory.New(memory.WithLogger(log.Logger))
		if email := c.GetSeedAdminEmail(); email != "" {
			if _, err := b.SeedAdmin(ctx, email, c.GetSeedAdminPassword()); err != nil {
				return server.Backend{}, fmt.Errorf("seed admin %s: %w", email, err)
			}
			log.Info().Str("email", email).Msg("seeded admin account")
		}
		log.Warn().Msg("using the in-memory backend, data is lost on restart")
		return server.Backend{NewSessionStore: b.SessionStore, Data: b.Client()}, nil

	case config.BackendSupabase:
		client, err := newSupabaseClient(c)
		if err != nil {
			return server.Backend{}, err
		}
		return server.Backend{NewSessionStore: client.SessionStore, Data: client.Data()}, nil

	default:
		return server.Backend{}, fmt.Errorf("unknown backend %q, expected %s or %s", c.GetBackend(), config.BackendMemory, config.BackendSupabase)
	}
}

func newSupabaseClient(c config.BackendConfig) (*supabase.Client, error) {
	return supabase.New(supabase.Config{
		URL:        c.GetSupabaseURL(),
		AnonKey:    c.GetSupabaseAnonKey(),
		ServiceKey: c.GetSupabaseServiceKey(),
		JWKSURL:    c.GetSupabaseJWKSURL(),
		Timeout:    c.GetBackendTimeout(),
	}, supabase.WithLogger(log.Logger))
}

// newSessionRepo persists browser sessions in Redis when an address is set,
// otherwise in process memory
func newSessionRepo(c config.SessionConfig) (sessions.Repo, func()) {
	if c.GetRedisAddr() == "" {
		return fakesessionrepo.NewFakeSessionRepo(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
	})
	log.Info().Str("addr", c.GetRedisAddr()).Msg("persisting sessions in redis")
	return redisrepo.New(client, sessionKeyPrefix, c.GetSessionPersistTTL()), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
}
