package server

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/movie-ratings/auth"
	"github.com/jrsteele09/movie-ratings/backend/memory"
	fakesessionrepo "github.com/jrsteele09/movie-ratings/sessions/repofakes"
	"github.com/jrsteele09/movie-ratings/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestRegistry(t *testing.T, c *clock) (*sessionRegistry, prometheus.Gauge, *int) {
	t.Helper()
	b := memory.New()
	repo := fakesessionrepo.NewFakeSessionRepo()
	resolver := users.NewResolver(users.NewDataRepo(b.Client()))
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_browser_sessions"})

	created := 0
	create := func(id string) (*browserSession, error) {
		created++
		store := b.SessionStore(repo, id)
		coordinator, err := auth.NewCoordinator(store, resolver, auth.WithLogger(zerolog.Nop()))
		if err != nil {
			return nil, err
		}
		return &browserSession{id: id, store: store, coordinator: coordinator}, nil
	}
	registry := newSessionRegistry(create, 10*time.Minute, c.Now, gauge, zerolog.Nop())
	t.Cleanup(registry.close)
	return registry, gauge, &created
}

func TestRegistryReusesSessions(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry, gauge, created := newTestRegistry(t, c)
	ctx := context.Background()

	first, err := registry.get(ctx, "a")
	require.NoError(t, err)
	again, err := registry.get(ctx, "a")
	require.NoError(t, err)
	require.Same(t, first, again)
	require.Equal(t, 1, *created)

	_, err = registry.get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 2, registry.len())
	require.Equal(t, float64(2), testutil.ToFloat64(gauge))
}

func TestRegistrySweepsIdleSessions(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry, gauge, _ := newTestRegistry(t, c)
	ctx := context.Background()

	stale, err := registry.get(ctx, "stale")
	require.NoError(t, err)
	c.now = c.now.Add(8 * time.Minute)
	_, err = registry.get(ctx, "fresh")
	require.NoError(t, err)

	require.Equal(t, 0, registry.sweep())

	c.now = c.now.Add(5 * time.Minute)
	require.Equal(t, 1, registry.sweep())
	require.Equal(t, 1, registry.len())
	require.Equal(t, float64(1), testutil.ToFloat64(gauge))

	_, err = stale.coordinator.Await(ctx)
	require.ErrorIs(t, err, auth.ErrCoordinatorClosed)

	// A returning browser gets a new coordinator
	restored, err := registry.get(ctx, "stale")
	require.NoError(t, err)
	require.NotSame(t, stale, restored)
}

func TestRegistryCreateFailure(t *testing.T) {
	c := &clock{now: time.Now()}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_browser_sessions"})
	registry := newSessionRegistry(func(id string) (*browserSession, error) {
		return nil, fmt.Errorf("create %s: %w", id, errors.New("boom"))
	}, time.Minute, c.Now, gauge, zerolog.Nop())

	_, err := registry.get(context.Background(), "a")
	require.Error(t, err)
	require.Equal(t, 0, registry.len())
}

func TestRegistryClose(t *testing.T) {
	c := &clock{now: time.Now()}
	registry, gauge, _ := newTestRegistry(t, c)

	bs, err := registry.get(context.Background(), "a")
	require.NoError(t, err)
	registry.close()

	require.Equal(t, 0, registry.len())
	require.Equal(t, float64(0), testutil.ToFloat64(gauge))
	_, err = bs.coordinator.Await(context.Background())
	require.ErrorIs(t, err, auth.ErrCoordinatorClosed)
}
