package users_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/users"
	fakeuserrepo "github.com/jrsteele09/movie-ratings/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testIdentityID = "8d0f4c8e-5b47-4d3e-9d37-3f0b2c1b5a10"
	testEmail      = "jane@example.com"
)

func newResolver(t *testing.T) (*users.Resolver, *fakeuserrepo.FakeProfileRepo, *prometheus.CounterVec) {
	t.Helper()
	repo := fakeuserrepo.NewFakeProfileRepo()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_resolutions_total"}, []string{"outcome"})
	return users.NewResolver(repo, users.WithResolutionCounter(counter)), repo, counter
}

func TestResolve_ExistingAdmin(t *testing.T) {
	resolver, repo, counter := newResolver(t)
	repo.Put(testIdentityID, testEmail, users.RoleAdmin)

	profile := resolver.Resolve(context.Background(), backend.Identity{ID: testIdentityID, Email: testEmail})

	require.Equal(t, testIdentityID, profile.IdentityID)
	require.True(t, profile.IsAdmin())
	require.NotNil(t, profile.ID)
	require.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues(users.OutcomeFound)))
}

func TestResolve_MissingProfileCreatesDefault(t *testing.T) {
	resolver, repo, counter := newResolver(t)

	profile := resolver.Resolve(context.Background(), backend.Identity{ID: testIdentityID, Email: testEmail})

	require.Equal(t, testIdentityID, profile.IdentityID)
	require.Equal(t, users.RoleUser, profile.Role)
	require.Nil(t, profile.ID, "synthesized profile is returned without re-querying")
	require.Equal(t, testEmail, profile.DisplayEmail())
	require.Equal(t, 1, repo.Upserts)
	require.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues(users.OutcomeCreated)))

	stored, err := repo.GetByIdentity(context.Background(), testIdentityID)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, stored.Role)
}

func TestResolve_UpsertFailureStillReturnsDefault(t *testing.T) {
	resolver, repo, _ := newResolver(t)
	repo.UpsertErr = fmt.Errorf("insert: %w", apperrors.ErrDenied)

	profile := resolver.Resolve(context.Background(), backend.Identity{ID: testIdentityID})

	require.Equal(t, testIdentityID, profile.IdentityID)
	require.False(t, profile.IsAdmin())
	require.Nil(t, profile.Email)
}

func TestResolve_TransportFailureDegradesToUser(t *testing.T) {
	resolver, repo, counter := newResolver(t)
	repo.Put(testIdentityID, testEmail, users.RoleAdmin)
	repo.GetErr = apperrors.Wrapf(apperrors.ErrTransport, "dial tcp")

	profile := resolver.Resolve(context.Background(), backend.Identity{ID: testIdentityID, Email: testEmail})

	require.False(t, profile.IsAdmin())
	require.Equal(t, 0, repo.Upserts, "transport errors must not trigger creation")
	require.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues(users.OutcomeDefault)))
}

func TestResolve_MalformedRole(t *testing.T) {
	resolver, repo, _ := newResolver(t)
	repo.Put(testIdentityID, testEmail, users.RoleType("superuser"))

	profile := resolver.Resolve(context.Background(), backend.Identity{ID: testIdentityID})

	require.Equal(t, users.RoleUser, profile.Role)
}

func TestResolve_AlwaysKeyedByIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := fakeuserrepo.NewFakeProfileRepo()
		resolver := users.NewResolver(repo)

		id := rapid.StringMatching(`[a-f0-9-]{1,36}`).Draw(t, "identity_id")
		email := rapid.StringMatching(`([a-z]{1,8}@example\.com)?`).Draw(t, "email")
		failure := rapid.SampledFrom([]string{"none", "not_found", "transport", "denied", "existing"}).Draw(t, "failure")

		switch failure {
		case "transport":
			repo.GetErr = apperrors.ErrTransport
		case "denied":
			repo.GetErr = apperrors.ErrDenied
		case "existing":
			repo.Put(id, email, rapid.SampledFrom([]users.RoleType{users.RoleUser, users.RoleAdmin}).Draw(t, "role"))
		}

		profile := resolver.Resolve(context.Background(), backend.Identity{ID: id, Email: email})
		if profile.IdentityID != id {
			t.Fatalf("resolved profile has identity %q, want %q", profile.IdentityID, id)
		}
		if !profile.Role.Valid() {
			t.Fatalf("resolved profile has invalid role %q", profile.Role)
		}
		if failure != "existing" && profile.IsAdmin() {
			t.Fatalf("failure %q must not grant admin", failure)
		}
	})
}

func TestParseRole(t *testing.T) {
	role, err := users.ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, role)

	_, err = users.ParseRole("owner")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
