package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/movie-ratings/auth"
	"github.com/jrsteele09/movie-ratings/backend"
	"github.com/jrsteele09/movie-ratings/backend/memory"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/telemetry"
	"github.com/jrsteele09/movie-ratings/sessions"
	fakesessionrepo "github.com/jrsteele09/movie-ratings/sessions/repofakes"
	"github.com/jrsteele09/movie-ratings/users"
	fakeuserrepo "github.com/jrsteele09/movie-ratings/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	backend  *memory.Backend
	sessions *fakesessionrepo.FakeSessionRepo
	store    *sessions.Store
	profiles *fakeuserrepo.FakeProfileRepo
	alice    backend.Identity
	bob      backend.Identity
}

func newFixture(t *testing.T, options ...memory.Option) *fixture {
	t.Helper()
	b := memory.New(append([]memory.Option{memory.WithBcryptCost(bcrypt.MinCost)}, options...)...)
	alice, err := b.CreateAccount("alice@example.com", "secret123")
	require.NoError(t, err)
	bob, err := b.CreateAccount("bob@example.com", "secret123")
	require.NoError(t, err)

	repo := fakesessionrepo.NewFakeSessionRepo()
	return &fixture{
		backend:  b,
		sessions: repo,
		store:    sessions.NewStore(b, repo, "browser"),
		profiles: fakeuserrepo.NewFakeProfileRepo(),
		alice:    alice,
		bob:      bob,
	}
}

func (f *fixture) coordinator(t *testing.T, options ...auth.CoordinatorOption) *auth.Coordinator {
	t.Helper()
	c, err := auth.NewCoordinator(f.store, users.NewResolver(f.profiles), options...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

type recorder struct {
	mu     sync.Mutex
	states []auth.State
}

func record(c *auth.Coordinator) *recorder {
	r := &recorder{}
	c.Subscribe(func(s auth.State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	})
	return r
}

func (r *recorder) phases() []auth.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := make([]auth.Phase, 0, len(r.states))
	for _, s := range r.states {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	return phases
}

func await(t *testing.T, c *auth.Coordinator) auth.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	state, err := c.Await(ctx)
	require.NoError(t, err)
	return state
}

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	_, err := auth.NewCoordinator(nil, users.NewResolver(fakeuserrepo.NewFakeProfileRepo()))
	require.Error(t, err)

	f := newFixture(t)
	_, err = auth.NewCoordinator(f.store, nil)
	require.Error(t, err)
}

func TestInitialStateIsLoading(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)

	state := c.State()
	require.Equal(t, auth.PhaseInitializing, state.Phase)
	require.True(t, state.Loading)
	require.Nil(t, state.Identity)
}

func TestStartWithoutSessionIsAnonymous(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))

	state := await(t, c)
	require.Equal(t, auth.PhaseAnonymous, state.Phase)
	require.False(t, state.Loading)
	require.Nil(t, state.Identity)
	require.Nil(t, state.Profile)
	require.False(t, state.IsAdmin)
	require.Equal(t, 1, f.store.Listeners())
}

func TestStartRestoresPersistedSession(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleAdmin)
	_, err := f.store.SignInWithPassword(context.Background(), "alice@example.com", "secret123")
	require.NoError(t, err)

	// A new browser request restores from persistence
	f.store = sessions.NewStore(f.backend, f.sessions, "browser")
	c := f.coordinator(t)
	states := record(c)
	require.NoError(t, c.Start(context.Background()))

	state := await(t, c)
	require.Equal(t, auth.PhaseReady, state.Phase)
	require.Equal(t, f.alice.ID, state.Identity.ID)
	require.True(t, state.IsAdmin)
	require.True(t, state.RoleResolved)

	require.Eventually(t, func() bool {
		phases := states.phases()
		return len(phases) == 2 && phases[0] == auth.PhaseResolving && phases[1] == auth.PhaseReady
	}, waitFor, tick)
}

func TestSignInResolvesRoleOnce(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleUser)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	c := f.coordinator(t, auth.WithMetrics(metrics))
	states := record(c)
	require.NoError(t, c.Start(context.Background()))
	await(t, c)

	require.NoError(t, c.SignIn(context.Background(), " alice@example.com ", "secret123"))
	state := await(t, c)
	require.Equal(t, auth.PhaseReady, state.Phase)
	require.Equal(t, f.alice.ID, state.Identity.ID)
	require.Equal(t, f.alice.ID, state.Profile.IdentityID)
	require.False(t, state.IsAdmin)
	require.Equal(t, "alice@example.com", state.Email())

	// The store notification and the optimistic apply share one resolution
	require.Equal(t, 1, f.profiles.Gets())
	require.Eventually(t, func() bool {
		phases := states.phases()
		return len(phases) == 3 && phases[1] == auth.PhaseResolving && phases[2] == auth.PhaseReady
	}, waitFor, tick)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.CoordinatorTransitions.WithLabelValues(string(auth.PhaseReady))))
}

func TestSignInWithoutProfileCreatesDefault(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.SignIn(context.Background(), "bob@example.com", "secret123"))
	state := await(t, c)
	require.Equal(t, users.RoleUser, state.Profile.Role)
	require.Equal(t, f.bob.ID, state.Profile.IdentityID)
	require.Nil(t, state.Profile.ID)
	require.False(t, state.IsAdmin)
	require.Equal(t, 1, f.profiles.Upserts)
}

func TestSignInFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))
	before := await(t, c)

	err := c.SignIn(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, apperrors.KindCredentials, apperrors.Kind(err))

	after := c.State()
	require.Equal(t, before.Phase, after.Phase)
	require.Nil(t, after.Identity)
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleAdmin)
	f.profiles.Put(f.bob.ID, f.bob.Email, users.RoleUser)
	release := f.profiles.Hold(f.alice.ID)

	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))
	require.Equal(t, auth.PhaseResolving, c.State().Phase)

	require.NoError(t, c.SignIn(context.Background(), "bob@example.com", "secret123"))
	state := await(t, c)
	require.Equal(t, f.bob.ID, state.Identity.ID)
	require.False(t, state.IsAdmin)

	// Alice's admin profile arrives late and must not be applied to bob
	release()
	require.Never(t, func() bool {
		s := c.State()
		return s.IsAdmin || s.Identity.ID != f.bob.ID
	}, 200*time.Millisecond, tick)
}

func TestSignOutClearsState(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleAdmin)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))
	require.True(t, await(t, c).IsAdmin)

	require.NoError(t, c.SignOut(context.Background()))
	state := c.State()
	require.Equal(t, auth.PhaseAnonymous, state.Phase)
	require.Nil(t, state.Identity)
	require.Nil(t, state.Profile)
	require.Nil(t, state.Session)
	require.False(t, state.IsAdmin)
	require.False(t, state.Loading)
	require.Zero(t, f.sessions.Len())
}

// interleavingStore runs afterSignIn between the store signing in and the
// coordinator seeing the result.
type interleavingStore struct {
	backend.SessionStore
	silent      bool
	afterSignIn func()
}

func (s *interleavingStore) OnSessionChange(listener backend.SessionListener) func() {
	if s.silent {
		return func() {}
	}
	return s.SessionStore.OnSessionChange(listener)
}

func (s *interleavingStore) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	session, err := s.SessionStore.SignInWithPassword(ctx, email, password)
	if err == nil && s.afterSignIn != nil {
		s.afterSignIn()
	}
	return session, err
}

func TestSignOutDuringSignInWins(t *testing.T) {
	f := newFixture(t)
	store := &interleavingStore{SessionStore: f.store}
	c, err := auth.NewCoordinator(store, users.NewResolver(f.profiles))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Start(context.Background()))

	store.afterSignIn = func() {
		require.NoError(t, c.SignOut(context.Background()))
	}
	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))

	session, err := f.store.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)

	state := c.State()
	require.Equal(t, auth.PhaseAnonymous, state.Phase)
	require.Nil(t, state.Identity)
	require.Nil(t, state.Session)
	require.Never(t, func() bool { return c.State().Identity != nil }, 100*time.Millisecond, tick)
}

func TestSignInAppliesWithoutStoreNotification(t *testing.T) {
	f := newFixture(t)
	store := &interleavingStore{SessionStore: f.store, silent: true}
	c, err := auth.NewCoordinator(store, users.NewResolver(f.profiles))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))
	state := await(t, c)
	require.Equal(t, auth.PhaseReady, state.Phase)
	require.Equal(t, f.alice.ID, state.Identity.ID)

	require.NoError(t, c.SignOut(context.Background()))
	require.Nil(t, c.State().Identity)
}

func TestSubscriberMayCloseAsynchronously(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	c.Subscribe(func(s auth.State) {
		if s.Phase == auth.PhaseAnonymous {
			go c.Close()
		}
	})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, err := c.Await(context.Background())
		return errors.Is(err, auth.ErrCoordinatorClosed)
	}, waitFor, tick)
}

func TestSignUp(t *testing.T) {
	t.Run("session issued", func(t *testing.T) {
		f := newFixture(t)
		c := f.coordinator(t)
		require.NoError(t, c.Start(context.Background()))

		pending, err := c.SignUp(context.Background(), "carol@example.com", "secret123")
		require.NoError(t, err)
		require.False(t, pending)
		state := await(t, c)
		require.Equal(t, "carol@example.com", state.Identity.Email)
	})

	t.Run("confirmation pending", func(t *testing.T) {
		f := newFixture(t, memory.WithEmailConfirmation())
		c := f.coordinator(t)
		require.NoError(t, c.Start(context.Background()))

		pending, err := c.SignUp(context.Background(), "carol@example.com", "secret123")
		require.NoError(t, err)
		require.True(t, pending)
		require.Nil(t, c.State().Identity)
	})
}

func TestTokenRefreshKeepsResolvedRole(t *testing.T) {
	// Tokens this short are always inside the refresh window
	f := newFixture(t, memory.WithTokenTTL(5*time.Second))
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleAdmin)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))
	before := await(t, c)

	_, err := f.store.GetSession(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State().Session.RefreshToken != before.Session.RefreshToken
	}, waitFor, tick)
	after := c.State()
	require.Equal(t, auth.PhaseReady, after.Phase)
	require.True(t, after.IsAdmin)
	require.Equal(t, 1, f.profiles.Gets())
}

func TestCloseDetachesFromStore(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, 1, f.store.Listeners())

	c.Close()
	c.Close()
	require.Zero(t, f.store.Listeners())

	_, err := c.Await(context.Background())
	require.ErrorIs(t, err, auth.ErrCoordinatorClosed)
	require.ErrorIs(t, c.Start(context.Background()), auth.ErrCoordinatorClosed)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state, err := c.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, state.Loading)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	var mu sync.Mutex
	calls := 0
	unsubscribe := c.Subscribe(func(auth.State) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	unsubscribe()

	require.NoError(t, c.Start(context.Background()))
	await(t, c)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(f.alice.ID, f.alice.Email, users.RoleAdmin)
	f.profiles.Put(f.bob.ID, f.bob.Email, users.RoleUser)
	c := f.coordinator(t, auth.WithRoleUpdater(f.profiles))
	require.NoError(t, c.Start(context.Background()))

	t.Run("requires admin", func(t *testing.T) {
		err := c.UpdateRole(context.Background(), f.bob.ID, users.RoleAdmin)
		require.ErrorIs(t, err, apperrors.ErrDenied)
	})

	require.NoError(t, c.SignIn(context.Background(), "alice@example.com", "secret123"))
	await(t, c)

	t.Run("invalid role", func(t *testing.T) {
		err := c.UpdateRole(context.Background(), f.bob.ID, users.RoleType("owner"))
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("promote other", func(t *testing.T) {
		require.NoError(t, c.UpdateRole(context.Background(), f.bob.ID, users.RoleAdmin))
		profile, err := f.profiles.GetByIdentity(context.Background(), f.bob.ID)
		require.NoError(t, err)
		require.True(t, profile.IsAdmin())
	})

	t.Run("demote self refreshes", func(t *testing.T) {
		require.NoError(t, c.UpdateRole(context.Background(), f.alice.ID, users.RoleUser))
		state := c.State()
		require.False(t, state.IsAdmin)
		require.Equal(t, users.RoleUser, state.Profile.Role)
	})
}

func TestRefreshProfileRequiresSession(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)
	require.NoError(t, c.Start(context.Background()))
	require.ErrorIs(t, c.RefreshProfile(context.Background()), apperrors.ErrSessionMissing)
}

func TestSendPasswordReset(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t)

	err := c.SendPasswordReset(context.Background(), "  ", "http://localhost/reset-password")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	require.NoError(t, c.SendPasswordReset(context.Background(), "alice@example.com", "http://localhost/reset-password"))
	require.Len(t, f.backend.PasswordResets(), 1)
}

func TestResolutionRunsWithCallerSession(t *testing.T) {
	f := newFixture(t)
	profiles := users.NewDataRepo(f.backend.Client())
	c, err := auth.NewCoordinator(f.store, users.NewResolver(profiles))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.SignIn(context.Background(), "bob@example.com", "secret123"))
	state := await(t, c)
	require.False(t, state.IsAdmin)

	// The default profile upsert is only allowed for the signed in owner
	stored, err := users.NewDataRepo(f.backend.ServiceClient()).GetByIdentity(context.Background(), f.bob.ID)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, stored.Role)
	require.Equal(t, "bob@example.com", stored.DisplayEmail())
}
