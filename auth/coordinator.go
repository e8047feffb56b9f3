// Package auth coordinates the signed in identity of one browser session with
// its resolved role, and publishes every change to subscribers in order.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/telemetry"
	"github.com/jrsteele09/movie-ratings/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProfileResolver resolves the profile of an identity. It never fails.
type ProfileResolver interface {
	Resolve(ctx context.Context, identity backend.Identity) users.Profile
}

// RoleUpdater changes the stored role of an identity.
type RoleUpdater interface {
	UpdateRole(ctx context.Context, identityID string, role users.RoleType) error
}

// Coordinator is the single writer of a browser session's State. Session
// store notifications and command results are applied through the same
// path, and role resolutions that finish after their identity was replaced
// are discarded.
type Coordinator struct {
	store    backend.SessionStore
	resolver ProfileResolver
	roles    RoleUpdater
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	nowTime  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	state            State
	lastPhase        Phase
	changed          chan struct{} // closed and replaced on every publish
	started          bool
	notified         bool
	closed           bool
	applied          uint64 // session changes applied so far
	unsubscribeStore func()

	subMu       sync.Mutex
	nextSubID   int
	subscribers map[int]func(State)
	subOrder    []int

	queueMu sync.Mutex
	queue   []State
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// WithMetrics counts phase transitions
func WithMetrics(metrics *telemetry.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithRoleUpdater enables UpdateRole
func WithRoleUpdater(roles RoleUpdater) CoordinatorOption {
	return func(c *Coordinator) {
		c.roles = roles
	}
}

// NewCoordinator creates a Coordinator in the initializing phase. Start must
// be called before it reflects the session store.
func NewCoordinator(store backend.SessionStore, resolver ProfileResolver, options ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] session store is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewCoordinator] profile resolver is required")
	}

	c := &Coordinator{
		store:       store,
		resolver:    resolver,
		logger:      log.Logger,
		nowTime:     time.Now,
		changed:     make(chan struct{}),
		subscribers: make(map[int]func(State)),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state = initializingState()
	c.state.ChangedAt = c.nowTime()
	c.lastPhase = c.state.Phase

	c.wg.Add(1)
	go c.dispatch()
	return c, nil
}

// Start subscribes to the session store and performs the one-shot read of
// the persisted session. A failed read leaves the coordinator anonymous and
// is returned for logging.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	unsubscribe := c.store.OnSessionChange(c.onSessionChange)
	c.mu.Lock()
	c.unsubscribeStore = unsubscribe
	closed := c.closed
	c.mu.Unlock()
	if closed {
		unsubscribe()
		return ErrCoordinatorClosed
	}

	session, err := c.store.GetSession(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("initial session read failed")
		c.applyInitial(nil)
		return errors.Wrap(err, "[Coordinator Start] get session")
	}
	c.applyInitial(session)
	return nil
}

// applyInitial applies the initial read unless a notification already won
func (c *Coordinator) applyInitial(session *backend.Session) {
	c.mu.Lock()
	notified := c.notified
	c.mu.Unlock()
	if notified {
		return
	}
	c.apply(session)
}

func (c *Coordinator) onSessionChange(event backend.AuthEvent, session *backend.Session) {
	logger := c.logger.Debug().Str("event", string(event))
	if session != nil {
		logger = logger.Str("identity_id", session.Identity.ID)
	}
	logger.Msg("session change")

	c.mu.Lock()
	c.notified = true
	c.mu.Unlock()
	c.apply(session)
}

// apply moves the state to reflect session. It is the only path that changes
// the identity.
func (c *Coordinator) apply(session *backend.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(session)
}

// appliedCount returns the number of session changes applied so far
func (c *Coordinator) appliedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// applyIfUnchanged applies the result of a command unless another session
// change was applied after the command started. The later change is either the
// store's own notification of this result or something newer that supersedes it.
func (c *Coordinator) applyIfUnchanged(since uint64, session *backend.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied != since {
		return
	}
	c.applyLocked(session)
}

func (c *Coordinator) applyLocked(session *backend.Session) {
	if c.closed {
		return
	}
	c.applied++
	if session == nil {
		if c.state.Phase == PhaseAnonymous {
			return
		}
		c.state = anonymousState()
		c.publishLocked()
		return
	}

	held := *session
	if c.state.Identity != nil && c.state.Identity.ID == session.Identity.ID {
		// Token refresh or a repeat of an identity already applied
		c.state.Session = &held
		c.publishLocked()
		return
	}

	identity := session.Identity
	c.state = State{
		Phase:    PhaseResolving,
		Identity: &identity,
		Session:  &held,
		Loading:  true,
	}
	c.publishLocked()

	go c.resolve(identity, held)
}

func (c *Coordinator) resolve(identity backend.Identity, session backend.Session) {
	started := c.nowTime()
	ctx := backend.ContextWithSession(c.ctx, &session)
	ctx, span := telemetry.StartResolveSpan(ctx, identity.ID)
	profile := c.resolver.Resolve(ctx, identity)
	span.End()

	if !c.commit(identity, profile) {
		c.logger.Debug().Str("identity_id", identity.ID).Msg("discarding stale role resolution")
		return
	}
	c.logger.Debug().
		Str("identity_id", identity.ID).
		Str("role", string(profile.Role)).
		Dur("elapsed", c.nowTime().Sub(started)).
		Msg("role resolved")
}

// commit stores profile if identity is still the current one
func (c *Coordinator) commit(identity backend.Identity, profile users.Profile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Identity == nil || c.state.Identity.ID != identity.ID {
		return false
	}
	c.state.Profile = &profile
	c.state.IsAdmin = profile.IsAdmin()
	c.state.RoleResolved = true
	c.state.Loading = false
	c.state.Phase = PhaseReady
	c.publishLocked()
	return true
}

// SignIn authenticates and applies the new identity without waiting for the
// session store notification.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	since := c.appliedCount()
	session, err := c.store.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return errors.Wrap(err, "[Coordinator SignIn]")
	}
	c.applyIfUnchanged(since, session)
	return nil
}

// SignUp registers an account. confirmationPending is true when no session
// was issued because the email address must be confirmed first.
func (c *Coordinator) SignUp(ctx context.Context, email, password string) (confirmationPending bool, err error) {
	since := c.appliedCount()
	session, err := c.store.SignUp(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return false, errors.Wrap(err, "[Coordinator SignUp]")
	}
	if session == nil {
		return true, nil
	}
	c.applyIfUnchanged(since, session)
	return false, nil
}

// SignOut revokes the session and clears the identity.
func (c *Coordinator) SignOut(ctx context.Context) error {
	since := c.appliedCount()
	if err := c.store.SignOut(ctx); err != nil {
		return errors.Wrap(err, "[Coordinator SignOut]")
	}
	c.applyIfUnchanged(since, nil)
	return nil
}

// SendPasswordReset asks the session store to email a reset link.
func (c *Coordinator) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidationError("email", "Please enter your email address")
	}
	if err := c.store.SendPasswordReset(ctx, email, redirectTo); err != nil {
		return errors.Wrap(err, "[Coordinator SendPasswordReset]")
	}
	return nil
}

// RefreshProfile re-resolves the role of the current identity.
func (c *Coordinator) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Identity == nil || c.state.Session == nil {
		c.mu.Unlock()
		return apperrors.ErrSessionMissing
	}
	identity := *c.state.Identity
	session := *c.state.Session
	c.mu.Unlock()

	profile := c.resolver.Resolve(backend.ContextWithSession(ctx, &session), identity)
	c.commit(identity, profile)
	return nil
}

// UpdateRole changes the role of identityID. Only admins may call it; the
// backend enforces the same rule. The current profile is refreshed when it
// is the one changed.
func (c *Coordinator) UpdateRole(ctx context.Context, identityID string, role users.RoleType) error {
	if c.roles == nil {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "[Coordinator UpdateRole] no role updater configured")
	}
	if !role.Valid() {
		return apperrors.NewValidationError("role", "Role must be user or admin")
	}
	state := c.State()
	if !state.IsAdmin || state.Session == nil {
		return apperrors.Wrapf(apperrors.ErrDenied, "[Coordinator UpdateRole] admin role required")
	}
	if err := c.roles.UpdateRole(backend.ContextWithSession(ctx, state.Session), identityID, role); err != nil {
		return errors.Wrap(err, "[Coordinator UpdateRole]")
	}
	if state.Identity.ID == identityID {
		return c.RefreshProfile(ctx)
	}
	return nil
}

// State returns a copy of the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Await blocks until the state is no longer loading and returns it.
func (c *Coordinator) Await(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return State{}, ErrCoordinatorClosed
		}
		if !c.state.Loading {
			state := c.state.clone()
			c.mu.Unlock()
			return state, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

// Subscribe registers fn for every state change. Calls happen on one
// goroutine, in the order the changes were made. fn must not call Close
// directly since Close waits for that goroutine; use go c.Close() instead.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subOrder = append(c.subOrder, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subscribers, id)
			for i, v := range c.subOrder {
				if v == id {
					c.subOrder = append(c.subOrder[:i], c.subOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// Close detaches from the session store and stops delivering changes.
// In-flight resolutions are discarded. It waits for pending deliveries, so it
// must not be called synchronously from a Subscribe callback.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribeStore
	close(c.changed)
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	close(c.done)
	c.wg.Wait()
}

func (c *Coordinator) publishLocked() {
	c.state.ChangedAt = c.nowTime()
	if c.metrics != nil && c.state.Phase != c.lastPhase {
		c.metrics.CoordinatorTransitions.WithLabelValues(string(c.state.Phase)).Inc()
	}
	c.lastPhase = c.state.Phase
	close(c.changed)
	c.changed = make(chan struct{})

	c.queueMu.Lock()
	c.queue = append(c.queue, c.state.clone())
	c.queueMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.wake:
			c.deliver()
		case <-c.done:
			c.deliver()
			return
		}
	}
}

func (c *Coordinator) deliver() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.queueMu.Unlock()
			return
		}
		state := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		c.subMu.Lock()
		fns := make([]func(State), 0, len(c.subOrder))
		for _, id := range c.subOrder {
			fns = append(fns, c.subscribers[id])
		}
		c.subMu.Unlock()

		for _, fn := range fns {
			fn(state)
		}
	}
}
