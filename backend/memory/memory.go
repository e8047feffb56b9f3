// Package memory is an in-process stand-in for the hosted backend. It issues
// HS256 access tokens for bcrypt-checked accounts, stores the movies, ratings
// and users tables, computes the aggregation views on read and applies the
// same row level policies the hosted database enforces.
package memory

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

type account struct {
	ID           string
	Email        string
	PasswordHash []byte
	Confirmed    bool
	CreatedAt    time.Time
}

type refreshGrant struct {
	AccountID string
	SessionID string
}

// PasswordReset is a reset email the backend would have sent.
type PasswordReset struct {
	Email      string
	RedirectTo string
	SentAt     time.Time
}

// Backend holds every account and table of the stand-in.
type Backend struct {
	mu sync.RWMutex

	accounts      map[string]*account // by email
	refreshTokens map[string]refreshGrant
	tables        map[string]*table
	outbox        []PasswordReset

	signingKey          []byte
	tokenTTL            time.Duration
	requireConfirmation bool
	bcryptCost          int
	nowTime             func() time.Time
	logger              zerolog.Logger
}

// Option configures a Backend
type Option func(*Backend)

// WithNowTime sets the clock for tokens and timestamps (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = nowFunc
	}
}

// WithTokenTTL sets the access token lifetime
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokenTTL = ttl
	}
}

// WithSigningKey sets the HS256 key used for access tokens
func WithSigningKey(key []byte) Option {
	return func(b *Backend) {
		b.signingKey = key
	}
}

// WithEmailConfirmation makes sign up return no session until the account
// is confirmed with ConfirmEmail
func WithEmailConfirmation() Option {
	return func(b *Backend) {
		b.requireConfirmation = true
	}
}

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(b *Backend) {
		b.bcryptCost = cost
	}
}

// WithLogger sets the backend logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates an empty Backend
func New(options ...Option) *Backend {
	b := &Backend{
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]refreshGrant),
		tables: map[string]*table{
			backend.TableMovies:  newTable(),
			backend.TableRatings: newTable(),
			backend.TableUsers:   newTable(),
		},
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		nowTime:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	if len(b.signingKey) == 0 {
		b.signingKey = make([]byte, 32)
		if _, err := rand.Read(b.signingKey); err != nil {
			panic(err)
		}
	}
	return b
}

// SessionStore returns the session store of one browser session, persisted
// in repo under key
func (b *Backend) SessionStore(repo sessions.Repo, key string) backend.SessionStore {
	return sessions.NewStore(b, repo, key, sessions.WithStoreLogger(b.logger))
}

// Client returns the data client subject to the row level policies of the
// session carried by each request context
func (b *Backend) Client() backend.DataClient {
	return &Client{backend: b}
}

// ServiceClient returns a data client that bypasses row level policies, the
// equivalent of the hosted service role key
func (b *Backend) ServiceClient() backend.DataClient {
	return &Client{backend: b, service: true}
}

// CreateAccount registers a confirmed account and returns its identity
func (b *Backend) CreateAccount(email, password string) (backend.Identity, error) {
	acc, err := b.createAccount(email, password, true)
	if err != nil {
		return backend.Identity{}, err
	}
	return backend.Identity{ID: acc.ID, Email: acc.Email}, nil
}

// SeedAdmin makes sure an admin account exists for email
func (b *Backend) SeedAdmin(ctx context.Context, email, password string) (backend.Identity, error) {
	b.mu.RLock()
	existing, ok := b.accounts[normalizeEmail(email)]
	b.mu.RUnlock()

	identity := backend.Identity{}
	if ok {
		identity = backend.Identity{ID: existing.ID, Email: existing.Email}
	} else {
		created, err := b.CreateAccount(email, password)
		if err != nil {
			return backend.Identity{}, errors.Wrap(err, "[Backend SeedAdmin] create account")
		}
		identity = created
	}

	service := b.ServiceClient()
	err := service.Upsert(ctx, backend.TableUsers, map[string]any{
		"auth_user_id": identity.ID,
		"role":         "admin",
	}, "auth_user_id")
	if err != nil {
		return backend.Identity{}, errors.Wrap(err, "[Backend SeedAdmin] upsert profile")
	}
	return identity, nil
}

// ConfirmEmail confirms a pending account
func (b *Backend) ConfirmEmail(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[normalizeEmail(email)]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Confirmed = true
	return nil
}

// PasswordResets returns the reset emails sent so far
func (b *Backend) PasswordResets() []PasswordReset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]PasswordReset(nil), b.outbox...)
}

func (b *Backend) now() time.Time {
	return b.nowTime().UTC()
}

func newID() string {
	return uuid.NewString()
}
