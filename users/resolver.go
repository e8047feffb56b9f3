package users

import (
	"context"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resolution outcomes, used as the metric label
const (
	OutcomeFound   = "found"
	OutcomeCreated = "created"
	OutcomeDefault = "default"
)

// Resolver derives the profile, and so the admin flag, of an identity. It
// fails soft: every failure degrades to the least privileged profile.
type Resolver struct {
	repo        ProfileRepo
	logger      zerolog.Logger
	resolutions *prometheus.CounterVec
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithResolutionCounter counts resolutions by outcome
func WithResolutionCounter(counter *prometheus.CounterVec) ResolverOption {
	return func(r *Resolver) {
		r.resolutions = counter
	}
}

func NewResolver(repo ProfileRepo, options ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:   repo,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve returns the profile of identity. It never fails; the returned
// profile always has IdentityID == identity.ID.
func (r *Resolver) Resolve(ctx context.Context, identity backend.Identity) Profile {
	logger := r.logger.With().Str("identity_id", identity.ID).Logger()

	profile, err := r.repo.GetByIdentity(ctx, identity.ID)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		logger.Info().Msg("profile missing, creating default")
		if err := r.repo.UpsertDefault(ctx, identity.ID); err != nil {
			logger.Warn().Err(err).Msg("failed to create default profile")
		}
		r.count(OutcomeCreated)
		return DefaultProfile(identity)

	case err != nil:
		logger.Warn().Err(err).Msg("failed to load profile, using default")
		r.count(OutcomeDefault)
		return DefaultProfile(identity)

	case profile == nil || profile.IdentityID != identity.ID || !profile.Role.Valid():
		logger.Warn().Msg("malformed profile, using default")
		r.count(OutcomeDefault)
		return DefaultProfile(identity)
	}

	logger.Debug().Str("role", string(profile.Role)).Msg("profile loaded")
	r.count(OutcomeFound)
	return *profile
}

func (r *Resolver) count(outcome string) {
	if r.resolutions != nil {
		r.resolutions.WithLabelValues(outcome).Inc()
	}
}
