package users

import (
	"context"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/pkg/errors"
)

// ProfileRepo is the profile store behind the role resolver.
type ProfileRepo interface {
	// GetByIdentity returns the profile for identityID or errors.ErrNotFound
	GetByIdentity(ctx context.Context, identityID string) (*Profile, error)
	// UpsertDefault idempotently creates a user-role profile for identityID
	UpsertDefault(ctx context.Context, identityID string) error
	// UpdateRole changes the role of an existing profile
	UpdateRole(ctx context.Context, identityID string, role RoleType) error
	// List returns every profile, newest first
	List(ctx context.Context) ([]*Profile, error)
}

var _ ProfileRepo = (*DataRepo)(nil)

// DataRepo reads profiles from the user_profile view and writes them to the
// users table of the hosted database.
type DataRepo struct {
	data backend.DataClient
}

func NewDataRepo(data backend.DataClient) *DataRepo {
	return &DataRepo{data: data}
}

type profileRow struct {
	AuthUserID string   `json:"auth_user_id"`
	Role       RoleType `json:"role"`
}

func (r *DataRepo) GetByIdentity(ctx context.Context, identityID string) (*Profile, error) {
	var profile Profile
	q := backend.From(backend.ViewUserProfile).Eq("auth_user_id", identityID)
	if err := r.data.SelectOne(ctx, q, &profile); err != nil {
		return nil, errors.Wrap(err, "[GetByIdentity] select user_profile")
	}
	return &profile, nil
}

func (r *DataRepo) UpsertDefault(ctx context.Context, identityID string) error {
	row := profileRow{AuthUserID: identityID, Role: RoleUser}
	if err := r.data.Upsert(ctx, backend.TableUsers, row, "auth_user_id"); err != nil {
		return errors.Wrap(err, "[UpsertDefault] upsert users")
	}
	return nil
}

func (r *DataRepo) UpdateRole(ctx context.Context, identityID string, role RoleType) error {
	if !role.Valid() {
		return apperrors.NewValidationError("role", "unknown role")
	}
	filters := []backend.Filter{backend.Eq("auth_user_id", identityID)}
	if err := r.data.Update(ctx, backend.TableUsers, filters, map[string]any{"role": role}); err != nil {
		return errors.Wrap(err, "[UpdateRole] update users")
	}
	return nil
}

func (r *DataRepo) List(ctx context.Context) ([]*Profile, error) {
	var profiles []*Profile
	q := backend.From(backend.ViewUserProfile).OrderBy("created_at", false)
	if err := r.data.Select(ctx, q, &profiles); err != nil {
		return nil, errors.Wrap(err, "[List] select user_profile")
	}
	return profiles, nil
}
