package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/utils"
)

// RoleType determines UI level access. It is not a substitute for the
// backend's own authorization.
type RoleType string

const (
	RoleUser  RoleType = "user"  // Can browse and rate movies
	RoleAdmin RoleType = "admin" // Can also manage movies and moderate ratings
)

// Valid reports whether r is a known role
func (r RoleType) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts a role name into a RoleType
func ParseRole(role string) (RoleType, error) {
	r := RoleType(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return "", apperrors.NewValidationError("role", fmt.Sprintf("unknown role %q, expected user or admin", role))
	}
	return r, nil
}

// Profile pairs an identity with a role. The client held copy is a best
// effort cache of the backend record.
type Profile struct {
	ID         *string    `json:"id"`           // Profile row ID, nil when synthesized locally
	IdentityID string     `json:"auth_user_id"` // Stable identifier of the identity
	Role       RoleType   `json:"role"`
	CreatedAt  *time.Time `json:"created_at"`
	Email      *string    `json:"email"`
}

// IsAdmin reports whether the profile carries the admin role
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// DisplayEmail returns the profile email or an empty string
func (p *Profile) DisplayEmail() string {
	if p == nil {
		return ""
	}
	return utils.Value(p.Email)
}

// DefaultProfile is the least privileged profile for identity
func DefaultProfile(identity backend.Identity) Profile {
	var email *string
	if identity.Email != "" {
		email = utils.Ptr(identity.Email)
	}
	return Profile{
		IdentityID: identity.ID,
		Role:       RoleUser,
		Email:      email,
	}
}
