package auth

import (
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	"github.com/jrsteele09/movie-ratings/users"
)

// Phase is the lifecycle position of a Coordinator.
type Phase string

const (
	PhaseInitializing Phase = "initializing" // initial session read pending
	PhaseAnonymous    Phase = "anonymous"
	PhaseResolving    Phase = "resolving" // identity known, role pending
	PhaseReady        Phase = "ready"
)

// Loading reports whether the phase is still waiting on the backend
func (p Phase) Loading() bool {
	return p == PhaseInitializing || p == PhaseResolving
}

// State is the application-wide view of who is signed in and with which role.
// Identity nil implies Profile nil and IsAdmin false.
type State struct {
	Phase        Phase
	Identity     *backend.Identity
	Session      *backend.Session
	Profile      *users.Profile
	IsAdmin      bool
	RoleResolved bool
	Loading      bool
	ChangedAt    time.Time
}

// SignedIn reports whether an identity is present
func (s State) SignedIn() bool {
	return s.Identity != nil
}

// Email returns the display email of the signed in identity
func (s State) Email() string {
	if s.Profile != nil && s.Profile.Email != nil && *s.Profile.Email != "" {
		return *s.Profile.Email
	}
	if s.Identity != nil {
		return s.Identity.Email
	}
	return ""
}

func (s State) clone() State {
	c := s
	if s.Identity != nil {
		identity := *s.Identity
		c.Identity = &identity
	}
	if s.Session != nil {
		session := *s.Session
		c.Session = &session
	}
	if s.Profile != nil {
		profile := *s.Profile
		c.Profile = &profile
	}
	return c
}

func anonymousState() State {
	return State{Phase: PhaseAnonymous}
}

func initializingState() State {
	return State{Phase: PhaseInitializing, Loading: true}
}
