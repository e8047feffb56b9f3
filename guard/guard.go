// Package guard decides whether a view may be shown for the current auth
// state. It is a pure function of its inputs.
package guard

import (
	"github.com/jrsteele09/movie-ratings/auth"
)

// Views the guard redirects to
const (
	LoginView   = "/login"
	DefaultView = "/"
	AdminView   = "/admin"
)

// Requirement is what a view needs from the auth state.
type Requirement int

const (
	RequireNone Requirement = iota
	RequireAuthenticated
	RequireAdmin
)

func (r Requirement) String() string {
	switch r {
	case RequireNone:
		return "none"
	case RequireAuthenticated:
		return "authenticated"
	case RequireAdmin:
		return "admin"
	}
	return "unknown"
}

// Outcome is the kind of a Decision.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Wait // state still loading, show a spinner
)

// Decision is the result of Check. Target is set for Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

func allow() Decision {
	return Decision{Outcome: Allow}
}

func redirect(target string) Decision {
	return Decision{Outcome: Redirect, Target: target}
}

// Allowed reports whether the view may be rendered
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Check gates currentView, which requires requirement, on state.
func Check(state auth.State, requirement Requirement, currentView string) Decision {
	signedIn := state.Identity != nil

	if currentView == LoginView && signedIn {
		if state.Loading && !state.RoleResolved {
			return Decision{Outcome: Wait}
		}
		if state.IsAdmin {
			return redirect(AdminView)
		}
		return redirect(DefaultView)
	}

	if requirement == RequireNone {
		return allow()
	}
	if state.Loading {
		return Decision{Outcome: Wait}
	}

	switch requirement {
	case RequireAuthenticated:
		if !signedIn {
			return redirect(LoginView)
		}
		return allow()
	case RequireAdmin:
		if !signedIn {
			return redirect(LoginView)
		}
		if !state.IsAdmin {
			// Not the login view, a signed in user would loop back here
			return redirect(DefaultView)
		}
		return allow()
	}
	return redirect(DefaultView)
}
