package authsync

import "github.com/MrEthical07/authsync/session"

// Phase is the bootstrap lifecycle of an Engine.
type Phase int32

const (
	// PhaseIdle is the phase before Start.
	PhaseIdle Phase = iota
	// PhaseLoading lasts while the initial session is being resolved.
	PhaseLoading
	// PhaseReadyAuthenticated means bootstrap found a complete session.
	PhaseReadyAuthenticated
	// PhaseReadyAnonymous means bootstrap found none or failed.
	PhaseReadyAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReadyAuthenticated:
		return "ready_authenticated"
	case PhaseReadyAnonymous:
		return "ready_anonymous"
	}
	return "unknown"
}

// Ready reports whether bootstrap has finished.
func (p Phase) Ready() bool {
	return p == PhaseReadyAuthenticated || p == PhaseReadyAnonymous
}

// Route is the navigation target derived from the session.
type Route int

const (
	// RouteNone means no navigation should happen yet.
	RouteNone Route = iota
	// RouteAuth is the sign-in screen.
	RouteAuth
	// RouteApp is the authenticated application.
	RouteApp
)

func (r Route) String() string {
	switch r {
	case RouteAuth:
		return "auth"
	case RouteApp:
		return "app"
	}
	return "none"
}

// RouteFor returns the route a session implies.
func RouteFor(s session.Session) Route {
	if s.Authenticated() {
		return RouteApp
	}
	return RouteAuth
}

// FlowState is the screen state of an AuthFlow.
type FlowState int

const (
	FlowSignIn FlowState = iota
	FlowSignUp
	FlowAwaitingConfirmation
)

func (s FlowState) String() string {
	switch s {
	case FlowSignIn:
		return "sign_in"
	case FlowSignUp:
		return "sign_up"
	case FlowAwaitingConfirmation:
		return "awaiting_confirmation"
	}
	return "unknown"
}

// PendingRegistration remembers the account awaiting its confirmation code.
type PendingRegistration struct {
	Username string
}

// Form holds the values last submitted to an AuthFlow. Passwords are never kept.
type Form struct {
	Email    string
	Username string
	Code     string
}

// Outcome is the observable result of an AuthFlow operation. Message is empty
// only when nothing needs to be shown.
type Outcome struct {
	State   FlowState
	Message string
	Route   Route
}
