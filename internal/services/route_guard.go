package services

import "github.com/you/mimora/domain"

// Default redirect targets
const (
	LoginPath      = "/login"
	OnboardingPath = "/artist/setup"
)

// Decision is the outcome of a guard check
type Decision struct {
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// RouteGuard decides whether a protected view may render. It holds no
// state and is evaluated on every request.
type RouteGuard struct {
	LoginPath      string
	OnboardingPath string
}

// NewRouteGuard returns a guard with the default redirect targets
func NewRouteGuard() RouteGuard {
	return RouteGuard{LoginPath: LoginPath, OnboardingPath: OnboardingPath}
}

// CanEnter applies the guard to a session snapshot
func (g RouteGuard) CanEnter(session domain.Session, profileCompleted bool) Decision {
	if !session.Authenticated() {
		return Decision{RedirectTo: g.LoginPath}
	}
	if session.Role == domain.RoleArtist && !profileCompleted {
		return Decision{RedirectTo: g.OnboardingPath}
	}
	return Decision{Allow: true}
}

// ProfileCompleted reads the completion flag off the session's account
func ProfileCompleted(session domain.Session) bool {
	return session.Account != nil && session.Account.ProfileComplete()
}
