package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/org/dealership/pkg/models"
)

// DefaultCookieName is the session cookie set at login.
const DefaultCookieName = "_data_"

// Route identifies an endpoint by method and literal path.
type Route struct {
	Method string
	Path   string
}

func (r Route) String() string { return r.Method + " " + r.Path }

// ParseRoute parses "METHOD /path", the form String produces.
func ParseRoute(s string) (Route, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "/") {
		return Route{}, fmt.Errorf("route %q: want \"METHOD /path\"", s)
	}
	for _, c := range parts[0] {
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return Route{}, fmt.Errorf("route %q: invalid method", s)
		}
	}
	return Route{Method: strings.ToUpper(parts[0]), Path: parts[1]}, nil
}

// AllowList is the fixed set of routes reachable without a session.
// Membership is an exact match on method and path.
type AllowList struct {
	routes map[Route]struct{}
}

// NewAllowList builds an allow-list. Methods are upper-cased.
func NewAllowList(routes ...Route) *AllowList {
	a := &AllowList{routes: make(map[Route]struct{}, len(routes))}
	for _, r := range routes {
		r.Method = strings.ToUpper(r.Method)
		a.routes[r] = struct{}{}
	}
	return a
}

// DefaultAllowList exempts login and self-registration.
func DefaultAllowList() *AllowList {
	return NewAllowList(
		Route{Method: http.MethodPost, Path: "/users/login"},
		Route{Method: http.MethodPost, Path: "/users"},
	)
}

// Allows reports whether method and path are exempt from the session check.
func (a *AllowList) Allows(method, path string) bool {
	if a == nil {
		return false
	}
	_, ok := a.routes[Route{Method: method, Path: path}]
	return ok
}

// Routes lists the exempt routes, sorted.
func (a *AllowList) Routes() []Route {
	out := make([]Route, 0, len(a.routes))
	for r := range a.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// State is the outcome of guarding one request.
type State int

const (
	StateExempt State = iota + 1
	StateAuthorized
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateExempt:
		return "exempt"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	}
	return "unchecked"
}

// Rejection reasons. They are logged and counted but never sent to clients.
const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
)

// Decision is the guard's verdict on a request.
type Decision struct {
	State   State
	Reason  string
	Session *models.Session
}

// TokenVerifier verifies a session token.
type TokenVerifier interface {
	Verify(token string) (*models.Session, error)
}

// Guard decides whether a request reaches its handler.
type Guard struct {
	allow  *AllowList
	tokens TokenVerifier
	cookie string
}

// NewGuard returns a Guard reading the session from cookieName.
func NewGuard(allow *AllowList, tokens TokenVerifier, cookieName string) *Guard {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Guard{allow: allow, tokens: tokens, cookie: cookieName}
}

// CookieName returns the name of the session cookie.
func (g *Guard) CookieName() string { return g.cookie }

// Check evaluates r. Exempt routes are decided before any token is looked at.
func (g *Guard) Check(r *http.Request) Decision {
	if g.allow.Allows(r.Method, r.URL.Path) {
		return Decision{State: StateExempt}
	}
	token := g.extract(r)
	if token == "" {
		return Decision{State: StateRejected, Reason: ReasonMissing}
	}
	sess, err := g.tokens.Verify(token)
	switch {
	case err == nil:
		return Decision{State: StateAuthorized, Session: sess}
	case errors.Is(err, ErrTokenExpired):
		return Decision{State: StateRejected, Reason: ReasonExpired}
	case errors.Is(err, ErrTokenMissing):
		return Decision{State: StateRejected, Reason: ReasonMissing}
	default:
		return Decision{State: StateRejected, Reason: ReasonMalformed}
	}
}

// extract prefers the session cookie and falls back to a bearer token.
// An emptied cookie, as left by logout, counts as absent.
func (g *Guard) extract(r *http.Request) string {
	if c, err := r.Cookie(g.cookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
