package authz

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrPermissionDenied is returned when a user lacks the requested scope.
	ErrPermissionDenied = errors.New("authz: permission denied")
	// ErrUnauthenticated is returned for missing or invalid credentials.
	ErrUnauthenticated = errors.New("authz: invalid credentials")
)

// User is an API user. Permissions are glob patterns over scopes such as
// "events/CheckResult"; "*" grants everything.
type User struct {
	Name         string   `json:"name"`
	Permissions  []string `json:"permissions"`
	PasswordHash []byte   `json:"password_hash,omitempty"`
}

// Anonymous is the identity used when authentication is disabled.
var Anonymous = &User{Name: "anonymous", Permissions: []string{"*"}}

// Allows reports whether any permission of u matches scope.
func (u *User) Allows(scope string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == "*" || p == scope {
			return true
		}
		if ok, err := path.Match(p, scope); err == nil && ok {
			return true
		}
	}
	return false
}

// Check returns nil if user may access scope and a wrapped
// ErrPermissionDenied otherwise.
func Check(user *User, scope string) error {
	if user.Allows(scope) {
		return nil
	}
	name := "<nil>"
	if user != nil {
		name = user.Name
	}
	return fmt.Errorf("%w: user %q lacks %q", ErrPermissionDenied, name, scope)
}

// Scope helpers.
func EventsScope(eventType string) string  { return "events/" + eventType }
func PublishScope(eventType string) string { return "publish/" + eventType }

// QueuesListScope guards administrative queue listing.
const QueuesListScope = "queues/list"

// ValidatePermission rejects malformed glob patterns.
func ValidatePermission(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("authz: empty permission")
	}
	if _, err := path.Match(p, ""); err != nil {
		return fmt.Errorf("authz: permission %q: %w", p, err)
	}
	return nil
}

type ctxKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user attached by ContextWithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

// Authenticator verifies credentials against a Store. When disabled every
// request runs as Anonymous.
type Authenticator struct {
	store   *Store
	enabled bool
	realm   string
}

// NewAuthenticator returns an authenticator. store may be nil when
// enabled is false.
func NewAuthenticator(store *Store, enabled bool, realm string) *Authenticator {
	if realm == "" {
		realm = "evbus"
	}
	return &Authenticator{store: store, enabled: enabled, realm: realm}
}

// Enabled reports whether credentials are required.
func (a *Authenticator) Enabled() bool { return a.enabled }

// Realm is the HTTP Basic realm.
func (a *Authenticator) Realm() string { return a.realm }

// Authenticate resolves a user from basic credentials. present is false
// when the request carried none.
func (a *Authenticator) Authenticate(name, password string, present bool) (*User, error) {
	if !a.enabled {
		return Anonymous, nil
	}
	if !present || a.store == nil {
		return nil, ErrUnauthenticated
	}
	return a.store.Authenticate(name, password)
}
