package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned for unknown user names.
var ErrUserNotFound = errors.New("authz: user not found")

const userPrefix = "user/"

func userKey(name string) []byte { return []byte(userPrefix + name) }

// Spec describes a user to create.
type Spec struct {
	Name        string   `json:"name" yaml:"name"`
	Password    string   `json:"password" yaml:"password"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// Store persists API users in Pebble.
type Store struct {
	db   *pebblestore.DB
	cost int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) StoreOption {
	return func(s *Store) { s.cost = cost }
}

// NewStore returns a user store over db.
func NewStore(db *pebblestore.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, cost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) build(spec Spec) (*User, []byte, error) {
	if spec.Name == "" || strings.ContainsAny(spec.Name, "/:") {
		return nil, nil, fmt.Errorf("authz: invalid user name %q", spec.Name)
	}
	if spec.Password == "" {
		return nil, nil, fmt.Errorf("authz: user %q: empty password", spec.Name)
	}
	for _, p := range spec.Permissions {
		if err := ValidatePermission(p); err != nil {
			return nil, nil, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("authz: hash password: %w", err)
	}
	u := &User{Name: spec.Name, Permissions: append([]string(nil), spec.Permissions...), PasswordHash: hash}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, nil, err
	}
	return u, data, nil
}

// Put creates or replaces a user.
func (s *Store) Put(spec Spec) (*User, error) {
	u, data, err := s.build(spec)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(userKey(u.Name), data); err != nil {
		return nil, fmt.Errorf("authz: store user %q: %w", u.Name, err)
	}
	return u, nil
}

// Seed creates or replaces all users in one atomic batch.
func (s *Store) Seed(ctx context.Context, specs []Spec) error {
	if len(specs) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, spec := range specs {
		u, data, err := s.build(spec)
		if err != nil {
			return err
		}
		if err := b.Set(userKey(u.Name), data, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// Get loads a user by name.
func (s *Store) Get(name string) (*User, error) {
	data, err := s.db.Get(userKey(name))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("authz: decode user %q: %w", name, err)
	}
	return &u, nil
}

// List returns every user ordered by name, without password hashes.
func (s *Store) List() ([]*User, error) {
	var out []*User
	err := s.db.ScanPrefix([]byte(userPrefix), func(_, v []byte) error {
		var u User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		u.PasswordHash = nil
		out = append(out, &u)
		return nil
	})
	return out, err
}

// Remove deletes a user. Removing an unknown user is ErrUserNotFound.
func (s *Store) Remove(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	return s.db.Delete(userKey(name))
}

// Authenticate checks a password and returns the user on success.
func (s *Store) Authenticate(name, password string) (*User, error) {
	u, err := s.Get(name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}
