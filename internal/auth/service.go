package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service authenticates users and hands out sessions on top of the store,
// the token service and the directory.
type Service struct {
	store  Store
	tokens *TokenService
	dir    *Directory
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
	Identity  Identity
}

func NewService(store Store, tokens *TokenService) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	dir, err := NewDirectory(store)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, tokens: tokens, dir: dir}, nil
}

func (s *Service) Directory() *Directory { return s.dir }

func (s *Service) Tokens() *TokenService { return s.tokens }

// Login verifies the credentials and issues a session token. Unknown users
// and wrong passwords fail identically with ErrBadCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrBadCredentials
	}
	u, err := s.store.FindUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		burnPasswordCheck(password)
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, ErrBadCredentials
	}
	id, err := s.IdentityFor(ctx, u)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(id)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: u, Identity: id}, nil
}

// Register creates a user without an acting identity. Requested roles are
// ignored; the user always receives the USER role resolved for its tenant.
func (s *Service) Register(ctx context.Context, in UserInput) (User, error) {
	u, err := s.dir.newUser(ctx, in)
	if err != nil {
		return User{}, err
	}
	if clientID := strings.TrimSpace(in.ClientID); clientID != "" {
		if _, err := s.dir.client(ctx, clientID); err != nil {
			return User{}, err
		}
		u.ClientID = clientID
	}
	role, err := s.dir.resolveGlobalRole(ctx, RoleUser, u.ClientID)
	if err != nil {
		return User{}, err
	}
	u.RoleIDs = []string{role.ID}
	return s.store.CreateUser(ctx, u)
}

// Logout revokes the token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Authenticate validates token and rebuilds the identity from the store so
// role changes take effect on the next request. A token for a user that no
// longer exists is invalid.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	username, err := s.tokens.Subject(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	u, err := s.store.FindUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, err
	}
	return s.IdentityFor(ctx, u)
}

// IdentityFor flattens the user's roles and their permissions into an identity.
// Dangling role ids are skipped.
func (s *Service) IdentityFor(ctx context.Context, u User) (Identity, error) {
	roles := make([]Role, 0, len(u.RoleIDs))
	for _, rid := range u.RoleIDs {
		r, err := s.store.GetRole(ctx, rid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Identity{}, fmt.Errorf("load role %s: %w", rid, err)
		}
		roles = append(roles, r)
	}
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("load permissions: %w", err)
	}
	return NewIdentity(u, roles, perms), nil
}
