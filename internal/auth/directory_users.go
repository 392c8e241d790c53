package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ListUsers returns every user to a super admin and the actor's own tenant
// users to anyone else.
func (d *Directory) ListUsers(ctx context.Context, actor Identity) ([]User, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return nil, err
	}
	if actor.IsSuperAdmin() {
		return d.store.ListUsers(ctx)
	}
	if actor.ClientID == "" {
		return nil, fmt.Errorf("%w: no tenant", ErrForbidden)
	}
	return d.store.ListUsersByClient(ctx, actor.ClientID)
}

// GetUser reports users outside the actor's scope as not found.
func (d *Directory) GetUser(ctx context.Context, actor Identity, id string) (User, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return User{}, err
	}
	u, err := d.user(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !InScope(actor, u.ClientID) {
		return User{}, missingRef("user", id)
	}
	return u, nil
}

// CreateUser creates a user. Non super admins always create into their own
// tenant. Without requested roles the user gets the USER role.
func (d *Directory) CreateUser(ctx context.Context, actor Identity, in UserInput) (User, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return User{}, err
	}
	u, err := d.newUser(ctx, in)
	if err != nil {
		return User{}, err
	}

	if actor.IsSuperAdmin() {
		if clientID := strings.TrimSpace(in.ClientID); clientID != "" {
			if _, err := d.client(ctx, clientID); err != nil {
				return User{}, err
			}
			u.ClientID = clientID
		}
	} else {
		if actor.ClientID == "" {
			return User{}, fmt.Errorf("%w: no tenant", ErrForbidden)
		}
		u.ClientID = actor.ClientID
	}

	roles := in.Roles
	if len(dedupeStrings(roles)) == 0 {
		roles = []string{RoleUser}
	}
	if u.RoleIDs, err = d.resolveRoleNames(ctx, actor, u.ClientID, roles); err != nil {
		return User{}, err
	}
	return d.store.CreateUser(ctx, u)
}

// UpdateUser applies the given changes. Only super admins may move a user to
// another tenant. A non-nil Roles replaces the assignment.
func (d *Directory) UpdateUser(ctx context.Context, actor Identity, id string, upd UserUpdate) (User, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return User{}, err
	}
	u, err := d.user(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !InScope(actor, u.ClientID) {
		return User{}, fmt.Errorf("%w: user %s is outside your tenant", ErrForbidden, id)
	}

	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := checkLength("username", username, 3, 50); err != nil {
			return User{}, err
		}
		if username != u.Username {
			if err := d.usernameFree(ctx, username, u.ID); err != nil {
				return User{}, err
			}
		}
		u.Username = username
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return User{}, err
		}
		if email != u.Email {
			if err := d.emailFree(ctx, email, u.ID); err != nil {
				return User{}, err
			}
		}
		u.Email = email
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	if upd.ClientID != nil {
		clientID := strings.TrimSpace(*upd.ClientID)
		if clientID != u.ClientID {
			if !actor.IsSuperAdmin() {
				return User{}, fmt.Errorf("%w: only %s may change a user's tenant", ErrForbidden, RoleSuperAdmin)
			}
			if clientID != "" {
				if _, err := d.client(ctx, clientID); err != nil {
					return User{}, err
				}
			}
			u.ClientID = clientID
		}
	}
	if upd.Roles != nil {
		if u.RoleIDs, err = d.resolveRoleNames(ctx, actor, u.ClientID, upd.Roles); err != nil {
			return User{}, err
		}
	}
	return d.store.UpdateUser(ctx, u)
}

func (d *Directory) DeleteUser(ctx context.Context, actor Identity, id string) error {
	if err := Authorize(actor, requireAdmin); err != nil {
		return err
	}
	u, err := d.user(ctx, id)
	if err != nil {
		return err
	}
	if !InScope(actor, u.ClientID) {
		return fmt.Errorf("%w: user %s is outside your tenant", ErrForbidden, id)
	}
	return d.store.DeleteUser(ctx, u.ID)
}

// newUser validates the common fields, checks username and email are free
// and hashes the password. Tenant and roles are left to the caller.
func (d *Directory) newUser(ctx context.Context, in UserInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	if err := checkLength("username", username, 3, 50); err != nil {
		return User{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	if in.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := d.usernameFree(ctx, username, ""); err != nil {
		return User{}, err
	}
	if err := d.emailFree(ctx, email, ""); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}, nil
}

func (d *Directory) user(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	u, err := d.store.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, missingRef("user", id)
	}
	return u, err
}

func (d *Directory) usernameFree(ctx context.Context, username, selfID string) error {
	existing, err := d.store.FindUserByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return conflict("username", username)
	}
	return nil
}

func (d *Directory) emailFree(ctx context.Context, email, selfID string) error {
	existing, err := d.store.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return conflict("email", email)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	return email, nil
}
