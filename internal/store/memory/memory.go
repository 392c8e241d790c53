// Package memory is an in-process auth.Store used by tests and single-node
// deployments without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
)

// Store keeps entities in maps keyed by id. It enforces the same uniqueness
// and reference rules as the PostgreSQL schema.
type Store struct {
	mu      sync.RWMutex
	clients map[string]auth.Client
	perms   map[string]auth.Permission
	roles   map[string]auth.Role
	users   map[string]auth.User
	now     func() time.Time
}

var _ auth.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		clients: make(map[string]auth.Client),
		perms:   make(map[string]auth.Permission),
		roles:   make(map[string]auth.Role),
		users:   make(map[string]auth.User),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", auth.ErrNotFound, kind, id)
}

// Clients

func (s *Store) CreateClient(_ context.Context, c auth.Client) (auth.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkClientName(c.Name, ""); err != nil {
		return auth.Client{}, err
	}
	c.ID = ids.New()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id string) (auth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return auth.Client{}, notFound("client", id)
	}
	return c, nil
}

func (s *Store) FindClientByName(_ context.Context, name string) (auth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Name == name {
			return c, nil
		}
	}
	return auth.Client{}, notFound("client", name)
}

func (s *Store) ListClients(context.Context) ([]auth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateClient(_ context.Context, c auth.Client) (auth.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.clients[c.ID]
	if !ok {
		return auth.Client{}, notFound("client", c.ID)
	}
	if err := s.checkClientName(c.Name, c.ID); err != nil {
		return auth.Client{}, err
	}
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = s.now()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return notFound("client", id)
	}
	if u := s.usage(id); !u.Empty() {
		return fmt.Errorf("%w: client %s is still referenced", auth.ErrPrecondition, id)
	}
	delete(s.clients, id)
	return nil
}

func (s *Store) ClientUsage(_ context.Context, id string) (auth.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[id]; !ok {
		return auth.Usage{}, notFound("client", id)
	}
	return s.usage(id), nil
}

func (s *Store) usage(clientID string) auth.Usage {
	var u auth.Usage
	for _, usr := range s.users {
		if usr.ClientID == clientID {
			u.Users++
		}
	}
	for _, r := range s.roles {
		if r.ClientID == clientID {
			u.Roles++
		}
	}
	return u
}

func (s *Store) checkClientName(name, selfID string) error {
	for _, c := range s.clients {
		if c.Name == name && c.ID != selfID {
			return &auth.ConflictError{Field: "name", Value: name}
		}
	}
	return nil
}

// Permissions

func (s *Store) CreatePermission(_ context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPermissionName(p.Name, ""); err != nil {
		return auth.Permission{}, err
	}
	p.ID = ids.New()
	p.CreatedAt = s.now()
	s.perms[p.ID] = p
	return p, nil
}

func (s *Store) GetPermission(_ context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, notFound("permission", id)
	}
	return p, nil
}

func (s *Store) FindPermissionByName(_ context.Context, name string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.Name == name {
			return p, nil
		}
	}
	return auth.Permission{}, notFound("permission", name)
}

func (s *Store) ListPermissions(context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdatePermission(_ context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.perms[p.ID]
	if !ok {
		return auth.Permission{}, notFound("permission", p.ID)
	}
	if err := s.checkPermissionName(p.Name, p.ID); err != nil {
		return auth.Permission{}, err
	}
	p.CreatedAt = prev.CreatedAt
	s.perms[p.ID] = p
	return p, nil
}

// DeletePermission also detaches the permission from every role.
func (s *Store) DeletePermission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return notFound("permission", id)
	}
	delete(s.perms, id)
	for rid, r := range s.roles {
		if slices.Contains(r.PermissionIDs, id) {
			r.PermissionIDs = slices.DeleteFunc(slices.Clone(r.PermissionIDs), func(v string) bool { return v == id })
			s.roles[rid] = r
		}
	}
	return nil
}

func (s *Store) checkPermissionName(name, selfID string) error {
	for _, p := range s.perms {
		if p.Name == name && p.ID != selfID {
			return &auth.ConflictError{Field: "name", Value: name}
		}
	}
	return nil
}

// Roles

func (s *Store) CreateRole(_ context.Context, r auth.Role) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRole(r, ""); err != nil {
		return auth.Role{}, err
	}
	r.ID = ids.New()
	r.PermissionIDs = slices.Clone(r.PermissionIDs)
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.roles[r.ID] = r
	return cloneRole(r), nil
}

func (s *Store) GetRole(_ context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return auth.Role{}, notFound("role", id)
	}
	return cloneRole(r), nil
}

func (s *Store) ListRoles(context.Context) ([]auth.Role, error) {
	return s.filterRoles(func(auth.Role) bool { return true }), nil
}

func (s *Store) ListRolesByClient(_ context.Context, clientID string) ([]auth.Role, error) {
	return s.filterRoles(func(r auth.Role) bool { return r.ClientID == clientID }), nil
}

func (s *Store) FindRolesByName(_ context.Context, name string) ([]auth.Role, error) {
	return s.filterRoles(func(r auth.Role) bool { return r.Name == name }), nil
}

func (s *Store) UpdateRole(_ context.Context, r auth.Role) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.roles[r.ID]
	if !ok {
		return auth.Role{}, notFound("role", r.ID)
	}
	if err := s.checkRole(r, r.ID); err != nil {
		return auth.Role{}, err
	}
	r.PermissionIDs = slices.Clone(r.PermissionIDs)
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = s.now()
	s.roles[r.ID] = r
	return cloneRole(r), nil
}

// DeleteRole also removes the role from every user holding it.
func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return notFound("role", id)
	}
	delete(s.roles, id)
	for uid, u := range s.users {
		if slices.Contains(u.RoleIDs, id) {
			u.RoleIDs = slices.DeleteFunc(slices.Clone(u.RoleIDs), func(v string) bool { return v == id })
			s.users[uid] = u
		}
	}
	return nil
}

func (s *Store) filterRoles(keep func(auth.Role) bool) []auth.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0)
	for _, r := range s.roles {
		if keep(r) {
			out = append(out, cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}

func (s *Store) checkRole(r auth.Role, selfID string) error {
	if r.ClientID != "" {
		if _, ok := s.clients[r.ClientID]; !ok {
			return &auth.ReferenceError{Kind: "client", Ref: r.ClientID}
		}
	}
	for _, pid := range r.PermissionIDs {
		if _, ok := s.perms[pid]; !ok {
			return &auth.ReferenceError{Kind: "permission", Ref: pid}
		}
	}
	for _, other := range s.roles {
		if other.ID != selfID && other.Name == r.Name && other.ClientID == r.ClientID {
			return &auth.ConflictError{Field: "name", Value: r.Name}
		}
	}
	return nil
}

func cloneRole(r auth.Role) auth.Role {
	r.PermissionIDs = slices.Clone(r.PermissionIDs)
	if r.PermissionIDs == nil {
		r.PermissionIDs = []string{}
	}
	return r
}

// Users

func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUser(u, ""); err != nil {
		return auth.User{}, err
	}
	u.ID = ids.New()
	u.RoleIDs = slices.Clone(u.RoleIDs)
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, notFound("user", id)
	}
	return cloneUser(u), nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (auth.User, error) {
	return s.findUser(func(u auth.User) bool { return u.Username == username }, username)
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	return s.findUser(func(u auth.User) bool { return u.Email == email }, email)
}

func (s *Store) ListUsers(context.Context) ([]auth.User, error) {
	return s.filterUsers(func(auth.User) bool { return true }), nil
}

func (s *Store) ListUsersByClient(_ context.Context, clientID string) ([]auth.User, error) {
	return s.filterUsers(func(u auth.User) bool { return u.ClientID == clientID }), nil
}

func (s *Store) UpdateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[u.ID]
	if !ok {
		return auth.User{}, notFound("user", u.ID)
	}
	if err := s.checkUser(u, u.ID); err != nil {
		return auth.User{}, err
	}
	u.RoleIDs = slices.Clone(u.RoleIDs)
	u.CreatedAt = prev.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	return nil
}

func (s *Store) findUser(match func(auth.User) bool, ref string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return auth.User{}, notFound("user", ref)
}

func (s *Store) filterUsers(keep func(auth.User) bool) []auth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0)
	for _, u := range s.users {
		if keep(u) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *Store) checkUser(u auth.User, selfID string) error {
	if u.ClientID != "" {
		if _, ok := s.clients[u.ClientID]; !ok {
			return &auth.ReferenceError{Kind: "client", Ref: u.ClientID}
		}
	}
	for _, rid := range u.RoleIDs {
		if _, ok := s.roles[rid]; !ok {
			return &auth.ReferenceError{Kind: "role", Ref: rid}
		}
	}
	for _, other := range s.users {
		if other.ID == selfID {
			continue
		}
		if other.Username == u.Username {
			return &auth.ConflictError{Field: "username", Value: u.Username}
		}
		if other.Email == u.Email {
			return &auth.ConflictError{Field: "email", Value: u.Email}
		}
	}
	return nil
}

func cloneUser(u auth.User) auth.User {
	u.RoleIDs = slices.Clone(u.RoleIDs)
	if u.RoleIDs == nil {
		u.RoleIDs = []string{}
	}
	return u
}
