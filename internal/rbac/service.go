// Package rbac resolves role-based permissions. A principal's roles expand to
// a flattened set of permission names; the per-role expansion is memoized in
// process and invalidated whenever role-permission assignments change.
package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Service orchestrates RBAC operations.
type Service struct {
	repo Repository

	mu       sync.RWMutex
	closures map[int64][]string
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		closures: make(map[int64][]string),
	}
}

// RoleNames returns the names of the principal's assigned roles.
func (s *Service) RoleNames(ctx context.Context, principalID int64) ([]string, error) {
	roles, err := s.repo.RolesOfPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	return names, nil
}

// HasAnyRole reports whether the principal holds at least one of the named
// roles. Role names are matched exactly as stored.
func (s *Service) HasAnyRole(ctx context.Context, principalID int64, required ...string) (bool, error) {
	names, err := s.RoleNames(ctx, principalID)
	if err != nil {
		return false, err
	}
	held := make(map[string]struct{}, len(names))
	for _, n := range names {
		held[n] = struct{}{}
	}
	for _, want := range required {
		if _, ok := held[want]; ok {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the deduplicated permission names granted by
// the principal's roles.
func (s *Service) EffectivePermissions(ctx context.Context, principalID int64) ([]string, error) {
	roles, err := s.repo.RolesOfPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var perms []string
	for _, role := range roles {
		names, err := s.rolePermissionNames(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			perms = append(perms, name)
		}
	}
	return perms, nil
}

// HasPermission reports whether any of the principal's roles grants the named
// permission.
func (s *Service) HasPermission(ctx context.Context, principalID int64, permission string) (bool, error) {
	permission = strings.TrimSpace(strings.ToLower(permission))
	perms, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// rolePermissionNames expands one role, serving from the memoized closure
// when present.
func (s *Service) rolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	s.mu.RLock()
	cached, ok := s.closures[roleID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	perms, err := s.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = strings.ToLower(p.Name)
	}

	s.mu.Lock()
	s.closures[roleID] = names
	s.mu.Unlock()
	return names, nil
}

func (s *Service) invalidateRole(roleID int64) {
	s.mu.Lock()
	delete(s.closures, roleID)
	s.mu.Unlock()
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role by ID.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidateRole(id)
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a permission ensuring description is stored.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	return s.repo.EnsurePermission(ctx, strings.TrimSpace(name), strings.TrimSpace(description))
}

// SetRolePermissions replaces permissions for a role and drops the role's
// memoized closure.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidateRole(roleID)
	return nil
}

// AssignRole assigns a role to the given principal.
func (s *Service) AssignRole(ctx context.Context, principalID, roleID int64) error {
	return s.repo.AssignRole(ctx, principalID, roleID)
}

// RemoveRole removes a role from a principal.
func (s *Service) RemoveRole(ctx context.Context, principalID, roleID int64) error {
	return s.repo.RemoveRole(ctx, principalID, roleID)
}

// PermissionConditions returns the resource-condition descriptors attached to
// the named permission.
func (s *Service) PermissionConditions(ctx context.Context, permissionName string) ([]ResourceCondition, error) {
	return s.repo.PermissionConditions(ctx, permissionName)
}

// SetPermissionConditions replaces the condition descriptors of a permission.
func (s *Service) SetPermissionConditions(ctx context.Context, permissionID int64, conds []ResourceCondition) error {
	return s.repo.ReplacePermissionConditions(ctx, permissionID, conds)
}
