package bastion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/user"
)

// PermissionInfo is a catalog permission together with its canonical key.
type PermissionInfo struct {
	ID          id.PermissionID `json:"id"`
	Key         string          `json:"key"`
	ModuleKey   string          `json:"module_key"`
	Action      string          `json:"action"`
	Description string          `json:"description,omitempty"`
}

// ──────────────────────────────────────────────────
// Roles held by users
// ──────────────────────────────────────────────────

// GetUserRoles returns the names of the roles the user holds in the
// company, sorted. It is meant for display, not for decisions.
func (e *Engine) GetUserRoles(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	roles, err := e.store.ListRolesForUser(ctx, companyID, userID)
	if err != nil {
		return nil, fmt.Errorf("bastion: user roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// ListCompanyRoles returns every role of the company for role pickers.
func (e *Engine) ListCompanyRoles(ctx context.Context, companyID id.CompanyID) ([]RoleSummary, error) {
	roles, err := e.store.ListRoles(ctx, &role.ListFilter{CompanyID: companyID})
	if err != nil {
		return nil, fmt.Errorf("bastion: list company roles: %w", err)
	}
	out := make([]RoleSummary, len(roles))
	for i, r := range roles {
		out[i] = RoleSummary{ID: r.ID, Name: r.Name, Description: r.Description}
	}
	return out, nil
}

// AssignRole grants a company role to a company user. Granting a role
// the user already holds is a no-op.
func (e *Engine) AssignRole(ctx context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	if _, err := e.companyUser(ctx, companyID, userID); err != nil {
		return err
	}
	a := &assignment.Assignment{CompanyID: companyID, UserID: userID, RoleID: roleID}
	if err := e.store.AssignRole(ctx, a); err != nil {
		return fmt.Errorf("bastion: assign role: %w", err)
	}
	e.invalidateUser(ctx, companyID, userID)
	e.plugins.EmitRoleAssigned(ctx, a)
	e.Audit(ctx, companyID, actorFrom(ctx), audit.ActionRoleAssigned, map[string]any{
		"user_id": userID.String(),
		"role_id": roleID.String(),
	})
	return nil
}

// UnassignRole takes a role away from a user.
func (e *Engine) UnassignRole(ctx context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	if err := e.store.UnassignRole(ctx, companyID, userID, roleID); err != nil {
		return fmt.Errorf("bastion: unassign role: %w", err)
	}
	e.invalidateUser(ctx, companyID, userID)
	e.plugins.EmitRoleUnassigned(ctx, &assignment.Assignment{CompanyID: companyID, UserID: userID, RoleID: roleID})
	e.Audit(ctx, companyID, actorFrom(ctx), audit.ActionRoleUnassigned, map[string]any{
		"user_id": userID.String(),
		"role_id": roleID.String(),
	})
	return nil
}

// ──────────────────────────────────────────────────
// Role administration
// ──────────────────────────────────────────────────

// GetRole returns a role of the company.
func (e *Engine) GetRole(ctx context.Context, companyID id.CompanyID, roleID id.RoleID) (*role.Role, error) {
	return e.companyRole(ctx, companyID, roleID)
}

// CreateRole persists a new role in r.CompanyID. Names are trimmed and
// must be unique within the company.
func (e *Engine) CreateRole(ctx context.Context, r *role.Role) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := e.store.GetCompany(ctx, r.CompanyID); err != nil {
		return translate(err, ErrCompanyNotFound, nil)
	}
	if r.ID.IsNil() {
		r.ID = id.NewRoleID()
	}
	if err := e.store.CreateRole(ctx, r); err != nil {
		return translate(err, nil, ErrDuplicateRole)
	}
	e.plugins.EmitRoleCreated(ctx, r)
	e.Audit(ctx, r.CompanyID, actorFrom(ctx), audit.ActionRoleCreated, map[string]any{
		"role_id": r.ID.String(),
		"name":    r.Name,
	})
	return nil
}

// UpdateRole renames or re-describes a role.
func (e *Engine) UpdateRole(ctx context.Context, r *role.Role) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := e.companyRole(ctx, r.CompanyID, r.ID); err != nil {
		return err
	}
	if err := e.store.UpdateRole(ctx, r); err != nil {
		return translate(err, ErrRoleNotFound, ErrDuplicateRole)
	}
	e.plugins.EmitRoleUpdated(ctx, r)
	e.Audit(ctx, r.CompanyID, actorFrom(ctx), audit.ActionRoleUpdated, map[string]any{
		"role_id": r.ID.String(),
		"name":    r.Name,
	})
	return nil
}

// DeleteRole removes a role, its grants and every assignment of it.
func (e *Engine) DeleteRole(ctx context.Context, companyID id.CompanyID, roleID id.RoleID) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	e.invalidateCompany(ctx, companyID)
	e.plugins.EmitRoleDeleted(ctx, roleID)
	e.Audit(ctx, companyID, actorFrom(ctx), audit.ActionRoleDeleted, map[string]any{
		"role_id": roleID.String(),
	})
	return nil
}

// RolePermissions returns the canonical keys granted by a role, sorted.
func (e *Engine) RolePermissions(ctx context.Context, companyID id.CompanyID, roleID id.RoleID) ([]string, error) {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return nil, err
	}
	perms, err := e.store.ListPermissionsByRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: role permissions: %w", err)
	}
	keys, err := e.keysFor(ctx, perms)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

// SetRolePermissions replaces a role's grants with the given canonical
// keys. Every key must exist in the catalog.
func (e *Engine) SetRolePermissions(ctx context.Context, companyID id.CompanyID, roleID id.RoleID, keys []string) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	permIDs, err := e.ResolvePermissionKeys(ctx, keys)
	if err != nil {
		return err
	}
	if err := e.store.SetRolePermissions(ctx, roleID, permIDs); err != nil {
		return fmt.Errorf("bastion: set role permissions: %w", err)
	}
	e.rolePermissionsChanged(ctx, companyID, roleID, map[string]any{"permissions": keys})
	return nil
}

// AttachPermission adds one catalog permission to a role.
func (e *Engine) AttachPermission(ctx context.Context, companyID id.CompanyID, roleID id.RoleID, permID id.PermissionID) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	if _, err := e.store.GetPermission(ctx, permID); err != nil {
		return translate(err, ErrPermissionNotFound, nil)
	}
	if err := e.store.AttachPermission(ctx, roleID, permID); err != nil {
		return fmt.Errorf("bastion: attach permission: %w", err)
	}
	e.rolePermissionsChanged(ctx, companyID, roleID, map[string]any{"attached": permID.String()})
	return nil
}

// DetachPermission removes one permission from a role.
func (e *Engine) DetachPermission(ctx context.Context, companyID id.CompanyID, roleID id.RoleID, permID id.PermissionID) error {
	if _, err := e.companyRole(ctx, companyID, roleID); err != nil {
		return err
	}
	if err := e.store.DetachPermission(ctx, roleID, permID); err != nil {
		return fmt.Errorf("bastion: detach permission: %w", err)
	}
	e.rolePermissionsChanged(ctx, companyID, roleID, map[string]any{"detached": permID.String()})
	return nil
}

func (e *Engine) rolePermissionsChanged(ctx context.Context, companyID id.CompanyID, roleID id.RoleID, meta map[string]any) {
	e.invalidateCompany(ctx, companyID)
	e.plugins.EmitRolePermissionsChanged(ctx, roleID)
	meta["role_id"] = roleID.String()
	e.Audit(ctx, companyID, actorFrom(ctx), audit.ActionRoleGrants, meta)
}

// ──────────────────────────────────────────────────
// Catalog lookups
// ──────────────────────────────────────────────────

// ListCatalogModules returns the modules visible to a company: global
// ones and the ones provisioned for it.
func (e *Engine) ListCatalogModules(ctx context.Context, companyID id.CompanyID) ([]*module.Module, error) {
	mods, err := e.store.ListModules(ctx, &module.ListFilter{CompanyID: companyID})
	if err != nil {
		return nil, fmt.Errorf("bastion: list modules: %w", err)
	}
	return mods, nil
}

// ListPermissionCatalog returns every permission of the modules visible
// to the company, with canonical keys, sorted by key.
func (e *Engine) ListPermissionCatalog(ctx context.Context, companyID id.CompanyID) ([]PermissionInfo, error) {
	mods, err := e.ListCatalogModules(ctx, companyID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*module.Module, len(mods))
	for _, m := range mods {
		byID[m.ID.String()] = m
	}
	perms, err := e.store.ListPermissions(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bastion: list permissions: %w", err)
	}
	out := make([]PermissionInfo, 0, len(perms))
	for _, p := range perms {
		m, ok := byID[p.ModuleID.String()]
		if !ok {
			continue
		}
		out = append(out, PermissionInfo{
			ID:          p.ID,
			Key:         permission.Key(m.Key, p.Action),
			ModuleKey:   m.Key,
			Action:      p.Action,
			Description: p.Description,
		})
	}
	slices.SortFunc(out, func(a, b PermissionInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// ResolvePermissionKeys maps canonical keys to catalog permission ids.
// Duplicate keys are collapsed; an unknown key fails the whole call.
func (e *Engine) ResolvePermissionKeys(ctx context.Context, keys []string) ([]id.PermissionID, error) {
	modules := make(map[string]*module.Module)
	seen := make(map[string]struct{}, len(keys))
	out := make([]id.PermissionID, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		modKey, action := permission.SplitKey(key)
		if modKey == "" || action == "" {
			return nil, fmt.Errorf("%w: malformed permission key %q", ErrInvalidInput, key)
		}
		m, ok := modules[modKey]
		if !ok {
			var err error
			m, err = e.store.GetModuleByKey(ctx, modKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", translate(err, ErrPermissionNotFound, nil), key)
			}
			modules[modKey] = m
		}
		p, err := e.store.GetPermissionByAction(ctx, m.ID, action)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", translate(err, ErrPermissionNotFound, nil), key)
		}
		out = append(out, p.ID)
	}
	return out, nil
}

// keysFor renders permissions as canonical keys, dropping any whose
// module is gone.
func (e *Engine) keysFor(ctx context.Context, perms []*permission.Permission) ([]string, error) {
	if len(perms) == 0 {
		return []string{}, nil
	}
	ids := make([]id.ModuleID, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ModuleID)
	}
	mods, err := e.store.ListModulesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("bastion: permission modules: %w", err)
	}
	byID := make(map[string]string, len(mods))
	for _, m := range mods {
		byID[m.ID.String()] = m.Key
	}
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		if mk, ok := byID[p.ModuleID.String()]; ok {
			keys = append(keys, permission.Key(mk, p.Action))
		}
	}
	return keys, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// companyRole loads a role and hides roles of other companies.
func (e *Engine) companyRole(ctx context.Context, companyID id.CompanyID, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, translate(err, ErrRoleNotFound, nil)
	}
	if r.CompanyID != companyID {
		return nil, ErrRoleNotFound
	}
	return r, nil
}

// companyUser loads a user and hides users of other companies.
func (e *Engine) companyUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*user.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err, ErrUserNotFound, nil)
	}
	if u.CompanyID != companyID {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (e *Engine) invalidateUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) {
	if e.cache != nil {
		e.cache.InvalidateUser(ctx, companyID, userID)
	}
}

// InvalidateCompany drops cached permission sets of every user in the
// company. Call it after changing grants directly through the store.
func (e *Engine) InvalidateCompany(ctx context.Context, companyID id.CompanyID) {
	e.invalidateCompany(ctx, companyID)
}

func (e *Engine) invalidateCompany(ctx context.Context, companyID id.CompanyID) {
	if e.cache != nil {
		e.cache.InvalidateCompany(ctx, companyID)
	}
}

// translate maps store sentinels onto engine errors. A nil target keeps
// the store error wrapped as is.
func translate(err, notFound, conflict error) error {
	switch {
	case notFound != nil && errors.Is(err, store.ErrNotFound):
		return notFound
	case conflict != nil && errors.Is(err, store.ErrConflict):
		return conflict
	default:
		return fmt.Errorf("bastion: %w", err)
	}
}

// actorFrom returns the acting user recorded in audit entries.
func actorFrom(ctx context.Context) id.UserID {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.UserID
	}
	return id.Nil
}
