// Package memory provides an in-memory implementation of the Bastion
// composite store. It is intended for tests, development and the
// standalone CLI server.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/refreshtoken"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/user"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory store for all Bastion entities.
type Store struct {
	mu sync.RWMutex

	companies       map[string]*company.Company
	modules         map[string]*module.Module
	permissions     map[string]*permission.Permission
	roles           map[string]*role.Role
	rolePermissions map[string]map[string]struct{} // roleID -> set of permIDs
	assignments     map[assignmentKey]*assignment.Assignment
	users           map[string]*user.User
	refreshTokens   map[string]*refreshtoken.Token
	auditEntries    map[string]*audit.Entry

	now func() time.Time
}

type assignmentKey struct {
	userID string
	roleID string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		companies:       make(map[string]*company.Company),
		modules:         make(map[string]*module.Module),
		permissions:     make(map[string]*permission.Permission),
		roles:           make(map[string]*role.Role),
		rolePermissions: make(map[string]map[string]struct{}),
		assignments:     make(map[assignmentKey]*assignment.Assignment),
		users:           make(map[string]*user.User),
		refreshTokens:   make(map[string]*refreshtoken.Token),
		auditEntries:    make(map[string]*audit.Entry),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Catalog seeding
// ──────────────────────────────────────────────────

func (s *Store) SeedCatalog(_ context.Context, modules []*module.Module, perms []*permission.Permission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.modules) > 0 {
		return false, nil
	}

	// Validate everything before touching the maps so a bad catalog
	// leaves the store empty.
	keys := make(map[string]struct{}, len(modules))
	ids := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if _, dup := keys[m.Key]; dup {
			return false, fmt.Errorf("bastion: seed module %q: %w", m.Key, store.ErrConflict)
		}
		if m.ParentID != nil {
			if _, ok := ids[m.ParentID.String()]; !ok {
				return false, fmt.Errorf("bastion: seed module %q: parent %s: %w", m.Key, m.ParentID, store.ErrNotFound)
			}
		}
		keys[m.Key] = struct{}{}
		ids[m.ID.String()] = struct{}{}
	}
	actions := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := ids[p.ModuleID.String()]; !ok {
			return false, fmt.Errorf("bastion: seed permission %q: module %s: %w", p.Action, p.ModuleID, store.ErrNotFound)
		}
		k := p.ModuleID.String() + "|" + p.Action
		if _, dup := actions[k]; dup {
			return false, fmt.Errorf("bastion: seed permission %q: %w", p.Action, store.ErrConflict)
		}
		actions[k] = struct{}{}
	}

	t := s.now()
	for _, m := range modules {
		m.CreatedAt, m.UpdatedAt = t, t
		s.modules[m.ID.String()] = copyModule(m)
	}
	for _, p := range perms {
		p.CreatedAt = t
		s.permissions[p.ID.String()] = copyPermission(p)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Company Store
// ──────────────────────────────────────────────────

func (s *Store) CreateCompany(_ context.Context, c *company.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies {
		if existing.Name == c.Name {
			return fmt.Errorf("company %q: %w", c.Name, store.ErrConflict)
		}
	}
	t := s.now()
	c.CreatedAt, c.UpdatedAt = t, t
	cp := *c
	s.companies[c.ID.String()] = &cp
	return nil
}

func (s *Store) GetCompany(_ context.Context, companyID id.CompanyID) (*company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID.String()]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", companyID, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCompanyByName(_ context.Context, name string) (*company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("company %q: %w", name, store.ErrNotFound)
}

func (s *Store) ListCompanies(_ context.Context, filter *company.ListFilter) ([]*company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*company.Company, 0, len(s.companies))
	for _, c := range s.companies {
		cp := *c
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *company.Company) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

// ──────────────────────────────────────────────────
// Module Store
// ──────────────────────────────────────────────────

func (s *Store) CreateModule(_ context.Context, m *module.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.modules {
		if existing.Key == m.Key {
			return fmt.Errorf("module %q: %w", m.Key, store.ErrConflict)
		}
	}
	t := s.now()
	m.CreatedAt, m.UpdatedAt = t, t
	s.modules[m.ID.String()] = copyModule(m)
	return nil
}

func (s *Store) GetModule(_ context.Context, moduleID id.ModuleID) (*module.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[moduleID.String()]
	if !ok {
		return nil, fmt.Errorf("module %s: %w", moduleID, store.ErrNotFound)
	}
	return copyModule(m), nil
}

func (s *Store) GetModuleByKey(_ context.Context, key string) (*module.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.modules {
		if m.Key == key {
			return copyModule(m), nil
		}
	}
	return nil, fmt.Errorf("module %q: %w", key, store.ErrNotFound)
}

func (s *Store) UpdateModule(_ context.Context, m *module.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[m.ID.String()]; !ok {
		return fmt.Errorf("module %s: %w", m.ID, store.ErrNotFound)
	}
	m.UpdatedAt = s.now()
	s.modules[m.ID.String()] = copyModule(m)
	return nil
}

func (s *Store) ListModules(_ context.Context, filter *module.ListFilter) ([]*module.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*module.Module, 0, len(s.modules))
	for _, m := range s.modules {
		if filter != nil && !filter.CompanyID.IsNil() && !visibleTo(m, filter.CompanyID) {
			continue
		}
		result = append(result, copyModule(m))
	}
	slices.SortFunc(result, func(a, b *module.Module) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountModules(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.modules)), nil
}

func (s *Store) ListModulesByKeys(_ context.Context, companyID id.CompanyID, keys []string) ([]*module.Module, error) {
	if len(keys) == 0 {
		return []*module.Module{}, nil
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*module.Module, 0, len(keys))
	for _, m := range s.modules {
		if _, ok := want[m.Key]; ok && visibleTo(m, companyID) {
			result = append(result, copyModule(m))
		}
	}
	return result, nil
}

func (s *Store) ListModulesByIDs(_ context.Context, ids []id.ModuleID) ([]*module.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*module.Module, 0, len(ids))
	for _, mid := range ids {
		if m, ok := s.modules[mid.String()]; ok {
			result = append(result, copyModule(m))
		}
	}
	return result, nil
}

// visibleTo reports whether a module is global or owned by companyID.
func visibleTo(m *module.Module, companyID id.CompanyID) bool {
	return m.CompanyID == nil || *m.CompanyID == companyID
}

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.ModuleID == p.ModuleID && existing.Action == p.Action {
			return fmt.Errorf("permission %q: %w", p.Action, store.ErrConflict)
		}
	}
	p.CreatedAt = s.now()
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permID.String()]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) GetPermissionByAction(_ context.Context, moduleID id.ModuleID, action string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.ModuleID == moduleID && p.Action == action {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("permission %s/%q: %w", moduleID, action, store.ErrNotFound)
}

func (s *Store) DeletePermission(_ context.Context, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, permID.String())
	for _, set := range s.rolePermissions {
		delete(set, permID.String())
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if filter != nil {
			if !filter.ModuleID.IsNil() && p.ModuleID != filter.ModuleID {
				continue
			}
			if filter.Action != "" && p.Action != filter.Action {
				continue
			}
		}
		result = append(result, copyPermission(p))
	}
	slices.SortFunc(result, func(a, b *permission.Permission) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	var f *permission.ListFilter
	if filter != nil {
		cp := *filter
		cp.Limit, cp.Offset = 0, 0
		f = &cp
	}
	list, err := s.ListPermissions(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListPermissionsByRole(_ context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.rolePermissions[roleID.String()]
	result := make([]*permission.Permission, 0, len(set))
	for pid := range set {
		if p, ok := s.permissions[pid]; ok {
			result = append(result, copyPermission(p))
		}
	}
	slices.SortFunc(result, func(a, b *permission.Permission) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return result, nil
}

func (s *Store) ListPermissionKeysForUser(_ context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for k, a := range s.assignments {
		if k.userID != userID.String() || a.CompanyID != companyID {
			continue
		}
		r, ok := s.roles[k.roleID]
		if !ok || r.CompanyID != companyID {
			continue
		}
		for pid := range s.rolePermissions[k.roleID] {
			p, ok := s.permissions[pid]
			if !ok {
				continue
			}
			m, ok := s.modules[p.ModuleID.String()]
			if !ok {
				continue
			}
			key := permission.Key(m.Key, p.Action)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.CompanyID == r.CompanyID && existing.Name == r.Name {
			return fmt.Errorf("role %q: %w", r.Name, store.ErrConflict)
		}
	}
	t := s.now()
	r.CreatedAt, r.UpdatedAt = t, t
	cp := *r
	s.roles[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoleByName(_ context.Context, companyID id.CompanyID, name string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.CompanyID == companyID && r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("role %q: %w", name, store.ErrNotFound)
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	for _, existing := range s.roles {
		if existing.ID != r.ID && existing.CompanyID == r.CompanyID && existing.Name == r.Name {
			return fmt.Errorf("role %q: %w", r.Name, store.ErrConflict)
		}
	}
	r.UpdatedAt = s.now()
	cp := *r
	s.roles[r.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID.String())
	delete(s.rolePermissions, roleID.String())
	maps.DeleteFunc(s.assignments, func(k assignmentKey, _ *assignment.Assignment) bool {
		return k.roleID == roleID.String()
	})
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if !filter.CompanyID.IsNil() && r.CompanyID != filter.CompanyID {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *role.Role) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	var f *role.ListFilter
	if filter != nil {
		cp := *filter
		cp.Limit, cp.Offset = 0, 0
		f = &cp
	}
	list, err := s.ListRoles(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListRolesForUser(_ context.Context, companyID id.CompanyID, userID id.UserID) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0)
	for k, a := range s.assignments {
		if k.userID != userID.String() || a.CompanyID != companyID {
			continue
		}
		if r, ok := s.roles[k.roleID]; ok && r.CompanyID == companyID {
			cp := *r
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *role.Role) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) ListRolePermissions(_ context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.rolePermissions[roleID.String()]
	result := make([]id.PermissionID, 0, len(set))
	for pid := range set {
		parsed, err := id.ParsePermissionID(pid)
		if err == nil {
			result = append(result, parsed)
		}
	}
	return result, nil
}

func (s *Store) AttachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rolePermissions[roleID.String()]
	if !ok {
		set = make(map[string]struct{})
		s.rolePermissions[roleID.String()] = set
	}
	set[permID.String()] = struct{}{}
	return nil
}

func (s *Store) DetachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.rolePermissions[roleID.String()]; ok {
		delete(set, permID.String())
	}
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(permIDs))
	for _, pid := range permIDs {
		set[pid.String()] = struct{}{}
	}
	s.rolePermissions[roleID.String()] = set
	return nil
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) AssignRole(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := assignmentKey{userID: a.UserID.String(), roleID: a.RoleID.String()}
	if _, ok := s.assignments[k]; ok {
		return nil
	}
	a.CreatedAt = s.now()
	cp := *a
	s.assignments[k] = &cp
	return nil
}

func (s *Store) UnassignRole(_ context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := assignmentKey{userID: userID.String(), roleID: roleID.String()}
	if a, ok := s.assignments[k]; ok && a.CompanyID == companyID {
		delete(s.assignments, k)
	}
	return nil
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if filter != nil {
			if !filter.CompanyID.IsNil() && a.CompanyID != filter.CompanyID {
				continue
			}
			if !filter.UserID.IsNil() && a.UserID != filter.UserID {
				continue
			}
			if !filter.RoleID.IsNil() && a.RoleID != filter.RoleID {
				continue
			}
		}
		cp := *a
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *assignment.Assignment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RoleID.String(), b.RoleID.String())
	})
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	var f *assignment.ListFilter
	if filter != nil {
		cp := *filter
		cp.Limit, cp.Offset = 0, 0
		f = &cp
	}
	list, err := s.ListAssignments(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteAssignmentsByUser(_ context.Context, companyID id.CompanyID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.assignments, func(k assignmentKey, a *assignment.Assignment) bool {
		return k.userID == userID.String() && a.CompanyID == companyID
	})
	return nil
}

// ──────────────────────────────────────────────────
// User Store
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %q: %w", u.Email, store.ErrConflict)
		}
	}
	t := s.now()
	u.CreatedAt, u.UpdatedAt = t, t
	cp := *u
	s.users[u.ID.String()] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID.String()]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", email, store.ErrNotFound)
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID.String()]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, store.ErrNotFound)
	}
	for _, existing := range s.users {
		if existing.ID != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %q: %w", u.Email, store.ErrConflict)
		}
	}
	u.UpdatedAt = s.now()
	cp := *u
	s.users[u.ID.String()] = &cp
	return nil
}

func (s *Store) ListUsers(_ context.Context, filter *user.ListFilter) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		if filter != nil {
			if !filter.CompanyID.IsNil() && u.CompanyID != filter.CompanyID {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
			if filter.Search != "" {
				q := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
					continue
				}
			}
		}
		cp := *u
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *user.User) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountUsers(ctx context.Context, filter *user.ListFilter) (int64, error) {
	var f *user.ListFilter
	if filter != nil {
		cp := *filter
		cp.Limit, cp.Offset = 0, 0
		f = &cp
	}
	list, err := s.ListUsers(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Refresh token Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRefreshToken(_ context.Context, t *refreshtoken.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.CreatedAt = s.now()
	cp := *t
	s.refreshTokens[t.ID.String()] = &cp
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, userID id.UserID, tokenHash string) (*refreshtoken.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.findToken(userID, tokenHash); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, fmt.Errorf("refresh token: %w", store.ErrNotFound)
}

func (s *Store) ReplaceRefreshToken(_ context.Context, userID id.UserID, oldHash string, next *refreshtoken.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.findToken(userID, oldHash)
	if old == nil {
		return fmt.Errorf("refresh token: %w", store.ErrNotFound)
	}
	delete(s.refreshTokens, old.ID.String())
	next.CreatedAt = s.now()
	cp := *next
	s.refreshTokens[next.ID.String()] = &cp
	return nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, userID id.UserID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findToken(userID, tokenHash); t != nil {
		delete(s.refreshTokens, t.ID.String())
	}
	return nil
}

func (s *Store) RevokeUserRefreshTokens(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.refreshTokens, func(_ string, t *refreshtoken.Token) bool {
		return t.UserID == userID
	})
	return nil
}

func (s *Store) ListActiveRefreshTokens(_ context.Context, userID id.UserID, now time.Time) ([]*refreshtoken.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*refreshtoken.Token, 0)
	for _, t := range s.refreshTokens {
		if t.UserID == userID && !t.Expired(now) {
			cp := *t
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *refreshtoken.Token) int { return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return result, nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.refreshTokens)
	maps.DeleteFunc(s.refreshTokens, func(_ string, t *refreshtoken.Token) bool {
		return t.Expired(now)
	})
	return int64(before - len(s.refreshTokens)), nil
}

// findToken must be called with s.mu held.
func (s *Store) findToken(userID id.UserID, tokenHash string) *refreshtoken.Token {
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.TokenHash == tokenHash {
			return t
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.auditEntries[e.ID.String()] = copyAuditEntry(e)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*audit.Entry, 0, len(s.auditEntries))
	for _, e := range s.auditEntries {
		if filter != nil && !matchAudit(e, filter) {
			continue
		}
		result = append(result, copyAuditEntry(e))
	}
	slices.SortFunc(result, func(a, b *audit.Entry) int { return byCreated(b.CreatedAt, a.CreatedAt, b.ID, a.ID) })
	if filter == nil {
		return result, nil
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountAuditEntries(_ context.Context, filter *audit.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.auditEntries {
		if filter == nil || matchAudit(e, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeAuditEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.auditEntries)
	maps.DeleteFunc(s.auditEntries, func(_ string, e *audit.Entry) bool {
		return e.CreatedAt.Before(before)
	})
	return int64(n - len(s.auditEntries)), nil
}

func matchAudit(e *audit.Entry, f *audit.QueryFilter) bool {
	if !f.CompanyID.IsNil() && e.CompanyID != f.CompanyID {
		return false
	}
	if !f.UserID.IsNil() && (e.UserID == nil || *e.UserID != f.UserID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.After != nil && !e.CreatedAt.After(*f.After) {
		return false
	}
	if f.Before != nil && !e.CreatedAt.Before(*f.Before) {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyModule(m *module.Module) *module.Module {
	cp := *m
	if m.CompanyID != nil {
		c := *m.CompanyID
		cp.CompanyID = &c
	}
	if m.ParentID != nil {
		p := *m.ParentID
		cp.ParentID = &p
	}
	return &cp
}

func copyPermission(p *permission.Permission) *permission.Permission {
	cp := *p
	return &cp
}

func copyAuditEntry(e *audit.Entry) *audit.Entry {
	cp := *e
	if e.UserID != nil {
		u := *e.UserID
		cp.UserID = &u
	}
	if e.Metadata != nil {
		cp.Metadata = maps.Clone(e.Metadata)
	}
	return &cp
}

// byCreated orders by creation time, then id, so listings are stable.
func byCreated(ta, tb time.Time, a, b id.ID) int {
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return cmp.Compare(a.String(), b.String())
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return []*T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
