// Package postgres provides a PostgreSQL implementation of the Bastion
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

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

// Store is a PostgreSQL implementation of the composite Bastion store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("bastion: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bastion: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	switch {
	case isNoRows(err):
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("bastion: %s: %w", op, store.ErrConflict)
	default:
		return fmt.Errorf("bastion: %s: %w", op, err)
	}
}

func mustAffect(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: %s rows: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Catalog seeding
// ──────────────────────────────────────────────────

func (s *Store) SeedCatalog(ctx context.Context, modules []*module.Module, perms []*permission.Permission) (bool, error) {
	n, err := s.CountModules(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	t := time.Now().UTC()
	for _, m := range modules {
		m.CreatedAt, m.UpdatedAt = t, t
		if _, err := tx.NewInsert(moduleToModel(m)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				// A concurrent seeder won the race.
				return false, nil
			}
			return false, fmt.Errorf("bastion: seed module %q: %w", m.Key, err)
		}
	}
	if len(perms) > 0 {
		models := make([]permissionModel, len(perms))
		for i, p := range perms {
			p.CreatedAt = t
			models[i] = *permissionToModel(p)
		}
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return false, classify("seed permissions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("bastion: commit tx: %w", err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Company operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCompany(ctx context.Context, c *company.Company) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if _, err := s.pgdb.NewInsert(companyToModel(c)).Exec(ctx); err != nil {
		return classify("create company", err)
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, companyID id.CompanyID) (*company.Company, error) {
	m := new(companyModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", companyID.String()).Scan(ctx); err != nil {
		return nil, classify("get company", err)
	}
	return companyFromModel(m), nil
}

func (s *Store) GetCompanyByName(ctx context.Context, name string) (*company.Company, error) {
	m := new(companyModel)
	if err := s.pgdb.NewSelect(m).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, classify("get company by name", err)
	}
	return companyFromModel(m), nil
}

func (s *Store) ListCompanies(ctx context.Context, filter *company.ListFilter) ([]*company.Company, error) {
	var models []companyModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list companies: %w", err)
	}
	result := make([]*company.Company, len(models))
	for i := range models {
		result[i] = companyFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Module operations
// ──────────────────────────────────────────────────

func (s *Store) CreateModule(ctx context.Context, m *module.Module) error {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if _, err := s.pgdb.NewInsert(moduleToModel(m)).Exec(ctx); err != nil {
		return classify("create module", err)
	}
	return nil
}

func (s *Store) GetModule(ctx context.Context, moduleID id.ModuleID) (*module.Module, error) {
	m := new(moduleModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", moduleID.String()).Scan(ctx); err != nil {
		return nil, classify("get module", err)
	}
	return moduleFromModel(m), nil
}

func (s *Store) GetModuleByKey(ctx context.Context, key string) (*module.Module, error) {
	m := new(moduleModel)
	if err := s.pgdb.NewSelect(m).Where("key = ?", key).Scan(ctx); err != nil {
		return nil, classify("get module by key", err)
	}
	return moduleFromModel(m), nil
}

func (s *Store) UpdateModule(ctx context.Context, m *module.Module) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pgdb.NewUpdate(moduleToModel(m)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update module", err)
	}
	return mustAffect("update module", res)
}

func (s *Store) ListModules(ctx context.Context, filter *module.ListFilter) ([]*module.Module, error) {
	var models []moduleModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("(company_id IS NULL OR company_id = ?)", filter.CompanyID.String())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list modules: %w", err)
	}
	return modulesFromModels(models), nil
}

func (s *Store) CountModules(ctx context.Context) (int64, error) {
	count, err := s.pgdb.NewSelect((*moduleModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count modules: %w", err)
	}
	return count, nil
}

func (s *Store) ListModulesByKeys(ctx context.Context, companyID id.CompanyID, keys []string) ([]*module.Module, error) {
	if len(keys) == 0 {
		return []*module.Module{}, nil
	}
	var models []moduleModel
	err := s.pgdb.NewSelect(&models).
		Where("key = ANY(?)", keys).
		Where("(company_id IS NULL OR company_id = ?)", companyID.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list modules by keys: %w", err)
	}
	return modulesFromModels(models), nil
}

func (s *Store) ListModulesByIDs(ctx context.Context, ids []id.ModuleID) ([]*module.Module, error) {
	if len(ids) == 0 {
		return []*module.Module{}, nil
	}
	raw := make([]string, len(ids))
	for i, mid := range ids {
		raw[i] = mid.String()
	}
	var models []moduleModel
	if err := s.pgdb.NewSelect(&models).Where("id = ANY(?)", raw).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list modules by ids: %w", err)
	}
	return modulesFromModels(models), nil
}

func modulesFromModels(models []moduleModel) []*module.Module {
	result := make([]*module.Module, len(models))
	for i := range models {
		result[i] = moduleFromModel(&models[i])
	}
	return result
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	p.CreatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return classify("create permission", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	m := new(permissionModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", permID.String()).Scan(ctx); err != nil {
		return nil, classify("get permission", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionByAction(ctx context.Context, moduleID id.ModuleID, action string) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.pgdb.NewSelect(m).
		Where("module_id = ?", moduleID.String()).
		Where("action = ?", action).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission by action", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if _, err := tx.NewDelete((*rolePermissionModel)(nil)).
		Where("permission_id = ?", permID.String()).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: detach permission from roles: %w", err)
	}
	if _, err := tx.NewDelete((*permissionModel)(nil)).
		Where("id = ?", permID.String()).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete permission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if !filter.ModuleID.IsNil() {
			q = q.Where("module_id = ?", filter.ModuleID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permissions: %w", err)
	}
	return permissionsFromModels(models), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*permissionModel)(nil))
	if filter != nil {
		if !filter.ModuleID.IsNil() {
			q = q.Where("module_id = ?", filter.ModuleID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count permissions: %w", err)
	}
	return count, nil
}

func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	var grants []rolePermissionModel
	if err := s.pgdb.NewSelect(&grants).Where("role_id = ?", roleID.String()).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permissions by role: %w", err)
	}
	if len(grants) == 0 {
		return []*permission.Permission{}, nil
	}
	permIDs := make([]string, len(grants))
	for i, g := range grants {
		permIDs[i] = g.PermissionID
	}
	var models []permissionModel
	err := s.pgdb.NewSelect(&models).
		Where("id = ANY(?)", permIDs).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list permissions by role: %w", err)
	}
	return permissionsFromModels(models), nil
}

func (s *Store) ListPermissionKeysForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	roleIDs, err := s.userRoleIDs(ctx, companyID, userID)
	if err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	if len(roleIDs) == 0 {
		return []string{}, nil
	}

	var grants []rolePermissionModel
	if err := s.pgdb.NewSelect(&grants).Where("role_id = ANY(?)", roleIDs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	if len(grants) == 0 {
		return []string{}, nil
	}
	seen := make(map[string]struct{}, len(grants))
	permIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		if _, dup := seen[g.PermissionID]; !dup {
			seen[g.PermissionID] = struct{}{}
			permIDs = append(permIDs, g.PermissionID)
		}
	}

	var models []permissionModel
	if err := s.pgdb.NewSelect(&models).Where("id = ANY(?)", permIDs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	return s.permissionKeys(ctx, models)
}

// userRoleIDs returns the IDs of the user's roles that belong to the
// company. Assignments pointing at another company's role are ignored.
func (s *Store) userRoleIDs(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	var assigns []assignmentModel
	err := s.pgdb.NewSelect(&assigns).
		Where("company_id = ?", companyID.String()).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil || len(assigns) == 0 {
		return nil, err
	}
	ids := make([]string, len(assigns))
	for i, a := range assigns {
		ids[i] = a.RoleID
	}

	var roles []roleModel
	err = s.pgdb.NewSelect(&roles).
		Where("id = ANY(?)", ids).
		Where("company_id = ?", companyID.String()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]string, len(roles))
	for i, r := range roles {
		owned[i] = r.ID
	}
	return owned, nil
}

// permissionKeys renders canonical keys, dropping permissions whose
// module is gone.
func (s *Store) permissionKeys(ctx context.Context, perms []permissionModel) ([]string, error) {
	if len(perms) == 0 {
		return []string{}, nil
	}
	seenMod := make(map[string]struct{}, len(perms))
	modIDs := make([]string, 0, len(perms))
	for _, p := range perms {
		if _, ok := seenMod[p.ModuleID]; !ok {
			seenMod[p.ModuleID] = struct{}{}
			modIDs = append(modIDs, p.ModuleID)
		}
	}
	var mods []moduleModel
	if err := s.pgdb.NewSelect(&mods).Where("id = ANY(?)", modIDs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: load permission modules: %w", err)
	}
	moduleKeys := make(map[string]string, len(mods))
	for _, m := range mods {
		moduleKeys[m.ID] = m.Key
	}

	seen := make(map[string]struct{}, len(perms))
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		mk, ok := moduleKeys[p.ModuleID]
		if !ok {
			continue
		}
		k := permission.Key(mk, p.Action)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

func permissionsFromModels(models []permissionModel) []*permission.Permission {
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if _, err := s.pgdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return classify("create role", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx); err != nil {
		return nil, classify("get role", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, companyID id.CompanyID, name string) (*role.Role, error) {
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).
		Where("company_id = ?", companyID.String()).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, classify("get role by name", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.pgdb.NewUpdate(roleToModel(r)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update role", err)
	}
	return mustAffect("update role", res)
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if _, err := tx.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role grants: %w", err)
	}
	if _, err := tx.NewDelete((*assignmentModel)(nil)).
		Where("role_id = ?", roleID.String()).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role assignments: %w", err)
	}
	if _, err := tx.NewDelete((*roleModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list roles: %w", err)
	}
	return rolesFromModels(models), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*roleModel)(nil))
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) ListRolesForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]*role.Role, error) {
	var assigns []assignmentModel
	err := s.pgdb.NewSelect(&assigns).
		Where("company_id = ?", companyID.String()).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list roles for user: %w", err)
	}
	if len(assigns) == 0 {
		return []*role.Role{}, nil
	}
	roleIDs := make([]string, len(assigns))
	for i, a := range assigns {
		roleIDs[i] = a.RoleID
	}

	var models []roleModel
	err = s.pgdb.NewSelect(&models).
		Where("id = ANY(?)", roleIDs).
		Where("company_id = ?", companyID.String()).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list roles for user: %w", err)
	}
	return rolesFromModels(models), nil
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	var models []rolePermissionModel
	if err := s.pgdb.NewSelect(&models).Where("role_id = ?", roleID.String()).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list role permissions: %w", err)
	}
	result := make([]id.PermissionID, 0, len(models))
	for _, m := range models {
		if pid, err := id.ParsePermissionID(m.PermissionID); err == nil {
			result = append(result, pid)
		}
	}
	return result, nil
}

func (s *Store) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	m := &rolePermissionModel{RoleID: roleID.String(), PermissionID: permID.String()}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(role_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: attach permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.pgdb.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).
		Where("permission_id = ?", permID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: detach permission: %w", err)
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	_, err = tx.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: clear role permissions: %w", err)
	}

	if len(permIDs) > 0 {
		seen := make(map[id.PermissionID]struct{}, len(permIDs))
		models := make([]rolePermissionModel, 0, len(permIDs))
		for _, pid := range permIDs {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			models = append(models, rolePermissionModel{RoleID: roleID.String(), PermissionID: pid.String()})
		}
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("bastion: set role permissions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

func rolesFromModels(models []roleModel) []*role.Role {
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) AssignRole(ctx context.Context, a *assignment.Assignment) error {
	a.CreatedAt = time.Now().UTC()
	_, err := s.pgdb.NewInsert(assignmentToModel(a)).
		OnConflict("(user_id, role_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: assign role: %w", err)
	}
	return nil
}

func (s *Store) UnassignRole(ctx context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error {
	_, err := s.pgdb.NewDelete((*assignmentModel)(nil)).
		Where("company_id = ?", companyID.String()).
		Where("user_id = ?", userID.String()).
		Where("role_id = ?", roleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: unassign role: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, role_id ASC")
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if !filter.UserID.IsNil() {
			q = q.Where("user_id = ?", filter.UserID.String())
		}
		if !filter.RoleID.IsNil() {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list assignments: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*assignmentModel)(nil))
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if !filter.UserID.IsNil() {
			q = q.Where("user_id = ?", filter.UserID.String())
		}
		if !filter.RoleID.IsNil() {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteAssignmentsByUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) error {
	_, err := s.pgdb.NewDelete((*assignmentModel)(nil)).
		Where("company_id = ?", companyID.String()).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignments by user: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if _, err := s.pgdb.NewInsert(userToModel(u)).Exec(ctx); err != nil {
		return classify("create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	m := new(userModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", userID.String()).Scan(ctx); err != nil {
		return nil, classify("get user", err)
	}
	return userFromModel(m), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	m := new(userModel)
	if err := s.pgdb.NewSelect(m).Where("LOWER(email) = LOWER(?)", email).Scan(ctx); err != nil {
		return nil, classify("get user by email", err)
	}
	return userFromModel(m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.pgdb.NewUpdate(userToModel(u)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update user", err)
	}
	return mustAffect("update user", res)
}

func (s *Store) ListUsers(ctx context.Context, filter *user.ListFilter) ([]*user.User, error) {
	var models []userModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("(LOWER(name) LIKE LOWER(?) OR LOWER(email) LIKE LOWER(?))", like, like)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list users: %w", err)
	}
	result := make([]*user.User, len(models))
	for i := range models {
		result[i] = userFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context, filter *user.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*userModel)(nil))
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("(LOWER(name) LIKE LOWER(?) OR LOWER(email) LIKE LOWER(?))", like, like)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Refresh token operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRefreshToken(ctx context.Context, t *refreshtoken.Token) error {
	t.CreatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewInsert(refreshTokenToModel(t)).Exec(ctx); err != nil {
		return classify("create refresh token", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) (*refreshtoken.Token, error) {
	m := new(refreshTokenModel)
	err := s.pgdb.NewSelect(m).
		Where("user_id = ?", userID.String()).
		Where("token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("get refresh token", err)
	}
	return refreshTokenFromModel(m), nil
}

func (s *Store) ReplaceRefreshToken(ctx context.Context, userID id.UserID, oldHash string, next *refreshtoken.Token) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	res, err := tx.NewDelete((*refreshTokenModel)(nil)).
		Where("user_id = ?", userID.String()).
		Where("token_hash = ?", oldHash).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: consume refresh token: %w", err)
	}
	if err := mustAffect("consume refresh token", res); err != nil {
		return err
	}

	next.CreatedAt = time.Now().UTC()
	if _, err := tx.NewInsert(refreshTokenToModel(next)).Exec(ctx); err != nil {
		return classify("store refresh token", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) error {
	_, err := s.pgdb.NewDelete((*refreshTokenModel)(nil)).
		Where("user_id = ?", userID.String()).
		Where("token_hash = ?", tokenHash).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: revoke refresh token: %w", err)
	}
	return nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID id.UserID) error {
	_, err := s.pgdb.NewDelete((*refreshTokenModel)(nil)).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) ListActiveRefreshTokens(ctx context.Context, userID id.UserID, now time.Time) ([]*refreshtoken.Token, error) {
	var models []refreshTokenModel
	err := s.pgdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		Where("expires_at > ?", now).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list refresh tokens: %w", err)
	}
	result := make([]*refreshtoken.Token, len(models))
	for i := range models {
		result[i] = refreshTokenFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*refreshTokenModel)(nil)).
		Where("expires_at <= ?", now).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: delete expired refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: delete expired refresh tokens rows: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := s.pgdb.NewInsert(auditToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if !filter.UserID.IsNil() {
			q = q.Where("user_id = ?", filter.UserID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list audit entries: %w", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*auditModel)(nil))
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			q = q.Where("company_id = ?", filter.CompanyID.String())
		}
		if !filter.UserID.IsNil() {
			q = q.Where("user_id = ?", filter.UserID.String())
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*auditModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit entries rows: %w", err)
	}
	return n, nil
}
