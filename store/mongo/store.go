// Package mongo provides a MongoDB implementation of the Bastion composite
// store backed by grove's mongo driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colCompanies       = "bastion_companies"
	colModules         = "bastion_modules"
	colPermissions     = "bastion_permissions"
	colRoles           = "bastion_roles"
	colRolePermissions = "bastion_role_permissions"
	colUserRoles       = "bastion_user_roles"
	colUsers           = "bastion_users"
	colRefreshTokens   = "bastion_refresh_tokens"
	colAuditLog        = "bastion_audit_log"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all bastion collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bastion/mongo: migrate %s indexes: %w", col, err)
		}
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

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	switch {
	case isNoDocuments(err):
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	case mongod.IsDuplicateKeyError(err):
		return fmt.Errorf("bastion: %s: %w", op, store.ErrConflict)
	default:
		return fmt.Errorf("bastion: %s: %w", op, err)
	}
}

// containsFold builds a case-insensitive substring match.
func containsFold(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

func sortCreated(dir int) bson.D {
	return bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colCompanies: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colModules: {
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
			{Keys: bson.D{{Key: "company_id", Value: 1}}},
		},
		colPermissions: {
			{
				Keys:    bson.D{{Key: "module_id", Value: 1}, {Key: "action", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colRoles: {
			{
				Keys:    bson.D{{Key: "company_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colRolePermissions: {
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colUserRoles: {
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "company_id", Value: 1}}},
		},
		colRefreshTokens: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "token_hash", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colAuditLog: {
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "action", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Catalog seeding
// ──────────────────────────────────────────────────

// SeedCatalog inserts modules one by one, parents first. Standalone
// servers have no transactions, so a failure removes what was inserted.
func (s *Store) SeedCatalog(ctx context.Context, modules []*module.Module, perms []*permission.Permission) (bool, error) {
	n, err := s.CountModules(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	t := now()
	inserted := make([]string, 0, len(modules))
	undo := func() {
		if len(inserted) == 0 {
			return
		}
		_, _ = s.mdb.NewDelete((*moduleModel)(nil)).
			Many().
			Filter(bson.M{"_id": bson.M{"$in": inserted}}).
			Exec(context.WithoutCancel(ctx))
	}

	for _, m := range modules {
		m.CreatedAt, m.UpdatedAt = t, t
		if _, err := s.mdb.NewInsert(moduleToModel(m)).Exec(ctx); err != nil {
			undo()
			if mongod.IsDuplicateKeyError(err) {
				// A concurrent seeder won the race.
				return false, nil
			}
			return false, fmt.Errorf("bastion: seed module %q: %w", m.Key, err)
		}
		inserted = append(inserted, m.ID.String())
	}
	if len(perms) > 0 {
		models := make([]permissionModel, len(perms))
		for i, p := range perms {
			p.CreatedAt = t
			models[i] = *permissionToModel(p)
		}
		if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
			_, _ = s.mdb.NewDelete((*permissionModel)(nil)).
				Many().
				Filter(bson.M{"module_id": bson.M{"$in": inserted}}).
				Exec(context.WithoutCancel(ctx))
			undo()
			return false, classify("seed permissions", err)
		}
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Company operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCompany(ctx context.Context, c *company.Company) error {
	t := now()
	c.CreatedAt, c.UpdatedAt = t, t
	if _, err := s.mdb.NewInsert(companyToModel(c)).Exec(ctx); err != nil {
		return classify("create company", err)
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, companyID id.CompanyID) (*company.Company, error) {
	var m companyModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": companyID.String()}).Scan(ctx); err != nil {
		return nil, classify("get company", err)
	}
	return companyFromModel(&m), nil
}

func (s *Store) GetCompanyByName(ctx context.Context, name string) (*company.Company, error) {
	var m companyModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"name": name}).Scan(ctx); err != nil {
		return nil, classify("get company by name", err)
	}
	return companyFromModel(&m), nil
}

func (s *Store) ListCompanies(ctx context.Context, filter *company.ListFilter) ([]*company.Company, error) {
	var models []companyModel
	q := s.mdb.NewFind(&models).Filter(bson.M{}).Sort(sortCreated(1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	t := now()
	m.CreatedAt, m.UpdatedAt = t, t
	if _, err := s.mdb.NewInsert(moduleToModel(m)).Exec(ctx); err != nil {
		return classify("create module", err)
	}
	return nil
}

func (s *Store) GetModule(ctx context.Context, moduleID id.ModuleID) (*module.Module, error) {
	var m moduleModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": moduleID.String()}).Scan(ctx); err != nil {
		return nil, classify("get module", err)
	}
	return moduleFromModel(&m), nil
}

func (s *Store) GetModuleByKey(ctx context.Context, key string) (*module.Module, error) {
	var m moduleModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"key": key}).Scan(ctx); err != nil {
		return nil, classify("get module by key", err)
	}
	return moduleFromModel(&m), nil
}

func (s *Store) UpdateModule(ctx context.Context, m *module.Module) error {
	m.UpdatedAt = now()
	mm := moduleToModel(m)
	res, err := s.mdb.NewUpdate(mm).Filter(bson.M{"_id": mm.ID}).Exec(ctx)
	if err != nil {
		return classify("update module", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("bastion: update module %s: %w", m.ID, store.ErrNotFound)
	}
	return nil
}

// visibleTo matches global modules plus the ones owned by companyID.
func visibleTo(companyID id.CompanyID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"company_id": nil},
		bson.M{"company_id": companyID.String()},
	}}
}

func (s *Store) ListModules(ctx context.Context, filter *module.ListFilter) ([]*module.Module, error) {
	var models []moduleModel
	f := bson.M{}
	if filter != nil && !filter.CompanyID.IsNil() {
		f = visibleTo(filter.CompanyID)
	}
	q := s.mdb.NewFind(&models).Filter(f).Sort(sortCreated(1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list modules: %w", err)
	}
	return modulesFromModels(models), nil
}

func (s *Store) CountModules(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*moduleModel)(nil)).Filter(bson.M{}).Count(ctx)
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
	f := visibleTo(companyID)
	f["key"] = bson.M{"$in": keys}
	if err := s.mdb.NewFind(&models).Filter(f).Scan(ctx); err != nil {
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
	if err := s.mdb.NewFind(&models).Filter(bson.M{"_id": bson.M{"$in": raw}}).Scan(ctx); err != nil {
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
	p.CreatedAt = now()
	if _, err := s.mdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return classify("create permission", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var m permissionModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": permID.String()}).Scan(ctx); err != nil {
		return nil, classify("get permission", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionByAction(ctx context.Context, moduleID id.ModuleID, action string) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"module_id": moduleID.String(), "action": action}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission by action", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	if _, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Many().
		Filter(bson.M{"permission_id": permID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: detach permission from roles: %w", err)
	}
	if _, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"_id": permID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete permission: %w", err)
	}
	return nil
}

func permissionFilter(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter != nil {
		if !filter.ModuleID.IsNil() {
			f["module_id"] = filter.ModuleID.String()
		}
		if filter.Action != "" {
			f["action"] = filter.Action
		}
	}
	return f
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).Filter(permissionFilter(filter)).Sort(sortCreated(1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permissions: %w", err)
	}
	return permissionsFromModels(models), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*permissionModel)(nil)).Filter(permissionFilter(filter)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count permissions: %w", err)
	}
	return count, nil
}

func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	permIDs, err := s.grantedPermissionIDs(ctx, []string{roleID.String()})
	if err != nil {
		return nil, fmt.Errorf("bastion: list permissions by role: %w", err)
	}
	if len(permIDs) == 0 {
		return []*permission.Permission{}, nil
	}
	var models []permissionModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": permIDs}}).
		Sort(sortCreated(1)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permissions by role: %w", err)
	}
	return permissionsFromModels(models), nil
}

func (s *Store) ListPermissionKeysForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	// Step 1: roles the user holds in the company.
	var links []assignmentModel
	if err := s.mdb.NewFind(&links).
		Filter(bson.M{"company_id": companyID.String(), "user_id": userID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	if len(links) == 0 {
		return []string{}, nil
	}
	held := make([]string, len(links))
	for i, l := range links {
		held[i] = l.RoleID
	}

	// Step 2: keep only roles that still exist inside the company.
	var roles []roleModel
	if err := s.mdb.NewFind(&roles).
		Filter(bson.M{"_id": bson.M{"$in": held}, "company_id": companyID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	roleIDs := make([]string, len(roles))
	for i, r := range roles {
		roleIDs[i] = r.ID
	}

	// Step 3: permissions granted to those roles.
	permIDs, err := s.grantedPermissionIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}
	if len(permIDs) == 0 {
		return []string{}, nil
	}
	var perms []permissionModel
	if err := s.mdb.NewFind(&perms).Filter(bson.M{"_id": bson.M{"$in": permIDs}}).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
	}

	// Step 4: render canonical keys, dropping orphans.
	modIDs := make([]string, 0, len(perms))
	seenMod := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seenMod[p.ModuleID]; !ok {
			seenMod[p.ModuleID] = struct{}{}
			modIDs = append(modIDs, p.ModuleID)
		}
	}
	var mods []moduleModel
	if err := s.mdb.NewFind(&mods).Filter(bson.M{"_id": bson.M{"$in": modIDs}}).Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list permission keys for user: %w", err)
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

// grantedPermissionIDs returns the distinct permission ids attached to roleIDs.
func (s *Store) grantedPermissionIDs(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var grants []rolePermissionModel
	if err := s.mdb.NewFind(&grants).
		Filter(bson.M{"role_id": bson.M{"$in": roleIDs}}).
		Scan(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(grants))
	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		if _, dup := seen[g.PermissionID]; !dup {
			seen[g.PermissionID] = struct{}{}
			ids = append(ids, g.PermissionID)
		}
	}
	return ids, nil
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
	t := now()
	r.CreatedAt, r.UpdatedAt = t, t
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return classify("create role", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": roleID.String()}).Scan(ctx); err != nil {
		return nil, classify("get role", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, companyID id.CompanyID, name string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"company_id": companyID.String(), "name": name}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get role by name", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = now()
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx)
	if err != nil {
		return classify("update role", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("bastion: update role %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	rid := roleID.String()
	if _, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Many().
		Filter(bson.M{"role_id": rid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role grants: %w", err)
	}
	if _, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": rid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role assignments: %w", err)
	}
	if _, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": rid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	return nil
}

func roleFilter(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			f["company_id"] = filter.CompanyID.String()
		}
		if filter.Search != "" {
			f["name"] = containsFold(filter.Search)
		}
	}
	return f
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).Filter(roleFilter(filter)).Sort(sortCreated(1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list roles: %w", err)
	}
	return rolesFromModels(models), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).Filter(roleFilter(filter)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) ListRolesForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]*role.Role, error) {
	var links []assignmentModel
	if err := s.mdb.NewFind(&links).
		Filter(bson.M{"company_id": companyID.String(), "user_id": userID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list roles for user: %w", err)
	}
	if len(links) == 0 {
		return []*role.Role{}, nil
	}
	roleIDs := make([]string, len(links))
	for i, l := range links {
		roleIDs[i] = l.RoleID
	}
	var models []roleModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": roleIDs}, "company_id": companyID.String()}).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list roles for user: %w", err)
	}
	return rolesFromModels(models), nil
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	raw, err := s.grantedPermissionIDs(ctx, []string{roleID.String()})
	if err != nil {
		return nil, fmt.Errorf("bastion: list role permissions: %w", err)
	}
	result := make([]id.PermissionID, 0, len(raw))
	for _, r := range raw {
		if pid, err := id.ParsePermissionID(r); err == nil {
			result = append(result, pid)
		}
	}
	return result, nil
}

func (s *Store) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	m := newRolePermission(roleID.String(), permID.String())
	if _, err := s.mdb.NewInsert(&m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already attached
		}
		return fmt.Errorf("bastion: attach permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Filter(bson.M{"role_id": roleID.String(), "permission_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: detach permission: %w", err)
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	rid := roleID.String()
	if _, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Many().
		Filter(bson.M{"role_id": rid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("bastion: clear role permissions: %w", err)
	}
	if len(permIDs) == 0 {
		return nil
	}
	seen := make(map[id.PermissionID]struct{}, len(permIDs))
	models := make([]rolePermissionModel, 0, len(permIDs))
	for _, pid := range permIDs {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		models = append(models, newRolePermission(rid, pid.String()))
	}
	if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: set role permissions: %w", err)
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
	a.CreatedAt = now()
	if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already held
		}
		return fmt.Errorf("bastion: assign role: %w", err)
	}
	return nil
}

func (s *Store) UnassignRole(ctx context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bson.M{
			"company_id": companyID.String(),
			"user_id":    userID.String(),
			"role_id":    roleID.String(),
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: unassign role: %w", err)
	}
	return nil
}

func assignmentFilter(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			f["company_id"] = filter.CompanyID.String()
		}
		if !filter.UserID.IsNil() {
			f["user_id"] = filter.UserID.String()
		}
		if !filter.RoleID.IsNil() {
			f["role_id"] = filter.RoleID.String()
		}
	}
	return f
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "role_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).Filter(assignmentFilter(filter)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteAssignmentsByUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"company_id": companyID.String(), "user_id": userID.String()}).
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
	t := now()
	u.CreatedAt, u.UpdatedAt = t, t
	if _, err := s.mdb.NewInsert(userToModel(u)).Exec(ctx); err != nil {
		return classify("create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	var m userModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": userID.String()}).Scan(ctx); err != nil {
		return nil, classify("get user", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var m userModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"email_lower": strings.ToLower(email)}).Scan(ctx); err != nil {
		return nil, classify("get user by email", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = now()
	m := userToModel(u)
	res, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx)
	if err != nil {
		return classify("update user", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("bastion: update user %s: %w", u.ID, store.ErrNotFound)
	}
	return nil
}

func userFilter(filter *user.ListFilter) bson.M {
	f := bson.M{}
	if filter != nil {
		if !filter.CompanyID.IsNil() {
			f["company_id"] = filter.CompanyID.String()
		}
		if filter.IsActive != nil {
			f["is_active"] = *filter.IsActive
		}
		if filter.Search != "" {
			f["$or"] = bson.A{
				bson.M{"name": containsFold(filter.Search)},
				bson.M{"email": containsFold(filter.Search)},
			}
		}
	}
	return f
}

func (s *Store) ListUsers(ctx context.Context, filter *user.ListFilter) ([]*user.User, error) {
	var models []userModel
	q := s.mdb.NewFind(&models).Filter(userFilter(filter)).Sort(sortCreated(1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*userModel)(nil)).Filter(userFilter(filter)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Refresh token operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRefreshToken(ctx context.Context, t *refreshtoken.Token) error {
	t.CreatedAt = now()
	if _, err := s.mdb.NewInsert(refreshTokenToModel(t)).Exec(ctx); err != nil {
		return classify("create refresh token", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) (*refreshtoken.Token, error) {
	var m refreshTokenModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID.String(), "token_hash": tokenHash}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get refresh token", err)
	}
	return refreshTokenFromModel(&m), nil
}

// ReplaceRefreshToken relies on the single-document delete being atomic:
// of two concurrent rotations only one sees DeletedCount 1.
func (s *Store) ReplaceRefreshToken(ctx context.Context, userID id.UserID, oldHash string, next *refreshtoken.Token) error {
	res, err := s.mdb.NewDelete((*refreshTokenModel)(nil)).
		Filter(bson.M{"user_id": userID.String(), "token_hash": oldHash}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: consume refresh token: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("bastion: consume refresh token: %w", store.ErrNotFound)
	}
	return s.CreateRefreshToken(ctx, next)
}

func (s *Store) RevokeRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) error {
	_, err := s.mdb.NewDelete((*refreshTokenModel)(nil)).
		Filter(bson.M{"user_id": userID.String(), "token_hash": tokenHash}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: revoke refresh token: %w", err)
	}
	return nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID id.UserID) error {
	_, err := s.mdb.NewDelete((*refreshTokenModel)(nil)).
		Many().
		Filter(bson.M{"user_id": userID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) ListActiveRefreshTokens(ctx context.Context, userID id.UserID, at time.Time) ([]*refreshtoken.Token, error) {
	var models []refreshTokenModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String(), "expires_at": bson.M{"$gt": at}}).
		Sort(sortCreated(1)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list refresh tokens: %w", err)
	}
	result := make([]*refreshtoken.Token, len(models))
	for i := range models {
		result[i] = refreshTokenFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*refreshTokenModel)(nil)).
		Many().
		Filter(bson.M{"expires_at": bson.M{"$lte": at}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: delete expired refresh tokens: %w", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if _, err := s.mdb.NewInsert(auditToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create audit entry: %w", err)
	}
	return nil
}

func auditFilter(filter *audit.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if !filter.CompanyID.IsNil() {
		f["company_id"] = filter.CompanyID.String()
	}
	if !filter.UserID.IsNil() {
		f["user_id"] = filter.UserID.String()
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gt"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lt"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.mdb.NewFind(&models).Filter(auditFilter(filter)).Sort(sortCreated(-1))
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*auditModel)(nil)).Filter(auditFilter(filter)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit entries: %w", err)
	}
	return res.DeletedCount(), nil
}
