// Package storetest holds behaviour checks shared by every store backend.
// Backend packages call Run from their own tests with a factory that
// returns an empty, migrated store.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/refreshtoken"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Factory returns a fresh store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store contract.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SeedCatalogIdempotent", testSeedCatalogIdempotent},
		{"ModulesByKeysScopesToCompany", testModulesByKeysScopesToCompany},
		{"PermissionKeysForUser", testPermissionKeysForUser},
		{"PermissionKeysSkipOrphans", testPermissionKeysSkipOrphans},
		{"RolesForUser", testRolesForUser},
		{"SetRolePermissionsReplaces", testSetRolePermissionsReplaces},
		{"DeleteRoleCascades", testDeleteRoleCascades},
		{"AssignmentsIdempotent", testAssignmentsIdempotent},
		{"RefreshTokenTimes", testRefreshTokenTimes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// catalog is a small seeded tree: tasks > comments, boards.
type catalog struct {
	tasks, comments, boards *module.Module
	tRead, tDelete, cCreate *permission.Permission
	bRead                   *permission.Permission
}

func newModule(key string, parent *module.Module) *module.Module {
	m := &module.Module{ID: id.NewModuleID(), Key: key, Name: key, Visibility: module.VisibilityPublic, IsActive: true}
	if parent != nil {
		m.ParentID = id.Ptr(parent.ID)
	}
	return m
}

func newPermission(m *module.Module, action string) *permission.Permission {
	return &permission.Permission{ID: id.NewPermissionID(), ModuleID: m.ID, Action: action}
}

func seed(t *testing.T, s store.Store) *catalog {
	t.Helper()
	c := &catalog{tasks: newModule("tasks", nil), boards: newModule("boards", nil)}
	c.comments = newModule("comments", c.tasks)
	c.tRead, c.tDelete = newPermission(c.tasks, "read"), newPermission(c.tasks, "delete")
	c.cCreate, c.bRead = newPermission(c.comments, "create"), newPermission(c.boards, "read")

	inserted, err := s.SeedCatalog(context.Background(),
		[]*module.Module{c.tasks, c.comments, c.boards},
		[]*permission.Permission{c.tRead, c.tDelete, c.cCreate, c.bRead})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !inserted {
		t.Fatal("first seed should insert")
	}
	return c
}

func newRole(t *testing.T, s store.Store, companyID id.CompanyID, name string, perms ...*permission.Permission) *role.Role {
	t.Helper()
	ctx := context.Background()
	r := &role.Role{ID: id.NewRoleID(), CompanyID: companyID, Name: name}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("create role %q: %v", name, err)
	}
	ids := make([]id.PermissionID, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	if err := s.SetRolePermissions(ctx, r.ID, ids); err != nil {
		t.Fatalf("grant %q: %v", name, err)
	}
	return r
}

func assign(t *testing.T, s store.Store, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) {
	t.Helper()
	a := &assignment.Assignment{CompanyID: companyID, UserID: userID, RoleID: roleID}
	if err := s.AssignRole(context.Background(), a); err != nil {
		t.Fatalf("assign: %v", err)
	}
}

func keysFor(t *testing.T, s store.Store, companyID id.CompanyID, userID id.UserID) []string {
	t.Helper()
	keys, err := s.ListPermissionKeysForUser(context.Background(), companyID, userID)
	if err != nil {
		t.Fatalf("permission keys: %v", err)
	}
	if keys == nil {
		t.Fatal("permission keys must be non-nil")
	}
	slices.Sort(keys)
	return keys
}

func testSeedCatalogIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	inserted, err := s.SeedCatalog(ctx, []*module.Module{newModule("other", nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("seed on a populated catalog should be skipped")
	}
	if n, _ := s.CountModules(ctx); n != 3 {
		t.Fatalf("modules = %d, want 3", n)
	}
	if n, _ := s.CountPermissions(ctx, nil); n != 4 {
		t.Fatalf("permissions = %d, want 4", n)
	}
	if _, err := s.GetModuleByKey(ctx, "other"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("skipped seed leaked a module: %v", err)
	}
}

func testModulesByKeysScopesToCompany(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	a, b := id.NewCompanyID(), id.NewCompanyID()

	owned := newModule("reports", nil)
	owned.CompanyID = id.Ptr(b)
	if err := s.CreateModule(ctx, owned); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListModulesByKeys(ctx, a, []string{"tasks", "reports", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "tasks" {
		t.Fatalf("company A sees %d modules, want only tasks", len(got))
	}
	got, err = s.ListModulesByKeys(ctx, b, []string{"tasks", "reports"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("company B sees %d modules, want 2", len(got))
	}
	if got, _ := s.ListModulesByKeys(ctx, a, nil); len(got) != 0 {
		t.Fatalf("no keys should match nothing, got %d", len(got))
	}

	if err := s.CreateModule(ctx, newModule("tasks", nil)); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate key: expected ErrConflict, got %v", err)
	}
}

func testPermissionKeysForUser(t *testing.T, s store.Store) {
	c := seed(t, s)
	a, b := id.NewCompanyID(), id.NewCompanyID()
	u := id.NewUserID()

	one := newRole(t, s, a, "One", c.tRead, c.bRead)
	two := newRole(t, s, a, "Two", c.tRead, c.cCreate)
	foreign := newRole(t, s, b, "One", c.tDelete)

	assign(t, s, a, u, one.ID)
	assign(t, s, a, u, two.ID)
	// Company A row pointing at company B's role.
	assign(t, s, a, u, foreign.ID)

	want := []string{"boards:read", "comments:create", "tasks:read"}
	if got := keysFor(t, s, a, u); !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if got := keysFor(t, s, b, u); len(got) != 0 {
		t.Fatalf("company B keys = %v, want none", got)
	}
	if got := keysFor(t, s, a, id.NewUserID()); len(got) != 0 {
		t.Fatalf("unknown user keys = %v, want none", got)
	}
}

func testPermissionKeysSkipOrphans(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seed(t, s)
	co, u := id.NewCompanyID(), id.NewUserID()

	r := newRole(t, s, co, "Editor", c.tRead)
	// A grant whose permission row no longer exists.
	if err := s.AttachPermission(ctx, r.ID, id.NewPermissionID()); err != nil {
		t.Fatal(err)
	}
	assign(t, s, co, u, r.ID)

	if got := keysFor(t, s, co, u); !slices.Equal(got, []string{"tasks:read"}) {
		t.Fatalf("keys = %v, want [tasks:read]", got)
	}
}

func testRolesForUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := id.NewCompanyID(), id.NewCompanyID()
	u := id.NewUserID()

	zeta := newRole(t, s, a, "Zeta")
	alpha := newRole(t, s, a, "Alpha")
	foreign := newRole(t, s, b, "Beta")
	assign(t, s, a, u, zeta.ID)
	assign(t, s, a, u, alpha.ID)
	assign(t, s, a, u, foreign.ID)

	got, err := s.ListRolesForUser(ctx, a, u)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Alpha" || got[1].Name != "Zeta" {
		t.Fatalf("roles = %v, want [Alpha Zeta]", names(got))
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not read back")
	}
	if got, _ := s.ListRolesForUser(ctx, b, u); len(got) != 0 {
		t.Fatalf("company B roles = %v, want none", names(got))
	}
}

func names(roles []*role.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Name
	}
	return out
}

func testSetRolePermissionsReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seed(t, s)
	r := newRole(t, s, id.NewCompanyID(), "Editor", c.tRead, c.tDelete)

	if err := s.SetRolePermissions(ctx, r.ID, []id.PermissionID{c.tDelete.ID, c.bRead.ID, c.bRead.ID}); err != nil {
		t.Fatal(err)
	}
	perms, err := s.ListPermissionsByRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(perms))
	for i, p := range perms {
		got[i] = p.Action + "@" + p.ModuleID.String()
	}
	slices.Sort(got)
	want := []string{"delete@" + c.tasks.ID.String(), "read@" + c.boards.ID.String()}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("grants = %v, want %v", got, want)
	}

	if err := s.SetRolePermissions(ctx, r.ID, nil); err != nil {
		t.Fatal(err)
	}
	if ids, _ := s.ListRolePermissions(ctx, r.ID); len(ids) != 0 {
		t.Fatalf("empty set left %d grants", len(ids))
	}
}

func testDeleteRoleCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seed(t, s)
	co, u := id.NewCompanyID(), id.NewUserID()
	doomed := newRole(t, s, co, "Temp", c.tRead)
	kept := newRole(t, s, co, "Kept", c.bRead)
	assign(t, s, co, u, doomed.ID)
	assign(t, s, co, u, kept.ID)

	if err := s.DeleteRole(ctx, doomed.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, doomed.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := s.CountAssignments(ctx, &assignment.ListFilter{RoleID: doomed.ID}); n != 0 {
		t.Error("assignments survived role deletion")
	}
	if ids, _ := s.ListRolePermissions(ctx, doomed.ID); len(ids) != 0 {
		t.Error("grants survived role deletion")
	}
	if got := keysFor(t, s, co, u); !slices.Equal(got, []string{"boards:read"}) {
		t.Fatalf("keys after delete = %v, want [boards:read]", got)
	}
}

func testAssignmentsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	co, u := id.NewCompanyID(), id.NewUserID()
	r := newRole(t, s, co, "Viewer")

	assign(t, s, co, u, r.ID)
	assign(t, s, co, u, r.ID)
	if n, _ := s.CountAssignments(ctx, &assignment.ListFilter{UserID: u}); n != 1 {
		t.Fatalf("assignments = %d, want 1", n)
	}
	if err := s.UnassignRole(ctx, id.NewCompanyID(), u, r.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountAssignments(ctx, &assignment.ListFilter{UserID: u}); n != 1 {
		t.Fatal("unassign with another company removed the row")
	}
	if err := s.UnassignRole(ctx, co, u, r.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountAssignments(ctx, &assignment.ListFilter{UserID: u}); n != 0 {
		t.Fatal("unassign did not remove the row")
	}
}

func testRefreshTokenTimes(t *testing.T, s store.Store) {
	ctx := context.Background()
	co := &company.Company{ID: id.NewCompanyID(), Name: "Acme"}
	if err := s.CreateCompany(ctx, co); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetCompany(ctx, co.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("company created_at not read back")
	}

	u := id.NewUserID()
	now := time.Now().UTC().Truncate(time.Second)
	live := &refreshtoken.Token{ID: id.NewRefreshTokenID(), UserID: u, TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	dead := &refreshtoken.Token{ID: id.NewRefreshTokenID(), UserID: u, TokenHash: "dead", ExpiresAt: now.Add(-time.Hour)}
	for _, tok := range []*refreshtoken.Token{live, dead} {
		if err := s.CreateRefreshToken(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := s.GetRefreshToken(ctx, u, "live")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.ExpiresAt.Equal(live.ExpiresAt) {
		t.Errorf("expires_at = %v, want %v", stored.ExpiresAt, live.ExpiresAt)
	}
	active, err := s.ListActiveRefreshTokens(ctx, u, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].TokenHash != "live" {
		t.Fatalf("active tokens = %d, want only live", len(active))
	}
	n, err := s.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d tokens, want 1", n)
	}
}
