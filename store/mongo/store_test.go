package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/user"
)

func TestMigrationIndexesCoverEveryCollection(t *testing.T) {
	idx := migrationIndexes()
	for _, col := range []string{
		colCompanies, colModules, colPermissions, colRoles, colRolePermissions,
		colUserRoles, colUsers, colRefreshTokens, colAuditLog,
	} {
		if len(idx[col]) == 0 {
			t.Errorf("no indexes for %s", col)
		}
	}

	unique := func(col, field string) bool {
		for _, m := range idx[col] {
			keys, ok := m.Keys.(bson.D)
			if !ok || len(keys) == 0 || keys[0].Key != field {
				continue
			}
			return m.Options != nil
		}
		return false
	}
	if !unique(colModules, "key") {
		t.Error("module key must be unique")
	}
	if !unique(colUsers, "email_lower") {
		t.Error("user email must be unique")
	}
	if !unique(colRoles, "company_id") {
		t.Error("role (company, name) must be unique")
	}
}

func TestUserModelLowercasesEmail(t *testing.T) {
	u := &user.User{ID: id.NewUserID(), CompanyID: id.NewCompanyID(), Email: "Dev@Example.COM"}
	m := userToModel(u)
	if m.EmailLower != "dev@example.com" {
		t.Fatalf("email_lower = %q", m.EmailLower)
	}
	back := userFromModel(m)
	if back.Email != "Dev@Example.COM" {
		t.Fatalf("email = %q, want original casing", back.Email)
	}
}

func TestJoinModelsUseCompositeIDs(t *testing.T) {
	rid, pid := id.NewRoleID(), id.NewPermissionID()
	rp := newRolePermission(rid.String(), pid.String())
	if rp.ID != rid.String()+":"+pid.String() {
		t.Fatalf("role permission id = %q", rp.ID)
	}

	a := &assignment.Assignment{CompanyID: id.NewCompanyID(), UserID: id.NewUserID(), RoleID: rid}
	am := assignmentToModel(a)
	if am.ID != a.UserID.String()+":"+rid.String() {
		t.Fatalf("assignment id = %q", am.ID)
	}
	if got := assignmentFromModel(am); got.RoleID != rid || got.CompanyID != a.CompanyID {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestModuleModelGlobalHasNoCompany(t *testing.T) {
	m := &module.Module{ID: id.NewModuleID(), Key: "boards", Visibility: module.VisibilityPublic}
	mm := moduleToModel(m)
	if mm.CompanyID != nil || mm.ParentID != nil {
		t.Fatal("global root module should carry no refs")
	}

	filter := visibleTo(id.NewCompanyID())
	or, ok := filter["$or"].(bson.A)
	if !ok || len(or) != 2 {
		t.Fatalf("visibility filter = %v", filter)
	}
}
