package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/storetest"
)

// openTestStore returns a migrated store backed by a file in a temp dir.
// A file keeps every pooled connection on the same database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, filepath.Join(t.TempDir(), "bastion.db")); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("open grove: %v", err)
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestSetRolePermissionsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	r := &role.Role{ID: id.NewRoleID(), CompanyID: id.NewCompanyID(), Name: "Editor"}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	kept, rejected := id.NewPermissionID(), id.NewPermissionID()
	if err := s.SetRolePermissions(ctx, r.ID, []id.PermissionID{kept}); err != nil {
		t.Fatal(err)
	}

	// Fail the insert half of the replace after the delete has run.
	trigger := `CREATE TRIGGER reject_grant BEFORE INSERT ON bastion_role_permissions
WHEN NEW.permission_id = '` + rejected.String() + `'
BEGIN SELECT RAISE(ABORT, 'grant rejected'); END`
	if _, err := s.sdb.Exec(ctx, trigger); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRolePermissions(ctx, r.ID, []id.PermissionID{rejected}); err == nil {
		t.Fatal("expected the rejected grant to fail")
	}

	ids, err := s.ListRolePermissions(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != kept {
		t.Fatalf("grants after failed replace = %v, want [%s]", ids, kept)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(errors.New("UNIQUE constraint failed: bastion_roles.company_id, bastion_roles.name")) {
		t.Error("unique constraint not detected")
	}
	if !isUniqueViolation(errors.New("PRIMARY KEY constraint failed: bastion_users.id")) {
		t.Error("primary key constraint not detected")
	}
	if isUniqueViolation(errors.New("no such table")) || isUniqueViolation(nil) {
		t.Error("false positive")
	}
	if err := classify("create role", errors.New("UNIQUE constraint failed: x")); !errors.Is(err, store.ErrConflict) {
		t.Errorf("classify = %v", err)
	}
}

func TestAuditModelMetadata(t *testing.T) {
	uid := id.NewUserID()
	e := &audit.Entry{
		ID:        id.NewAuditEntryID(),
		CompanyID: id.NewCompanyID(),
		UserID:    &uid,
		Action:    audit.ActionLogin,
		Metadata:  map[string]any{"email": "a@example.com"},
	}
	m, err := auditToModel(e)
	if err != nil {
		t.Fatal(err)
	}
	back, err := auditFromModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if back.Metadata["email"] != "a@example.com" {
		t.Errorf("metadata = %v", back.Metadata)
	}
	if back.UserID == nil || *back.UserID != uid {
		t.Errorf("user = %v", back.UserID)
	}

	empty, err := auditToModel(&audit.Entry{ID: id.NewAuditEntryID(), CompanyID: id.NewCompanyID()})
	if err != nil {
		t.Fatal(err)
	}
	if empty.Metadata != "{}" {
		t.Errorf("empty metadata stored as %q", empty.Metadata)
	}
	if _, err := auditFromModel(&auditModel{ID: empty.ID, CompanyID: empty.CompanyID, Metadata: "{bad"}); err == nil {
		t.Error("expected error for corrupt metadata")
	}
}
