package account

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/store/memory"
)

type fixture struct {
	eng    *bastion.Engine
	mem    *memory.Store
	svc    *Service
	hasher *credential.Argon2id
	admin  bastion.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	eng, err := bastion.NewEngine(bastion.WithStore(mem))
	if err != nil {
		t.Fatal(err)
	}
	hasher := &credential.Argon2id{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}
	admin, err := eng.SeedDevelopment(context.Background(), hasher, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{eng: eng, mem: mem, svc: NewService(eng, hasher), hasher: hasher, admin: admin}
}

func (f *fixture) roleID(t *testing.T, name string) string {
	t.Helper()
	r, err := f.mem.GetRoleByName(context.Background(), f.admin.CompanyID, name)
	if err != nil {
		t.Fatal(err)
	}
	return r.ID.String()
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := bastion.WithPrincipal(context.Background(), f.admin)
	viewer, manager := f.roleID(t, "Viewer"), f.roleID(t, "Manager")

	got, err := f.svc.CreateUser(ctx, f.admin.CompanyID, CreateUserInput{
		Email:    "  Lucia@Example.COM ",
		Name:     "  Lucia  ",
		Password: "long-enough",
		RoleIDs:  []string{viewer, " " + viewer + " ", "", manager},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "lucia@example.com" || got.Name != "Lucia" || !got.IsActive {
		t.Errorf("summary = %+v", got)
	}
	if !slices.Equal(got.Roles, []string{"Manager", "Viewer"}) {
		t.Errorf("roles = %v", got.Roles)
	}

	stored, err := f.mem.GetUser(ctx, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := f.hasher.Verify(stored.PasswordHash, "long-enough"); err != nil || !ok {
		t.Errorf("stored hash does not verify: %v, %v", ok, err)
	}
	if ok, _ := f.eng.UserHasPermissions(ctx, f.admin.CompanyID, got.ID, []string{"tasks:move"}); !ok {
		t.Error("new user should hold the Manager grants")
	}

	entries, _, err := f.eng.ListAudit(ctx, &audit.QueryFilter{CompanyID: f.admin.CompanyID, Action: audit.ActionUserCreated})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].UserID == nil || *entries[0].UserID != f.admin.UserID {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.roleID(t, "Viewer")
	valid := CreateUserInput{Email: "new@example.com", Name: "New", Password: "12345678", RoleIDs: []string{viewer}}

	cases := []struct {
		name   string
		mutate func(*CreateUserInput)
		msg    string
	}{
		{"blank email", func(in *CreateUserInput) { in.Email = "  " }, "email is required"},
		{"bad email", func(in *CreateUserInput) { in.Email = "not-an-email" }, "email is not valid"},
		{"display name", func(in *CreateUserInput) { in.Email = "New <new@example.com>" }, "email is not valid"},
		{"blank name", func(in *CreateUserInput) { in.Name = " " }, "name is required"},
		{"short password", func(in *CreateUserInput) { in.Password = "1234567" }, "at least 8"},
		{"no roles", func(in *CreateUserInput) { in.RoleIDs = []string{" ", ""} }, "at least one role"},
		{"malformed role", func(in *CreateUserInput) { in.RoleIDs = []string{"admin"} }, "not valid"},
		{"unknown role", func(in *CreateUserInput) { in.RoleIDs = []string{id.NewRoleID().String()} }, "not valid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			in.RoleIDs = slices.Clone(valid.RoleIDs)
			tc.mutate(&in)
			_, err := f.svc.CreateUser(ctx, f.admin.CompanyID, in)
			if !errors.Is(err, bastion.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("error %q should mention %q", err, tc.msg)
			}
		})
	}

	if _, err := f.mem.GetUserByEmail(ctx, "new@example.com"); err == nil {
		t.Error("no account should be created by a rejected request")
	}
}

func TestCreateUserRejectsOtherCompanyRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.eng.ProvisionCompany(ctx, "Other Co", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.CreateUser(ctx, other.ID, CreateUserInput{
		Email: "x@example.com", Name: "X", Password: "12345678",
		RoleIDs: []string{f.roleID(t, "Viewer")},
	})
	if !errors.Is(err, bastion.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, f.admin.CompanyID, CreateUserInput{
		Email: "DEVADMIN@example.com", Name: "Again", Password: "12345678",
		RoleIDs: []string{f.roleID(t, "Viewer")},
	})
	if !errors.Is(err, bastion.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"zoe@example.com", "abel@example.com"} {
		if _, err := f.svc.CreateUser(ctx, f.admin.CompanyID, CreateUserInput{
			Email: email, Name: email, Password: "12345678",
			RoleIDs: []string{f.roleID(t, "Contributor")},
		}); err != nil {
			t.Fatal(err)
		}
	}

	users, err := f.svc.ListUsers(ctx, f.admin.CompanyID)
	if err != nil {
		t.Fatal(err)
	}
	var emails []string
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	want := []string{"abel@example.com", "devadmin@example.com", "zoe@example.com"}
	if !slices.Equal(emails, want) {
		t.Fatalf("emails = %v, want %v", emails, want)
	}
	if !slices.Equal(users[0].Roles, []string{"Contributor"}) || !slices.Equal(users[1].Roles, []string{"DevAdmin"}) {
		t.Errorf("roles = %v / %v", users[0].Roles, users[1].Roles)
	}

	other, _ := f.eng.ProvisionCompany(ctx, "Empty Co", nil)
	none, err := f.svc.ListUsers(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("other company lists %d users", len(none))
	}
}
