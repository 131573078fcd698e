package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store/memory"
	"github.com/xraph/bastion/token"
	"github.com/xraph/bastion/user"
)

const devPassword = "DevAdmin123!"

type loginRecorder struct {
	mu      sync.Mutex
	logins  []plugin.LoginEvent
	logouts []id.UserID
}

func (r *loginRecorder) Name() string { return "login-recorder" }

func (r *loginRecorder) OnLogin(_ context.Context, ev *plugin.LoginEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, *ev)
	return nil
}

func (r *loginRecorder) OnLogout(_ context.Context, userID id.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts = append(r.logouts, userID)
	return nil
}

type fixture struct {
	eng    *bastion.Engine
	mem    *memory.Store
	svc    *Service
	tokens *token.Service
	hasher *credential.Argon2id
	rec    *loginRecorder
	admin  bastion.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	rec := &loginRecorder{}
	eng, err := bastion.NewEngine(bastion.WithStore(mem), bastion.WithPlugin(rec))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := token.NewService(mem, token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	if err != nil {
		t.Fatal(err)
	}
	hasher := &credential.Argon2id{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}
	admin, err := eng.SeedDevelopment(ctx, hasher, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		eng:    eng,
		mem:    mem,
		svc:    NewService(eng, tokens, hasher),
		tokens: tokens,
		hasher: hasher,
		rec:    rec,
		admin:  admin,
	}
}

// addUser creates an account in the admin's company holding roleName.
func (f *fixture) addUser(t *testing.T, email, password, roleName string, active bool) *user.User {
	t.Helper()
	ctx := context.Background()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	u := &user.User{
		ID: id.NewUserID(), CompanyID: f.admin.CompanyID, Email: email, Name: email,
		PasswordHash: hash, IsActive: active, CreatedAt: now, UpdatedAt: now,
	}
	if err := f.mem.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	r, err := f.mem.GetRoleByName(ctx, f.admin.CompanyID, roleName)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.eng.AssignRole(ctx, f.admin.CompanyID, u.ID, r.ID); err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) auditActions(t *testing.T, companyID id.CompanyID) []string {
	t.Helper()
	entries, _, err := f.eng.ListAudit(context.Background(), &audit.QueryFilter{CompanyID: companyID})
	if err != nil {
		t.Fatal(err)
	}
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func TestLoginIssuesTokensAndProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, "  DevAdmin@Example.com ", devPassword)
	if err != nil {
		t.Fatal(err)
	}
	if res.User.UserID != f.admin.UserID || res.User.CompanyID != f.admin.CompanyID {
		t.Fatalf("user = %+v", res.User)
	}
	if res.User.Email != "devadmin@example.com" || res.User.Name != "Dev Admin" {
		t.Errorf("email/name = %q/%q", res.User.Email, res.User.Name)
	}
	if !slices.Equal(res.User.Roles, []string{"DevAdmin"}) {
		t.Errorf("roles = %v", res.User.Roles)
	}
	for _, want := range []string{"rbac:manage_access", "tasks:delete", "hr:employees.read", "hr-employees:read"} {
		if !slices.Contains(res.User.Permissions, want) {
			t.Errorf("permissions missing %q", want)
		}
	}

	p, err := f.tokens.VerifyAccessToken(res.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != f.admin.UserID || p.Email != "devadmin@example.com" {
		t.Errorf("access token principal = %+v", p)
	}
	if _, err := f.tokens.VerifyRefreshToken(ctx, res.RefreshToken); err != nil {
		t.Errorf("refresh token invalid: %v", err)
	}

	if got := f.auditActions(t, f.admin.CompanyID); !slices.Contains(got, audit.ActionLogin) {
		t.Errorf("audit = %v, want %s", got, audit.ActionLogin)
	}
	if len(f.rec.logins) != 1 || !f.rec.logins[0].Success {
		t.Errorf("login events = %+v", f.rec.logins)
	}
}

// rolesOutageStore fails role lookups once failRoles is set.
type rolesOutageStore struct {
	*memory.Store
	failRoles bool
}

func (s *rolesOutageStore) ListRolesForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]*role.Role, error) {
	if s.failRoles {
		return nil, errors.New("connection reset")
	}
	return s.Store.ListRolesForUser(ctx, companyID, userID)
}

func TestFailedLoginStoresNoRefreshToken(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	backend := &rolesOutageStore{Store: mem}
	eng, err := bastion.NewEngine(bastion.WithStore(backend))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := token.NewService(mem, token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	if err != nil {
		t.Fatal(err)
	}
	hasher := &credential.Argon2id{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}
	admin, err := eng.SeedDevelopment(ctx, hasher, nil)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(eng, tokens, hasher)

	backend.failRoles = true
	if _, err := svc.Login(ctx, "devadmin@example.com", devPassword); err == nil {
		t.Fatal("expected login to fail while roles are unavailable")
	}
	live, err := mem.ListActiveRefreshTokens(ctx, admin.UserID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Fatalf("failed login left %d refresh tokens behind", len(live))
	}

	backend.failRoles = false
	if _, err := svc.Login(ctx, "devadmin@example.com", devPassword); err != nil {
		t.Fatal(err)
	}
	if live, _ := mem.ListActiveRefreshTokens(ctx, admin.UserID, time.Now()); len(live) != 1 {
		t.Fatalf("refresh tokens after login = %d, want 1", len(live))
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "gone@example.com", "password-123", "Viewer", false)

	cases := []struct {
		name, email, password string
	}{
		{"unknown email", "nobody@example.com", devPassword},
		{"wrong password", "devadmin@example.com", "nope"},
		{"inactive account", "gone@example.com", "password-123"},
		{"empty email", "   ", devPassword},
		{"empty password", "devadmin@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Login(ctx, tc.email, tc.password)
			if !errors.Is(err, bastion.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if res != nil {
				t.Fatal("no result on failure")
			}
		})
	}

	got := f.auditActions(t, f.admin.CompanyID)
	failed := 0
	for _, a := range got {
		if a == audit.ActionLoginFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("login_failed entries = %d, want 2 (wrong password, inactive)", failed)
	}
	for _, ev := range f.rec.logins {
		if ev.Success {
			t.Errorf("unexpected successful login event %+v", ev)
		}
	}
}

func TestLoginWithBcryptHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc = NewService(f.eng, f.tokens, &credential.Auto{Argon2: f.hasher, Bcrypt: &credential.Bcrypt{Cost: 4}})

	hash, err := (&credential.Bcrypt{Cost: 4}).Hash("legacy-pass")
	if err != nil {
		t.Fatal(err)
	}
	u := f.addUser(t, "legacy@example.com", "unused-pass", "Viewer", true)
	u.PasswordHash = hash
	if err := f.mem.UpdateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Login(ctx, "legacy@example.com", "legacy-pass")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.User.Roles, []string{"Viewer"}) {
		t.Errorf("roles = %v", res.User.Roles)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Login(ctx, "devadmin@example.com", devPassword)
	if err != nil {
		t.Fatal(err)
	}

	next, err := f.svc.Refresh(ctx, f.admin, res.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if next.RefreshToken == res.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	p, err := f.tokens.VerifyAccessToken(next.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "devadmin@example.com" {
		t.Errorf("new access token lost the email: %+v", p)
	}

	if _, err := f.svc.Refresh(ctx, f.admin, res.RefreshToken); !errors.Is(err, bastion.ErrInvalidToken) {
		t.Errorf("reusing a rotated token: %v", err)
	}
}

func TestRefreshRejectsOtherUsersToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "viewer@example.com", "viewer-pass", "Viewer", true)

	theirs, err := f.svc.Login(ctx, "viewer@example.com", "viewer-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refresh(ctx, f.admin, theirs.RefreshToken); !errors.Is(err, bastion.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.tokens.VerifyRefreshToken(ctx, theirs.RefreshToken); err != nil {
		t.Errorf("victim's token must survive a rejected refresh: %v", err)
	}

	wrongCompany := f.admin
	wrongCompany.CompanyID = id.NewCompanyID()
	mine, _ := f.svc.Login(ctx, "devadmin@example.com", devPassword)
	if _, err := f.svc.Refresh(ctx, wrongCompany, mine.RefreshToken); !errors.Is(err, bastion.ErrInvalidToken) {
		t.Fatalf("company mismatch: expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, bastion.Principal{}, mine.RefreshToken); !errors.Is(err, bastion.ErrUnauthenticated) {
		t.Fatalf("no principal: expected ErrUnauthenticated, got %v", err)
	}
}

func TestLogoutRevokesOnlyThatToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	laptop, _ := f.svc.Login(ctx, "devadmin@example.com", devPassword)
	phone, _ := f.svc.Login(ctx, "devadmin@example.com", devPassword)

	if err := f.svc.Logout(ctx, f.admin, laptop.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refresh(ctx, f.admin, laptop.RefreshToken); !errors.Is(err, bastion.ErrInvalidToken) {
		t.Errorf("logged-out token still refreshes: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, f.admin, phone.RefreshToken); err != nil {
		t.Errorf("other session was logged out: %v", err)
	}
	if len(f.rec.logouts) != 1 || f.rec.logouts[0] != f.admin.UserID {
		t.Errorf("logout events = %v", f.rec.logouts)
	}
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.svc.Profile(ctx, f.admin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Dev Admin" || !slices.Equal(got.Roles, []string{"DevAdmin"}) {
		t.Errorf("profile = %+v", got)
	}

	stranger := bastion.Principal{CompanyID: f.admin.CompanyID, UserID: id.NewUserID()}
	if _, err := f.svc.Profile(ctx, stranger); !errors.Is(err, bastion.ErrUnauthenticated) {
		t.Errorf("unknown user: %v", err)
	}
	foreign := bastion.Principal{CompanyID: id.NewCompanyID(), UserID: f.admin.UserID}
	if _, err := f.svc.Profile(ctx, foreign); !errors.Is(err, bastion.ErrUnauthenticated) {
		t.Errorf("company mismatch: %v", err)
	}
}

func TestModules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	viewer := f.addUser(t, "viewer@example.com", "viewer-pass", "Viewer", true)
	vp := bastion.Principal{CompanyID: viewer.CompanyID, UserID: viewer.ID}

	raw, err := f.svc.Modules(ctx, vp, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 || raw[0].Key != "projects" {
		t.Fatalf("viewer roots = %v", raw)
	}

	adminRaw, err := f.svc.Modules(ctx, f.admin, false)
	if err != nil {
		t.Fatal(err)
	}
	adminVisible, err := f.svc.Modules(ctx, f.admin, true)
	if err != nil {
		t.Fatal(err)
	}
	if !hasRoot(adminRaw, "rbac") || !hasRoot(adminVisible, "rbac") {
		t.Error("DevAdmin holds rbac:read and should see the dev_only rbac module")
	}

	perms, err := f.svc.Permissions(ctx, vp)
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(perms, "rbac:read") {
		t.Error("viewer must not hold rbac:read")
	}
	if _, err := f.svc.Modules(ctx, bastion.Principal{}, true); !errors.Is(err, bastion.ErrUnauthenticated) {
		t.Errorf("no principal: %v", err)
	}
}

func hasRoot(nodes []*bastion.ModuleNode, key string) bool {
	for _, n := range nodes {
		if n.Key == key {
			return true
		}
	}
	return false
}
