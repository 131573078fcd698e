package bastion

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/catalog"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/memory"
	"github.com/xraph/bastion/user"
)

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

type fixture struct {
	t       *testing.T
	ctx     context.Context
	eng     *Engine
	store   *memory.Store
	company id.CompanyID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := memory.New()
	return newFixtureOn(t, s, s, opts...)
}

// newFixtureOn builds the engine on backend while the fixture seeds rows
// directly into mem, the memory store backend reads from.
func newFixtureOn(t *testing.T, mem *memory.Store, backend store.Store, opts ...Option) *fixture {
	t.Helper()
	eng, err := NewEngine(append([]Option{WithStore(backend)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := eng.EnsureSeedData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f := &fixture{t: t, ctx: ctx, eng: eng, store: mem}
	f.company = f.newCompany("Acme")
	return f
}

func (f *fixture) newCompany(name string) id.CompanyID {
	f.t.Helper()
	c := &company.Company{ID: id.NewCompanyID(), Name: name}
	if err := f.store.CreateCompany(f.ctx, c); err != nil {
		f.t.Fatalf("create company: %v", err)
	}
	return c.ID
}

func (f *fixture) newRole(companyID id.CompanyID, name string, keys ...string) id.RoleID {
	f.t.Helper()
	r := &role.Role{CompanyID: companyID, Name: name}
	if err := f.eng.CreateRole(f.ctx, r); err != nil {
		f.t.Fatalf("create role %q: %v", name, err)
	}
	if err := f.eng.SetRolePermissions(f.ctx, companyID, r.ID, keys); err != nil {
		f.t.Fatalf("grant %q: %v", name, err)
	}
	return r.ID
}

func (f *fixture) newUser(companyID id.CompanyID, email string, roles ...id.RoleID) id.UserID {
	f.t.Helper()
	u := &user.User{ID: id.NewUserID(), CompanyID: companyID, Email: email, Name: email, IsActive: true}
	if err := f.store.CreateUser(f.ctx, u); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	for _, r := range roles {
		if err := f.eng.AssignRole(f.ctx, companyID, u.ID, r); err != nil {
			f.t.Fatalf("assign role: %v", err)
		}
	}
	return u.ID
}

func (f *fixture) effective(companyID id.CompanyID, userID id.UserID) []string {
	f.t.Helper()
	perms, err := f.eng.GetUserPermissions(f.ctx, companyID, userID)
	if err != nil {
		f.t.Fatalf("get permissions: %v", err)
	}
	return perms
}

func (f *fixture) has(companyID id.CompanyID, userID id.UserID, required ...string) bool {
	f.t.Helper()
	ok, err := f.eng.UserHasPermissions(f.ctx, companyID, userID, required)
	if err != nil {
		f.t.Fatalf("has permissions: %v", err)
	}
	return ok
}

func containsAll(t *testing.T, got []string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !slices.Contains(got, w) {
			t.Errorf("effective set %v missing %q", got, w)
		}
	}
}

// failingStore wraps the memory store and fails selected calls.
type failingStore struct {
	*memory.Store
	failPermissions bool
	failAudit       bool
}

func (s *failingStore) ListPermissionKeysForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	if s.failPermissions {
		return nil, errors.New("connection reset")
	}
	return s.Store.ListPermissionKeysForUser(ctx, companyID, userID)
}

func (s *failingStore) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	if s.failAudit {
		return errors.New("disk full")
	}
	return s.Store.CreateAuditEntry(ctx, e)
}

// mapCache is a minimal Cache recording invalidations.
type mapCache struct {
	mu          sync.Mutex
	entries     map[string][]string
	generation  uint64
	invalidated int
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]string)} }

func (c *mapCache) key(companyID id.CompanyID, userID id.UserID) string {
	return companyID.String() + "/" + userID.String()
}

func (c *mapCache) Get(_ context.Context, companyID id.CompanyID, userID id.UserID) ([]string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[c.key(companyID, userID)]
	return v, c.generation, ok
}

func (c *mapCache) Set(_ context.Context, companyID id.CompanyID, userID id.UserID, generation uint64, perms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.entries[c.key(companyID, userID)] = perms
}

func (c *mapCache) InvalidateUser(_ context.Context, companyID id.CompanyID, userID id.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.generation++
	delete(c.entries, c.key(companyID, userID))
}

func (c *mapCache) InvalidateCompany(_ context.Context, _ id.CompanyID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.generation++
	clear(c.entries)
}

// revokingStore runs onRead once, right after the first permission read
// returns, to interleave a write with an in-flight resolution.
type revokingStore struct {
	*memory.Store
	onRead func()
}

func (s *revokingStore) ListPermissionKeysForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	keys, err := s.Store.ListPermissionKeysForUser(ctx, companyID, userID)
	if hook := s.onRead; hook != nil {
		s.onRead = nil
		hook()
	}
	return keys, err
}

// recorder is a plugin counting the events it receives.
type recorder struct {
	mu       sync.Mutex
	allowed  int
	denied   int
	seeded   int
	assigned int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnAccessChecked(_ context.Context, ev *plugin.AccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Allowed {
		r.allowed++
	} else {
		r.denied++
	}
	return nil
}

func (r *recorder) OnCatalogSeeded(_ context.Context, _, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seeded++
	return nil
}

func (r *recorder) OnRoleAssigned(_ context.Context, _ *assignment.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned++
	return nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

// ──────────────────────────────────────────────────
// Engine construction and seeding
// ──────────────────────────────────────────────────

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestEnsureSeedData_Idempotent(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithPlugin(rec))

	n, err := f.store.CountModules(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(len(catalog.Modules())); n != want {
		t.Fatalf("seeded %d modules, want %d", n, want)
	}
	perms, _ := f.store.CountPermissions(f.ctx, nil)

	if err := f.eng.EnsureSeedData(f.ctx); err != nil {
		t.Fatal(err)
	}
	n2, _ := f.store.CountModules(f.ctx)
	perms2, _ := f.store.CountPermissions(f.ctx, nil)
	if n2 != n || perms2 != perms {
		t.Errorf("second seed changed counts: modules %d->%d, permissions %d->%d", n, n2, perms, perms2)
	}
	if rec.seeded != 1 {
		t.Errorf("catalog seeded hook fired %d times, want 1", rec.seeded)
	}
}

func TestEnsureSeedData_SkipsPopulatedCatalog(t *testing.T) {
	s := memory.New()
	custom := &module.Module{ID: id.NewModuleID(), Key: "custom", Name: "Custom", Visibility: module.VisibilityPublic, IsActive: true}
	if err := s.CreateModule(context.Background(), custom); err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(WithStore(s))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountModules(context.Background()); n != 1 {
		t.Fatalf("populated catalog was reseeded: %d modules", n)
	}
}

// ──────────────────────────────────────────────────
// Resolution properties
// ──────────────────────────────────────────────────

func TestUnionOfRoles(t *testing.T) {
	f := newFixture(t)
	r1 := f.newRole(f.company, "Readers", "projects:read", "boards:read")
	r2 := f.newRole(f.company, "Writers", "tasks:create", "comments:create")
	u := f.newUser(f.company, "u@acme.test", r1, r2)

	containsAll(t, f.effective(f.company, u), "projects:read", "boards:read", "tasks:create", "comments:create")
}

func TestLegacyRoundTrip(t *testing.T) {
	f := newFixture(t)
	legacy := f.newRole(f.company, "Legacy", "hr:employees.update")
	u1 := f.newUser(f.company, "legacy@acme.test", legacy)
	containsAll(t, f.effective(f.company, u1), "hr:employees.update", "hr-employees:update")

	// Modern grants arrive through raw keys the catalog does not store,
	// so exercise the resolver directly.
	containsAll(t, Expand([]string{"hr-leaves:manage"}), "hr:leaves.manage")
}

func TestBareReadFanOut(t *testing.T) {
	containsAll(t, Expand([]string{"hr:read"}), "hr-employees:read", "hr-leaves:read", "hr-access:read")
}

func TestVacuousRequirement(t *testing.T) {
	mem := memory.New()
	f := newFixtureOn(t, mem, &failingStore{Store: mem, failPermissions: true})
	u := id.NewUserID()
	ok, err := f.eng.UserHasPermissions(f.ctx, f.company, u, nil)
	if err != nil || !ok {
		t.Fatalf("empty requirement = (%v, %v), want (true, nil) without a store call", ok, err)
	}
}

func TestUserWithoutRoles(t *testing.T) {
	f := newFixture(t)
	u := f.newUser(f.company, "nobody@acme.test")

	if got := f.effective(f.company, u); len(got) != 0 {
		t.Fatalf("effective set = %v, want empty", got)
	}
	if f.has(f.company, u, "tasks:read") {
		t.Error("user without roles should hold nothing")
	}
	if got := f.effective(f.company, id.NewUserID()); len(got) != 0 {
		t.Errorf("unknown user effective set = %v, want empty", got)
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany("Globex")

	roleA := f.newRole(f.company, "Editor", "tasks:read")
	roleB := f.newRole(other, "Editor", "tasks:delete", "rbac:read")
	ua := f.newUser(f.company, "a@acme.test", roleA)

	// A row pointing user A at company B's role must not leak.
	if err := f.store.AssignRole(f.ctx, &assignment.Assignment{CompanyID: other, UserID: ua, RoleID: roleB}); err != nil {
		t.Fatal(err)
	}

	got := f.effective(f.company, ua)
	if slices.Contains(got, "tasks:delete") || slices.Contains(got, "rbac:read") {
		t.Fatalf("company A resolution observed company B grants: %v", got)
	}
	containsAll(t, got, "tasks:read")

	if err := f.eng.AssignRole(f.ctx, f.company, ua, roleB); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("assigning another company's role = %v, want ErrRoleNotFound", err)
	}
}

func TestTenantModulesStayPrivate(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany("Globex")
	private := &module.Module{
		ID: id.NewModuleID(), CompanyID: id.Ptr(other), Key: "globex-reports", Name: "Reports",
		Visibility: module.VisibilityPublic, IsActive: true,
	}
	if err := f.store.CreateModule(f.ctx, private); err != nil {
		t.Fatal(err)
	}

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"globex-reports:read", "tasks:read"})
	if err != nil {
		t.Fatal(err)
	}
	if got := CountNodes(nodes); got != 3 {
		t.Fatalf("got %d nodes, want projects > boards > tasks only", got)
	}

	nodes, err = f.eng.ListModulesForUser(f.ctx, other, []string{"globex-reports:read"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Key != "globex-reports" {
		t.Fatalf("owner company should see its module, got %v", nodeKeys(nodes))
	}
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestContributorCannotCreateTasks(t *testing.T) {
	f := newFixture(t)
	contributor := f.newRole(f.company, "Contributor", "tasks:read", "tasks:update")
	u1 := f.newUser(f.company, "u1@acme.test", contributor)

	if f.has(f.company, u1, "tasks:create") {
		t.Error("contributor should not create tasks")
	}
	if !f.has(f.company, u1, "tasks:read") {
		t.Error("contributor should read tasks")
	}
}

func TestCrossSchemeSatisfaction(t *testing.T) {
	f := newFixture(t)
	admin := f.newRole(f.company, "Admin", "hr:employees.terminate")
	u2 := f.newUser(f.company, "u2@acme.test", admin)

	if !f.has(f.company, u2, "hr-employees:terminate") {
		t.Error("legacy grant should satisfy the modern requirement")
	}
	if !f.has(f.company, u2, "hr:employees.terminate") {
		t.Error("legacy grant should satisfy itself")
	}
}

func TestModuleTreeKeepsOnlyGrantedBranches(t *testing.T) {
	f := newFixture(t)

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"hr-employees:read"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Key != "hr" {
		t.Fatalf("roots = %v, want [hr]", nodeKeys(nodes))
	}
	if kids := nodeKeys(nodes[0].Children); len(kids) != 1 || kids[0] != "hr-employees" {
		t.Fatalf("hr children = %v, want [hr-employees]", kids)
	}

	reader := f.newRole(f.company, "Employee Reader", "hr:employees.read")
	u3 := f.newUser(f.company, "u3@acme.test", reader)
	nodes, err = f.eng.ModulesForUser(f.ctx, f.company, u3)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || len(nodes[0].Children) != 1 || nodes[0].Children[0].Key != "hr-employees" {
		t.Fatalf("resolved tree = %v, want hr > hr-employees", nodeKeys(nodes))
	}
}

func TestUnionAcrossViewerAndManager(t *testing.T) {
	f := newFixture(t)
	viewer := f.newRole(f.company, "Viewer", "boards:read")
	manager := f.newRole(f.company, "Manager", "tasks:create", "tasks:move")
	u4 := f.newUser(f.company, "u4@acme.test", viewer, manager)

	containsAll(t, f.effective(f.company, u4), "boards:read", "tasks:create", "tasks:move")
	if !f.has(f.company, u4, "boards:read", "tasks:move") {
		t.Error("expected both requirements satisfied")
	}
}

// ──────────────────────────────────────────────────
// Module tree
// ──────────────────────────────────────────────────

func TestModuleTreeIntegrity(t *testing.T) {
	f := newFixture(t)
	all := Expand(catalog.PermissionKeys(catalog.Modules()))

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, all)
	if err != nil {
		t.Fatal(err)
	}
	assertForest(t, nodes)
	if got, want := nodeKeys(nodes), []string{"hr", "projects", "rbac"}; !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}
	if got := CountNodes(nodes); got != len(catalog.Modules()) {
		t.Errorf("tree holds %d modules, want %d", got, len(catalog.Modules()))
	}
}

func TestModuleTreeWalksAncestors(t *testing.T) {
	f := newFixture(t)

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"comments:read"})
	if err != nil {
		t.Fatal(err)
	}
	path := []string{"projects", "boards", "tasks", "comments"}
	level := nodes
	for _, key := range path {
		if len(level) != 1 || level[0].Key != key {
			t.Fatalf("expected %q at this level, got %v", key, nodeKeys(level))
		}
		level = level[0].Children
	}
}

func TestModuleTreeInactiveAncestorStillShapesTree(t *testing.T) {
	f := newFixture(t)
	boards, err := f.store.GetModuleByKey(f.ctx, "boards")
	if err != nil {
		t.Fatal(err)
	}
	boards.IsActive = false
	if err := f.store.UpdateModule(f.ctx, boards); err != nil {
		t.Fatal(err)
	}

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"tasks:read"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Key != "projects" {
		t.Fatalf("walk should reach the true root, got %v", nodeKeys(nodes))
	}
	visible := FilterVisibleModules(nodes, false)
	if len(visible) != 1 || !visible[0].Children[0].Structural {
		t.Error("inactive boards should be kept as a structural node")
	}
}

func TestModuleTreeStopsAtForeignAncestor(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany("Globex")
	parent := &module.Module{
		ID: id.NewModuleID(), CompanyID: id.Ptr(other), Key: "globex-ops", Name: "Ops",
		Visibility: module.VisibilityPublic, IsActive: true,
	}
	child := &module.Module{
		ID: id.NewModuleID(), ParentID: id.Ptr(parent.ID), Key: "shared-desk", Name: "Desk",
		Visibility: module.VisibilityPublic, IsActive: true,
	}
	for _, m := range []*module.Module{parent, child} {
		if err := f.store.CreateModule(f.ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"shared-desk:read"})
	if err != nil {
		t.Fatal(err)
	}
	// The other company's parent is withheld, so the global child roots
	// its own tree.
	if len(nodes) != 1 || nodes[0].Key != "shared-desk" || len(nodes[0].Children) != 0 {
		t.Fatalf("roots = %v, want [shared-desk]", nodeKeys(nodes))
	}

	nodes, err = f.eng.ListModulesForUser(f.ctx, other, []string{"shared-desk:read"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Key != "globex-ops" {
		t.Fatalf("owner company roots = %v, want [globex-ops]", nodeKeys(nodes))
	}
}

func TestModuleTreeEmptyAndUnknown(t *testing.T) {
	f := newFixture(t)

	for _, perms := range [][]string{nil, {"nonexistent:read"}} {
		nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, perms)
		if err != nil {
			t.Fatal(err)
		}
		if nodes == nil || len(nodes) != 0 {
			t.Errorf("ListModulesForUser(%v) = %#v, want empty non-nil", perms, nodes)
		}
	}
}

func TestModuleTreeDepthBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxModuleDepth = 1
	f := newFixture(t, WithConfig(cfg))

	nodes, err := f.eng.ListModulesForUser(f.ctx, f.company, []string{"comments:read"})
	if err != nil {
		t.Fatal(err)
	}
	// One round fetches tasks; boards stays unresolved so tasks surfaces
	// as a root with a dangling parent.
	if len(nodes) != 1 || nodes[0].Key != "tasks" {
		t.Fatalf("roots = %v, want [tasks]", nodeKeys(nodes))
	}
	assertForest(t, nodes)
}

func TestCanSeeDevModules(t *testing.T) {
	f := newFixture(t)
	if !f.eng.CanSeeDevModules([]string{"rbac:read"}) {
		t.Error("rbac:read should unlock dev_only modules")
	}
	if f.eng.CanSeeDevModules([]string{"tasks:read"}) {
		t.Error("tasks:read should not unlock dev_only modules")
	}
}

// ──────────────────────────────────────────────────
// Guard
// ──────────────────────────────────────────────────

func TestAuthorize(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithPlugin(rec))
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", r)
	p := Principal{CompanyID: f.company, UserID: u}

	if err := f.eng.Authorize(f.ctx, p, "boards:read"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
	if err := f.eng.Authorize(f.ctx, p, "boards:read", "tasks:delete"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
	if err := f.eng.Authorize(f.ctx, Principal{}, "boards:read"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("missing principal: expected ErrAccessDenied, got %v", err)
	}
	if rec.allowed != 1 || rec.denied != 2 {
		t.Errorf("access hook saw %d allowed / %d denied, want 1 / 2", rec.allowed, rec.denied)
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	mem := memory.New()
	s := &failingStore{Store: mem}
	f := newFixtureOn(t, mem, s)
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", r)
	s.failPermissions = true

	err := f.eng.Authorize(f.ctx, Principal{CompanyID: f.company, UserID: u}, "boards:read")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("store failure should deny, got %v", err)
	}
	if err.Error() != ErrAccessDenied.Error() {
		t.Errorf("denial leaked the cause: %v", err)
	}

	ok, err := f.eng.UserHasPermissions(f.ctx, f.company, u, []string{"boards:read"})
	if err == nil || ok {
		t.Errorf("UserHasPermissions = (%v, %v), want (false, error)", ok, err)
	}
}

func TestAuthorizeContext(t *testing.T) {
	f := newFixture(t)
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", r)

	if _, err := f.eng.AuthorizeContext(f.ctx, "boards:read"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("no principal: expected ErrUnauthenticated, got %v", err)
	}
	ctx := WithPrincipal(f.ctx, Principal{CompanyID: f.company, UserID: u})
	p, err := f.eng.AuthorizeContext(ctx, "boards:read")
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if p.UserID != u {
		t.Errorf("principal user = %s, want %s", p.UserID, u)
	}
}

// ──────────────────────────────────────────────────
// Caching
// ──────────────────────────────────────────────────

func TestCacheInvalidatedOnChanges(t *testing.T) {
	c := newMapCache()
	f := newFixture(t, WithCache(c))
	viewer := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", viewer)

	if f.has(f.company, u, "tasks:create") {
		t.Fatal("unexpected grant")
	}
	if _, _, ok := c.Get(f.ctx, f.company, u); !ok {
		t.Fatal("effective set should be cached")
	}

	manager := f.newRole(f.company, "Manager", "tasks:create")
	if err := f.eng.AssignRole(f.ctx, f.company, u, manager); err != nil {
		t.Fatal(err)
	}
	if !f.has(f.company, u, "tasks:create") {
		t.Fatal("new role not visible after assignment")
	}

	if err := f.eng.SetRolePermissions(f.ctx, f.company, manager, nil); err != nil {
		t.Fatal(err)
	}
	if f.has(f.company, u, "tasks:create") {
		t.Fatal("revoked grant still visible")
	}

	if err := f.eng.UnassignRole(f.ctx, f.company, u, viewer); err != nil {
		t.Fatal(err)
	}
	if f.has(f.company, u, "boards:read") {
		t.Fatal("unassigned role still visible")
	}
}

func TestRevocationDuringResolutionIsNotCached(t *testing.T) {
	c := newMapCache()
	mem := memory.New()
	s := &revokingStore{Store: mem}
	f := newFixtureOn(t, mem, s, WithCache(c))
	admin := f.newRole(f.company, "Admin", "tasks:delete")
	u := f.newUser(f.company, "a@acme.test", admin)

	s.onRead = func() {
		if err := f.eng.UnassignRole(f.ctx, f.company, u, admin); err != nil {
			t.Errorf("unassign: %v", err)
		}
	}
	// The in-flight check observed the grant before the revocation landed.
	if !f.has(f.company, u, "tasks:delete") {
		t.Fatal("in-flight check should see the pre-revocation grant")
	}
	if _, _, ok := c.Get(f.ctx, f.company, u); ok {
		t.Fatal("set computed before the revocation must not be cached")
	}
	if f.has(f.company, u, "tasks:delete") {
		t.Fatal("revoked permission still allowed")
	}
}

// ──────────────────────────────────────────────────
// Role administration
// ──────────────────────────────────────────────────

func TestGetUserRolesSorted(t *testing.T) {
	f := newFixture(t)
	z := f.newRole(f.company, "Zeta")
	a := f.newRole(f.company, "Alpha")
	u := f.newUser(f.company, "u@acme.test", z, a)

	got, err := f.eng.GetUserRoles(f.ctx, f.company, u)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"Alpha", "Zeta"}) {
		t.Fatalf("roles = %v, want [Alpha Zeta]", got)
	}
}

func TestAssignRoleIdempotent(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithPlugin(rec))
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", r)

	if err := f.eng.AssignRole(f.ctx, f.company, u, r); err != nil {
		t.Fatalf("duplicate assignment: %v", err)
	}
	n, err := f.store.CountAssignments(f.ctx, &assignment.ListFilter{UserID: u})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	if rec.assigned != 2 {
		t.Errorf("role assigned hook fired %d times, want 2", rec.assigned)
	}
}

func TestAssignRoleRejectsForeignUser(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany("Globex")
	r := f.newRole(f.company, "Viewer")
	stranger := f.newUser(other, "s@globex.test")

	if err := f.eng.AssignRole(f.ctx, f.company, stranger, r); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	f := newFixture(t)
	f.newRole(f.company, "Viewer")

	if err := f.eng.CreateRole(f.ctx, &role.Role{CompanyID: f.company, Name: " Viewer "}); !errors.Is(err, ErrDuplicateRole) {
		t.Errorf("duplicate name: got %v, want ErrDuplicateRole", err)
	}
	if err := f.eng.CreateRole(f.ctx, &role.Role{CompanyID: f.company, Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name: got %v, want ErrInvalidInput", err)
	}
	if err := f.eng.CreateRole(f.ctx, &role.Role{CompanyID: id.NewCompanyID(), Name: "Ghost"}); !errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("unknown company: got %v, want ErrCompanyNotFound", err)
	}
	other := f.newCompany("Globex")
	if err := f.eng.CreateRole(f.ctx, &role.Role{CompanyID: other, Name: "Viewer"}); err != nil {
		t.Errorf("same name in another company: %v", err)
	}
}

func TestDeleteRoleRevokesAccess(t *testing.T) {
	f := newFixture(t)
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test", r)

	if err := f.eng.DeleteRole(f.ctx, f.company, r); err != nil {
		t.Fatal(err)
	}
	if f.has(f.company, u, "boards:read") {
		t.Error("deleted role still grants access")
	}
	if _, err := f.eng.GetRole(f.ctx, f.company, r); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("GetRole after delete = %v, want ErrRoleNotFound", err)
	}
}

func TestRolePermissionEditing(t *testing.T) {
	f := newFixture(t)
	r := f.newRole(f.company, "Editor", "tasks:read", "tasks:read")

	keys, err := f.eng.RolePermissions(f.ctx, f.company, r)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"tasks:read"}) {
		t.Fatalf("keys = %v, want [tasks:read]", keys)
	}

	if err := f.eng.SetRolePermissions(f.ctx, f.company, r, []string{"tasks:fly"}); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("unknown action: got %v, want ErrPermissionNotFound", err)
	}
	if err := f.eng.SetRolePermissions(f.ctx, f.company, r, []string{"nomodule"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("malformed key: got %v, want ErrInvalidInput", err)
	}

	ids, err := f.eng.ResolvePermissionKeys(f.ctx, []string{"tasks:delete"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.eng.AttachPermission(f.ctx, f.company, r, ids[0]); err != nil {
		t.Fatal(err)
	}
	keys, _ = f.eng.RolePermissions(f.ctx, f.company, r)
	if !slices.Equal(keys, []string{"tasks:delete", "tasks:read"}) {
		t.Fatalf("after attach keys = %v", keys)
	}
	if err := f.eng.DetachPermission(f.ctx, f.company, r, ids[0]); err != nil {
		t.Fatal(err)
	}
	keys, _ = f.eng.RolePermissions(f.ctx, f.company, r)
	if !slices.Equal(keys, []string{"tasks:read"}) {
		t.Fatalf("after detach keys = %v", keys)
	}
}

func TestListPermissionCatalog(t *testing.T) {
	f := newFixture(t)
	infos, err := f.eng.ListPermissionCatalog(f.ctx, f.company)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != len(catalog.PermissionKeys(catalog.Modules())) {
		t.Fatalf("catalog lists %d permissions", len(infos))
	}
	if !slices.IsSortedFunc(infos, func(a, b PermissionInfo) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	}) {
		t.Error("catalog should be sorted by key")
	}
	found := false
	for _, p := range infos {
		if p.Key == permission.Key("rbac", "manage_access") {
			found = p.ModuleKey == "rbac" && p.Action == "manage_access"
		}
	}
	if !found {
		t.Error("rbac:manage_access missing from catalog")
	}
}

// ──────────────────────────────────────────────────
// Provisioning
// ──────────────────────────────────────────────────

func TestProvisionCompanyMergesTemplates(t *testing.T) {
	f := newFixture(t)
	c, err := f.eng.ProvisionCompany(f.ctx, "Initech", catalog.Roles())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.ProvisionCompany(f.ctx, "Initech", catalog.Roles()); err != nil {
		t.Fatalf("second provisioning: %v", err)
	}

	roles, err := f.eng.ListCompanyRoles(f.ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	slices.Sort(names)
	want := []string{"Admin", "Contributor", "DevAdmin", "HR Manager", "Manager", "Viewer"}
	if !slices.Equal(names, want) {
		t.Fatalf("roles = %v, want %v", names, want)
	}

	hr, err := f.store.GetRoleByName(f.ctx, c.ID, "HR Manager")
	if err != nil {
		t.Fatal(err)
	}
	keys, err := f.eng.RolePermissions(f.ctx, c.ID, hr.ID)
	if err != nil {
		t.Fatal(err)
	}
	containsAll(t, keys, "projects:read", "hr:leaves.request", "hr:leaves.manage")
}

func TestSeedDevelopment(t *testing.T) {
	f := newFixture(t)
	p, err := f.eng.SeedDevelopment(f.ctx, plainHasher{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "devadmin@example.com" {
		t.Errorf("email = %q", p.Email)
	}
	if err := f.eng.Authorize(f.ctx, p, "rbac:read", "rbac:manage_access", "tasks:delete"); err != nil {
		t.Errorf("dev admin should hold everything: %v", err)
	}
	u, err := f.store.GetUser(f.ctx, p.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash != "plain$DevAdmin123!" {
		t.Errorf("password hash = %q", u.PasswordHash)
	}

	again, err := f.eng.SeedDevelopment(f.ctx, plainHasher{}, nil)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if again.UserID != p.UserID {
		t.Error("second seed created another user")
	}
}

// ──────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────

func TestAuditRecordsActorAndRequestID(t *testing.T) {
	f := newFixture(t)
	admin := f.newUser(f.company, "admin@acme.test")
	r := f.newRole(f.company, "Viewer")
	u := f.newUser(f.company, "v@acme.test")

	ctx := WithRequestID(WithPrincipal(f.ctx, Principal{CompanyID: f.company, UserID: admin}), "req-1")
	if err := f.eng.AssignRole(ctx, f.company, u, r); err != nil {
		t.Fatal(err)
	}

	entries, total, err := f.eng.ListAudit(f.ctx, &audit.QueryFilter{CompanyID: f.company, Action: audit.ActionRoleAssigned})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("got %d entries (total %d), want 1", len(entries), total)
	}
	e := entries[0]
	if e.UserID == nil || *e.UserID != admin {
		t.Errorf("actor = %v, want %s", e.UserID, admin)
	}
	if e.Metadata["request_id"] != "req-1" {
		t.Errorf("request id = %v", e.Metadata["request_id"])
	}

	if _, _, err := f.eng.ListAudit(f.ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ListAudit without company = %v, want ErrInvalidInput", err)
	}
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	mem := memory.New()
	f := newFixtureOn(t, mem, &failingStore{Store: mem, failAudit: true})
	r := f.newRole(f.company, "Viewer", "boards:read")
	u := f.newUser(f.company, "v@acme.test")

	if err := f.eng.AssignRole(f.ctx, f.company, u, r); err != nil {
		t.Fatalf("audit failure leaked into AssignRole: %v", err)
	}
	if !f.has(f.company, u, "boards:read") {
		t.Error("assignment was not persisted")
	}
}

func TestAuditDisabled(t *testing.T) {
	off := false
	cfg := DefaultConfig()
	cfg.EnableAudit = &off
	f := newFixture(t, WithConfig(cfg))
	r := f.newRole(f.company, "Viewer")
	f.newUser(f.company, "v@acme.test", r)

	_, total, err := f.eng.ListAudit(f.ctx, &audit.QueryFilter{CompanyID: f.company})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("audit disabled but %d entries written", total)
	}
}
