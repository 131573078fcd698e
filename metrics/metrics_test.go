package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

func TestCollectorHooks(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	_ = c.OnAccessChecked(ctx, &plugin.AccessEvent{Allowed: true})
	_ = c.OnAccessChecked(ctx, &plugin.AccessEvent{Allowed: false, Err: context.Canceled})
	_ = c.OnPermissionsResolved(ctx, &plugin.ResolveEvent{Count: 12, Cached: true})
	_ = c.OnLogin(ctx, &plugin.LoginEvent{Success: false})
	_ = c.OnLogout(ctx, id.NewUserID())

	if got := testutil.ToFloat64(c.AccessChecks.WithLabelValues("allow")); got != 1 {
		t.Errorf("allow = %v", got)
	}
	if got := testutil.ToFloat64(c.AccessChecks.WithLabelValues("deny")); got != 1 {
		t.Errorf("deny = %v", got)
	}
	if got := testutil.ToFloat64(c.AccessCheckErrors); got != 1 {
		t.Errorf("errors = %v", got)
	}
	if got := testutil.ToFloat64(c.Resolutions.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(c.Logins.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed logins = %v", got)
	}
	if got := testutil.ToFloat64(c.Logouts); got != 1 {
		t.Errorf("logouts = %v", got)
	}
}

func TestCollectorAsEnginePlugin(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	eng, err := bastion.NewEngine(bastion.WithStore(memory.New()), bastion.WithPlugin(c))
	if err != nil {
		t.Fatal(err)
	}
	admin, err := eng.SeedDevelopment(ctx, plainHasher{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Authorize(ctx, admin, "rbac:read"); err != nil {
		t.Fatal(err)
	}
	_ = eng.Authorize(ctx, bastion.Principal{}, "rbac:read")

	if got := testutil.ToFloat64(c.AccessChecks.WithLabelValues("allow")); got != 1 {
		t.Errorf("allow = %v", got)
	}
	if got := testutil.ToFloat64(c.AccessChecks.WithLabelValues("deny")); got != 1 {
		t.Errorf("deny = %v", got)
	}
	if got := testutil.ToFloat64(c.RoleAssignments.WithLabelValues("assign")); got != 1 {
		t.Errorf("assignments = %v", got)
	}
	if got := testutil.ToFloat64(c.CatalogPermissions); got == 0 {
		t.Error("catalog seed not recorded")
	}
}

func TestHandlerExposition(t *testing.T) {
	c := New(nil)
	_ = c.OnLogout(context.Background(), id.NewUserID())

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "bastion_logouts_total 1") {
		t.Errorf("exposition missing logout counter:\n%s", body)
	}
}
