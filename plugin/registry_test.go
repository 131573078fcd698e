package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
)

// testPlugin implements Plugin + RoleCreated + AccessChecked + RoleAssigned.
type testPlugin struct {
	roleCreated   int
	accessChecked int
	lastAllowed   bool
	assignErr     error
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnRoleCreated(_ context.Context, _ *role.Role) error {
	t.roleCreated++
	return nil
}

func (t *testPlugin) OnAccessChecked(_ context.Context, ev *AccessEvent) error {
	t.accessChecked++
	t.lastAllowed = ev.Allowed
	return nil
}

func (t *testPlugin) OnRoleAssigned(_ context.Context, _ *assignment.Assignment) error {
	return t.assignErr
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	reg.EmitRoleCreated(ctx, &role.Role{ID: id.NewRoleID(), Name: "Viewer"})
	if tp.roleCreated != 1 {
		t.Fatalf("OnRoleCreated called %d times", tp.roleCreated)
	}

	reg.EmitAccessChecked(ctx, &AccessEvent{Allowed: true, Required: []string{"tasks:read"}})
	if tp.accessChecked != 1 || !tp.lastAllowed {
		t.Fatal("OnAccessChecked was not dispatched")
	}

	// No listeners: must not panic.
	reg.EmitRoleDeleted(ctx, id.NewRoleID())
	reg.EmitLogout(ctx, id.NewUserID())
	reg.EmitCatalogSeeded(ctx, 8, 20)
	reg.EmitShutdown(ctx)
}

func TestRegistryHookErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	reg.Register(&testPlugin{assignErr: errors.New("boom")})

	reg.EmitRoleAssigned(context.Background(), &assignment.Assignment{RoleID: id.NewRoleID()})

	out := buf.String()
	if !strings.Contains(out, "OnRoleAssigned") || !strings.Contains(out, "boom") {
		t.Fatalf("expected hook error in log, got %q", out)
	}
}

func TestNewRegistryNilLogger(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&testPlugin{assignErr: errors.New("ignored")})
	reg.EmitRoleAssigned(context.Background(), &assignment.Assignment{})
}
