// Package plugin defines the Bastion plugin system. Plugins are notified
// of lifecycle events (access checked, role assigned, user signed in ...)
// and react to them with metrics, tracing or logging.
//
// Each hook is its own interface so a plugin implements only the events
// it cares about.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/user"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// AccessEvent describes one authorization decision.
type AccessEvent struct {
	CompanyID id.CompanyID
	UserID    id.UserID
	Required  []string
	Allowed   bool
	// Err is set when the decision could not be computed and was denied.
	Err      error
	Duration time.Duration
}

// ResolveEvent describes one effective-permission resolution.
type ResolveEvent struct {
	CompanyID id.CompanyID
	UserID    id.UserID
	Count     int
	Cached    bool
	Duration  time.Duration
}

// LoginEvent describes a sign-in attempt. UserID is Nil when the email
// matched no account.
type LoginEvent struct {
	Email     string
	UserID    id.UserID
	CompanyID id.CompanyID
	Success   bool
}

// ──────────────────────────────────────────────────
// Authorization hooks
// ──────────────────────────────────────────────────

// AccessChecked is called after every guard decision.
type AccessChecked interface {
	OnAccessChecked(ctx context.Context, ev *AccessEvent) error
}

// PermissionsResolved is called after a user's effective set is computed.
type PermissionsResolved interface {
	OnPermissionsResolved(ctx context.Context, ev *ResolveEvent) error
}

// ──────────────────────────────────────────────────
// Role hooks
// ──────────────────────────────────────────────────

type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// RolePermissionsChanged is called after a role's grants are edited.
type RolePermissionsChanged interface {
	OnRolePermissionsChanged(ctx context.Context, roleID id.RoleID) error
}

// RoleAssigned is called after a role is granted to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleUnassigned is called after a role is taken from a user.
type RoleUnassigned interface {
	OnRoleUnassigned(ctx context.Context, a *assignment.Assignment) error
}

// ──────────────────────────────────────────────────
// Account and session hooks
// ──────────────────────────────────────────────────

type UserCreated interface {
	OnUserCreated(ctx context.Context, u *user.User) error
}

type Login interface {
	OnLogin(ctx context.Context, ev *LoginEvent) error
}

type Logout interface {
	OnLogout(ctx context.Context, userID id.UserID) error
}

// CatalogSeeded is called after the module catalog was inserted.
type CatalogSeeded interface {
	OnCatalogSeeded(ctx context.Context, modules, permissions int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
