package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/user"
)

// entry pairs a hook with the plugin name for logging.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered plugins and dispatches lifecycle events.
// Plugins are sorted into per-hook slices at registration so an emit
// only walks the plugins implementing that hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	accessChecked       []entry[AccessChecked]
	permissionsResolved []entry[PermissionsResolved]
	roleCreated         []entry[RoleCreated]
	roleUpdated         []entry[RoleUpdated]
	roleDeleted         []entry[RoleDeleted]
	rolePermissions     []entry[RolePermissionsChanged]
	roleAssigned        []entry[RoleAssigned]
	roleUnassigned      []entry[RoleUnassigned]
	userCreated         []entry[UserCreated]
	login               []entry[Login]
	logout              []entry[Logout]
	catalogSeeded       []entry[CatalogSeeded]
	shutdown            []entry[Shutdown]
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	collect(&r.accessChecked, name, p)
	collect(&r.permissionsResolved, name, p)
	collect(&r.roleCreated, name, p)
	collect(&r.roleUpdated, name, p)
	collect(&r.roleDeleted, name, p)
	collect(&r.rolePermissions, name, p)
	collect(&r.roleAssigned, name, p)
	collect(&r.roleUnassigned, name, p)
	collect(&r.userCreated, name, p)
	collect(&r.login, name, p)
	collect(&r.logout, name, p)
	collect(&r.catalogSeeded, name, p)
	collect(&r.shutdown, name, p)
}

func collect[H any](dst *[]entry[H], name string, p Plugin) {
	if h, ok := p.(H); ok {
		*dst = append(*dst, entry[H]{name: name, hook: h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

func emit[H any](r *Registry, hookName string, entries []entry[H], call func(H) error) {
	for _, e := range entries {
		if err := call(e.hook); err != nil {
			r.logHookError(hookName, e.name, err)
		}
	}
}

func (r *Registry) EmitAccessChecked(ctx context.Context, ev *AccessEvent) {
	emit(r, "OnAccessChecked", r.accessChecked, func(h AccessChecked) error { return h.OnAccessChecked(ctx, ev) })
}

func (r *Registry) EmitPermissionsResolved(ctx context.Context, ev *ResolveEvent) {
	emit(r, "OnPermissionsResolved", r.permissionsResolved, func(h PermissionsResolved) error { return h.OnPermissionsResolved(ctx, ev) })
}

func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	emit(r, "OnRoleCreated", r.roleCreated, func(h RoleCreated) error { return h.OnRoleCreated(ctx, rl) })
}

func (r *Registry) EmitRoleUpdated(ctx context.Context, rl *role.Role) {
	emit(r, "OnRoleUpdated", r.roleUpdated, func(h RoleUpdated) error { return h.OnRoleUpdated(ctx, rl) })
}

func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	emit(r, "OnRoleDeleted", r.roleDeleted, func(h RoleDeleted) error { return h.OnRoleDeleted(ctx, roleID) })
}

func (r *Registry) EmitRolePermissionsChanged(ctx context.Context, roleID id.RoleID) {
	emit(r, "OnRolePermissionsChanged", r.rolePermissions, func(h RolePermissionsChanged) error { return h.OnRolePermissionsChanged(ctx, roleID) })
}

func (r *Registry) EmitRoleAssigned(ctx context.Context, a *assignment.Assignment) {
	emit(r, "OnRoleAssigned", r.roleAssigned, func(h RoleAssigned) error { return h.OnRoleAssigned(ctx, a) })
}

func (r *Registry) EmitRoleUnassigned(ctx context.Context, a *assignment.Assignment) {
	emit(r, "OnRoleUnassigned", r.roleUnassigned, func(h RoleUnassigned) error { return h.OnRoleUnassigned(ctx, a) })
}

func (r *Registry) EmitUserCreated(ctx context.Context, u *user.User) {
	emit(r, "OnUserCreated", r.userCreated, func(h UserCreated) error { return h.OnUserCreated(ctx, u) })
}

func (r *Registry) EmitLogin(ctx context.Context, ev *LoginEvent) {
	emit(r, "OnLogin", r.login, func(h Login) error { return h.OnLogin(ctx, ev) })
}

func (r *Registry) EmitLogout(ctx context.Context, userID id.UserID) {
	emit(r, "OnLogout", r.logout, func(h Logout) error { return h.OnLogout(ctx, userID) })
}

func (r *Registry) EmitCatalogSeeded(ctx context.Context, modules, permissions int) {
	emit(r, "OnCatalogSeeded", r.catalogSeeded, func(h CatalogSeeded) error { return h.OnCatalogSeeded(ctx, modules, permissions) })
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error { return h.OnShutdown(ctx) })
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
