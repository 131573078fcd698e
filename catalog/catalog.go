// Package catalog holds the default module hierarchy, the actions each
// module exposes and the role templates provisioned for new companies.
package catalog

import (
	"fmt"
	"slices"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
)

// ModuleDef declares a catalog module. Parent names another module's key
// and must appear earlier in the list.
type ModuleDef struct {
	Key        string
	Name       string
	Visibility module.Visibility
	Parent     string
	Actions    []ActionDef
}

// ActionDef declares one permission of a module.
type ActionDef struct {
	Action      string
	Description string
}

// RoleDef is a role template: a name and the canonical keys it grants.
type RoleDef struct {
	Name        string
	Description string
	Permissions []string
}

// Modules returns the default catalog in parent-before-child order.
func Modules() []ModuleDef {
	return []ModuleDef{
		{Key: "rbac", Name: "RBAC Admin", Visibility: module.VisibilityDevOnly, Actions: []ActionDef{
			{"read", "View roles, permissions and modules"},
			{"manage_access", "Manage users, roles and grants"},
		}},
		{Key: "projects", Name: "Projects", Visibility: module.VisibilityPublic, Actions: []ActionDef{
			{"read", "View projects"},
		}},
		{Key: "boards", Name: "Boards", Visibility: module.VisibilityPublic, Parent: "projects", Actions: []ActionDef{
			{"read", "View boards"},
		}},
		{Key: "tasks", Name: "Tasks", Visibility: module.VisibilityPublic, Parent: "boards", Actions: []ActionDef{
			{"create", "Create tasks"},
			{"read", "View tasks"},
			{"update", "Edit tasks"},
			{"move", "Move tasks between columns"},
			{"delete", "Delete tasks"},
			{"comment", "Comment on tasks"},
		}},
		{Key: "comments", Name: "Comments", Visibility: module.VisibilityPublic, Parent: "tasks", Actions: []ActionDef{
			{"create", "Write comments"},
			{"read", "View comments"},
		}},
		{Key: "hr", Name: "Human Resources", Visibility: module.VisibilityPublic, Actions: []ActionDef{
			{"employees.read", "View employees"},
			{"employees.create", "Create employees"},
			{"employees.update", "Edit employees"},
			{"employees.terminate", "Terminate employees"},
			{"leaves.read", "View leave requests"},
			{"leaves.request", "Request leave"},
			{"leaves.manage", "Approve or reject leave requests"},
		}},
		{Key: "hr-employees", Name: "Employees", Visibility: module.VisibilityPublic, Parent: "hr"},
		{Key: "hr-leaves", Name: "Leave Management", Visibility: module.VisibilityPublic, Parent: "hr"},
	}
}

// Permissions returns the actions each default module declares, by
// module key. Modules without actions are omitted.
func Permissions() map[string][]string {
	out := make(map[string][]string)
	for _, d := range Modules() {
		for _, a := range d.Actions {
			out[d.Key] = append(out[d.Key], a.Action)
		}
	}
	return out
}

// PermissionKeys returns every canonical key declared by defs, in order.
func PermissionKeys(defs []ModuleDef) []string {
	var keys []string
	for _, d := range defs {
		for _, a := range d.Actions {
			keys = append(keys, permission.Key(d.Key, a.Action))
		}
	}
	return keys
}

// Roles returns the default role templates. Two templates share the
// name "HR Manager"; provisioning merges them into one role holding the
// union of both grants.
func Roles() []RoleDef {
	all := PermissionKeys(Modules())
	hrAll := []string{
		"hr:employees.read", "hr:employees.create", "hr:employees.update", "hr:employees.terminate",
		"hr:leaves.read", "hr:leaves.request", "hr:leaves.manage",
	}
	readAll := []string{"projects:read", "boards:read", "tasks:read", "comments:read"}

	return []RoleDef{
		{Name: "DevAdmin", Description: "Full access", Permissions: all},
		{Name: "Admin", Description: "Manage boards and tasks", Permissions: without(all,
			"rbac:read", "rbac:manage_access", "tasks:delete")},
		{Name: "Manager", Description: "Manage tasks", Permissions: []string{
			"projects:read", "boards:read",
			"tasks:create", "tasks:read", "tasks:update", "tasks:move", "tasks:comment",
			"comments:create", "comments:read",
		}},
		{Name: "Contributor", Description: "Work on tasks", Permissions: []string{
			"projects:read", "boards:read",
			"tasks:read", "tasks:update", "tasks:move", "tasks:comment",
			"comments:create", "comments:read",
		}},
		{Name: "HR Manager", Description: "Manage employees and leave requests", Permissions: append(slices.Clone(readAll), hrAll...)},
		{Name: "Viewer", Description: "Read-only", Permissions: readAll},
		{Name: "HR Manager", Description: "Manage employees and leaves", Permissions: without(hrAll, "hr:leaves.request")},
	}
}

func without(keys []string, drop ...string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !slices.Contains(drop, k) {
			out = append(out, k)
		}
	}
	return out
}

// Build turns module definitions into entities with fresh ids. Modules
// come back in the order given, each parent before its children, and all
// are global and active.
func Build(defs []ModuleDef) ([]*module.Module, []*permission.Permission, error) {
	byKey := make(map[string]*module.Module, len(defs))
	modules := make([]*module.Module, 0, len(defs))
	var perms []*permission.Permission
	for _, d := range defs {
		if _, dup := byKey[d.Key]; dup {
			return nil, nil, fmt.Errorf("catalog: duplicate module key %q", d.Key)
		}
		if !d.Visibility.Valid() {
			return nil, nil, fmt.Errorf("catalog: module %q: invalid visibility %q", d.Key, d.Visibility)
		}
		m := &module.Module{
			ID:         id.NewModuleID(),
			Key:        d.Key,
			Name:       d.Name,
			Visibility: d.Visibility,
			IsActive:   true,
		}
		if d.Parent != "" {
			parent, ok := byKey[d.Parent]
			if !ok {
				return nil, nil, fmt.Errorf("catalog: module %q: parent %q must be declared first", d.Key, d.Parent)
			}
			m.ParentID = id.Ptr(parent.ID)
		}
		byKey[d.Key] = m
		modules = append(modules, m)
		for _, a := range d.Actions {
			perms = append(perms, &permission.Permission{
				ID:          id.NewPermissionID(),
				ModuleID:    m.ID,
				Action:      a.Action,
				Description: a.Description,
			})
		}
	}
	return modules, perms, nil
}
