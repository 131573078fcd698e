package role

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for roles and their permission
// joins.
type Store interface {
	// CreateRole persists a new role. A second role with the same
	// (company, name) fails with store.ErrConflict.
	CreateRole(ctx context.Context, r *Role) error

	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoleByName retrieves a role by company and exact name.
	GetRoleByName(ctx context.Context, companyID id.CompanyID, name string) (*Role, error)

	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRole removes a role together with its permission and user joins.
	DeleteRole(ctx context.Context, roleID id.RoleID) error

	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)

	// ListRolesForUser returns the roles a user holds inside a company.
	ListRolesForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]*Role, error)

	// ListRolePermissions returns permission IDs attached to a role.
	ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]id.PermissionID, error)

	// AttachPermission links a permission to a role. Attaching twice is a no-op.
	AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error

	DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error

	// SetRolePermissions replaces the role's permission set in one step.
	SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error
}
