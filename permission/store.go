package permission

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for permissions.
type Store interface {
	// CreatePermission persists a new permission. A duplicate
	// (module, action) pair fails with store.ErrConflict.
	CreatePermission(ctx context.Context, p *Permission) error

	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionByAction retrieves the permission for a module action.
	GetPermissionByAction(ctx context.Context, moduleID id.ModuleID, action string) (*Permission, error)

	// DeletePermission removes a permission and detaches it from every role.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)

	// ListPermissionsByRole returns all permissions attached to a role.
	ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*Permission, error)

	// ListPermissionKeysForUser returns the raw canonical keys granted to
	// a user through every role they hold in the company. The result is
	// deduplicated. Permissions whose module no longer exists are dropped.
	// A user without roles, or unknown to the store, yields an empty slice.
	ListPermissionKeysForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error)
}
