package api

// ──────────────────────────────────────────────────
// Session requests
// ──────────────────────────────────────────────────

// LoginRequest is the body for signing in.
type LoginRequest struct {
	Email    string `json:"email" description:"Account email"`
	Password string `json:"password" description:"Account password"`
}

// RefreshRequest carries the refresh token for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" description:"Refresh token issued at sign-in"`
}

// MeRequest is the empty request for the caller's own resources.
type MeRequest struct{}

// MeModulesRequest holds query parameters for the caller's module tree.
type MeModulesRequest struct {
	View string `query:"view" description:"\"visible\" applies the navigation presentation filter"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// CreateRoleRequest is the body for creating a role.
type CreateRoleRequest struct {
	Name        string   `json:"name" description:"Role name, unique within the company"`
	Description string   `json:"description,omitempty" description:"Human-readable description"`
	Permissions []string `json:"permissions,omitempty" description:"Initial permission keys (module:action)"`
}

// UpdateRoleRequest is the body for updating a role.
type UpdateRoleRequest struct {
	Name        string  `json:"name,omitempty" description:"Role name"`
	Description *string `json:"description,omitempty" description:"Human-readable description"`
}

// GetRoleRequest is the path parameter for a role.
type GetRoleRequest struct {
	RoleID string `path:"roleId" description:"Role ID"`
}

// SetRolePermissionsRequest replaces a role's grants.
type SetRolePermissionsRequest struct {
	Permissions []string `json:"permissions" description:"Permission keys (module:action)"`
}

// RolePermissionRequest names one grant of a role.
type RolePermissionRequest struct {
	RoleID       string `path:"roleId" description:"Role ID"`
	PermissionID string `path:"permissionId" description:"Permission ID"`
}

// ──────────────────────────────────────────────────
// User requests
// ──────────────────────────────────────────────────

// ListUsersRequest is the empty request for listing users.
type ListUsersRequest struct{}

// CreateUserRequest is the body for creating an account.
type CreateUserRequest struct {
	Email    string   `json:"email" description:"Account email"`
	Name     string   `json:"name" description:"Display name"`
	Password string   `json:"password" description:"Initial password (at least 8 characters)"`
	RoleIDs  []string `json:"roleIds" description:"Roles to grant"`
}

// AssignRoleRequest is the body for granting a role to a user.
type AssignRoleRequest struct {
	RoleID string `json:"roleId" description:"Role ID to grant"`
}

// UserRoleRequest names one role of a user.
type UserRoleRequest struct {
	UserID string `path:"userId" description:"User ID"`
	RoleID string `path:"roleId" description:"Role ID"`
}

// ──────────────────────────────────────────────────
// Catalog, check and audit requests
// ──────────────────────────────────────────────────

// ListCatalogRequest is the empty request for catalog listings.
type ListCatalogRequest struct{}

// CheckRequest asks whether a user of the caller's company holds every
// listed permission.
type CheckRequest struct {
	UserID      string   `json:"userId,omitempty" description:"User to check (default: the caller)"`
	Permissions []string `json:"permissions" description:"Required permission keys"`
}

// ListAuditRequest holds query parameters for the audit trail.
type ListAuditRequest struct {
	UserID string `query:"user_id" description:"Filter by acting user"`
	Action string `query:"action" description:"Filter by action"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}
