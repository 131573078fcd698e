// Package audit defines the append-only audit log entry. Entries are
// written by the engine and session services and only read back by
// administrators.
package audit

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Well-known actions.
const (
	ActionLogin          = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionRefresh        = "auth.refresh"
	ActionLogout         = "auth.logout"
	ActionRoleAssigned   = "rbac.role_assigned"
	ActionRoleUnassigned = "rbac.role_unassigned"
	ActionRoleCreated    = "rbac.role_created"
	ActionRoleUpdated    = "rbac.role_updated"
	ActionRoleDeleted    = "rbac.role_deleted"
	ActionRoleGrants     = "rbac.role_permissions_changed"
	ActionUserCreated    = "users.created"
)

// Entry is a single audit record. UserID is nil for system actions.
type Entry struct {
	ID        id.AuditEntryID `json:"id" db:"id"`
	CompanyID id.CompanyID    `json:"company_id" db:"company_id"`
	UserID    *id.UserID      `json:"user_id,omitempty" db:"user_id"`
	Action    string          `json:"action" db:"action"`
	Metadata  map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying audit entries.
type QueryFilter struct {
	CompanyID id.CompanyID `json:"company_id,omitempty"`
	UserID    id.UserID    `json:"user_id,omitempty"`
	Action    string       `json:"action,omitempty"`
	After     *time.Time   `json:"after,omitempty"`
	Before    *time.Time   `json:"before,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
