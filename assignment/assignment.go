// Package assignment defines the user-to-role binding. An assignment is
// keyed by (UserID, RoleID) and carries the company for scoped queries.
package assignment

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Assignment grants a role to a user inside a company.
type Assignment struct {
	CompanyID id.CompanyID `json:"company_id" db:"company_id"`
	UserID    id.UserID    `json:"user_id" db:"user_id"`
	RoleID    id.RoleID    `json:"role_id" db:"role_id"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	CompanyID id.CompanyID `json:"company_id,omitempty"`
	UserID    id.UserID    `json:"user_id,omitempty"`
	RoleID    id.RoleID    `json:"role_id,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
