// Package role defines the company-scoped Role entity and its store
// interface. A role bundles permissions; users hold roles.
package role

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Role is a named bundle of permissions inside one company.
// (CompanyID, Name) is unique.
type Role struct {
	ID          id.RoleID    `json:"id" db:"id"`
	CompanyID   id.CompanyID `json:"company_id" db:"company_id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	CompanyID id.CompanyID `json:"company_id,omitempty"`
	Search    string       `json:"search,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
