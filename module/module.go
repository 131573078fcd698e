// Package module defines catalog modules: named capability areas that
// own permissions and form a navigation tree through ParentID.
package module

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Visibility controls who may see a module in navigation.
type Visibility string

const (
	// VisibilityPublic modules are shown to anyone holding one of their permissions.
	VisibilityPublic Visibility = "public"
	// VisibilityDevOnly modules are only shown to developers/administrators.
	VisibilityDevOnly Visibility = "dev_only"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityDevOnly
}

// Module is a catalog entry. Key is unique across the whole system.
// A nil CompanyID marks a global module shared by all tenants.
type Module struct {
	ID         id.ModuleID   `json:"id" db:"id"`
	CompanyID  *id.CompanyID `json:"company_id,omitempty" db:"company_id"`
	ParentID   *id.ModuleID  `json:"parent_id,omitempty" db:"parent_id"`
	Key        string        `json:"key" db:"key"`
	Name       string        `json:"name" db:"name"`
	Visibility Visibility    `json:"visibility" db:"visibility"`
	IsActive   bool          `json:"is_active" db:"is_active"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing modules.
type ListFilter struct {
	// CompanyID restricts the result to global modules plus the ones
	// provisioned for this company. Nil lists every module.
	CompanyID id.CompanyID `json:"company_id,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
