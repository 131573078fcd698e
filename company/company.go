// Package company defines the tenant entity. Every role, user and
// assignment belongs to exactly one company.
package company

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Company is a tenant boundary.
type Company struct {
	ID        id.CompanyID `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing companies.
type ListFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines persistence operations for companies.
type Store interface {
	// CreateCompany persists a company. Names are unique.
	CreateCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, companyID id.CompanyID) (*Company, error)
	GetCompanyByName(ctx context.Context, name string) (*Company, error)
	ListCompanies(ctx context.Context, filter *ListFilter) ([]*Company, error)
}
