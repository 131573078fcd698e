// Package user defines the User principal. A user belongs to exactly one
// company but its email is unique across all companies.
package user

import (
	"time"

	"github.com/xraph/bastion/id"
)

// User is an account that can sign in and hold roles.
type User struct {
	ID           id.UserID    `json:"id" db:"id"`
	CompanyID    id.CompanyID `json:"company_id" db:"company_id"`
	Email        string       `json:"email" db:"email"`
	Name         string       `json:"name" db:"name"`
	PasswordHash string       `json:"-" db:"password_hash"`
	IsActive     bool         `json:"is_active" db:"is_active"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing users.
type ListFilter struct {
	CompanyID id.CompanyID `json:"company_id,omitempty"`
	Search    string       `json:"search,omitempty"`
	IsActive  *bool        `json:"is_active,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}
