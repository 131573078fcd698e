package user

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for users.
type Store interface {
	// CreateUser persists a user. A taken email fails with store.ErrConflict.
	CreateUser(ctx context.Context, u *User) error

	GetUser(ctx context.Context, userID id.UserID) (*User, error)

	// GetUserByEmail looks the email up across every company.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	UpdateUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context, filter *ListFilter) ([]*User, error)
	CountUsers(ctx context.Context, filter *ListFilter) (int64, error)
}
