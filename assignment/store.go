package assignment

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for role assignments.
type Store interface {
	// AssignRole inserts the binding. Assigning a role the user already
	// holds is a no-op.
	AssignRole(ctx context.Context, a *Assignment) error

	// UnassignRole removes the binding. Removing a missing binding is a no-op.
	UnassignRole(ctx context.Context, companyID id.CompanyID, userID id.UserID, roleID id.RoleID) error

	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteAssignmentsByUser removes every role the user holds in the company.
	DeleteAssignmentsByUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) error
}
