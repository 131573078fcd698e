// Package store defines the aggregate persistence interface. Each entity
// package (company, module, permission, role, assignment, user,
// refreshtoken, audit) defines its own store interface and the composite
// Store embeds them all. Backends: memory, postgres, sqlite, mongo.
package store

import (
	"context"
	"errors"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/refreshtoken"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/user"
)

// Backends wrap these so callers can classify failures with errors.Is.
var (
	// ErrNotFound reports a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// Store is the aggregate persistence interface. A single backend
// implements all of it.
type Store interface {
	company.Store
	module.Store
	permission.Store
	role.Store
	assignment.Store
	user.Store
	refreshtoken.Store
	audit.Store

	// SeedCatalog inserts the modules (parents first) and permissions when
	// the module collection is empty. It reports whether anything was
	// inserted. Either everything is inserted or nothing is.
	SeedCatalog(ctx context.Context, modules []*module.Module, perms []*permission.Permission) (bool, error)

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
