package module

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for catalog modules.
type Store interface {
	// CreateModule persists a module. A duplicate key fails with store.ErrConflict.
	CreateModule(ctx context.Context, m *Module) error

	GetModule(ctx context.Context, moduleID id.ModuleID) (*Module, error)
	GetModuleByKey(ctx context.Context, key string) (*Module, error)
	UpdateModule(ctx context.Context, m *Module) error

	ListModules(ctx context.Context, filter *ListFilter) ([]*Module, error)

	// CountModules returns the total number of modules in the catalog.
	CountModules(ctx context.Context) (int64, error)

	// ListModulesByKeys returns the modules whose key is in keys and that
	// are either global or owned by companyID.
	ListModulesByKeys(ctx context.Context, companyID id.CompanyID, keys []string) ([]*Module, error)

	// ListModulesByIDs returns the modules with the given ids. Unknown
	// ids are skipped.
	ListModulesByIDs(ctx context.Context, ids []id.ModuleID) ([]*Module, error)
}
