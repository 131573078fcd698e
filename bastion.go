// Package bastion resolves what a user may do inside a company and which
// navigation modules they may see.
//
// Roles are company-scoped bundles of permissions; a user's effective
// permission set is the union of every role they hold, expanded with the
// legacy/modern HR key variants. The Engine exposes three entry points to
// the HTTP layer: GetUserPermissions, UserHasPermissions and
// ListModulesForUser, plus Authorize, the fail-closed guard built on them.
//
//	eng, err := bastion.NewEngine(bastion.WithStore(memory.New()))
//	if err != nil { ... }
//	if err := eng.EnsureSeedData(ctx); err != nil { ... }
//	ok, err := eng.UserHasPermissions(ctx, companyID, userID, []string{"tasks:read"})
package bastion

import "github.com/xraph/bastion/id"

// Principal is the verified caller of a request, as established by the
// token service.
type Principal struct {
	CompanyID id.CompanyID `json:"companyId"`
	UserID    id.UserID    `json:"userId"`
	Email     string       `json:"email,omitempty"`
}

// Valid reports whether both the company and the user are set.
func (p Principal) Valid() bool {
	return !p.CompanyID.IsNil() && !p.UserID.IsNil()
}

// RoleSummary is the shape used to populate role pickers.
type RoleSummary struct {
	ID          id.RoleID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}
