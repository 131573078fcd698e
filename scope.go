package bastion

import (
	"context"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/id"
)

// PrincipalFrom extracts the caller from ctx. A principal set with
// WithPrincipal wins; otherwise the forge scope (organization = company)
// and the forge user id are used when both parse as Bastion ids.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if p, ok := principalFromValue(ctx); ok {
		return p, true
	}
	s, ok := forge.ScopeFrom(ctx)
	if !ok {
		return Principal{}, false
	}
	companyID, err := id.ParseCompanyID(s.OrgID())
	if err != nil {
		return Principal{}, false
	}
	userID, err := id.ParseUserID(forge.UserIDFromContext(ctx))
	if err != nil {
		return Principal{}, false
	}
	return Principal{CompanyID: companyID, UserID: userID}, true
}
