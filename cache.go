package bastion

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Cache stores effective permission sets between requests. Entries must
// be invalidated whenever a user's roles or a role's grants change; the
// Engine does this for every change made through it.
//
// Every invalidation advances the cache's generation. Get reports the
// generation current when it ran, and Set must drop the write when the
// generation has moved since, so a set read from the store before a
// revocation is never cached after it.
type Cache interface {
	// Get returns the cached effective set for the user, if present, and
	// the generation to hand back to Set after a miss.
	Get(ctx context.Context, companyID id.CompanyID, userID id.UserID) (perms []string, generation uint64, ok bool)

	// Set stores the effective set for the user unless an invalidation
	// happened after generation was observed.
	Set(ctx context.Context, companyID id.CompanyID, userID id.UserID, generation uint64, perms []string)

	// InvalidateUser drops the user's entry.
	InvalidateUser(ctx context.Context, companyID id.CompanyID, userID id.UserID)

	// InvalidateCompany drops every entry of the company.
	InvalidateCompany(ctx context.Context, companyID id.CompanyID)
}
