package audit

import (
	"context"
	"time"
)

// Store defines persistence operations for audit entries.
type Store interface {
	CreateAuditEntry(ctx context.Context, e *Entry) error

	// ListAuditEntries returns entries newest first.
	ListAuditEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)
	CountAuditEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeAuditEntries removes entries older than before.
	PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error)
}
