package bastion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
)

// Audit appends an entry to the audit log. It is best-effort: failures
// are logged and never reach the caller. A Nil actor records a system
// action. The request id from ctx, if any, is added to metadata.
func (e *Engine) Audit(ctx context.Context, companyID id.CompanyID, actor id.UserID, action string, meta map[string]any) {
	if !e.config.auditEnabled() || companyID.IsNil() {
		return
	}
	if rid := RequestIDFrom(ctx); rid != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["request_id"] = rid
	}
	entry := &audit.Entry{
		ID:        id.NewAuditEntryID(),
		CompanyID: companyID,
		UserID:    id.Ptr(actor),
		Action:    action,
		Metadata:  meta,
	}
	if err := e.store.CreateAuditEntry(ctx, entry); err != nil {
		e.logger.Warn("bastion: audit write failed",
			slog.String("action", action),
			slog.String("company_id", companyID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// ListAudit returns a page of the company's audit log, newest first,
// and the total number of matching entries.
func (e *Engine) ListAudit(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, int64, error) {
	if filter == nil || filter.CompanyID.IsNil() {
		return nil, 0, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	entries, err := e.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: list audit: %w", err)
	}
	total, err := e.store.CountAuditEntries(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: count audit: %w", err)
	}
	return entries, total, nil
}
