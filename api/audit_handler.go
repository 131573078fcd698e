package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
)

func (a *API) registerAuditRoutes(router forge.Router) error {
	g := router.Group(a.basePath, forge.WithGroupTags("audit"))

	return g.GET("/audit", a.listAudit,
		forge.WithSummary("List audit entries"),
		forge.WithDescription("Lists the caller's company audit trail, newest first."),
		forge.WithOperationID("listAudit"),
		forge.WithRequestSchema(ListAuditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entries", &ListResponse[*audit.Entry]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAudit(ctx forge.Context, req *ListAuditRequest) (*ListResponse[*audit.Entry], error) {
	p, err := a.guard(ctx, PermRead)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	filter := &audit.QueryFilter{
		CompanyID: p.CompanyID,
		Action:    req.Action,
		Limit:     defaultLimit(req.Limit),
		Offset:    req.Offset,
	}
	if req.UserID != "" {
		if filter.UserID, err = id.ParseUserID(req.UserID); err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid user_id: %v", err))
		}
	}

	entries, total, err := a.eng.ListAudit(ctx.Context(), filter)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	resp := &ListResponse[*audit.Entry]{Items: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
