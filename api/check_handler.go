package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/id"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group(a.basePath, forge.WithGroupTags("check"))

	return g.POST("/check", a.check,
		forge.WithSummary("Check permissions"),
		forge.WithDescription("Reports whether a user of the caller's company holds every listed permission. Variant spellings are honored on both sides."),
		forge.WithOperationID("checkPermissions"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check result", &CheckResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	p, err := a.guard(ctx, PermRead)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if len(req.Permissions) == 0 {
		return nil, forge.BadRequest("permissions is required")
	}

	userID := p.UserID
	if req.UserID != "" {
		if userID, err = id.ParseUserID(req.UserID); err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid userId: %v", err))
		}
	}

	ok, err := a.eng.UserHasPermissions(ctx.Context(), p.CompanyID, userID, req.Permissions)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	resp := &CheckResponse{Allowed: ok}
	return resp, ctx.JSON(http.StatusOK, resp)
}
