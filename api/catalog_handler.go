package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/module"
)

func (a *API) registerCatalogRoutes(router forge.Router) error {
	g := router.Group(a.basePath, forge.WithGroupTags("catalog"))

	if err := g.GET("/modules", a.listModules,
		forge.WithSummary("List modules"),
		forge.WithDescription("Lists the catalog modules visible to the caller's company."),
		forge.WithOperationID("listModules"),
		forge.WithResponseSchema(http.StatusOK, "Modules", []*module.Module{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/permissions", a.listPermissions,
		forge.WithSummary("List permissions"),
		forge.WithDescription("Lists every grantable permission with its canonical key."),
		forge.WithOperationID("listPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permissions", []bastion.PermissionInfo{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listModules(ctx forge.Context, _ *ListCatalogRequest) ([]*module.Module, error) {
	p, err := a.guard(ctx, PermRead)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	mods, err := a.eng.ListCatalogModules(ctx.Context(), p.CompanyID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return mods, ctx.JSON(http.StatusOK, mods)
}

func (a *API) listPermissions(ctx forge.Context, _ *ListCatalogRequest) ([]bastion.PermissionInfo, error) {
	p, err := a.guard(ctx, PermRead)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	perms, err := a.eng.ListPermissionCatalog(ctx.Context(), p.CompanyID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return perms, ctx.JSON(http.StatusOK, perms)
}
