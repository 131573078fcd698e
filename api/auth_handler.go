package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/session"
)

func (a *API) registerAuthRoutes(router forge.Router) error {
	g := router.Group(a.basePath+"/auth", forge.WithGroupTags("auth"))

	if err := g.POST("/login", a.login,
		forge.WithSummary("Sign in"),
		forge.WithDescription("Checks the credentials and returns an access and refresh token pair with the user's permissions and roles."),
		forge.WithOperationID("login"),
		forge.WithRequestSchema(LoginRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Signed in", &session.LoginResult{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/refresh", a.refresh,
		forge.WithSummary("Refresh tokens"),
		forge.WithDescription("Rotates the caller's refresh token and issues a new access token."),
		forge.WithOperationID("refreshTokens"),
		forge.WithRequestSchema(RefreshRequest{}),
		forge.WithResponseSchema(http.StatusOK, "New token pair", &session.Tokens{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/logout", a.logout,
		forge.WithSummary("Sign out"),
		forge.WithDescription("Revokes the given refresh token."),
		forge.WithOperationID("logout"),
		forge.WithRequestSchema(RefreshRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/me", a.me,
		forge.WithSummary("Current user"),
		forge.WithOperationID("getProfile"),
		forge.WithResponseSchema(http.StatusOK, "Profile", &session.Profile{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/me/permissions", a.myPermissions,
		forge.WithSummary("Current user's permissions"),
		forge.WithDescription("Returns the caller's effective permission set, variants included."),
		forge.WithOperationID("getMyPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permission keys", []string{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/me/modules", a.myModules,
		forge.WithSummary("Current user's modules"),
		forge.WithDescription("Returns the caller's navigation tree."),
		forge.WithOperationID("getMyModules"),
		forge.WithRequestSchema(MeModulesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Module tree", []ModuleSummary{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/roles", a.listCompanyRoles,
		forge.WithSummary("List company roles"),
		forge.WithDescription("Lists the roles of the caller's company for role pickers."),
		forge.WithOperationID("listCompanyRoles"),
		forge.WithResponseSchema(http.StatusOK, "Roles", []bastion.RoleSummary{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) login(ctx forge.Context, req *LoginRequest) (*session.LoginResult, error) {
	res, err := a.sessions.Login(ctx.Context(), req.Email, req.Password)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return res, ctx.JSON(http.StatusOK, res)
}

func (a *API) refresh(ctx forge.Context, req *RefreshRequest) (*session.Tokens, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if req.RefreshToken == "" {
		return nil, forge.BadRequest("refreshToken is required")
	}
	res, err := a.sessions.Refresh(ctx.Context(), p, req.RefreshToken)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return res, ctx.JSON(http.StatusOK, res)
}

func (a *API) logout(ctx forge.Context, req *RefreshRequest) (*struct{}, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if req.RefreshToken == "" {
		return nil, forge.BadRequest("refreshToken is required")
	}
	if err := a.sessions.Logout(ctx.Context(), p, req.RefreshToken); err != nil {
		return nil, a.fail(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) me(ctx forge.Context, _ *MeRequest) (*session.Profile, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	profile, err := a.sessions.Profile(ctx.Context(), p)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return profile, ctx.JSON(http.StatusOK, profile)
}

func (a *API) myPermissions(ctx forge.Context, _ *MeRequest) ([]string, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	perms, err := a.sessions.Permissions(ctx.Context(), p)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return perms, ctx.JSON(http.StatusOK, perms)
}

func (a *API) myModules(ctx forge.Context, req *MeModulesRequest) ([]ModuleSummary, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	nodes, err := a.sessions.Modules(ctx.Context(), p, req.View == "visible")
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	out := summarizeModules(nodes)
	return out, ctx.JSON(http.StatusOK, out)
}

func (a *API) listCompanyRoles(ctx forge.Context, _ *MeRequest) ([]bastion.RoleSummary, error) {
	p, err := a.guard(ctx, PermRead)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roles, err := a.eng.ListCompanyRoles(ctx.Context(), p.CompanyID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return roles, ctx.JSON(http.StatusOK, roles)
}
