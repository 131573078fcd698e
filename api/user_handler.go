package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/account"
	"github.com/xraph/bastion/id"
)

func (a *API) registerUserRoutes(router forge.Router) error {
	g := router.Group(a.basePath, forge.WithGroupTags("users"))

	if err := g.GET("/users", a.listUsers,
		forge.WithSummary("List users"),
		forge.WithDescription("Lists the accounts of the caller's company with their role names."),
		forge.WithOperationID("listUsers"),
		forge.WithResponseSchema(http.StatusOK, "Users", []account.UserSummary{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/users", a.createUser,
		forge.WithSummary("Create user"),
		forge.WithDescription("Creates an account in the caller's company and grants the selected roles."),
		forge.WithOperationID("createUser"),
		forge.WithRequestSchema(CreateUserRequest{}),
		forge.WithCreatedResponse(&account.UserSummary{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/users/:userId/roles", a.assignUserRole,
		forge.WithSummary("Assign role"),
		forge.WithDescription("Grants a role to a user. Granting a held role is a no-op."),
		forge.WithOperationID("assignRole"),
		forge.WithRequestSchema(AssignRoleRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/users/:userId/roles/:roleId", a.unassignUserRole,
		forge.WithSummary("Unassign role"),
		forge.WithDescription("Takes a role from a user."),
		forge.WithOperationID("unassignRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) listUsers(ctx forge.Context, _ *ListUsersRequest) ([]account.UserSummary, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	users, err := a.accounts.ListUsers(ctx.Context(), p.CompanyID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return users, ctx.JSON(http.StatusOK, users)
}

func (a *API) createUser(ctx forge.Context, req *CreateUserRequest) (*account.UserSummary, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	u, err := a.accounts.CreateUser(ctx.Context(), p.CompanyID, account.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return u, ctx.JSON(http.StatusCreated, u)
}

func (a *API) assignUserRole(ctx forge.Context, req *AssignRoleRequest) (*struct{}, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	userID, err := id.ParseUserID(ctx.Param("userId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid user ID: %v", err))
	}
	roleID, err := id.ParseRoleID(req.RoleID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid roleId: %v", err))
	}

	if err := a.eng.AssignRole(ctx.Context(), p.CompanyID, userID, roleID); err != nil {
		return nil, a.fail(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) unassignUserRole(ctx forge.Context, _ *UserRoleRequest) (*struct{}, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	userID, err := id.ParseUserID(ctx.Param("userId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid user ID: %v", err))
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.UnassignRole(ctx.Context(), p.CompanyID, userID, roleID); err != nil {
		return nil, a.fail(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
