package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
)

// RoleDetail is a role together with its granted permission keys.
type RoleDetail struct {
	*role.Role
	Permissions []string `json:"permissions"`
}

func (a *API) registerRoleRoutes(router forge.Router) error {
	g := router.Group(a.basePath, forge.WithGroupTags("roles"))

	if err := g.POST("/roles", a.createRole,
		forge.WithSummary("Create role"),
		forge.WithDescription("Creates a role in the caller's company, optionally with initial grants."),
		forge.WithOperationID("createRole"),
		forge.WithRequestSchema(CreateRoleRequest{}),
		forge.WithCreatedResponse(&RoleDetail{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleId", a.getRole,
		forge.WithSummary("Get role"),
		forge.WithDescription("Returns a role and its permission keys."),
		forge.WithOperationID("getRole"),
		forge.WithResponseSchema(http.StatusOK, "Role details", &RoleDetail{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleId", a.updateRole,
		forge.WithSummary("Update role"),
		forge.WithDescription("Renames or re-describes a role."),
		forge.WithOperationID("updateRole"),
		forge.WithRequestSchema(UpdateRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/roles/:roleId", a.deleteRole,
		forge.WithSummary("Delete role"),
		forge.WithDescription("Deletes a role, its grants and its assignments."),
		forge.WithOperationID("deleteRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleId/permissions", a.setRolePermissions,
		forge.WithSummary("Replace role permissions"),
		forge.WithDescription("Replaces every grant of a role with the given permission keys."),
		forge.WithOperationID("setRolePermissions"),
		forge.WithRequestSchema(SetRolePermissionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Role details", &RoleDetail{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/roles/:roleId/permissions/:permissionId", a.attachPermissionToRole,
		forge.WithSummary("Attach permission to role"),
		forge.WithDescription("Grants one permission to a role."),
		forge.WithOperationID("attachPermission"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/roles/:roleId/permissions/:permissionId", a.detachPermissionFromRole,
		forge.WithSummary("Detach permission from role"),
		forge.WithDescription("Revokes one permission from a role."),
		forge.WithOperationID("detachPermission"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) createRole(ctx forge.Context, req *CreateRoleRequest) (*RoleDetail, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}

	r := &role.Role{CompanyID: p.CompanyID, Name: req.Name, Description: req.Description}
	if err := a.eng.CreateRole(ctx.Context(), r); err != nil {
		return nil, a.fail(ctx, err)
	}
	if len(req.Permissions) > 0 {
		if err := a.eng.SetRolePermissions(ctx.Context(), p.CompanyID, r.ID, req.Permissions); err != nil {
			return nil, a.fail(ctx, err)
		}
	}

	detail, err := a.roleDetail(ctx, p.CompanyID, r.ID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return detail, ctx.JSON(http.StatusCreated, detail)
}

func (a *API) getRole(ctx forge.Context, _ *GetRoleRequest) (*RoleDetail, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	detail, err := a.roleDetail(ctx, p.CompanyID, roleID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return detail, ctx.JSON(http.StatusOK, detail)
}

func (a *API) updateRole(ctx forge.Context, req *UpdateRoleRequest) (*role.Role, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	r, err := a.eng.GetRole(ctx.Context(), p.CompanyID, roleID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if req.Name != "" {
		r.Name = req.Name
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	if err := a.eng.UpdateRole(ctx.Context(), r); err != nil {
		return nil, a.fail(ctx, err)
	}
	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) deleteRole(ctx forge.Context, _ *GetRoleRequest) (*struct{}, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.DeleteRole(ctx.Context(), p.CompanyID, roleID); err != nil {
		return nil, a.fail(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) setRolePermissions(ctx forge.Context, req *SetRolePermissionsRequest) (*RoleDetail, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.SetRolePermissions(ctx.Context(), p.CompanyID, roleID, req.Permissions); err != nil {
		return nil, a.fail(ctx, err)
	}
	detail, err := a.roleDetail(ctx, p.CompanyID, roleID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return detail, ctx.JSON(http.StatusOK, detail)
}

func (a *API) attachPermissionToRole(ctx forge.Context, _ *RolePermissionRequest) (*struct{}, error) {
	return a.editGrant(ctx, true)
}

func (a *API) detachPermissionFromRole(ctx forge.Context, _ *RolePermissionRequest) (*struct{}, error) {
	return a.editGrant(ctx, false)
}

func (a *API) editGrant(ctx forge.Context, attach bool) (*struct{}, error) {
	p, err := a.guard(ctx, PermManageAccess)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}
	permID, err := id.ParsePermissionID(ctx.Param("permissionId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid permission ID: %v", err))
	}

	if attach {
		err = a.eng.AttachPermission(ctx.Context(), p.CompanyID, roleID, permID)
	} else {
		err = a.eng.DetachPermission(ctx.Context(), p.CompanyID, roleID, permID)
	}
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) roleDetail(ctx forge.Context, companyID id.CompanyID, roleID id.RoleID) (*RoleDetail, error) {
	r, err := a.eng.GetRole(ctx.Context(), companyID, roleID)
	if err != nil {
		return nil, err
	}
	perms, err := a.eng.RolePermissions(ctx.Context(), companyID, roleID)
	if err != nil {
		return nil, err
	}
	return &RoleDetail{Role: r, Permissions: perms}, nil
}
