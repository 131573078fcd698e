package mongo

import (
	"strings"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/refreshtoken"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/user"
)

// ──────────────────────────────────────────────────
// Company model
// ──────────────────────────────────────────────────

type companyModel struct {
	grove.BaseModel `grove:"table:bastion_companies"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	Name            string    `grove:"name" bson:"name"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func companyToModel(c *company.Company) *companyModel {
	return &companyModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func companyFromModel(m *companyModel) *company.Company {
	cid, _ := id.ParseCompanyID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &company.Company{
		ID:        cid,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Module model
// ──────────────────────────────────────────────────

type moduleModel struct {
	grove.BaseModel `grove:"table:bastion_modules"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	CompanyID       *string   `grove:"company_id" bson:"company_id,omitempty"`
	ParentID        *string   `grove:"parent_id" bson:"parent_id,omitempty"`
	Key             string    `grove:"key" bson:"key"`
	Name            string    `grove:"name" bson:"name"`
	Visibility      string    `grove:"visibility" bson:"visibility"`
	IsActive        bool      `grove:"is_active" bson:"is_active"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func moduleToModel(m *module.Module) *moduleModel {
	out := &moduleModel{
		ID:         m.ID.String(),
		Key:        m.Key,
		Name:       m.Name,
		Visibility: string(m.Visibility),
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.CompanyID != nil {
		s := m.CompanyID.String()
		out.CompanyID = &s
	}
	if m.ParentID != nil {
		s := m.ParentID.String()
		out.ParentID = &s
	}
	return out
}

func moduleFromModel(m *moduleModel) *module.Module {
	mid, _ := id.ParseModuleID(m.ID) //nolint:errcheck // stored IDs are always valid
	out := &module.Module{
		ID:         mid,
		Key:        m.Key,
		Name:       m.Name,
		Visibility: module.Visibility(m.Visibility),
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.CompanyID != nil {
		if cid, err := id.ParseCompanyID(*m.CompanyID); err == nil {
			out.CompanyID = &cid
		}
	}
	if m.ParentID != nil {
		if pid, err := id.ParseModuleID(*m.ParentID); err == nil {
			out.ParentID = &pid
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:bastion_permissions"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	ModuleID        string    `grove:"module_id" bson:"module_id"`
	Action          string    `grove:"action" bson:"action"`
	Description     string    `grove:"description" bson:"description"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:          p.ID.String(),
		ModuleID:    p.ModuleID.String(),
		Action:      p.Action,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID)   //nolint:errcheck // stored IDs are always valid
	mid, _ := id.ParseModuleID(m.ModuleID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:          pid,
		ModuleID:    mid,
		Action:      m.Action,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:bastion_roles"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	CompanyID       string    `grove:"company_id" bson:"company_id"`
	Name            string    `grove:"name" bson:"name"`
	Description     string    `grove:"description" bson:"description"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func roleToModel(r *role.Role) *roleModel {
	return &roleModel{
		ID:          r.ID.String(),
		CompanyID:   r.CompanyID.String(),
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID)           //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseCompanyID(m.CompanyID) //nolint:errcheck // stored IDs are always valid
	return &role.Role{
		ID:          rid,
		CompanyID:   cid,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role-permission join model
// ──────────────────────────────────────────────────

type rolePermissionModel struct {
	grove.BaseModel `grove:"table:bastion_role_permissions"`
	ID              string `grove:"id,pk"          bson:"_id"`
	RoleID          string `grove:"role_id"        bson:"role_id"`
	PermissionID    string `grove:"permission_id"  bson:"permission_id"`
}

func newRolePermission(roleID, permID string) rolePermissionModel {
	return rolePermissionModel{ID: roleID + ":" + permID, RoleID: roleID, PermissionID: permID}
}

// ──────────────────────────────────────────────────
// User-role (assignment) model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:bastion_user_roles"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	UserID          string    `grove:"user_id" bson:"user_id"`
	RoleID          string    `grove:"role_id" bson:"role_id"`
	CompanyID       string    `grove:"company_id" bson:"company_id"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:        a.UserID.String() + ":" + a.RoleID.String(),
		UserID:    a.UserID.String(),
		RoleID:    a.RoleID.String(),
		CompanyID: a.CompanyID.String(),
		CreatedAt: a.CreatedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	uid, _ := id.ParseUserID(m.UserID)       //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)       //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseCompanyID(m.CompanyID) //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		CompanyID: cid,
		UserID:    uid,
		RoleID:    rid,
		CreatedAt: m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// User model
// ──────────────────────────────────────────────────

type userModel struct {
	grove.BaseModel `grove:"table:bastion_users"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	CompanyID       string    `grove:"company_id" bson:"company_id"`
	Email           string    `grove:"email" bson:"email"`
	EmailLower      string    `grove:"email_lower" bson:"email_lower"`
	Name            string    `grove:"name" bson:"name"`
	PasswordHash    string    `grove:"password_hash" bson:"password_hash"`
	IsActive        bool      `grove:"is_active" bson:"is_active"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func userToModel(u *user.User) *userModel {
	return &userModel{
		ID:           u.ID.String(),
		CompanyID:    u.CompanyID.String(),
		Email:        u.Email,
		EmailLower:   strings.ToLower(u.Email),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m *userModel) *user.User {
	uid, _ := id.ParseUserID(m.ID)           //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseCompanyID(m.CompanyID) //nolint:errcheck // stored IDs are always valid
	return &user.User{
		ID:           uid,
		CompanyID:    cid,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Refresh token model
// ──────────────────────────────────────────────────

type refreshTokenModel struct {
	grove.BaseModel `grove:"table:bastion_refresh_tokens"`
	ID              string    `grove:"id,pk"          bson:"_id"`
	UserID          string    `grove:"user_id" bson:"user_id"`
	TokenHash       string    `grove:"token_hash" bson:"token_hash"`
	ExpiresAt       time.Time `grove:"expires_at" bson:"expires_at"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
}

func refreshTokenToModel(t *refreshtoken.Token) *refreshTokenModel {
	return &refreshTokenModel{
		ID:        t.ID.String(),
		UserID:    t.UserID.String(),
		TokenHash: t.TokenHash,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
}

func refreshTokenFromModel(m *refreshTokenModel) *refreshtoken.Token {
	tid, _ := id.ParseRefreshTokenID(m.ID) //nolint:errcheck // stored IDs are always valid
	uid, _ := id.ParseUserID(m.UserID)     //nolint:errcheck // stored IDs are always valid
	return &refreshtoken.Token{
		ID:        tid,
		UserID:    uid,
		TokenHash: m.TokenHash,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Audit model
// ──────────────────────────────────────────────────

type auditModel struct {
	grove.BaseModel `grove:"table:bastion_audit_log"`
	ID              string         `grove:"id,pk"          bson:"_id"`
	CompanyID       string         `grove:"company_id" bson:"company_id"`
	UserID          *string        `grove:"user_id" bson:"user_id,omitempty"`
	Action          string         `grove:"action" bson:"action"`
	Metadata        map[string]any `grove:"metadata" bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at" bson:"created_at"`
}

func auditToModel(e *audit.Entry) *auditModel {
	m := &auditModel{
		ID:        e.ID.String(),
		CompanyID: e.CompanyID.String(),
		Action:    e.Action,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
	if e.UserID != nil {
		s := e.UserID.String()
		m.UserID = &s
	}
	return m
}

func auditFromModel(m *auditModel) *audit.Entry {
	eid, _ := id.ParseAuditEntryID(m.ID)     //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseCompanyID(m.CompanyID) //nolint:errcheck // stored IDs are always valid
	e := &audit.Entry{
		ID:        eid,
		CompanyID: cid,
		Action:    m.Action,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
	if m.UserID != nil {
		if uid, err := id.ParseUserID(*m.UserID); err == nil {
			e.UserID = &uid
		}
	}
	return e
}
