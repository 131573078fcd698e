package sqlite

import (
	"encoding/json"
	"fmt"
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
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	CompanyID       *string   `grove:"company_id"`
	ParentID        *string   `grove:"parent_id"`
	Key             string    `grove:"key,notnull"`
	Name            string    `grove:"name,notnull"`
	Visibility      string    `grove:"visibility,notnull"`
	IsActive        bool      `grove:"is_active,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	ModuleID        string    `grove:"module_id,notnull"`
	Action          string    `grove:"action,notnull"`
	Description     string    `grove:"description"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	CompanyID       string    `grove:"company_id,notnull"`
	Name            string    `grove:"name,notnull"`
	Description     string    `grove:"description"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	RoleID          string `grove:"role_id,pk"`
	PermissionID    string `grove:"permission_id,pk"`
}

// ──────────────────────────────────────────────────
// User-role (assignment) model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:bastion_user_roles"`
	UserID          string    `grove:"user_id,pk"`
	RoleID          string    `grove:"role_id,pk"`
	CompanyID       string    `grove:"company_id,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
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
	ID              string    `grove:"id,pk"`
	CompanyID       string    `grove:"company_id,notnull"`
	Email           string    `grove:"email,notnull"`
	Name            string    `grove:"name,notnull"`
	PasswordHash    string    `grove:"password_hash,notnull"`
	IsActive        bool      `grove:"is_active,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func userToModel(u *user.User) *userModel {
	return &userModel{
		ID:           u.ID.String(),
		CompanyID:    u.CompanyID.String(),
		Email:        u.Email,
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
	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id,notnull"`
	TokenHash       string    `grove:"token_hash,notnull"`
	ExpiresAt       time.Time `grove:"expires_at,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
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
	ID              string    `grove:"id,pk"`
	CompanyID       string    `grove:"company_id,notnull"`
	UserID          *string   `grove:"user_id"`
	Action          string    `grove:"action,notnull"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func auditToModel(e *audit.Entry) (*auditModel, error) {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = string(raw)
	}
	m := &auditModel{
		ID:        e.ID.String(),
		CompanyID: e.CompanyID.String(),
		Action:    e.Action,
		Metadata:  metadata,
		CreatedAt: e.CreatedAt,
	}
	if e.UserID != nil {
		s := e.UserID.String()
		m.UserID = &s
	}
	return m, nil
}

func auditFromModel(m *auditModel) (*audit.Entry, error) {
	eid, _ := id.ParseAuditEntryID(m.ID)     //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseCompanyID(m.CompanyID) //nolint:errcheck // stored IDs are always valid
	var metadata map[string]any
	if m.Metadata != "" && m.Metadata != "{}" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	e := &audit.Entry{
		ID:        eid,
		CompanyID: cid,
		Action:    m.Action,
		Metadata:  metadata,
		CreatedAt: m.CreatedAt,
	}
	if m.UserID != nil {
		if uid, err := id.ParseUserID(*m.UserID); err == nil {
			e.UserID = &uid
		}
	}
	return e, nil
}
