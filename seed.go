package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/bastion/catalog"
	"github.com/xraph/bastion/company"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/user"
)

// PasswordHasher produces a storable password hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// DevSeed describes the development tenant created by SeedDevelopment.
type DevSeed struct {
	Company  string
	Email    string
	Name     string
	Password string
	Role     string
}

// DefaultDevSeed returns the development tenant defaults.
func DefaultDevSeed() DevSeed {
	return DevSeed{
		Company:  "Dev Company",
		Email:    "devadmin@example.com",
		Name:     "Dev Admin",
		Password: "DevAdmin123!",
		Role:     "DevAdmin",
	}
}

// EnsureSeedData inserts the default module catalog when the module
// collection is empty. It never overwrites or duplicates rows and is
// safe to call on every start.
func (e *Engine) EnsureSeedData(ctx context.Context) error {
	n, err := e.store.CountModules(ctx)
	if err != nil {
		return fmt.Errorf("bastion: count modules: %w", err)
	}
	if n > 0 {
		return nil
	}

	modules, perms, err := catalog.Build(catalog.Modules())
	if err != nil {
		return fmt.Errorf("bastion: build catalog: %w", err)
	}
	inserted, err := e.store.SeedCatalog(ctx, modules, perms)
	if err != nil {
		return fmt.Errorf("bastion: seed catalog: %w", err)
	}
	if !inserted {
		// Another process seeded between the count and the insert.
		return nil
	}

	e.logger.Info("bastion: module catalog seeded",
		slog.Int("modules", len(modules)),
		slog.Int("permissions", len(perms)),
	)
	e.plugins.EmitCatalogSeeded(ctx, len(modules), len(perms))
	return nil
}

// ProvisionCompany get-or-creates the named company and one role per
// template, attaching every permission a role is missing. Templates that
// share a name merge into one role holding the union of their grants.
// Running it again is a no-op.
func (e *Engine) ProvisionCompany(ctx context.Context, name string, templates []catalog.RoleDef) (*company.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}

	c, err := e.store.GetCompanyByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c = &company.Company{ID: id.NewCompanyID(), Name: name}
		if err := e.store.CreateCompany(ctx, c); err != nil {
			return nil, fmt.Errorf("bastion: create company: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("bastion: get company: %w", err)
	}

	for _, tmpl := range templates {
		r, err := e.ensureRole(ctx, c.ID, tmpl)
		if err != nil {
			return nil, err
		}
		permIDs, err := e.ResolvePermissionKeys(ctx, tmpl.Permissions)
		if err != nil {
			return nil, fmt.Errorf("bastion: role %q: %w", tmpl.Name, err)
		}
		for _, pid := range permIDs {
			if err := e.store.AttachPermission(ctx, r.ID, pid); err != nil {
				return nil, fmt.Errorf("bastion: role %q: attach permission: %w", tmpl.Name, err)
			}
		}
	}
	e.invalidateCompany(ctx, c.ID)
	return c, nil
}

func (e *Engine) ensureRole(ctx context.Context, companyID id.CompanyID, tmpl catalog.RoleDef) (*role.Role, error) {
	r, err := e.store.GetRoleByName(ctx, companyID, tmpl.Name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("bastion: get role %q: %w", tmpl.Name, err)
	}
	r = &role.Role{
		ID:          id.NewRoleID(),
		CompanyID:   companyID,
		Name:        tmpl.Name,
		Description: tmpl.Description,
	}
	if err := e.store.CreateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("bastion: create role %q: %w", tmpl.Name, err)
	}
	return r, nil
}

// SeedDevelopment provisions a development tenant with the default role
// templates and an administrator account. A nil seed uses
// DefaultDevSeed. An existing account is left untouched apart from
// receiving the role. It returns the administrator as a principal.
func (e *Engine) SeedDevelopment(ctx context.Context, hasher PasswordHasher, seed *DevSeed) (Principal, error) {
	s := DefaultDevSeed()
	if seed != nil {
		s = *seed
	}
	if err := e.EnsureSeedData(ctx); err != nil {
		return Principal{}, err
	}
	c, err := e.ProvisionCompany(ctx, s.Company, catalog.Roles())
	if err != nil {
		return Principal{}, err
	}
	r, err := e.store.GetRoleByName(ctx, c.ID, s.Role)
	if err != nil {
		return Principal{}, translate(err, ErrRoleNotFound, nil)
	}

	email := strings.ToLower(strings.TrimSpace(s.Email))
	u, err := e.store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, herr := hasher.Hash(s.Password)
		if herr != nil {
			return Principal{}, fmt.Errorf("bastion: hash dev password: %w", herr)
		}
		u = &user.User{
			ID:           id.NewUserID(),
			CompanyID:    c.ID,
			Email:        email,
			Name:         s.Name,
			PasswordHash: hash,
			IsActive:     true,
		}
		if err := e.store.CreateUser(ctx, u); err != nil {
			return Principal{}, translate(err, nil, ErrDuplicateEmail)
		}
		e.plugins.EmitUserCreated(ctx, u)
	case err != nil:
		return Principal{}, fmt.Errorf("bastion: get dev user: %w", err)
	}
	if u.CompanyID != c.ID {
		return Principal{}, fmt.Errorf("%w: %s belongs to another company", ErrDuplicateEmail, email)
	}

	if err := e.AssignRole(ctx, c.ID, u.ID, r.ID); err != nil {
		return Principal{}, err
	}
	e.logger.Info("bastion: development tenant ready",
		slog.String("company", c.Name),
		slog.String("email", u.Email),
	)
	return Principal{CompanyID: c.ID, UserID: u.ID, Email: u.Email}, nil
}
