// Package account administers the user accounts of a company.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/user"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// CreateUserInput is the payload for creating an account.
type CreateUserInput struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	RoleIDs  []string `json:"roleIds"`
}

// UserSummary is an account together with its role names.
type UserSummary struct {
	ID        id.UserID    `json:"id"`
	CompanyID id.CompanyID `json:"companyId"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	IsActive  bool         `json:"isActive"`
	Roles     []string     `json:"roles"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Service creates and lists accounts.
type Service struct {
	engine *bastion.Engine
	hasher credential.Hasher
}

// NewService returns an account service.
func NewService(eng *bastion.Engine, hasher credential.Hasher) *Service {
	return &Service{engine: eng, hasher: hasher}
}

// ListUsers returns every account of the company with its role names,
// ordered by email.
func (s *Service) ListUsers(ctx context.Context, companyID id.CompanyID) ([]UserSummary, error) {
	users, err := s.engine.Store().ListUsers(ctx, &user.ListFilter{CompanyID: companyID})
	if err != nil {
		return nil, fmt.Errorf("bastion: list users: %w", err)
	}
	out := make([]UserSummary, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, u := range users {
		g.Go(func() error {
			roles, err := s.engine.GetUserRoles(gctx, companyID, u.ID)
			if err != nil {
				return err
			}
			out[i] = summarize(u, roles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bastion: list users: %w", err)
	}
	slices.SortFunc(out, func(a, b UserSummary) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

// CreateUser validates the input, creates the account and grants the
// selected roles.
func (s *Service) CreateUser(ctx context.Context, companyID id.CompanyID, in CreateUserInput) (*UserSummary, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, invalid("email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email is not valid")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	if _, err := s.engine.Store().GetUserByEmail(ctx, email); err == nil {
		return nil, bastion.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("bastion: create user: %w", err)
	}

	roleIDs, err := s.companyRoleIDs(ctx, companyID, in.RoleIDs)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("bastion: create user: %w", err)
	}
	now := time.Now().UTC()
	u := &user.User{
		ID:           id.NewUserID(),
		CompanyID:    companyID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.engine.Store().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, bastion.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("bastion: create user: %w", err)
	}
	s.engine.Plugins().EmitUserCreated(ctx, u)

	for _, roleID := range roleIDs {
		if err := s.engine.AssignRole(ctx, companyID, u.ID, roleID); err != nil {
			return nil, err
		}
	}
	roles, err := s.engine.GetUserRoles(ctx, companyID, u.ID)
	if err != nil {
		return nil, err
	}

	actor := id.Nil
	if p, ok := bastion.PrincipalFrom(ctx); ok {
		actor = p.UserID
	}
	s.engine.Audit(ctx, companyID, actor, audit.ActionUserCreated, map[string]any{
		"created_user_id": u.ID.String(),
		"email":           email,
	})

	sum := summarize(u, roles)
	return &sum, nil
}

// companyRoleIDs trims, drops empty and deduplicates raw role ids, then
// checks that each names a role of the company.
func (s *Service) companyRoleIDs(ctx context.Context, companyID id.CompanyID, raw []string) ([]id.RoleID, error) {
	seen := make(map[string]struct{}, len(raw))
	var ids []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		ids = append(ids, r)
	}
	if len(ids) == 0 {
		return nil, invalid("at least one role is required")
	}

	available, err := s.engine.ListCompanyRoles(ctx, companyID)
	if err != nil {
		return nil, err
	}
	known := make(map[id.RoleID]struct{}, len(available))
	for _, r := range available {
		known[r.ID] = struct{}{}
	}

	out := make([]id.RoleID, 0, len(ids))
	for _, r := range ids {
		roleID, err := id.ParseRoleID(r)
		if err != nil {
			return nil, invalid("one or more selected roles are not valid")
		}
		if _, ok := known[roleID]; !ok {
			return nil, invalid("one or more selected roles are not valid")
		}
		out = append(out, roleID)
	}
	return out, nil
}

func summarize(u *user.User, roles []string) UserSummary {
	if roles == nil {
		roles = []string{}
	}
	return UserSummary{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Email:     u.Email,
		Name:      u.Name,
		IsActive:  u.IsActive,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", bastion.ErrInvalidInput, msg)
}
