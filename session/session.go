// Package session signs users in and out and serves the caller's own
// profile, permissions and navigation tree.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/token"
	"github.com/xraph/bastion/user"
)

// Profile describes the signed-in user.
type Profile struct {
	UserID      id.UserID    `json:"userId"`
	CompanyID   id.CompanyID `json:"companyId"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Permissions []string     `json:"permissions"`
	Roles       []string     `json:"roles"`
}

// Tokens is a freshly issued access and refresh token pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Tokens
	User Profile `json:"user"`
}

// Service implements sign-in, token refresh and sign-out on top of the
// engine and the token service.
type Service struct {
	engine   *bastion.Engine
	tokens   *token.Service
	verifier credential.Verifier
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a session service.
func NewService(eng *bastion.Engine, tokens *token.Service, verifier credential.Verifier, opts ...Option) *Service {
	s := &Service{engine: eng, tokens: tokens, verifier: verifier, logger: eng.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the credentials and issues a token pair together with the
// user's effective permissions and role names. Unknown emails, inactive
// accounts and wrong passwords all fail with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, bastion.ErrInvalidCredentials
	}

	u, err := s.engine.Store().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.loginFailed(ctx, email, nil, "unknown email")
		return nil, bastion.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("bastion: login: %w", err)
	}
	if !u.IsActive {
		s.loginFailed(ctx, email, u, "inactive")
		return nil, bastion.ErrInvalidCredentials
	}
	ok, err := s.verifier.Verify(u.PasswordHash, password)
	if err != nil {
		s.logger.Warn("bastion: password hash not verifiable",
			slog.String("user_id", u.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if !ok {
		s.loginFailed(ctx, email, u, "wrong password")
		return nil, bastion.ErrInvalidCredentials
	}

	p := bastion.Principal{CompanyID: u.CompanyID, UserID: u.ID, Email: u.Email}
	res := &LoginResult{User: Profile{UserID: u.ID, CompanyID: u.CompanyID, Email: u.Email, Name: u.Name}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		res.AccessToken, err = s.tokens.IssueAccessToken(p)
		return err
	})
	g.Go(func() (err error) {
		res.User.Permissions, err = s.engine.GetUserPermissions(gctx, u.CompanyID, u.ID)
		return err
	})
	g.Go(func() (err error) {
		res.User.Roles, err = s.engine.GetUserRoles(gctx, u.CompanyID, u.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bastion: login: %w", err)
	}
	// The refresh token is stored, so it is issued only once nothing else
	// can fail.
	if res.RefreshToken, err = s.tokens.IssueRefreshToken(ctx, p); err != nil {
		return nil, fmt.Errorf("bastion: login: %w", err)
	}

	s.engine.Audit(ctx, u.CompanyID, u.ID, audit.ActionLogin, nil)
	s.engine.Plugins().EmitLogin(ctx, &plugin.LoginEvent{
		Email: email, UserID: u.ID, CompanyID: u.CompanyID, Success: true,
	})
	return res, nil
}

func (s *Service) loginFailed(ctx context.Context, email string, u *user.User, reason string) {
	ev := &plugin.LoginEvent{Email: email}
	if u != nil {
		ev.UserID, ev.CompanyID = u.ID, u.CompanyID
		s.engine.Audit(ctx, u.CompanyID, u.ID, audit.ActionLoginFailed, map[string]any{"reason": reason})
	}
	s.logger.Info("bastion: login failed", slog.String("reason", reason))
	s.engine.Plugins().EmitLogin(ctx, ev)
}

// Refresh rotates the caller's refresh token and issues a new access
// token. The refresh token must belong to the caller.
func (s *Service) Refresh(ctx context.Context, p bastion.Principal, refreshToken string) (*Tokens, error) {
	if !p.Valid() {
		return nil, bastion.ErrUnauthenticated
	}
	owner, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if owner.UserID != p.UserID || owner.CompanyID != p.CompanyID {
		return nil, bastion.ErrInvalidToken
	}
	rotated, owner, err := s.tokens.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccessToken(owner)
	if err != nil {
		return nil, err
	}
	s.engine.Audit(ctx, p.CompanyID, p.UserID, audit.ActionRefresh, nil)
	return &Tokens{AccessToken: access, RefreshToken: rotated}, nil
}

// Logout revokes the given refresh token of the caller. Other devices
// stay signed in.
func (s *Service) Logout(ctx context.Context, p bastion.Principal, refreshToken string) error {
	if !p.Valid() {
		return bastion.ErrUnauthenticated
	}
	if err := s.tokens.RevokeRefreshToken(ctx, p.UserID, refreshToken); err != nil {
		return err
	}
	s.engine.Audit(ctx, p.CompanyID, p.UserID, audit.ActionLogout, nil)
	s.engine.Plugins().EmitLogout(ctx, p.UserID)
	return nil
}

// Profile returns the caller's account with effective permissions and
// role names. A caller whose account no longer exists in the company is
// unauthenticated.
func (s *Service) Profile(ctx context.Context, p bastion.Principal) (*Profile, error) {
	if !p.Valid() {
		return nil, bastion.ErrUnauthenticated
	}
	u, err := s.engine.Store().GetUser(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, bastion.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("bastion: profile: %w", err)
	}
	if u.CompanyID != p.CompanyID {
		return nil, bastion.ErrUnauthenticated
	}

	out := &Profile{UserID: u.ID, CompanyID: u.CompanyID, Email: u.Email, Name: u.Name}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Permissions, err = s.engine.GetUserPermissions(gctx, u.CompanyID, u.ID)
		return err
	})
	g.Go(func() (err error) {
		out.Roles, err = s.engine.GetUserRoles(gctx, u.CompanyID, u.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bastion: profile: %w", err)
	}
	return out, nil
}

// Permissions returns the caller's effective permission set.
func (s *Service) Permissions(ctx context.Context, p bastion.Principal) ([]string, error) {
	if !p.Valid() {
		return nil, bastion.ErrUnauthenticated
	}
	return s.engine.GetUserPermissions(ctx, p.CompanyID, p.UserID)
}

// Modules returns the caller's navigation tree. With visibleOnly the
// presentation filter drops inactive modules and, unless the caller may
// see them, dev_only modules.
func (s *Service) Modules(ctx context.Context, p bastion.Principal, visibleOnly bool) ([]*bastion.ModuleNode, error) {
	if !p.Valid() {
		return nil, bastion.ErrUnauthenticated
	}
	perms, err := s.engine.GetUserPermissions(ctx, p.CompanyID, p.UserID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.engine.ListModulesForUser(ctx, p.CompanyID, perms)
	if err != nil {
		return nil, err
	}
	if visibleOnly {
		nodes = bastion.FilterVisibleModules(nodes, s.engine.CanSeeDevModules(perms))
	}
	return nodes, nil
}
