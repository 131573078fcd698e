// Package api provides the HTTP handlers for Bastion: sign-in and session
// endpoints, the caller's permissions and navigation, and role and user
// administration.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/account"
	"github.com/xraph/bastion/middleware"
	"github.com/xraph/bastion/session"
)

// Permissions guarding the administrative endpoints.
const (
	PermRead         = "rbac:read"
	PermManageAccess = "rbac:manage_access"
)

// DefaultBasePath is the route prefix used when none is configured.
const DefaultBasePath = "/bastion"

// API wires all Bastion HTTP handlers together.
type API struct {
	eng      *bastion.Engine
	sessions *session.Service
	accounts *account.Service
	router   forge.Router
	basePath string
}

// Option configures the API.
type Option func(*API)

// WithBasePath sets the route prefix.
func WithBasePath(p string) Option {
	return func(a *API) { a.basePath = p }
}

// New creates an API from the engine, the session and account services
// and a Forge router.
func New(eng *bastion.Engine, sessions *session.Service, accounts *account.Service, router forge.Router, opts ...Option) *API {
	a := &API{eng: eng, sessions: sessions, accounts: accounts, router: router, basePath: DefaultBasePath}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
// Bearer tokens are verified with v before any route runs.
func (a *API) Handler(v middleware.AccessVerifier) http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("bastion: register routes: " + err.Error())
	}
	return middleware.RequestID(middleware.Authenticate(v)(a.router.Handler()))
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerAuthRoutes,
		a.registerCatalogRoutes,
		a.registerCheckRoutes,
		a.registerRoleRoutes,
		a.registerUserRoutes,
		a.registerAuditRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
