package bastion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
)

const tracerName = "github.com/xraph/bastion"

// Engine resolves effective permissions and module trees, enforces
// permission requirements and administers roles. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	tracer  trace.Tracer
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.plugins == nil {
		e.plugins = plugin.NewRegistry(e.logger)
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start seeds the module catalog unless disabled in Config.
func (e *Engine) Start(ctx context.Context) error {
	if !e.config.seedEnabled() {
		return nil
	}
	return e.EnsureSeedData(ctx)
}

// Stop notifies plugins of shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return nil
}

// ──────────────────────────────────────────────────
// Permission resolution
// ──────────────────────────────────────────────────

// RawPermissions returns the canonical keys granted to the user by their
// roles, before variant expansion.
func (e *Engine) RawPermissions(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	keys, err := e.store.ListPermissionKeysForUser(ctx, companyID, userID)
	if err != nil {
		return nil, fmt.Errorf("bastion: raw permissions: %w", err)
	}
	return keys, nil
}

// GetUserPermissions returns the user's effective permission set: every
// raw grant plus its variant spellings, deduplicated. A user without
// roles, or unknown to the store, has an empty set.
func (e *Engine) GetUserPermissions(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "bastion.GetUserPermissions", trace.WithAttributes(
		attribute.String("bastion.company_id", companyID.String()),
		attribute.String("bastion.user_id", userID.String()),
	))
	defer span.End()
	start := time.Now()

	var generation uint64
	if e.cache != nil {
		cached, gen, ok := e.cache.Get(ctx, companyID, userID)
		if ok {
			span.SetAttributes(attribute.Bool("bastion.cached", true))
			e.plugins.EmitPermissionsResolved(ctx, &plugin.ResolveEvent{
				CompanyID: companyID, UserID: userID, Count: len(cached), Cached: true, Duration: time.Since(start),
			})
			return slices.Clone(cached), nil
		}
		generation = gen
	}

	raw, err := e.RawPermissions(ctx, companyID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve permissions")
		return nil, err
	}
	effective := Expand(raw)

	if e.cache != nil {
		e.cache.Set(ctx, companyID, userID, generation, effective)
	}
	span.SetAttributes(attribute.Int("bastion.permissions", len(effective)))
	e.plugins.EmitPermissionsResolved(ctx, &plugin.ResolveEvent{
		CompanyID: companyID, UserID: userID, Count: len(effective), Duration: time.Since(start),
	})
	return effective, nil
}

// UserHasPermissions reports whether the user's effective set satisfies
// every required key, matching either spelling of HR keys. An empty
// requirement is satisfied without touching the store.
func (e *Engine) UserHasPermissions(ctx context.Context, companyID id.CompanyID, userID id.UserID, required []string) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	effective, err := e.GetUserPermissions(ctx, companyID, userID)
	if err != nil {
		return false, err
	}
	return NewPermissionSet(effective).SatisfiesAll(required), nil
}

// ──────────────────────────────────────────────────
// Authorization guard
// ──────────────────────────────────────────────────

// Authorize is the request-time guard. It returns nil only when the
// principal positively holds every required permission. Every other
// outcome, including store failures, is ErrAccessDenied; the cause is
// logged but never returned.
func (e *Engine) Authorize(ctx context.Context, p Principal, required ...string) error {
	start := time.Now()
	ev := &plugin.AccessEvent{CompanyID: p.CompanyID, UserID: p.UserID, Required: required}

	allowed := false
	if p.Valid() {
		ok, err := e.UserHasPermissions(ctx, p.CompanyID, p.UserID, required)
		if err != nil {
			ev.Err = err
			e.logger.Error("bastion: permission check failed, denying",
				slog.String("company_id", p.CompanyID.String()),
				slog.String("user_id", p.UserID.String()),
				slog.String("error", err.Error()),
			)
		}
		allowed = ok && err == nil
	}

	ev.Allowed = allowed
	ev.Duration = time.Since(start)
	e.plugins.EmitAccessChecked(ctx, ev)

	if !allowed {
		e.logger.Debug("bastion: access denied",
			slog.String("company_id", p.CompanyID.String()),
			slog.String("user_id", p.UserID.String()),
		)
		return ErrAccessDenied
	}
	return nil
}

// AuthorizeContext runs Authorize for the principal carried by ctx. It
// returns ErrUnauthenticated when ctx carries none.
func (e *Engine) AuthorizeContext(ctx context.Context, required ...string) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if err := e.Authorize(ctx, p, required...); err != nil {
		return p, err
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Module visibility
// ──────────────────────────────────────────────────

// ListModulesForUser returns the forest of modules reachable from the
// given effective permissions. Every module named by a permission is
// included together with all of its ancestors, which shape the tree
// whether or not they are granted themselves. Modules owned by another
// company are never returned. Active and visibility flags are not
// applied here; see FilterVisibleModules.
func (e *Engine) ListModulesForUser(ctx context.Context, companyID id.CompanyID, permissions []string) ([]*ModuleNode, error) {
	ctx, span := e.tracer.Start(ctx, "bastion.ListModulesForUser", trace.WithAttributes(
		attribute.String("bastion.company_id", companyID.String()),
	))
	defer span.End()

	keys := moduleKeys(permissions)
	if len(keys) == 0 {
		return []*ModuleNode{}, nil
	}

	direct, err := e.store.ListModulesByKeys(ctx, companyID, keys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list modules")
		return nil, fmt.Errorf("bastion: list modules by keys: %w", err)
	}

	arena := newModuleArena()
	var frontier []string
	for _, m := range direct {
		if arena.add(m) {
			frontier = append(frontier, m.ID.String())
		}
	}

	maxDepth := e.config.maxModuleDepth()
	for depth := 0; len(frontier) > 0; depth++ {
		missing := arena.missingParents(frontier)
		if len(missing) == 0 {
			break
		}
		if depth >= maxDepth {
			e.logger.Warn("bastion: module ancestor walk hit depth limit",
				slog.Int("max_depth", maxDepth),
				slog.Int("unresolved", len(missing)),
			)
			break
		}
		parents, err := e.store.ListModulesByIDs(ctx, missing)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list module ancestors")
			return nil, fmt.Errorf("bastion: list module ancestors: %w", err)
		}
		frontier = frontier[:0]
		for _, m := range parents {
			if m.CompanyID != nil && *m.CompanyID != companyID {
				continue
			}
			if arena.add(m) {
				frontier = append(frontier, m.ID.String())
			}
		}
	}

	roots, cut := arena.forest()
	for _, n := range cut {
		e.logger.Warn("bastion: module parent cycle cut", slog.String("module", n.Key))
	}
	if roots == nil {
		roots = []*ModuleNode{}
	}
	span.SetAttributes(attribute.Int("bastion.modules", len(arena.nodes)))
	return roots, nil
}

// ModulesForUser resolves the user's effective permissions and returns
// their module forest.
func (e *Engine) ModulesForUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]*ModuleNode, error) {
	perms, err := e.GetUserPermissions(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	return e.ListModulesForUser(ctx, companyID, perms)
}

// CanSeeDevModules reports whether an effective set unlocks dev_only
// modules in the presentation filter.
func (e *Engine) CanSeeDevModules(perms []string) bool {
	return NewPermissionSet(perms).Satisfies(e.config.devPermission())
}
