// Package extension provides a Forge extension entry point for Bastion.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/account"
	"github.com/xraph/bastion/api"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/session"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/token"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bastion"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Company-scoped RBAC with permission resolution, module navigation and session tokens"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Bastion as a Forge extension. Inside a Forge app the
// caller is taken from the Forge scope (organization = company) and user
// id; outside it, API.Handler authenticates bearer tokens itself.
type Extension struct {
	config     Config
	eng        *bastion.Engine
	tokens     *token.Service
	sessions   *session.Service
	accounts   *account.Service
	sweeper    *token.Sweeper
	apiHandler *api.API
	logger     *slog.Logger
	passwords  credential.HashVerifier
	engineOpts []bastion.Option
	plugins    []plugin.Plugin
}

// New creates a Bastion Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Bastion engine.
func (e *Extension) Engine() *bastion.Engine { return e.eng }

// Sessions returns the session service.
func (e *Extension) Sessions() *session.Service { return e.sessions }

// Tokens returns the token service.
func (e *Extension) Tokens() *token.Service { return e.tokens }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It builds the engine and the
// session services, registers them in the DI container and, unless
// disabled, registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp.Container(), fapp.Router()); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*bastion.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("bastion: register engine in container: %w", err)
	}
	if err := vessel.Provide(fapp.Container(), func() (*session.Service, error) {
		return e.sessions, nil
	}); err != nil {
		return fmt.Errorf("bastion: register sessions in container: %w", err)
	}
	if err := vessel.Provide(fapp.Container(), func() (*token.Service, error) {
		return e.tokens, nil
	}); err != nil {
		return fmt.Errorf("bastion: register tokens in container: %w", err)
	}

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("bastion: register routes: %w", err)
		}
	}
	return nil
}

// Init builds the engine and services without a Forge app, for hosts
// that serve Handler from their own http.Server.
func (e *Extension) Init() error {
	return e.init(nil, nil)
}

func (e *Extension) init(container vessel.Vessel, router forge.Router) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]bastion.Option, 0, len(e.engineOpts)+len(e.plugins)+2)
	opts = append(opts, bastion.WithLogger(logger))

	// Try to resolve store from DI container, fall back to option-provided store.
	if container != nil {
		if s, err := forge.Inject[store.Store](container); err == nil {
			opts = append(opts, bastion.WithStore(s))
		}
	}
	opts = append(opts, e.engineOpts...)
	for _, x := range e.plugins {
		opts = append(opts, bastion.WithPlugin(x))
	}

	eng, err := bastion.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("bastion: create engine: %w", err)
	}
	e.eng = eng

	tokens, err := token.NewService(eng.Store(), token.Config{
		AccessSecret:  []byte(e.config.AccessSecret),
		RefreshSecret: []byte(e.config.RefreshSecret),
		AccessTTL:     e.config.AccessTTL,
		RefreshTTL:    e.config.RefreshTTL,
	}, token.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("bastion: create token service: %w", err)
	}
	e.tokens = tokens

	if e.passwords == nil {
		e.passwords = credential.NewAuto()
	}
	e.sessions = session.NewService(eng, tokens, e.passwords, session.WithLogger(logger))
	e.accounts = account.NewService(eng, e.passwords)
	e.apiHandler = api.New(eng, e.sessions, e.accounts, router, api.WithBasePath(e.config.BasePath))

	if !e.config.DisableSweep {
		sw, err := token.NewSweeper(tokens, e.config.SweepSchedule, logger)
		if err != nil {
			return fmt.Errorf("bastion: %w", err)
		}
		e.sweeper = sw
	}
	return nil
}

// Start runs migrations if enabled, seeds the catalog and starts the
// refresh-token sweep.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("bastion: migration failed: %w", err)
		}
	}
	if err := e.eng.Start(ctx); err != nil {
		return err
	}
	if e.sweeper != nil {
		e.sweeper.Start()
	}
	return nil
}

// Stop halts the sweep and shuts the engine down.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	if e.sweeper != nil {
		e.sweeper.Stop(ctx)
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns a standalone HTTP handler for all API routes with
// bearer-token authentication.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler(e.tokens)
}

// RegisterRoutes registers all bastion API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
