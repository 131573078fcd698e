package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/extension"
	"github.com/xraph/bastion/metrics"
	"github.com/xraph/bastion/middleware"
	"github.com/xraph/bastion/store/memory"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API on an in-process store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel, cfg.LogFormat))
		},
	}
	bindServeFlags(cmd)
	return cmd
}

func serve(ctx context.Context, cfg *serveConfig, logger *slog.Logger) error {
	collector := metrics.New(nil)
	passwords := credential.NewAuto()

	engCfg := bastion.DefaultConfig()
	if cfg.DevPermission != "" {
		engCfg.DevPermission = cfg.DevPermission
	}

	opts := []extension.ExtOption{
		extension.WithStore(memory.New()),
		extension.WithLogger(logger),
		extension.WithPlugin(collector),
		extension.WithPasswords(passwords),
		extension.WithEngineOptions(bastion.WithConfig(engCfg)),
		extension.WithConfig(extension.Config{
			BasePath:      cfg.BasePath,
			SweepSchedule: cfg.SweepSchedule,
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
		}),
		extension.WithTokenSecrets(cfg.AccessSecret, cfg.RefreshSecret),
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisFromURL(ctx, cfg.RedisURL, cache.WithRedisLogger(logger))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close() //nolint:errcheck // best-effort on shutdown
		opts = append(opts, extension.WithCache(rc))
	} else {
		opts = append(opts, extension.WithCache(cache.NewMemory()))
	}

	ext := extension.New(opts...)
	if err := ext.Init(); err != nil {
		return err
	}
	if err := ext.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := ext.Stop(stopCtx); err != nil {
			logger.Warn("bastion: shutdown", slog.String("error", err.Error()))
		}
	}()

	if cfg.Dev {
		p, err := ext.Engine().SeedDevelopment(ctx, passwords, nil)
		if err != nil {
			return fmt.Errorf("seed development data: %w", err)
		}
		seed := bastion.DefaultDevSeed()
		logger.Info("bastion: development administrator ready",
			slog.String("email", seed.Email),
			slog.String("company_id", p.CompanyID.String()),
			slog.String("user_id", p.UserID.String()),
		)
	}

	limiterOpts := []middleware.RateLimitOption{}
	if cfg.TrustProxy {
		limiterOpts = append(limiterOpts, middleware.WithTrustProxy())
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, limiterOpts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ext.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", limiter.Middleware(ext.Handler()))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bastion: listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
