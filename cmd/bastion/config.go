package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveConfig is loaded from flags, BASTION_* environment variables and
// an optional config file, in that order of precedence.
type serveConfig struct {
	Addr          string        `mapstructure:"addr"`
	BasePath      string        `mapstructure:"base-path"`
	RedisURL      string        `mapstructure:"redis-url"`
	AccessSecret  string        `mapstructure:"access-secret"`
	RefreshSecret string        `mapstructure:"refresh-secret"`
	AccessTTL     time.Duration `mapstructure:"access-ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh-ttl"`
	SweepSchedule string        `mapstructure:"sweep-schedule"`
	RateLimit     int           `mapstructure:"rate-limit"`
	RateWindow    time.Duration `mapstructure:"rate-window"`
	TrustProxy    bool          `mapstructure:"trust-proxy"`
	Dev           bool          `mapstructure:"dev"`
	DevPermission string        `mapstructure:"dev-permission"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
}

func bindServeFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", ":8080", "listen address")
	fs.String("base-path", "/bastion", "route prefix for the API")
	fs.String("redis-url", "", "redis URL for the shared permission cache; empty keeps it in process")
	fs.String("access-secret", "", "HMAC secret for access tokens")
	fs.String("refresh-secret", "", "HMAC secret for refresh tokens")
	fs.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	fs.Duration("refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	fs.String("sweep-schedule", "@every 1h", "cron schedule for purging expired refresh tokens")
	fs.Int("rate-limit", 100, "requests per client per window")
	fs.Duration("rate-window", time.Minute, "rate limit window")
	fs.Bool("trust-proxy", false, "key rate limits by X-Forwarded-For")
	fs.Bool("dev", false, "seed the development company and administrator")
	fs.String("dev-permission", "", "permission that unlocks dev-only modules")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
}

func loadServeConfig(cmd *cobra.Command) (*serveConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("BASTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg serveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required (BASTION_ACCESS_SECRET, BASTION_REFRESH_SECRET)")
	}
	return &cfg, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
