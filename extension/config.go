package extension

import "time"

// Config holds the Bastion extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bastion" or "bastion" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableSweep prevents the scheduled refresh-token cleanup.
	DisableSweep bool `json:"disable_sweep" mapstructure:"disable_sweep" yaml:"disable_sweep"`

	// BasePath is the URL prefix for bastion routes (default: "/bastion").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// SweepSchedule is the cron spec of the refresh-token cleanup
	// (default: "@every 1h").
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule" yaml:"sweep_schedule"`

	// AccessSecret and RefreshSecret sign session tokens. Both are required.
	AccessSecret  string `json:"-" mapstructure:"access_secret" yaml:"access_secret"`
	RefreshSecret string `json:"-" mapstructure:"refresh_secret" yaml:"refresh_secret"`

	// AccessTTL and RefreshTTL bound token lifetimes (default: 15m / 720h).
	AccessTTL  time.Duration `json:"access_ttl" mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL time.Duration `json:"refresh_ttl" mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/bastion",
		SweepSchedule: "@every 1h",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
	}
}
