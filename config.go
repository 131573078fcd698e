package bastion

// Config holds configuration for the Bastion engine.
type Config struct {
	// DevPermission grants visibility of dev_only modules in the
	// presentation filter. Defaults to "rbac:read".
	DevPermission string `json:"dev_permission,omitempty"`

	// MaxModuleDepth bounds the ancestor walk when building the module
	// tree. Defaults to 32.
	MaxModuleDepth int `json:"max_module_depth,omitempty"`

	// SeedCatalog seeds the default module catalog on Start.
	// Defaults to true.
	SeedCatalog *bool `json:"seed_catalog,omitempty"`

	// EnableAudit writes audit entries for role and session changes.
	// Defaults to true.
	EnableAudit *bool `json:"enable_audit,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		DevPermission:  "rbac:read",
		MaxModuleDepth: 32,
		SeedCatalog:    &t,
		EnableAudit:    &t,
	}
}

func (c Config) seedEnabled() bool  { return c.SeedCatalog == nil || *c.SeedCatalog }
func (c Config) auditEnabled() bool { return c.EnableAudit == nil || *c.EnableAudit }

func (c Config) devPermission() string {
	if c.DevPermission == "" {
		return "rbac:read"
	}
	return c.DevPermission
}

func (c Config) maxModuleDepth() int {
	if c.MaxModuleDepth <= 0 {
		return 32
	}
	return c.MaxModuleDepth
}
