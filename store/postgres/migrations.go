package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (PostgreSQL).
var Migrations = migrate.NewGroup("bastion")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_companies",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_companies (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_companies`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_modules",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_modules (
    id          TEXT PRIMARY KEY,
    company_id  TEXT REFERENCES bastion_companies(id) ON DELETE CASCADE,
    parent_id   TEXT REFERENCES bastion_modules(id) ON DELETE SET NULL,
    key         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    visibility  TEXT NOT NULL DEFAULT 'public',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bastion_modules_parent ON bastion_modules (parent_id);
CREATE INDEX IF NOT EXISTS idx_bastion_modules_company ON bastion_modules (company_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_modules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_permissions (
    id           TEXT PRIMARY KEY,
    module_id    TEXT NOT NULL REFERENCES bastion_modules(id) ON DELETE CASCADE,
    action       TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(module_id, action)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_roles (
    id           TEXT PRIMARY KEY,
    company_id   TEXT NOT NULL REFERENCES bastion_companies(id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(company_id, name)
);

CREATE TABLE IF NOT EXISTS bastion_role_permissions (
    role_id        TEXT NOT NULL REFERENCES bastion_roles(id) ON DELETE CASCADE,
    permission_id  TEXT NOT NULL REFERENCES bastion_permissions(id) ON DELETE CASCADE,
    PRIMARY KEY (role_id, permission_id)
);

CREATE INDEX IF NOT EXISTS idx_bastion_role_permissions_perm ON bastion_role_permissions (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS bastion_role_permissions;
DROP TABLE IF EXISTS bastion_roles;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_users",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_users (
    id             TEXT PRIMARY KEY,
    company_id     TEXT NOT NULL REFERENCES bastion_companies(id) ON DELETE CASCADE,
    email          TEXT NOT NULL,
    name           TEXT NOT NULL,
    password_hash  TEXT NOT NULL,
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bastion_users_email ON bastion_users (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_bastion_users_company ON bastion_users (company_id);

CREATE TABLE IF NOT EXISTS bastion_user_roles (
    user_id     TEXT NOT NULL REFERENCES bastion_users(id) ON DELETE CASCADE,
    role_id     TEXT NOT NULL REFERENCES bastion_roles(id) ON DELETE CASCADE,
    company_id  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, role_id)
);

CREATE INDEX IF NOT EXISTS idx_bastion_user_roles_company_user ON bastion_user_roles (company_id, user_id);
CREATE INDEX IF NOT EXISTS idx_bastion_user_roles_role ON bastion_user_roles (role_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS bastion_user_roles;
DROP TABLE IF EXISTS bastion_users;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_refresh_tokens",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_refresh_tokens (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES bastion_users(id) ON DELETE CASCADE,
    token_hash  TEXT NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bastion_refresh_tokens_user_hash ON bastion_refresh_tokens (user_id, token_hash);
CREATE INDEX IF NOT EXISTS idx_bastion_refresh_tokens_expires ON bastion_refresh_tokens (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_refresh_tokens`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_log",
			Version: "20250101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_audit_log (
    id          TEXT PRIMARY KEY,
    company_id  TEXT NOT NULL,
    user_id     TEXT,
    action      TEXT NOT NULL,
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bastion_audit_company_created ON bastion_audit_log (company_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bastion_audit_action ON bastion_audit_log (company_id, action);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_audit_log`)
				return err
			},
		},
	)
}
