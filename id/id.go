// Package id defines the prefixed, K-sortable identifiers used by every
// Bastion entity ("prefix_suffix", UUIDv7 under the hood).
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Bastion entity types.
const (
	PrefixCompany      Prefix = "comp"
	PrefixModule       Prefix = "mod"
	PrefixPermission   Prefix = "perm"
	PrefixRole         Prefix = "role"
	PrefixUser         Prefix = "user"
	PrefixRefreshToken Prefix = "rtok"
	PrefixAuditEntry   Prefix = "audit"
)

// ID identifies every Bastion entity. The zero value is Nil and
// serializes as an empty string (or NULL in SQL).
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "role_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of another entity type.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Entity aliases
// ──────────────────────────────────────────────────

// CompanyID identifies a tenant (prefix: "comp").
type CompanyID = ID

// ModuleID identifies a catalog module (prefix: "mod").
type ModuleID = ID

// PermissionID identifies a module action (prefix: "perm").
type PermissionID = ID

// RoleID identifies a company-scoped role (prefix: "role").
type RoleID = ID

// UserID identifies a user (prefix: "user").
type UserID = ID

// RefreshTokenID identifies a stored refresh token (prefix: "rtok").
type RefreshTokenID = ID

// AuditEntryID identifies an audit log entry (prefix: "audit").
type AuditEntryID = ID

func NewCompanyID() ID      { return New(PrefixCompany) }
func NewModuleID() ID       { return New(PrefixModule) }
func NewPermissionID() ID   { return New(PrefixPermission) }
func NewRoleID() ID         { return New(PrefixRole) }
func NewUserID() ID         { return New(PrefixUser) }
func NewRefreshTokenID() ID { return New(PrefixRefreshToken) }
func NewAuditEntryID() ID   { return New(PrefixAuditEntry) }

func ParseCompanyID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixCompany) }
func ParseModuleID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixModule) }
func ParsePermissionID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixPermission) }
func ParseRoleID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixRole) }
func ParseUserID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixUser) }
func ParseRefreshTokenID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRefreshToken) }
func ParseAuditEntryID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixAuditEntry) }

// Ptr returns a pointer to a copy of i, or nil for the Nil ID.
func Ptr(i ID) *ID {
	if i.IsNil() {
		return nil
	}
	return &i
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil
		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil
			return nil
		}
		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil
			return nil
		}
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
