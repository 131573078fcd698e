// Package permission defines the Permission entity: one action exposed
// by a catalog module. Everywhere outside storage a permission is named
// by its canonical key "<moduleKey>:<action>".
package permission

import (
	"strings"
	"time"

	"github.com/xraph/bastion/id"
)

// Permission is an action scoped to a module. (ModuleID, Action) is unique.
type Permission struct {
	ID          id.PermissionID `json:"id" db:"id"`
	ModuleID    id.ModuleID     `json:"module_id" db:"module_id"`
	Action      string          `json:"action" db:"action"`
	Description string          `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	ModuleID id.ModuleID `json:"module_id,omitempty"`
	Action   string      `json:"action,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Offset   int         `json:"offset,omitempty"`
}

// Key builds the canonical permission key for a module key and action.
func Key(moduleKey, action string) string {
	return moduleKey + ":" + action
}

// SplitKey returns the module key and the action of a canonical key.
// The module key is everything before the first ':'.
func SplitKey(key string) (moduleKey, action string) {
	moduleKey, action, _ = strings.Cut(key, ":")
	return moduleKey, action
}
