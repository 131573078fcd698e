package api

import (
	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
)

// ErrorResponse is the body of every error written by the API.
type ErrorResponse struct {
	Error string `json:"error" description:"Error message"`
}

// CheckResponse is the response for a permission check.
type CheckResponse struct {
	Allowed bool `json:"allowed" description:"Whether the user holds every permission"`
}

// ModuleSummary is the navigation shape of a module. Children is omitted
// when empty.
type ModuleSummary struct {
	ID         id.ModuleID       `json:"id"`
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Visibility module.Visibility `json:"visibility"`
	IsActive   bool              `json:"isActive"`
	Children   []ModuleSummary   `json:"children,omitempty"`
}

// summarizeModules converts a module forest to its navigation shape.
func summarizeModules(nodes []*bastion.ModuleNode) []ModuleSummary {
	out := make([]ModuleSummary, 0, len(nodes))
	for _, n := range nodes {
		s := ModuleSummary{
			ID:         n.ID,
			Key:        n.Key,
			Name:       n.Name,
			Visibility: n.Visibility,
			IsActive:   n.IsActive,
		}
		if len(n.Children) > 0 {
			s.Children = summarizeModules(n.Children)
		}
		out = append(out, s)
	}
	return out
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
