package bastion

import (
	"cmp"
	"slices"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/module"
	"github.com/xraph/bastion/permission"
)

// ModuleNode is one node of a user's module forest. Children is omitted
// from JSON when empty.
type ModuleNode struct {
	ID         id.ModuleID       `json:"id"`
	CompanyID  *id.CompanyID     `json:"companyId"`
	ParentID   *id.ModuleID      `json:"parentId"`
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Visibility module.Visibility `json:"visibility"`
	IsActive   bool              `json:"isActive"`
	Children   []*ModuleNode     `json:"children,omitempty"`

	// Structural marks a node kept by FilterVisibleModules only because
	// one of its descendants is visible.
	Structural bool `json:"structural,omitempty"`
}

func newModuleNode(m *module.Module) *ModuleNode {
	return &ModuleNode{
		ID:         m.ID,
		CompanyID:  m.CompanyID,
		ParentID:   m.ParentID,
		Key:        m.Key,
		Name:       m.Name,
		Visibility: m.Visibility,
		IsActive:   m.IsActive,
	}
}

// moduleArena holds fetched modules keyed by id. Nodes refer to their
// parent by id only; links are resolved when the forest is built.
type moduleArena struct {
	nodes map[string]*ModuleNode
	order []string
}

func newModuleArena() *moduleArena {
	return &moduleArena{nodes: make(map[string]*ModuleNode)}
}

func (a *moduleArena) add(m *module.Module) bool {
	k := m.ID.String()
	if _, ok := a.nodes[k]; ok {
		return false
	}
	a.nodes[k] = newModuleNode(m)
	a.order = append(a.order, k)
	return true
}

func (a *moduleArena) has(mid id.ModuleID) bool {
	_, ok := a.nodes[mid.String()]
	return ok
}

// missingParents returns parent ids referenced by nodes but not yet fetched.
func (a *moduleArena) missingParents(from []string) []id.ModuleID {
	seen := make(map[string]struct{})
	var out []id.ModuleID
	for _, k := range from {
		n := a.nodes[k]
		if n.ParentID == nil || a.has(*n.ParentID) {
			continue
		}
		pk := n.ParentID.String()
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, *n.ParentID)
	}
	return out
}

// forest links children into parents and returns the roots: nodes with
// no parent or whose parent was never fetched. A parent chain that loops
// back is cut at the edge closing the loop, and the cut nodes are
// returned in cut.
func (a *moduleArena) forest() (roots []*ModuleNode, cut []*ModuleNode) {
	cut = a.breakCycles()
	for _, k := range a.order {
		n := a.nodes[k]
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := a.nodes[n.ParentID.String()]
		if !ok {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	sortNodes(roots)
	return roots, cut
}

// breakCycles clears the parent of any node whose ancestor chain returns
// to itself, so every node ends up under exactly one root.
func (a *moduleArena) breakCycles() []*ModuleNode {
	const (
		unvisited = iota
		inPath
		done
	)
	state := make(map[string]int, len(a.nodes))
	var cut []*ModuleNode
	for _, start := range a.order {
		var path []string
		k := start
		for {
			if state[k] == done {
				break
			}
			if state[k] == inPath {
				// k closes a loop; detach it from its parent.
				n := a.nodes[k]
				n.ParentID = nil
				cut = append(cut, n)
				break
			}
			state[k] = inPath
			path = append(path, k)
			n := a.nodes[k]
			if n.ParentID == nil || !a.has(*n.ParentID) {
				break
			}
			k = n.ParentID.String()
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return cut
}

func sortNodes(nodes []*ModuleNode) {
	slices.SortFunc(nodes, func(x, y *ModuleNode) int { return cmp.Compare(x.Key, y.Key) })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// moduleKeys returns the distinct module keys of a permission list: the
// text before the first ':' of each key.
func moduleKeys(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		k, _ := permission.SplitKey(p)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// FilterVisibleModules applies the navigation presentation rules to a
// raw forest: a node is visible when it is active and either public, or
// dev_only and canSeeDevOnly is true. An invisible node with visible
// descendants is kept with Structural set. The input is not modified.
func FilterVisibleModules(nodes []*ModuleNode, canSeeDevOnly bool) []*ModuleNode {
	out := make([]*ModuleNode, 0, len(nodes))
	for _, n := range nodes {
		children := FilterVisibleModules(n.Children, canSeeDevOnly)
		visible := n.IsActive && (n.Visibility == module.VisibilityPublic ||
			(n.Visibility == module.VisibilityDevOnly && canSeeDevOnly))
		if !visible && len(children) == 0 {
			continue
		}
		cp := *n
		cp.Children = nil
		if len(children) > 0 {
			cp.Children = children
		}
		cp.Structural = !visible
		out = append(out, &cp)
	}
	return out
}

// CountNodes returns the number of nodes in a forest.
func CountNodes(nodes []*ModuleNode) int {
	n := len(nodes)
	for _, c := range nodes {
		n += CountNodes(c.Children)
	}
	return n
}
