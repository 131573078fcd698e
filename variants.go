package bastion

import (
	"slices"
	"strings"
)

// HR permission keys exist in two spellings. The legacy scheme keeps
// every HR action under one module with dotted sub-actions
// ("hr:employees.read"); the modern scheme gives each submodule its own
// key ("hr-employees:read"). Grants in either spelling satisfy checks in
// either spelling.
const (
	hrPrefix      = "hr"
	hrChildPrefix = "hr-"
)

// hrReadFallback lists the submodules a bare "hr:read" grant can read.
var hrReadFallback = []string{"hr-employees", "hr-leaves", "hr-access"}

// ExpandVariants returns the other-scheme spellings of p, without p
// itself. Keys outside the HR namespace have no variants.
func ExpandVariants(p string) []string {
	switch {
	case strings.HasPrefix(p, hrPrefix+":"):
		return legacyToModern(strings.TrimPrefix(p, hrPrefix+":"))
	case strings.HasPrefix(p, hrChildPrefix):
		return modernToLegacy(strings.TrimPrefix(p, hrChildPrefix))
	default:
		return nil
	}
}

// legacyToModern maps "hr:<sub>.<action>..." to "hr-<sub>:<action>:...".
func legacyToModern(remainder string) []string {
	segments := splitSegments(remainder, ".:")
	if len(segments) == 0 {
		return nil
	}
	if len(segments) == 1 && segments[0] == "read" {
		out := make([]string, len(hrReadFallback))
		for i, mod := range hrReadFallback {
			out[i] = mod + ":read"
		}
		return out
	}
	sub, actions := segments[0], segments[1:]
	if len(actions) == 0 {
		actions = []string{"read"}
	}
	return []string{hrChildPrefix + sub + ":" + strings.Join(actions, ":")}
}

// modernToLegacy maps "hr-<sub>:<action>:..." to "hr:<sub>.<action>...".
// Action segments are kept as written, empty ones included; only a key
// with no action part defaults to read. A single read action also yields
// the bare "hr:read".
func modernToLegacy(rest string) []string {
	sub, actionPart, hasActions := strings.Cut(rest, ":")
	if sub == "" {
		return nil
	}
	actions := []string{"read"}
	if hasActions {
		actions = strings.Split(actionPart, ":")
	}
	out := []string{hrPrefix + ":" + sub + "." + strings.Join(actions, ".")}
	if len(actions) == 1 && actions[0] == "read" {
		out = append(out, hrPrefix+":read")
	}
	return out
}

func splitSegments(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Expand returns the effective set for raw grants: every raw key plus
// every variant of every raw key, deduplicated and sorted.
func Expand(raw []string) []string {
	set := make(map[string]struct{}, len(raw)*2)
	for _, p := range raw {
		set[p] = struct{}{}
		for _, v := range ExpandVariants(p) {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// PermissionSet is an effective permission set with variant-aware lookups.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from effective keys.
func NewPermissionSet(keys []string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is present as spelled.
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Satisfies reports whether the set grants key directly or through one
// of key's own variant spellings.
func (s PermissionSet) Satisfies(key string) bool {
	if s.Has(key) {
		return true
	}
	for _, v := range ExpandVariants(key) {
		if s.Has(v) {
			return true
		}
	}
	return false
}

// SatisfiesAll reports whether every key in required is satisfied.
// An empty requirement is always satisfied.
func (s PermissionSet) SatisfiesAll(required []string) bool {
	for _, r := range required {
		if !s.Satisfies(r) {
			return false
		}
	}
	return true
}
