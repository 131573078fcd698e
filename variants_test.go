package bastion

import (
	"slices"
	"testing"
)

func TestExpandVariants(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		// Legacy to modern.
		{"hr:employees.read", []string{"hr-employees:read"}},
		{"hr:employees.update", []string{"hr-employees:update"}},
		{"hr:leaves.manage", []string{"hr-leaves:manage"}},
		{"hr:employees.terminate", []string{"hr-employees:terminate"}},
		{"hr:leaves.approve.final", []string{"hr-leaves:approve:final"}},
		{"hr:leaves:manage", []string{"hr-leaves:manage"}},
		{"hr:employees", []string{"hr-employees:read"}},
		{"hr:read", []string{"hr-employees:read", "hr-leaves:read", "hr-access:read"}},
		{"hr:employees..read", []string{"hr-employees:read"}},
		{"hr:", nil},
		{"hr:.", nil},

		// Modern to legacy.
		{"hr-employees:read", []string{"hr:employees.read", "hr:read"}},
		{"hr-leaves:manage", []string{"hr:leaves.manage"}},
		{"hr-leaves:approve:final", []string{"hr:leaves.approve.final"}},
		{"hr-leaves", []string{"hr:leaves.read", "hr:read"}},
		{"hr-leaves:", []string{"hr:leaves."}},
		{"hr-leaves:approve::final", []string{"hr:leaves.approve..final"}},
		{"hr-:read", nil},

		// Outside the HR namespace.
		{"tasks:create", nil},
		{"rbac:read", nil},
		{"hrx:read", nil},
		{"hr", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ExpandVariants(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ExpandVariants(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	got := Expand([]string{"tasks:read", "hr:employees.update", "hr-leaves:manage", "tasks:read"})
	want := []string{
		"hr-employees:update",
		"hr-leaves:manage",
		"hr:employees.update",
		"hr:leaves.manage",
		"tasks:read",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpandEmpty(t *testing.T) {
	got := Expand(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("Expand(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	raw := []string{"hr:read", "hr-employees:update", "boards:read"}
	once := Expand(raw)
	twice := Expand(once)
	for _, p := range once {
		if !slices.Contains(twice, p) {
			t.Errorf("second expansion lost %q", p)
		}
	}
}

func TestPermissionSetSatisfies(t *testing.T) {
	tests := []struct {
		name      string
		effective []string
		required  string
		want      bool
	}{
		{"direct", []string{"tasks:read"}, "tasks:read", true},
		{"missing", []string{"tasks:read"}, "tasks:create", false},
		{"modern requirement on legacy grant", Expand([]string{"hr:employees.terminate"}), "hr-employees:terminate", true},
		{"legacy requirement on modern grant", Expand([]string{"hr-leaves:manage"}), "hr:leaves.manage", true},
		{"requirement variants checked without expansion", []string{"hr:employees.read"}, "hr-employees:read", true},
		{"bare read satisfied by submodule read", Expand([]string{"hr-employees:read"}), "hr:read", true},
		{"submodule read satisfied by bare read", Expand([]string{"hr:read"}), "hr-access:read", true},
		{"other action not satisfied", Expand([]string{"hr:employees.read"}), "hr-employees:update", false},
		{"empty set", nil, "tasks:read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPermissionSet(tt.effective).Satisfies(tt.required); got != tt.want {
				t.Errorf("Satisfies(%q) = %v, want %v", tt.required, got, tt.want)
			}
		})
	}
}

func TestPermissionSetSatisfiesAll(t *testing.T) {
	s := NewPermissionSet([]string{"boards:read", "tasks:move"})
	if !s.SatisfiesAll(nil) {
		t.Error("empty requirement should be satisfied")
	}
	if !s.SatisfiesAll([]string{"boards:read", "tasks:move"}) {
		t.Error("expected both requirements satisfied")
	}
	if s.SatisfiesAll([]string{"boards:read", "tasks:delete"}) {
		t.Error("one missing requirement should fail the check")
	}
}
