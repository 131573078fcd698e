package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/bastion/id"
)

func TestConstructorsUsePrefix(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"Company", id.NewCompanyID, "comp_"},
		{"Module", id.NewModuleID, "mod_"},
		{"Permission", id.NewPermissionID, "perm_"},
		{"Role", id.NewRoleID, "role_"},
		{"User", id.NewUserID, "user_"},
		{"RefreshToken", id.NewRefreshTokenID, "rtok_"},
		{"AuditEntry", id.NewAuditEntryID, "audit_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.newFn().String(); !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"Company", id.NewCompanyID, id.ParseCompanyID},
		{"Module", id.NewModuleID, id.ParseModuleID},
		{"Permission", id.NewPermissionID, id.ParsePermissionID},
		{"Role", id.NewRoleID, id.ParseRoleID},
		{"User", id.NewUserID, id.ParseUserID},
		{"RefreshToken", id.NewRefreshTokenID, id.ParseRefreshTokenID},
		{"AuditEntry", id.NewAuditEntryID, id.ParseAuditEntryID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestParseRejectsOtherPrefix(t *testing.T) {
	roleID := id.NewRoleID().String()
	if _, err := id.ParseUserID(roleID); err == nil {
		t.Fatal("expected error parsing a role id as a user id")
	}
	if _, err := id.ParseCompanyID(""); err == nil {
		t.Fatal("expected error for empty string")
	}
	if _, err := id.Parse("not-an-id"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestNilBehaviour(t *testing.T) {
	var n id.ID
	if !n.IsNil() {
		t.Fatal("zero value should be nil")
	}
	if n.String() != "" {
		t.Errorf("nil String() = %q", n.String())
	}
	v, err := n.Value()
	if err != nil || v != nil {
		t.Errorf("nil Value() = %v, %v", v, err)
	}
	if id.Ptr(n) != nil {
		t.Error("Ptr(Nil) should be nil")
	}
	u := id.NewUserID()
	if p := id.Ptr(u); p == nil || p.String() != u.String() {
		t.Error("Ptr should copy a valid id")
	}
}

func TestJSONAndScan(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	orig := wrapper{ID: id.NewModuleID()}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back wrapper
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID.String() != orig.ID.String() {
		t.Errorf("json round trip: %q != %q", back.ID, orig.ID)
	}

	var scanned id.ID
	if err := scanned.Scan(orig.ID.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if scanned.String() != orig.ID.String() {
		t.Errorf("scan mismatch: %q", scanned)
	}
	if err := scanned.Scan(nil); err != nil || !scanned.IsNil() {
		t.Errorf("scan nil: %v nil=%v", err, scanned.IsNil())
	}
	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
