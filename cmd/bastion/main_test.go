package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xraph/bastion/credential"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExpandPrintsVariants(t *testing.T) {
	out, err := run(t, "", "expand", "hr:employees.read", "boards:read")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(lines[0], "hr-employees:read") {
		t.Errorf("legacy key should expand to modern spelling, got %q", lines[0])
	}
	if strings.TrimSpace(strings.TrimPrefix(lines[1], "boards:read")) != "" {
		t.Errorf("non-HR key should have no variants, got %q", lines[1])
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := run(t, "s3cret\n", "hash-password")
	if err != nil {
		t.Fatal(err)
	}
	hash := strings.TrimSpace(out)
	ok, err := credential.NewAuto().Verify(hash, "s3cret")
	if err != nil || !ok {
		t.Fatalf("hash %q does not verify: %v", hash, err)
	}
}

func TestHashPasswordBcrypt(t *testing.T) {
	out, err := run(t, "", "hash-password", "--bcrypt", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "$2") {
		t.Fatalf("expected bcrypt hash, got %q", out)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := run(t, "\n", "hash-password"); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestLoadServeConfigFromEnv(t *testing.T) {
	t.Setenv("BASTION_ACCESS_SECRET", "access")
	t.Setenv("BASTION_REFRESH_SECRET", "refresh")
	t.Setenv("BASTION_RATE_LIMIT", "42")

	cmd := newServeCmd()
	if err := cmd.Flags().Parse([]string{"--addr", ":9999", "--access-ttl", "5m"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9999" || cfg.AccessSecret != "access" || cfg.RefreshSecret != "refresh" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RateLimit != 42 {
		t.Errorf("rate limit = %d, want 42", cfg.RateLimit)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Errorf("access ttl = %v", cfg.AccessTTL)
	}
	if cfg.BasePath != "/bastion" {
		t.Errorf("base path = %q", cfg.BasePath)
	}
}

func TestLoadServeConfigRequiresSecrets(t *testing.T) {
	t.Setenv("BASTION_ACCESS_SECRET", "")
	t.Setenv("BASTION_REFRESH_SECRET", "")
	cmd := newServeCmd()
	if _, err := loadServeConfig(cmd); err == nil {
		t.Fatal("expected error without secrets")
	}
}
