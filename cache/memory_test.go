package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/bastion/id"
)

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))
	company, user := id.NewCompanyID(), id.NewUserID()

	if _, _, ok := c.Get(ctx, company, user); ok {
		t.Fatal("expected cache miss")
	}

	c.Set(ctx, company, user, 0, []string{"tasks:read"})
	got, _, ok := c.Get(ctx, company, user)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0] != "tasks:read" {
		t.Fatalf("got %v", got)
	}

	got[0] = "mutated"
	again, _, _ := c.Get(ctx, company, user)
	if again[0] != "tasks:read" {
		t.Fatal("callers must not be able to mutate cached sets")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(5 * time.Millisecond))
	company, user := id.NewCompanyID(), id.NewUserID()

	c.Set(ctx, company, user, 0, []string{"tasks:read"})
	time.Sleep(50 * time.Millisecond)

	if _, _, ok := c.Get(ctx, company, user); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestMemoryCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	company := id.NewCompanyID()
	u1, u2 := id.NewUserID(), id.NewUserID()

	c.Set(ctx, company, u1, 0, []string{"a:read"})
	c.Set(ctx, company, u2, 0, []string{"b:read"})
	c.InvalidateUser(ctx, company, u1)

	if _, _, ok := c.Get(ctx, company, u1); ok {
		t.Error("u1 should be invalidated")
	}
	if _, _, ok := c.Get(ctx, company, u2); !ok {
		t.Error("u2 should survive")
	}
}

func TestMemoryCacheInvalidateCompany(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	a, b := id.NewCompanyID(), id.NewCompanyID()
	u := id.NewUserID()

	c.Set(ctx, a, u, 0, []string{"a:read"})
	c.Set(ctx, a, id.NewUserID(), 0, []string{"a:read"})
	c.Set(ctx, b, u, 0, []string{"b:read"})
	c.InvalidateCompany(ctx, a)

	if c.Len() != 1 {
		t.Fatalf("entries = %d, want 1", c.Len())
	}
	if _, _, ok := c.Get(ctx, b, u); !ok {
		t.Error("company b should survive")
	}
}

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))
	company := id.NewCompanyID()

	for range 5 {
		c.Set(ctx, company, id.NewUserID(), 0, []string{"x:read"})
	}
	if c.Len() != 2 {
		t.Fatalf("entries = %d, want 2", c.Len())
	}
}

func TestMemoryCacheDropsSetAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	company, user := id.NewCompanyID(), id.NewUserID()

	_, gen, ok := c.Get(ctx, company, user)
	if ok {
		t.Fatal("expected cache miss")
	}
	// A revocation lands while the caller is still reading the store.
	c.InvalidateUser(ctx, company, user)
	c.Set(ctx, company, user, gen, []string{"tasks:delete"})

	if _, _, ok := c.Get(ctx, company, user); ok {
		t.Fatal("set computed before the invalidation must be dropped")
	}

	_, gen, _ = c.Get(ctx, company, user)
	c.Set(ctx, company, user, gen, []string{"tasks:read"})
	if got, _, ok := c.Get(ctx, company, user); !ok || got[0] != "tasks:read" {
		t.Fatalf("set with current generation should stick, got %v, %v", got, ok)
	}
}

func TestMemoryCacheCompanyInvalidationAdvancesGeneration(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	company, user := id.NewCompanyID(), id.NewUserID()

	_, before, _ := c.Get(ctx, company, user)
	c.InvalidateCompany(ctx, company)
	_, after, _ := c.Get(ctx, company, user)
	if after == before {
		t.Fatalf("generation did not advance: %d", after)
	}
}
