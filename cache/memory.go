// Package cache provides caches for effective permission sets.
package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
)

// Compile-time interface check.
var _ bastion.Cache = (*Memory)(nil)

// Memory is an in-process LRU cache with TTL-based expiration. A single
// generation counter covers every entry: any invalidation rejects the
// writes of resolutions that started before it.
type Memory struct {
	mu         sync.Mutex
	entries    *lru.LRU[string, []string]
	generation uint64
	ttl        time.Duration
	maxSize    int
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:     time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.entries = lru.NewLRU[string, []string](m.maxSize, nil, m.ttl)
	return m
}

// Get returns the cached effective set for the user.
func (m *Memory) Get(_ context.Context, companyID id.CompanyID, userID id.UserID) ([]string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.entries.Get(cacheKey(companyID, userID))
	if !ok {
		return nil, m.generation, false
	}
	return slices.Clone(perms), m.generation, true
}

// Set stores the effective set for the user. The write is dropped when
// an invalidation ran after generation was observed.
func (m *Memory) Set(_ context.Context, companyID id.CompanyID, userID id.UserID, generation uint64, perms []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation {
		return
	}
	m.entries.Add(cacheKey(companyID, userID), slices.Clone(perms))
}

// InvalidateUser drops the user's entry.
func (m *Memory) InvalidateUser(_ context.Context, companyID id.CompanyID, userID id.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.entries.Remove(cacheKey(companyID, userID))
}

// InvalidateCompany drops every entry of the company.
func (m *Memory) InvalidateCompany(_ context.Context, companyID id.CompanyID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	prefix := companyID.String() + ":"
	for _, k := range m.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.entries.Remove(k)
		}
	}
}

// Len returns the number of live entries.
func (m *Memory) Len() int { return m.entries.Len() }

func cacheKey(companyID id.CompanyID, userID id.UserID) string {
	return companyID.String() + ":" + userID.String()
}
