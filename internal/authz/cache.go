// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache defaults
const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 2 * time.Minute
)

// CacheConfig holds decision cache configuration
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// CacheKey identifies a resolved context. TenantID is always the resolved
// tenant, also when the caller only named a project.
type CacheKey struct {
	Principal string
	TenantID  string
	ProjectID string
}

// KeyOf returns the cache key of a snapshot.
func KeyOf(s Snapshot) CacheKey {
	return CacheKey{Principal: s.Principal, TenantID: s.TenantID, ProjectID: s.ProjectID}
}

type lookup int

const (
	lookupMiss lookup = iota
	lookupHit
	lookupStale
)

func (l lookup) String() string {
	switch l {
	case lookupHit:
		return "hit"
	case lookupStale:
		return "stale"
	default:
		return "miss"
	}
}

// Cache memoizes effective permission sets.
//
// Entries are bounded in number and age. A stored entry is only served when
// its catalog version and snapshot token match the caller's fresh values,
// and a Put computed before an invalidation is discarded, so an
// invalidated set is never resurrected by a slow concurrent resolution.
type Cache struct {
	entries *lru.LRU[CacheKey, *EffectivePermissionSet]

	// mu orders Put against invalidation; Get does not take it.
	mu         sync.Mutex
	generation atomic.Uint64
}

// NewCache creates a new decision cache
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	return &Cache{
		entries: lru.NewLRU[CacheKey, *EffectivePermissionSet](cfg.Size, nil, cfg.TTL),
	}
}

// Generation returns the invalidation generation. Take it before reading
// the store and hand it to Put.
func (c *Cache) Generation() uint64 {
	return c.generation.Load()
}

// Get returns the entry for key if it was computed from the same catalog
// version and role snapshot. Mismatching entries are evicted.
func (c *Cache) Get(key CacheKey, snapshotToken string, catalogVersion uint64) (*EffectivePermissionSet, bool) {
	set, status := c.lookup(key, snapshotToken, catalogVersion)
	return set, status == lookupHit
}

func (c *Cache) lookup(key CacheKey, snapshotToken string, catalogVersion uint64) (*EffectivePermissionSet, lookup) {
	set, ok := c.entries.Get(key)
	if !ok {
		return nil, lookupMiss
	}
	if set.CatalogVersion != catalogVersion || set.SnapshotToken != snapshotToken {
		c.entries.Remove(key)
		return nil, lookupStale
	}
	return set, lookupHit
}

// Put stores set unless an invalidation happened after generation was taken.
func (c *Cache) Put(key CacheKey, set *EffectivePermissionSet, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation.Load() != generation {
		return false
	}
	c.entries.Add(key, set)
	return true
}

// InvalidateTenant drops every entry of principal within tenantID,
// project-scoped entries included.
func (c *Cache) InvalidateTenant(principal, tenantID string) int {
	return c.invalidate(func(k CacheKey) bool {
		return k.Principal == principal && k.TenantID == tenantID
	})
}

// InvalidateProject drops every entry of principal on projectID.
func (c *Cache) InvalidateProject(principal, projectID string) int {
	return c.invalidate(func(k CacheKey) bool {
		return k.Principal == principal && k.ProjectID == projectID
	})
}

// InvalidatePrincipal drops every entry of principal.
func (c *Cache) InvalidatePrincipal(principal string) int {
	return c.invalidate(func(k CacheKey) bool {
		return k.Principal == principal
	})
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation.Add(1)
	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) invalidate(match func(CacheKey) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation.Add(1)
	removed := 0
	for _, k := range c.entries.Keys() {
		if match(k) && c.entries.Remove(k) {
			removed++
		}
	}
	return removed
}
