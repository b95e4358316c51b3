package authz

import (
	"context"
	"fmt"
	"testing"

	"github.com/qadeck/qadeck/internal/rbac"
)

func benchGate(b *testing.B, cacheSize int) *Gate {
	store := newFakeStore()
	store.setGlobal(alice, rbac.GlobalUser)
	store.setTenant(alice, tenantT, rbac.TenantEditor)
	store.setProject(alice, projectX, rbac.ProjectMaintainer)

	cache := NewCache(CacheConfig{Size: cacheSize})
	g, err := NewGate(NewResolver(store, rbac.DefaultCatalog(), discard), cache, nil, WithLogger(discard))
	if err != nil {
		b.Fatal(err)
	}
	return g
}

func BenchmarkGate_Require_CacheHit(b *testing.B) {
	g := benchGate(b, 1024)
	ctx := context.Background()
	scope := Scope{TenantID: tenantT, ProjectID: projectX}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d, err := g.Require(ctx, alice, scope, rbac.PermTestCaseEdit)
		if err != nil || !d.Allowed {
			b.Fatalf("unexpected decision: %+v %v", d, err)
		}
	}
}

func BenchmarkGate_Require_Parallel(b *testing.B) {
	g := benchGate(b, 1024)
	scope := Scope{TenantID: tenantT, ProjectID: projectX}

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := g.Require(ctx, alice, scope, rbac.PermReportView); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkCombine(b *testing.B) {
	view := rbac.DefaultCatalog().View()
	snaps := make([]Snapshot, 0, len(rbac.TenantRoles)*len(rbac.ProjectRoles))
	for _, tr := range rbac.TenantRoles {
		for _, pr := range rbac.ProjectRoles {
			snaps = append(snaps, Snapshot{
				Principal:   fmt.Sprintf("user-%s-%s", tr, pr),
				TenantID:    tenantT,
				ProjectID:   projectX,
				GlobalRole:  rbac.GlobalUser,
				TenantRole:  tr,
				ProjectRole: pr,
			})
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Combine(view, snaps[i%len(snaps)])
	}
}
