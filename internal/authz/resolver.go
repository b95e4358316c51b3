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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// Resolver computes effective permission sets from the assignment store
// and the role catalog.
type Resolver struct {
	store   AssignmentStore
	catalog *rbac.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver creates a new resolver. A nil logger selects slog.Default().
func NewResolver(store AssignmentStore, catalog *rbac.Catalog, l *slog.Logger) *Resolver {
	if l == nil {
		l = slog.Default()
	}
	return &Resolver{
		store:   store,
		catalog: catalog,
		logger:  l.With(logger.Component("authz.resolver")),
		now:     time.Now,
	}
}

// Resolve fetches the role snapshot for the context and expands it.
func (r *Resolver) Resolve(ctx context.Context, principal string, scope Scope) (*EffectivePermissionSet, error) {
	snap, err := r.Fetch(ctx, principal, scope)
	if err != nil {
		return nil, err
	}
	return r.Expand(ctx, snap), nil
}

// Fetch resolves the tenant and reads the three role layers.
// Errors wrap ErrProjectNotFound, ErrStoreUnavailable or the context error.
func (r *Resolver) Fetch(ctx context.Context, principal string, scope Scope) (Snapshot, error) {
	if principal == "" {
		return Snapshot{}, fmt.Errorf("%w: principal is required", ErrInvalidScope)
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("resolution cancelled: %w", err)
	}

	snap := Snapshot{
		Principal: principal,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
	}

	if scope.ProjectID != "" {
		owner, err := r.store.TenantOfProject(ctx, scope.ProjectID)
		if err != nil {
			return Snapshot{}, storeError(ctx, "tenant_of_project", err)
		}
		if scope.TenantID != "" && owner != scope.TenantID {
			// Never evaluate a project under a tenant it does not belong to.
			return Snapshot{}, fmt.Errorf("%w: project %s is not owned by tenant %s", ErrProjectNotFound, scope.ProjectID, scope.TenantID)
		}
		snap.TenantID = owner
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		role, ok, err := r.store.GlobalRoleOf(gctx, principal)
		if err != nil {
			return storeError(gctx, "global_role_of", err)
		}
		if ok {
			snap.GlobalRole = role
		}
		return nil
	})

	var tenantRole rbac.TenantRole
	if snap.TenantID != "" {
		tenantID := snap.TenantID
		g.Go(func() error {
			role, ok, err := r.store.TenantRoleOf(gctx, principal, tenantID)
			if err != nil {
				return storeError(gctx, "tenant_role_of", err)
			}
			if ok {
				tenantRole = role
			}
			return nil
		})
	}

	var projectRole rbac.ProjectRole
	if snap.ProjectID != "" {
		projectID := snap.ProjectID
		g.Go(func() error {
			role, ok, err := r.store.ProjectRoleOf(gctx, principal, projectID)
			if err != nil {
				return storeError(gctx, "project_role_of", err)
			}
			if ok {
				projectRole = role
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// errgroup cancels gctx on the first failure; report the caller's own cancellation first.
		if ctx.Err() != nil {
			return Snapshot{}, fmt.Errorf("resolution cancelled: %w", ctx.Err())
		}
		return Snapshot{}, err
	}
	snap.TenantRole = tenantRole
	snap.ProjectRole = projectRole

	return snap, nil
}

// Expand combines a snapshot with the current catalog view and logs any
// catalog drift it finds.
func (r *Resolver) Expand(ctx context.Context, snap Snapshot) *EffectivePermissionSet {
	set := Combine(r.catalog.View(), snap)
	set.ComputedAt = r.now()

	for _, ref := range set.Drift {
		r.logger.ErrorContext(ctx, "assigned role is not defined in catalog",
			logger.Principal(snap.Principal),
			logger.TenantID(snap.TenantID),
			logger.ProjectID(snap.ProjectID),
			logger.Role(string(ref.Layer), ref.Name),
			logger.CatalogVersion(set.CatalogVersion),
		)
	}
	return set
}

// Combine is the pure merge of the three role layers:
//
//   - global super_admin resolves to the whole vocabulary;
//   - inside a tenant, no tenant role means an empty set, whatever the
//     project role says (isolation);
//   - otherwise the result is the union of the layer expansions, with
//     project-role permissions limited to project-scoped kinds.
//
// Roles the catalog does not define contribute nothing and are reported in Drift.
func Combine(view *rbac.View, snap Snapshot) *EffectivePermissionSet {
	set := &EffectivePermissionSet{
		Principal:      snap.Principal,
		TenantID:       snap.TenantID,
		ProjectID:      snap.ProjectID,
		Permissions:    make(rbac.PermissionSet),
		Grants:         make(map[rbac.Permission][]rbac.Layer),
		CatalogVersion: view.Version(),
		Snapshot:       snap,
		SnapshotToken:  snap.Token(),
	}

	grant := func(p rbac.Permission, layer rbac.Layer) {
		set.Permissions[p] = struct{}{}
		set.Grants[p] = append(set.Grants[p], layer)
	}

	if snap.GlobalRole == rbac.GlobalSuperAdmin {
		set.SuperAdmin = true
		for p := range view.All() {
			grant(p, rbac.LayerGlobal)
		}
		return set
	}

	if snap.TenantID != "" && !snap.HasTenant() {
		set.Isolated = true
		return set
	}

	// Layers are visited in rank order so Grants stays ordered.
	var refs []rbac.RoleRef
	if snap.HasGlobal() {
		refs = append(refs, snap.GlobalRole.Ref())
	}
	if snap.TenantID != "" && snap.HasTenant() {
		refs = append(refs, snap.TenantRole.Ref())
	}
	if snap.ProjectID != "" && snap.HasProject() {
		refs = append(refs, snap.ProjectRole.Ref())
	}

	for _, ref := range refs {
		perms, err := view.PermissionsFor(ref)
		if err != nil {
			set.Drift = append(set.Drift, ref)
			continue
		}
		for p := range perms {
			if ref.Layer == rbac.LayerProject && !view.ProjectScoped(p) {
				continue
			}
			grant(p, ref.Layer)
		}
	}

	return set
}

// Token is a short digest of the snapshot, used to validate cache entries.
func (s Snapshot) Token() string {
	// blake2b.New only fails for invalid sizes or keys.
	h, _ := blake2b.New(16, nil)
	for _, part := range []string{
		s.Principal, s.TenantID, s.ProjectID,
		string(s.GlobalRole), string(s.TenantRole), string(s.ProjectRole),
	} {
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%s: resolution cancelled: %w", op, ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, ErrStoreUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		// Anything unexpected from a store is still a fault, never "no role".
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
}
