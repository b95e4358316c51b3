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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/qadeck/qadeck/internal/audit"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/observability/metrics"
	"github.com/qadeck/qadeck/internal/observability/tracing"
	"github.com/qadeck/qadeck/internal/rbac"
)

// DefaultResolveTimeout bounds a shared resolution once it is detached from its callers.
const DefaultResolveTimeout = 5 * time.Second

// Gate answers permission checks. It is the single entry point handlers use.
type Gate struct {
	resolver *Resolver
	cache    *Cache
	catalog  *rbac.Catalog

	audit          audit.Logger
	tracer         *tracing.Tracer
	logger         *slog.Logger
	resolveTimeout time.Duration
	now            func() time.Time

	flights singleflight.Group

	decisions metric.Int64Counter
	lookups   metric.Int64Counter
	duration  metric.Float64Histogram
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithAudit sets the audit channel decisions are written to.
func WithAudit(l audit.Logger) GateOption {
	return func(g *Gate) { g.audit = l }
}

// WithTracer sets the tracer used for decision spans.
func WithTracer(t *tracing.Tracer) GateOption {
	return func(g *Gate) { g.tracer = t }
}

// WithLogger sets the gate logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithResolveTimeout bounds a single shared resolution.
func WithResolveTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.resolveTimeout = d
		}
	}
}

// NewGate creates a new authorization gate. A nil meter records nothing.
func NewGate(resolver *Resolver, cache *Cache, meter *metrics.Meter, opts ...GateOption) (*Gate, error) {
	g := &Gate{
		resolver:       resolver,
		cache:          cache,
		catalog:        resolver.catalog,
		audit:          audit.Nop{},
		tracer:         tracing.Noop(),
		logger:         slog.Default(),
		resolveTimeout: DefaultResolveTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("authz.gate"))

	if meter == nil {
		meter = metrics.Noop()
	}
	var err error
	if g.decisions, err = meter.CreateCounter("authz.decisions", "Authorization decisions by outcome"); err != nil {
		return nil, err
	}
	if g.lookups, err = meter.CreateCounter("authz.cache.lookups", "Decision cache lookups by result"); err != nil {
		return nil, err
	}
	if g.duration, err = meter.CreateHistogram("authz.resolve.duration", "Time spent producing a decision", "ms"); err != nil {
		return nil, err
	}
	return g, nil
}

// Require checks a single permission in scope.
//
// A legitimate deny is returned with a nil error. Infrastructure faults and
// cancellation return a deny decision together with the error.
func (g *Gate) Require(ctx context.Context, principal string, scope Scope, perm rbac.Permission) (Decision, error) {
	return g.check(ctx, "authz.Require", principal, scope, []rbac.Permission{perm})
}

// RequireAny allows when at least one of perms is granted. The first granted
// permission, in the order given, is reported.
func (g *Gate) RequireAny(ctx context.Context, principal string, scope Scope, perms []rbac.Permission) (Decision, error) {
	if len(perms) == 0 {
		return deny(ReasonInvalidRequest, "", "no permission requested"),
			fmt.Errorf("%w: empty permission list", ErrInvalidPermission)
	}
	return g.check(ctx, "authz.RequireAny", principal, scope, perms)
}

// Effective returns the effective permission set for the context. The
// result may be shared with the cache and must not be modified.
func (g *Gate) Effective(ctx context.Context, principal string, scope Scope) (*EffectivePermissionSet, error) {
	set, _, err := g.effective(ctx, principal, scope)
	return set, err
}

// CatalogChanged drops every cached set. Entries would also be rejected on
// version mismatch; purging releases them early.
func (g *Gate) CatalogChanged(ctx context.Context) {
	g.cache.Purge()
	g.logger.InfoContext(ctx, "permission cache purged",
		logger.CatalogVersion(g.catalog.CurrentVersion()),
	)
}

// AssignmentChanged drops the cached sets an assignment change can affect.
func (g *Gate) AssignmentChanged(ctx context.Context, principal string, scope AssignmentScope) {
	var removed int
	switch scope.Layer {
	case rbac.LayerTenant:
		removed = g.cache.InvalidateTenant(principal, scope.TenantID)
	case rbac.LayerProject:
		removed = g.cache.InvalidateProject(principal, scope.ProjectID)
	default:
		// A global role applies to every context of the principal.
		removed = g.cache.InvalidatePrincipal(principal)
	}
	g.logger.DebugContext(ctx, "permission cache invalidated",
		logger.Principal(principal),
		slog.String("layer", string(scope.Layer)),
		logger.TenantID(scope.TenantID),
		logger.ProjectID(scope.ProjectID),
		slog.Int("removed", removed),
	)
}

type resolution struct {
	set *EffectivePermissionSet
	hit bool
}

func (g *Gate) check(ctx context.Context, op, principal string, scope Scope, perms []rbac.Permission) (Decision, error) {
	start := g.now()
	ctx, span := g.tracer.StartCheck(ctx, op, scope.TenantID, scope.ProjectID, joinPermissions(perms))

	var (
		decision Decision
		set      *EffectivePermissionSet
		hit      bool
		err      error
	)

	known := g.knownPermissions(perms)
	if len(known) == 0 {
		decision = deny(ReasonUnknownPermission, perms[0],
			fmt.Sprintf("permission %s is not defined in the role catalog", perms[0]))
	} else {
		set, hit, err = g.effective(ctx, principal, scope)
		if err != nil {
			decision, err = g.failure(ctx, scope, known[0], err)
		} else {
			decision = decide(set, known, known[0])
		}
	}

	elapsed := g.now().Sub(start)
	g.record(ctx, principal, scope, set, decision, hit, elapsed)

	tracing.EndCheck(span, decision.Allowed, string(decision.Code), hit, err)
	return decision, err
}

// effective returns the set for the context, collapsing concurrent fetches
// for the same context and invalidation generation.
func (g *Gate) effective(ctx context.Context, principal string, scope Scope) (*EffectivePermissionSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("resolution cancelled: %w", err)
	}

	generation := g.cache.Generation()
	key := flightKey(principal, scope, generation)

	ch := g.flights.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.resolveTimeout)
		defer cancel()
		return g.resolve(rctx, principal, scope, generation)
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("resolution cancelled: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(resolution)
		return r.set, r.hit, nil
	}
}

func (g *Gate) resolve(ctx context.Context, principal string, scope Scope, generation uint64) (resolution, error) {
	snap, err := g.resolver.Fetch(ctx, principal, scope)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrStoreUnavailable) {
			// Only the shared timeout can end a detached context.
			return resolution{}, fmt.Errorf("%w: no answer within %s: %w", ErrStoreUnavailable, g.resolveTimeout, err)
		}
		return resolution{}, err
	}

	key := KeyOf(snap)
	version := g.catalog.CurrentVersion()
	set, status := g.cache.lookup(key, snap.Token(), version)
	g.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", status.String())))

	switch status {
	case lookupHit:
		return resolution{set: set, hit: true}, nil
	case lookupStale:
		g.logger.DebugContext(ctx, "recomputing permission set",
			logger.Error(errCacheStale),
			logger.Principal(principal),
			logger.TenantID(key.TenantID),
			logger.ProjectID(key.ProjectID),
			logger.CatalogVersion(version),
		)
	}

	set = g.resolver.Expand(ctx, snap)
	if !g.cache.Put(key, set, generation) {
		g.logger.DebugContext(ctx, "discarding permission set computed before invalidation",
			logger.Principal(principal),
			logger.TenantID(key.TenantID),
			logger.ProjectID(key.ProjectID),
		)
	}
	return resolution{set: set}, nil
}

func (g *Gate) failure(ctx context.Context, scope Scope, perm rbac.Permission, err error) (Decision, error) {
	switch {
	case errors.Is(err, ErrInvalidScope):
		return deny(ReasonInvalidRequest, perm, "no authenticated principal"), nil
	case errors.Is(err, ErrProjectNotFound):
		return deny(ReasonProjectNotFound, perm, fmt.Sprintf("project %s not found", scope.ProjectID)), nil
	case ctx.Err() != nil:
		return deny(ReasonCancelled, perm, "check cancelled before completion"), err
	case !errors.Is(err, ErrStoreUnavailable) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return deny(ReasonCancelled, perm, "check cancelled before completion"), err
	default:
		g.logger.ErrorContext(ctx, "permission check failed closed",
			logger.TenantID(scope.TenantID),
			logger.ProjectID(scope.ProjectID),
			logger.Permission(string(perm)),
			logger.Error(err),
		)
		return deny(ReasonStoreUnavailable, perm, "role assignments unavailable"), err
	}
}

func (g *Gate) record(ctx context.Context, principal string, scope Scope, set *EffectivePermissionSet, d Decision, hit bool, elapsed time.Duration) {
	tenantID, projectID := scope.TenantID, scope.ProjectID
	meta := map[string]any{
		"code":       string(d.Code),
		"cache_hit":  hit,
		"latency_ms": float64(elapsed.Microseconds()) / 1000,
	}
	if set != nil {
		tenantID, projectID = set.TenantID, set.ProjectID
		meta["catalog_version"] = set.CatalogVersion
	}

	eventType := audit.TypeDecisionDenied
	if d.Allowed {
		eventType = audit.TypeDecisionAllowed
	}
	g.audit.Log(ctx, audit.Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ProjectID: projectID,
		ActorID:   principal,
		Resource:  string(d.Permission),
		Reason:    d.Reason,
		Metadata:  meta,
	})

	attrs := metric.WithAttributes(
		attribute.Bool("allowed", d.Allowed),
		attribute.String("code", string(d.Code)),
	)
	g.decisions.Add(ctx, 1, attrs)
	g.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (g *Gate) knownPermissions(perms []rbac.Permission) []rbac.Permission {
	view := g.catalog.View()
	known := make([]rbac.Permission, 0, len(perms))
	for _, p := range perms {
		if p.Valid() && view.Known(p) {
			known = append(known, p)
		}
	}
	return known
}

// decide turns an effective set into a decision for the first granted
// permission of perms. first is reported on deny.
func decide(set *EffectivePermissionSet, perms []rbac.Permission, first rbac.Permission) Decision {
	granted := set.Permissions.Intersect(perms)
	if len(granted) > 0 {
		p := granted[0]
		layers := set.Grants[p]
		if set.SuperAdmin {
			return Decision{
				Allowed:    true,
				Code:       ReasonSuperAdmin,
				Reason:     "granted by global role " + string(rbac.GlobalSuperAdmin),
				Permission: p,
				Layers:     layers,
			}
		}
		return Decision{
			Allowed:    true,
			Code:       ReasonGranted,
			Reason:     "granted by " + describeLayers(set.Snapshot, layers),
			Permission: p,
			Layers:     layers,
		}
	}

	snap := set.Snapshot
	switch {
	case set.Isolated:
		reason := fmt.Sprintf("no tenant role in tenant %s", snap.TenantID)
		if snap.HasProject() {
			reason += fmt.Sprintf("; project role %s does not apply", snap.ProjectRole)
		}
		return deny(ReasonIsolation, first, reason)
	case !snap.HasGlobal() && !snap.HasTenant() && !snap.HasProject():
		return deny(ReasonNoRoles, first, "no role assigned in this context")
	default:
		return deny(ReasonNotGranted, first, fmt.Sprintf("%s is not granted by %s", first, describeRoles(snap)))
	}
}

func describeLayers(snap Snapshot, layers []rbac.Layer) string {
	parts := make([]string, 0, len(layers))
	for _, l := range layers {
		parts = append(parts, roleOf(snap, l).String())
	}
	return strings.Join(parts, " and ")
}

func describeRoles(snap Snapshot) string {
	var layers []rbac.Layer
	if snap.HasGlobal() {
		layers = append(layers, rbac.LayerGlobal)
	}
	if snap.HasTenant() {
		layers = append(layers, rbac.LayerTenant)
	}
	if snap.HasProject() {
		layers = append(layers, rbac.LayerProject)
	}
	return describeLayers(snap, layers)
}

func roleOf(snap Snapshot, l rbac.Layer) rbac.RoleRef {
	switch l {
	case rbac.LayerGlobal:
		return snap.GlobalRole.Ref()
	case rbac.LayerTenant:
		return snap.TenantRole.Ref()
	default:
		return snap.ProjectRole.Ref()
	}
}

// flightKey length-prefixes every caller-supplied field so that no two
// distinct contexts share a key.
func flightKey(principal string, scope Scope, generation uint64) string {
	var b strings.Builder
	for _, field := range []string{principal, scope.TenantID, scope.ProjectID} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
		b.WriteByte('|')
	}
	b.WriteString(strconv.FormatUint(generation, 10))
	return b.String()
}

func joinPermissions(perms []rbac.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
