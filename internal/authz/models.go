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
	"errors"
	"time"

	"github.com/qadeck/qadeck/internal/rbac"
)

// Domain errors
var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrStoreUnavailable  = errors.New("assignment store unavailable")
	ErrInvalidScope      = errors.New("invalid authorization scope")
	ErrInvalidPermission = errors.New("invalid permission")

	// errCacheStale never leaves the package; it only forces a recompute.
	errCacheStale = errors.New("cached permission set is stale")
)

// Scope is the context a permission is checked in.
//
// Both fields empty selects the platform scope, where only the global
// role contributes. A project without a tenant resolves the tenant from
// the project; a project with a tenant must belong to that tenant.
type Scope struct {
	TenantID  string
	ProjectID string
}

// Platform reports whether s is the platform scope.
func (s Scope) Platform() bool {
	return s.TenantID == "" && s.ProjectID == ""
}

// Snapshot is the set of role values a resolution was computed from.
type Snapshot struct {
	Principal string
	TenantID  string
	ProjectID string

	GlobalRole  rbac.GlobalRole
	TenantRole  rbac.TenantRole
	ProjectRole rbac.ProjectRole
}

// HasGlobal reports whether a global role is assigned.
func (s Snapshot) HasGlobal() bool { return s.GlobalRole != "" }

// HasTenant reports whether a tenant role is assigned in the resolved tenant.
func (s Snapshot) HasTenant() bool { return s.TenantRole != "" }

// HasProject reports whether a project role is assigned on the project.
func (s Snapshot) HasProject() bool { return s.ProjectRole != "" }

// EffectivePermissionSet is the resolved outcome for one (principal, tenant, project) context.
type EffectivePermissionSet struct {
	Principal string
	TenantID  string
	ProjectID string

	Permissions rbac.PermissionSet
	// Grants lists, per permission, the layers that contributed it in rank order.
	Grants map[rbac.Permission][]rbac.Layer

	CatalogVersion uint64
	Snapshot       Snapshot
	SnapshotToken  string

	// SuperAdmin is set when the global super_admin short-circuit applied.
	SuperAdmin bool
	// Isolated is set when the isolation rule emptied the set.
	Isolated bool
	// Drift lists assigned roles the catalog does not define.
	Drift []rbac.RoleRef

	ComputedAt time.Time
}

// Has reports whether p is granted.
func (e *EffectivePermissionSet) Has(p rbac.Permission) bool {
	return e.Permissions.Has(p)
}

// ReasonCode classifies a decision for audit and metrics.
type ReasonCode string

const (
	ReasonSuperAdmin        ReasonCode = "super_admin"
	ReasonGranted           ReasonCode = "granted"
	ReasonNotGranted        ReasonCode = "not_granted"
	ReasonIsolation         ReasonCode = "isolation"
	ReasonNoRoles           ReasonCode = "no_roles"
	ReasonProjectNotFound   ReasonCode = "project_not_found"
	ReasonUnknownPermission ReasonCode = "unknown_permission"
	ReasonStoreUnavailable  ReasonCode = "store_unavailable"
	ReasonCancelled         ReasonCode = "cancelled"
	ReasonInvalidRequest    ReasonCode = "invalid_request"
)

// Decision is the outcome of a Require or RequireAny call.
// Two calls against unchanged assignments produce equal decisions.
type Decision struct {
	Allowed bool
	Code    ReasonCode
	Reason  string
	// Permission is the permission that was granted, or on deny the first
	// requested one the catalog defines.
	Permission rbac.Permission
	// Layers lists the layers that contributed the grant, in rank order.
	Layers []rbac.Layer
}

func deny(code ReasonCode, perm rbac.Permission, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason, Permission: perm}
}
