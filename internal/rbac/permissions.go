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

package rbac

import (
	"sort"
	"strings"
)

// Permission is an atomic capability token of the form "kind:action".
type Permission string

// Wildcard expands to every permission of the catalog vocabulary.
// Only global-layer definitions may use it.
const Wildcard Permission = "*"

// -----------------------------------------------------------------------------
// Permission vocabulary
// -----------------------------------------------------------------------------

// Platform permissions (granted through global roles only).
const (
	PermUserView      Permission = "user:view"
	PermUserManage    Permission = "user:manage"
	PermTenantCreate  Permission = "tenant:create"
	PermTenantList    Permission = "tenant:list"
	PermCatalogManage Permission = "catalog:manage"
	PermProfileView   Permission = "profile:view"
	PermProfileEdit   Permission = "profile:edit"
)

// Tenant permissions.
const (
	PermTenantView           Permission = "tenant:view"
	PermTenantManageMembers  Permission = "tenant:manage_members"
	PermTenantManageSettings Permission = "tenant:manage_settings"
	PermTenantViewAudit      Permission = "tenant:view_audit"
	PermTenantDelete         Permission = "tenant:delete"
	PermDashboardView        Permission = "dashboard:view"
	PermChatUse              Permission = "chat:use"
	PermBotConfigure         Permission = "bot:configure"
)

// Project-scoped permissions.
const (
	PermProjectView          Permission = "project:view"
	PermProjectCreate        Permission = "project:create"
	PermProjectEdit          Permission = "project:edit"
	PermProjectDelete        Permission = "project:delete"
	PermProjectManageMembers Permission = "project:manage_members"

	PermTestCaseView   Permission = "test_case:view"
	PermTestCaseCreate Permission = "test_case:create"
	PermTestCaseEdit   Permission = "test_case:edit"
	PermTestCaseDelete Permission = "test_case:delete"

	PermTestPlanView   Permission = "test_plan:view"
	PermTestPlanManage Permission = "test_plan:manage"

	PermTestRunView    Permission = "test_run:view"
	PermTestRunExecute Permission = "test_run:execute"
	PermTestRunManage  Permission = "test_run:manage"

	PermReportView   Permission = "report:view"
	PermReportCreate Permission = "report:create"
	PermReportExport Permission = "report:export"
	PermReportDelete Permission = "report:delete"
)

// DefaultProjectScopedKinds lists the resource kinds a project role may grant.
var DefaultProjectScopedKinds = []string{"project", "test_case", "test_plan", "test_run", "report"}

// Kind returns the resource-kind namespace of the permission.
func (p Permission) Kind() string {
	kind, _, ok := strings.Cut(string(p), ":")
	if !ok {
		return ""
	}
	return kind
}

// Valid reports whether the permission is a well-formed "kind:action" token.
func (p Permission) Valid() bool {
	kind, action, ok := strings.Cut(string(p), ":")
	return ok && kind != "" && action != "" && !strings.Contains(action, ":")
}

// PermissionSet is an immutable-by-convention set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of permissions.
func (s PermissionSet) Len() int { return len(s) }

// Union returns a new set containing the permissions of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Intersect returns the permissions of candidates present in s, in candidate order.
func (s PermissionSet) Intersect(candidates []Permission) []Permission {
	var out []Permission
	for _, p := range candidates {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subset reports whether every permission of s is in other.
func (s PermissionSet) Subset(other PermissionSet) bool {
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}
