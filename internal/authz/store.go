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

	"github.com/qadeck/qadeck/internal/rbac"
)

// AssignmentStore is read access to externally persisted role assignments.
//
// A missing assignment is reported as ok=false with a nil error. Transient
// faults must be returned as errors wrapping ErrStoreUnavailable; they are
// never interpreted as "no role".
type AssignmentStore interface {
	// GlobalRoleOf returns the principal's application-wide role.
	GlobalRoleOf(ctx context.Context, principal string) (role rbac.GlobalRole, ok bool, err error)

	// TenantRoleOf returns the principal's role within tenant.
	TenantRoleOf(ctx context.Context, principal, tenantID string) (role rbac.TenantRole, ok bool, err error)

	// ProjectRoleOf returns the principal's role on project.
	ProjectRoleOf(ctx context.Context, principal, projectID string) (role rbac.ProjectRole, ok bool, err error)

	// TenantOfProject returns the owning tenant, or ErrProjectNotFound.
	TenantOfProject(ctx context.Context, projectID string) (string, error)
}

// AssignmentScope identifies which assignment of a principal changed.
type AssignmentScope struct {
	Layer     rbac.Layer
	TenantID  string
	ProjectID string
}

// GlobalAssignment is the scope of a global role change.
func GlobalAssignment() AssignmentScope {
	return AssignmentScope{Layer: rbac.LayerGlobal}
}

// TenantAssignment is the scope of a tenant role change.
func TenantAssignment(tenantID string) AssignmentScope {
	return AssignmentScope{Layer: rbac.LayerTenant, TenantID: tenantID}
}

// ProjectAssignment is the scope of a project role change.
func ProjectAssignment(projectID string) AssignmentScope {
	return AssignmentScope{Layer: rbac.LayerProject, ProjectID: projectID}
}

// Invalidator is the administrative notification hook. Every assignment
// mutation and every catalog change must be reported through it.
type Invalidator interface {
	CatalogChanged(ctx context.Context)
	AssignmentChanged(ctx context.Context, principal string, scope AssignmentScope)
}
