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

package assignment

import (
	"context"

	"github.com/qadeck/qadeck/internal/rbac"
)

// Repository persists tenants, projects and role assignments.
//
// Each Set replaces the principal's role on that layer and scope, so a
// principal never holds two roles on the same pair. Deletes of a missing
// assignment return ErrAssignmentNotFound.
type Repository interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	CreateProject(ctx context.Context, p *Project) error

	SetGlobalRole(ctx context.Context, principal string, role rbac.GlobalRole, grantedBy string) error
	DeleteGlobalRole(ctx context.Context, principal string) error

	SetTenantRole(ctx context.Context, tenantID, principal string, role rbac.TenantRole, grantedBy string) error
	DeleteTenantRole(ctx context.Context, tenantID, principal string) error

	SetProjectRole(ctx context.Context, projectID, principal string, role rbac.ProjectRole, grantedBy string) error
	DeleteProjectRole(ctx context.Context, projectID, principal string) error

	TenantMembers(ctx context.Context, tenantID string) ([]Member, error)
	ProjectMembers(ctx context.Context, projectID string) ([]Member, error)
}
