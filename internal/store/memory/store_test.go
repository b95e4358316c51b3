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
package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/rbac"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateTenant(ctx, &assignment.Tenant{ID: "t1", Name: "Acme"}))
	require.NoError(t, s.CreateProject(ctx, &assignment.Project{ID: "p1", TenantID: "t1", Name: "Web"}))
	return s
}

// TestPurpose: Validates read semantics of the in-memory store: absent roles are not errors.
// Scope: Unit Test
// Security: Fail-closed store contract
// Expected: ok=false with nil error for missing roles; ErrProjectNotFound for unknown projects.
// Test Case ID: MEM-01
func TestStore_Reads(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	_, ok, err := s.GlobalRoleOf(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetGlobalRole(ctx, "alice", rbac.GlobalUser, "root"))
	require.NoError(t, s.SetTenantRole(ctx, "t1", "alice", rbac.TenantViewer, "root"))
	require.NoError(t, s.SetProjectRole(ctx, "p1", "alice", rbac.ProjectOwner, "root"))

	g, ok, err := s.GlobalRoleOf(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rbac.GlobalUser, g)

	tr, ok, err := s.TenantRoleOf(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rbac.TenantViewer, tr)

	pr, ok, err := s.ProjectRoleOf(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rbac.ProjectOwner, pr)

	owner, err := s.TenantOfProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "t1", owner)

	_, err = s.TenantOfProject(ctx, "nope")
	assert.ErrorIs(t, err, authz.ErrProjectNotFound)
}

// TestPurpose: Validates one role per principal and scope, and write-side referential checks.
// Scope: Unit Test
// Security: Assignment integrity
// Expected: Set replaces; deletes of missing rows and writes to missing scopes fail.
// Test Case ID: MEM-02
func TestStore_Writes(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	require.NoError(t, s.SetTenantRole(ctx, "t1", "bob", rbac.TenantViewer, "root"))
	require.NoError(t, s.SetTenantRole(ctx, "t1", "bob", rbac.TenantAdmin, "root"))

	members, err := s.TenantMembers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, string(rbac.TenantAdmin), members[0].Role)

	require.NoError(t, s.DeleteTenantRole(ctx, "t1", "bob"))
	assert.ErrorIs(t, s.DeleteTenantRole(ctx, "t1", "bob"), assignment.ErrAssignmentNotFound)
	assert.ErrorIs(t, s.DeleteGlobalRole(ctx, "bob"), assignment.ErrAssignmentNotFound)
	assert.ErrorIs(t, s.DeleteProjectRole(ctx, "p1", "bob"), assignment.ErrAssignmentNotFound)

	assert.ErrorIs(t, s.SetTenantRole(ctx, "t9", "bob", rbac.TenantViewer, "root"), assignment.ErrTenantNotFound)
	assert.ErrorIs(t, s.SetProjectRole(ctx, "p9", "bob", rbac.ProjectViewer, "root"), authz.ErrProjectNotFound)
	assert.ErrorIs(t, s.CreateProject(ctx, &assignment.Project{ID: "p2", TenantID: "t9"}), assignment.ErrTenantNotFound)
	assert.ErrorIs(t, s.CreateTenant(ctx, &assignment.Tenant{ID: "t2", Name: "Acme"}), assignment.ErrTenantExists)
	assert.ErrorIs(t, s.CreateProject(ctx, &assignment.Project{ID: "p1", TenantID: "t1"}), assignment.ErrProjectExists)
}

// TestPurpose: Validates the store end to end behind the gate and the assignment service.
// Scope: Integration Test (in-process)
// Security: Revocation and isolation
// Expected: Revoking the tenant role isolates the project owner immediately.
// Test Case ID: MEM-03
func TestStore_WithGateAndService(t *testing.T) {
	ctx := context.Background()
	s := New()
	catalog := rbac.DefaultCatalog()
	gate, err := authz.NewGate(authz.NewResolver(s, catalog, nil), authz.NewCache(authz.CacheConfig{}), nil)
	require.NoError(t, err)
	svc := assignment.NewService(s, gate, nil)

	tenant, err := svc.CreateTenant(ctx, "alice", "Acme")
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, "alice", tenant.ID, "Web")
	require.NoError(t, err)

	require.NoError(t, svc.AssignTenantRole(ctx, "alice", tenant.ID, "bob", rbac.TenantViewer))
	require.NoError(t, svc.AssignProjectRole(ctx, "alice", project.ID, "bob", rbac.ProjectOwner))

	scope := authz.Scope{ProjectID: project.ID}
	d, err := gate.Require(ctx, "bob", scope, rbac.PermTestCaseDelete)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, svc.RevokeTenantRole(ctx, "alice", tenant.ID, "bob"))
	d, err = gate.Require(ctx, "bob", scope, rbac.PermTestCaseDelete)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, authz.ReasonIsolation, d.Code)
}
