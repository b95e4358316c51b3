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
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qadeck/qadeck/internal/audit"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/rbac"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateTenant(ctx context.Context, t *Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockRepo) CreateProject(ctx context.Context, p *Project) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRepo) SetGlobalRole(ctx context.Context, principal string, role rbac.GlobalRole, grantedBy string) error {
	return m.Called(ctx, principal, role, grantedBy).Error(0)
}

func (m *mockRepo) DeleteGlobalRole(ctx context.Context, principal string) error {
	return m.Called(ctx, principal).Error(0)
}

func (m *mockRepo) SetTenantRole(ctx context.Context, tenantID, principal string, role rbac.TenantRole, grantedBy string) error {
	return m.Called(ctx, tenantID, principal, role, grantedBy).Error(0)
}

func (m *mockRepo) DeleteTenantRole(ctx context.Context, tenantID, principal string) error {
	return m.Called(ctx, tenantID, principal).Error(0)
}

func (m *mockRepo) SetProjectRole(ctx context.Context, projectID, principal string, role rbac.ProjectRole, grantedBy string) error {
	return m.Called(ctx, projectID, principal, role, grantedBy).Error(0)
}

func (m *mockRepo) DeleteProjectRole(ctx context.Context, projectID, principal string) error {
	return m.Called(ctx, projectID, principal).Error(0)
}

func (m *mockRepo) TenantMembers(ctx context.Context, tenantID string) ([]Member, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Member), args.Error(1)
}

func (m *mockRepo) ProjectMembers(ctx context.Context, projectID string) ([]Member, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Member), args.Error(1)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) CatalogChanged(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockInvalidator) AssignmentChanged(ctx context.Context, principal string, scope authz.AssignmentScope) {
	m.Called(ctx, principal, scope)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func newTestService() (*Service, *mockRepo, *mockInvalidator, *mockAudit) {
	repo := new(mockRepo)
	inv := new(mockInvalidator)
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return()
	return NewService(repo, inv, auditLogger), repo, inv, auditLogger
}

// TestPurpose: Validates that tenant creation generates a UUIDv7 and makes the creator owner.
// Scope: Unit Test
// Security: Tenant bootstrap
// Expected: Tenant stored with a v7 id; owner role granted and invalidated for the creator.
// Test Case ID: ASG-01
func TestService_CreateTenant(t *testing.T) {
	svc, repo, inv, auditLogger := newTestService()
	ctx := context.Background()

	repo.On("CreateTenant", ctx, mock.MatchedBy(func(t *Tenant) bool {
		id, err := uuid.Parse(t.ID)
		return err == nil && id.Version() == 7 && t.Name == "Acme QA"
	})).Return(nil)
	repo.On("SetTenantRole", ctx, mock.Anything, "alice", rbac.TenantOwner, "alice").Return(nil)
	inv.On("AssignmentChanged", ctx, "alice", mock.MatchedBy(func(s authz.AssignmentScope) bool {
		return s.Layer == rbac.LayerTenant && s.TenantID != ""
	})).Return()

	tenant, err := svc.CreateTenant(ctx, "alice", "  Acme QA ")
	require.NoError(t, err)
	assert.Equal(t, "Acme QA", tenant.Name)

	repo.AssertExpectations(t)
	inv.AssertExpectations(t)
	auditLogger.AssertCalled(t, "Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeTenantCreated && e.TenantID == tenant.ID && e.ActorID == "alice"
	}))
}

// TestPurpose: Validates that project creation grants the creator the owner role on the project.
// Scope: Unit Test
// Security: Project bootstrap
// Expected: Project stored under its tenant; project owner assigned.
// Test Case ID: ASG-02
func TestService_CreateProject(t *testing.T) {
	svc, repo, inv, _ := newTestService()
	ctx := context.Background()

	repo.On("CreateProject", ctx, mock.MatchedBy(func(p *Project) bool {
		return p.TenantID == "tenant-t" && p.Name == "Mobile"
	})).Return(nil)
	repo.On("SetProjectRole", ctx, mock.Anything, "alice", rbac.ProjectOwner, "alice").Return(nil)
	inv.On("AssignmentChanged", ctx, "alice", mock.Anything).Return()

	p, err := svc.CreateProject(ctx, "alice", "tenant-t", "Mobile")
	require.NoError(t, err)
	assert.Equal(t, "tenant-t", p.TenantID)

	_, err = svc.CreateProject(ctx, "alice", "", "Mobile")
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertExpectations(t)
}

// TestPurpose: Validates that a tenant creation failure is surfaced without granting roles.
// Scope: Unit Test
// Security: Consistency
// Expected: Wrapped repository error; no role write, no invalidation.
// Test Case ID: ASG-03
func TestService_CreateTenant_RepositoryError(t *testing.T) {
	svc, repo, inv, _ := newTestService()
	ctx := context.Background()

	repo.On("CreateTenant", ctx, mock.Anything).Return(ErrTenantExists)

	_, err := svc.CreateTenant(ctx, "alice", "Acme")
	assert.ErrorIs(t, err, ErrTenantExists)
	repo.AssertNotCalled(t, "SetTenantRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	inv.AssertNotCalled(t, "AssignmentChanged", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that every assignment mutation notifies the invalidator with the right scope.
// Scope: Unit Test
// Security: Revocation latency
// Expected: Global, tenant and project changes map to their assignment scopes.
// Test Case ID: ASG-04
func TestService_MutationsInvalidate(t *testing.T) {
	svc, repo, inv, _ := newTestService()
	ctx := context.Background()

	repo.On("SetGlobalRole", ctx, "bob", rbac.GlobalAdmin, "root").Return(nil)
	repo.On("DeleteGlobalRole", ctx, "bob").Return(nil)
	repo.On("SetTenantRole", ctx, "tenant-t", "bob", rbac.TenantEditor, "root").Return(nil)
	repo.On("DeleteTenantRole", ctx, "tenant-t", "bob").Return(nil)
	repo.On("SetProjectRole", ctx, "project-x", "bob", rbac.ProjectViewer, "root").Return(nil)
	repo.On("DeleteProjectRole", ctx, "project-x", "bob").Return(nil)

	inv.On("AssignmentChanged", ctx, "bob", authz.GlobalAssignment()).Return().Twice()
	inv.On("AssignmentChanged", ctx, "bob", authz.TenantAssignment("tenant-t")).Return().Twice()
	inv.On("AssignmentChanged", ctx, "bob", authz.ProjectAssignment("project-x")).Return().Twice()

	require.NoError(t, svc.AssignGlobalRole(ctx, "root", "bob", rbac.GlobalAdmin))
	require.NoError(t, svc.RevokeGlobalRole(ctx, "root", "bob"))
	require.NoError(t, svc.AssignTenantRole(ctx, "root", "tenant-t", "bob", rbac.TenantEditor))
	require.NoError(t, svc.RevokeTenantRole(ctx, "root", "tenant-t", "bob"))
	require.NoError(t, svc.AssignProjectRole(ctx, "root", "project-x", "bob", rbac.ProjectViewer))
	require.NoError(t, svc.RevokeProjectRole(ctx, "root", "project-x", "bob"))

	repo.AssertExpectations(t)
	inv.AssertExpectations(t)
}

// TestPurpose: Validates that role names outside the layer's closed set are rejected.
// Scope: Unit Test
// Security: Unauthorized privilege escalation prevention
// Expected: ErrInvalidRole; repository untouched.
// Test Case ID: ASG-05
func TestService_RejectsInvalidRoles(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.AssignGlobalRole(ctx, "root", "bob", "root"), ErrInvalidRole)
	assert.ErrorIs(t, svc.AssignTenantRole(ctx, "root", "tenant-t", "bob", "maintainer"), ErrInvalidRole)
	assert.ErrorIs(t, svc.AssignProjectRole(ctx, "root", "project-x", "bob", "editor"), ErrInvalidRole)
	assert.ErrorIs(t, svc.AssignTenantRole(ctx, "root", "", "bob", rbac.TenantViewer), ErrInvalidInput)

	repo.AssertNotCalled(t, "SetGlobalRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SetTenantRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SetProjectRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that a failed revoke does not invalidate or audit.
// Scope: Unit Test
// Security: Audit accuracy
// Expected: ErrAssignmentNotFound surfaced; no side effects.
// Test Case ID: ASG-06
func TestService_RevokeMissing(t *testing.T) {
	svc, repo, inv, auditLogger := newTestService()
	ctx := context.Background()

	repo.On("DeleteTenantRole", ctx, "tenant-t", "bob").Return(ErrAssignmentNotFound)

	err := svc.RevokeTenantRole(ctx, "root", "tenant-t", "bob")
	assert.True(t, errors.Is(err, ErrAssignmentNotFound))
	inv.AssertNotCalled(t, "AssignmentChanged", mock.Anything, mock.Anything, mock.Anything)
	auditLogger.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}
