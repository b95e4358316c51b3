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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qadeck/qadeck/internal/audit"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/rbac"
)

// Service provides tenant, project and role assignment management.
// Every successful mutation is audited and reported to the invalidator.
type Service struct {
	repo        Repository
	invalidator authz.Invalidator
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new assignment service
func NewService(repo Repository, invalidator authz.Invalidator, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CreateTenant creates a tenant and makes the creator its owner.
func (s *Service) CreateTenant(ctx context.Context, actor, name string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant id: %w", err)
	}
	t := &Tenant{ID: id.String(), Name: name, CreatedAt: s.now()}

	if err := s.repo.CreateTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		ActorID:  actor,
		Resource: "tenant",
		Metadata: map[string]any{"name": name},
	})

	if err := s.AssignTenantRole(ctx, actor, t.ID, actor, rbac.TenantOwner); err != nil {
		return nil, fmt.Errorf("failed to grant tenant owner: %w", err)
	}
	return t, nil
}

// CreateProject creates a project in tenantID and makes the creator its owner.
func (s *Service) CreateProject(ctx context.Context, actor, tenantID, name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return nil, fmt.Errorf("%w: tenant id and project name are required", ErrInvalidInput)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate project id: %w", err)
	}
	p := &Project{ID: id.String(), TenantID: tenantID, Name: name, CreatedAt: s.now()}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeProjectCreated,
		TenantID:  tenantID,
		ProjectID: p.ID,
		ActorID:   actor,
		Resource:  "project",
		Metadata:  map[string]any{"name": name},
	})

	if err := s.AssignProjectRole(ctx, actor, p.ID, actor, rbac.ProjectOwner); err != nil {
		return nil, fmt.Errorf("failed to grant project owner: %w", err)
	}
	return p, nil
}

// AssignGlobalRole sets the principal's application-wide role
func (s *Service) AssignGlobalRole(ctx context.Context, actor, principal string, role rbac.GlobalRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q is not a global role", ErrInvalidRole, role)
	}
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	if err := s.repo.SetGlobalRole(ctx, principal, role, actor); err != nil {
		return fmt.Errorf("failed to assign global role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleAssigned, actor, principal, authz.GlobalAssignment(), role.Ref())
	return nil
}

// RevokeGlobalRole removes the principal's application-wide role
func (s *Service) RevokeGlobalRole(ctx context.Context, actor, principal string) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	if err := s.repo.DeleteGlobalRole(ctx, principal); err != nil {
		return fmt.Errorf("failed to revoke global role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleRevoked, actor, principal, authz.GlobalAssignment(), rbac.RoleRef{Layer: rbac.LayerGlobal})
	return nil
}

// AssignTenantRole sets the principal's role within tenantID
func (s *Service) AssignTenantRole(ctx context.Context, actor, tenantID, principal string, role rbac.TenantRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q is not a tenant role", ErrInvalidRole, role)
	}
	if tenantID == "" || principal == "" {
		return fmt.Errorf("%w: tenant id and principal are required", ErrInvalidInput)
	}
	if err := s.repo.SetTenantRole(ctx, tenantID, principal, role, actor); err != nil {
		return fmt.Errorf("failed to assign tenant role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleAssigned, actor, principal, authz.TenantAssignment(tenantID), role.Ref())
	return nil
}

// RevokeTenantRole removes the principal's role within tenantID
func (s *Service) RevokeTenantRole(ctx context.Context, actor, tenantID, principal string) error {
	if tenantID == "" || principal == "" {
		return fmt.Errorf("%w: tenant id and principal are required", ErrInvalidInput)
	}
	if err := s.repo.DeleteTenantRole(ctx, tenantID, principal); err != nil {
		return fmt.Errorf("failed to revoke tenant role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleRevoked, actor, principal, authz.TenantAssignment(tenantID), rbac.RoleRef{Layer: rbac.LayerTenant})
	return nil
}

// AssignProjectRole sets the principal's role on projectID
func (s *Service) AssignProjectRole(ctx context.Context, actor, projectID, principal string, role rbac.ProjectRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q is not a project role", ErrInvalidRole, role)
	}
	if projectID == "" || principal == "" {
		return fmt.Errorf("%w: project id and principal are required", ErrInvalidInput)
	}
	if err := s.repo.SetProjectRole(ctx, projectID, principal, role, actor); err != nil {
		return fmt.Errorf("failed to assign project role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleAssigned, actor, principal, authz.ProjectAssignment(projectID), role.Ref())
	return nil
}

// RevokeProjectRole removes the principal's role on projectID
func (s *Service) RevokeProjectRole(ctx context.Context, actor, projectID, principal string) error {
	if projectID == "" || principal == "" {
		return fmt.Errorf("%w: project id and principal are required", ErrInvalidInput)
	}
	if err := s.repo.DeleteProjectRole(ctx, projectID, principal); err != nil {
		return fmt.Errorf("failed to revoke project role: %w", err)
	}
	s.changed(ctx, audit.TypeRoleRevoked, actor, principal, authz.ProjectAssignment(projectID), rbac.RoleRef{Layer: rbac.LayerProject})
	return nil
}

// TenantMembers lists the tenant role assignments of tenantID
func (s *Service) TenantMembers(ctx context.Context, tenantID string) ([]Member, error) {
	return s.repo.TenantMembers(ctx, tenantID)
}

// ProjectMembers lists the project role assignments of projectID
func (s *Service) ProjectMembers(ctx context.Context, projectID string) ([]Member, error) {
	return s.repo.ProjectMembers(ctx, projectID)
}

func (s *Service) changed(ctx context.Context, eventType, actor, principal string, scope authz.AssignmentScope, ref rbac.RoleRef) {
	if s.invalidator != nil {
		s.invalidator.AssignmentChanged(ctx, principal, scope)
	}

	meta := map[string]any{
		"principal": principal,
		"layer":     string(scope.Layer),
	}
	if ref.Name != "" {
		meta["role"] = ref.Name
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:      eventType,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
		ActorID:   actor,
		Resource:  "role_assignment",
		Metadata:  meta,
	})
}
