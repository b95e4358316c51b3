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
// Package memory is a map-backed assignment store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/rbac"
)

type grant struct {
	role      string
	grantedBy string
	grantedAt time.Time
}

type key struct {
	scopeID   string
	principal string
}

// Store implements authz.AssignmentStore and assignment.Repository in memory.
type Store struct {
	mu       sync.RWMutex
	tenants  map[string]*assignment.Tenant
	projects map[string]*assignment.Project
	global   map[string]grant
	tenant   map[key]grant
	project  map[key]grant
	now      func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		tenants:  make(map[string]*assignment.Tenant),
		projects: make(map[string]*assignment.Project),
		global:   make(map[string]grant),
		tenant:   make(map[key]grant),
		project:  make(map[key]grant),
		now:      time.Now,
	}
}

var (
	_ authz.AssignmentStore = (*Store)(nil)
	_ assignment.Repository = (*Store)(nil)
)

// GlobalRoleOf implements authz.AssignmentStore
func (s *Store) GlobalRoleOf(ctx context.Context, principal string) (rbac.GlobalRole, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.global[principal]
	return rbac.GlobalRole(g.role), ok, nil
}

// TenantRoleOf implements authz.AssignmentStore
func (s *Store) TenantRoleOf(ctx context.Context, principal, tenantID string) (rbac.TenantRole, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.tenant[key{tenantID, principal}]
	return rbac.TenantRole(g.role), ok, nil
}

// ProjectRoleOf implements authz.AssignmentStore
func (s *Store) ProjectRoleOf(ctx context.Context, principal, projectID string) (rbac.ProjectRole, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.project[key{projectID, principal}]
	return rbac.ProjectRole(g.role), ok, nil
}

// TenantOfProject implements authz.AssignmentStore
func (s *Store) TenantOfProject(ctx context.Context, projectID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", fmt.Errorf("%w: %s", authz.ErrProjectNotFound, projectID)
	}
	return p.TenantID, nil
}

// CreateTenant implements assignment.Repository
func (s *Store) CreateTenant(_ context.Context, t *assignment.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return assignment.ErrTenantExists
	}
	for _, existing := range s.tenants {
		if existing.Name == t.Name {
			return assignment.ErrTenantExists
		}
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

// CreateProject implements assignment.Repository
func (s *Store) CreateProject(_ context.Context, p *assignment.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[p.TenantID]; !ok {
		return assignment.ErrTenantNotFound
	}
	if _, ok := s.projects[p.ID]; ok {
		return assignment.ErrProjectExists
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

// SetGlobalRole implements assignment.Repository
func (s *Store) SetGlobalRole(_ context.Context, principal string, role rbac.GlobalRole, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[principal] = grant{role: string(role), grantedBy: grantedBy, grantedAt: s.now()}
	return nil
}

// DeleteGlobalRole implements assignment.Repository
func (s *Store) DeleteGlobalRole(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.global[principal]; !ok {
		return assignment.ErrAssignmentNotFound
	}
	delete(s.global, principal)
	return nil
}

// SetTenantRole implements assignment.Repository
func (s *Store) SetTenantRole(_ context.Context, tenantID, principal string, role rbac.TenantRole, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return assignment.ErrTenantNotFound
	}
	s.tenant[key{tenantID, principal}] = grant{role: string(role), grantedBy: grantedBy, grantedAt: s.now()}
	return nil
}

// DeleteTenantRole implements assignment.Repository
func (s *Store) DeleteTenantRole(_ context.Context, tenantID, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenantID, principal}
	if _, ok := s.tenant[k]; !ok {
		return assignment.ErrAssignmentNotFound
	}
	delete(s.tenant, k)
	return nil
}

// SetProjectRole implements assignment.Repository
func (s *Store) SetProjectRole(_ context.Context, projectID, principal string, role rbac.ProjectRole, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return authz.ErrProjectNotFound
	}
	s.project[key{projectID, principal}] = grant{role: string(role), grantedBy: grantedBy, grantedAt: s.now()}
	return nil
}

// DeleteProjectRole implements assignment.Repository
func (s *Store) DeleteProjectRole(_ context.Context, projectID, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{projectID, principal}
	if _, ok := s.project[k]; !ok {
		return assignment.ErrAssignmentNotFound
	}
	delete(s.project, k)
	return nil
}

// TenantMembers implements assignment.Repository
func (s *Store) TenantMembers(_ context.Context, tenantID string) ([]assignment.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return nil, assignment.ErrTenantNotFound
	}
	return members(s.tenant, rbac.LayerTenant, tenantID), nil
}

// ProjectMembers implements assignment.Repository
func (s *Store) ProjectMembers(_ context.Context, projectID string) ([]assignment.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, authz.ErrProjectNotFound
	}
	return members(s.project, rbac.LayerProject, projectID), nil
}

func members(grants map[key]grant, layer rbac.Layer, scopeID string) []assignment.Member {
	out := []assignment.Member{}
	for k, g := range grants {
		if k.scopeID != scopeID {
			continue
		}
		out = append(out, assignment.Member{
			Principal: k.principal,
			Layer:     layer,
			ScopeID:   scopeID,
			Role:      g.role,
			GrantedBy: g.grantedBy,
			GrantedAt: g.grantedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out
}
