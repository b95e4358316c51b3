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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/qadeck/qadeck/internal/audit"
	"github.com/qadeck/qadeck/internal/rbac"
)

const (
	tenantT  = "tenant-t"
	tenantU  = "tenant-u"
	projectX = "project-x"
	projectY = "project-y"
	alice    = "alice"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type pair struct{ principal, scope string }

// fakeStore is a map-backed AssignmentStore that counts reads.
type fakeStore struct {
	mu       sync.RWMutex
	global   map[string]rbac.GlobalRole
	tenant   map[pair]rbac.TenantRole
	project  map[pair]rbac.ProjectRole
	projects map[string]string
	reads    atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		global:   make(map[string]rbac.GlobalRole),
		tenant:   make(map[pair]rbac.TenantRole),
		project:  make(map[pair]rbac.ProjectRole),
		projects: map[string]string{projectX: tenantT, projectY: tenantU},
	}
}

func (s *fakeStore) setGlobal(p string, r rbac.GlobalRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[p] = r
}

func (s *fakeStore) setTenant(p, t string, r rbac.TenantRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant[pair{p, t}] = r
}

func (s *fakeStore) setProject(p, proj string, r rbac.ProjectRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project[pair{p, proj}] = r
}

func (s *fakeStore) GlobalRoleOf(_ context.Context, principal string) (rbac.GlobalRole, bool, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.global[principal]
	return r, ok, nil
}

func (s *fakeStore) TenantRoleOf(_ context.Context, principal, tenantID string) (rbac.TenantRole, bool, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tenant[pair{principal, tenantID}]
	return r, ok, nil
}

func (s *fakeStore) ProjectRoleOf(_ context.Context, principal, projectID string) (rbac.ProjectRole, bool, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.project[pair{principal, projectID}]
	return r, ok, nil
}

func (s *fakeStore) TenantOfProject(_ context.Context, projectID string) (string, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.projects[projectID]
	if !ok {
		return "", ErrProjectNotFound
	}
	return t, nil
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GlobalRoleOf(ctx context.Context, principal string) (rbac.GlobalRole, bool, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(rbac.GlobalRole), args.Bool(1), args.Error(2)
}

func (m *mockStore) TenantRoleOf(ctx context.Context, principal, tenantID string) (rbac.TenantRole, bool, error) {
	args := m.Called(ctx, principal, tenantID)
	return args.Get(0).(rbac.TenantRole), args.Bool(1), args.Error(2)
}

func (m *mockStore) ProjectRoleOf(ctx context.Context, principal, projectID string) (rbac.ProjectRole, bool, error) {
	args := m.Called(ctx, principal, projectID)
	return args.Get(0).(rbac.ProjectRole), args.Bool(1), args.Error(2)
}

func (m *mockStore) TenantOfProject(ctx context.Context, projectID string) (string, error) {
	args := m.Called(ctx, projectID)
	return args.String(0), args.Error(1)
}

// recordingAudit keeps every event it receives.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}
