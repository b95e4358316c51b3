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
package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qadeck/qadeck/internal/authz"
)

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) CatalogChanged(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockInvalidator) AssignmentChanged(ctx context.Context, principal string, scope authz.AssignmentScope) {
	m.Called(ctx, principal, scope)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestPurpose: Validates that an assignment change on one replica invalidates the cache of the others.
// Scope: Integration Test (in-memory Redis)
// Security: Revocation across replicas
// Expected: The publishing replica applies the change once; the peer applies it from the channel.
// Test Case ID: BUS-01
func TestInvalidationBus_FansOutAssignmentChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localA := new(mockInvalidator)
	localB := new(mockInvalidator)
	busA := NewInvalidationBus(newClient(t, mr), "", localA, quiet)
	busB := NewInvalidationBus(newClient(t, mr), "", localB, quiet)
	require.NoError(t, busA.Start(ctx))
	require.NoError(t, busB.Start(ctx))
	defer busA.Close()
	defer busB.Close()

	scope := authz.TenantAssignment("tenant-t")
	localA.On("AssignmentChanged", mock.Anything, "alice", scope).Return().Once()
	received := make(chan struct{})
	localB.On("AssignmentChanged", mock.Anything, "alice", scope).Return().Once().
		Run(func(mock.Arguments) { close(received) })

	busA.AssignmentChanged(ctx, "alice", scope)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the invalidation")
	}
	time.Sleep(50 * time.Millisecond)
	localA.AssertNumberOfCalls(t, "AssignmentChanged", 1)
	localB.AssertExpectations(t)
}

// TestPurpose: Validates catalog changes propagate and malformed messages are ignored.
// Scope: Integration Test (in-memory Redis)
// Security: Policy updates across replicas
// Expected: Peer purges on catalog change; garbage payloads have no effect.
// Test Case ID: BUS-02
func TestInvalidationBus_CatalogAndMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localA := new(mockInvalidator)
	localB := new(mockInvalidator)
	busA := NewInvalidationBus(newClient(t, mr), "test:inv", localA, quiet)
	busB := NewInvalidationBus(newClient(t, mr), "test:inv", localB, quiet)
	require.NoError(t, busB.Start(ctx))
	defer busB.Close()

	localA.On("CatalogChanged", mock.Anything).Return()
	received := make(chan struct{})
	localB.On("CatalogChanged", mock.Anything).Return().Once().
		Run(func(mock.Arguments) { close(received) })

	mr.Publish("test:inv", "{not json")
	mr.Publish("test:inv", `{"origin":"x","kind":"assignment"}`)
	busA.CatalogChanged(ctx)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the catalog change")
	}
	localB.AssertNotCalled(t, "AssignmentChanged", mock.Anything, mock.Anything, mock.Anything)
	localA.AssertNumberOfCalls(t, "CatalogChanged", 1)
}

// TestPurpose: Validates that a Redis outage never blocks local invalidation.
// Scope: Unit Test
// Security: Fail-safe invalidation
// Expected: Local invalidator is still called when publishing fails.
// Test Case ID: BUS-03
func TestInvalidationBus_PublishFailureStillInvalidatesLocally(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	mr.Close()

	local := new(mockInvalidator)
	local.On("AssignmentChanged", mock.Anything, "alice", authz.GlobalAssignment()).Return()
	bus := NewInvalidationBus(client, "", local, quiet)

	bus.AssignmentChanged(context.Background(), "alice", authz.GlobalAssignment())
	local.AssertExpectations(t)
}
