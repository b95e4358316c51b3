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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that metadata keys carrying credentials are recognised for redaction.
// Scope: Unit Test
// Security: Sensitive data exposure in audit logs
// Expected: Credential-like keys are secret, identifiers are not.
// Test Case ID: AUD-01
func TestIsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"password_hash", true},
		{"credential", true},
		{"Authorization", true},
		{"principal", false},
		{"tenant_id", false},
		{"permission", false},
		{"cache_hit", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.isSecret, isSecret(tt.key))
		})
	}
}

// TestPurpose: Validates that an authorization decision is written as a structured audit record with redacted metadata.
// Scope: Unit Test
// Security: Decision auditability
// Expected: JSON record carries type, actor, scope, reason, and a redacted token.
// Test Case ID: AUD-02
func TestSlogLogger_WritesDecisionEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Log(context.Background(), Event{
		Type:      TypeDecisionDenied,
		ID:        "dec-1",
		TenantID:  "tenant-a",
		ProjectID: "project-x",
		ActorID:   "user-1",
		Resource:  "test_case:edit",
		Reason:    "isolation",
		Metadata:  map[string]any{"token": "abc", "cache_hit": true},
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "AUDIT_EVENT", rec["msg"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, TypeDecisionDenied, rec["audit_type"])
	assert.Equal(t, "dec-1", rec["event_id"])
	assert.Equal(t, "tenant-a", rec["tenant_id"])
	assert.Equal(t, "project-x", rec["project_id"])
	assert.Equal(t, "user-1", rec["actor_id"])
	assert.Equal(t, "test_case:edit", rec["resource"])
	assert.Equal(t, "isolation", rec["reason"])

	meta, ok := rec["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", meta["token"])
	assert.Equal(t, true, meta["cache_hit"])
}
