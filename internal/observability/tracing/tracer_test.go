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

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

// TestPurpose: Validates a check span carries the request context and outcome.
// Scope: Unit Test
// Security: Observability of authorization decisions
// Expected: One span per check with scope, permission, outcome and cache attributes.
// Test Case ID: TRC-01
func TestTracer_CheckSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr := NewWithExporter(Config{ServiceName: "qadeck-test"}, exporter)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	_, span := tr.StartCheck(context.Background(), "authz.require", "t1", "p1", "project:view")
	EndCheck(span, true, "granted", true, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "authz.require", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	got := attrs(spans[0].Attributes)
	assert.Equal(t, "t1", got[AttrTenantID].AsString())
	assert.Equal(t, "p1", got[AttrProjectID].AsString())
	assert.Equal(t, "project:view", got[AttrPermissions].AsString())
	assert.True(t, got[AttrAllowed].AsBool())
	assert.Equal(t, "granted", got[AttrCode].AsString())
	assert.True(t, got[AttrCacheHit].AsBool())
}

// TestPurpose: Validates failed checks are marked as span errors.
// Scope: Unit Test
// Security: Fail-closed visibility
// Expected: Error status described by the reason code, with the error recorded as an event.
// Test Case ID: TRC-02
func TestTracer_FailedCheck(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr := NewWithExporter(Config{ServiceName: "qadeck-test", SamplingRate: 7}, exporter)

	_, span := tr.StartCheck(context.Background(), "authz.require", "t1", "", "report:export")
	EndCheck(span, false, "store_unavailable", false, errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "store_unavailable", spans[0].Status.Description)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
	assert.False(t, attrs(spans[0].Attributes)[AttrAllowed].AsBool())
}

// TestPurpose: Validates the disabled configuration records nothing.
// Scope: Unit Test
// Security: N/A
// Expected: Non-recording spans and a no-op shutdown.
// Test Case ID: TRC-03
func TestTracer_Disabled(t *testing.T) {
	tr, err := New(context.Background(), Config{})
	require.NoError(t, err)

	_, span := tr.StartCheck(context.Background(), "authz.require", "t1", "", "project:view")
	assert.False(t, span.IsRecording())
	EndCheck(span, false, "not_granted", false, nil)
	assert.NoError(t, tr.Shutdown(context.Background()))
}
