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

// Package tracing exports authorization check spans over OTLP.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys for authorization checks.
const (
	AttrTenantID    = attribute.Key("authz.tenant_id")
	AttrProjectID   = attribute.Key("authz.project_id")
	AttrPermissions = attribute.Key("authz.permission")
	AttrAllowed     = attribute.Key("authz.allowed")
	AttrCode        = attribute.Key("authz.code")
	AttrCacheHit    = attribute.Key("authz.cache_hit")
)

// Config selects whether checks are traced and how many root spans are kept.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// SamplingRate applies to checks without a sampled parent. Values
	// outside (0, 1] keep every trace.
	SamplingRate float64
}

// Tracer starts and finishes authorization check spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New exports to the collector named by the OTEL_EXPORTER_OTLP_* variables
// and installs the provider and W3C propagators globally. A disabled config
// yields Noop.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(serviceAttributes(cfg)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := newTracer(cfg, res, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// NewWithExporter hands every finished span to exporter synchronously. The
// global provider is left untouched.
func NewWithExporter(cfg Config, exporter sdktrace.SpanExporter) *Tracer {
	res := resource.NewSchemaless(serviceAttributes(cfg)...)
	return newTracer(cfg, res, sdktrace.WithSyncer(exporter))
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("qadeck/authz")}
}

func newTracer(cfg Config, res *resource.Resource, export sdktrace.TracerProviderOption) *Tracer {
	provider := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRate)),
	)
	return &Tracer{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
	}
}

// sampler keeps the caller's decision when a parent span exists.
func sampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func serviceAttributes(cfg Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartCheck opens the span for one gate call. permissions is the
// comma-joined request.
func (t *Tracer) StartCheck(ctx context.Context, op, tenantID, projectID, permissions string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrTenantID.String(tenantID),
			AttrProjectID.String(projectID),
			AttrPermissions.String(permissions),
		),
	)
}

// EndCheck records the outcome and ends span. A non-nil err marks the span
// failed with code as its description.
func EndCheck(span trace.Span, allowed bool, code string, cacheHit bool, err error) {
	span.SetAttributes(
		AttrAllowed.Bool(allowed),
		AttrCode.String(code),
		AttrCacheHit.Bool(cacheHit),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	span.End()
}
