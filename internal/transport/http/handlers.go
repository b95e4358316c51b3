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

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// Gate is the authorization surface used by handlers and middleware.
type Gate interface {
	Authorizer
	Effective(ctx context.Context, principal string, scope authz.Scope) (*authz.EffectivePermissionSet, error)
}

// CatalogReloader re-reads the role catalog from its source.
type CatalogReloader interface {
	Reload(ctx context.Context) (uint64, error)
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	gate        Gate
	assignments *assignment.Service
	catalog     CatalogReloader
	verifier    *TokenVerifier
	service     string
}

// NewHandler creates a new HTTP handler. catalog may be nil when the role
// catalog is not file-backed.
func NewHandler(gate Gate, assignments *assignment.Service, catalog CatalogReloader, verifier *TokenVerifier, service string) *Handler {
	return &Handler{
		gate:        gate,
		assignments: assignments,
		catalog:     catalog,
		verifier:    verifier,
		service:     service,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.verifier))

		// Checks for sibling services and the caller's own permissions.
		r.Post("/authz/check", h.Check)
		r.Post("/authz/check-any", h.CheckAny)
		r.Get("/me/permissions", h.MyPermissions)

		// Platform administration
		r.With(RequirePermission(h.gate, rbac.PermUserManage, PlatformScope)).
			Put("/users/{userID}/global-role", h.AssignGlobalRole)
		r.With(RequirePermission(h.gate, rbac.PermUserManage, PlatformScope)).
			Delete("/users/{userID}/global-role", h.RevokeGlobalRole)
		r.With(RequirePermission(h.gate, rbac.PermTenantCreate, PlatformScope)).
			Post("/tenants", h.CreateTenant)
		r.With(RequirePermission(h.gate, rbac.PermCatalogManage, PlatformScope)).
			Post("/admin/catalog/reload", h.ReloadCatalog)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			scope := TenantScope("tenantID")
			r.With(RequirePermission(h.gate, rbac.PermTenantView, scope)).
				Get("/members", h.ListTenantMembers)
			r.With(RequirePermission(h.gate, rbac.PermTenantManageMembers, scope)).
				Put("/members/{userID}", h.AssignTenantRole)
			r.With(RequirePermission(h.gate, rbac.PermTenantManageMembers, scope)).
				Delete("/members/{userID}", h.RevokeTenantRole)
			r.With(RequirePermission(h.gate, rbac.PermProjectCreate, scope)).
				Post("/projects", h.CreateProject)
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			scope := ProjectScope("projectID")
			r.With(RequirePermission(h.gate, rbac.PermProjectView, scope)).
				Get("/members", h.ListProjectMembers)
			r.With(RequirePermission(h.gate, rbac.PermProjectManageMembers, scope)).
				Put("/members/{userID}", h.AssignProjectRole)
			r.With(RequirePermission(h.gate, rbac.PermProjectManageMembers, scope)).
				Delete("/members/{userID}", h.RevokeProjectRole)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.service,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", logger.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
