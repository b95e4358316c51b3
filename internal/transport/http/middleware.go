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
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// Authorization principles:
// 1. Handlers never inspect role names; they require permissions.
// 2. Scope comes from the route, never from headers or the body.
// 3. Denials and infrastructure faults answer with the same body.

const msgNotPermitted = "action not permitted"

// Authorizer is the part of the authorization gate the transport depends on.
type Authorizer interface {
	Require(ctx context.Context, principal string, scope authz.Scope, perm rbac.Permission) (authz.Decision, error)
	RequireAny(ctx context.Context, principal string, scope authz.Scope, perms []rbac.Permission) (authz.Decision, error)
}

// ScopeFunc derives the authorization scope of a request.
type ScopeFunc func(r *http.Request) authz.Scope

// PlatformScope is the scope of platform administration routes.
func PlatformScope(*http.Request) authz.Scope { return authz.Scope{} }

// TenantScope reads the tenant from the named route parameter.
func TenantScope(param string) ScopeFunc {
	return func(r *http.Request) authz.Scope {
		return authz.Scope{TenantID: chi.URLParam(r, param)}
	}
}

// ProjectScope reads the project from the named route parameter. The
// owning tenant is resolved by the gate.
func ProjectScope(param string) ScopeFunc {
	return func(r *http.Request) authz.Scope {
		return authz.Scope{ProjectID: chi.URLParam(r, param)}
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RequirePermission lets the request through only when the authenticated
// principal holds perm in the request scope.
func RequirePermission(gate Authorizer, perm rbac.Permission, scope ScopeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == "" {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			sc := scope(r)
			decision, err := gate.Require(r.Context(), principal, sc, perm)
			if err != nil {
				slog.WarnContext(r.Context(), "authorization check failed",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Principal(principal),
					logger.Permission(string(perm)),
					slog.String("code", string(decision.Code)),
					logger.Error(err),
				)
				respondError(w, http.StatusServiceUnavailable, msgNotPermitted)
				return
			}
			if !decision.Allowed {
				slog.InfoContext(r.Context(), "request denied",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Principal(principal),
					logger.TenantID(sc.TenantID),
					logger.ProjectID(sc.ProjectID),
					logger.Permission(string(perm)),
					slog.String("reason", decision.Reason),
				)
				respondError(w, http.StatusForbidden, msgNotPermitted)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
