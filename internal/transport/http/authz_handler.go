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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// CheckRequest asks whether a principal holds a permission in a scope.
// An empty principal checks the caller.
type CheckRequest struct {
	Principal  string `json:"principal,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	Permission string `json:"permission"`
}

// CheckAnyRequest asks whether a principal holds at least one of the permissions.
type CheckAnyRequest struct {
	Principal   string   `json:"principal,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// codeNotPermitted is the public code for every deny that depends on the
// caller's standing in a tenant or project.
const codeNotPermitted = "not_permitted"

// CheckResponse is the outcome of a check.
type CheckResponse struct {
	Allowed    bool         `json:"allowed"`
	Code       string       `json:"code"`
	Reason     string       `json:"reason"`
	Permission string       `json:"permission,omitempty"`
	Layers     []rbac.Layer `json:"layers,omitempty"`
}

// PermissionsResponse lists the caller's effective permissions in a scope.
type PermissionsResponse struct {
	TenantID       string   `json:"tenant_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	Permissions    []string `json:"permissions"`
	CatalogVersion uint64   `json:"catalog_version"`
}

// Check evaluates a single permission. A deny is a successful answer.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Permission == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, ok := h.subject(w, r, req.Principal)
	if !ok {
		return
	}

	scope := authz.Scope{TenantID: req.TenantID, ProjectID: req.ProjectID}
	decision, err := h.gate.Require(r.Context(), principal, scope, rbac.Permission(req.Permission))
	h.respondDecision(w, r, decision, err)
}

// CheckAny evaluates a list of permissions and allows when one is granted.
func (h *Handler) CheckAny(w http.ResponseWriter, r *http.Request) {
	var req CheckAnyRequest
	if err := decodeJSON(w, r, &req); err != nil || len(req.Permissions) == 0 {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, ok := h.subject(w, r, req.Principal)
	if !ok {
		return
	}

	perms := make([]rbac.Permission, len(req.Permissions))
	for i, p := range req.Permissions {
		perms[i] = rbac.Permission(p)
	}

	scope := authz.Scope{TenantID: req.TenantID, ProjectID: req.ProjectID}
	decision, err := h.gate.RequireAny(r.Context(), principal, scope, perms)
	if errors.Is(err, authz.ErrInvalidPermission) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondDecision(w, r, decision, err)
}

// MyPermissions returns the caller's effective permissions for the scope
// given by the tenant_id and project_id query parameters.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := authz.Scope{TenantID: q.Get("tenant_id"), ProjectID: q.Get("project_id")}

	set, err := h.gate.Effective(r.Context(), GetPrincipal(r.Context()), scope)
	switch {
	case errors.Is(err, authz.ErrProjectNotFound):
		respondError(w, http.StatusForbidden, msgNotPermitted)
		return
	case err != nil:
		slog.WarnContext(r.Context(), "permission resolution failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
		respondError(w, http.StatusServiceUnavailable, msgNotPermitted)
		return
	case outsider(set):
		// Same answer as an unknown project.
		respondError(w, http.StatusForbidden, msgNotPermitted)
		return
	}

	sorted := set.Permissions.Sorted()
	perms := make([]string, len(sorted))
	for i, p := range sorted {
		perms[i] = string(p)
	}
	respondJSON(w, http.StatusOK, PermissionsResponse{
		TenantID:       set.TenantID,
		ProjectID:      set.ProjectID,
		Permissions:    perms,
		CatalogVersion: set.CatalogVersion,
	})
}

// subject returns the principal a check is about. Checking someone else
// requires user:view at platform scope.
func (h *Handler) subject(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	caller := GetPrincipal(r.Context())
	if requested == "" || requested == caller {
		return caller, true
	}

	decision, err := h.gate.Require(r.Context(), caller, authz.Scope{}, rbac.PermUserView)
	switch {
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, msgNotPermitted)
		return "", false
	case !decision.Allowed:
		respondError(w, http.StatusForbidden, msgNotPermitted)
		return "", false
	}
	return requested, true
}

func (h *Handler) respondDecision(w http.ResponseWriter, r *http.Request, d authz.Decision, err error) {
	if err != nil {
		slog.WarnContext(r.Context(), "authorization check failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			slog.String("code", string(d.Code)),
			logger.Error(err),
		)
		respondError(w, http.StatusServiceUnavailable, msgNotPermitted)
		return
	}
	respondJSON(w, http.StatusOK, publicDecision(d))
}

// publicDecision strips context detail from denies. Callers learn that a
// check failed, not whether the tenant or project exists; the audit trail
// keeps the full reason.
func publicDecision(d authz.Decision) CheckResponse {
	resp := CheckResponse{
		Allowed:    d.Allowed,
		Code:       string(d.Code),
		Reason:     d.Reason,
		Permission: string(d.Permission),
		Layers:     d.Layers,
	}
	if d.Allowed {
		return resp
	}
	switch d.Code {
	case authz.ReasonUnknownPermission, authz.ReasonInvalidRequest:
	default:
		resp.Code = codeNotPermitted
		resp.Reason = msgNotPermitted
	}
	return resp
}

// outsider reports a tenant or project context the caller holds no tenant
// role in.
func outsider(set *authz.EffectivePermissionSet) bool {
	return set.TenantID != "" && !set.SuperAdmin && !set.Snapshot.HasTenant()
}
