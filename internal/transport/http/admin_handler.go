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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// RoleRequest carries the role to assign.
type RoleRequest struct {
	Role string `json:"role"`
}

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateProjectRequest represents project creation data
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// CreateTenant creates a tenant owned by the caller.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.assignments.CreateTenant(r.Context(), GetPrincipal(r.Context()), req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// CreateProject creates a project in the route tenant owned by the caller.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.assignments.CreateProject(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "tenantID"), req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// AssignGlobalRole sets a user's application-wide role.
func (h *Handler) AssignGlobalRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.assignments.AssignGlobalRole(r.Context(), GetPrincipal(r.Context()),
		chi.URLParam(r, "userID"), rbac.GlobalRole(req.Role))
	respondMutation(w, r, err)
}

// RevokeGlobalRole removes a user's application-wide role.
func (h *Handler) RevokeGlobalRole(w http.ResponseWriter, r *http.Request) {
	err := h.assignments.RevokeGlobalRole(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"))
	respondMutation(w, r, err)
}

// AssignTenantRole sets a user's role in the route tenant.
func (h *Handler) AssignTenantRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.assignments.AssignTenantRole(r.Context(), GetPrincipal(r.Context()),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), rbac.TenantRole(req.Role))
	respondMutation(w, r, err)
}

// RevokeTenantRole removes a user's role in the route tenant.
func (h *Handler) RevokeTenantRole(w http.ResponseWriter, r *http.Request) {
	err := h.assignments.RevokeTenantRole(r.Context(), GetPrincipal(r.Context()),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"))
	respondMutation(w, r, err)
}

// AssignProjectRole sets a user's role on the route project.
func (h *Handler) AssignProjectRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.assignments.AssignProjectRole(r.Context(), GetPrincipal(r.Context()),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"), rbac.ProjectRole(req.Role))
	respondMutation(w, r, err)
}

// RevokeProjectRole removes a user's role on the route project.
func (h *Handler) RevokeProjectRole(w http.ResponseWriter, r *http.Request) {
	err := h.assignments.RevokeProjectRole(r.Context(), GetPrincipal(r.Context()),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	respondMutation(w, r, err)
}

// ListTenantMembers lists the tenant role assignments of the route tenant.
func (h *Handler) ListTenantMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.assignments.TenantMembers(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// ListProjectMembers lists the project role assignments of the route project.
func (h *Handler) ListProjectMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.assignments.ProjectMembers(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// ReloadCatalog re-reads the role catalog file.
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		respondError(w, http.StatusConflict, "role catalog is not file-backed")
		return
	}
	version, err := h.catalog.Reload(r.Context())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "catalog rejected; previous catalog kept")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"catalog_version": version})
}

func respondMutation(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assignment.ErrInvalidRole), errors.Is(err, assignment.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, assignment.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, authz.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "project not found")
	case errors.Is(err, assignment.ErrAssignmentNotFound):
		respondError(w, http.StatusNotFound, "role assignment not found")
	case errors.Is(err, assignment.ErrTenantExists):
		respondError(w, http.StatusConflict, "tenant already exists")
	case errors.Is(err, assignment.ErrProjectExists):
		respondError(w, http.StatusConflict, "project already exists")
	default:
		slog.ErrorContext(r.Context(), "assignment operation failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
