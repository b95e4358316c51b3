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
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qadeck/qadeck/internal/assignment"
	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/rbac"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// AssignmentRepository implements authz.AssignmentStore and assignment.Repository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

var (
	_ authz.AssignmentStore = (*AssignmentRepository)(nil)
	_ assignment.Repository = (*AssignmentRepository)(nil)
)

// GlobalRoleOf implements authz.AssignmentStore
func (r *AssignmentRepository) GlobalRoleOf(ctx context.Context, principal string) (rbac.GlobalRole, bool, error) {
	var role string
	err := r.db.pool.QueryRow(ctx, `
		SELECT role FROM global_role_assignments WHERE principal = $1
	`, principal).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, readError("global role", err)
	}
	return rbac.GlobalRole(role), true, nil
}

// TenantRoleOf implements authz.AssignmentStore
func (r *AssignmentRepository) TenantRoleOf(ctx context.Context, principal, tenantID string) (rbac.TenantRole, bool, error) {
	var role string
	err := r.db.pool.QueryRow(ctx, `
		SELECT role FROM tenant_role_assignments WHERE tenant_id = $1 AND principal = $2
	`, tenantID, principal).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, readError("tenant role", err)
	}
	return rbac.TenantRole(role), true, nil
}

// ProjectRoleOf implements authz.AssignmentStore
func (r *AssignmentRepository) ProjectRoleOf(ctx context.Context, principal, projectID string) (rbac.ProjectRole, bool, error) {
	var role string
	err := r.db.pool.QueryRow(ctx, `
		SELECT role FROM project_role_assignments WHERE project_id = $1 AND principal = $2
	`, projectID, principal).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, readError("project role", err)
	}
	return rbac.ProjectRole(role), true, nil
}

// TenantOfProject implements authz.AssignmentStore
func (r *AssignmentRepository) TenantOfProject(ctx context.Context, projectID string) (string, error) {
	var tenantID string
	err := r.db.pool.QueryRow(ctx, `
		SELECT tenant_id FROM projects WHERE id = $1
	`, projectID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", authz.ErrProjectNotFound, projectID)
		}
		return "", readError("project tenant", err)
	}
	return tenantID, nil
}

// CreateTenant implements assignment.Repository
func (r *AssignmentRepository) CreateTenant(ctx context.Context, t *assignment.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)
	`, t.ID, t.Name, t.CreatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return assignment.ErrTenantExists
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// CreateProject implements assignment.Repository
func (r *AssignmentRepository) CreateProject(ctx context.Context, p *assignment.Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO projects (id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)
	`, p.ID, p.TenantID, p.Name, p.CreatedAt)
	if err != nil {
		switch {
		case hasCode(err, codeUniqueViolation):
			return assignment.ErrProjectExists
		case hasCode(err, codeForeignKeyViolation):
			return assignment.ErrTenantNotFound
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// SetGlobalRole implements assignment.Repository
func (r *AssignmentRepository) SetGlobalRole(ctx context.Context, principal string, role rbac.GlobalRole, grantedBy string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO global_role_assignments (principal, role, granted_by, granted_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (principal) DO UPDATE
		SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at
	`, principal, string(role), nullString(grantedBy))
	if err != nil {
		return fmt.Errorf("failed to set global role: %w", err)
	}
	return nil
}

// DeleteGlobalRole implements assignment.Repository
func (r *AssignmentRepository) DeleteGlobalRole(ctx context.Context, principal string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM global_role_assignments WHERE principal = $1
	`, principal)
	if err != nil {
		return fmt.Errorf("failed to delete global role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return assignment.ErrAssignmentNotFound
	}
	return nil
}

// SetTenantRole implements assignment.Repository
func (r *AssignmentRepository) SetTenantRole(ctx context.Context, tenantID, principal string, role rbac.TenantRole, grantedBy string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenant_role_assignments (tenant_id, principal, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, principal) DO UPDATE
		SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at
	`, tenantID, principal, string(role), nullString(grantedBy))
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return assignment.ErrTenantNotFound
		}
		return fmt.Errorf("failed to set tenant role: %w", err)
	}
	return nil
}

// DeleteTenantRole implements assignment.Repository
func (r *AssignmentRepository) DeleteTenantRole(ctx context.Context, tenantID, principal string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenant_role_assignments WHERE tenant_id = $1 AND principal = $2
	`, tenantID, principal)
	if err != nil {
		return fmt.Errorf("failed to delete tenant role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return assignment.ErrAssignmentNotFound
	}
	return nil
}

// SetProjectRole implements assignment.Repository
func (r *AssignmentRepository) SetProjectRole(ctx context.Context, projectID, principal string, role rbac.ProjectRole, grantedBy string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO project_role_assignments (project_id, principal, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (project_id, principal) DO UPDATE
		SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at
	`, projectID, principal, string(role), nullString(grantedBy))
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return authz.ErrProjectNotFound
		}
		return fmt.Errorf("failed to set project role: %w", err)
	}
	return nil
}

// DeleteProjectRole implements assignment.Repository
func (r *AssignmentRepository) DeleteProjectRole(ctx context.Context, projectID, principal string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM project_role_assignments WHERE project_id = $1 AND principal = $2
	`, projectID, principal)
	if err != nil {
		return fmt.Errorf("failed to delete project role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return assignment.ErrAssignmentNotFound
	}
	return nil
}

// TenantMembers implements assignment.Repository
func (r *AssignmentRepository) TenantMembers(ctx context.Context, tenantID string) ([]assignment.Member, error) {
	var exists bool
	if err := r.db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check tenant: %w", err)
	}
	if !exists {
		return nil, assignment.ErrTenantNotFound
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT principal, role, granted_by, granted_at
		FROM tenant_role_assignments
		WHERE tenant_id = $1
		ORDER BY principal
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant members: %w", err)
	}
	return scanMembers(rows, rbac.LayerTenant, tenantID)
}

// ProjectMembers implements assignment.Repository
func (r *AssignmentRepository) ProjectMembers(ctx context.Context, projectID string) ([]assignment.Member, error) {
	var exists bool
	if err := r.db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return nil, authz.ErrProjectNotFound
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT principal, role, granted_by, granted_at
		FROM project_role_assignments
		WHERE project_id = $1
		ORDER BY principal
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	return scanMembers(rows, rbac.LayerProject, projectID)
}

func scanMembers(rows pgx.Rows, layer rbac.Layer, scopeID string) ([]assignment.Member, error) {
	defer rows.Close()

	members := []assignment.Member{}
	for rows.Next() {
		m := assignment.Member{Layer: layer, ScopeID: scopeID}
		var grantedBy sql.NullString
		if err := rows.Scan(&m.Principal, &m.Role, &grantedBy, &m.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if grantedBy.Valid {
			m.GrantedBy = grantedBy.String
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// readError keeps cancellation visible and turns every other read failure
// into a store fault.
func readError(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to read %s: %w", what, err)
	}
	return fmt.Errorf("%w: failed to read %s: %w", authz.ErrStoreUnavailable, what, err)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
