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

package rbac

import "fmt"

// Layer identifies one of the three role layers.
type Layer string

const (
	LayerGlobal  Layer = "global"
	LayerTenant  Layer = "tenant"
	LayerProject Layer = "project"
)

// Rank orders layers for explanations only: global > tenant > project.
func (l Layer) Rank() int {
	switch l {
	case LayerGlobal:
		return 3
	case LayerTenant:
		return 2
	case LayerProject:
		return 1
	default:
		return 0
	}
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool { return l.Rank() > 0 }

// RoleRef is the tagged role variant: a role name qualified by its layer.
type RoleRef struct {
	Layer Layer
	Name  string
}

func (r RoleRef) String() string {
	return fmt.Sprintf("%s role %s", r.Layer, r.Name)
}

// -----------------------------------------------------------------------------
// Global roles
// -----------------------------------------------------------------------------

// GlobalRole is an application-wide role, independent of any tenant.
type GlobalRole string

const (
	// GlobalSuperAdmin is the only escape-hatch role: it resolves to every permission.
	GlobalSuperAdmin GlobalRole = "super_admin"
	GlobalAdmin      GlobalRole = "admin"
	GlobalUser       GlobalRole = "user"
	GlobalGuest      GlobalRole = "guest"
)

// GlobalRoles lists the global roles.
var GlobalRoles = []GlobalRole{GlobalSuperAdmin, GlobalAdmin, GlobalUser, GlobalGuest}

// Ref returns the tagged reference for the role.
func (r GlobalRole) Ref() RoleRef { return RoleRef{Layer: LayerGlobal, Name: string(r)} }

// Valid reports whether r is one of GlobalRoles.
func (r GlobalRole) Valid() bool {
	for _, v := range GlobalRoles {
		if r == v {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Tenant roles
// -----------------------------------------------------------------------------

// TenantRole is a role held by a principal within one tenant.
type TenantRole string

const (
	TenantOwner  TenantRole = "owner"
	TenantAdmin  TenantRole = "admin"
	TenantEditor TenantRole = "editor"
	TenantViewer TenantRole = "viewer"
)

// TenantRoles lists the tenant roles.
var TenantRoles = []TenantRole{TenantOwner, TenantAdmin, TenantEditor, TenantViewer}

// Ref returns the tagged reference for the role.
func (r TenantRole) Ref() RoleRef { return RoleRef{Layer: LayerTenant, Name: string(r)} }

// Valid reports whether r is one of TenantRoles.
func (r TenantRole) Valid() bool {
	for _, v := range TenantRoles {
		if r == v {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Project roles
// -----------------------------------------------------------------------------

// ProjectRole is a role held by a principal on one project.
type ProjectRole string

const (
	ProjectOwner       ProjectRole = "owner"
	ProjectMaintainer  ProjectRole = "maintainer"
	ProjectContributor ProjectRole = "contributor"
	ProjectViewer      ProjectRole = "viewer"
)

// ProjectRoles lists the project roles.
var ProjectRoles = []ProjectRole{ProjectOwner, ProjectMaintainer, ProjectContributor, ProjectViewer}

// Ref returns the tagged reference for the role.
func (r ProjectRole) Ref() RoleRef { return RoleRef{Layer: LayerProject, Name: string(r)} }

// Valid reports whether r is one of ProjectRoles.
func (r ProjectRole) Valid() bool {
	for _, v := range ProjectRoles {
		if r == v {
			return true
		}
	}
	return false
}
