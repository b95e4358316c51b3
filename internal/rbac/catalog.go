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

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Domain errors
var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrInvalidDefinition = errors.New("invalid role definition")
)

// Definition maps a role of one layer to the permissions it grants.
type Definition struct {
	Layer       Layer        `yaml:"layer"`
	Role        string       `yaml:"role"`
	Permissions []Permission `yaml:"permissions"`
}

// Ref returns the tagged role reference of the definition.
func (d Definition) Ref() RoleRef { return RoleRef{Layer: d.Layer, Name: d.Role} }

// View is an immutable snapshot of the catalog at one version.
type View struct {
	version      uint64
	roles        map[RoleRef]PermissionSet
	all          PermissionSet
	projectKinds map[string]struct{}
}

// Version returns the catalog version this view was built at.
func (v *View) Version() uint64 { return v.version }

// PermissionsFor returns the permissions granted by ref.
func (v *View) PermissionsFor(ref RoleRef) (PermissionSet, error) {
	perms, ok := v.roles[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, ref)
	}
	return perms, nil
}

// All returns the full permission vocabulary.
func (v *View) All() PermissionSet { return v.all }

// Known reports whether p is part of the vocabulary.
func (v *View) Known(p Permission) bool { return v.all.Has(p) }

// ProjectScoped reports whether p belongs to a resource kind a project role may grant.
func (v *View) ProjectScoped(p Permission) bool {
	_, ok := v.projectKinds[p.Kind()]
	return ok
}

// Catalog holds the authoritative role to permission mapping.
// Reads are lock-free; Replace swaps in a new View with a bumped version.
type Catalog struct {
	mu   sync.Mutex
	view atomic.Pointer[View]
}

// NewCatalog builds a catalog at version 1.
// A nil kinds slice selects DefaultProjectScopedKinds.
func NewCatalog(defs []Definition, kinds []string) (*Catalog, error) {
	view, err := buildView(defs, kinds, 1)
	if err != nil {
		return nil, err
	}
	c := &Catalog{}
	c.view.Store(view)
	return c, nil
}

// DefaultCatalog returns a catalog built from DefaultDefinitions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions(), nil)
	if err != nil {
		panic(fmt.Sprintf("rbac: invalid default definitions: %v", err))
	}
	return c
}

// View returns the current immutable view.
func (c *Catalog) View() *View { return c.view.Load() }

// PermissionsFor returns the permissions granted by ref at the current version.
func (c *Catalog) PermissionsFor(ref RoleRef) (PermissionSet, error) {
	return c.View().PermissionsFor(ref)
}

// CurrentVersion returns the current catalog version.
func (c *Catalog) CurrentVersion() uint64 { return c.View().Version() }

// Replace validates defs and installs them under the next version.
// On error the current view is kept.
func (c *Catalog) Replace(defs []Definition, kinds []string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.View().Version() + 1
	view, err := buildView(defs, kinds, next)
	if err != nil {
		return 0, err
	}
	c.view.Store(view)
	return next, nil
}

func buildView(defs []Definition, kinds []string, version uint64) (*View, error) {
	if kinds == nil {
		kinds = DefaultProjectScopedKinds
	}
	projectKinds := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		projectKinds[k] = struct{}{}
	}

	view := &View{
		version:      version,
		roles:        make(map[RoleRef]PermissionSet, len(defs)),
		all:          make(PermissionSet),
		projectKinds: projectKinds,
	}

	var wildcards []RoleRef
	for _, d := range defs {
		if err := validateDefinition(d, projectKinds); err != nil {
			return nil, err
		}
		ref := d.Ref()
		if _, dup := view.roles[ref]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrInvalidDefinition, ref)
		}

		perms := make(PermissionSet, len(d.Permissions))
		for _, p := range d.Permissions {
			if p == Wildcard {
				wildcards = append(wildcards, ref)
				continue
			}
			perms[p] = struct{}{}
			view.all[p] = struct{}{}
		}
		view.roles[ref] = perms
	}

	// Wildcards expand once the vocabulary is known.
	for _, ref := range wildcards {
		view.roles[ref] = view.roles[ref].Union(view.all)
	}

	return view, nil
}

func validateDefinition(d Definition, projectKinds map[string]struct{}) error {
	switch d.Layer {
	case LayerGlobal:
		if !GlobalRole(d.Role).Valid() {
			return fmt.Errorf("%w: %q is not a global role", ErrInvalidDefinition, d.Role)
		}
	case LayerTenant:
		if !TenantRole(d.Role).Valid() {
			return fmt.Errorf("%w: %q is not a tenant role", ErrInvalidDefinition, d.Role)
		}
	case LayerProject:
		if !ProjectRole(d.Role).Valid() {
			return fmt.Errorf("%w: %q is not a project role", ErrInvalidDefinition, d.Role)
		}
	default:
		return fmt.Errorf("%w: unknown layer %q", ErrInvalidDefinition, d.Layer)
	}

	for _, p := range d.Permissions {
		if p == Wildcard {
			if d.Layer != LayerGlobal {
				return fmt.Errorf("%w: wildcard is only allowed on global roles (%s)", ErrInvalidDefinition, d.Ref())
			}
			continue
		}
		if !p.Valid() {
			return fmt.Errorf("%w: malformed permission %q in %s", ErrInvalidDefinition, p, d.Ref())
		}
		if d.Layer == LayerProject {
			if _, ok := projectKinds[p.Kind()]; !ok {
				return fmt.Errorf("%w: %s grants %q outside project-scoped kinds", ErrInvalidDefinition, d.Ref(), p)
			}
		}
	}
	return nil
}
