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
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog document.
//
//	project_scoped_kinds: [project, test_case, test_run, report]
//	roles:
//	  - layer: tenant
//	    role: viewer
//	    permissions: [project:view, report:view]
type File struct {
	ProjectScopedKinds []string     `yaml:"project_scoped_kinds"`
	Roles              []Definition `yaml:"roles"`
}

// ParseFile decodes a catalog document. Unknown fields are rejected.
func ParseFile(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty catalog document", ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("%w: catalog defines no roles", ErrInvalidDefinition)
	}
	return &f, nil
}

// ReadFile reads and decodes the catalog document at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseFile(bytes.NewReader(data))
}

// LoadCatalog builds a catalog from the document at path.
// An empty path selects the built-in definitions.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(f.Roles, f.ProjectScopedKinds)
}

// Reload re-reads path and replaces the catalog contents, returning the new version.
func (c *Catalog) Reload(path string) (uint64, error) {
	f, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	return c.Replace(f.Roles, f.ProjectScopedKinds)
}
