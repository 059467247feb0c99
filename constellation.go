// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Constellation is a named bundle of stars installed together.
type Constellation struct {
	Name        string   `toml:"name" yaml:"name"`
	Description string   `toml:"description,omitempty" yaml:"description,omitempty"`
	Members     []string `toml:"members" yaml:"members"`
}

// ParseMember splits a member token of the form "name" or
// "name@constraint". The split happens at the last '@'; a bare name
// means any version.
func ParseMember(member string) (Dependency, error) {
	member = strings.TrimSpace(member)
	d := Dependency{Name: member, Constraint: constraint.Any}
	if i := strings.LastIndex(member, "@"); i >= 0 {
		d.Name, d.Constraint = member[:i], member[i+1:]
		if d.Constraint == "" {
			d.Constraint = constraint.Any
		}
	}
	if d.Name == "" {
		return Dependency{}, errorf(KindMetadataParse, member, "constellation member has no star name")
	}
	return d, nil
}

// Deps returns the parsed members in declaration order.
func (c *Constellation) Deps() ([]Dependency, error) {
	deps := make([]Dependency, 0, len(c.Members))
	for _, m := range c.Members {
		d, err := ParseMember(m)
		if err != nil {
			return nil, errors.Wrapf(err, "constellation %s", c.Name)
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// Contains reports whether name is a member, pinned or not.
func (c *Constellation) Contains(name string) bool {
	for _, m := range c.Members {
		if d, err := ParseMember(m); err == nil && d.Name == name {
			return true
		}
	}
	return false
}

// LoadConstellation reads a constellation descriptor. Files ending in .yaml
// or .yml are YAML; everything else is TOML.
func LoadConstellation(path string) (*Constellation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindIO, path, err)
	}

	c := &Constellation{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, c)
	default:
		err = toml.NewDecoder(bytes.NewReader(b)).Decode(c)
	}
	if err != nil {
		return nil, newError(KindMetadataParse, path, err)
	}
	if c.Name == "" {
		return nil, errorf(KindMissingRequiredField, path, "constellation has no name")
	}
	return c, nil
}
