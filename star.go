// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StarType distinguishes installable stars from pure dependency aggregators.
type StarType string

const (
	TypeNormal StarType = "normal"
	TypeNebula StarType = "nebula"
	TypeMeta   StarType = "meta"
)

// StarFileExt is the extension of star descriptor files.
const StarFileExt = ".toml"

// Star describes one installable unit. Stars are read-only once loaded.
type Star struct {
	Name          string            `toml:"name"`
	Version       string            `toml:"version"`
	Authors       map[string]string `toml:"authors"`
	Type          StarType          `toml:"type,omitempty"`
	Description   string            `toml:"description,omitempty"`
	License       string            `toml:"license,omitempty"`
	Dependencies  map[string]string `toml:"dependencies,omitempty"`
	InstallScript string            `toml:"install_script,omitempty"`
	Source        string            `toml:"source,omitempty"`
	// Checksums maps paths relative to the artifact's files/ directory to
	// their lowercase hex sha256.
	Checksums map[string]string `toml:"checksums,omitempty"`
}

// Dependency is one name and constraint pair declared by a star.
type Dependency struct {
	Name       string
	Constraint string
}

// EffectiveType returns the declared type, defaulting to normal.
func (s *Star) EffectiveType() StarType {
	if s.Type == "" {
		return TypeNormal
	}
	return s.Type
}

// IsAggregate reports whether s is a nebula or meta star, which install
// nothing but their dependencies.
func (s *Star) IsAggregate() bool {
	t := s.EffectiveType()
	return t == TypeNebula || t == TypeMeta
}

// SortedDependencies returns the declared dependencies ordered by name.
func (s *Star) SortedDependencies() []Dependency {
	deps := make([]Dependency, 0, len(s.Dependencies))
	for name, c := range s.Dependencies {
		deps = append(deps, Dependency{Name: name, Constraint: c})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// TarballName is the file name of the star's artifact in a galaxy cache.
func (s *Star) TarballName() string {
	return s.Name + "-" + s.Version + ".tar.gz"
}

// Validate checks the descriptor's required fields and type rules.
func (s *Star) Validate() error {
	switch {
	case s.Name == "":
		return errorf(KindMissingRequiredField, "star", "no name")
	case s.Version == "":
		return errorf(KindMissingRequiredField, s.Name, "no version")
	case len(s.Authors) == 0:
		return errorf(KindMissingRequiredField, s.Name, "no authors")
	}
	if _, err := constraint.ParseVersion(s.Version); err != nil {
		return newError(KindSemverParse, s.Name, err)
	}

	switch s.EffectiveType() {
	case TypeNormal:
	case TypeNebula, TypeMeta:
		switch {
		case s.Source != "":
			return errorf(KindMetadataParse, s.Name, "%s star declares a source", s.Type)
		case s.InstallScript != "":
			return errorf(KindMetadataParse, s.Name, "%s star declares an install script", s.Type)
		case len(s.Checksums) > 0:
			return errorf(KindMetadataParse, s.Name, "%s star declares file checksums", s.Type)
		}
	default:
		return errorf(KindMetadataParse, s.Name, "unknown type %q", s.Type)
	}
	return nil
}

// ReadStar decodes and validates a star descriptor.
func ReadStar(r io.Reader) (*Star, error) {
	s := &Star{}
	if err := toml.NewDecoder(r).Decode(s); err != nil {
		return nil, newError(KindMetadataParse, "star", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadStar reads the star descriptor at path.
func LoadStar(path string) (*Star, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindIO, path, err)
	}
	defer f.Close()

	s, err := ReadStar(f)
	return s, errors.Wrap(err, filepath.Base(path))
}

func starFile(name string) string {
	return name + StarFileExt
}

// FetchStar returns the descriptor for name from g: from memory if already
// loaded, from disk for local galaxies, from the galaxy cache, or, unless
// offline, downloaded and cached.
func FetchStar(ctx context.Context, c *Ctx, g *Galaxy, name string) (*Star, error) {
	if s, ok := g.Stars[name]; ok {
		return s, nil
	}

	if g.IsLocal() {
		base, err := g.LocalPath()
		if err != nil {
			return nil, err
		}
		return LoadStar(filepath.Join(base, "stars", starFile(name)))
	}

	cached := filepath.Join(c.Config.GalaxyCacheDir(g.Name), "stars", starFile(name))
	if _, err := os.Stat(cached); err == nil {
		return LoadStar(cached)
	}

	if c.Offline {
		return nil, errorf(KindTransport, name, "not cached and offline mode is enabled")
	}
	if g.URL == "" {
		return nil, errorf(KindMissingRequiredField, g.Name, "galaxy has no url")
	}

	url := joinURL(g.URL, "stars", starFile(name))
	c.logger().WithFields(logrus.Fields{"star": name, "galaxy": g.Name, "url": url}).Info("downloading star metadata")
	b, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	s, err := ReadStar(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, url)
	}
	if err := writeCached(cached, b); err != nil {
		return nil, err
	}
	return s, nil
}
