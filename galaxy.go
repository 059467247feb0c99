// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cosmos-pm/cosmos/transport"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// MetaFile is the name of a galaxy's catalog manifest.
const MetaFile = "meta.toml"

// Galaxy is a catalog of stars, either a local directory or a remote
// repository mirrored into the cache.
type Galaxy struct {
	Name string
	URL  string
	// Stars holds the descriptors loaded so far, keyed by name.
	Stars map[string]*Star
	// Checksums maps star names to the sha256 of their artifact.
	Checksums map[string]string
}

// GalaxyMeta is a galaxy's catalog manifest.
type GalaxyMeta struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description,omitempty"`
	Version     string            `toml:"version,omitempty"`
	Stars       map[string]string `toml:"stars,omitempty"`
	Checksums   map[string]string `toml:"checksums,omitempty"`
}

// NewGalaxy returns an empty galaxy.
func NewGalaxy(name, url string) *Galaxy {
	return &Galaxy{Name: name, URL: url, Stars: make(map[string]*Star)}
}

// IsLocalURL reports whether a galaxy locator names a filesystem path
// rather than a remote repository.
func IsLocalURL(url string) bool {
	return url == "" || transport.Scheme(url) == "" || transport.Scheme(url) == "file"
}

// IsLocal reports whether g is read straight from the filesystem. Local
// galaxies never trigger network fetches.
func (g *Galaxy) IsLocal() bool {
	return IsLocalURL(g.URL)
}

// LocalPath returns the directory of a local galaxy.
func (g *Galaxy) LocalPath() (string, error) {
	if g.URL == "" {
		return "", errorf(KindMissingRequiredField, g.Name, "local galaxy has no path; define it under [galaxies]")
	}
	if transport.Scheme(g.URL) == "file" {
		p, err := transport.FilePath(g.URL)
		if err != nil {
			return "", newError(KindUnsupportedURL, g.Name, err)
		}
		return filepath.FromSlash(p), nil
	}
	return filepath.FromSlash(g.URL), nil
}

// AddStar adds or replaces s in the catalog.
func (g *Galaxy) AddStar(s *Star) {
	if g.Stars == nil {
		g.Stars = make(map[string]*Star)
	}
	g.Stars[s.Name] = s
}

// Star returns the loaded descriptor for name.
func (g *Galaxy) Star(name string) (*Star, bool) {
	s, ok := g.Stars[name]
	return s, ok
}

// ReadMeta decodes a catalog manifest.
func ReadMeta(r io.Reader) (*GalaxyMeta, error) {
	m := &GalaxyMeta{}
	if err := toml.NewDecoder(r).Decode(m); err != nil {
		return nil, newError(KindMetadataParse, MetaFile, err)
	}
	return m, nil
}

// LoadMeta reads the catalog manifest in dir.
func LoadMeta(dir string) (*GalaxyMeta, error) {
	path := filepath.Join(dir, MetaFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindIO, path, err)
	}
	defer f.Close()

	m, err := ReadMeta(f)
	return m, errors.Wrap(err, path)
}

// Source is a resolved artifact location; exactly one field is set.
type Source struct {
	URL  string // fetched through a transport
	Path string // read from the local filesystem
}

// ResolveSource turns a star's source locator into something fetchable.
//
// Locators starting with "./" or "/" are taken relative to the galaxy's
// base. A locator whose scheme an enabled transport handles is remote.
// file:// URLs and paths that exist, relative ones resolved against the
// galaxy directory (or its cache for remote galaxies), are local. Anything
// else is unsupported.
func (g *Galaxy) ResolveSource(cfg *Config, tr transport.Transport, source string) (Source, error) {
	resolved := source
	if (strings.HasPrefix(source, "./") || strings.HasPrefix(source, "/")) && g.URL != "" {
		stripped := strings.TrimLeft(strings.TrimPrefix(source, "./"), "/")
		if g.IsLocal() {
			base, err := g.LocalPath()
			if err != nil {
				return Source{}, err
			}
			resolved = filepath.Join(base, filepath.FromSlash(stripped))
		} else {
			resolved = joinURL(g.URL, stripped)
		}
	}

	switch scheme := transport.Scheme(resolved); {
	case scheme == "file":
		p, err := transport.FilePath(resolved)
		if err != nil {
			return Source{}, newError(KindUnsupportedURL, source, err)
		}
		return localSource(filepath.FromSlash(p))
	case scheme != "":
		if tr != nil && tr.SupportsURL(resolved) {
			return Source{URL: resolved}, nil
		}
		return Source{}, errorf(KindUnsupportedURL, source, "unsupported source format %q", resolved)
	}

	p := filepath.FromSlash(resolved)
	if !filepath.IsAbs(p) {
		root := cfg.GalaxyCacheDir(g.Name)
		if g.IsLocal() {
			base, err := g.LocalPath()
			if err != nil {
				return Source{}, err
			}
			root = base
		}
		p = filepath.Join(root, p)
	}
	return localSource(p)
}

func localSource(p string) (Source, error) {
	if _, err := os.Stat(p); err != nil {
		return Source{}, newError(KindFileNotFound, p, errors.New("local source path does not exist"))
	}
	return Source{Path: p}, nil
}
