// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package universe is the persisted record of installed stars and the files
// each one owns. The files list of an entry is the only thing uninstall
// consults.
package universe

import (
	"bytes"
	"io"
	"os"
	"sort"

	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// SchemaVersion is written to system.version by New.
const SchemaVersion = "0.1.0"

// Universe is the in-memory form of the ledger.
type Universe struct {
	System    SystemInfo               `toml:"system"`
	Installed map[string]InstalledStar `toml:"installed"`
}

// SystemInfo describes the machine the ledger belongs to.
type SystemInfo struct {
	Arch    string `toml:"arch"`
	Version string `toml:"version"`
}

// InstalledStar is one ledger entry. Files holds install-root-relative paths
// with a leading slash.
type InstalledStar struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Files   []string `toml:"files"`
}

// New returns an empty ledger for arch.
func New(arch string) *Universe {
	return &Universe{
		System:    SystemInfo{Arch: arch, Version: SchemaVersion},
		Installed: make(map[string]InstalledStar),
	}
}

// Read decodes a ledger from r.
func Read(r io.Reader) (*Universe, error) {
	u := &Universe{}
	if err := toml.NewDecoder(r).Decode(u); err != nil {
		return nil, errors.Wrap(err, "unable to parse ledger")
	}
	if u.Installed == nil {
		u.Installed = make(map[string]InstalledStar)
	}
	for name, s := range u.Installed {
		if s.Name == "" {
			s.Name = name
			u.Installed[name] = s
		}
	}
	return u, nil
}

// Load reads the ledger at path. The returned error satisfies os.IsNotExist
// through errors.Cause when no ledger exists yet.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open ledger %s", path)
	}
	defer f.Close()

	u, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return u, nil
}

// Bytes serializes the ledger. Map keys are emitted in sorted order, so
// equal ledgers always produce identical bytes.
func (u *Universe) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(u); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the ledger to path atomically.
func (u *Universe) Save(path string) error {
	b, err := u.Bytes()
	if err != nil {
		return errors.Wrap(err, "unable to marshal ledger")
	}
	return errors.Wrapf(fs.WriteFileAtomic(path, b, 0644), "unable to write ledger %s", path)
}

// IsInstalled reports whether name has a ledger entry.
func (u *Universe) IsInstalled(name string) bool {
	_, ok := u.Installed[name]
	return ok
}

// Get returns the ledger entry for name.
func (u *Universe) Get(name string) (InstalledStar, bool) {
	s, ok := u.Installed[name]
	return s, ok
}

// RecordStar inserts or replaces the entry for name.
func (u *Universe) RecordStar(name, version string, files []string) {
	if u.Installed == nil {
		u.Installed = make(map[string]InstalledStar)
	}
	owned := make([]string, len(files))
	copy(owned, files)
	u.Installed[name] = InstalledStar{Name: name, Version: version, Files: owned}
}

// UninstallStar removes the entry for name and reports whether there was one.
func (u *Universe) UninstallStar(name string) bool {
	if _, ok := u.Installed[name]; !ok {
		return false
	}
	delete(u.Installed, name)
	return true
}

// Satisfies reports whether the installed version of name satisfies c. An
// entry whose version or c cannot be parsed does not satisfy; the parse
// failure is returned for diagnostics.
func (u *Universe) Satisfies(name, c string) (bool, error) {
	s, ok := u.Installed[name]
	if !ok {
		return false, nil
	}
	return constraint.Satisfies(s.Version, c)
}

// Names returns the installed star names in lexical order.
func (u *Universe) Names() []string {
	names := make([]string, 0, len(u.Installed))
	for name := range u.Installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
