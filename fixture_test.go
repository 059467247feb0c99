// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cosmos-pm/cosmos/internal/test"
	"github.com/cosmos-pm/cosmos/nova"
	"github.com/cosmos-pm/cosmos/transport"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// galaxyFixture builds a local galaxy, an install root and a cache
// directory inside one temporary directory.
type galaxyFixture struct {
	h    *test.Helper
	t    *testing.T
	meta GalaxyMeta
}

func newGalaxyFixture(t *testing.T) *galaxyFixture {
	h := test.NewHelper(t)
	t.Cleanup(h.Cleanup)
	h.TempDir("galaxy/stars")
	h.TempDir("root")
	h.TempDir("cache")
	return &galaxyFixture{
		h: h,
		t: t,
		meta: GalaxyMeta{
			Name:      "local",
			Stars:     make(map[string]string),
			Checksums: make(map[string]string),
		},
	}
}

func (f *galaxyFixture) root() string   { return f.h.Path("root") }
func (f *galaxyFixture) galaxy() string { return f.h.Path("galaxy") }

// ctx returns a context installing into the fixture root from the fixture
// galaxy.
func (f *galaxyFixture) ctx() *Ctx {
	logger := test.Logger(f.t)
	tr, err := transport.New(transport.Options{Logger: logger})
	f.h.Must(err)
	return &Ctx{
		Root: f.root(),
		Config: &Config{
			Galaxies:   map[string]string{"local": f.galaxy()},
			InstallDir: f.root(),
			CacheDir:   f.h.Path("cache"),
		},
		Transport: tr,
		Scripts:   &nova.Runner{Logger: logger},
		Logger:    logger,
	}
}

// addStar writes s into the galaxy. When entries are given they become the
// star's artifact, referenced through a galaxy-relative source.
func (f *galaxyFixture) addStar(s *Star, entries ...test.Entry) string {
	if len(s.Authors) == 0 {
		s.Authors = map[string]string{"Ada": "ada@example.com"}
	}
	var tarball string
	if len(entries) > 0 {
		rel := filepath.ToSlash(filepath.Join("packages", s.TarballName()))
		tarball = f.h.TempTarball(filepath.Join("galaxy", rel), entries...)
		s.Source = "./" + rel
	}
	b, err := toml.Marshal(s)
	f.h.Must(err)
	f.h.TempFile(filepath.Join("galaxy", "stars", starFile(s.Name)), string(b))
	f.meta.Stars[s.Name] = s.Version
	f.writeMeta()
	return tarball
}

func (f *galaxyFixture) publishChecksum(name, sum string) {
	f.meta.Checksums[name] = sum
	f.writeMeta()
}

func (f *galaxyFixture) writeMeta() {
	b, err := toml.Marshal(f.meta)
	f.h.Must(err)
	f.h.TempFile(filepath.Join("galaxy", MetaFile), string(b))
}

// load returns the fixture galaxy as the only galaxy.
func (f *galaxyFixture) load(c *Ctx) []*Galaxy {
	g := NewGalaxy("local", f.galaxy())
	f.h.Must(loadGalaxy(context.Background(), c, g, f.galaxy()))
	return []*Galaxy{g}
}

func (f *galaxyFixture) mustNotExist(rel string) {
	f.h.MustNotExist(filepath.Join(f.root(), filepath.FromSlash(rel)))
}

func (f *galaxyFixture) readInstalled(rel string) string {
	b, err := os.ReadFile(filepath.Join(f.root(), filepath.FromSlash(rel)))
	f.h.Must(err)
	return string(b)
}
