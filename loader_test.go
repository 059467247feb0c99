// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func starNames(g *Galaxy) []string {
	var names []string
	for _, m := range NewIndex([]*Galaxy{g}).Search("") {
		names = append(names, m.Star.Name)
	}
	return names
}

func TestLoadGalaxySkipsBadStars(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "good", Version: "1.0.0"})
	f.addStar(&Star{Name: "stale", Version: "1.0.0"})
	f.meta.Stars["stale"] = "1.1.0"
	f.meta.Stars["missing"] = "1.0.0"
	f.meta.Stars["renamed"] = "1.0.0"
	f.meta.Stars["broken"] = "1.0.0"
	f.writeMeta()
	f.h.TempFile("galaxy/stars/renamed.toml", "name = \"other\"\nversion = \"1.0.0\"\n[authors]\nAda = \"ada@example.com\"\n")
	f.h.TempFile("galaxy/stars/broken.toml", "name = \"broken\"\nversion = \"1.0\n")

	c := f.ctx()
	galaxies, err := LoadAll(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if len(galaxies) != 1 {
		t.Fatalf("expected 1 galaxy, got: %d", len(galaxies))
	}
	if got, want := starNames(galaxies[0]), []string{"good"}; !cmp.Equal(got, want) {
		t.Fatalf("expected: %v, got: %v", want, got)
	}
}

func TestLoadAllSkipsUnusableGalaxies(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "good", Version: "1.0.0"})
	f.h.TempDir("empty")

	c := f.ctx()
	c.Config.Galaxies["remote"] = "http://galaxy.invalid/remote"
	c.Config.Galaxies["nometa"] = f.h.Path("empty")

	galaxies, err := LoadAll(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, g := range galaxies {
		names = append(names, g.Name)
	}
	if want := []string{"local"}; !cmp.Equal(names, want) {
		t.Fatalf("expected: %v, got: %v", want, names)
	}
}

func TestLoadAllReadsRemoteCache(t *testing.T) {
	f := newGalaxyFixture(t)
	f.h.TempFile("cache/galaxies/remote/meta.toml", "name = \"remote\"\n[stars]\ncached = \"2.0.0\"\nuncached = \"1.0.0\"\n[checksums]\ncached = \"abc\"\n")
	f.h.TempFile("cache/galaxies/remote/stars/cached.toml", "name = \"cached\"\nversion = \"2.0.0\"\n[authors]\nAda = \"ada@example.com\"\n")

	c := f.ctx()
	c.Offline = true
	c.Config.Galaxies = map[string]string{"remote": "http://galaxy.invalid/remote"}

	galaxies, err := LoadAll(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if len(galaxies) != 1 {
		t.Fatalf("expected 1 galaxy, got: %d", len(galaxies))
	}
	g := galaxies[0]
	if got, want := starNames(g), []string{"cached"}; !cmp.Equal(got, want) {
		t.Fatalf("expected: %v, got: %v", want, got)
	}
	if g.Checksums["cached"] != "abc" {
		t.Fatalf("expected manifest checksums to be kept, got: %v", g.Checksums)
	}
}

func TestLoadAllPriorityOrder(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "foo", Version: "1.0.0"})
	f.h.TempFile("second/meta.toml", "name = \"second\"\n[stars]\nfoo = \"2.0.0\"\n")
	f.h.TempFile("second/stars/foo.toml", "name = \"foo\"\nversion = \"2.0.0\"\n[authors]\nAda = \"ada@example.com\"\n")

	c := f.ctx()
	c.Config.Galaxies["second"] = f.h.Path("second")

	galaxies, err := LoadAll(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if s, _, _ := FindStar(galaxies, "foo", "*", nil); s.Version != "1.0.0" {
		t.Fatalf("expected lexical order to prefer local, got: %s", s.Version)
	}

	c.Config.Priority = []string{"second"}
	galaxies, err = LoadAll(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if s, _, _ := FindStar(galaxies, "foo", "*", nil); s.Version != "2.0.0" {
		t.Fatalf("expected priority to prefer second, got: %s", s.Version)
	}
}
