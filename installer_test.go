// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"testing"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/cosmos-pm/cosmos/internal/test"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func install(t *testing.T, f *galaxyFixture, c *Ctx, u *universe.Universe, name string) ([]string, error) {
	t.Helper()
	galaxies := f.load(c)
	s, g, ok := FindStar(galaxies, name, "*", c.Logger)
	if !ok {
		t.Fatalf("star %s not loaded", name)
	}
	return c.InstallStar(context.Background(), s, g, u, galaxies)
}

func TestInstallMetaWritesNoFiles(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "base", Version: "1.2.0"}, test.File("files/lib/base.so", "base"))
	f.addStar(&Star{
		Name:         "desktop",
		Version:      "1.0.0",
		Type:         TypeMeta,
		Dependencies: map[string]string{"base": "^1.0.0"},
	})

	c := f.ctx()
	u := universe.New("amd64")
	u.RecordStar("base", "1.2.0", []string{"/lib/base.so"})

	recorded, err := install(t, f, c, u, "desktop")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"desktop"}; !cmp.Equal(recorded, want) {
		t.Fatalf("expected: %v, got: %v", want, recorded)
	}
	entry, ok := u.Get("desktop")
	if !ok {
		t.Fatal("expected desktop in the ledger")
	}
	if len(entry.Files) != 0 {
		t.Fatalf("expected no files, got: %v", entry.Files)
	}
	f.h.MustBeEmpty(f.root())
}

func TestInstallCopiesFiles(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "tool", Version: "0.3.1"},
		test.Exec("files/bin/tool", "#!/bin/sh\necho tool\n"),
		test.File("files/etc/tool.conf", "verbose = true\n"),
		test.File("star.toml", "ignored"),
	)

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "tool"); err != nil {
		t.Fatal(err)
	}

	entry, _ := u.Get("tool")
	want := []string{"/bin/tool", "/etc/tool.conf"}
	if diff := cmp.Diff(want, entry.Files); diff != "" {
		t.Fatalf("recorded files (-want +got):\n%s", diff)
	}
	if got := f.readInstalled("etc/tool.conf"); got != "verbose = true\n" {
		t.Fatalf("expected: %q, got: %q", "verbose = true\n", got)
	}
	f.mustNotExist("star.toml")
}

func TestInstallFileChecksumMismatch(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{
		Name:      "tool",
		Version:   "1.0.0",
		Checksums: map[string]string{"bin/tool": fs.HashBytes([]byte("the real tool"))},
	}, test.Exec("files/bin/tool", "a tampered tool"))

	c := f.ctx()
	u := universe.New("amd64")
	_, err := install(t, f, c, u, "tool")
	if !IsKind(err, KindChecksumMismatch) {
		t.Fatalf("expected: %v, got: %v", KindChecksumMismatch, err)
	}
	if u.IsInstalled("tool") {
		t.Fatal("tool must not be recorded after a failed install")
	}
	f.h.MustBeEmpty(f.root())
}

func TestInstallFileChecksumMatch(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{
		Name:      "tool",
		Version:   "1.0.0",
		Checksums: map[string]string{"bin/tool": fs.HashBytes([]byte("the real tool"))},
	}, test.Exec("files/bin/tool", "the real tool"))

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "tool"); err != nil {
		t.Fatal(err)
	}
	if got := f.readInstalled("bin/tool"); got != "the real tool" {
		t.Fatalf("expected: %q, got: %q", "the real tool", got)
	}
}

func TestInstallRejectsEscapingChecksumBeforeHashing(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{
		Name:    "tool",
		Version: "1.0.0",
		Checksums: map[string]string{
			// Sorts after the escaping entry and would fail hashing.
			"bin/tool":         fs.HashBytes([]byte("something else")),
			"../../etc/passwd": fs.HashBytes([]byte("root:x:0:0")),
		},
	}, test.Exec("files/bin/tool", "tool"))

	c := f.ctx()
	u := universe.New("amd64")
	_, err := install(t, f, c, u, "tool")
	if !IsKind(err, KindSecurityViolation) {
		t.Fatalf("expected: %v, got: %v", KindSecurityViolation, err)
	}
	if u.IsInstalled("tool") {
		t.Fatal("tool must not be recorded")
	}
}

func TestInstallChecksumErrors(t *testing.T) {
	cases := []struct {
		name      string
		checksums map[string]string
		entries   []test.Entry
		kind      Kind
	}{
		{
			name:      "uppercase digest",
			checksums: map[string]string{"bin/tool": "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"},
			entries:   []test.Entry{test.File("files/bin/tool", "x")},
			kind:      KindInvalidChecksumFormat,
		},
		{
			name:      "short digest",
			checksums: map[string]string{"bin/tool": "abc"},
			entries:   []test.Entry{test.File("files/bin/tool", "x")},
			kind:      KindInvalidChecksumFormat,
		},
		{
			name:      "missing file",
			checksums: map[string]string{"bin/other": fs.HashBytes([]byte("x"))},
			entries:   []test.Entry{test.File("files/bin/tool", "x")},
			kind:      KindFileNotFound,
		},
		{
			name:      "symlink out of files",
			checksums: map[string]string{"bin/link": fs.HashBytes([]byte("secret"))},
			entries: []test.Entry{
				test.File("secret", "secret"),
				test.Symlink("files/bin/link", "../../secret"),
			},
			kind: KindSecurityViolation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGalaxyFixture(t)
			f.addStar(&Star{Name: "tool", Version: "1.0.0", Checksums: tc.checksums}, tc.entries...)

			c := f.ctx()
			u := universe.New("amd64")
			_, err := install(t, f, c, u, "tool")
			if !IsKind(err, tc.kind) {
				t.Fatalf("expected: %v, got: %v", tc.kind, err)
			}
			if u.IsInstalled("tool") {
				t.Fatal("tool must not be recorded")
			}
		})
	}
}

func TestInstallTarballChecksum(t *testing.T) {
	f := newGalaxyFixture(t)
	tarball := f.addStar(&Star{Name: "tool", Version: "1.0.0"}, test.File("files/bin/tool", "tool"))

	f.publishChecksum("tool", fs.HashBytes([]byte("not the tarball")))
	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "tool"); !IsKind(err, KindChecksumMismatch) {
		t.Fatalf("expected: %v, got: %v", KindChecksumMismatch, err)
	}

	sum, err := fs.HashFile(tarball)
	f.h.Must(err)
	f.publishChecksum("tool", sum)
	if _, err := install(t, f, c, u, "tool"); err != nil {
		t.Fatal(err)
	}
	if !u.IsInstalled("tool") {
		t.Fatal("expected tool to be recorded")
	}
}

func TestInstallDependenciesFirst(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "libc", Version: "2.1.0"}, test.File("files/lib/libc.so", "c"))
	f.addStar(&Star{
		Name:         "libz",
		Version:      "1.3.0",
		Dependencies: map[string]string{"libc": "^2.0.0"},
	}, test.File("files/lib/libz.so", "z"))
	f.addStar(&Star{
		Name:         "app",
		Version:      "0.1.0",
		Dependencies: map[string]string{"libc": ">=2.0.0", "libz": "~1.3.0"},
	}, test.File("files/bin/app", "app"))

	c := f.ctx()
	u := universe.New("amd64")
	recorded, err := install(t, f, c, u, "app")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"libc", "libz", "app"}
	if !cmp.Equal(recorded, want) {
		t.Fatalf("expected: %v, got: %v", want, recorded)
	}
	if got := u.Names(); !cmp.Equal(got, []string{"app", "libc", "libz"}) {
		t.Fatalf("unexpected ledger: %v", got)
	}
}

func TestInstallSkipsSatisfiedDependencies(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "libc", Version: "2.1.0"}, test.File("files/lib/libc.so", "c"))
	f.addStar(&Star{
		Name:         "app",
		Version:      "0.1.0",
		Dependencies: map[string]string{"libc": "^2.0.0"},
	}, test.File("files/bin/app", "app"))

	c := f.ctx()
	u := universe.New("amd64")
	u.RecordStar("libc", "2.0.5", nil)

	recorded, err := install(t, f, c, u, "app")
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(recorded, []string{"app"}) {
		t.Fatalf("expected: %v, got: %v", []string{"app"}, recorded)
	}
	f.mustNotExist("lib/libc.so")
	if entry, _ := u.Get("libc"); entry.Version != "2.0.5" {
		t.Fatalf("expected libc to stay at 2.0.5, got: %s", entry.Version)
	}
}

func TestInstallDependencyCycle(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "a", Version: "1.0.0", Dependencies: map[string]string{"b": "*"}}, test.File("files/a", "a"))
	f.addStar(&Star{Name: "b", Version: "1.0.0", Dependencies: map[string]string{"c": "*"}}, test.File("files/b", "b"))
	f.addStar(&Star{Name: "c", Version: "1.0.0", Dependencies: map[string]string{"a": "*"}}, test.File("files/c", "c"))

	c := f.ctx()
	u := universe.New("amd64")
	recorded, err := install(t, f, c, u, "a")
	if !IsKind(err, KindDependencyCycle) {
		t.Fatalf("expected: %v, got: %v", KindDependencyCycle, err)
	}
	if len(recorded) != 0 || len(u.Installed) != 0 {
		t.Fatalf("expected nothing installed, got: %v", u.Names())
	}
	f.h.MustBeEmpty(f.root())
}

func TestInstallUnresolvedDependency(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "libc", Version: "1.0.0"}, test.File("files/lib/libc.so", "c"))
	f.addStar(&Star{Name: "app", Version: "1.0.0", Dependencies: map[string]string{"libc": "^2.0.0"}}, test.File("files/bin/app", "app"))

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "app"); !IsKind(err, KindDependencyUnresolved) {
		t.Fatalf("expected: %v, got: %v", KindDependencyUnresolved, err)
	}
	f.h.MustBeEmpty(f.root())
}

func TestInstallKeepsEarlierUnitsOnFailure(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "lib", Version: "1.0.0"}, test.File("files/lib/lib.so", "lib"))
	f.addStar(&Star{
		Name:         "app",
		Version:      "1.0.0",
		Dependencies: map[string]string{"lib": "*"},
		Checksums:    map[string]string{"bin/app": fs.HashBytes([]byte("other"))},
	}, test.File("files/bin/app", "app"))

	c := f.ctx()
	u := universe.New("amd64")
	recorded, err := install(t, f, c, u, "app")
	if !IsKind(err, KindChecksumMismatch) {
		t.Fatalf("expected: %v, got: %v", KindChecksumMismatch, err)
	}
	if !cmp.Equal(recorded, []string{"lib"}) {
		t.Fatalf("expected: %v, got: %v", []string{"lib"}, recorded)
	}
	if !u.IsInstalled("lib") || u.IsInstalled("app") {
		t.Fatalf("unexpected ledger: %v", u.Names())
	}
}

func TestInstallShellScript(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "ok", Version: "1.0.0", InstallScript: "install.sh"},
		test.Exec("install.sh", "#!/bin/sh\ntest -f files/bin/ok\n"),
		test.File("files/bin/ok", "ok"),
		test.File("files/share/ok/README", "read me"),
	)
	f.addStar(&Star{Name: "broken", Version: "1.0.0", InstallScript: "install.sh"},
		test.Exec("install.sh", "#!/bin/sh\nexit 3\n"),
		test.File("files/bin/broken", "broken"),
	)

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "ok"); err != nil {
		t.Fatal(err)
	}
	entry, _ := u.Get("ok")
	want := []string{"/bin/ok", "/share/ok/README"}
	if diff := cmp.Diff(want, entry.Files, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("recorded files (-want +got):\n%s", diff)
	}

	if _, err := install(t, f, c, u, "broken"); !IsKind(err, KindScriptFailed) {
		t.Fatalf("expected: %v, got: %v", KindScriptFailed, err)
	}
	if u.IsInstalled("broken") {
		t.Fatal("broken must not be recorded")
	}
}

func TestInstallNovaScript(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "tool", Version: "1.0.0", InstallScript: "install.nova"},
		test.File("install.nova", `package main

import "cosmos/nova"

func Install() error {
	if err := nova.Mkdir("/opt/tool"); err != nil {
		return err
	}
	return nova.Copy("/bin/tool", "/opt/tool/tool")
}
`),
		test.Exec("files/bin/tool", "tool"),
	)

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "tool"); err != nil {
		t.Fatal(err)
	}
	entry, _ := u.Get("tool")
	if want := []string{"/opt/tool/tool"}; !cmp.Equal(entry.Files, want) {
		t.Fatalf("expected: %v, got: %v", want, entry.Files)
	}
	if got := f.readInstalled("opt/tool/tool"); got != "tool" {
		t.Fatalf("expected: %q, got: %q", "tool", got)
	}
}

func TestInstallNothingToDo(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "empty", Version: "1.0.0"}, test.File("README", "nothing here"))

	c := f.ctx()
	u := universe.New("amd64")
	if _, err := install(t, f, c, u, "empty"); err != nil {
		t.Fatal(err)
	}
	entry, ok := u.Get("empty")
	if !ok || len(entry.Files) != 0 {
		t.Fatalf("expected an empty entry, got: %+v", entry)
	}
}

func TestInstallArtifactAcquisition(t *testing.T) {
	f := newGalaxyFixture(t)
	c := f.ctx()
	u := universe.New("amd64")
	ctx := context.Background()

	noSource := &Star{Name: "ghost", Version: "1.0.0", Authors: map[string]string{"a": "b"}}
	local := NewGalaxy("local", f.galaxy())
	if _, err := c.InstallStar(ctx, noSource, local, u, nil); !IsKind(err, KindMissingRequiredField) {
		t.Fatalf("expected: %v, got: %v", KindMissingRequiredField, err)
	}

	remote := NewGalaxy("remote", "http://galaxy.invalid/core")
	fromRemote := &Star{Name: "far", Version: "1.0.0", Authors: map[string]string{"a": "b"}, Source: "./packages/far-1.0.0.tar.gz"}
	c.Offline = true
	if _, err := c.InstallStar(ctx, fromRemote, remote, u, nil); !IsKind(err, KindTransport) {
		t.Fatalf("expected: %v, got: %v", KindTransport, err)
	}

	// A cached artifact satisfies the install even offline.
	f.h.TempTarball("cache/galaxies/remote/packages/far-1.0.0.tar.gz", test.File("files/bin/far", "far"))
	if _, err := c.InstallStar(ctx, fromRemote, remote, u, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.readInstalled("bin/far"); got != "far" {
		t.Fatalf("expected: %q, got: %q", "far", got)
	}

	unsupported := &Star{Name: "odd", Version: "1.0.0", Authors: map[string]string{"a": "b"}, Source: "gopher://example.com/odd.tar.gz"}
	c.Offline = false
	if _, err := c.InstallStar(ctx, unsupported, local, u, nil); !IsKind(err, KindUnsupportedURL) {
		t.Fatalf("expected: %v, got: %v", KindUnsupportedURL, err)
	}
}
