// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenameWithFallback(t *testing.T) {
	dir := t.TempDir()

	if err := RenameWithFallback(filepath.Join(dir, "does_not_exists"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for non existing file, but got nil")
	}

	srcpath := filepath.Join(dir, "src")
	if _, err := os.Create(srcpath); err != nil {
		t.Fatal(err)
	}

	if err := RenameWithFallback(srcpath, filepath.Join(dir, "dst")); err != nil {
		t.Fatal(err)
	}
	if Exists(srcpath) {
		t.Fatalf("expected %s to be gone after rename", srcpath)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "nested", "ledger.toml")

	if err := WriteFileAtomic(fn, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(fn, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("expected: %q, got: %q", "second", got)
	}

	entries, err := os.ReadDir(filepath.Dir(fn))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file to remain, got %d entries", len(entries))
	}
}

func TestMergeDir(t *testing.T) {
	dir := t.TempDir()

	srcdir := filepath.Join(dir, "src")
	files := []struct {
		path     string
		contents string
	}{
		{path: "myfile", contents: "hello world"},
		{path: filepath.Join("subdir", "file"), contents: "subdir file"},
	}

	// Create structure indicated in 'files'
	for _, file := range files {
		fn := filepath.Join(srcdir, file.path)
		if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(fn, []byte(file.contents), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// A destination that already holds an older copy and an unrelated file.
	destdir := filepath.Join(dir, "dest")
	if err := os.MkdirAll(filepath.Join(destdir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(destdir, "subdir", "file"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(destdir, "keep"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	written, err := MergeDir(srcdir, destdir)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"myfile", "subdir/file"}
	if diff := cmp.Diff(want, written); diff != "" {
		t.Fatalf("written files (-want +got):\n%s", diff)
	}

	for _, file := range files {
		got, err := os.ReadFile(filepath.Join(destdir, file.path))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != file.contents {
			t.Fatalf("expected: %q, got: %q", file.contents, got)
		}
	}
	if !Exists(filepath.Join(destdir, "keep")) {
		t.Fatal("merge should not remove unrelated files")
	}

	if _, err := MergeDir(filepath.Join(srcdir, "myfile"), destdir); err != errSrcNotDir {
		t.Fatalf("expected errSrcNotDir, got %v", err)
	}
}

func TestMergeDirDoesNotWriteThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()

	srcdir := filepath.Join(dir, "src")
	outside := filepath.Join(dir, "outside")
	destdir := filepath.Join(dir, "dest")
	for _, d := range []string{srcdir, destdir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(outside, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcdir, "tool"), []byte("new"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(destdir, "tool")); err != nil {
		t.Fatal(err)
	}

	if _, err := MergeDir(srcdir, destdir); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(outside)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("file behind symlink was overwritten: %q", got)
	}
	if sym, _ := IsSymlink(filepath.Join(destdir, "tool")); sym {
		t.Fatal("expected the symlink to be replaced by a regular file")
	}
}

func TestJoinWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "tmp", "root")

	cases := []struct {
		rel     string
		wantErr bool
	}{
		{"bin/tool", false},
		{"./bin/../bin/tool", false},
		{"../../etc/passwd", true},
		{"bin/../../escape", true},
		{"/etc/passwd", true},
		{"..", true},
		{"", true},
	}

	for _, c := range cases {
		got, err := JoinWithin(root, c.rel)
		if (err != nil) != c.wantErr {
			t.Fatalf("JoinWithin(%q): expected error: %v, got: %v", c.rel, c.wantErr, err)
		}
		if err == nil && !IsWithin(root, got) {
			t.Fatalf("JoinWithin(%q) = %q escapes %q", c.rel, got, root)
		}
	}
}

func TestResolveWithinRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(dir, "secret")
	if err := os.WriteFile(secret, []byte("s"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "bin", "tool"), []byte("t"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "bin", "link")); err != nil {
		t.Fatal(err)
	}

	if _, err := ResolveWithin(root, "bin/tool"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ResolveWithin(root, "bin/link"); err == nil {
		t.Fatal("expected a symlink pointing outside the root to be rejected")
	}
	if _, err := ResolveWithin(root, "bin/missing"); !IsNotExist(err) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestRootRelative(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "root")

	got, err := RootRelative(root, "/usr/bin/tool")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "usr", "bin", "tool"); got != want {
		t.Fatalf("expected: %q, got: %q", want, got)
	}

	for _, bad := range []string{"/", "", "/../etc/passwd"} {
		if _, err := RootRelative(root, bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
