// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"
)

// Entry describes one member of a fabricated tarball.
type Entry struct {
	Name     string
	Body     string
	Mode     int64
	Type     byte
	Linkname string
}

// File is a regular file entry with mode 0644.
func File(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0644, Type: tar.TypeReg}
}

// Exec is a regular file entry with mode 0755.
func Exec(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0755, Type: tar.TypeReg}
}

// Dir is a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Mode: 0755, Type: tar.TypeDir}
}

// Symlink is a symbolic link entry pointing at target.
func Symlink(name, target string) Entry {
	return Entry{Name: name, Mode: 0777, Type: tar.TypeSymlink, Linkname: target}
}

// Link is a hard link entry to the archive member target.
func Link(name, target string) Entry {
	return Entry{Name: name, Mode: 0644, Type: tar.TypeLink, Linkname: target}
}

// Tarball returns a gzip-compressed tar stream holding entries in order.
func Tarball(t testing.TB, entries ...Entry) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     e.Mode,
			Typeflag: e.Type,
			Linkname: e.Linkname,
		}
		if e.Type == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tarball header %s: %v", e.Name, err)
		}
		if e.Type == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("tarball body %s: %v", e.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
