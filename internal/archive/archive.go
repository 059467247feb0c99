// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive unpacks gzip-compressed tarballs.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/pkg/errors"
)

// ErrUnsafeEntry marks a tar entry that would be written outside the
// extraction root.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// ExtractFile unpacks the gzip tarball at tarball into dest, which must
// already exist. It returns the slash-separated, dest-relative paths of every
// regular file, symlink and hard link it created, in archive order.
func ExtractFile(tarball, dest string) ([]string, error) {
	f, err := os.Open(tarball)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Extract(f, dest)
}

// Extract unpacks a gzip tarball read from r into dest.
func Extract(r io.Reader, dest string) ([]string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "not a gzip stream")
	}
	defer zr.Close()

	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve %s", dest)
	}

	var extracted []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "corrupt tarball")
		}

		name := cleanName(hdr.Name)
		if name == "" {
			continue
		}
		target, err := fs.JoinWithin(realDest, name)
		if err != nil {
			return nil, errors.Wrapf(ErrUnsafeEntry, "%s: %v", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return nil, errors.Wrapf(err, "cannot mkdir %s", name)
			}
			continue
		case tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
		default:
			// Devices, fifos and the like never belong in a star.
			continue
		}

		if err := mkdirParent(realDest, target); err != nil {
			return nil, errors.Wrapf(err, "%s", hdr.Name)
		}
		// A later entry replaces an earlier one of the same name.
		if fi, err := os.Lstat(target); err == nil && !fi.IsDir() {
			if err := os.Remove(target); err != nil {
				return nil, err
			}
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			err = writeFile(target, tr, os.FileMode(hdr.Mode).Perm())
		case tar.TypeSymlink:
			err = os.Symlink(hdr.Linkname, target)
		case tar.TypeLink:
			var src string
			src, err = linkSource(realDest, hdr.Linkname)
			if err != nil {
				return nil, errors.Wrapf(ErrUnsafeEntry, "%s: link to %s: %v", hdr.Name, hdr.Linkname, err)
			}
			err = os.Link(src, target)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "cannot extract %s", name)
		}
		extracted = append(extracted, name)
	}

	return extracted, nil
}

// cleanName turns "./files/bin/tool" into "files/bin/tool". Traversal
// segments and absolute names survive cleaning so JoinWithin can reject them.
func cleanName(name string) string {
	name = path.Clean(filepath.ToSlash(name))
	if name == "." {
		return ""
	}
	return name
}

// mkdirParent creates target's parent and verifies that, after resolving
// symlinks planted by earlier entries, it still lies within root.
func mkdirParent(root, target string) error {
	parent := filepath.Dir(target)

	// Check the deepest existing ancestor first so MkdirAll never creates
	// directories through a planted symlink.
	existing := parent
	for !fs.Exists(existing) && existing != root {
		existing = filepath.Dir(existing)
	}
	if err := checkReal(root, existing); err != nil {
		return err
	}

	if err := os.MkdirAll(parent, 0755); err != nil {
		return err
	}
	return checkReal(root, parent)
}

// linkSource returns the path a hard link entry may link to. The source
// must be an existing non-directory whose parent, with every symlink
// resolved, lies within root. os.Link does not follow a symlink in the last
// element, so a symlink source links the symlink itself.
func linkSource(root, linkname string) (string, error) {
	src, err := fs.JoinWithin(root, cleanName(linkname))
	if err != nil {
		return "", err
	}
	if err := checkReal(root, filepath.Dir(src)); err != nil {
		return "", err
	}
	fi, err := os.Lstat(src)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", errors.Errorf("%s is a directory", linkname)
	}
	return src, nil
}

func checkReal(root, p string) error {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return err
	}
	if !fs.IsWithin(root, real) {
		return ErrUnsafeEntry
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) (err error) {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_EXCL, perm|0200)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()

	_, err = io.Copy(out, r)
	return err
}

func dirMode(hdr *tar.Header) os.FileMode {
	if m := os.FileMode(hdr.Mode).Perm(); m != 0 {
		return m | 0700
	}
	return 0755
}
