// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrEscapesRoot is returned when a path would resolve outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// IsWithin reports whether path is root or lies beneath it, comparing the
// cleaned paths lexically. Both must be absolute or both relative.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// JoinWithin joins the slash-separated relative path rel onto root and
// rejects the result if it would leave root. Absolute rel values are
// rejected as well; callers that treat "/x" as root-relative must trim the
// leading slash first.
func JoinWithin(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty path")
	}
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", errors.Wrapf(ErrEscapesRoot, "%q is absolute", rel)
	}
	joined := filepath.Join(root, native)
	if !IsWithin(root, joined) {
		return "", errors.Wrapf(ErrEscapesRoot, "%q", rel)
	}
	return joined, nil
}

// ResolveWithin joins rel onto root like JoinWithin and then resolves every
// symlink in the result, rejecting paths whose real location lies outside
// the real location of root. The target must exist.
func ResolveWithin(root, rel string) (string, error) {
	joined, err := JoinWithin(root, rel)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", errors.Wrapf(err, "cannot resolve %s", root)
	}
	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !IsWithin(realRoot, real) {
		return "", errors.Wrapf(ErrEscapesRoot, "%q resolves to %s", rel, real)
	}
	return real, nil
}

// RootRelative maps a slash path recorded as "/usr/bin/tool" onto root. The
// recorded path is always treated as relative to root.
func RootRelative(root, recorded string) (string, error) {
	trimmed := strings.TrimLeft(recorded, "/")
	if trimmed == "" {
		return "", errors.Errorf("%q names the root itself", recorded)
	}
	return JoinWithin(root, trimmed)
}

// IsNotExist reports whether err, possibly wrapped, is a not-exist error.
func IsNotExist(err error) bool {
	return os.IsNotExist(errors.Cause(err))
}
