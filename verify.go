// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/sirupsen/logrus"
)

// FilesDir is the artifact subtree that mirrors the install root.
const FilesDir = "files"

// verifyTarball checks the artifact at path against the checksum its galaxy
// publishes for s. A galaxy that publishes none for s only earns a warning.
func verifyTarball(log *logrus.Entry, g *Galaxy, s *Star, path string) error {
	expected, ok := g.Checksums[s.Name]
	if !ok {
		log.Warn("galaxy publishes no checksum for star; artifact not verified")
		return nil
	}
	expected = strings.ToLower(strings.TrimSpace(expected))
	if !fs.IsSHA256Hex(expected) {
		return errorf(KindInvalidChecksumFormat, s.Name, "galaxy checksum %q is not a sha256 hex digest", expected)
	}

	actual, err := fs.HashFile(path)
	if err != nil {
		return newError(KindIO, path, err)
	}
	if actual != expected {
		return errorf(KindChecksumMismatch, s.TarballName(), "expected %s, got %s", expected, actual)
	}
	log.Debug("artifact checksum verified")
	return nil
}

// verifyFiles checks every entry of the star's per-file checksum map
// against the extracted files/ subtree under root. All entries are checked
// for containment and format before any file is hashed, so a hostile entry
// fails the install without touching the filesystem.
func verifyFiles(log *logrus.Entry, s *Star, root string) error {
	if len(s.Checksums) == 0 {
		return nil
	}
	base := filepath.Join(root, FilesDir)

	rels := make([]string, 0, len(s.Checksums))
	for rel := range s.Checksums {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		if _, err := fs.JoinWithin(base, rel); err != nil {
			return newError(KindSecurityViolation, rel, err)
		}
		if !fs.IsSHA256Hex(s.Checksums[rel]) {
			return errorf(KindInvalidChecksumFormat, rel, "%q is not 64 lowercase hex digits", s.Checksums[rel])
		}
	}

	for _, rel := range rels {
		joined, _ := fs.JoinWithin(base, rel)
		if _, err := os.Lstat(joined); err != nil {
			return newError(KindFileNotFound, rel, err)
		}
		real, err := fs.ResolveWithin(base, rel)
		if err != nil {
			if fs.IsNotExist(err) {
				return newError(KindFileNotFound, rel, err)
			}
			return newError(KindSecurityViolation, rel, err)
		}
		actual, err := fs.HashFile(real)
		if err != nil {
			return newError(KindIO, rel, err)
		}
		if actual != s.Checksums[rel] {
			return errorf(KindChecksumMismatch, rel, "expected %s, got %s", s.Checksums[rel], actual)
		}
		log.WithField("file", rel).Debug("checksum verified")
	}
	return nil
}
