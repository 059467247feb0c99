// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cosmos-pm/cosmos/internal/cache"
	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// SyncLevel is how much of a remote galaxy a sync mirrors.
type SyncLevel uint8

const (
	// SyncMetaOnly refreshes the catalog manifest.
	SyncMetaOnly SyncLevel = iota
	// SyncWithStars also refreshes every declared star descriptor.
	SyncWithStars
	// SyncFull also downloads and verifies every star artifact.
	SyncFull
)

func (l SyncLevel) String() string {
	switch l {
	case SyncMetaOnly:
		return "meta"
	case SyncWithStars:
		return "stars"
	case SyncFull:
		return "full"
	}
	return "unknown"
}

// SyncAll refreshes the cache of every remote galaxy. Local galaxies are
// read live and skipped. A failing galaxy does not stop the others; all
// failures are returned together.
func (c *Ctx) SyncAll(ctx context.Context, level SyncLevel) error {
	if c.Offline {
		return errorf(KindTransport, "sync", "cannot sync in offline mode")
	}
	store, err := cache.Open(c.Config.CacheDir, c.logger())
	if err != nil {
		return newError(KindIO, c.Config.CacheDir, err)
	}
	defer store.Close()

	var errs error
	for _, ref := range c.Config.Ordered() {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := c.syncGalaxy(ctx, store, ref, level); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "galaxy %s", ref.Name))
		}
	}
	return errs
}

func (c *Ctx) syncGalaxy(ctx context.Context, store *cache.Cache, ref GalaxyRef, level SyncLevel) error {
	log := c.logger().WithFields(logrus.Fields{"galaxy": ref.Name, "level": level})
	if IsLocalURL(ref.URL) {
		log.Info("skipping sync for local galaxy")
		return nil
	}
	dir := c.Config.GalaxyCacheDir(ref.Name)

	b, err := c.fetch(ctx, joinURL(ref.URL, MetaFile))
	if err != nil {
		return err
	}
	meta, err := ReadMeta(bytes.NewReader(b))
	if err != nil {
		return err
	}
	if err := writeCached(filepath.Join(dir, MetaFile), b); err != nil {
		return err
	}
	log.WithField("stars", len(meta.Stars)).Info("synced manifest")

	var errs error
	if level >= SyncWithStars {
		g := NewGalaxy(ref.Name, ref.URL)
		g.Checksums = meta.Checksums

		names := make([]string, 0, len(meta.Stars))
		for name := range meta.Stars {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			s, err := downloadStar(ctx, c, g, name, filepath.Join(dir, "stars", starFile(name)))
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "star %s", name))
				continue
			}
			if level == SyncFull {
				errs = multierr.Append(errs, c.syncArtifact(ctx, store, log.WithField("star", name), g, s))
			}
		}
	}

	if err := store.RecordSync(ref.Name, level.String(), time.Now()); err != nil {
		log.WithError(err).Warn("cannot record sync time")
	}
	return errs
}

// syncArtifact mirrors a star's artifact into the galaxy cache. Sources that
// are local or cannot be fetched are reported and skipped.
func (c *Ctx) syncArtifact(ctx context.Context, store *cache.Cache, log *logrus.Entry, g *Galaxy, s *Star) error {
	if s.Source == "" {
		return nil
	}
	src, err := g.ResolveSource(c.Config, c.Transport, strings.TrimRight(s.Source, "/"))
	switch {
	case IsKind(err, KindUnsupportedURL), IsKind(err, KindFileNotFound):
		log.WithError(err).Warn("unsupported source format; skipping artifact")
		return nil
	case err != nil:
		return err
	case src.Path != "":
		log.WithField("path", src.Path).Info("local source detected")
		return nil
	}

	dest := c.Config.TarballPath(g.Name, s)
	expected := strings.ToLower(g.Checksums[s.Name])
	if digest, ok := store.Digest(g.Name, dest); ok && (expected == "" || digest == expected) {
		log.Debug("cached artifact unchanged")
		return nil
	}

	log.WithField("url", src.URL).Info("downloading artifact")
	b, err := c.fetch(ctx, src.URL)
	if err != nil {
		return err
	}
	digest := fs.HashBytes(b)
	if expected != "" && digest != expected {
		return errorf(KindChecksumMismatch, s.TarballName(), "expected %s, got %s", expected, digest)
	}
	if err := writeCached(dest, b); err != nil {
		return err
	}
	if err := store.PutDigest(g.Name, dest, digest); err != nil {
		log.WithError(err).Warn("cannot record artifact digest")
	}
	return nil
}

// LastSync reports when galaxy was last synced and at which level.
func (c *Ctx) LastSync(galaxy string) (level string, t time.Time, ok bool) {
	if !fs.Exists(filepath.Join(c.Config.CacheDir, cache.FileName)) {
		return "", time.Time{}, false
	}
	store, err := cache.Open(c.Config.CacheDir, c.logger())
	if err != nil {
		c.logger().WithError(err).Warn("cannot open sync cache")
		return "", time.Time{}, false
	}
	defer store.Close()
	return store.LastSync(galaxy)
}

// forgetSync drops the recorded sync state of a removed galaxy.
func (c *Ctx) forgetSync(galaxy string) error {
	if !fs.Exists(filepath.Join(c.Config.CacheDir, cache.FileName)) {
		return nil
	}
	store, err := cache.Open(c.Config.CacheDir, c.logger())
	if err != nil {
		return newError(KindIO, c.Config.CacheDir, err)
	}
	defer store.Close()
	if err := store.Forget(galaxy); err != nil {
		return newError(KindIO, galaxy, err)
	}
	return nil
}
