// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// LoadAll builds the galaxy list in priority order. Remote galaxies are read
// from the cache; one whose cache is missing is skipped with a warning, as
// is any galaxy whose manifest cannot be read. Descriptor problems inside a
// galaxy only drop the affected stars.
func LoadAll(ctx context.Context, c *Ctx) ([]*Galaxy, error) {
	var galaxies []*Galaxy
	for _, ref := range c.Config.Ordered() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := c.logger().WithFields(logrus.Fields{"galaxy": ref.Name, "url": ref.URL})

		g := NewGalaxy(ref.Name, ref.URL)
		dir := c.Config.GalaxyCacheDir(ref.Name)
		if g.IsLocal() {
			p, err := g.LocalPath()
			if err != nil {
				log.Warn(err)
				continue
			}
			dir = p
		} else if _, err := os.Stat(dir); err != nil {
			log.Warn("galaxy cache missing; run cosmos sync")
			continue
		}

		if err := loadGalaxy(ctx, c, g, dir); err != nil {
			log.WithError(err).Warn("skipping galaxy")
			continue
		}
		log.WithField("stars", len(g.Stars)).Debug("loaded galaxy")
		galaxies = append(galaxies, g)
	}
	return galaxies, nil
}

// loadGalaxy fills g from the manifest and descriptors in dir, downloading
// descriptors missing from a remote galaxy's cache when not offline.
func loadGalaxy(ctx context.Context, c *Ctx, g *Galaxy, dir string) error {
	meta, err := LoadMeta(dir)
	if err != nil {
		return err
	}
	g.Checksums = meta.Checksums

	names := make([]string, 0, len(meta.Stars))
	for name := range meta.Stars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := meta.Stars[name]
		log := c.logger().WithFields(logrus.Fields{"galaxy": g.Name, "star": name})

		path := filepath.Join(dir, "stars", starFile(name))
		var s *Star
		switch _, statErr := os.Stat(path); {
		case statErr == nil:
			s, err = LoadStar(path)
		case g.IsLocal():
			log.Warn("star descriptor missing from local galaxy")
			continue
		case c.Offline:
			log.Warn("star descriptor not cached in offline mode; run cosmos sync --stars")
			continue
		default:
			s, err = downloadStar(ctx, c, g, name, path)
		}
		if err != nil {
			log.WithError(err).Warn("skipping star")
			continue
		}

		if s.Name != name {
			log.WithField("declared", s.Name).Warn("descriptor names a different star; skipping")
			continue
		}
		if s.Version != want {
			log.WithFields(logrus.Fields{"expected": want, "got": s.Version}).Warn("version mismatch; skipping")
			continue
		}
		g.AddStar(s)
	}
	return nil
}

func downloadStar(ctx context.Context, c *Ctx, g *Galaxy, name, dest string) (*Star, error) {
	b, err := c.fetch(ctx, joinURL(g.URL, "stars", starFile(name)))
	if err != nil {
		return nil, err
	}
	s, err := ReadStar(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if err := writeCached(dest, b); err != nil {
		return nil, err
	}
	return s, nil
}
