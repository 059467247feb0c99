// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache persists repository sync state in a bolt database under the
// cache directory.
package cache

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// FileName is the database file created inside the cache directory.
const FileName = "sync.db"

// Cache records, per galaxy, when it was last synced and the verified
// digests of downloaded artifacts.
//
// Layout:
//
//	Bucket: "galaxy:<name>"
//	Keys:   "synced" -> <level> ":" <big-endian unix seconds>
//	Sub-Bucket: "digests"
//	Keys/Values: "<artifact file name>" -> "<size>:<mtime unix nanos>:<sha256>"
//
// Methods are safe for concurrent use with each other (excluding Close).
type Cache struct {
	db     *bolt.DB
	logger *logrus.Logger
}

// Open opens or creates the database in dir.
func Open(dir string, logger *logrus.Logger) (*Cache, error) {
	if fi, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create cache directory: %s", dir)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to check cache directory: %s", dir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("cache path is not a directory: %s", dir)
	}

	path := filepath.Join(dir, FileName)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sync cache %s", path)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Close releases all database resources.
func (c *Cache) Close() error {
	return errors.Wrapf(c.db.Close(), "error closing bolt database %q", c.db.Path())
}

// RecordSync notes that galaxy was synced at level at time t.
func (c *Cache) RecordSync(galaxy, level string, t time.Time) error {
	return c.updateBucket(galaxyBucket(galaxy), func(b *bolt.Bucket) error {
		v := make([]byte, len(level)+1+8)
		copy(v, level)
		v[len(level)] = ':'
		binary.BigEndian.PutUint64(v[len(level)+1:], uint64(t.Unix()))
		return b.Put([]byte("synced"), v)
	})
}

// LastSync returns the level and time of galaxy's most recent sync.
func (c *Cache) LastSync(galaxy string) (level string, t time.Time, ok bool) {
	err := c.viewBucket(galaxyBucket(galaxy), func(b *bolt.Bucket) error {
		v := b.Get([]byte("synced"))
		i := bytes.LastIndexByte(v, ':')
		if i < 0 || len(v)-i-1 != 8 {
			return nil
		}
		level = string(v[:i])
		t = time.Unix(int64(binary.BigEndian.Uint64(v[i+1:])), 0)
		ok = true
		return nil
	})
	if err != nil {
		c.warn(err, galaxy)
		return "", time.Time{}, false
	}
	return level, t, ok
}

// PutDigest remembers that the artifact at path, as it stands now, hashes to
// digest.
func (c *Cache) PutDigest(galaxy, path, digest string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return c.updateBucket(galaxyBucket(galaxy), func(b *bolt.Bucket) error {
		d, err := b.CreateBucketIfNotExists([]byte("digests"))
		if err != nil {
			return err
		}
		return d.Put([]byte(filepath.Base(path)), []byte(fileStamp(fi)+":"+digest))
	})
}

// Digest returns the digest recorded for the artifact at path, provided the
// file has not changed size or modification time since it was recorded.
func (c *Cache) Digest(galaxy, path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	var digest string
	err = c.viewBucket(galaxyBucket(galaxy), func(b *bolt.Bucket) error {
		d := b.Bucket([]byte("digests"))
		if d == nil {
			return nil
		}
		v := string(d.Get([]byte(filepath.Base(path))))
		stamp := fileStamp(fi) + ":"
		if strings.HasPrefix(v, stamp) {
			digest = strings.TrimPrefix(v, stamp)
		}
		return nil
	})
	if err != nil {
		c.warn(err, galaxy)
		return "", false
	}
	return digest, digest != ""
}

// Forget drops everything recorded for galaxy.
func (c *Cache) Forget(galaxy string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(galaxyBucket(galaxy))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func fileStamp(fi os.FileInfo) string {
	return strconv.FormatInt(fi.Size(), 10) + ":" + strconv.FormatInt(fi.ModTime().UnixNano(), 10)
}

func galaxyBucket(name string) []byte {
	return []byte("galaxy:" + strings.ToLower(name))
}

func (c *Cache) warn(err error, galaxy string) {
	if c.logger != nil {
		c.logger.WithField("galaxy", galaxy).Warn(errors.Wrap(err, "sync cache read failed"))
	}
}

// viewBucket executes view with the named bucket, if it exists.
func (c *Cache) viewBucket(name []byte, view func(b *bolt.Bucket) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return nil
		}
		return view(b)
	})
}

// updateBucket executes update with the named bucket, creating it first if necessary.
func (c *Cache) updateBucket(name []byte, update func(b *bolt.Bucket) error) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(name)
		if err != nil {
			return errors.Wrapf(err, "failed to create bucket: %s", name)
		}
		return update(b)
	})
}
