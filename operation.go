// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/cosmos-pm/cosmos/nova"
	"github.com/cosmos-pm/cosmos/transport"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// NewCtx loads the configuration under root and wires the default
// transports and script runner. An empty root means "/".
func NewCtx(root string, logger *logrus.Logger) (*Ctx, error) {
	if root == "" {
		root = "/"
	}
	cfg, err := LoadConfig(ConfigPath(root))
	if err != nil {
		return nil, err
	}
	c := &Ctx{Root: root, Config: cfg, Logger: logger}
	tr, err := transport.New(transport.Options{Schemes: cfg.Transports, Logger: c.logger()})
	if err != nil {
		return nil, newError(KindUnsupportedURL, "transports", err)
	}
	c.Transport = tr
	c.Scripts = &nova.Runner{Logger: c.logger()}
	return c, nil
}

// Operation is one locked load-mutate-save cycle of the ledger. Only one
// operation per system root runs at a time.
type Operation struct {
	ID       string
	Universe *universe.Universe

	c     *Ctx
	log   *logrus.Entry
	lock  *flock.Flock
	dirty bool
}

// Begin takes the operation lock under c.Root and loads the ledger. A
// missing ledger starts out empty. The caller must Close the operation.
func (c *Ctx) Begin() (*Operation, error) {
	lockPath := LockPath(c.Root)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, newError(KindIO, lockPath, err)
	}
	lk := flock.New(lockPath)
	locked, err := lk.TryLock()
	if err != nil {
		return nil, newError(KindIO, lockPath, err)
	}
	if !locked {
		return nil, errorf(KindLocked, lockPath, "another cosmos operation is running")
	}

	op := &Operation{ID: uuid.New().String(), c: c, lock: lk}
	op.log = c.logger().WithField("op", op.ID)

	path := LedgerPath(c.Root)
	u, err := universe.Load(path)
	switch {
	case err == nil:
	case fs.IsNotExist(err):
		op.log.WithField("path", path).Warn("no ledger found; starting with an empty universe")
		u = universe.New(runtime.GOARCH)
	default:
		lk.Unlock()
		return nil, newError(KindMetadataParse, path, err)
	}
	op.Universe = u
	op.log.Debug("operation started")
	return op, nil
}

// Close commits the ledger if anything was recorded or removed and
// releases the lock.
func (op *Operation) Close() error {
	var err error
	if op.dirty {
		path := LedgerPath(op.c.Root)
		if serr := op.Universe.Save(path); serr != nil {
			err = newError(KindIO, path, serr)
		} else {
			op.log.WithField("path", path).Debug("ledger committed")
		}
	}
	err = multierr.Append(err, errors.Wrap(op.lock.Unlock(), "cannot release operation lock"))
	op.c.Metrics.dump(op.c.logger())
	return err
}

func (op *Operation) install(ctx context.Context, s *Star, g *Galaxy, galaxies []*Galaxy) error {
	recorded, err := op.c.InstallStar(ctx, s, g, op.Universe, galaxies)
	if len(recorded) > 0 {
		op.dirty = true
	}
	return err
}

func (c *Ctx) withOperation(fn func(*Operation) error) (err error) {
	op, err := c.Begin()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, op.Close()) }()
	return fn(op)
}

// candidate resolves name against the loaded galaxies and returns its full
// descriptor.
func (c *Ctx) candidate(ctx context.Context, galaxies []*Galaxy, name, cons string) (*Star, *Galaxy, error) {
	s, g, err := c.resolve(galaxies, name, cons)
	if err != nil {
		return nil, nil, err
	}
	s, err = FetchStar(ctx, c, g, s.Name)
	if err != nil {
		return nil, nil, err
	}
	return s, g, nil
}

// Install installs the first star named name found in the galaxies, any
// version.
func (c *Ctx) Install(ctx context.Context, name string) error {
	return c.withOperation(func(op *Operation) error {
		galaxies, err := LoadAll(ctx, c)
		if err != nil {
			return err
		}
		s, g, err := c.candidate(ctx, galaxies, name, constraint.Any)
		if err != nil {
			return err
		}
		return op.install(ctx, s, g, galaxies)
	})
}

// InstallConstellation installs the members of the constellation at path in
// order, stopping at the first failure.
func (c *Ctx) InstallConstellation(ctx context.Context, path string) error {
	cst, err := LoadConstellation(path)
	if err != nil {
		return err
	}
	deps, err := cst.Deps()
	if err != nil {
		return err
	}

	return c.withOperation(func(op *Operation) error {
		op.log.WithField("constellation", cst.Name).Info("installing constellation")
		galaxies, err := LoadAll(ctx, c)
		if err != nil {
			return err
		}
		for _, d := range deps {
			s, g, err := c.candidate(ctx, galaxies, d.Name, d.Constraint)
			if err != nil {
				return errors.Wrapf(err, "constellation %s", cst.Name)
			}
			if err := op.install(ctx, s, g, galaxies); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update installs the newest candidate for name unless the installed
// version is at least as new. It reports whether anything was installed.
func (c *Ctx) Update(ctx context.Context, name string) (updated bool, err error) {
	err = c.withOperation(func(op *Operation) error {
		galaxies, err := LoadAll(ctx, c)
		if err != nil {
			return err
		}
		s, g, err := c.resolve(galaxies, name, constraint.Any)
		if err != nil {
			return err
		}

		log := op.log.WithFields(logrus.Fields{"star": name, "candidate": s.Version})
		if cur, ok := op.Universe.Get(name); ok {
			if cmp, err := constraint.Compare(cur.Version, s.Version); err == nil && cmp >= 0 {
				log.WithField("installed", cur.Version).Info("already up to date")
				return nil
			}
			log.WithField("installed", cur.Version).Info("updating star")
		} else {
			log.Info("star is not installed; installing")
		}

		s, err = FetchStar(ctx, c, g, s.Name)
		if err != nil {
			return err
		}
		if err := op.install(ctx, s, g, galaxies); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

// Uninstall removes name and the files it owns.
func (c *Ctx) Uninstall(ctx context.Context, name string) error {
	return c.withOperation(func(op *Operation) error {
		if err := c.UninstallStar(name, op.Universe); err != nil {
			return err
		}
		op.dirty = true
		return nil
	})
}

// Status returns the ledger entries sorted by name.
func (c *Ctx) Status() ([]universe.InstalledStar, error) {
	path := LedgerPath(c.Root)
	u, err := universe.Load(path)
	if err != nil {
		if !fs.IsNotExist(err) {
			return nil, newError(KindMetadataParse, path, err)
		}
		c.logger().WithField("path", path).Warn("no ledger found")
		return nil, nil
	}

	var installed []universe.InstalledStar
	for _, name := range u.Names() {
		s, _ := u.Get(name)
		installed = append(installed, s)
	}
	return installed, nil
}

// Show returns the full descriptor of the first star named name and the
// galaxy offering it.
func (c *Ctx) Show(ctx context.Context, name string) (*Star, *Galaxy, error) {
	galaxies, err := LoadAll(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	return c.candidate(ctx, galaxies, name, constraint.Any)
}

// Init writes the default configuration and an empty ledger under root. It
// fails if a configuration already exists and keeps an existing ledger.
func Init(root string, logger *logrus.Logger) error {
	if root == "" {
		root = "/"
	}
	logger = (&Ctx{Logger: logger}).logger()
	cfgPath := ConfigPath(root)
	if fs.Exists(cfgPath) {
		return errorf(KindIO, cfgPath, "config already exists")
	}
	if err := DefaultConfig().Save(cfgPath); err != nil {
		return err
	}
	logger.WithField("path", cfgPath).Info("wrote config")

	ledger := LedgerPath(root)
	if fs.Exists(ledger) {
		logger.WithField("path", ledger).Warn("ledger already exists; leaving it in place")
		return nil
	}
	if err := universe.New(runtime.GOARCH).Save(ledger); err != nil {
		return newError(KindIO, ledger, err)
	}
	logger.WithField("path", ledger).Info("initialized empty universe")
	return nil
}

// AddGalaxy adds or replaces a galaxy in the persisted configuration.
// Runtime overrides in c.Config are never written back.
func (c *Ctx) AddGalaxy(name, url string) error {
	err := EditConfig(ConfigPath(c.Root), func(cfg *Config) error {
		return cfg.AddGalaxy(name, url)
	})
	if err != nil {
		return err
	}
	return c.Config.AddGalaxy(name, url)
}

// RemoveGalaxy drops a galaxy from the persisted configuration along with
// its cached mirror state.
func (c *Ctx) RemoveGalaxy(name string) error {
	var found bool
	err := EditConfig(ConfigPath(c.Root), func(cfg *Config) error {
		found = cfg.RemoveGalaxy(name)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		c.logger().WithField("galaxy", name).Warn("galaxy was not configured")
	}
	c.Config.RemoveGalaxy(name)
	return c.forgetSync(name)
}

// ListGalaxies returns the configured galaxies in priority order.
func (c *Ctx) ListGalaxies() []GalaxyRef {
	return c.Config.Ordered()
}
