// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"os"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/sirupsen/logrus"
)

// UninstallStar removes every file the ledger records for name from the
// install root, then drops the entry. Files already gone are skipped. Once
// the entry exists it is always removed; a second call reports
// KindNotInstalled.
func (c *Ctx) UninstallStar(name string, u *universe.Universe) (err error) {
	defer func() { c.Metrics.observeUninstall(err) }()

	entry, ok := u.Get(name)
	if !ok {
		return errorf(KindNotInstalled, name, "star is not installed")
	}
	root := c.InstallRoot()
	log := c.logger().WithFields(logrus.Fields{"star": name, "version": entry.Version})
	log.Info("uninstalling star")

	for _, recorded := range entry.Files {
		flog := log.WithField("file", recorded)
		p, err := fs.RootRelative(root, recorded)
		if err != nil {
			flog.WithError(err).Warn("refusing to remove path outside the install root")
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			flog.Warn("skipped missing file")
			continue
		}
		if err := os.Remove(p); err != nil {
			flog.WithError(err).Warn("cannot remove file")
			continue
		}
		flog.Debug("removed")
	}

	u.UninstallStar(name)
	log.Info("uninstalled star")
	return nil
}
