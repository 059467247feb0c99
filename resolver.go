// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/sirupsen/logrus"
)

// FindStar returns the first star named name satisfying c, scanning galaxies
// in order. Galaxy order is a trust ranking: a later galaxy is never
// consulted once an earlier one matches, even if it offers a newer version.
// A version or constraint that does not parse counts as no match and is
// reported through logger, which may be nil.
func FindStar(galaxies []*Galaxy, name, c string, logger *logrus.Logger) (*Star, *Galaxy, bool) {
	for _, g := range galaxies {
		s, ok := g.Star(name)
		if !ok {
			continue
		}
		match, err := constraint.Satisfies(s.Version, c)
		if err != nil && logger != nil {
			logger.WithFields(logrus.Fields{
				"galaxy":     g.Name,
				"star":       name,
				"constraint": c,
			}).Warn(err)
		}
		if match {
			return s, g, true
		}
	}
	return nil, nil, false
}

// resolve is FindStar for operations, failing with DependencyUnresolved.
func (c *Ctx) resolve(galaxies []*Galaxy, name, cons string) (*Star, *Galaxy, error) {
	s, g, ok := FindStar(galaxies, name, cons, c.logger())
	if !ok {
		return nil, nil, errorf(KindDependencyUnresolved, name, "no galaxy offers a version matching %q", cons)
	}
	return s, g, nil
}
