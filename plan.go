// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"strings"

	"github.com/cosmos-pm/cosmos/internal/constraint"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/sirupsen/logrus"
)

// step is one star scheduled for installation.
type step struct {
	star   *Star
	galaxy *Galaxy
}

type mark uint8

const (
	unvisited mark = iota
	visiting
	done
)

// frame is a star whose dependencies are being walked.
type frame struct {
	step
	deps []Dependency
	next int
}

// plan orders root and every transitive dependency not already satisfied by
// the ledger so that each star comes after all of its dependencies. Each
// name is scheduled at most once. A dependency cycle is reported before
// anything is installed.
func (c *Ctx) plan(galaxies []*Galaxy, u *universe.Universe, root *Star, origin *Galaxy) ([]step, error) {
	marks := map[string]mark{root.Name: visiting}
	scheduled := make(map[string]*Star)
	stack := []*frame{{step: step{root, origin}, deps: root.SortedDependencies()}}
	var order []step

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.deps) {
			stack = stack[:len(stack)-1]
			marks[top.star.Name] = done
			scheduled[top.star.Name] = top.star
			order = append(order, top.step)
			continue
		}
		d := top.deps[top.next]
		top.next++

		log := c.logger().WithFields(logrus.Fields{"star": top.star.Name, "dependency": d.Name, "constraint": d.Constraint})
		ok, err := u.Satisfies(d.Name, d.Constraint)
		if err != nil {
			log.Warn(err)
		}
		// An installed version also satisfies a star still being planned,
		// as when an update is needed by its own dependencies.
		if ok && marks[d.Name] != done {
			log.Debug("dependency already satisfied")
			continue
		}

		switch marks[d.Name] {
		case visiting:
			return nil, errorf(KindDependencyCycle, root.Name, "%s", cyclePath(stack, d.Name))
		case done:
			if !constraint.Matches(scheduled[d.Name].Version, d.Constraint) {
				return nil, errorf(KindDependencyUnresolved, d.Name,
					"%s needs %q but %s is already scheduled", top.star.Name, d.Constraint, scheduled[d.Name].Version)
			}
			continue
		}

		s, g, err := c.resolve(galaxies, d.Name, d.Constraint)
		if err != nil {
			return nil, err
		}
		marks[s.Name] = visiting
		stack = append(stack, &frame{step: step{s, g}, deps: s.SortedDependencies()})
	}
	return order, nil
}

func cyclePath(stack []*frame, name string) string {
	var names []string
	for i, f := range stack {
		if f.star.Name == name {
			for _, g := range stack[i:] {
				names = append(names, g.star.Name)
			}
			break
		}
	}
	return strings.Join(append(names, name), " -> ")
}
