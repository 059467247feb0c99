// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"strings"

	"github.com/armon/go-radix"
)

// Match is one star offered by one galaxy.
type Match struct {
	Star   *Star
	Galaxy *Galaxy
}

// Index orders every loaded star by name. Stars sharing a name keep the
// galaxy priority order.
type Index struct {
	t *radix.Tree
}

// NewIndex indexes the stars of galaxies, which must be in priority order.
func NewIndex(galaxies []*Galaxy) *Index {
	ix := &Index{t: radix.New()}
	for _, g := range galaxies {
		for _, s := range g.Stars {
			ix.insert(Match{Star: s, Galaxy: g})
		}
	}
	return ix
}

func (ix *Index) insert(m Match) {
	if v, ok := ix.t.Get(m.Star.Name); ok {
		ix.t.Insert(m.Star.Name, append(v.([]Match), m))
		return
	}
	ix.t.Insert(m.Star.Name, []Match{m})
}

// Len is the number of distinct star names.
func (ix *Index) Len() int {
	return ix.t.Len()
}

// Search returns every star whose name or description contains term. An
// empty term lists everything.
func (ix *Index) Search(term string) []Match {
	var out []Match
	ix.t.Walk(func(name string, v interface{}) bool {
		for _, m := range v.([]Match) {
			if strings.Contains(name, term) || strings.Contains(m.Star.Description, term) {
				out = append(out, m)
			}
		}
		return false
	})
	return out
}

// Prefix returns every star whose name starts with prefix.
func (ix *Index) Prefix(prefix string) []Match {
	var out []Match
	ix.t.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, v.([]Match)...)
		return false
	})
	return out
}

// Search loads the galaxies and searches them for term.
func (c *Ctx) Search(ctx context.Context, term string) ([]Match, error) {
	galaxies, err := LoadAll(ctx, c)
	if err != nil {
		return nil, err
	}
	return NewIndex(galaxies).Search(term), nil
}
