// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraint evaluates semantic versions against range constraints.
//
// Versions are parsed strictly (major.minor.patch with optional pre-release
// and build metadata). Constraints use the conventional range grammar: exact
// ("1.2.3", "=1.2.3"), caret ("^1.2"), tilde ("~1.2.3"), comparisons
// (">=1.0.0, <2.0.0"), hyphen ranges and the wildcard "*".
package constraint

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Any is the constraint that admits every parseable version.
const Any = "*"

// A ParseError reports a version or constraint that could not be parsed.
type ParseError struct {
	Subject    string
	Constraint string
	Err        error
}

func (e *ParseError) Error() string {
	return "cannot evaluate " + e.Subject + " against constraint " + e.Constraint + ": " + e.Err.Error()
}

func (e *ParseError) Cause() error  { return e.Err }
func (e *ParseError) Unwrap() error { return e.Err }

// ParseVersion parses text as a strict semantic version.
func ParseVersion(text string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(text))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid version %q", text)
	}
	return v, nil
}

// ParseConstraint parses text as a range constraint. Empty text is the same
// as Any.
func ParseConstraint(text string) (*semver.Constraints, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = Any
	}
	c, err := semver.NewConstraint(text)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid constraint %q", text)
	}
	return c, nil
}

// Satisfies reports whether version satisfies constraint. A parse failure on
// either side yields false together with a *ParseError naming both operands,
// so callers can log it and keep scanning other candidates.
func Satisfies(version, constraint string) (bool, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, &ParseError{Subject: version, Constraint: constraint, Err: err}
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false, &ParseError{Subject: version, Constraint: constraint, Err: err}
	}
	return c.Check(v), nil
}

// Matches is Satisfies with the diagnostic dropped.
func Matches(version, constraint string) bool {
	ok, _ := Satisfies(version, constraint)
	return ok
}

// Compare orders a and b by semantic-versioning precedence, returning -1, 0
// or +1. Build metadata does not participate in precedence.
func Compare(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}
