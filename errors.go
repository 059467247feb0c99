// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failures surfaced by core operations.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIO
	KindTransport
	KindUnsupportedURL
	KindDependencyUnresolved
	KindDependencyCycle
	KindSemverParse
	KindMetadataParse
	KindCopyFailed
	KindFileNotFound
	KindChecksumMismatch
	KindInvalidChecksumFormat
	KindSecurityViolation
	KindScriptFailed
	KindMissingRequiredField
	KindNotInstalled
	KindLocked
)

var kindNames = map[Kind]string{
	KindUnknown:               "error",
	KindIO:                    "io error",
	KindTransport:             "transport failure",
	KindUnsupportedURL:        "unsupported url",
	KindDependencyUnresolved:  "dependency unresolved",
	KindDependencyCycle:       "dependency cycle",
	KindSemverParse:           "semver parse error",
	KindMetadataParse:         "metadata parse error",
	KindCopyFailed:            "copy failed",
	KindFileNotFound:          "file not found",
	KindChecksumMismatch:      "checksum mismatch",
	KindInvalidChecksumFormat: "invalid checksum format",
	KindSecurityViolation:     "security violation",
	KindScriptFailed:          "install script failed",
	KindMissingRequiredField:  "missing required field",
	KindNotInstalled:          "not installed",
	KindLocked:                "operation in progress",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the outcome of a failed core operation. Op names the operation
// or subject (a star, a galaxy, a path) and Err carries the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

// Cause lets errors.Cause walk through an *Error.
func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

func errorf(k Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: k, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error found in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
