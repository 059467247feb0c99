// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport fetches the bytes behind a URL. Plain http and local
// file URLs are always available; https, ftp and s3 must be enabled
// explicitly.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transport is a byte-fetch-by-URL capability.
type Transport interface {
	SupportsURL(url string) bool
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ErrUnsupported is the cause of every error returned for a URL whose scheme
// no enabled transport handles.
var ErrUnsupported = errors.New("unsupported url scheme")

// Error reports a failed fetch.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// Opt-in scheme names accepted by Options.Schemes.
const (
	SchemeHTTPS = "https"
	SchemeFTP   = "ftp"
	SchemeS3    = "s3"
)

// OptIn lists the schemes that must be enabled explicitly.
var OptIn = []string{SchemeHTTPS, SchemeFTP, SchemeS3}

// Options configures New.
type Options struct {
	// Schemes enables opt-in transports. Unknown names are an error.
	Schemes []string
	// Timeout bounds each network fetch. Zero means 60 seconds.
	Timeout time.Duration
	Logger  *logrus.Logger
}

// Set dispatches each URL to the first registered transport that supports
// it.
type Set struct {
	transports []Transport
	schemes    []string
	logger     *logrus.Logger
}

// New builds a Set holding the always-on transports plus those enabled in
// opts.
func New(opts Options) (*Set, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	s := &Set{logger: opts.Logger, schemes: []string{"file", "http"}}
	s.Register(File{})

	secure := false
	for _, scheme := range opts.Schemes {
		switch strings.ToLower(scheme) {
		case SchemeHTTPS:
			secure = true
		case SchemeFTP:
			s.Register(&FTP{Timeout: timeout})
		case SchemeS3:
			s.Register(NewS3FromEnv())
		default:
			return nil, errors.Errorf("unknown transport %q, expected one of %s", scheme, strings.Join(OptIn, ", "))
		}
		s.schemes = append(s.schemes, strings.ToLower(scheme))
	}
	s.Register(&HTTP{Client: client, Secure: secure})

	return s, nil
}

// Register appends t to the dispatch order.
func (s *Set) Register(t Transport) {
	s.transports = append(s.transports, t)
}

// SupportsURL reports whether any registered transport handles url.
func (s *Set) SupportsURL(url string) bool {
	return s.pick(url) != nil
}

// FetchBytes fetches url with the first transport that supports it.
func (s *Set) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	t := s.pick(url)
	if t == nil {
		return nil, &Error{URL: url, Err: ErrUnsupported}
	}

	start := time.Now()
	b, err := t.FetchBytes(ctx, url)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return nil, err
		}
		return nil, &Error{URL: url, Err: err}
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"url":      url,
			"bytes":    len(b),
			"duration": time.Since(start),
		}).Debug("fetched")
	}
	return b, nil
}

// Schemes returns the enabled URL schemes in lexical order.
func (s *Set) Schemes() []string {
	out := append([]string(nil), s.schemes...)
	sort.Strings(out)
	return out
}

func (s *Set) pick(url string) Transport {
	for _, t := range s.transports {
		if t.SupportsURL(url) {
			return t
		}
	}
	return nil
}

// IsUnsupported reports whether err stems from a URL no transport handles.
func IsUnsupported(err error) bool {
	return errors.Cause(err) == ErrUnsupported
}

// Scheme returns the lowercased scheme of url, or "" if it has none.
func Scheme(url string) string {
	i := strings.Index(url, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}
