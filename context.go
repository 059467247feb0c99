// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/cosmos-pm/cosmos/log"
	"github.com/cosmos-pm/cosmos/transport"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ScriptRunner runs sandboxed install scripts. It returns the
// install-root-relative paths, each with a leading slash, that the script
// installed.
type ScriptRunner interface {
	RunInstallScript(ctx context.Context, scriptPath, extractionRoot, installRoot string) ([]string, error)
}

// Ctx defines the supporting context of a cosmos operation.
type Ctx struct {
	Root      string // system root holding etc/cosmos and var/lib/cosmos
	Config    *Config
	Transport transport.Transport
	Scripts   ScriptRunner
	Logger    *logrus.Logger
	Offline   bool
	Metrics   *Metrics     // optional
	Tracer    trace.Tracer // optional
}

// Paths of cosmos state beneath a system root.
const (
	configRel = "etc/cosmos/config.toml"
	ledgerRel = "var/lib/cosmos/universe.toml"
	lockRel   = "var/lib/cosmos/.lock"
)

// ConfigPath returns the location of the config file under root.
func ConfigPath(root string) string { return filepath.Join(root, filepath.FromSlash(configRel)) }

// LedgerPath returns the location of the installed-state ledger under root.
func LedgerPath(root string) string { return filepath.Join(root, filepath.FromSlash(ledgerRel)) }

// LockPath returns the location of the operation lock file under root.
func LockPath(root string) string { return filepath.Join(root, filepath.FromSlash(lockRel)) }

// InstallRoot is the directory stars are installed into.
func (c *Ctx) InstallRoot() string {
	if c.Config != nil && c.Config.InstallDir != "" {
		return c.Config.InstallDir
	}
	if c.Root != "" {
		return c.Root
	}
	return "/"
}

func (c *Ctx) logger() *logrus.Logger {
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
	return c.Logger
}

func (c *Ctx) tracer() trace.Tracer {
	if c.Tracer == nil {
		return noop.NewTracerProvider().Tracer("cosmos")
	}
	return c.Tracer
}

// fetch downloads url through the configured transport, classifying
// failures.
func (c *Ctx) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.Transport == nil || !c.Transport.SupportsURL(url) {
		return nil, errorf(KindUnsupportedURL, url, "no enabled transport handles %q", transport.Scheme(url))
	}
	b, err := c.Transport.FetchBytes(ctx, url)
	c.Metrics.observeFetch(transport.Scheme(url), len(b), err)
	if err != nil {
		if transport.IsUnsupported(err) {
			return nil, newError(KindUnsupportedURL, url, err)
		}
		return nil, newError(KindTransport, url, err)
	}
	return b, nil
}

// writeCached stores downloaded bytes at path atomically.
func writeCached(path string, b []byte) error {
	if err := fs.WriteFileAtomic(path, b, 0644); err != nil {
		return newError(KindIO, path, err)
	}
	return nil
}

// joinURL appends slash-separated elements to a base URL or path.
func joinURL(base string, elem ...string) string {
	parts := []string{strings.TrimRight(base, "/")}
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}
