// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nova runs star install scripts in an embedded Go interpreter.
//
// A script is a Go source file in package main that defines
//
//	func Install() error
//
// and imports "cosmos/nova" for the only operations it may perform: running
// commands inside the extraction root, and copying, linking, creating,
// chmod-ing and testing paths inside the install root. Apart from a few
// pure standard packages, nothing else can be imported.
package nova

import (
	"bytes"
	"context"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Extension marks a script as a nova script.
const Extension = ".nova"

// ImportPath is the import path scripts use for the capability package.
const ImportPath = "cosmos/nova"

// ErrNoInstall is returned when a script does not define Install.
var ErrNoInstall = errors.New("script defines no func Install() error")

// allowedStdlib are the standard packages scripts may import. None of them
// reach the filesystem, the network or other processes.
var allowedStdlib = map[string]bool{
	"errors":  true,
	"fmt":     true,
	"path":    true,
	"sort":    true,
	"strconv": true,
	"strings": true,
}

// IsScript reports whether an install_script value names a nova script.
func IsScript(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// Runner executes nova scripts.
type Runner struct {
	Logger *logrus.Logger
}

// RunInstallScript runs the script at scriptPath against the given roots and
// returns the install-root-relative paths, each with a leading slash, of
// every file the script copied into place.
func (r *Runner) RunInstallScript(ctx context.Context, scriptPath, extractionRoot, installRoot string) ([]string, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", scriptPath)
	}
	if err := checkImports(scriptPath, src); err != nil {
		return nil, err
	}

	s := &session{
		ctx:         ctx,
		extractRoot: extractionRoot,
		installRoot: installRoot,
		logger:      r.Logger,
	}

	i := interp.New(interp.Options{})
	if err := i.Use(restrictedStdlib()); err != nil {
		return nil, errors.Wrap(err, "unable to load standard symbols")
	}
	if err := i.Use(s.exports()); err != nil {
		return nil, errors.Wrap(err, "unable to load capabilities")
	}

	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return nil, errors.Wrapf(err, "%s", filepath.Base(scriptPath))
	}
	v, err := i.Eval("main.Install")
	if err != nil {
		return nil, ErrNoInstall
	}
	install, ok := v.Interface().(func() error)
	if !ok {
		return nil, errors.Wrapf(ErrNoInstall, "Install has type %s", v.Type())
	}

	if err := call(install); err != nil {
		return nil, errors.Wrapf(err, "%s: Install", filepath.Base(scriptPath))
	}
	return s.installed, nil
}

func call(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// checkImports rejects scripts importing anything outside the allow-list.
func checkImports(name string, src []byte) error {
	f, err := parser.ParseFile(token.NewFileSet(), name, src, parser.ImportsOnly)
	if err != nil {
		return errors.Wrap(err, "unable to parse script")
	}

	var forbidden []string
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return errors.Wrapf(err, "bad import %s", spec.Path.Value)
		}
		if p != ImportPath && !allowedStdlib[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		return errors.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

func restrictedStdlib() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// Keys look like "strings/strings".
		if allowedStdlib[path.Dir(key)] {
			out[key] = syms
		}
	}
	return out
}

// session holds the capabilities handed to one script run.
type session struct {
	ctx         context.Context
	extractRoot string
	installRoot string
	logger      *logrus.Logger
	installed   []string
}

func (s *session) exports() interp.Exports {
	return interp.Exports{
		ImportPath + "/nova": {
			"Run":         reflect.ValueOf(s.Run),
			"Copy":        reflect.ValueOf(s.Copy),
			"Symlink":     reflect.ValueOf(s.Symlink),
			"Mkdir":       reflect.ValueOf(s.Mkdir),
			"Chmod":       reflect.ValueOf(s.Chmod),
			"Exists":      reflect.ValueOf(s.Exists),
			"InstallRoot": reflect.ValueOf(s.InstallRoot),
		},
	}
}

// Run executes a command with the extraction root as working directory and
// fails on a nonzero exit.
func (s *session) Run(name string, args ...string) error {
	if name == "" {
		return errors.New("run: no command given")
	}
	cmd := exec.CommandContext(s.ctx, name, args...)
	cmd.Dir = s.extractRoot
	out, err := cmd.CombinedOutput()
	if s.logger != nil && len(out) > 0 {
		s.logger.WithField("cmd", name).Debug(strings.TrimSpace(string(out)))
	}
	if err != nil {
		return errors.Wrapf(err, "command failed: %s %s\n%s", name, strings.Join(args, " "), bytes.TrimSpace(out))
	}
	return nil
}

// Copy copies from, relative to the extraction's files/ directory, to the
// install-root path to, and records to as installed.
func (s *session) Copy(from, to string) error {
	src, err := fs.ResolveWithin(filepath.Join(s.extractRoot, "files"), strings.TrimLeft(from, "/"))
	if err != nil {
		if fs.IsNotExist(err) {
			return errors.Errorf("copy: source does not exist: %s", from)
		}
		return errors.Wrapf(err, "copy: %s", from)
	}
	if ok, err := fs.IsRegular(src); err != nil || !ok {
		return errors.Errorf("copy: %s is not a regular file", from)
	}

	dst, rel, err := s.prepare(to)
	if err != nil {
		return errors.Wrap(err, "copy")
	}
	if err := fs.CopyFile(src, dst); err != nil {
		return errors.Wrapf(err, "copy %s to %s", from, to)
	}
	s.installed = append(s.installed, "/"+rel)
	return nil
}

// Symlink creates linkname inside the install root pointing at target,
// replacing whatever was there.
func (s *session) Symlink(target, linkname string) error {
	dst, _, err := s.prepare(linkname)
	if err != nil {
		return errors.Wrap(err, "symlink")
	}
	return errors.Wrap(os.Symlink(target, dst), "symlink")
}

// Mkdir creates p and any missing parents inside the install root.
func (s *session) Mkdir(p string) error {
	full, err := fs.RootRelative(s.installRoot, p)
	if err != nil {
		return errors.Wrap(err, "mkdir")
	}
	if err := s.checkReal(nearestExisting(s.installRoot, full)); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	return errors.Wrap(s.checkReal(full), "mkdir")
}

// Chmod sets the permission bits of p inside the install root.
func (s *session) Chmod(p string, mode uint32) error {
	full, err := fs.ResolveWithin(s.installRoot, strings.TrimLeft(p, "/"))
	if err != nil {
		return errors.Wrap(err, "chmod")
	}
	return errors.Wrap(os.Chmod(full, os.FileMode(mode).Perm()), "chmod")
}

// Exists reports whether p exists inside the install root.
func (s *session) Exists(p string) bool {
	full, err := fs.RootRelative(s.installRoot, p)
	if err != nil {
		return false
	}
	return fs.Exists(full)
}

// InstallRoot returns the install root the script writes into.
func (s *session) InstallRoot() string {
	return s.installRoot
}

// prepare maps p onto the install root, creates its parent and clears any
// non-directory already at the destination. It returns the full path and
// the cleaned root-relative slash path.
func (s *session) prepare(p string) (string, string, error) {
	full, err := fs.RootRelative(s.installRoot, p)
	if err != nil {
		return "", "", err
	}
	parent := filepath.Dir(full)
	if err := s.checkReal(nearestExisting(s.installRoot, parent)); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", "", err
	}
	if err := s.checkReal(parent); err != nil {
		return "", "", err
	}
	if fi, err := os.Lstat(full); err == nil {
		if fi.IsDir() {
			return "", "", errors.Errorf("%s is a directory", p)
		}
		if err := os.Remove(full); err != nil {
			return "", "", err
		}
	}

	rel, err := filepath.Rel(s.installRoot, full)
	if err != nil {
		return "", "", err
	}
	return full, filepath.ToSlash(rel), nil
}

// checkReal fails if p, after resolving symlinks, lies outside the install
// root.
func (s *session) checkReal(p string) error {
	realRoot, err := filepath.EvalSymlinks(s.installRoot)
	if err != nil {
		return err
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return err
	}
	if !fs.IsWithin(realRoot, real) {
		return errors.Wrapf(fs.ErrEscapesRoot, "%s resolves to %s", p, real)
	}
	return nil
}

func nearestExisting(root, p string) string {
	for !fs.Exists(p) && p != root && p != filepath.Dir(p) {
		p = filepath.Dir(p)
	}
	return p
}
