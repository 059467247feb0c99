// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"context"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/archive"
	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/cosmos-pm/cosmos/nova"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstallStar installs s from origin after every dependency the ledger does
// not already satisfy, recording each unit in u once it is on disk. It
// returns the names recorded, in install order, even when a later unit
// fails; earlier units are not rolled back.
func (c *Ctx) InstallStar(ctx context.Context, s *Star, origin *Galaxy, u *universe.Universe, galaxies []*Galaxy) ([]string, error) {
	end := c.stage(ctx, "plan", s)
	steps, err := c.plan(galaxies, u, s, origin)
	end(err)
	if err != nil {
		return nil, err
	}

	var recorded []string
	for _, st := range steps {
		if err := c.installOne(ctx, st, u); err != nil {
			return recorded, err
		}
		recorded = append(recorded, st.star.Name)
	}
	return recorded, nil
}

// installOne installs a single star whose dependencies are already in
// place. Nothing is recorded unless every stage succeeds.
func (c *Ctx) installOne(ctx context.Context, st step, u *universe.Universe) (err error) {
	s, g := st.star, st.galaxy
	log := c.logger().WithFields(logrus.Fields{"star": s.Name, "version": s.Version, "galaxy": g.Name})

	ctx, span := c.tracer().Start(ctx, "cosmos.install", trace.WithAttributes(
		attribute.String("star", s.Name),
		attribute.String("version", s.Version),
		attribute.String("galaxy", g.Name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.Metrics.observeInstall(s.EffectiveType(), err)
	}()

	if s.IsAggregate() {
		log.WithField("type", s.EffectiveType()).Info("recording aggregate star")
		u.RecordStar(s.Name, s.Version, nil)
		return nil
	}
	log.Info("installing star")

	end := c.stage(ctx, "acquire", s)
	tarball, err := c.acquire(ctx, log, s, g)
	end(err)
	if err != nil {
		return err
	}

	end = c.stage(ctx, "verify-artifact", s)
	err = verifyTarball(log, g, s, tarball)
	end(err)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "cosmos-"+s.Name+"-")
	if err != nil {
		return newError(KindIO, s.Name, errors.Wrap(err, "cannot create extraction directory"))
	}
	defer os.RemoveAll(tmp)

	end = c.stage(ctx, "extract", s)
	extracted, err := archive.ExtractFile(tarball, tmp)
	end(err)
	if err != nil {
		if errors.Cause(err) == archive.ErrUnsafeEntry {
			return newError(KindSecurityViolation, s.TarballName(), err)
		}
		return newError(KindIO, s.TarballName(), err)
	}
	log.WithField("entries", len(extracted)).Debug("extracted artifact")

	end = c.stage(ctx, "verify-files", s)
	err = verifyFiles(log, s, tmp)
	end(err)
	if err != nil {
		return err
	}

	end = c.stage(ctx, "action", s)
	files, err := c.runAction(ctx, log, s, tmp, extracted)
	end(err)
	if err != nil {
		return err
	}

	u.RecordStar(s.Name, s.Version, files)
	log.WithField("files", len(files)).Info("installed star")
	return nil
}

// acquire returns the path of the star's artifact, downloading it into the
// galaxy cache when it is not already there.
func (c *Ctx) acquire(ctx context.Context, log *logrus.Entry, s *Star, g *Galaxy) (string, error) {
	cached := c.Config.TarballPath(g.Name, s)
	if fs.Exists(cached) {
		log.WithField("path", cached).Debug("using cached artifact")
		return cached, nil
	}
	if s.Source == "" {
		return "", errorf(KindMissingRequiredField, s.Name, "no source and no cached artifact")
	}

	src, err := g.ResolveSource(c.Config, c.Transport, s.Source)
	if err != nil {
		return "", err
	}
	if src.Path != "" {
		log.WithField("path", src.Path).Debug("using local artifact")
		return src.Path, nil
	}

	if c.Offline {
		return "", errorf(KindTransport, s.Name, "artifact not cached and offline mode is enabled")
	}
	log.WithField("url", src.URL).Info("downloading artifact")
	b, err := c.fetch(ctx, src.URL)
	if err != nil {
		return "", err
	}
	if err := writeCached(cached, b); err != nil {
		return "", err
	}
	return cached, nil
}

// runAction applies the star's install action from the extraction root and
// returns the install-root-relative paths it wrote.
func (c *Ctx) runAction(ctx context.Context, log *logrus.Entry, s *Star, root string, extracted []string) ([]string, error) {
	installRoot := c.InstallRoot()
	filesDir := filepath.Join(root, FilesDir)

	switch {
	case s.InstallScript != "" && nova.IsScript(s.InstallScript):
		script, err := fs.JoinWithin(root, s.InstallScript)
		if err != nil {
			return nil, newError(KindSecurityViolation, s.InstallScript, err)
		}
		if c.Scripts == nil {
			return nil, errorf(KindScriptFailed, s.InstallScript, "no script runner configured")
		}
		log.WithField("script", s.InstallScript).Info("running install script")
		files, err := c.Scripts.RunInstallScript(ctx, script, root, installRoot)
		if err != nil {
			return nil, newError(KindScriptFailed, s.InstallScript, err)
		}
		return files, nil

	case s.InstallScript != "":
		script, err := fs.JoinWithin(root, s.InstallScript)
		if err != nil {
			return nil, newError(KindSecurityViolation, s.InstallScript, err)
		}
		log.WithField("script", s.InstallScript).Info("running shell install script")
		cmd := exec.CommandContext(ctx, "sh", "-c", script)
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			log.Debug(strings.TrimSpace(string(out)))
		}
		if err != nil {
			return nil, newError(KindScriptFailed, s.InstallScript, err)
		}
		return extractedFiles(extracted), nil

	case isDir(filesDir):
		log.WithField("dest", installRoot).Info("copying files")
		copied, err := fs.MergeDir(filesDir, installRoot)
		if err != nil {
			return nil, newError(KindCopyFailed, s.Name, err)
		}
		files := make([]string, len(copied))
		for i, rel := range copied {
			files[i] = "/" + rel
		}
		return files, nil
	}

	log.Warn("no install script and no files directory; nothing to do")
	return nil, nil
}

// extractedFiles maps archive entries under files/ to the install-root
// paths they mirror.
func extractedFiles(extracted []string) []string {
	var files []string
	prefix := FilesDir + "/"
	for _, name := range extracted {
		if strings.HasPrefix(name, prefix) {
			files = append(files, path.Join("/", strings.TrimPrefix(name, prefix)))
		}
	}
	return files
}

func isDir(p string) bool {
	ok, err := fs.IsDir(p)
	return err == nil && ok
}

// stage starts a traced, timed install stage. The returned func ends it.
func (c *Ctx) stage(ctx context.Context, name string, s *Star) func(error) {
	_, span := c.tracer().Start(ctx, "cosmos."+name, trace.WithAttributes(attribute.String("star", s.Name)))
	c.Metrics.push(name)
	return func(err error) {
		c.Metrics.pop()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
