// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// File reads file:// URLs from the local filesystem.
type File struct{}

func (File) SupportsURL(u string) bool {
	return Scheme(u) == "file"
}

func (File) FetchBytes(ctx context.Context, u string) ([]byte, error) {
	p, err := FilePath(u)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// FilePath returns the local path named by a file:// URL.
func FilePath(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", errors.Wrapf(err, "invalid file url %q", u)
	}
	if parsed.Scheme != "file" {
		return "", errors.Errorf("%q is not a file url", u)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		return "", errors.Errorf("file url %q names a remote host", u)
	}
	if parsed.Path == "" {
		return "", errors.Errorf("file url %q has no path", u)
	}
	return parsed.Path, nil
}
