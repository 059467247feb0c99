// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

const defaultFTPPort = "21"

// FTP fetches ftp:// URLs, logging in anonymously unless the URL carries
// credentials.
type FTP struct {
	Timeout time.Duration
}

func (f *FTP) SupportsURL(u string) bool {
	return Scheme(u) == SchemeFTP
}

func (f *FTP) FetchBytes(ctx context.Context, u string) (b []byte, err error) {
	loc, err := parseFTPURL(u)
	if err != nil {
		return nil, err
	}

	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.Timeout))
	}
	conn, err := ftp.Dial(loc.addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to %s", loc.addr)
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil && err == nil {
			err = errors.Wrap(qerr, "quit")
		}
	}()

	if err = conn.Login(loc.user, loc.password); err != nil {
		return nil, errors.Wrapf(err, "login as %s", loc.user)
	}

	resp, err := conn.Retr(loc.path)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve %s", loc.path)
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

type ftpLocation struct {
	addr           string
	path           string
	user, password string
}

func parseFTPURL(u string) (ftpLocation, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return ftpLocation{}, errors.Wrapf(err, "invalid ftp url %q", u)
	}
	p := strings.TrimPrefix(parsed.Path, "/")
	if parsed.Hostname() == "" || p == "" {
		return ftpLocation{}, errors.Wrapf(ErrUnsupported, "ftp url %q needs a host and a path", u)
	}

	port := parsed.Port()
	if port == "" {
		port = defaultFTPPort
	}
	loc := ftpLocation{
		addr:     net.JoinHostPort(parsed.Hostname(), port),
		path:     p,
		user:     "anonymous",
		password: "anonymous",
	}
	if parsed.User != nil {
		if parsed.User.Username() == "" {
			return ftpLocation{}, errors.Wrapf(ErrUnsupported, "ftp url %q has a password but no user", u)
		}
		loc.user = parsed.User.Username()
		loc.password, _ = parsed.User.Password()
	}
	return loc, nil
}
