// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// HTTP fetches http URLs, and https URLs when Secure is set.
type HTTP struct {
	Client *http.Client
	Secure bool
}

func (h *HTTP) SupportsURL(url string) bool {
	switch Scheme(url) {
	case "http":
		return true
	case SchemeHTTPS:
		return h.Secure
	}
	return false
}

func (h *HTTP) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := http.Client{}
	if h.Client != nil {
		client = *h.Client
	}
	client.CheckRedirect = h.checkRedirect

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Errorf("unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	return b, nil
}

// checkRedirect keeps redirects within the schemes h was enabled for.
func (h *HTTP) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if !h.SupportsURL(req.URL.String()) {
		return errors.Errorf("refusing redirect to %s: scheme %q is not enabled", req.URL.Redacted(), req.URL.Scheme)
	}
	return nil
}
