// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"errors"
	"strings"
	"testing"

	"github.com/cosmos-pm/cosmos/internal/test"
	"github.com/cosmos-pm/cosmos/universe"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.push("x")
	m.pop()
	m.observeFetch("http", 10, nil)
	m.observeInstall(TypeNormal, nil)
	m.observeUninstall(nil)
	m.dump(test.Logger(t))
	if m.StageTimes() != nil || m.Registry() != nil {
		t.Fatal("expected nil metrics to report nothing")
	}
	if err := m.WriteTextfile("unused"); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsStages(t *testing.T) {
	m := NewMetrics()
	m.push("outer")
	m.push("inner")
	m.pop()
	m.pop()
	m.pop() // unbalanced pops are ignored

	times := m.StageTimes()
	for _, name := range []string{"other", "outer", "inner"} {
		if _, ok := times[name]; !ok {
			t.Fatalf("expected a time for %s, got: %v", name, times)
		}
	}
	if n := testutil.CollectAndCount(m.stageTime); n != 2 {
		t.Fatalf("expected 2 stage series, got: %d", n)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.observeFetch("http", 100, nil)
	m.observeFetch("http", 0, errors.New("boom"))
	m.observeInstall(TypeMeta, nil)

	if got := testutil.ToFloat64(m.fetches.WithLabelValues("http", "error")); got != 1 {
		t.Fatalf("expected: 1, got: %v", got)
	}
	if got := testutil.ToFloat64(m.fetchBytes.WithLabelValues("http")); got != 100 {
		t.Fatalf("expected: 100, got: %v", got)
	}

	h := test.NewHelper(t)
	defer h.Cleanup()
	h.TempDir("out")
	h.Must(m.WriteTextfile(h.Path("out/cosmos.prom")))
	if got := h.ReadFile(h.Path("out/cosmos.prom")); !strings.Contains(got, `cosmos_installs_total{result="ok",type="meta"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", got)
	}
}

func TestInstallRecordsMetrics(t *testing.T) {
	f := newGalaxyFixture(t)
	f.addStar(&Star{Name: "tool", Version: "1.0.0"}, test.File("files/bin/tool", "tool"))
	c := f.ctx()
	c.Metrics = NewMetrics()
	u := universe.New("amd64")

	if _, err := install(t, f, c, u, "tool"); err != nil {
		t.Fatal(err)
	}
	if err := c.UninstallStar("tool", u); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(c.Metrics.installs.WithLabelValues("normal", "ok")); got != 1 {
		t.Fatalf("expected: 1, got: %v", got)
	}
	if got := testutil.ToFloat64(c.Metrics.uninstalls.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected: 1, got: %v", got)
	}
	times := c.Metrics.StageTimes()
	for _, stage := range []string{"plan", "acquire", "verify-artifact", "extract", "verify-files", "action"} {
		if _, ok := times[stage]; !ok {
			t.Fatalf("expected a time for stage %s, got: %v", stage, times)
		}
	}
}
