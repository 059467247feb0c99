// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const metricsNamespace = "cosmos"

// Metrics collects counters for one process and times the stages of the
// operation in progress. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	installs   *prometheus.CounterVec
	uninstalls *prometheus.CounterVec
	fetches    *prometheus.CounterVec
	fetchBytes *prometheus.CounterVec
	stageTime  *prometheus.HistogramVec

	// stage timer; the bottom of the stack is "other"
	stack  []string
	starts []time.Time
	times  map[string]time.Duration
	last   time.Time
}

// NewMetrics returns metrics registered on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		installs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "installs_total",
			Help:      "Star installs attempted, by star type and result.",
		}, []string{"type", "result"}),
		uninstalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uninstalls_total",
			Help:      "Star uninstalls attempted, by result.",
		}, []string{"result"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "transport",
			Name:      "fetches_total",
			Help:      "Remote fetches, by scheme and result.",
		}, []string{"scheme", "result"}),
		fetchBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "transport",
			Name:      "fetched_bytes_total",
			Help:      "Bytes fetched, by scheme.",
		}, []string{"scheme"}),
		stageTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each install stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stack:  []string{"other"},
		starts: []time.Time{time.Now()},
		times:  map[string]time.Duration{"other": 0},
		last:   time.Now(),
	}
}

// Registry exposes the collectors, e.g. to a pushgateway or test gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the collected metrics in the node exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "cannot write metrics to %s", path)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeFetch(scheme string, n int, err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(scheme, result(err)).Inc()
	m.fetchBytes.WithLabelValues(scheme).Add(float64(n))
}

func (m *Metrics) observeInstall(t StarType, err error) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(string(t), result(err)).Inc()
}

func (m *Metrics) observeUninstall(err error) {
	if m == nil {
		return
	}
	m.uninstalls.WithLabelValues(result(err)).Inc()
}

// push starts the named stage. Time spent until the matching pop is
// charged to name rather than to the enclosing stage.
func (m *Metrics) push(name string) {
	if m == nil {
		return
	}
	cn := m.stack[len(m.stack)-1]
	m.times[cn] += time.Since(m.last)

	m.stack = append(m.stack, name)
	m.starts = append(m.starts, time.Now())
	m.last = time.Now()
}

func (m *Metrics) pop() {
	if m == nil || len(m.stack) == 1 {
		return
	}
	on := m.stack[len(m.stack)-1]
	m.times[on] += time.Since(m.last)
	m.stageTime.WithLabelValues(on).Observe(time.Since(m.starts[len(m.starts)-1]).Seconds())

	m.stack = m.stack[:len(m.stack)-1]
	m.starts = m.starts[:len(m.starts)-1]
	m.last = time.Now()
}

// StageTimes returns the exclusive time charged to each stage so far.
func (m *Metrics) StageTimes() map[string]time.Duration {
	if m == nil {
		return nil
	}
	out := make(map[string]time.Duration, len(m.times))
	for k, v := range m.times {
		out[k] = v
	}
	return out
}

// dump logs the stage times, longest first.
func (m *Metrics) dump(l *logrus.Logger) {
	if m == nil {
		return
	}
	type stage struct {
		name string
		d    time.Duration
	}
	var stages []stage
	var total time.Duration
	for name, d := range m.times {
		stages = append(stages, stage{name, d})
		total += d
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].d > stages[j].d })

	for _, s := range stages {
		l.WithFields(logrus.Fields{"stage": s.name, "time": s.d}).Debug("stage timing")
	}
	l.WithField("time", total).Debug("total operation time")
}
