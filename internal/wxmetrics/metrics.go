// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wxmetrics exposes the Prometheus collectors an embedder can
// register under its own "/metrics" route: acquire outcomes, segment
// maintenance states, and maintenance run duration. wxstore's core has
// no HTTP surface of its own (spec.md §1 places the front end out of
// scope), so this package only builds and populates the collectors; it
// never starts a listener.
package wxmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors one wxstore deployment reports.
// Each collector is labeled by dataset name so a single Registry can
// be shared across every dataset a process manages.
type Registry struct {
	reg *prometheus.Registry

	acquireTotal    *prometheus.CounterVec
	segmentState    *prometheus.GaugeVec
	maintenanceRuns *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// New builds a Registry backed by its own prometheus.Registry rather
// than the global default, so tests and multiple embedders in one
// process never collide over collector registration.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		acquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wxstore",
			Name:      "acquire_total",
			Help:      "Acquire attempts per dataset, by outcome (written, skipped, error).",
		}, []string{"dataset", "outcome"}),
		segmentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wxstore",
			Name:      "segment_state",
			Help:      "Number of segments last observed in a given maintenance state, by dataset.",
		}, []string{"dataset", "state"}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wxstore",
			Name:      "maintenance_runs_total",
			Help:      "Completed maintenance runs per dataset.",
		}, []string{"dataset"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wxstore",
			Name:      "maintenance_run_seconds",
			Help:      "Wall-clock duration of a maintenance run, by dataset.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dataset"}),
	}
	reg.MustRegister(r.acquireTotal, r.segmentState, r.maintenanceRuns, r.runDuration)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer so an embedder
// can plug it into its own promhttp.Handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveAcquire records one writer.Acquire outcome: "written",
// "skipped" (rejected by the replace policy), or "error".
func (r *Registry) ObserveAcquire(dataset, outcome string) {
	if r == nil {
		return
	}
	r.acquireTotal.WithLabelValues(dataset, outcome).Inc()
}

// ObserveClassification resets and repopulates the segment-state gauge
// for dataset from one maintenance pass's classification counts.
func (r *Registry) ObserveClassification(dataset string, counts map[string]int) {
	if r == nil {
		return
	}
	r.segmentState.DeletePartialMatch(prometheus.Labels{"dataset": dataset})
	for state, n := range counts {
		r.segmentState.WithLabelValues(dataset, state).Set(float64(n))
	}
}

// ObserveRun records the duration and completion of a maintenance run
// for dataset.
func (r *Registry) ObserveRun(dataset string, d time.Duration) {
	if r == nil {
		return
	}
	r.maintenanceRuns.WithLabelValues(dataset).Inc()
	r.runDuration.WithLabelValues(dataset).Observe(d.Seconds())
}
