// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxstore

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/metserv/wxstore/internal/wxmetrics"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/errs"
)

// Registry opens and owns every dataset configured under one
// directory, the way the CLI surface of spec.md §6 addresses a whole
// archive rather than a single dataset at a time.
type Registry struct {
	Metrics  *wxmetrics.Registry
	datasets map[string]*Dataset
	order    []string
}

// OpenDir loads every "*.json" dataset configuration under dir and
// opens each one whose type is "local". Datasets of any other
// configured type (spec.md §6's "remote" and friends) are reported
// through errs.KindSkip rather than failing the whole batch (spec.md
// §7: "a dataset is unavailable or of a non-local type in a batch
// operation — reported and skipped, never fatal to the batch").
func OpenDir(dir string, metrics *wxmetrics.Registry) (*Registry, []error) {
	cfgs, err := dsconfig.LoadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("wxstore: load %s: %w", dir, err)}
	}
	return OpenAll(cfgs, metrics)
}

// OpenAll opens every already-loaded dataset configuration whose type
// is "local", the way OpenDir does once it has its configs in hand.
// This is the entry point a caller with its own config-discovery
// logic (e.g. the wxcheck CLI's repeatable "-C <file-or-dir>" flag)
// uses instead of OpenDir.
func OpenAll(cfgs []*dsconfig.Dataset, metrics *wxmetrics.Registry) (*Registry, []error) {
	reg := &Registry{Metrics: metrics, datasets: make(map[string]*Dataset, len(cfgs))}
	var skipped []error
	for _, cfg := range cfgs {
		if cfg.Type != "" && cfg.Type != "local" {
			skipped = append(skipped, errs.New(errs.KindSkip, cfg.Name, "open", fmt.Errorf("dataset type %q is not local", cfg.Type)))
			continue
		}
		ds, err := Open(cfg, metrics)
		if err != nil {
			skipped = append(skipped, errs.New(errs.KindIO, cfg.Name, "open", err))
			continue
		}
		reg.datasets[cfg.Name] = ds
		reg.order = append(reg.order, cfg.Name)
	}
	return reg, skipped
}

// Names returns every successfully opened dataset's name, in
// configuration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Get returns the opened Dataset named name, if any.
func (r *Registry) Get(name string) (*Dataset, bool) {
	d, ok := r.datasets[name]
	return d, ok
}

// Restrict returns the subset of names present in both r and the
// given restriction list; an empty restriction list means "every
// dataset", matching the CLI's "--restrict=<names>" default.
func (r *Registry) Restrict(names []string) []string {
	if len(names) == 0 {
		return r.Names()
	}
	want := mapset.NewSet[string]()
	for _, n := range names {
		want.Add(n)
	}
	var out []string
	for _, name := range r.order {
		if want.Contains(name) {
			out = append(out, name)
		}
	}
	return out
}

// Close closes every opened dataset, collecting but not stopping on
// individual close errors.
func (r *Registry) Close() []error {
	var out []error
	for _, name := range r.order {
		if err := r.datasets[name].Close(); err != nil {
			out = append(out, fmt.Errorf("wxstore: close %s: %w", name, err))
		}
	}
	return out
}
