// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wxstore wires the core's subsystems together into one
// dataset handle: configuration, segment store, index, writer,
// reader, maintenance engine, and archive layer (spec.md §2's control
// flow diagrams). Everything below this package can be exercised
// independently and in isolation for testing; wxstore.Open is the
// convenience path a CLI or daemon actually uses to stand one up from
// a dataset configuration file.
package wxstore

import (
	"fmt"
	"path/filepath"

	"github.com/metserv/wxstore/internal/archive"
	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/internal/dsindex/sqlbackend"
	"github.com/metserv/wxstore/internal/dslock"
	"github.com/metserv/wxstore/internal/maintenance"
	"github.com/metserv/wxstore/internal/reader"
	"github.com/metserv/wxstore/internal/summarycache"
	"github.com/metserv/wxstore/internal/wxmetrics"
	"github.com/metserv/wxstore/internal/writer"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/log"
	"github.com/metserv/wxstore/pkg/segment"
)

// Dataset is one fully-opened dataset: its config plus every
// subsystem handle bound to it.
type Dataset struct {
	Config *dsconfig.Dataset

	Writer   *writer.Writer
	Reader   *reader.Reader
	Engine   *maintenance.Engine
	Archives *archive.Archives

	index     dsindex.Index
	summaries *summarycache.Cache
}

// Open builds every subsystem for cfg and wires them together exactly
// as the control-flow diagrams of spec.md §2 describe: writer and
// reader share one segment store and index; the maintenance engine
// additionally owns the archive registry and invalidates the same
// summary cache the writer does. The writer and the engine also share
// one dslock.WriterLock, enforcing spec.md §5's "at most one writer or
// one maintenance agent at a time"; the reader never takes it. metrics
// may be nil, in which case no Prometheus collectors are populated.
func Open(cfg *dsconfig.Dataset, metrics *wxmetrics.Registry) (*Dataset, error) {
	format, err := cfg.MessageFormat()
	if err != nil {
		return nil, fmt.Errorf("wxstore: %s: %w", cfg.Name, err)
	}
	useDir := cfg.LayoutOrDefault() == dsconfig.LayoutDir
	store := segment.NewStore(cfg.Path, useDir, format.Extension())

	idx, err := openIndex(cfg)
	if err != nil {
		store.CloseAll()
		return nil, fmt.Errorf("wxstore: %s: open index: %w", cfg.Name, err)
	}

	summaries := summarycache.Open(cfg.Path)
	lock := &dslock.WriterLock{}

	w, err := writer.New(cfg, store, idx)
	if err != nil {
		idx.Close()
		store.CloseAll()
		return nil, fmt.Errorf("wxstore: %s: build writer: %w", cfg.Name, err)
	}
	w.Summaries = summaries
	w.Metrics = metrics
	w.Lock = lock

	r := reader.New(cfg, store, idx)

	archives, err := archive.Discover(cfg.Path, useDir, format.Extension())
	if err != nil {
		idx.Close()
		store.CloseAll()
		return nil, fmt.Errorf("wxstore: %s: discover archives: %w", cfg.Name, err)
	}

	eng := maintenance.New(cfg, store, idx, cfg.Path)
	eng.Archives = archives
	eng.Summaries = summaries
	eng.Metrics = metrics
	eng.Reporter = log.NewReporter()
	eng.Lock = lock

	return &Dataset{
		Config:    cfg,
		Writer:    w,
		Reader:    r,
		Engine:    eng,
		Archives:  archives,
		index:     idx,
		summaries: summaries,
	}, nil
}

// Close flushes the pooled segment handles and closes the index and
// every discovered archive, per spec.md §4.3's "flush" operation.
func (d *Dataset) Close() error {
	var first error
	if err := d.Writer.Store.CloseAll(); err != nil {
		first = err
	}
	if err := d.index.Close(); err != nil && first == nil {
		first = err
	}
	if d.Archives != nil {
		if err := d.Archives.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openIndex(cfg *dsconfig.Dataset) (dsindex.Index, error) {
	switch cfg.IndexTypeOrDefault() {
	case dsconfig.IndexManifest:
		return manifest.Open(filepath.Join(cfg.Path, "index.manifest"))
	default:
		return sqlbackend.Open(filepath.Join(cfg.Path, "index.sqlite"))
	}
}

