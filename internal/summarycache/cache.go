// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package summarycache persists the per-time-bucket summary files
// described in spec.md §4.2 under a dataset's ".summaries/" directory:
// one file per calendar month, plus "all.summary" for the whole
// dataset. Writers and maintenance invalidate the buckets they mutate.
// Nothing in the module fills or reads the cache: Reader.QuerySummary
// always computes its answer from the index.
package summarycache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/metserv/wxstore/pkg/summary"
)

const dirName = ".summaries"

// Cache is the summary-file store rooted at one dataset's directory.
type Cache struct {
	dir string
}

// Open returns the cache rooted at <datasetRoot>/.summaries.
func Open(datasetRoot string) *Cache {
	return &Cache{dir: filepath.Join(datasetRoot, dirName)}
}

// AllBucket is the reserved key for the whole-dataset summary.
const AllBucket = "all"

// Bucket returns the calendar-month key a reftime instant falls into.
func Bucket(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (c *Cache) path(bucket string) string {
	return filepath.Join(c.dir, bucket+".summary")
}

// Get returns the cached Summary for bucket, if present.
func (c *Cache) Get(bucket string) (summary.Summary, bool, error) {
	s, err := summary.ReadFile(c.path(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return summary.Summary{}, false, nil
		}
		return summary.Summary{}, false, fmt.Errorf("summarycache: read %s: %w", bucket, err)
	}
	return s, true, nil
}

// Put stores s as the cached Summary for bucket, creating the
// .summaries directory on first use.
func (c *Cache) Put(bucket string, s summary.Summary) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("summarycache: mkdir: %w", err)
	}
	if err := summary.WriteFile(c.path(bucket), s); err != nil {
		return fmt.Errorf("summarycache: write %s: %w", bucket, err)
	}
	return nil
}

// Invalidate drops the cached entry for bucket and for AllBucket,
// since any per-bucket mutation also changes the whole-dataset total.
func (c *Cache) Invalidate(bucket string) error {
	for _, b := range []string{bucket, AllBucket} {
		if err := os.Remove(c.path(b)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("summarycache: invalidate %s: %w", b, err)
		}
	}
	return nil
}

// InvalidateAll drops every cached entry. Archive moves and repacks
// do not call it; they invalidate one bucket at a time via Invalidate.
func (c *Cache) InvalidateAll() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("summarycache: list: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("summarycache: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
