// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/pkg/summary"
)

// lastArchiveName is the conventional destination of age-based
// archiving moves (spec.md §4.6); operators may also create
// additional named archives by hand for longer-term cold storage.
const lastArchiveName = "last"

// LastArchiveName returns the name of the archive age-based
// maintenance moves segments into.
func LastArchiveName() string { return lastArchiveName }

// combinedSummaryPath is the cache file covering every archive at
// once, consulted for summary queries that don't constrain reftime
// (spec.md §4.6).
func combinedSummaryPath(datasetRoot string) string {
	return filepath.Join(datasetRoot, ".summaries", "archives.summary")
}

// Archives aggregates every named archive beneath one dataset's
// ".archive/" directory so a Reader can query "the live store plus
// everything archived" without knowing how many archives exist or how
// they're each stored.
type Archives struct {
	DatasetRoot   string
	UseDirLayout  bool
	Extension     string
	list          []*Archive
}

// Discover enumerates every archive under datasetRoot's ".archive/"
// directory: a subdirectory with its own manifest is Full, a
// subdirectory without one is SummaryOnly, and a bare "<name>.summary"
// file with no matching subdirectory is DirSummary.
func Discover(datasetRoot string, useDirLayout bool, extension string) (*Archives, error) {
	a := &Archives{DatasetRoot: datasetRoot, UseDirLayout: useDirLayout, Extension: extension}

	dir := Dir(datasetRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("archive: list %s: %w", dir, err)
	}

	seenDirs := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		seenDirs[e.Name()] = true
		if _, err := os.Stat(filepath.Join(dir, e.Name(), manifestFile)); err == nil {
			full, err := OpenFull(datasetRoot, e.Name(), useDirLayout, extension)
			if err != nil {
				return nil, err
			}
			a.list = append(a.list, full)
		} else {
			a.list = append(a.list, OpenSummaryOnly(datasetRoot, e.Name()))
		}
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".summary") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".summary")
		if seenDirs[name] {
			continue
		}
		a.list = append(a.list, OpenDirSummary(datasetRoot, name))
	}
	return a, nil
}

// List returns every discovered archive.
func (a *Archives) List() []*Archive { return a.list }

// Get returns the archive named name, opening it as Full (creating it
// if absent) when it isn't already discovered — the path the "last"
// archive takes the first time maintenance archives a segment into
// it.
func (a *Archives) Get(name string) (*Archive, error) {
	for _, ar := range a.list {
		if ar.Name == name {
			return ar, nil
		}
	}
	ar, err := OpenFull(a.DatasetRoot, name, a.UseDirLayout, a.Extension)
	if err != nil {
		return nil, err
	}
	a.list = append(a.list, ar)
	return ar, nil
}

// Close releases every discovered archive's resources.
func (a *Archives) Close() error {
	var first error
	for _, ar := range a.list {
		if err := ar.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Summary aggregates every archive's Summary matching q. When q
// carries no predicate at all it consults (and repopulates) the
// combined ".summaries/archives.summary" cache rather than visiting
// every archive.
func (a *Archives) Summary(ctx context.Context, q dsindex.Query) (summary.Summary, error) {
	if q.Reftime == nil && len(q.Equal) == 0 {
		if cached, err := summary.ReadFile(combinedSummaryPath(a.DatasetRoot)); err == nil {
			return cached, nil
		}
	}

	var out summary.Summary
	for _, ar := range a.list {
		s, err := ar.Summary(ctx, q)
		if err != nil {
			return summary.Summary{}, fmt.Errorf("archive: summary for %s: %w", ar.Name, err)
		}
		out.Add(s)
	}

	if q.Reftime == nil && len(q.Equal) == 0 {
		if err := a.writeCombinedCache(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (a *Archives) writeCombinedCache(s summary.Summary) error {
	path := combinedSummaryPath(a.DatasetRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := summary.WriteFile(path, s); err != nil {
		return fmt.Errorf("archive: write combined summary: %w", err)
	}
	return nil
}

// InvalidateCache drops the combined archives.summary cache; Move
// calls it after relocating a segment into an archive.
func (a *Archives) InvalidateCache() error {
	if err := os.Remove(combinedSummaryPath(a.DatasetRoot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: invalidate combined summary: %w", err)
	}
	return nil
}

// QueryData resolves q against every Full archive that could match,
// skipping SummaryOnly/DirSummary archives (spec.md I2): for those,
// callers should fall back to Summary and report ErrOfflineData's
// note instead of failing the whole query.
func (a *Archives) QueryData(ctx context.Context, q dsindex.Query) ([]dsindex.Record, [][]byte, []string, error) {
	var recs []dsindex.Record
	var raw [][]byte
	var offline []string
	for _, ar := range a.list {
		if ar.Kind != KindFull {
			if s, err := ar.Summary(ctx, q); err == nil && s.Count > 0 {
				offline = append(offline, ar.Name)
			}
			continue
		}
		r, b, err := ar.QueryData(ctx, q)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("archive: query data in %s: %w", ar.Name, err)
		}
		recs = append(recs, r...)
		raw = append(raw, b...)
	}
	return recs, raw, offline, nil
}
