// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archive implements the two-tier storage model of spec.md
// §4.6: aged segments move under "<root>/.archive/<name>/", each a
// simplified, read-mostly store of its own. Three variants exist:
//
//   - Full: a complete per-message manifest index plus the moved
//     segments, queryable exactly like the live dataset.
//   - SummaryOnly: the segments' ".summary" sidecars survive, but
//     their data and per-message index do not; summary queries work,
//     data queries return a descriptive note (spec.md invariant I2's
//     one documented exception).
//   - DirSummary: not even the sidecars remain, only a single
//     "<name>.summary" file at the archive root; the archive is
//     otherwise invisible.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/summary"
)

// Kind distinguishes the three archive storage variants.
type Kind uint8

const (
	KindFull Kind = iota
	KindSummaryOnly
	KindDirSummary
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindSummaryOnly:
		return "summary-only"
	case KindDirSummary:
		return "dir-summary"
	default:
		return "unknown"
	}
}

// ErrOfflineData is returned by QueryData against a SummaryOnly or
// DirSummary archive: the caller should fall back to a summary query
// and surface a note to the end user, per spec.md I2.
var ErrOfflineData = errors.New("archive: segment data is offline; only a summary is available")

// Archive is one named archive directory beneath a dataset's
// ".archive/" subdirectory (or, for DirSummary, a bare summary file
// with no directory at all).
type Archive struct {
	Name string
	Kind Kind

	// root is the archive's own directory ("" for DirSummary).
	root string

	index dsindex.Index
	store *segment.Store

	// dirSummaryPath is set only for DirSummary archives: the single
	// file holding the whole archive's aggregate.
	dirSummaryPath string
}

// dirName is the subdirectory under a dataset root that holds every
// named archive.
const dirName = ".archive"

// Dir returns "<datasetRoot>/.archive".
func Dir(datasetRoot string) string { return filepath.Join(datasetRoot, dirName) }

// manifestFile is the per-archive index file name inside a Full
// archive's own root.
const manifestFile = "index.manifest"

// OpenFull opens (creating if necessary) a Full archive named name
// under datasetRoot. useDirLayout/extension mirror the live dataset's
// segment.NewStore configuration, since archived segments keep their
// original layout.
func OpenFull(datasetRoot, name string, useDirLayout bool, extension string) (*Archive, error) {
	root := filepath.Join(Dir(datasetRoot), name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", root, err)
	}
	idx, err := manifest.Open(filepath.Join(root, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("archive: open manifest for %s: %w", name, err)
	}
	return &Archive{
		Name:  name,
		Kind:  KindFull,
		root:  root,
		index: idx,
		store: segment.NewStore(root, useDirLayout, extension),
	}, nil
}

// OpenSummaryOnly opens a SummaryOnly archive: its directory holds
// "<segment>.summary" sidecars but no data and no per-message index.
func OpenSummaryOnly(datasetRoot, name string) *Archive {
	return &Archive{Name: name, Kind: KindSummaryOnly, root: filepath.Join(Dir(datasetRoot), name)}
}

// OpenDirSummary opens a DirSummary archive: no directory at all,
// just "<datasetRoot>/.archive/<name>.summary".
func OpenDirSummary(datasetRoot, name string) *Archive {
	return &Archive{Name: name, Kind: KindDirSummary, dirSummaryPath: filepath.Join(Dir(datasetRoot), name+".summary")}
}

// Index returns the archive's per-message index, or nil for the
// SummaryOnly and DirSummary variants.
func (a *Archive) Index() dsindex.Index { return a.index }

// Store returns the archive's segment store, or nil for the
// SummaryOnly and DirSummary variants.
func (a *Archive) Store() *segment.Store { return a.store }

// Root returns the archive's own directory, or "" for DirSummary.
func (a *Archive) Root() string { return a.root }

// Close releases the archive's index and store resources.
func (a *Archive) Close() error {
	var err error
	if a.index != nil {
		err = a.index.Close()
	}
	if a.store != nil {
		if serr := a.store.CloseAll(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// Summary aggregates every record in the archive matching q. For Full
// archives it delegates to the per-message index; for SummaryOnly it
// merges the per-segment ".summary" sidecars whose reftime could
// match; for DirSummary it returns the single stored aggregate
// unfiltered, since no finer granularity survives.
func (a *Archive) Summary(ctx context.Context, q dsindex.Query) (summary.Summary, error) {
	switch a.Kind {
	case KindFull:
		s, err := a.index.Summary(ctx, q)
		if err != nil {
			return summary.Summary{}, err
		}
		out := summary.Summary{Count: s.Count, Size: s.Size, Reftime: s.Reftime}
		return out, nil
	case KindSummaryOnly:
		return a.mergeSidecarSummaries(q)
	case KindDirSummary:
		s, err := summary.ReadFile(a.dirSummaryPath)
		if err != nil {
			if os.IsNotExist(err) {
				return summary.Summary{}, nil
			}
			return summary.Summary{}, fmt.Errorf("archive: read %s: %w", a.dirSummaryPath, err)
		}
		return s, nil
	default:
		return summary.Summary{}, fmt.Errorf("archive: unknown kind %v", a.Kind)
	}
}

func (a *Archive) mergeSidecarSummaries(q dsindex.Query) (summary.Summary, error) {
	var out summary.Summary
	err := filepath.WalkDir(a.root, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".summary" {
			return nil
		}
		s, err := summary.ReadFile(path)
		if err != nil {
			return fmt.Errorf("archive: read %s: %w", path, err)
		}
		if q.Reftime != nil && s.Reftime != nil && !q.Reftime.Overlaps(*s.Reftime) {
			return nil
		}
		out.Add(s)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return summary.Summary{}, nil
		}
		return out, fmt.Errorf("archive: list %s: %w", a.root, err)
	}
	return out, nil
}

// QueryData resolves every record matching q and reads its bytes, for
// a Full archive only; SummaryOnly and DirSummary archives return
// ErrOfflineData.
func (a *Archive) QueryData(ctx context.Context, q dsindex.Query) ([]dsindex.Record, [][]byte, error) {
	if a.Kind != KindFull {
		return nil, nil, ErrOfflineData
	}
	recs, err := a.index.Query(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: query %s: %w", a.Name, err)
	}
	raw := make([][]byte, len(recs))
	for i, rec := range recs {
		layout, err := a.store.Open(rec.Segment)
		if err != nil {
			return nil, nil, fmt.Errorf("archive: open segment %s: %w", rec.Segment, err)
		}
		b, err := layout.ReadAt(rec.Offset, rec.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("archive: read %s@%d: %w", rec.Segment, rec.Offset, err)
		}
		raw[i] = b
	}
	return recs, raw, nil
}

// Stats reports the archive's record count, total byte size, and
// reftime extent across everything it holds, regardless of any
// filter.
func (a *Archive) Stats(ctx context.Context) (summary.Summary, error) {
	return a.Summary(ctx, dsindex.Query{})
}
