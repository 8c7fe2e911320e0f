// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/metserv/wxstore/internal/archive"
	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/summarycache"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/metadata"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/scanner"
	"github.com/metserv/wxstore/pkg/summary"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// repack rewrites relPath so its bytes hold exactly the messages the
// index still claims, in reftime order, then updates every row's
// offset to match (spec.md §4.5 "Repack of a single segment").
func (e *Engine) repack(ctx context.Context, relPath string) error {
	recs, err := e.Index.ScanSegment(ctx, relPath)
	if err != nil {
		return fmt.Errorf("repack: scan %s: %w", relPath, err)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Reftime.Begin.Equal(recs[j].Reftime.Begin) {
			return recs[i].Reftime.Begin.Before(recs[j].Reftime.Begin)
		}
		return recs[i].Offset < recs[j].Offset
	})

	layout, err := e.Store.Open(relPath)
	if err != nil {
		return fmt.Errorf("repack: open %s: %w", relPath, err)
	}

	keep := make([]int64, len(recs))
	for i, r := range recs {
		keep[i] = r.Offset
	}
	remap, err := layout.Repack(keep)
	if err != nil {
		return fmt.Errorf("repack: rewrite %s: %w", relPath, err)
	}

	for _, r := range recs {
		newOffset, ok := remap[r.Offset]
		if !ok {
			return fmt.Errorf("repack: %s: no remap for offset %d", relPath, r.Offset)
		}
		r.Offset = newOffset
		if err := e.Index.Replace(ctx, r, dsindex.ReplaceAlways); err != nil {
			return fmt.Errorf("repack: reindex %x at new offset: %w", r.Fingerprint, err)
		}
	}

	if err := e.writeSidecars(ctx, relPath, recs); err != nil {
		return err
	}
	return e.invalidateSummaries(relPath, recs)
}

// reindex scans a physically-present segment the index doesn't know
// about at all and inserts every message it finds (spec.md
// StateNeedsIndex: "freshly imported, not yet indexed").
func (e *Engine) reindex(ctx context.Context, relPath string) error {
	return e.scanAndIndex(ctx, relPath, false)
}

// rescan discards whatever the index currently believes about
// relPath and rebuilds it from the physical bytes (spec.md §4.5
// "Rescan of a single segment"): later occurrences of a duplicate
// fingerprint win, matching the original scan order.
func (e *Engine) rescan(ctx context.Context, relPath string) error {
	return e.scanAndIndex(ctx, relPath, true)
}

func (e *Engine) scanAndIndex(ctx context.Context, relPath string, clearFirst bool) error {
	if clearFirst {
		existing, err := e.Index.ScanSegment(ctx, relPath)
		if err != nil {
			return fmt.Errorf("rescan: scan index for %s: %w", relPath, err)
		}
		for _, r := range existing {
			if err := e.Index.Remove(ctx, r.Fingerprint); err != nil {
				return fmt.Errorf("rescan: deindex %x: %w", r.Fingerprint, err)
			}
		}
	}

	format, err := e.Dataset.MessageFormat()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	sc, err := scanner.Lookup(format)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	uniqueKeys, err := parseCodes(e.Dataset.Unique)
	if err != nil {
		return fmt.Errorf("scan: unique keys: %w", err)
	}
	indexKeys, err := parseCodes(e.Dataset.Index)
	if err != nil {
		return fmt.Errorf("scan: index keys: %w", err)
	}

	abs := filepath.Join(e.Root, relPath)
	var recs []dsindex.Record
	err = sc.Scan(abs, func(rec scanner.Record) error {
		m := message.New(format, message.Blob(relPath, rec.Offset, rec.Size))
		for _, it := range rec.Items {
			m.Set(it)
		}
		rtItem, ok := m.Get(wxtype.CodeReftime)
		if !ok {
			return fmt.Errorf("scan: %s@%d has no reftime", relPath, rec.Offset)
		}
		rt, err := reftime.FromItem(rtItem)
		if err != nil {
			return err
		}
		fp := m.Fingerprint(uniqueKeys)
		idxRec := dsindex.Record{
			Fingerprint: fp,
			Segment:     relPath,
			Offset:      rec.Offset,
			Size:        rec.Size,
			Reftime:     rt,
			Items:       filterItems(m, indexKeys),
		}
		recs = append(recs, idxRec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan: %s: %w", relPath, err)
	}

	// Later occurrences of a duplicate fingerprint win (spec.md §4.5).
	for _, r := range recs {
		if err := e.Index.Replace(ctx, r, dsindex.ReplaceAlways); err != nil {
			return fmt.Errorf("scan: index %x: %w", r.Fingerprint, err)
		}
	}

	if err := e.writeSidecars(ctx, relPath, recs); err != nil {
		return err
	}
	return e.invalidateSummaries(relPath, recs)
}

func filterItems(m *message.Message, indexKeys []wxtype.Code) []wxtype.Item {
	indexed := make(map[wxtype.Code]bool, len(indexKeys))
	for _, c := range indexKeys {
		indexed[c] = true
	}
	var out []wxtype.Item
	for _, c := range m.Codes() {
		if len(indexKeys) > 0 && !indexed[c] {
			continue
		}
		it, _ := m.Get(c)
		out = append(out, it)
	}
	return out
}

func parseCodes(names []string) ([]wxtype.Code, error) {
	out := make([]wxtype.Code, 0, len(names))
	for _, n := range names {
		c, err := wxtype.ParseCode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// RemoveSegment deletes relPath's index rows, sidecars, and backing
// segment unconditionally, regardless of its classification state.
// This is the operation the CLI's "--remove-all" and
// "--remove=<metafile>" flags drive (spec.md §6); a normal Run reaches
// the same delete action only for StateNeedsDelete segments and, in
// repack mode, orphan StateNeedsIndex segments.
func (e *Engine) RemoveSegment(ctx context.Context, relPath string) error {
	return e.delete(ctx, relPath)
}

// delete removes a segment's physical bytes, sidecars, and index rows
// entirely: used for StateNeedsDelete (age-based) and for orphan
// StateNeedsIndex segments a repack pass decides aren't worth
// indexing (spec.md §4.5 "repack ... deletes needs-delete and orphan
// needs-index").
func (e *Engine) delete(ctx context.Context, relPath string) error {
	recs, err := e.Index.ScanSegment(ctx, relPath)
	if err != nil {
		return fmt.Errorf("delete: scan index for %s: %w", relPath, err)
	}
	for _, r := range recs {
		if err := e.Index.Remove(ctx, r.Fingerprint); err != nil {
			return fmt.Errorf("delete: deindex %x: %w", r.Fingerprint, err)
		}
	}
	layout, err := e.Store.Open(relPath)
	if err != nil {
		return fmt.Errorf("delete: open %s: %w", relPath, err)
	}
	if err := layout.Remove(); err != nil {
		return fmt.Errorf("delete: remove %s: %w", relPath, err)
	}
	if err := e.Store.Evict(relPath); err != nil {
		return fmt.Errorf("delete: evict %s: %w", relPath, err)
	}
	e.removeSidecars(relPath)
	return e.invalidateSummaries(relPath, nil)
}

// deindexArchived drops a segment's rows from whichever index this
// Engine owns (spec.md StateNeedsDeindex): on the live dataset this
// fires when a segment has been moved into an archive already, or
// when its physical bytes vanished out from under the index some
// other way; on a per-archive sub-Engine it fires the same way
// against that archive's own manifest.
func (e *Engine) deindexArchived(ctx context.Context, relPath string) error {
	recs, err := e.Index.ScanSegment(ctx, relPath)
	if err != nil {
		return fmt.Errorf("deindex: scan %s: %w", relPath, err)
	}
	for _, r := range recs {
		if err := e.Index.Remove(ctx, r.Fingerprint); err != nil {
			return fmt.Errorf("deindex: remove %x: %w", r.Fingerprint, err)
		}
	}
	return e.invalidateSummaries(relPath, nil)
}

// archiveSegment moves relPath into the "last" archive (spec.md
// §4.6). It returns an error when the Engine has no Archives registry;
// a dataset with archive_age unset never classifies StateNeedsArchive
// in the first place.
func (e *Engine) archiveSegment(ctx context.Context, relPath string) error {
	if e.Archives == nil {
		return fmt.Errorf("archive: %s needs archiving but no archive registry is configured", relPath)
	}
	useDir := e.Dataset.LayoutOrDefault() == dsconfig.LayoutDir
	if err := archive.Move(ctx, e.Root, e.Store, e.Index, e.Archives, relPath, useDir); err != nil {
		return err
	}
	return e.invalidateSummaries(relPath, nil)
}

func (e *Engine) invalidateSummaries(relPath string, recs []dsindex.Record) error {
	if e.Summaries == nil {
		return nil
	}
	bucket := summarycache.AllBucket
	if len(recs) > 0 {
		bucket = summarycache.Bucket(recs[0].Reftime.Begin)
	}
	if err := e.Summaries.Invalidate(bucket); err != nil {
		return fmt.Errorf("invalidate summary cache for %s: %w", relPath, err)
	}
	return nil
}

// writeSidecars rewrites "<segment>.metadata" (the concatenated
// binary envelope of every record's items) and "<segment>.summary"
// (their aggregate) after a repack/reindex/rescan, so a later removal
// of either sidecar is detectable (spec.md P5).
func (e *Engine) writeSidecars(ctx context.Context, relPath string, recs []dsindex.Record) error {
	base := e.sidecarBase(relPath)

	metaRecords := make([]metadata.Record, len(recs))
	for i, r := range recs {
		metaRecords[i] = metadata.Record{Items: r.Items}
	}
	metaPath := base + ".metadata"
	if err := metadata.WriteFile(metaPath, metaRecords); err != nil {
		return fmt.Errorf("write %s: %w", metaPath, err)
	}

	var s summary.Summary
	var times []reftime.Time
	for _, r := range recs {
		s.Count++
		s.Size += r.Size
		times = append(times, r.Reftime)
	}
	if len(times) > 0 {
		rt := reftime.Merge(times)
		s.Reftime = &rt
	}
	sumPath := base + ".summary"
	if err := summary.WriteFile(sumPath, s); err != nil {
		return fmt.Errorf("write %s: %w", sumPath, err)
	}
	return nil
}

func (e *Engine) removeSidecars(relPath string) {
	base := e.sidecarBase(relPath)
	os.Remove(base + ".metadata")
	os.Remove(base + ".summary")
}

func (e *Engine) sidecarBase(relPath string) string {
	return e.Dataset.SidecarBase(e.Root, relPath)
}
