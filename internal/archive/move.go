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

	"github.com/google/uuid"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/pkg/log"
	"github.com/metserv/wxstore/pkg/segment"
)

// fileSuffixes lists every sidecar a file-layout segment may carry,
// relative to "<relPath>.<extension>" (spec.md §3 "Segment"): the
// gzip-member data file, its offset index, the metadata envelope, and
// the cached summary.
func fileSuffixes(extension string) []string {
	base := "." + extension
	return []string{base + ".gz", base + ".gz.idx", base + ".metadata", base + ".summary"}
}

// dirSuffixes lists the sidecars a directory-layout segment may carry
// alongside its member directory, which itself has no extension.
var dirSuffixes = []string{".metadata", ".summary"}

// Move archives one segment out of the live dataset and into the
// "last" archive (creating it as Full if it doesn't exist yet),
// reindexing its rows there and removing them from the live index, in
// the manner of spec.md §4.6: "the `last` archive reindexes by
// calling its own acquire". Only the segment's sidecar files and
// index rows move; the bytes they point at are untouched, preserving
// byte-identity across the move.
func Move(ctx context.Context, datasetRoot string, liveStore *segment.Store, liveIndex dsindex.Index, archives *Archives, relPath string, useDirLayout bool) error {
	// opID ties together the log lines of one move, the only
	// identifier a multi-step operation like this carries (spec.md
	// §7's reporter events are per-segment, not per-operation).
	opID := uuid.NewString()
	log.Infof("archive: move %s: begin (op %s)", relPath, opID)

	recs, err := liveIndex.ScanSegment(ctx, relPath)
	if err != nil {
		return fmt.Errorf("archive: scan %s: %w", relPath, err)
	}

	if err := liveStore.Evict(relPath); err != nil {
		return fmt.Errorf("archive: evict %s: %w", relPath, err)
	}

	if err := moveInto(ctx, datasetRoot, liveIndex, archives, relPath, recs, useDirLayout); err != nil {
		log.Errorf("archive: move %s: failed (op %s): %v", relPath, opID, err)
		return err
	}
	log.Infof("archive: move %s: done (op %s), %d record(s)", relPath, opID, len(recs))
	return nil
}

func moveInto(ctx context.Context, datasetRoot string, liveIndex dsindex.Index, archives *Archives, relPath string, recs []dsindex.Record, useDirLayout bool) error {
	srcBase := filepath.Join(datasetRoot, relPath)
	dstBase := filepath.Join(Dir(datasetRoot), lastArchiveName, relPath)
	if err := os.MkdirAll(filepath.Dir(dstBase), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", filepath.Dir(dstBase), err)
	}

	if useDirLayout {
		if err := moveIfExists(srcBase, dstBase); err != nil {
			return err
		}
		for _, suf := range dirSuffixes {
			if err := moveIfExists(srcBase+suf, dstBase+suf); err != nil {
				return err
			}
		}
	} else {
		ext := archives.Extension
		for _, suf := range fileSuffixes(ext) {
			if err := moveIfExists(srcBase+suf, dstBase+suf); err != nil {
				return err
			}
		}
	}

	arc, err := archives.Get(lastArchiveName)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", lastArchiveName, err)
	}

	for _, rec := range recs {
		rec.ID = 0
		if err := arc.index.Replace(ctx, rec, dsindex.ReplaceAlways); err != nil {
			return fmt.Errorf("archive: reindex %x into %s: %w", rec.Fingerprint, lastArchiveName, err)
		}
		if err := liveIndex.Remove(ctx, rec.Fingerprint); err != nil {
			return fmt.Errorf("archive: deindex %x from live store: %w", rec.Fingerprint, err)
		}
	}

	return archives.InvalidateCache()
}

func moveIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archive: stat %s: %w", src, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive: move %s -> %s: %w", src, dst, err)
	}
	return nil
}
