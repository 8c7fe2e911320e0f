// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package maintenance classifies every segment of a dataset into the
// action it needs (repack, reindex, rescan, delete, archive, ...) by
// comparing the segment store's physical state against what the
// index believes is there, then runs the corresponding agent.
package maintenance

import "fmt"

// State is the maintenance classification of one segment.
type State uint8

const (
	StateOK State = iota
	// StateNeedsPack means the segment has deleted/replaced records
	// (index says fewer bytes live than the file holds) or physical
	// holes; repacking reclaims the space.
	StateNeedsPack
	// StateNeedsIndex means the segment has data the index doesn't
	// know about yet (e.g. freshly imported, not yet indexed).
	StateNeedsIndex
	// StateNeedsRescan means the physical segment is shorter than
	// the index's claimed size (a truncation, not a hole, since
	// nothing later in the file can still be valid), its ".metadata"
	// or ".summary" sidecar is missing, or an accurate check found a
	// member that fails format validation.
	StateNeedsRescan
	// StateNeedsDelete means the segment is older than the
	// dataset's delete_age and has do-not-pack unset.
	StateNeedsDelete
	// StateNeedsArchive means the segment is older than the
	// dataset's archive_age and not yet archived.
	StateNeedsArchive
	// StateNeedsDeindex means the index still has records for the
	// segment but its physical data is gone from this store (moved
	// to an archive, or removed from disk).
	StateNeedsDeindex
	// StateArchivedOK means the segment lives only in the archive
	// and matches its archived index.
	StateArchivedOK
	// StateArchivedNeedsRescan means the archived segment is
	// truncated, carries trailing bytes, or failed format validation.
	StateArchivedNeedsRescan
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateNeedsPack:
		return "needs-pack"
	case StateNeedsIndex:
		return "needs-index"
	case StateNeedsRescan:
		return "needs-rescan"
	case StateNeedsDelete:
		return "needs-delete"
	case StateNeedsArchive:
		return "needs-archive"
	case StateNeedsDeindex:
		return "needs-deindex"
	case StateArchivedOK:
		return "archived-ok"
	case StateArchivedNeedsRescan:
		return "archived-needs-rescan"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// SegmentInfo is the input a Classifier needs about one segment to
// decide its State.
type SegmentInfo struct {
	RelPath      string
	Archived     bool
	DoNotPack    bool
	AgeDays      int
	ArchiveAge   int
	DeleteAge    int
	IndexedBytes int64
	PhysicalSize int64
	Holes        int
	Truncated    bool
	TrailingData bool
	IndexedOnly  bool // records exist in the index with no matching physical data
	// SidecarsMissing is true when a non-empty segment's ".metadata"
	// or ".summary" sidecar is absent (spec.md P5): a rescan rebuilds
	// both regardless of any other issue with the segment.
	SidecarsMissing bool
	// ValidationFailed is true when an accurate-mode Check found at
	// least one member that fails format validation. Quick checks
	// never set this field.
	ValidationFailed bool
}

// Classify decides a segment's State. Rescan takes precedence over
// the age rules: a segment whose on-disk content disagrees with the
// index must be reconciled before delete/archive act on it, since
// AgeDays reflects only what's currently indexed and an unrecovered
// rescan could be hiding data newer than either threshold. Delete in
// turn takes precedence over pack: a segment old enough to delete is
// reported as needing deletion even if it also has reclaimable holes,
// since repacking data that's about to be deleted wastes the work. A
// set do-not-pack flag suppresses the delete, archive and pack states.
func Classify(info SegmentInfo) State {
	if info.Archived {
		if info.Truncated || info.TrailingData || info.ValidationFailed {
			return StateArchivedNeedsRescan
		}
		if info.IndexedOnly {
			return StateNeedsDeindex
		}
		if info.IndexedBytes == 0 && info.PhysicalSize > 0 {
			return StateNeedsIndex
		}
		return StateArchivedOK
	}

	// The index has rows for this segment but the segment itself is
	// gone from disk (spec.md §4.5 merge-walk: "in-index \ on-disk →
	// needs-deindex"). There's no physical data left to pack, age out,
	// or rescan, so this outranks every other live-branch rule.
	if info.IndexedOnly {
		return StateNeedsDeindex
	}

	// A segment whose on-disk bytes don't match what's indexed (stale
	// offsets, missing sidecars, failed validation) must be rescanned
	// before any age rule acts on it: the age is computed only from
	// what's currently indexed, so classifying needs-delete/
	// needs-archive first could discard or archive physical data a
	// rescan would otherwise have recovered. Trailing bytes past the
	// last indexed message are not a rescan trigger here; they fall
	// to the pack rule below.
	if info.Truncated || info.SidecarsMissing || info.ValidationFailed {
		return StateNeedsRescan
	}

	if !info.DoNotPack && info.DeleteAge > 0 && info.AgeDays >= info.DeleteAge {
		return StateNeedsDelete
	}

	if !info.DoNotPack && info.ArchiveAge > 0 && info.AgeDays >= info.ArchiveAge {
		return StateNeedsArchive
	}

	// A segment the index has no rows for at all is wholly unindexed,
	// not merely gappy: it must be checked (and classified needs-pack
	// at most) only once something is indexed to compare against.
	if info.IndexedBytes == 0 && info.PhysicalSize > 0 {
		return StateNeedsIndex
	}

	if !info.DoNotPack && (info.PhysicalSize > info.IndexedBytes || info.Holes > 0 || info.TrailingData) {
		return StateNeedsPack
	}

	return StateOK
}
