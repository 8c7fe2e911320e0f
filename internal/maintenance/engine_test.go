// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package maintenance

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metserv/wxstore/internal/archive"
	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/log"
	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/scanner"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// fakeScanner lets tests control exactly what a rescan/reindex finds
// without depending on a real format decoder.
type fakeScanner struct {
	records []scanner.Record
}

func (f *fakeScanner) Validate(r io.ReaderAt, offset, size int64) error {
	return nil
}
func (f *fakeScanner) ValidateBuffer(buf []byte) error               { return nil }
func (f *fakeScanner) UpdateSequenceNumber(raw []byte) (int64, bool) { return 0, false }
func (f *fakeScanner) Scan(path string, emit scanner.EmitFunc) error {
	for _, r := range f.records {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

func newTestDataset(extra func(*dsconfig.Dataset)) *dsconfig.Dataset {
	ds := &dsconfig.Dataset{
		Name:   "synop",
		Format: "bufr",
		Step:   "daily",
		Unique: []string{"origin", "area"},
		Index:  []string{"origin", "area"},
	}
	if extra != nil {
		extra(ds)
	}
	return ds
}

func newTestEngine(t *testing.T, ds *dsconfig.Dataset) (*Engine, *manifest.Backend, string) {
	t.Helper()
	root := t.TempDir()
	idx, err := manifest.Open(filepath.Join(root, "index.manifest"))
	require.NoError(t, err)
	store := segment.NewStore(root, false, "bufr")
	e := New(ds, store, idx, root)
	return e, idx, root
}

// TestInspectAgeUsesLatestReftimeNotFirstByOffset guards spec.md
// §4.5's age rule ("the latest reftime within a segment"):
// Index.ScanSegment orders its result by offset (append order), so
// the first record isn't necessarily the one with the newest reftime.
func TestInspectAgeUsesLatestReftimeNotFirstByOffset(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(func(d *dsconfig.Dataset) { d.DeleteAge = 10 })
	e, idx, _ := newTestEngine(t, ds)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	relPath := "2024/06-01"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off1, sz1, err := layout.Append([]byte("old"))
	require.NoError(t, err)
	off2, sz2, err := layout.Append([]byte("fresh"))
	require.NoError(t, err)

	oldRT := reftime.Point(now.AddDate(0, 0, -100))
	freshRT := reftime.Point(now.AddDate(0, 0, -1))
	// Appended first (lowest offset), but its reftime is the older
	// one: a naive "first record by offset" age calculation would
	// use oldRT and wrongly call this segment past its delete-age.
	require.NoError(t, idx.Insert(ctx, dsindex.Record{Fingerprint: 1, Segment: relPath, Offset: off1, Size: sz1, Reftime: oldRT}))
	require.NoError(t, idx.Insert(ctx, dsindex.Record{Fingerprint: 2, Segment: relPath, Offset: off2, Size: sz2, Reftime: freshRT}))

	info, err := e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.Equal(t, 1, info.AgeDays)
	assert.NotEqual(t, StateNeedsDelete, Classify(info))
}

func TestRepackRemovesDeletedRecordAndRewritesSidecars(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, root := newTestEngine(t, ds)

	relPath := "2024/03-07"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)

	off1, sz1, err := layout.Append([]byte("message one"))
	require.NoError(t, err)
	off2, sz2, err := layout.Append([]byte("message two"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	rec1 := dsindex.Record{Fingerprint: 1, Segment: relPath, Offset: off1, Size: sz1, Reftime: rt, Items: []wxtype.Item{wxtype.OriginBUFR{Centre: 98}}}
	rec2 := dsindex.Record{Fingerprint: 2, Segment: relPath, Offset: off2, Size: sz2, Reftime: rt, Items: []wxtype.Item{wxtype.OriginBUFR{Centre: 99}}}
	require.NoError(t, idx.Insert(ctx, rec1))
	require.NoError(t, idx.Insert(ctx, rec2))

	// Delete rec1 the way a writer.Remove would: deindex only.
	require.NoError(t, idx.Remove(ctx, 1))

	require.NoError(t, e.repack(ctx, relPath))

	remaining, err := idx.ScanSegment(ctx, relPath)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(2), remaining[0].Fingerprint)

	got, err := layout.ReadAt(remaining[0].Offset, remaining[0].Size)
	require.NoError(t, err)
	assert.Equal(t, []byte("message two"), got)

	_, err = os.Stat(filepath.Join(root, relPath+".bufr.metadata"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, relPath+".bufr.summary"))
	assert.NoError(t, err)
}

func TestReindexBuildsRecordsFromScanner(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, _ := newTestEngine(t, ds)

	relPath := "2024/05-01"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off, sz, err := layout.Append([]byte("raw bytes"))
	require.NoError(t, err)

	rtItem := wxtype.ReftimePosition{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix()}
	scanner.Register(message.FormatBUFR, &fakeScanner{records: []scanner.Record{
		{Offset: off, Size: sz, Items: []wxtype.Item{wxtype.OriginBUFR{Centre: 98}, rtItem}},
	}})

	require.NoError(t, e.reindex(ctx, relPath))

	recs, err := idx.ScanSegment(ctx, relPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, off, recs[0].Offset)
}

func TestClassifySidecarsMissingYieldsNeedsRescan(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, root := newTestEngine(t, ds)

	relPath := "2024/06-01"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off, sz, err := layout.Append([]byte("payload"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	rec := dsindex.Record{Fingerprint: 7, Segment: relPath, Offset: off, Size: sz, Reftime: rt, Items: []wxtype.Item{wxtype.OriginBUFR{Centre: 98}}}
	require.NoError(t, idx.Insert(ctx, rec))
	require.NoError(t, e.writeSidecars(ctx, relPath, []dsindex.Record{rec}))

	info, err := e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.False(t, info.SidecarsMissing)
	assert.Equal(t, StateOK, Classify(info))

	require.NoError(t, os.Remove(filepath.Join(root, relPath+".bufr.summary")))

	info, err = e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.True(t, info.SidecarsMissing)
	assert.Equal(t, StateNeedsRescan, Classify(info))
}

// TestClassifyRescanOutranksDeleteAndArchive guards against deleting
// or archiving a segment whose on-disk content the index hasn't
// reconciled yet: AgeDays only reflects already-indexed records, so a
// segment needing rescan must be fixed up first rather than acted on
// by an age rule that can't see what the rescan would recover.
func TestClassifyRescanOutranksDeleteAndArchive(t *testing.T) {
	base := SegmentInfo{AgeDays: 999, DeleteAge: 10, ArchiveAge: 5}

	withTruncated := base
	withTruncated.Truncated = true
	assert.Equal(t, StateNeedsRescan, Classify(withTruncated))

	withSidecars := base
	withSidecars.SidecarsMissing = true
	assert.Equal(t, StateNeedsRescan, Classify(withSidecars))

	withValidation := base
	withValidation.ValidationFailed = true
	assert.Equal(t, StateNeedsRescan, Classify(withValidation))

	assert.Equal(t, StateNeedsDelete, Classify(base), "with no rescan trigger, the age rule still applies")
}

// rejectingScanner fails every member it's asked to validate, so a
// quick check sees it as healthy but an accurate one doesn't.
type rejectingScanner struct{ fakeScanner }

func (rejectingScanner) ValidateBuffer(buf []byte) error { return fmt.Errorf("bad framing") }

func TestClassifyAccurateModeCatchesBadFraming(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, _ := newTestEngine(t, ds)

	relPath := "2024/07-02"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off, sz, err := layout.Append([]byte("payload"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC))
	rec := dsindex.Record{Fingerprint: 11, Segment: relPath, Offset: off, Size: sz, Reftime: rt, Items: []wxtype.Item{wxtype.OriginBUFR{Centre: 98}}}
	require.NoError(t, idx.Insert(ctx, rec))
	require.NoError(t, e.writeSidecars(ctx, relPath, []dsindex.Record{rec}))

	scanner.Register(message.FormatBUFR, &rejectingScanner{})

	info, err := e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.False(t, info.ValidationFailed)
	assert.Equal(t, StateOK, Classify(info))

	e.Accurate = true
	info, err = e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.True(t, info.ValidationFailed)
	assert.Equal(t, StateNeedsRescan, Classify(info))
}

func TestDeleteRemovesSegmentIndexAndSidecars(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(func(d *dsconfig.Dataset) { d.DeleteAge = 1 })
	e, idx, root := newTestEngine(t, ds)

	relPath := "2020/01-01"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off, sz, err := layout.Append([]byte("old data"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := dsindex.Record{Fingerprint: 9, Segment: relPath, Offset: off, Size: sz, Reftime: rt}
	require.NoError(t, idx.Insert(ctx, rec))
	require.NoError(t, e.writeSidecars(ctx, relPath, []dsindex.Record{rec}))

	require.NoError(t, e.delete(ctx, relPath))

	recs, err := idx.ScanSegment(ctx, relPath)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = os.Stat(filepath.Join(root, relPath+".bufr.gz"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, relPath+".bufr.metadata"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, relPath+".bufr.summary"))
	assert.True(t, os.IsNotExist(err))
}

// TestClassifyMissingLiveSegmentYieldsNeedsDeindex guards spec.md
// §4.5's merge-walk rule "in-index \ on-disk → needs-deindex" (P6):
// a segment whose index rows survive but whose physical file was
// removed must be classified needs-deindex, not silently recreated
// empty and reported OK.
func TestClassifyMissingLiveSegmentYieldsNeedsDeindex(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, root := newTestEngine(t, ds)

	relPath := "2024/10-04"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	off, sz, err := layout.Append([]byte("vanishing data"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2024, 10, 4, 0, 0, 0, 0, time.UTC))
	rec := dsindex.Record{Fingerprint: 13, Segment: relPath, Offset: off, Size: sz, Reftime: rt}
	require.NoError(t, idx.Insert(ctx, rec))

	require.NoError(t, e.Store.Evict(relPath))
	require.NoError(t, os.Remove(filepath.Join(root, relPath+".bufr.gz")))

	info, err := e.inspect(ctx, relPath)
	require.NoError(t, err)
	assert.True(t, info.IndexedOnly)
	assert.Equal(t, StateNeedsDeindex, Classify(info))

	_, err = os.Stat(filepath.Join(root, relPath+".bufr.gz"))
	assert.True(t, os.IsNotExist(err), "inspect must not recreate the missing segment")
}

// TestRunRepackModeDeletesOrphanNeedsIndexSegment verifies spec.md
// §4.5's "repack ... deletes needs-delete and orphan needs-index":
// the repack agent must not silently add rows itself, unlike the
// check agent.
func TestRunRepackModeDeletesOrphanNeedsIndexSegment(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(nil)
	e, idx, root := newTestEngine(t, ds)
	e.RepackMode = true

	relPath := "2024/09-01"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	_, _, err = layout.Append([]byte("orphan bytes"))
	require.NoError(t, err)

	reports, err := e.Run(ctx, false)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StateNeedsIndex, reports[0].State)
	assert.Equal(t, "delete-orphan", reports[0].Action)
	assert.NoError(t, reports[0].Err)

	recs, err := idx.ScanSegment(ctx, relPath)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = os.Stat(filepath.Join(root, relPath+".bufr.gz"))
	assert.True(t, os.IsNotExist(err))
}

// TestUpdateDoNotPackFlagSetsThenClears verifies spec.md §4.5's
// "[check] creates a do-not-pack flag-file on any error so the next
// repack refuses to run until a clean check has passed": the flag
// must actually be written on error and removed once a check run is
// clean, not merely consulted.
func TestUpdateDoNotPackFlagSetsThenClears(t *testing.T) {
	ds := newTestDataset(nil)
	e, _, root := newTestEngine(t, ds)
	flagPath := filepath.Join(root, doNotPackFile)

	require.NoError(t, e.updateDoNotPackFlag([]SegmentReport{
		{RelPath: "2024/01-01", Err: nil},
		{RelPath: "2024/01-02", Err: fmt.Errorf("boom")},
	}))
	_, err := os.Stat(flagPath)
	require.NoError(t, err, "flag file should exist after a run with an error")

	require.NoError(t, e.updateDoNotPackFlag([]SegmentReport{
		{RelPath: "2024/01-01", Err: nil},
	}))
	_, err = os.Stat(flagPath)
	assert.True(t, os.IsNotExist(err), "flag file should be cleared after a clean run")
}

// TestArchivedSubEngineSharesReporter guards against an archived
// segment's classification outcome going unreported: spec.md §7 requires
// a structured event "per segment per operation type" for "every
// segment (live and archived)" (spec.md §4.5).
func TestArchivedSubEngineSharesReporter(t *testing.T) {
	ds := newTestDataset(nil)
	e, _, root := newTestEngine(t, ds)
	reporter := log.NewReporter()
	e.Reporter = reporter

	archives, err := archive.Discover(root, false, "bufr")
	require.NoError(t, err)
	e.Archives = archives

	arc, err := archives.Get("last")
	require.NoError(t, err)
	require.NoError(t, arc.Index().Insert(context.Background(), dsindex.Record{
		Fingerprint: 1, Segment: "2024/02-02", Offset: 0, Size: 5,
		Reftime: reftime.Point(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)),
	}))

	_, err = e.Run(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, reporter.Events(), "archived segment's classification should have produced a reported event")
}

// TestWalkPhysicalSegmentsFindsUnindexedDirLayoutSegment guards
// against a dir-layout segment going unnoticed because physical
// enumeration only recognized the file layout's ".gz" members.
func TestWalkPhysicalSegmentsFindsUnindexedDirLayoutSegment(t *testing.T) {
	ds := newTestDataset(func(d *dsconfig.Dataset) { d.Layout = string(dsconfig.LayoutDir); d.Format = "odim" })
	root := t.TempDir()
	idx, err := manifest.Open(filepath.Join(root, "index.manifest"))
	require.NoError(t, err)
	store := segment.NewStore(root, true, "h5")
	e := New(ds, store, idx, root)

	relPath := "2024/08-03"
	layout, err := e.Store.Open(relPath)
	require.NoError(t, err)
	_, _, err = layout.Append([]byte("odim bytes"))
	require.NoError(t, err)

	segs, err := e.walkPhysicalSegments()
	require.NoError(t, err)
	require.Contains(t, segs, relPath)

	info, err := e.inspect(context.Background(), relPath)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsIndex, Classify(info))
}
