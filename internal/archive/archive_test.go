// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/wxtype"
)

func writeLiveSegment(t *testing.T, root, relPath string) (*segment.Store, []byte) {
	t.Helper()
	store := segment.NewStore(root, false, "bufr")
	layout, err := store.Open(relPath)
	require.NoError(t, err)
	raw := []byte("a synop message")
	_, _, err = layout.Append(raw)
	require.NoError(t, err)
	return store, raw
}

func TestMoveRelocatesSegmentAndReindexes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	relPath := "2024/03-07"

	store, raw := writeLiveSegment(t, root, relPath)

	liveIdx, err := manifest.Open(filepath.Join(root, "index.manifest"))
	require.NoError(t, err)

	rt := reftime.Point(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	rec := dsindex.Record{
		Fingerprint: 42,
		Segment:     relPath,
		Offset:      0,
		Size:        int64(len(raw)),
		Reftime:     rt,
		Items:       []wxtype.Item{wxtype.OriginBUFR{Centre: 98}},
	}
	require.NoError(t, liveIdx.Insert(ctx, rec))

	archives, err := Discover(root, false, "bufr")
	require.NoError(t, err)

	require.NoError(t, Move(ctx, root, store, liveIdx, archives, relPath, false))

	// Live index no longer knows about the fingerprint.
	_, found, err := liveIdx.GetByFingerprint(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)

	// Live segment file is gone.
	_, err = os.Stat(filepath.Join(root, relPath+".bufr.gz"))
	assert.True(t, os.IsNotExist(err))

	// It now lives under .archive/last.
	archived, err := os.Stat(filepath.Join(root, ".archive", "last", relPath+".bufr.gz"))
	require.NoError(t, err)
	assert.False(t, archived.IsDir())

	last, err := archives.Get("last")
	require.NoError(t, err)
	archivedRec, found, err := last.Index().GetByFingerprint(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, relPath, archivedRec.Segment)

	layout, err := last.store.Open(relPath)
	require.NoError(t, err)
	got, err := layout.ReadAt(archivedRec.Offset, archivedRec.Size)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestArchivesSummaryCachesWhenUnfiltered(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	full, err := OpenFull(root, "last", false, "bufr")
	require.NoError(t, err)
	rt := reftime.Point(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, full.index.Insert(ctx, dsindex.Record{
		Fingerprint: 1, Segment: "2024/01-01", Size: 10, Reftime: rt,
	}))
	require.NoError(t, full.Close())

	archives, err := Discover(root, false, "bufr")
	require.NoError(t, err)
	defer archives.Close()

	s, err := archives.Summary(ctx, dsindex.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Count)

	_, err = os.Stat(combinedSummaryPath(root))
	require.NoError(t, err)
}

func TestSummaryOnlyArchiveRefusesDataQuery(t *testing.T) {
	root := t.TempDir()
	archDir := filepath.Join(root, ".archive", "old")
	require.NoError(t, os.MkdirAll(archDir, 0o755))

	a := OpenSummaryOnly(root, "old")
	_, _, err := a.QueryData(context.Background(), dsindex.Query{})
	assert.ErrorIs(t, err, ErrOfflineData)
}
