// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package writer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/wxtype"
)

func newTestWriter(t *testing.T, replace string) (*Writer, *manifest.Backend) {
	t.Helper()
	dir := t.TempDir()

	idx, err := manifest.Open(filepath.Join(dir, "index.manifest"))
	require.NoError(t, err)

	store := segment.NewStore(filepath.Join(dir, "segments"), false, "bufr")

	ds := &dsconfig.Dataset{
		Name:    "synop",
		Format:  "bufr",
		Step:    "daily",
		Unique:  []string{"origin", "product", "reftime", "area"},
		Replace: replace,
	}

	w, err := New(ds, store, idx)
	require.NoError(t, err)
	return w, idx
}

func newSynopMessage(station uint64, reftimeUnix int64) *message.Message {
	m := message.New(message.FormatBUFR, message.Inline(nil))
	m.Set(wxtype.OriginBUFR{Centre: 98})
	m.Set(wxtype.ProductBUFR{Type: 0, Subtype: 255, LocalSubtype: 0, Name: "synop"})
	m.Set(wxtype.ReftimePosition{Time: reftimeUnix})
	m.Set(wxtype.AreaVM2{Station: station})
	return m
}

func TestAcquireWritesAndIndexes(t *testing.T) {
	w, idx := newTestWriter(t, "never")
	m := newSynopMessage(1234, 1700000000)

	res, err := w.Acquire(context.Background(), m, []byte("raw bufr bytes"), 0, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotZero(t, res.Fingerprint)

	rec, found, err := idx.GetByFingerprint(context.Background(), res.Fingerprint)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Segment, rec.Segment)
}

func TestAcquireSegmentCarriesFormatExtension(t *testing.T) {
	w, idx := newTestWriter(t, "never")
	m := newSynopMessage(1234, 1700000000)

	res, err := w.Acquire(context.Background(), m, []byte("raw bufr bytes"), 0, true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Segment, ".bufr"), "segment %q should carry the message format as its extension", res.Segment)

	rec, found, err := idx.GetByFingerprint(context.Background(), res.Fingerprint)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Segment, rec.Segment)

	layout, err := w.Store.Open(res.Segment)
	require.NoError(t, err)
	got, err := layout.ReadAt(res.Offset, res.Size)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bufr bytes"), got)
}

func TestAcquireNeverPolicySkipsDuplicate(t *testing.T) {
	w, _ := newTestWriter(t, "never")
	m := newSynopMessage(1234, 1700000000)

	_, err := w.Acquire(context.Background(), m, []byte("first"), 0, true)
	require.NoError(t, err)

	res, err := w.Acquire(context.Background(), m, []byte("second"), 0, true)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestAcquireUSNPolicyRequiresNewerUSN(t *testing.T) {
	w, idx := newTestWriter(t, "usn")
	m := newSynopMessage(1234, 1700000000)

	_, err := w.Acquire(context.Background(), m, []byte("v1"), 5, true)
	require.NoError(t, err)

	stale, err := w.Acquire(context.Background(), m, []byte("v0"), 3, true)
	require.NoError(t, err)
	assert.True(t, stale.Skipped)

	fresh, err := w.Acquire(context.Background(), m, []byte("v2"), 9, true)
	require.NoError(t, err)
	assert.False(t, fresh.Skipped)

	rec, found, err := idx.GetByFingerprint(context.Background(), fresh.Fingerprint)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 9, rec.USN)
}

func TestAcquireUSNPolicyRejectsMissingUSNOnEitherSide(t *testing.T) {
	w, idx := newTestWriter(t, "usn")
	m := newSynopMessage(1234, 1700000000)

	noUSN, err := w.Acquire(context.Background(), m, []byte("v1"), 0, false)
	require.NoError(t, err)
	assert.True(t, noUSN.Skipped)
	_, found, err := idx.GetByFingerprint(context.Background(), noUSN.Fingerprint)
	require.NoError(t, err)
	assert.False(t, found, "a USN-absent message must never become the indexed baseline")

	_, err = w.Acquire(context.Background(), m, []byte("v2"), 5, true)
	require.NoError(t, err)

	stillNoUSN, err := w.Acquire(context.Background(), m, []byte("v3"), 9, false)
	require.NoError(t, err)
	assert.True(t, stillNoUSN.Skipped, "a USN-absent message must never supersede an existing record")
}

func TestRemoveDeindexesWithoutTouchingSegment(t *testing.T) {
	w, idx := newTestWriter(t, "always")
	m := newSynopMessage(1234, 1700000000)

	res, err := w.Acquire(context.Background(), m, []byte("data"), 0, true)
	require.NoError(t, err)

	require.NoError(t, w.Remove(context.Background(), res.Fingerprint))

	_, found, err := idx.GetByFingerprint(context.Background(), res.Fingerprint)
	require.NoError(t, err)
	assert.False(t, found)
}
