// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package reader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dsindex/manifest"
	"github.com/metserv/wxstore/internal/writer"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/wxtype"
)

func setup(t *testing.T) (*Reader, *writer.Writer) {
	t.Helper()
	dir := t.TempDir()

	idx, err := manifest.Open(filepath.Join(dir, "index.manifest"))
	require.NoError(t, err)
	store := segment.NewStore(filepath.Join(dir, "segments"), false, "bufr")

	ds := &dsconfig.Dataset{
		Name:   "synop",
		Format: "bufr",
		Step:   "daily",
		Unique: []string{"origin", "product", "reftime", "area"},
	}
	w, err := writer.New(ds, store, idx)
	require.NoError(t, err)

	return New(ds, store, idx), w
}

func msg(station uint64, when int64) *message.Message {
	m := message.New(message.FormatBUFR, message.Inline(nil))
	m.Set(wxtype.OriginBUFR{Centre: 98})
	m.Set(wxtype.ProductBUFR{Type: 0, Subtype: 255, LocalSubtype: 0, Name: "synop"})
	m.Set(wxtype.ReftimePosition{Time: when})
	m.Set(wxtype.AreaVM2{Station: station})
	return m
}

func TestQueryDataReturnsRawBytes(t *testing.T) {
	r, w := setup(t)
	ctx := context.Background()

	_, err := w.Acquire(ctx, msg(1, 1700000000), []byte("station-one"), 0, true)
	require.NoError(t, err)
	_, err = w.Acquire(ctx, msg(2, 1700000000), []byte("station-two"), 0, true)
	require.NoError(t, err)

	results, err := r.QueryData(ctx, dsindex.Query{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var found int
	for _, res := range results {
		if string(res.Raw) == "station-one" || string(res.Raw) == "station-two" {
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestQuerySummaryAggregates(t *testing.T) {
	r, w := setup(t)
	ctx := context.Background()

	_, err := w.Acquire(ctx, msg(1, 1700000000), []byte("aaaa"), 0, true)
	require.NoError(t, err)
	_, err = w.Acquire(ctx, msg(1, 1700086400), []byte("bbbb"), 0, true)
	require.NoError(t, err)

	summary, err := r.QuerySummary(ctx, dsindex.Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.Count)
	assert.EqualValues(t, 8, summary.Size)
	require.NotNil(t, summary.Reftime)
}

func TestProduceNthSamplesPerSegment(t *testing.T) {
	r, w := setup(t)
	ctx := context.Background()
	_, err := w.Acquire(ctx, msg(1, 1700000000), []byte("only one"), 0, true)
	require.NoError(t, err)

	// The segment has a single message, so asking for index 5 yields no
	// sample rather than an error.
	samples, err := r.ProduceNth(ctx, dsindex.Query{}, 5)
	require.NoError(t, err)
	assert.Empty(t, samples)

	samples, err = r.ProduceNth(ctx, dsindex.Query{}, 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "only one", string(samples[0].Raw))
}

func TestPostprocessPipesThroughExternalCommand(t *testing.T) {
	r, w := setup(t)
	ctx := context.Background()
	_, err := w.Acquire(ctx, msg(1, 1700000000), []byte("hello"), 0, true)
	require.NoError(t, err)

	out, err := r.Postprocess(ctx, dsindex.Query{}, "cat", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestScanTestFindsNoErrorsOnHealthyStore(t *testing.T) {
	r, w := setup(t)
	ctx := context.Background()
	_, err := w.Acquire(ctx, msg(1, 1700000000), []byte("good data"), 0, true)
	require.NoError(t, err)

	errs, err := r.ScanTest(ctx)
	require.NoError(t, err)
	assert.Empty(t, errs)
}
