// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metserv/wxstore/pkg/wxtype"
)

func newSynop() *Message {
	m := New(FormatBUFR, Blob("2024/03-07.bufr", 1024, 512))
	m.Set(wxtype.OriginBUFR{Centre: 98})
	m.Set(wxtype.ProductBUFR{Type: 0, Subtype: 255, LocalSubtype: 0, Name: "synop"})
	m.Set(wxtype.ReftimePosition{Time: 1700000000})
	m.Set(wxtype.AreaVM2{Station: 1234})
	return m
}

func TestSetGetReplacesSameCode(t *testing.T) {
	m := newSynop()
	_, ok := m.Get(wxtype.CodeOrigin)
	require.True(t, ok)

	m.Set(wxtype.OriginBUFR{Centre: 99})
	it, ok := m.Get(wxtype.CodeOrigin)
	require.True(t, ok)
	assert.Equal(t, uint64(99), it.(wxtype.OriginBUFR).Centre)
}

func TestFingerprintStableUnderExtraMetadata(t *testing.T) {
	keys := []wxtype.Code{wxtype.CodeOrigin, wxtype.CodeProduct, wxtype.CodeReftime, wxtype.CodeArea}

	a := newSynop()
	b := newSynop()
	b.Set(wxtype.Note{Timestamp: 1700000001, Text: "reimported"})

	assert.Equal(t, a.Fingerprint(keys), b.Fingerprint(keys))
}

func TestFingerprintDiffersOnKeyField(t *testing.T) {
	keys := []wxtype.Code{wxtype.CodeOrigin, wxtype.CodeProduct, wxtype.CodeReftime, wxtype.CodeArea}

	a := newSynop()
	b := newSynop()
	b.Set(wxtype.AreaVM2{Station: 9999})

	assert.NotEqual(t, a.Fingerprint(keys), b.Fingerprint(keys))
}

func TestFingerprintFoldsInReftimeEvenWhenKeysOmitIt(t *testing.T) {
	keys := []wxtype.Code{wxtype.CodeOrigin, wxtype.CodeArea}

	a := newSynop()
	b := newSynop()
	b.Set(wxtype.ReftimePosition{Time: 1700003600})

	assert.NotEqual(t, a.Fingerprint(keys), b.Fingerprint(keys))
}

func TestCodesStableOrder(t *testing.T) {
	m := newSynop()
	codes := m.Codes()
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
}

func TestEncodeRoundTripsEachItem(t *testing.T) {
	m := newSynop()
	enc := m.Encode()
	assert.NotEmpty(t, enc)

	for _, c := range m.Codes() {
		want, _ := m.Get(c)
		it, n, err := wxtype.DecodePrefixed(enc)
		require.NoError(t, err)
		assert.True(t, wxtype.Equal(want, it), "item %s", c)
		enc = enc[n:]
	}
	assert.Empty(t, enc)
}
