// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	items := []Item{
		OriginGRIB1{Centre: 200, Subcentre: 0, Process: 1},
		OriginGRIB2{Centre: 98, Subcentre: 0, ProcessType: 1, BgProcess: 0, Process: 2},
		OriginBUFR{Centre: 98, Subcentre: 0},
		ProductGRIB1{Origin: 200, Table: 2, Product: 11},
		ProductGRIB2{Centre: 98, Discipline: 0, Category: 0, Number: 0},
		ProductBUFR{Type: 0, Subtype: 255, LocalSubtype: 0, Name: "synop"},
		ProductVM2{Variable: 158},
		LevelGRIB1{LType: 1, L1: 0, L2: 0},
		LevelGRIB2S{Type: 1, Scale: 0, Value: 0},
		LevelGRIB2D{Type1: 106, Scale1: 0, Value1: 0, Type2: 106, Scale2: 2, Value2: 10},
		TimerangeGRIB1{Type: 0, Unit: 1, P1: 0, P2: 0},
		TimerangeBUFR{Type: 254, P1: 0, P2: 0},
		ReftimePosition{Time: 1700000000},
		ReftimePeriod{Begin: 1700000000, End: 1700003600},
		AreaGRIB{Lat1: 45000000, Lon1: 7000000, Lat2: 47000000, Lon2: 9000000},
		AreaVM2{Station: 1234},
		ProddefGRIB{Value: "tXX"},
		RunMinute{Minute: 0},
		Note{Timestamp: 1700000000, Text: "manual override"},
		Source{Value: "synop/2024010100.bufr"},
		AssignedDataset{Name: "synop", ID: 42},
		Task{Value: "import-batch-7"},
		Quantity{Value: "temperature"},
		Value{Value: "21.5"},
	}

	for _, it := range items {
		enc := Encode(it)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.True(t, Equal(it, dec), "round trip mismatch for %s", it.String())
		assert.Equal(t, it.TypeCode(), dec.TypeCode())
		assert.Equal(t, it.StyleID(), dec.StyleID())
	}
}

func TestCompareOrdersByCodeThenStyleThenFields(t *testing.T) {
	a := OriginGRIB1{Centre: 1}
	b := OriginGRIB1{Centre: 2}
	assert.Negative(t, Compare(a, b))
	assert.Positive(t, Compare(b, a))
	assert.Zero(t, Compare(a, a))

	c := ProductGRIB1{}
	assert.Negative(t, Compare(a, c), "origin sorts before product")

	d := OriginGRIB2{}
	assert.Negative(t, Compare(a, d), "GRIB1 style sorts before GRIB2 style within origin")
}

func TestDecodeRejectsUnknownCode(t *testing.T) {
	_, err := Decode([]byte{255, 1})
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	_, err := Decode([]byte{byte(CodeOrigin)})
	require.Error(t, err)
}

func TestParseCodeRoundTrip(t *testing.T) {
	for _, c := range AllCodes() {
		parsed, err := ParseCode(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCode("not-a-code")
	require.Error(t, err)
}
