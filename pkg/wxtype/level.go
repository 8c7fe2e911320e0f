// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxtype

import (
	"fmt"

	"github.com/metserv/wxstore/pkg/wire"
)

const (
	LevelStyleGRIB1 uint8 = 1
	LevelStyleGRIB2S uint8 = 2 // single surface
	LevelStyleGRIB2D uint8 = 3 // double/layer surface
)

type LevelGRIB1 struct {
	LType  uint64
	L1, L2 int64
}

func (l LevelGRIB1) TypeCode() Code { return CodeLevel }
func (l LevelGRIB1) StyleID() uint8 { return LevelStyleGRIB1 }
func (l LevelGRIB1) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(l.LType).Int(l.L1).Int(l.L2).Bytes2()
}
func (l LevelGRIB1) String() string { return fmt.Sprintf("GRIB1(%d, %d, %d)", l.LType, l.L1, l.L2) }

// LevelGRIB2S is a single-surface GRIB2 level.
type LevelGRIB2S struct {
	Type  uint64
	Scale int64
	Value int64
}

func (l LevelGRIB2S) TypeCode() Code { return CodeLevel }
func (l LevelGRIB2S) StyleID() uint8 { return LevelStyleGRIB2S }
func (l LevelGRIB2S) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(l.Type).Int(l.Scale).Int(l.Value).Bytes2()
}
func (l LevelGRIB2S) String() string {
	return fmt.Sprintf("GRIB2S(%d, %d, %d)", l.Type, l.Scale, l.Value)
}

// LevelGRIB2D is a double-surface (layer) GRIB2 level.
type LevelGRIB2D struct {
	Type1  uint64
	Scale1 int64
	Value1 int64
	Type2  uint64
	Scale2 int64
	Value2 int64
}

func (l LevelGRIB2D) TypeCode() Code { return CodeLevel }
func (l LevelGRIB2D) StyleID() uint8 { return LevelStyleGRIB2D }
func (l LevelGRIB2D) EncodeFields() []byte {
	return wire.NewFieldWriter().
		Uint(l.Type1).Int(l.Scale1).Int(l.Value1).
		Uint(l.Type2).Int(l.Scale2).Int(l.Value2).Bytes2()
}
func (l LevelGRIB2D) String() string {
	return fmt.Sprintf("GRIB2D(%d, %d, %d, %d, %d, %d)", l.Type1, l.Scale1, l.Value1, l.Type2, l.Scale2, l.Value2)
}

func init() {
	register(CodeLevel, LevelStyleGRIB1, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		lt, err := r.Uint()
		if err != nil {
			return nil, err
		}
		l1, err := r.Int()
		if err != nil {
			return nil, err
		}
		l2, err := r.Int()
		if err != nil {
			return nil, err
		}
		return LevelGRIB1{lt, l1, l2}, nil
	})
	register(CodeLevel, LevelStyleGRIB2S, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		t, err := r.Uint()
		if err != nil {
			return nil, err
		}
		sc, err := r.Int()
		if err != nil {
			return nil, err
		}
		v, err := r.Int()
		if err != nil {
			return nil, err
		}
		return LevelGRIB2S{t, sc, v}, nil
	})
	register(CodeLevel, LevelStyleGRIB2D, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		t1, err := r.Uint()
		if err != nil {
			return nil, err
		}
		s1, err := r.Int()
		if err != nil {
			return nil, err
		}
		v1, err := r.Int()
		if err != nil {
			return nil, err
		}
		t2, err := r.Uint()
		if err != nil {
			return nil, err
		}
		s2, err := r.Int()
		if err != nil {
			return nil, err
		}
		v2, err := r.Int()
		if err != nil {
			return nil, err
		}
		return LevelGRIB2D{t1, s1, v1, t2, s2, v2}, nil
	})
}
