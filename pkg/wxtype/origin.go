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
	OriginStyleGRIB1 uint8 = 1
	OriginStyleGRIB2 uint8 = 2
	OriginStyleBUFR  uint8 = 3
)

// OriginGRIB1 identifies the originating centre of a GRIB1 message.
type OriginGRIB1 struct{ Centre, Subcentre, Process uint64 }

func (o OriginGRIB1) TypeCode() Code { return CodeOrigin }
func (o OriginGRIB1) StyleID() uint8 { return OriginStyleGRIB1 }
func (o OriginGRIB1) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(o.Centre).Uint(o.Subcentre).Uint(o.Process).Bytes2()
}
func (o OriginGRIB1) String() string {
	return fmt.Sprintf("GRIB1(%d, %d, %d)", o.Centre, o.Subcentre, o.Process)
}

// OriginGRIB2 identifies the originating centre of a GRIB2 message.
type OriginGRIB2 struct {
	Centre, Subcentre, ProcessType, BgProcess, Process uint64
}

func (o OriginGRIB2) TypeCode() Code { return CodeOrigin }
func (o OriginGRIB2) StyleID() uint8 { return OriginStyleGRIB2 }
func (o OriginGRIB2) EncodeFields() []byte {
	return wire.NewFieldWriter().
		Uint(o.Centre).Uint(o.Subcentre).Uint(o.ProcessType).Uint(o.BgProcess).Uint(o.Process).Bytes2()
}
func (o OriginGRIB2) String() string {
	return fmt.Sprintf("GRIB2(%d, %d, %d, %d, %d)", o.Centre, o.Subcentre, o.ProcessType, o.BgProcess, o.Process)
}

// OriginBUFR identifies the originating centre of a BUFR message.
type OriginBUFR struct{ Centre, Subcentre uint64 }

func (o OriginBUFR) TypeCode() Code { return CodeOrigin }
func (o OriginBUFR) StyleID() uint8 { return OriginStyleBUFR }
func (o OriginBUFR) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(o.Centre).Uint(o.Subcentre).Bytes2()
}
func (o OriginBUFR) String() string { return fmt.Sprintf("BUFR(%d, %d)", o.Centre, o.Subcentre) }

func init() {
	register(CodeOrigin, OriginStyleGRIB1, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		centre, err := r.Uint()
		if err != nil {
			return nil, err
		}
		sub, err := r.Uint()
		if err != nil {
			return nil, err
		}
		proc, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return OriginGRIB1{centre, sub, proc}, nil
	})
	register(CodeOrigin, OriginStyleGRIB2, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		vals := make([]uint64, 5)
		for i := range vals {
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return OriginGRIB2{vals[0], vals[1], vals[2], vals[3], vals[4]}, nil
	})
	register(CodeOrigin, OriginStyleBUFR, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		centre, err := r.Uint()
		if err != nil {
			return nil, err
		}
		sub, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return OriginBUFR{centre, sub}, nil
	})
}
