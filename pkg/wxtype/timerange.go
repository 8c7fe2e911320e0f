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
	TimerangeStyleGRIB1 uint8 = 1
	TimerangeStyleBUFR  uint8 = 2
)

type TimerangeGRIB1 struct {
	Type   uint64
	Unit   uint64
	P1, P2 uint64
}

func (t TimerangeGRIB1) TypeCode() Code { return CodeTimerange }
func (t TimerangeGRIB1) StyleID() uint8 { return TimerangeStyleGRIB1 }
func (t TimerangeGRIB1) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(t.Type).Uint(t.Unit).Uint(t.P1).Uint(t.P2).Bytes2()
}
func (t TimerangeGRIB1) String() string {
	return fmt.Sprintf("GRIB1(%d, %d, %d, %d)", t.Type, t.Unit, t.P1, t.P2)
}

type TimerangeBUFR struct {
	Type   uint64
	P1, P2 uint64
}

func (t TimerangeBUFR) TypeCode() Code { return CodeTimerange }
func (t TimerangeBUFR) StyleID() uint8 { return TimerangeStyleBUFR }
func (t TimerangeBUFR) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(t.Type).Uint(t.P1).Uint(t.P2).Bytes2()
}
func (t TimerangeBUFR) String() string { return fmt.Sprintf("BUFR(%d, %d, %d)", t.Type, t.P1, t.P2) }

func init() {
	register(CodeTimerange, TimerangeStyleGRIB1, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		vals := make([]uint64, 4)
		for i := range vals {
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return TimerangeGRIB1{vals[0], vals[1], vals[2], vals[3]}, nil
	})
	register(CodeTimerange, TimerangeStyleBUFR, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		vals := make([]uint64, 3)
		for i := range vals {
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return TimerangeBUFR{vals[0], vals[1], vals[2]}, nil
	})
}
