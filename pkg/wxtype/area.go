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
	AreaStyleGRIB uint8 = 1
	AreaStyleVM2  uint8 = 2
)

// AreaGRIB is a bounding box in microdegrees.
type AreaGRIB struct {
	Lat1, Lon1, Lat2, Lon2 int64
}

func (a AreaGRIB) TypeCode() Code { return CodeArea }
func (a AreaGRIB) StyleID() uint8 { return AreaStyleGRIB }
func (a AreaGRIB) EncodeFields() []byte {
	return wire.NewFieldWriter().Int(a.Lat1).Int(a.Lon1).Int(a.Lat2).Int(a.Lon2).Bytes2()
}
func (a AreaGRIB) String() string {
	return fmt.Sprintf("GRIB(%d, %d, %d, %d)", a.Lat1, a.Lon1, a.Lat2, a.Lon2)
}

// AreaVM2 names a fixed observation station by its numeric id.
type AreaVM2 struct{ Station uint64 }

func (a AreaVM2) TypeCode() Code { return CodeArea }
func (a AreaVM2) StyleID() uint8 { return AreaStyleVM2 }
func (a AreaVM2) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(a.Station).Bytes2()
}
func (a AreaVM2) String() string { return fmt.Sprintf("VM2(%d)", a.Station) }

func init() {
	register(CodeArea, AreaStyleGRIB, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		vals := make([]int64, 4)
		for i := range vals {
			v, err := r.Int()
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return AreaGRIB{vals[0], vals[1], vals[2], vals[3]}, nil
	})
	register(CodeArea, AreaStyleVM2, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return AreaVM2{v}, nil
	})
}
