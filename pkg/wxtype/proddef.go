// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxtype

import (
	"fmt"

	"github.com/metserv/wxstore/pkg/wire"
)

const ProddefStyleGRIB uint8 = 1

// ProddefGRIB carries a free-form product-definition string, used to
// distinguish otherwise identical products (e.g. ensemble member ids).
type ProddefGRIB struct{ Value string }

func (p ProddefGRIB) TypeCode() Code { return CodeProddef }
func (p ProddefGRIB) StyleID() uint8 { return ProddefStyleGRIB }
func (p ProddefGRIB) EncodeFields() []byte {
	return wire.NewFieldWriter().String(p.Value).Bytes2()
}
func (p ProddefGRIB) String() string { return fmt.Sprintf("GRIB(%s)", p.Value) }

const RunStyleMinute uint8 = 1

// RunMinute is a model run's minute-of-day offset, e.g. distinguishing
// the 00 run from the 12 run of the same reference day.
type RunMinute struct{ Minute uint64 }

func (r RunMinute) TypeCode() Code { return CodeRun }
func (r RunMinute) StyleID() uint8 { return RunStyleMinute }
func (r RunMinute) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(r.Minute).Bytes2()
}
func (r RunMinute) String() string { return fmt.Sprintf("MINUTE(%d)", r.Minute) }

func init() {
	register(CodeProddef, ProddefStyleGRIB, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.String()
		if err != nil {
			return nil, err
		}
		return ProddefGRIB{v}, nil
	})
	register(CodeRun, RunStyleMinute, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return RunMinute{v}, nil
	})
}
