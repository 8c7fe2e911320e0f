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
	ProductStyleGRIB1 uint8 = 1
	ProductStyleGRIB2 uint8 = 2
	ProductStyleBUFR  uint8 = 3
	ProductStyleVM2   uint8 = 4
)

type ProductGRIB1 struct{ Origin, Table, Product uint64 }

func (p ProductGRIB1) TypeCode() Code { return CodeProduct }
func (p ProductGRIB1) StyleID() uint8 { return ProductStyleGRIB1 }
func (p ProductGRIB1) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(p.Origin).Uint(p.Table).Uint(p.Product).Bytes2()
}
func (p ProductGRIB1) String() string {
	return fmt.Sprintf("GRIB1(%d, %d, %d)", p.Origin, p.Table, p.Product)
}

type ProductGRIB2 struct{ Centre, Discipline, Category, Number uint64 }

func (p ProductGRIB2) TypeCode() Code { return CodeProduct }
func (p ProductGRIB2) StyleID() uint8 { return ProductStyleGRIB2 }
func (p ProductGRIB2) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(p.Centre).Uint(p.Discipline).Uint(p.Category).Uint(p.Number).Bytes2()
}
func (p ProductGRIB2) String() string {
	return fmt.Sprintf("GRIB2(%d, %d, %d, %d)", p.Centre, p.Discipline, p.Category, p.Number)
}

type ProductBUFR struct {
	Type, Subtype, LocalSubtype uint64
	Name                        string
}

func (p ProductBUFR) TypeCode() Code { return CodeProduct }
func (p ProductBUFR) StyleID() uint8 { return ProductStyleBUFR }
func (p ProductBUFR) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(p.Type).Uint(p.Subtype).Uint(p.LocalSubtype).String(p.Name).Bytes2()
}
func (p ProductBUFR) String() string {
	return fmt.Sprintf("BUFR(%d, %d, %d, %s)", p.Type, p.Subtype, p.LocalSubtype, p.Name)
}

// ProductVM2 names a VM2 line-format variable by its numeric code.
type ProductVM2 struct{ Variable uint64 }

func (p ProductVM2) TypeCode() Code { return CodeProduct }
func (p ProductVM2) StyleID() uint8 { return ProductStyleVM2 }
func (p ProductVM2) EncodeFields() []byte {
	return wire.NewFieldWriter().Uint(p.Variable).Bytes2()
}
func (p ProductVM2) String() string { return fmt.Sprintf("VM2(%d)", p.Variable) }

func init() {
	register(CodeProduct, ProductStyleGRIB1, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		o, err := r.Uint()
		if err != nil {
			return nil, err
		}
		t, err := r.Uint()
		if err != nil {
			return nil, err
		}
		n, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return ProductGRIB1{o, t, n}, nil
	})
	register(CodeProduct, ProductStyleGRIB2, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		vals := make([]uint64, 4)
		for i := range vals {
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return ProductGRIB2{vals[0], vals[1], vals[2], vals[3]}, nil
	})
	register(CodeProduct, ProductStyleBUFR, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		typ, err := r.Uint()
		if err != nil {
			return nil, err
		}
		sub, err := r.Uint()
		if err != nil {
			return nil, err
		}
		local, err := r.Uint()
		if err != nil {
			return nil, err
		}
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		return ProductBUFR{typ, sub, local, name}, nil
	})
	register(CodeProduct, ProductStyleVM2, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.Uint()
		if err != nil {
			return nil, err
		}
		return ProductVM2{v}, nil
	})
}
