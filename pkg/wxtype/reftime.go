// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxtype

import (
	"fmt"
	"time"

	"github.com/metserv/wxstore/pkg/wire"
)

const (
	ReftimeStylePosition uint8 = 1
	ReftimeStylePeriod   uint8 = 2
)

// ReftimePosition is a single instant, stored as a Unix second.
type ReftimePosition struct{ Time int64 }

func (r ReftimePosition) TypeCode() Code { return CodeReftime }
func (r ReftimePosition) StyleID() uint8 { return ReftimeStylePosition }
func (r ReftimePosition) EncodeFields() []byte {
	return wire.NewFieldWriter().Int(r.Time).Bytes2()
}
func (r ReftimePosition) String() string {
	return time.Unix(r.Time, 0).UTC().Format(time.RFC3339)
}

// ReftimePeriod is a closed [Begin, End] interval, both Unix seconds.
type ReftimePeriod struct{ Begin, End int64 }

func (r ReftimePeriod) TypeCode() Code { return CodeReftime }
func (r ReftimePeriod) StyleID() uint8 { return ReftimeStylePeriod }
func (r ReftimePeriod) EncodeFields() []byte {
	return wire.NewFieldWriter().Int(r.Begin).Int(r.End).Bytes2()
}
func (r ReftimePeriod) String() string {
	return fmt.Sprintf("%s to %s",
		time.Unix(r.Begin, 0).UTC().Format(time.RFC3339),
		time.Unix(r.End, 0).UTC().Format(time.RFC3339))
}

func init() {
	register(CodeReftime, ReftimeStylePosition, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		t, err := r.Int()
		if err != nil {
			return nil, err
		}
		return ReftimePosition{t}, nil
	})
	register(CodeReftime, ReftimeStylePeriod, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		begin, err := r.Int()
		if err != nil {
			return nil, err
		}
		end, err := r.Int()
		if err != nil {
			return nil, err
		}
		return ReftimePeriod{begin, end}, nil
	})
}
