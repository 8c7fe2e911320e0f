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

const singleStringStyle uint8 = 1

// Note is a free-text annotation stamped with the time it was added.
type Note struct {
	Timestamp int64
	Text      string
}

func (n Note) TypeCode() Code { return CodeNote }
func (n Note) StyleID() uint8 { return singleStringStyle }
func (n Note) EncodeFields() []byte {
	return wire.NewFieldWriter().Int(n.Timestamp).String(n.Text).Bytes2()
}
func (n Note) String() string {
	return fmt.Sprintf("[%s] %s", time.Unix(n.Timestamp, 0).UTC().Format(time.RFC3339), n.Text)
}

// Source records where a message was imported from, free-form.
type Source struct{ Value string }

func (s Source) TypeCode() Code       { return CodeSource }
func (s Source) StyleID() uint8       { return singleStringStyle }
func (s Source) EncodeFields() []byte { return wire.NewFieldWriter().String(s.Value).Bytes2() }
func (s Source) String() string       { return s.Value }

// AssignedDataset records which dataset a message was routed to and
// the numeric id it received there.
type AssignedDataset struct {
	Name string
	ID   int64
}

func (a AssignedDataset) TypeCode() Code { return CodeAssignedDataset }
func (a AssignedDataset) StyleID() uint8 { return singleStringStyle }
func (a AssignedDataset) EncodeFields() []byte {
	return wire.NewFieldWriter().String(a.Name).Int(a.ID).Bytes2()
}
func (a AssignedDataset) String() string { return fmt.Sprintf("%s:%d", a.Name, a.ID) }

// Task names a background task associated with a message (import
// batch id, processing job name).
type Task struct{ Value string }

func (t Task) TypeCode() Code       { return CodeTask }
func (t Task) StyleID() uint8       { return singleStringStyle }
func (t Task) EncodeFields() []byte { return wire.NewFieldWriter().String(t.Value).Bytes2() }
func (t Task) String() string       { return t.Value }

// Quantity names the measured physical quantity of a VM2 value
// (temperature, pressure, ...) when not already implied by Product.
type Quantity struct{ Value string }

func (q Quantity) TypeCode() Code       { return CodeQuantity }
func (q Quantity) StyleID() uint8       { return singleStringStyle }
func (q Quantity) EncodeFields() []byte { return wire.NewFieldWriter().String(q.Value).Bytes2() }
func (q Quantity) String() string       { return q.Value }

// Value carries an encoded VM2 observation payload as opaque text.
type Value struct{ Value string }

func (v Value) TypeCode() Code       { return CodeValue }
func (v Value) StyleID() uint8       { return singleStringStyle }
func (v Value) EncodeFields() []byte { return wire.NewFieldWriter().String(v.Value).Bytes2() }
func (v Value) String() string       { return v.Value }

func init() {
	register(CodeNote, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		ts, err := r.Int()
		if err != nil {
			return nil, err
		}
		text, err := r.String()
		if err != nil {
			return nil, err
		}
		return Note{ts, text}, nil
	})
	register(CodeSource, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.String()
		if err != nil {
			return nil, err
		}
		return Source{v}, nil
	})
	register(CodeAssignedDataset, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		id, err := r.Int()
		if err != nil {
			return nil, err
		}
		return AssignedDataset{name, id}, nil
	})
	register(CodeTask, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.String()
		if err != nil {
			return nil, err
		}
		return Task{v}, nil
	})
	register(CodeQuantity, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.String()
		if err != nil {
			return nil, err
		}
		return Quantity{v}, nil
	})
	register(CodeValue, singleStringStyle, func(p []byte) (Item, error) {
		r := newFieldReader(p)
		v, err := r.String()
		if err != nil {
			return nil, err
		}
		return Value{v}, nil
	})
}
