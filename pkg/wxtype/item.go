// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wxtype

import (
	"bytes"
	"fmt"

	"github.com/metserv/wxstore/pkg/wire"
)

// Item is one metadata item: a type-code plus a style-tagged,
// field-by-field payload. Items are immutable once attached to a
// message; identity is by value, so two items holding equal
// code/style/fields compare equal and encode identically.
type Item interface {
	TypeCode() Code
	StyleID() uint8
	EncodeFields() []byte
	String() string
}

// decoder turns a style's field payload back into an Item.
type decoder func(payload []byte) (Item, error)

var registry = map[Code]map[uint8]decoder{}

func register(code Code, style uint8, d decoder) {
	m, ok := registry[code]
	if !ok {
		m = map[uint8]decoder{}
		registry[code] = m
	}
	m[style] = d
}

// Encode renders an item to its canonical binary form: code, style,
// then the field stream, with no envelope framing (the envelope is
// applied once per metadata record by package metadata).
func Encode(it Item) []byte {
	fields := it.EncodeFields()
	out := make([]byte, 2+len(fields))
	out[0] = byte(it.TypeCode())
	out[1] = it.StyleID()
	copy(out[2:], fields)
	return out
}

// Decode parses the canonical binary form produced by Encode.
func Decode(b []byte) (Item, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("wxtype: item too short")
	}
	code := Code(b[0])
	style := b[1]
	m, ok := registry[code]
	if !ok {
		return nil, fmt.Errorf("wxtype: unknown type-code %d", b[0])
	}
	d, ok := m[style]
	if !ok {
		return nil, fmt.Errorf("wxtype: %s has no style %d", code, style)
	}
	return d(b[2:])
}

// DecodePrefixed decodes the first item found at the start of buf and
// reports how many bytes it occupied, so callers can decode a stream
// of concatenated items without a separate length prefix: encoding is
// canonical, so re-encoding the decoded item reproduces exactly the
// bytes consumed.
func DecodePrefixed(buf []byte) (Item, int, error) {
	it, err := Decode(buf)
	if err != nil {
		return nil, 0, err
	}
	return it, len(Encode(it)), nil
}

// Compare orders items by type-code first, then style, then
// field-by-field using the canonical encoding.
func Compare(a, b Item) int {
	if a.TypeCode() != b.TypeCode() {
		if a.TypeCode() < b.TypeCode() {
			return -1
		}
		return 1
	}
	if a.StyleID() != b.StyleID() {
		if a.StyleID() < b.StyleID() {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.EncodeFields(), b.EncodeFields())
}

// Equal reports whether two items have identical encodings.
func Equal(a, b Item) bool { return Compare(a, b) == 0 }

func newFieldReader(payload []byte) *wire.FieldReader { return wire.NewFieldReader(payload) }
