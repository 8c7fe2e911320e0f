// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package message

import (
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/metserv/wxstore/pkg/wxtype"
)

// Message is one archived unit: its raw format, the byte range it
// lives at (or will live at once written), and its metadata items
// keyed by type-code. At most one item is kept per type-code; setting
// a code again replaces the previous value.
type Message struct {
	Format Format
	Src    Source
	items  map[wxtype.Code]wxtype.Item
}

func New(format Format, src Source) *Message {
	return &Message{Format: format, Src: src, items: make(map[wxtype.Code]wxtype.Item)}
}

// Set attaches or replaces the item for its type-code.
func (m *Message) Set(it wxtype.Item) { m.items[it.TypeCode()] = it }

// Get returns the item for code, if any.
func (m *Message) Get(code wxtype.Code) (wxtype.Item, bool) {
	it, ok := m.items[code]
	return it, ok
}

// Codes returns the set of type-codes present, in the stable order
// defined by wxtype.AllCodes.
func (m *Message) Codes() []wxtype.Code {
	var out []wxtype.Code
	for _, c := range wxtype.AllCodes() {
		if _, ok := m.items[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Encode renders the message's metadata items to their canonical
// binary form, ordered by type-code, for storage or fingerprinting.
func (m *Message) Encode() []byte {
	codes := m.Codes()
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var out []byte
	for _, c := range codes {
		out = append(out, wxtype.Encode(m.items[c])...)
	}
	return out
}

// Fingerprint computes the content-addressed identity of the message
// over a configured subset of type-codes (a dataset's `unique` key
// set), plus the reference time, which is always part of the identity
// regardless of whether keys names it: two messages that differ only
// in reftime must never collide, so uniqueness is effectively
// (reftime, fingerprint-without-reftime). Two messages with equal
// values for every code in keys and an equal reftime produce the same
// fingerprint regardless of what other metadata they carry.
func (m *Message) Fingerprint(keys []wxtype.Code) uint64 {
	sorted := append([]wxtype.Code(nil), keys...)
	if !containsCode(sorted, wxtype.CodeReftime) {
		sorted = append(sorted, wxtype.CodeReftime)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var buf []byte
	for _, c := range sorted {
		it, ok := m.items[c]
		if !ok {
			continue
		}
		buf = append(buf, wxtype.Encode(it)...)
	}
	return xxh3.Hash(buf)
}

func containsCode(codes []wxtype.Code, target wxtype.Code) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}
