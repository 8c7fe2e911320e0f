// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package summary implements the lossy aggregate (spec.md §3
// "Summary"): count, total size, and an enclosing reference-time
// interval, persisted under the wire envelope format shared with
// metadata records so the same reader can skip over either kind of
// sidecar file.
package summary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/wire"
)

// Summary is one aggregate: how many messages, how many bytes, and
// the reftime span they cover. A zero-value Summary (Count == 0)
// represents "nothing seen yet" and merges as the identity element.
type Summary struct {
	Count   int64
	Size    int64
	Reftime *reftime.Time
}

// Add folds other into s, widening the reftime span to cover both.
func (s *Summary) Add(other Summary) {
	s.Count += other.Count
	s.Size += other.Size
	if other.Reftime == nil {
		return
	}
	if s.Reftime == nil {
		rt := *other.Reftime
		s.Reftime = &rt
		return
	}
	merged := reftime.Merge([]reftime.Time{*s.Reftime, *other.Reftime})
	s.Reftime = &merged
}

// Encode renders s to the canonical field stream used inside a
// wire.SigSummary envelope.
func (s Summary) Encode() []byte {
	fw := wire.NewFieldWriter()
	fw.Int(s.Count).Int(s.Size)
	if s.Reftime != nil {
		fw.Int(1).Int(s.Reftime.Begin.Unix()).Int(s.Reftime.End.Unix())
	} else {
		fw.Int(0)
	}
	return fw.Bytes2()
}

// Decode parses the field stream produced by Encode.
func Decode(payload []byte) (Summary, error) {
	fr := wire.NewFieldReader(payload)
	count, err := fr.Int()
	if err != nil {
		return Summary{}, fmt.Errorf("summary: count: %w", err)
	}
	size, err := fr.Int()
	if err != nil {
		return Summary{}, fmt.Errorf("summary: size: %w", err)
	}
	hasReftime, err := fr.Int()
	if err != nil {
		return Summary{}, fmt.Errorf("summary: reftime flag: %w", err)
	}
	s := Summary{Count: count, Size: size}
	if hasReftime != 0 {
		begin, err := fr.Int()
		if err != nil {
			return Summary{}, fmt.Errorf("summary: reftime begin: %w", err)
		}
		end, err := fr.Int()
		if err != nil {
			return Summary{}, fmt.Errorf("summary: reftime end: %w", err)
		}
		rt := reftime.Interval(time.Unix(begin, 0).UTC(), time.Unix(end, 0).UTC())
		s.Reftime = &rt
	}
	return s, nil
}

// WriteFile writes s to path as a single wire.SigSummary envelope,
// atomically via a temp-file rename so a reader never observes a
// half-written summary file.
func WriteFile(path string, s Summary) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("summary: create %s: %w", tmp, err)
	}
	if err := wire.WriteEnvelope(f, wire.SigSummary, wire.CurrentVersion, s.Encode()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("summary: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile reads the Summary previously written to path by WriteFile.
func ReadFile(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

// Read decodes one Summary envelope from r.
func Read(r io.ByteReader) (Summary, error) {
	env, err := wire.ReadEnvelope(r)
	if err != nil {
		return Summary{}, err
	}
	if env.Sig != wire.SigSummary {
		return Summary{}, fmt.Errorf("summary: unexpected envelope signature %q", env.Sig)
	}
	return Decode(env.Payload)
}
