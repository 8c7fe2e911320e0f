// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the persisted binary envelope shared by
// metadata records and summaries: a 2-byte ASCII signature, a 2-byte
// version, a 4-byte big-endian length, and the payload. Leading zero
// padding bytes before a valid envelope are skipped by the reader.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Signature identifies the kind of record an envelope carries.
type Signature [2]byte

var (
	SigMetadata Signature = [2]byte{'M', 'D'}
	SigSummary  Signature = [2]byte{'S', 'U'}
)

func (s Signature) String() string { return string(s[:]) }

// CurrentVersion is the envelope version written by this implementation.
// ReadEnvelope returns whatever version it finds without checking it.
const CurrentVersion uint16 = 1

// Envelope is a decoded (signature, version, payload) triple. The
// payload bytes are a type-tagged, varint-length-prefixed item stream.
type Envelope struct {
	Sig     Signature
	Version uint16
	Payload []byte
}

// WriteEnvelope writes sig/version/len(payload)/payload to w.
func WriteEnvelope(w io.Writer, sig Signature, version uint16, payload []byte) error {
	var hdr [8]byte
	hdr[0], hdr[1] = sig[0], sig[1]
	binary.BigEndian.PutUint16(hdr[2:4], version)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadEnvelope reads one envelope from r, skipping any leading zero
// padding bytes before the signature.
func ReadEnvelope(r io.ByteReader) (*Envelope, error) {
	br := &byteReaderWrapper{r}

	var sig [2]byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0 {
			continue
		}
		sig[0] = b
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sig[1] = b2
		break
	}

	var rest [6]byte
	if err := readFull(br, rest[:]); err != nil {
		return nil, err
	}
	version := binary.BigEndian.Uint16(rest[0:2])
	length := binary.BigEndian.Uint32(rest[2:6])

	payload := make([]byte, length)
	if err := readFull(br, payload); err != nil {
		return nil, err
	}

	return &Envelope{Sig: Signature(sig), Version: version, Payload: payload}, nil
}

type byteReaderWrapper struct{ io.ByteReader }

func (b *byteReaderWrapper) Read(p []byte) (int, error) {
	for i := range p {
		c, err := b.ReadByte()
		if err != nil {
			return i, err
		}
		p[i] = c
	}
	return len(p), nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// ValidateSignature returns an error if sig isn't one wxstore knows how
// to decode.
func ValidateSignature(sig Signature) error {
	switch sig {
	case SigMetadata, SigSummary:
		return nil
	default:
		return fmt.Errorf("wire: unknown envelope signature %q", sig.String())
	}
}
