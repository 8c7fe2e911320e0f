// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package message defines the in-memory representation of a single
// archived message: its raw encoding format, its tagged metadata
// items, and the content-addressed fingerprint used to detect
// duplicate imports.
package message

import "fmt"

// Format is the raw message encoding. Only these five are recognized;
// an unrecognized value is rejected at configuration time.
type Format string

const (
	FormatGRIB1 Format = "grib1"
	FormatGRIB2 Format = "grib2"
	FormatBUFR  Format = "bufr"
	FormatODIM  Format = "odim"
	FormatVM2   Format = "vm2"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGRIB1, FormatGRIB2, FormatBUFR, FormatODIM, FormatVM2:
		return Format(s), nil
	default:
		return "", fmt.Errorf("message: unknown format %q", s)
	}
}

// Extension returns the file extension segments use for this format
// under the concatenated file-layout.
func (f Format) Extension() string {
	switch f {
	case FormatGRIB1:
		return "grib"
	case FormatGRIB2:
		return "grib2"
	case FormatBUFR:
		return "bufr"
	case FormatODIM:
		return "h5"
	case FormatVM2:
		return "vm2"
	default:
		return string(f)
	}
}
