// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlbackend

import (
	"strconv"
	"time"
)

// fingerprintKey renders a uint64 fingerprint as the decimal string
// stored in the fingerprint column; SQLite integers are signed
// 64-bit, so fingerprints are stored as text to use their full range.
func fingerprintKey(fp uint64) string { return strconv.FormatUint(fp, 10) }

func parseFingerprintKey(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
