// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsWithSegment(t *testing.T) {
	base := errors.New("short read")
	e := New(KindIO, "synop", "repack", base).WithSegment("2024/03-07.bufr")
	assert.Contains(t, e.Error(), "synop/2024/03-07.bufr")
	assert.ErrorIs(t, e, base)
}

func TestIsAndKindOf(t *testing.T) {
	e := New(KindDuplicate, "synop", "insert", errors.New("fingerprint exists"))
	assert.True(t, Is(e, KindDuplicate))
	assert.False(t, Is(e, KindIO))
	assert.Equal(t, KindDuplicate, KindOf(e))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestCollectorAccumulates(t *testing.T) {
	var c Collector
	c.Add(nil)
	c.Add(New(KindSkip, "synop", "scan", errors.New("bad message 1")))
	c.Add(New(KindSkip, "synop", "scan", errors.New("bad message 2")))

	assert.Equal(t, 2, c.Count())
	assert.Error(t, c.Err())
	assert.Len(t, c.Errors(), 2)
}

func TestCollectorEmptyIsNil(t *testing.T) {
	var c Collector
	assert.NoError(t, c.Err())
	assert.Equal(t, 0, c.Count())
}
