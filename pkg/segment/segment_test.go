// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLayoutAppendAndReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024", "03-07.bufr.gz")

	l, err := OpenFileLayout(path)
	require.NoError(t, err)
	defer l.Close()

	off1, sz1, err := l.Append([]byte("first message"))
	require.NoError(t, err)
	off2, sz2, err := l.Append([]byte("second message, a bit longer"))
	require.NoError(t, err)
	assert.NotEqual(t, off1, off2)

	got1, err := l.ReadAt(off1, sz1)
	require.NoError(t, err)
	assert.Equal(t, "first message", string(got1))

	got2, err := l.ReadAt(off2, sz2)
	require.NoError(t, err)
	assert.Equal(t, "second message, a bit longer", string(got2))
}

func TestFileLayoutCheckReportsTrailingBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bufr.gz")

	l, err := OpenFileLayout(path)
	require.NoError(t, err)
	_, _, err = l.Append([]byte("message"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("garbage not indexed"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l2, err := OpenFileLayout(path)
	require.NoError(t, err)
	defer l2.Close()

	rep, err := l2.Check(nil)
	require.NoError(t, err)
	assert.False(t, rep.OK())
	assert.Greater(t, rep.TrailingBytes, int64(0))
}

func TestFileLayoutRepackDropsUnwantedMembers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "y.bufr.gz")

	l, err := OpenFileLayout(path)
	require.NoError(t, err)
	defer l.Close()

	off1, _, err := l.Append([]byte("keep me"))
	require.NoError(t, err)
	off2, sz2, err := l.Append([]byte("drop me"))
	require.NoError(t, err)
	off3, sz3, err := l.Append([]byte("keep me too"))
	require.NoError(t, err)
	_ = off2
	_ = sz2

	remap, err := l.Repack([]int64{off1, off3})
	require.NoError(t, err)
	assert.Len(t, remap, 2)

	rep, err := l.Check(nil)
	require.NoError(t, err)
	assert.True(t, rep.OK())

	got3, err := l.ReadAt(remap[off3], sz3)
	require.NoError(t, err)
	assert.Equal(t, "keep me too", string(got3))
}

func TestDirLayoutAppendAndReadAt(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenDirLayout(dir)
	require.NoError(t, err)

	ord, sz, err := l.Append([]byte("payload one"))
	require.NoError(t, err)
	got, err := l.ReadAt(ord, sz)
	require.NoError(t, err)
	assert.Equal(t, "payload one", string(got))
}

func TestDirLayoutCheckDetectsHole(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenDirLayout(dir)
	require.NoError(t, err)

	_, _, err = l.Append([]byte("a"))
	require.NoError(t, err)
	_, _, err = l.Append([]byte("b"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(l.memberPath(0)))

	rep, err := l.Check(nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Holes, int64(0))
}

func TestStorePoolsHandlesByRelPath(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, false, "bufr")

	h1, err := s.Open("2024/03-07")
	require.NoError(t, err)
	h2, err := s.Open("2024/03-07")
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	require.NoError(t, s.CloseAll())
}
