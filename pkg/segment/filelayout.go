// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FileLayout stores every message of a segment as an independent
// gzip member appended to one file, so a single message can be
// decompressed without reading the rest of the segment. A sidecar
// ".gz.idx" file records each member's (offset, size) in the
// compressed file, in append order.
type FileLayout struct {
	path    string
	idxPath string
	f       *os.File
}

// OpenFileLayout opens (creating if necessary) the segment at path,
// whose sidecar index lives at path+".idx".
func OpenFileLayout(path string) (*FileLayout, error) {
	if err := ensureDir(dirOf(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	return &FileLayout{path: path, idxPath: path + ".idx", f: f}, nil
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}

type idxEntry struct{ offset, size int64 }

func (l *FileLayout) readIndex() ([]idxEntry, error) {
	b, err := os.ReadFile(l.idxPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []idxEntry
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("segment: malformed index line %q", line)
		}
		off, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, err
		}
		sz, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, idxEntry{off, sz})
	}
	return out, nil
}

func (l *FileLayout) appendIndex(e idxEntry) error {
	f, err := os.OpenFile(l.idxPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d %d\n", e.offset, e.size)
	return err
}

func (l *FileLayout) Append(data []byte) (int64, int64, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return 0, 0, fmt.Errorf("segment: gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, 0, fmt.Errorf("segment: gzip close: %w", err)
	}

	info, err := l.f.Stat()
	if err != nil {
		return 0, 0, err
	}
	offset := info.Size()

	if _, err := l.f.WriteAt(buf.Bytes(), offset); err != nil {
		return 0, 0, fmt.Errorf("segment: append to %s: %w", l.path, err)
	}
	size := int64(buf.Len())

	if err := l.appendIndex(idxEntry{offset, size}); err != nil {
		return 0, 0, fmt.Errorf("segment: append index for %s: %w", l.path, err)
	}
	return offset, size, nil
}

func (l *FileLayout) ReadAt(offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := l.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("segment: read %s at %d: %w", l.path, offset, err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("segment: gzip member at %d corrupt: %w", offset, err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func (l *FileLayout) Size() (int64, error) {
	info, err := l.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (l *FileLayout) Check(validate func([]byte) error) (Report, error) {
	entries, err := l.readIndex()
	if err != nil {
		return Report{}, err
	}
	physical, err := l.Size()
	if err != nil {
		return Report{}, err
	}

	var rep Report
	var expect int64
	for _, e := range entries {
		if e.offset != expect {
			rep.Holes = append(rep.Holes, expect)
		}
		expect = e.offset + e.size
		if validate != nil && e.offset+e.size <= physical {
			raw, err := l.ReadAt(e.offset, e.size)
			if err != nil || validate(raw) != nil {
				rep.Invalid = append(rep.Invalid, e.offset)
			}
		}
	}
	switch {
	case expect > physical:
		rep.Truncated = true
	case expect < physical:
		rep.TrailingBytes = physical - expect
	}
	return rep, nil
}

func (l *FileLayout) Repack(keep []int64) (map[int64]int64, error) {
	entries, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	bySrc := make(map[int64]idxEntry, len(entries))
	for _, e := range entries {
		bySrc[e.offset] = e
	}

	tmpPath := tempName(l.path)
	tmpIdxPath := tmpPath + ".idx"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	remap := make(map[int64]int64, len(keep))
	var cursor int64
	idxBuf := bufio.NewWriter(mustCreate(tmpIdxPath))
	for _, off := range keep {
		e, ok := bySrc[off]
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
			os.Remove(tmpIdxPath)
			return nil, fmt.Errorf("segment: repack: offset %d not present in index", off)
		}
		raw := make([]byte, e.size)
		if _, err := l.f.ReadAt(raw, e.offset); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			os.Remove(tmpIdxPath)
			return nil, fmt.Errorf("segment: repack: read member at %d: %w", off, err)
		}
		if _, err := tmp.WriteAt(raw, cursor); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			os.Remove(tmpIdxPath)
			return nil, err
		}
		fmt.Fprintf(idxBuf, "%d %d\n", cursor, e.size)
		remap[off] = cursor
		cursor += e.size
	}
	idxBuf.Flush()

	tmp.Close()
	if err := l.f.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return nil, fmt.Errorf("segment: repack rename %s: %w", l.path, err)
	}
	if err := os.Rename(tmpIdxPath, l.idxPath); err != nil {
		return nil, fmt.Errorf("segment: repack rename %s: %w", l.idxPath, err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	l.f = f
	return remap, nil
}

func mustCreate(path string) *os.File {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		panic(err)
	}
	return f
}

func (l *FileLayout) Remove() error {
	l.f.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(l.idxPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *FileLayout) Close() error { return l.f.Close() }
