// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// DirLayout stores a segment as a directory holding one file per
// message, named by a zero-padded sequential ordinal. It trades the
// file layout's compactness for messages that are awkward to
// concatenate (very large members, or formats that want their own
// extension per message).
type DirLayout struct {
	dir   string
	count int64
}

func OpenDirLayout(dir string) (*DirLayout, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ord, err := strconv.ParseInt(e.Name(), 10, 64); err == nil && ord+1 > n {
			n = ord + 1
		}
	}
	return &DirLayout{dir: dir, count: n}, nil
}

func (l *DirLayout) memberPath(ordinal int64) string {
	return filepath.Join(l.dir, fmt.Sprintf("%012d", ordinal))
}

func (l *DirLayout) Append(data []byte) (int64, int64, error) {
	ordinal := l.count
	path := l.memberPath(ordinal)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, 0, fmt.Errorf("segment: write %s: %w", path, err)
	}
	l.count++
	return ordinal, int64(len(data)), nil
}

func (l *DirLayout) ReadAt(offset, size int64) ([]byte, error) {
	b, err := os.ReadFile(l.memberPath(offset))
	if err != nil {
		return nil, fmt.Errorf("segment: read member %d: %w", offset, err)
	}
	if int64(len(b)) != size {
		return nil, fmt.Errorf("segment: member %d size mismatch: index says %d, file has %d", offset, size, len(b))
	}
	return b, nil
}

func (l *DirLayout) Size() (int64, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if _, perr := strconv.ParseInt(e.Name(), 10, 64); e.IsDir() || perr != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (l *DirLayout) Check(validate func([]byte) error) (Report, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return Report{}, err
	}
	present := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if ord, err := strconv.ParseInt(e.Name(), 10, 64); err == nil {
			present[ord] = true
		}
	}
	var rep Report
	for i := int64(0); i < l.count; i++ {
		if !present[i] {
			rep.Holes = append(rep.Holes, i)
			continue
		}
		if validate != nil {
			b, err := os.ReadFile(l.memberPath(i))
			if err != nil || validate(b) != nil {
				rep.Invalid = append(rep.Invalid, i)
			}
		}
	}
	for ord := range present {
		if ord >= l.count {
			rep.TrailingBytes++
		}
	}
	return rep, nil
}

func (l *DirLayout) Repack(keep []int64) (map[int64]int64, error) {
	sorted := append([]int64(nil), keep...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tmpDir := l.dir + ".repack.tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}

	remap := make(map[int64]int64, len(sorted))
	for i, ord := range sorted {
		b, err := os.ReadFile(l.memberPath(ord))
		if err != nil {
			os.RemoveAll(tmpDir)
			return nil, fmt.Errorf("segment: repack: read member %d: %w", ord, err)
		}
		newPath := filepath.Join(tmpDir, fmt.Sprintf("%012d", int64(i)))
		if err := os.WriteFile(newPath, b, 0o644); err != nil {
			os.RemoveAll(tmpDir)
			return nil, err
		}
		remap[ord] = int64(i)
	}

	if err := os.RemoveAll(l.dir); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpDir, l.dir); err != nil {
		return nil, fmt.Errorf("segment: repack rename %s: %w", l.dir, err)
	}
	l.count = int64(len(sorted))
	return remap, nil
}

func (l *DirLayout) Remove() error { return os.RemoveAll(l.dir) }

func (l *DirLayout) Close() error { return nil }
