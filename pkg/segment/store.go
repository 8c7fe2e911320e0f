// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Store pools open Layout handles for a dataset's root directory,
// keyed by the segment's relative path, so concurrent writers and
// readers targeting the same segment share one set of file handles.
type Store struct {
	root    string
	layout  func(absPath string) (Layout, error)
	mu      sync.Mutex
	handles map[string]Layout
}

// NewStore creates a Store rooted at root. useDirLayout selects
// between the directory layout and the default gzip-member file
// layout for every segment opened through this store.
func NewStore(root string, useDirLayout bool, extension string) *Store {
	s := &Store{root: root, handles: make(map[string]Layout)}
	if useDirLayout {
		s.layout = func(absPath string) (Layout, error) { return OpenDirLayout(absPath) }
	} else {
		s.layout = func(absPath string) (Layout, error) { return OpenFileLayout(absPath + "." + extension + ".gz") }
	}
	return s
}

// Open returns the pooled Layout for relPath, opening it if this is
// the first reference.
func (s *Store) Open(relPath string) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[relPath]; ok {
		return h, nil
	}
	abs := filepath.Join(s.root, relPath)
	h, err := s.layout(abs)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", relPath, err)
	}
	s.handles[relPath] = h
	return h, nil
}

// Root returns the directory this Store is rooted at.
func (s *Store) Root() string { return s.root }

// Evict closes and forgets the pooled handle for relPath, forcing the
// next Open to reopen it. Used after a repack replaces the underlying
// files out from under an open handle.
func (s *Store) Evict(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[relPath]
	if !ok {
		return nil
	}
	delete(s.handles, relPath)
	return h.Close()
}

// CloseAll closes every pooled handle.
func (s *Store) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for relPath, h := range s.handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.handles, relPath)
	}
	return first
}
