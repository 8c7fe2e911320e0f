// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dsconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/reftime"
)

// ReplacePolicy controls what happens when an import's fingerprint
// already exists in the index.
type ReplacePolicy string

const (
	ReplaceNever  ReplacePolicy = "never"
	ReplaceAlways ReplacePolicy = "always"
	ReplaceUSN    ReplacePolicy = "usn"
)

// Layout selects how a dataset lays out its segment files on disk.
type Layout string

const (
	LayoutFile Layout = "file"
	LayoutDir  Layout = "dir"
)

// IndexType selects the Index backend a dataset is served by.
type IndexType string

const (
	IndexSQLite   IndexType = "sqlite"
	IndexManifest IndexType = "manifest"
)

// Dataset is one dataset's fully-resolved, validated configuration.
type Dataset struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Path   string `json:"path"`
	Format string `json:"format"`

	Step       string `json:"step"`
	Layout     string `json:"layout"`
	Filter     string `json:"filter"`
	Unique     []string `json:"unique"`
	Index      []string `json:"index"`
	Segments   string `json:"segments"`
	Smallfiles bool   `json:"smallfiles"`
	Replace    string `json:"replace"`
	ArchiveAge int    `json:"archive_age"`
	DeleteAge  int    `json:"delete_age"`
	IndexType  string `json:"index_type"`

	Postprocess map[string][]string `json:"postprocess"`
}

// MessageFormat parses the dataset's configured message format.
func (d Dataset) MessageFormat() (message.Format, error) { return message.ParseFormat(d.Format) }

// StepOrDefault parses the configured step, defaulting to daily.
func (d Dataset) StepOrDefault() (reftime.Step, error) {
	if d.Step == "" {
		return reftime.StepDaily, nil
	}
	return reftime.ParseStep(d.Step)
}

// LayoutOrDefault returns the configured segment layout, defaulting
// to the concatenated file layout.
func (d Dataset) LayoutOrDefault() Layout {
	if d.Layout == "" {
		return LayoutFile
	}
	return Layout(d.Layout)
}

// SidecarBase returns the path prefix a segment's ".metadata"/
// ".summary" sidecars are appended to beneath root: for the
// concatenated file layout that's "<relPath>.<format-extension>"
// (alongside the ".gz"/".gz.idx" pair this dataset's store also
// writes there); for the one-file-per-message directory layout the
// member directory itself has no extension, so the sidecars sit next
// to it as "<relPath>.metadata"/".summary" directly.
func (d Dataset) SidecarBase(root, relPath string) string {
	full := filepath.Join(root, relPath)
	if d.LayoutOrDefault() == LayoutDir {
		return full
	}
	format, err := d.MessageFormat()
	if err != nil {
		return full + ".dat"
	}
	return full + "." + format.Extension()
}

// ReplaceOrDefault returns the configured replace policy, defaulting
// to never (imports never overwrite an existing fingerprint).
func (d Dataset) ReplaceOrDefault() ReplacePolicy {
	if d.Replace == "" {
		return ReplaceNever
	}
	return ReplacePolicy(d.Replace)
}

// IndexTypeOrDefault returns the configured Index backend, defaulting
// to the embedded relational backend.
func (d Dataset) IndexTypeOrDefault() IndexType {
	if d.IndexType == "" {
		return IndexSQLite
	}
	return IndexType(d.IndexType)
}

// Load reads, validates, and decodes a single dataset config file. A
// .env file alongside it, if present, overlays environment variables
// referenced by the dataset's postprocess commands before loading.
func Load(path string) (*Dataset, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("dsconfig: load %s: %w", envPath, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dsconfig: read %s: %w", path, err)
	}

	if err := Validate(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("dsconfig: validate %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var d Dataset
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("dsconfig: decode %s: %w", path, err)
	}
	return &d, nil
}

// LoadDir loads every *.json file directly under dir.
func LoadDir(dir string) ([]*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dsconfig: read dir %s: %w", dir, err)
	}
	var out []*Dataset
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		d, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
