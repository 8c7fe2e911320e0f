// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dsconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
  "name": "synop",
  "type": "local",
  "path": "/data/synop",
  "format": "bufr",
  "step": "daily",
  "unique": ["origin", "product", "reftime", "area"],
  "replace": "usn",
  "archive_age": 60,
  "delete_age": 365
}`

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, Validate(bytes.NewBufferString(validConfig)))
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	bad := `{"name":"x","type":"local","path":"/tmp","format":"netcdf"}`
	assert.Error(t, Validate(bytes.NewBufferString(bad)))
}

func TestLoadParsesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synop.json")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "synop", d.Name)
	assert.Equal(t, ReplaceUSN, d.ReplaceOrDefault())
	assert.Equal(t, LayoutFile, d.LayoutOrDefault())
	assert.Equal(t, IndexSQLite, d.IndexTypeOrDefault())

	step, err := d.StepOrDefault()
	require.NoError(t, err)
	assert.Equal(t, "daily", string(step))
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x","type":"local","path":"/tmp","format":"bufr","bogus":1}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDirCollectsAllDatasets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "synop.json"), []byte(validConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not json"), 0o644))

	ds, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "synop", ds[0].Name)
}
