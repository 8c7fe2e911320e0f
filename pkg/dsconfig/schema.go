// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsconfig loads and validates dataset configuration: where a
// dataset's segments live, how messages are bucketed into them, which
// metadata fields make a message unique, and how maintenance should
// treat aging data.
package dsconfig

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadSchema
}

// Validate checks raw JSON against the dataset configuration schema.
func Validate(r io.Reader) error {
	s, err := jsonschema.Compile("embedFS://schemas/dataset.schema.json")
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return fmt.Errorf("dsconfig: decode for validation: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("dsconfig: %w", err)
	}
	return nil
}
