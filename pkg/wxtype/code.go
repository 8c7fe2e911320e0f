// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wxtype implements the tagged-variant metadata value model: a
// closed enumeration of type-codes, each with one or more style
// variants carrying typed fields, a canonical binary encoding used for
// content-addressed fingerprints, and an ordering that sorts by
// type-code first, then style, then field-by-field.
package wxtype

import "fmt"

// Code is the closed enumeration of metadata type-codes a message's
// items can carry.
type Code uint8

const (
	CodeOrigin Code = iota + 1
	CodeProduct
	CodeLevel
	CodeTimerange
	CodeReftime
	CodeArea
	CodeProddef
	CodeRun
	CodeNote
	CodeSource
	CodeAssignedDataset
	CodeTask
	CodeQuantity
	CodeValue
)

var codeNames = map[Code]string{
	CodeOrigin:          "origin",
	CodeProduct:         "product",
	CodeLevel:           "level",
	CodeTimerange:       "timerange",
	CodeReftime:         "reftime",
	CodeArea:            "area",
	CodeProddef:         "proddef",
	CodeRun:             "run",
	CodeNote:            "note",
	CodeSource:          "source",
	CodeAssignedDataset: "assigneddataset",
	CodeTask:            "task",
	CodeQuantity:        "quantity",
	CodeValue:           "value",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// ParseCode maps a configuration-surface type-code name (as used in a
// dataset's `unique`/`index` lists) to its Code.
func ParseCode(name string) (Code, error) {
	for c, n := range codeNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("wxtype: unknown type-code %q", name)
}

// AllCodes lists the closed enumeration in a stable order, used when
// iterating a dataset's configured `unique`/`index` key sets.
func AllCodes() []Code {
	return []Code{
		CodeOrigin, CodeProduct, CodeLevel, CodeTimerange, CodeReftime,
		CodeArea, CodeProddef, CodeRun, CodeNote, CodeSource,
		CodeAssignedDataset, CodeTask, CodeQuantity, CodeValue,
	}
}
