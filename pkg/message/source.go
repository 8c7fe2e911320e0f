// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package message

import "fmt"

// SourceKind distinguishes where a message's raw bytes live.
type SourceKind uint8

const (
	// SourceBlob points at a byte range within an on-disk segment.
	SourceBlob SourceKind = iota + 1
	// SourceInline carries the raw bytes in memory, not yet written
	// to a segment.
	SourceInline
	// SourceURL defers fetching the bytes to a remote location,
	// used for archived/offline segments.
	SourceURL
)

// Source describes where a Message's raw bytes can be read from.
type Source struct {
	Kind SourceKind

	// SourceBlob
	RelPath string
	Offset  int64
	Size    int64

	// SourceInline
	Bytes []byte

	// SourceURL
	URL string
}

func Blob(relPath string, offset, size int64) Source {
	return Source{Kind: SourceBlob, RelPath: relPath, Offset: offset, Size: size}
}

func Inline(b []byte) Source {
	return Source{Kind: SourceInline, Bytes: b, Size: int64(len(b))}
}

func AtURL(url string, size int64) Source {
	return Source{Kind: SourceURL, URL: url, Size: size}
}

func (s Source) String() string {
	switch s.Kind {
	case SourceBlob:
		return fmt.Sprintf("blob:%s:%d+%d", s.RelPath, s.Offset, s.Size)
	case SourceInline:
		return fmt.Sprintf("inline:%d bytes", len(s.Bytes))
	case SourceURL:
		return fmt.Sprintf("url:%s", s.URL)
	default:
		return "source:unknown"
	}
}
