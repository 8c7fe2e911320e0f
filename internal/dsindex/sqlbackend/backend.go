// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// Backend is the sqlite3-backed dsindex.Index implementation.
type Backend struct {
	db *sqlx.DB
}

// Open opens (creating and migrating if necessary) the index database
// at path.
func Open(path string) (*Backend, error) {
	db, err := openConn(path)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

var _ dsindex.Index = (*Backend)(nil)

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Insert(ctx context.Context, rec dsindex.Record) error {
	return b.upsert(ctx, rec, dsindex.ReplaceNever)
}

func (b *Backend) Replace(ctx context.Context, rec dsindex.Record, policy dsindex.ReplacePolicy) error {
	return b.upsert(ctx, rec, policy)
}

func (b *Backend) upsert(ctx context.Context, rec dsindex.Record, policy dsindex.ReplacePolicy) error {
	metadata := encodeItems(rec.Items)

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlbackend: begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing struct {
		ID  int64
		USN int64
	}
	err = tx.GetContext(ctx, &existing,
		"SELECT id, usn FROM record WHERE fingerprint = ?", fingerprintKey(rec.Fingerprint))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, insertSQL,
			fingerprintKey(rec.Fingerprint), rec.Segment, rec.Offset, rec.Size, rec.USN,
			rec.Reftime.Begin.Unix(), rec.Reftime.End.Unix(), metadata); err != nil {
			return fmt.Errorf("sqlbackend: insert: %w", err)
		}
	case err != nil:
		return fmt.Errorf("sqlbackend: lookup fingerprint: %w", err)
	default:
		switch policy {
		case dsindex.ReplaceNever:
			return fmt.Errorf("sqlbackend: fingerprint %x already indexed", rec.Fingerprint)
		case dsindex.ReplaceUSN:
			if rec.USN <= existing.USN {
				return fmt.Errorf("sqlbackend: usn %d does not supersede existing usn %d", rec.USN, existing.USN)
			}
		}
		if _, err := tx.ExecContext(ctx, updateSQL,
			rec.Segment, rec.Offset, rec.Size, rec.USN, rec.Reftime.Begin.Unix(), rec.Reftime.End.Unix(),
			metadata, existing.ID); err != nil {
			return fmt.Errorf("sqlbackend: update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM attr WHERE record_id = ?", existing.ID); err != nil {
			return fmt.Errorf("sqlbackend: clear attrs: %w", err)
		}
	}

	var recordID int64
	if err := tx.GetContext(ctx, &recordID, "SELECT id FROM record WHERE fingerprint = ?", fingerprintKey(rec.Fingerprint)); err != nil {
		return fmt.Errorf("sqlbackend: lookup new id: %w", err)
	}
	for _, it := range rec.Items {
		if _, err := tx.ExecContext(ctx, "INSERT INTO attr (record_id, code, value) VALUES (?, ?, ?)",
			recordID, int(it.TypeCode()), it.String()); err != nil {
			return fmt.Errorf("sqlbackend: insert attr: %w", err)
		}
	}

	return tx.Commit()
}

const insertSQL = `INSERT INTO record (fingerprint, segment, offset, size, usn, reftime_begin, reftime_end, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const updateSQL = `UPDATE record SET segment = ?, offset = ?, size = ?, usn = ?, reftime_begin = ?, reftime_end = ?, metadata = ?
	WHERE id = ?`

func (b *Backend) Remove(ctx context.Context, fingerprint uint64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM record WHERE fingerprint = ?", fingerprintKey(fingerprint))
	if err != nil {
		return fmt.Errorf("sqlbackend: remove: %w", err)
	}
	return nil
}

func (b *Backend) GetByFingerprint(ctx context.Context, fingerprint uint64) (*dsindex.Record, bool, error) {
	rows, err := b.queryRows(ctx, sq.Select(recordColumns...).From("record").Where(sq.Eq{"fingerprint": fingerprintKey(fingerprint)}))
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

func (b *Backend) Query(ctx context.Context, q dsindex.Query) ([]dsindex.Record, error) {
	sel := sq.Select(recordColumns...).From("record")
	sel = applyQuery(sel, q)
	return b.queryRows(ctx, sel)
}

func (b *Backend) Summary(ctx context.Context, q dsindex.Query) (*dsindex.Summary, error) {
	sel := sq.Select("COUNT(*)", "COALESCE(SUM(size),0)", "MIN(reftime_begin)", "MAX(reftime_end)").From("record")
	sel = applyQuery(sel, q)
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: build summary query: %w", err)
	}

	var count, size int64
	var begin, end sql.NullInt64
	row := b.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&count, &size, &begin, &end); err != nil {
		return nil, fmt.Errorf("sqlbackend: summary: %w", err)
	}

	out := &dsindex.Summary{Count: count, Size: size}
	if begin.Valid && end.Valid {
		rt := reftime.Interval(unixTime(begin.Int64), unixTime(end.Int64))
		out.Reftime = &rt
	}
	return out, nil
}

func (b *Backend) ScanSegment(ctx context.Context, segment string) ([]dsindex.Record, error) {
	sel := sq.Select(recordColumns...).From("record").Where(sq.Eq{"segment": segment}).OrderBy("offset")
	return b.queryRows(ctx, sel)
}

func (b *Backend) Segments(ctx context.Context) ([]string, error) {
	var out []string
	if err := b.db.SelectContext(ctx, &out, "SELECT DISTINCT segment FROM record ORDER BY segment"); err != nil {
		return nil, fmt.Errorf("sqlbackend: list segments: %w", err)
	}
	return out, nil
}

func (b *Backend) Vacuum(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("sqlbackend: vacuum: %w", err)
	}
	return nil
}

func applyQuery(sel sq.SelectBuilder, q dsindex.Query) sq.SelectBuilder {
	if q.Reftime != nil {
		sel = sel.Where(sq.LtOrEq{"reftime_begin": q.Reftime.End.Unix()}).
			Where(sq.GtOrEq{"reftime_end": q.Reftime.Begin.Unix()})
	}
	for code, item := range q.Equal {
		sel = sel.Join("attr a_"+code.String()+" ON a_"+code.String()+".record_id = record.id").
			Where(sq.Eq{"a_" + code.String() + ".code": int(code)}).
			Where(sq.Eq{"a_" + code.String() + ".value": item.String()})
	}
	return sel
}

var recordColumns = []string{"id", "fingerprint", "segment", "offset", "size", "usn", "reftime_begin", "reftime_end", "metadata"}

func (b *Backend) queryRows(ctx context.Context, sel sq.SelectBuilder) ([]dsindex.Record, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: build query: %w", err)
	}
	rows, err := b.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: query: %w", err)
	}
	defer rows.Close()

	var out []dsindex.Record
	for rows.Next() {
		var raw struct {
			ID            int64  `db:"id"`
			Fingerprint   string `db:"fingerprint"`
			Segment       string `db:"segment"`
			Offset        int64  `db:"offset"`
			Size          int64  `db:"size"`
			USN           int64  `db:"usn"`
			ReftimeBegin  int64  `db:"reftime_begin"`
			ReftimeEnd    int64  `db:"reftime_end"`
			Metadata      []byte `db:"metadata"`
		}
		if err := rows.StructScan(&raw); err != nil {
			return nil, fmt.Errorf("sqlbackend: scan row: %w", err)
		}
		items, err := decodeItems(raw.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlbackend: decode metadata for record %d: %w", raw.ID, err)
		}
		out = append(out, dsindex.Record{
			ID:          raw.ID,
			Fingerprint: parseFingerprintKey(raw.Fingerprint),
			Segment:     raw.Segment,
			Offset:      raw.Offset,
			Size:        raw.Size,
			USN:         raw.USN,
			Reftime:     reftime.Interval(unixTime(raw.ReftimeBegin), unixTime(raw.ReftimeEnd)),
			Items:       items,
		})
	}
	return out, rows.Err()
}

func encodeItems(items []wxtype.Item) []byte {
	var buf []byte
	for _, it := range items {
		buf = append(buf, wxtype.Encode(it)...)
	}
	return buf
}

func decodeItems(buf []byte) ([]wxtype.Item, error) {
	var out []wxtype.Item
	for len(buf) > 0 {
		// Items don't self-delimit their total length in the stream;
		// DecodePrefixed decodes one item and re-encodes it to learn
		// how many bytes it occupied.
		it, n, err := wxtype.DecodePrefixed(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
		buf = buf[n:]
	}
	return out, nil
}
