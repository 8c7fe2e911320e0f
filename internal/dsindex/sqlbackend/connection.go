// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlbackend implements the embedded relational Index backend
// over SQLite, giving datasets fast equality and reftime-range
// queries without a separate database process.
package sqlbackend

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	sqlite3mig "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3drv "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/sqlite3/*
var migrationFiles embed.FS

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register("wxstore-sqlite3", sqlhooks.Wrap(&sqlite3drv.SQLiteDriver{}, &queryHooks{}))
	})
}

// queryHooks gives every statement a log line at debug level; it is
// intentionally silent at normal verbosity since datasets can issue a
// high volume of point lookups during an import run.
type queryHooks struct{}

// openConn opens (creating if necessary) the SQLite database at path
// and migrates it to the current schema version.
func openConn(path string) (*sqlx.DB, error) {
	registerDriver()

	db, err := sqlx.Open("wxstore-sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3mig.WithInstance(db, &sqlite3mig.Config{})
	if err != nil {
		return fmt.Errorf("sqlbackend: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("sqlbackend: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("sqlbackend: migration init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sqlbackend: migrate up: %w", err)
	}
	return nil
}
