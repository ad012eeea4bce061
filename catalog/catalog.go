// Package catalog reads live database schema: table names and column
// name/type per table. The synchronization engine diffs its output against
// the declared doctype schemas.
package catalog

import (
	"database/sql"
	"fmt"
	"strings"
)

type (
	// Database reads the live catalog of one backend.
	Database interface {
		// Tables loads table information, all tables when none are named.
		Tables(tables ...string) ([]Table, error)
	}

	Table struct {
		Name    string   `json:"name"`
		Columns []Column `json:"columns"`
	}

	Column struct {
		Name       string `json:"name"`
		Type       string `json:"type"`
		Nullable   bool   `json:"nullable"`
		Default    string `json:"default"`
		PrimaryKey bool   `json:"primaryKey"`
	}
)

// Columns indexes a table's columns by name.
func (t Table) ColumnMap() map[string]Column {
	m := make(map[string]Column, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Name] = c
	}
	return m
}

// For returns the catalog reader matching the DSN's driver segment.
func For(dsn string, db *sql.DB) (Database, error) {
	driver, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("invalid dsn %q, expected driver://uri", dsn)
	}
	switch driver {
	case "sqlite3":
		return NewSQLite(db), nil
	case "mysql":
		return NewMySQL(db), nil
	case "postgres":
		return NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("no catalog reader for driver %q", driver)
	}
}
