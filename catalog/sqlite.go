package catalog

import (
	"database/sql"
	"fmt"
)

// SQLite reads the live catalog from sqlite_master and PRAGMA table_info.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite catalog reader.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Tables loads table information.
func (d *SQLite) Tables(tables ...string) ([]Table, error) {
	if len(tables) == 0 {
		all, err := d.allTables()
		if err != nil {
			return nil, fmt.Errorf("failed to get all tables: %w", err)
		}
		tables = all
	}

	var result []Table
	for _, name := range tables {
		columns, err := d.tableColumns(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get info for table %s: %w", name, err)
		}
		result = append(result, Table{Name: name, Columns: columns})
	}
	return result, nil
}

func (d *SQLite) allTables() ([]string, error) {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *SQLite) tableColumns(tableName string) ([]Column, error) {
	rows, err := d.db.Query(`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		if defaultValue.Valid {
			col.Default = defaultValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
