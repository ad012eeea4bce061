package catalog

import (
	"database/sql"
	"fmt"
)

// Postgres reads the live catalog from information_schema.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a new Postgres catalog reader.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Tables loads table information from the public schema.
func (d *Postgres) Tables(tables ...string) ([]Table, error) {
	if len(tables) == 0 {
		all, err := d.allTables()
		if err != nil {
			return nil, fmt.Errorf("failed to get all tables: %w", err)
		}
		tables = all
	}

	var result []Table
	for _, tableName := range tables {
		columns, err := d.tableColumns(tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get info for table %s: %w", tableName, err)
		}
		result = append(result, Table{Name: tableName, Columns: columns})
	}
	return result, nil
}

func (d *Postgres) allTables() ([]string, error) {
	query := `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

func (d *Postgres) tableColumns(tableName string) ([]Column, error) {
	query := `
		SELECT
			column_name,
			data_type,
			is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := d.db.Query(query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var defaultValue sql.NullString

		err := rows.Scan(&col.Name, &col.Type, &isNullable, &defaultValue)
		if err != nil {
			return nil, err
		}

		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			col.Default = defaultValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
