package catalog

import (
	"database/sql"
	"fmt"
)

// MySQL reads the live catalog from information_schema.
type MySQL struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL catalog reader.
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

// Tables loads table information from `information_schema.columns`.
func (d *MySQL) Tables(tables ...string) ([]Table, error) {
	var dbName string
	err := d.db.QueryRow("SELECT DATABASE()").Scan(&dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve database name: %w", err)
	}

	if len(tables) == 0 {
		allTables, err := d.allTables(dbName)
		if err != nil {
			return nil, fmt.Errorf("failed to get all tables: %w", err)
		}
		tables = allTables
	}

	var result []Table
	for _, tableName := range tables {
		columns, err := d.tableColumns(dbName, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get info for table %s: %w", tableName, err)
		}
		result = append(result, Table{Name: tableName, Columns: columns})
	}
	return result, nil
}

func (d *MySQL) allTables(dbName string) ([]string, error) {
	query := `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'`

	rows, err := d.db.Query(query, dbName)
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

func (d *MySQL) tableColumns(dbName, tableName string) ([]Column, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := d.db.Query(query, dbName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable, key string
		var defaultValue sql.NullString

		err := rows.Scan(&col.Name, &col.Type, &isNullable, &defaultValue, &key)
		if err != nil {
			return nil, err
		}

		col.Nullable = isNullable == "YES"
		col.PrimaryKey = key == "PRI"
		if defaultValue.Valid {
			col.Default = defaultValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
