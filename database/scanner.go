package database

import (
	"database/sql"
)

// Scanner provides utilities for scanning database results.
type Scanner struct{}

// NewScanner creates a new result scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ScanRows scans SQL rows into a slice of maps.
func (s *Scanner) ScanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for JSON serialization.
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScanOne scans at most one row into a map, returning nil when the result
// set is empty.
func (s *Scanner) ScanOne(rows *sql.Rows) (map[string]any, error) {
	results, err := s.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
