// Package migrate compares declared doctype schemas against the live
// database catalog and applies the DDL needed to reconcile them.
package migrate

import (
	"sort"
	"strings"

	"github.com/xcono/docstore/catalog"
	"github.com/xcono/docstore/schema"
)

// ColumnChange records a column whose live type disagrees with the declared
// type after normalization.
type ColumnChange struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Diff is the full reconciliation set between declared schema and catalog.
type Diff struct {
	TablesAdded     []string                  `json:"tablesAdded"`   // doctype names with no table
	TablesRemoved   []string                  `json:"tablesRemoved"` // table names with no doctype
	ColumnsAdded    map[string][]string       `json:"columnsAdded"`  // table -> field names
	ColumnsRemoved  map[string][]string       `json:"columnsRemoved"`
	ColumnsModified map[string][]ColumnChange `json:"columnsModified"`
}

// Empty reports whether the diff carries no work.
func (d Diff) Empty() bool {
	return len(d.TablesAdded) == 0 &&
		len(d.TablesRemoved) == 0 &&
		len(d.ColumnsAdded) == 0 &&
		len(d.ColumnsRemoved) == 0 &&
		len(d.ColumnsModified) == 0
}

// Normalize maps a vendor column type onto the canonical set TEXT, INTEGER,
// FLOAT, BOOLEAN.
func Normalize(vendorType string) string {
	t := strings.ToLower(vendorType)
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)

	mappings := map[string][]string{
		"INTEGER": {"int", "integer", "bigint", "smallint", "mediumint", "tinyint", "serial", "bigserial"},
		"FLOAT":   {"float", "double", "double precision", "decimal", "real", "numeric"},
		"BOOLEAN": {"bool", "boolean", "bit"},
	}
	for canonical, values := range mappings {
		for _, v := range values {
			if t == v {
				return canonical
			}
		}
	}
	return "TEXT"
}

// Compute diffs declared doctypes against live tables. Removals are only
// reported when destructive is set. Singles have tables like any other
// doctype; only stored fields participate.
func Compute(schemas schema.Schemas, live []catalog.Table, destructive bool) Diff {
	diff := Diff{
		ColumnsAdded:    map[string][]string{},
		ColumnsRemoved:  map[string][]string{},
		ColumnsModified: map[string][]ColumnChange{},
	}

	liveByName := make(map[string]catalog.Table, len(live))
	for _, t := range live {
		liveByName[t.Name] = t
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	declaredTables := make(map[string]bool, len(names))
	for _, name := range names {
		d := schemas[name]
		table := d.TableName()
		declaredTables[table] = true

		liveTable, ok := liveByName[table]
		if !ok {
			diff.TablesAdded = append(diff.TablesAdded, name)
			continue
		}

		liveCols := liveTable.ColumnMap()
		declaredCols := make(map[string]bool)
		for _, f := range d.StoredFields() {
			declaredCols[f.Name] = true
			liveCol, ok := liveCols[f.Name]
			if !ok {
				diff.ColumnsAdded[table] = append(diff.ColumnsAdded[table], f.Name)
				continue
			}
			from, to := Normalize(liveCol.Type), f.SQLType()
			if from != to {
				diff.ColumnsModified[table] = append(diff.ColumnsModified[table], ColumnChange{
					Name: f.Name, From: from, To: to,
				})
			}
		}

		if destructive {
			for _, col := range liveTable.Columns {
				if !declaredCols[col.Name] {
					diff.ColumnsRemoved[table] = append(diff.ColumnsRemoved[table], col.Name)
				}
			}
		}
	}

	if destructive {
		for _, t := range live {
			if !declaredTables[t.Name] {
				diff.TablesRemoved = append(diff.TablesRemoved, t.Name)
			}
		}
		sort.Strings(diff.TablesRemoved)
	}

	return diff
}
