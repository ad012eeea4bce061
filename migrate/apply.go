package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/xcono/docstore/catalog"
	"github.com/xcono/docstore/schema"
)

// OpKind names one DDL operation class.
type OpKind string

const (
	OpCreateTable OpKind = "create_table"
	OpAddColumn   OpKind = "add_column"
	OpRebuild     OpKind = "rebuild_table" // type change or column removal
	OpDropTable   OpKind = "drop_table"
)

// Operation is one planned DDL step.
type Operation struct {
	Kind    OpKind
	Doctype string // set for create_table and rebuild_table
	Table   string
	Columns []string // added columns for add_column, removed for rebuild
	// destructive marks rebuilds that remove columns; their failures abort
	// the sync instead of being skipped.
	destructive bool
}

// Migrator reconciles declared schemas with a live database.
type Migrator struct {
	db      *sql.DB
	cat     catalog.Database
	schemas schema.Schemas

	Destructive bool
	EmitNotNull bool
}

// New creates a migrator over the given connection and catalog reader.
func New(db *sql.DB, cat catalog.Database, schemas schema.Schemas) *Migrator {
	return &Migrator{db: db, cat: cat, schemas: schemas}
}

// Diff reads the live catalog and compares it with the declared schemas.
func (m *Migrator) Diff() (Diff, error) {
	tables, err := m.cat.Tables()
	if err != nil {
		return Diff{}, fmt.Errorf("migrate: read catalog: %w", err)
	}
	return Compute(m.schemas, tables, m.Destructive), nil
}

// Plan orders a diff into executable operations: creates before column
// changes before drops, so later steps never reference missing tables.
func (m *Migrator) Plan(diff Diff) []Operation {
	var ops []Operation

	for _, doctype := range diff.TablesAdded {
		ops = append(ops, Operation{
			Kind:    OpCreateTable,
			Doctype: doctype,
			Table:   schema.TableName(doctype),
		})
	}

	for table, cols := range diff.ColumnsAdded {
		ops = append(ops, Operation{Kind: OpAddColumn, Doctype: m.doctypeFor(table), Table: table, Columns: cols})
	}

	// One rebuild covers every modified and removed column of a table.
	rebuilt := map[string]bool{}
	for table := range diff.ColumnsModified {
		rebuilt[table] = true
	}
	for table := range diff.ColumnsRemoved {
		rebuilt[table] = true
	}
	for table := range rebuilt {
		ops = append(ops, Operation{
			Kind:        OpRebuild,
			Doctype:     m.doctypeFor(table),
			Table:       table,
			Columns:     diff.ColumnsRemoved[table],
			destructive: len(diff.ColumnsRemoved[table]) > 0,
		})
	}

	for _, table := range diff.TablesRemoved {
		ops = append(ops, Operation{Kind: OpDropTable, Table: table, destructive: true})
	}

	return ops
}

func (m *Migrator) doctypeFor(table string) string {
	for name, d := range m.schemas {
		if d.TableName() == table {
			return name
		}
	}
	return ""
}

// Sync diffs and applies in one pass.
func (m *Migrator) Sync(ctx context.Context) error {
	diff, err := m.Diff()
	if err != nil {
		return err
	}
	return m.Apply(ctx, m.Plan(diff))
}

// Apply executes operations sequentially. Additive failures are logged and
// skipped; destructive cleanup failures abort the sync.
func (m *Migrator) Apply(ctx context.Context, ops []Operation) error {
	for _, op := range ops {
		if err := m.apply(ctx, op); err != nil {
			if op.destructive {
				return fmt.Errorf("migrate: %s %s: %w", op.Kind, op.Table, err)
			}
			logx.WithContext(ctx).Errorf("migrate: %s %s skipped: %v", op.Kind, op.Table, err)
		}
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, op Operation) error {
	switch op.Kind {
	case OpCreateTable:
		d := m.schemas.Get(op.Doctype)
		if d == nil {
			return fmt.Errorf("unknown doctype %q", op.Doctype)
		}
		logx.WithContext(ctx).Infof("migrate: create table %s", op.Table)
		_, err := m.db.ExecContext(ctx, m.createTableSQL(d, op.Table))
		return err

	case OpAddColumn:
		d := m.schemas.Get(op.Doctype)
		if d == nil {
			return fmt.Errorf("unknown doctype for table %q", op.Table)
		}
		for _, col := range op.Columns {
			f := d.Field(col)
			if f == nil {
				return fmt.Errorf("unknown field %q", col)
			}
			logx.WithContext(ctx).Infof("migrate: add column %s.%s", op.Table, col)
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(op.Table), m.columnDef(f))
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil

	case OpRebuild:
		return m.rebuild(ctx, op)

	case OpDropTable:
		logx.WithContext(ctx).Infof("migrate: drop table %s", op.Table)
		_, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(op.Table)))
		return err
	}
	return fmt.Errorf("unknown operation %q", op.Kind)
}

// rebuild replaces a table via the shadow-table strategy: the backend has no
// in-place ALTER for type changes or column drops. Create the shadow, copy
// the intersecting columns, drop the original, rename.
func (m *Migrator) rebuild(ctx context.Context, op Operation) error {
	d := m.schemas.Get(op.Doctype)
	if d == nil {
		return fmt.Errorf("unknown doctype for table %q", op.Table)
	}
	logx.WithContext(ctx).Infof("migrate: rebuild table %s", op.Table)

	live, err := m.cat.Tables(op.Table)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return fmt.Errorf("table %q not found in catalog", op.Table)
	}
	liveCols := live[0].ColumnMap()

	var copied []string
	for _, f := range d.StoredFields() {
		if _, ok := liveCols[f.Name]; ok {
			copied = append(copied, quote(f.Name))
		}
	}

	shadow := op.Table + "__new"
	stmts := []string{
		m.createTableSQL(d, shadow),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quote(shadow), strings.Join(copied, ", "), strings.Join(copied, ", "), quote(op.Table)),
		fmt.Sprintf("DROP TABLE %s", quote(op.Table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(shadow), quote(op.Table)),
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) createTableSQL(d *schema.Doctype, table string) string {
	var defs []string
	for _, f := range d.StoredFields() {
		defs = append(defs, m.columnDef(f))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(defs, ", "))
}

func (m *Migrator) columnDef(f *schema.Field) string {
	def := quote(f.Name) + " " + f.SQLType()
	if f.Name == "id" {
		def += " PRIMARY KEY"
	}
	// NOT NULL is off by default: requiredness is enforced by validation,
	// and the backend cannot add NOT NULL to a populated column without a
	// rebuild.
	if m.EmitNotNull && f.Required {
		def += " NOT NULL"
	}
	return def
}

func quote(ident string) string {
	return `"` + ident + `"`
}
