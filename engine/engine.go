// Package engine is the document orchestrator: schema-driven CRUD and
// workflow over a relational database, with uniform permission evaluation,
// relationship materialization, naming and audit history.
package engine

import (
	"context"
	"database/sql"
	"sync"

	"github.com/huandu/go-sqlbuilder"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/naming"
	"github.com/xcono/docstore/schema"
)

// Session identifies the acting user for one operation.
type Session struct {
	User          string
	Roles         []string
	Authenticated bool
	// Bypass skips permission evaluation, for system-initiated or trusted
	// operations.
	Bypass bool
}

// roleSet is the effective role set: the user's roles plus Anonymous, plus
// Authenticated when a user is signed in.
func (s Session) roleSet() []string {
	roles := append([]string{}, s.Roles...)
	roles = append(roles, schema.RoleAnonymous)
	if s.Authenticated {
		roles = append(roles, schema.RoleAuthenticated)
	}
	return roles
}

func (s Session) isAdmin() bool {
	for _, r := range s.Roles {
		if r == schema.RoleSystemAdmin {
			return true
		}
	}
	return false
}

// trusted reports whether permission evaluation is short-circuited to allow.
func (s Session) trusted() bool {
	return s.Bypass || s.isAdmin()
}

// Engine executes document operations against one database.
type Engine struct {
	db       *sql.DB
	exec     *database.Executor
	scan     *database.Scanner
	registry *Registry
	notifier Notifier
	files    FileStore

	mu      sync.RWMutex
	schemas schema.Schemas
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry installs the lifecycle callback registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithNotifier installs the realtime notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithFileStore installs the blob store used for File fields.
func WithFileStore(fs FileStore) Option {
	return func(e *Engine) { e.files = fs }
}

// New creates an engine over the given connection and loaded schemas.
func New(db *sql.DB, schemas schema.Schemas, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		exec:     database.NewExecutor(db),
		scan:     database.NewScanner(),
		registry: NewRegistry(),
		schemas:  schemas,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schemas returns the current schema snapshot.
func (e *Engine) Schemas() schema.Schemas {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schemas
}

// SetSchemas replaces the schema set wholesale. In-flight operations keep
// the snapshot they started with.
func (e *Engine) SetSchemas(s schema.Schemas) {
	e.mu.Lock()
	e.schemas = s
	e.mu.Unlock()
}

// Registry exposes the lifecycle callback registry for subscription.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) doctype(name string) (*schema.Doctype, error) {
	d := e.Schemas().Get(name)
	if d == nil {
		return nil, NotFound("doctype", name)
	}
	return d, nil
}

func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, e.db, fn)
}

// getRow reads one raw row by id, nil when absent.
func (e *Engine) getRow(ctx context.Context, r database.Runner, d *schema.Doctype, id string) (map[string]any, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("*").From(d.TableName())
	sb.Where(sb.EQ("id", id))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := e.exec.Query(ctx, r, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return e.scan.ScanOne(rows)
}

// insertRow persists the stored fields present in doc.
func (e *Engine) insertRow(ctx context.Context, r database.Runner, d *schema.Doctype, doc map[string]any) error {
	var cols []string
	var vals []any
	for _, f := range d.StoredFields() {
		if v, ok := doc[f.Name]; ok {
			cols = append(cols, f.Name)
			vals = append(vals, v)
		}
	}
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto(d.TableName())
	ib.Cols(cols...)
	ib.Values(vals...)
	stmt, args := ib.BuildWithFlavor(sqlbuilder.SQLite)
	_, err := e.exec.Exec(ctx, r, stmt, args...)
	return err
}

// updateRow persists the stored fields present in doc for one id.
func (e *Engine) updateRow(ctx context.Context, r database.Runner, d *schema.Doctype, id string, doc map[string]any) error {
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update(d.TableName())
	var assigns []string
	for _, f := range d.StoredFields() {
		if f.Name == "id" {
			continue
		}
		if v, ok := doc[f.Name]; ok {
			assigns = append(assigns, ub.Assign(f.Name, v))
		}
	}
	if len(assigns) == 0 {
		return nil
	}
	ub.Set(assigns...)
	ub.Where(ub.EQ("id", id))
	stmt, args := ub.BuildWithFlavor(sqlbuilder.SQLite)
	_, err := e.exec.Exec(ctx, r, stmt, args...)
	return err
}

// updateWhere assigns columns on every row matching the filters.
func (e *Engine) updateWhere(ctx context.Context, r database.Runner, d *schema.Doctype, filters []any, set map[string]any) error {
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update(d.TableName())
	var assigns []string
	for col, v := range set {
		assigns = append(assigns, ub.Assign(col, v))
	}
	ub.Set(assigns...)
	if err := builder.ApplyToUpdate(ub, filters); err != nil {
		return err
	}
	stmt, args := ub.BuildWithFlavor(sqlbuilder.SQLite)
	_, err := e.exec.Exec(ctx, r, stmt, args...)
	return err
}

// deleteRow removes one row by id.
func (e *Engine) deleteRow(ctx context.Context, r database.Runner, d *schema.Doctype, id string) error {
	db := sqlbuilder.NewDeleteBuilder()
	db.DeleteFrom(d.TableName())
	db.Where(db.EQ("id", id))
	stmt, args := db.BuildWithFlavor(sqlbuilder.SQLite)
	_, err := e.exec.Exec(ctx, r, stmt, args...)
	return err
}

// queryRows runs a filtered select against a doctype's table.
func (e *Engine) queryRows(ctx context.Context, r database.Runner, d *schema.Doctype, filters []any) ([]map[string]any, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("*").From(d.TableName())
	if err := builder.ApplyToSelect(sb, filters); err != nil {
		return nil, err
	}
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := e.exec.Query(ctx, r, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return e.scan.ScanRows(rows)
}

// matchIDs returns existing ids sharing a naming counter's prefix and
// suffix, for max-plus-one resolution.
func (e *Engine) matchIDs(ctx context.Context, r database.Runner, d *schema.Doctype) func(prefix, suffix string) ([]string, error) {
	return func(prefix, suffix string) ([]string, error) {
		sb := sqlbuilder.NewSelectBuilder()
		sb.Select("id").From(d.TableName())
		pattern := sb.Args.Add(naming.LikePattern(prefix, suffix))
		sb.Where("id LIKE " + pattern + ` ESCAPE '\'`)
		stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
		rows, err := e.exec.Query(ctx, r, stmt, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	}
}
