package engine

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// Delete removes a document, applying every referencing field's on-delete
// policy first. Submitted documents cannot be deleted.
func (e *Engine) Delete(ctx context.Context, s Session, doctype, id string) error {
	d, err := e.doctype(doctype)
	if err != nil {
		return Normalize(err)
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		return e.deleteTx(ctx, tx, s, d, id)
	})
	return Normalize(err)
}

func (e *Engine) deleteTx(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, id string) error {
	old, err := e.getRow(ctx, r, d, id)
	if err != nil {
		return err
	}
	if old == nil {
		return NotFound(d.Name, id)
	}
	if docStatus(old) == StatusSubmitted {
		return InvalidOperation("cannot delete submitted %s %s", d.Name, id)
	}

	if err := e.checkPermission(ctx, r, s, d, schema.ActionDelete, old); err != nil {
		return err
	}

	refs := e.referencingFields(d.Name)

	// First pass: collect every blocking reference, including ones reached
	// through cascading deletions, so the operator sees the complete set in
	// one error before anything is mutated.
	var blocking []string
	seen := map[string]bool{d.Name + "\x00" + id: true}
	if err := e.collectBlocking(ctx, r, d, id, seen, &blocking); err != nil {
		return err
	}
	if len(blocking) > 0 {
		return Constraint("%s %s is referenced by required fields: %s", d.Name, id, strings.Join(blocking, ", "))
	}

	cascade := s
	cascade.Bypass = true
	for _, ref := range refs {
		rows, err := e.queryRows(ctx, r, ref.doctype, []any{builder.Eq(ref.field.Name, id)})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		switch ref.policy() {
		case schema.Cascade:
			for _, row := range rows {
				if err := e.deleteTx(ctx, r, cascade, ref.doctype, asString(row["id"])); err != nil {
					return err
				}
			}
		case schema.SetDefault:
			err = e.updateWhere(ctx, r, ref.doctype,
				[]any{builder.Eq(ref.field.Name, id)},
				map[string]any{ref.field.Name: ref.field.Default})
			if err != nil {
				return err
			}
		default: // SET NULL, and NO ACTION on optional fields
			err = e.updateWhere(ctx, r, ref.doctype,
				[]any{builder.Eq(ref.field.Name, id)},
				map[string]any{ref.field.Name: nil})
			if err != nil {
				return err
			}
		}
	}

	if err := e.fire(ctx, Payload{Doctype: d.Name, Event: EventBeforeDelete, Old: old, Doc: old}); err != nil {
		return err
	}

	// Stored blobs go best effort: the delete itself must not fail on
	// storage cleanup.
	if e.files != nil {
		for _, f := range d.StoredFields() {
			if f.Type == schema.TypeFile && asString(old[f.Name]) != "" {
				if err := e.files.Delete(ctx, d.Name, id, f.Name); err != nil {
					logx.WithContext(ctx).Errorf("delete file %s.%s of %s: %v", d.Name, f.Name, id, err)
				}
			}
		}
	}

	if err := e.deleteRow(ctx, r, d, id); err != nil {
		return err
	}
	e.recordAudit(ctx, r, d, id, AuditDelete, old, nil, s.User)

	return e.fire(ctx, Payload{Doctype: d.Name, Event: EventAfterDelete, Old: old})
}

// collectBlocking walks the cascade graph rooted at one document and
// gathers every required NO ACTION reference that would block the delete.
// The seen set guards against reference cycles and duplicate pairs.
func (e *Engine) collectBlocking(ctx context.Context, r database.Runner, d *schema.Doctype, id string, seen map[string]bool, blocking *[]string) error {
	for _, ref := range e.referencingFields(d.Name) {
		rows, err := e.queryRows(ctx, r, ref.doctype, []any{builder.Eq(ref.field.Name, id)})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		switch {
		case ref.policy() == schema.NoAction && ref.field.Required:
			pair := ref.doctype.Name + "." + ref.field.Name
			if !seen[pair] {
				seen[pair] = true
				*blocking = append(*blocking, pair)
			}
		case ref.policy() == schema.Cascade:
			for _, row := range rows {
				key := ref.doctype.Name + "\x00" + asString(row["id"])
				if seen[key] {
					continue
				}
				seen[key] = true
				if err := e.collectBlocking(ctx, r, ref.doctype, asString(row["id"]), seen, blocking); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type referencing struct {
	doctype *schema.Doctype
	field   *schema.Field
}

// policy resolves the effective on-delete policy. Child-side link fields of
// owned relationships default to CASCADE; plain references to NO ACTION.
func (ref referencing) policy() schema.OnDelete {
	if ref.field.OnDelete != "" {
		return ref.field.OnDelete
	}
	if ref.field.ReferenceType == schema.RefOneToOne || ref.field.ReferenceType == schema.RefOneToMany {
		return schema.Cascade
	}
	return schema.NoAction
}

// referencingFields lists every Reference field of every doctype pointing
// at target, in deterministic order.
func (e *Engine) referencingFields(target string) []referencing {
	schemas := e.Schemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []referencing
	for _, name := range names {
		d := schemas[name]
		for _, f := range d.StoredFields() {
			if f.Kind() == schema.KindReference && f.Reference == target {
				out = append(out, referencing{doctype: d, field: f})
			}
		}
	}
	return out
}
