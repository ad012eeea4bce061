package engine

import (
	"context"
	"sort"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// extractChildren removes Extend and Reference Table payloads from doc and
// returns them keyed by field name. They are not real columns; the parent
// row must be persisted without them.
func extractChildren(d *schema.Doctype, doc map[string]any) map[string]any {
	var children map[string]any
	for _, f := range d.OrderedFields() {
		switch f.Kind() {
		case schema.KindExtend, schema.KindReferenceTable:
			if v, ok := doc[f.Name]; ok {
				if children == nil {
					children = map[string]any{}
				}
				children[f.Name] = v
				delete(doc, f.Name)
			}
		}
	}
	return children
}

// materialize persists extracted child payloads once the parent id is
// known. Extend children are upserted; Reference Table children are
// replaced by diff: update or insert every submitted row, delete the rest.
func (e *Engine) materialize(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, parentID string, children map[string]any) error {
	// Child writes run under the parent's already-authorized operation.
	child := s
	child.Bypass = true

	for _, f := range d.OrderedFields() {
		payload, ok := children[f.Name]
		if !ok {
			continue
		}
		switch f.Kind() {
		case schema.KindExtend:
			if err := e.materializeExtend(ctx, r, child, f, parentID, payload); err != nil {
				return err
			}
		case schema.KindReferenceTable:
			if err := e.materializeTable(ctx, r, child, f, parentID, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) materializeExtend(ctx context.Context, r database.Runner, s Session, f *schema.Field, parentID string, payload any) error {
	doc, ok := payload.(map[string]any)
	if !ok {
		if payload == nil {
			return nil
		}
		return Validation("field %s expects a single %s document", f.Name, f.Reference)
	}
	target, err := e.doctype(f.Reference)
	if err != nil {
		return err
	}

	doc = copyDoc(doc)
	doc[f.LinkField] = parentID

	existing, err := e.queryRows(ctx, r, target, []any{builder.Eq(f.LinkField, parentID)})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		_, err = e.updateTx(ctx, r, s, target, asString(existing[0]["id"]), doc, nil)
		return err
	}
	_, err = e.insertTx(ctx, r, s, target, doc)
	return err
}

func (e *Engine) materializeTable(ctx context.Context, r database.Runner, s Session, f *schema.Field, parentID string, payload any) error {
	items := asDocSlice(payload)
	if items == nil && payload != nil {
		return Validation("field %s expects a list of %s documents", f.Name, f.Reference)
	}
	target, err := e.doctype(f.Reference)
	if err != nil {
		return err
	}

	existing, err := e.queryRows(ctx, r, target, []any{builder.Eq(f.LinkField, parentID)})
	if err != nil {
		return err
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, row := range existing {
		existingIDs[asString(row["id"])] = true
	}

	kept := make(map[string]bool, len(items))
	for i, item := range items {
		doc := copyDoc(item)
		doc[f.LinkField] = parentID
		doc["idx"] = i

		id := asString(doc["id"])
		if id != "" && existingIDs[id] {
			kept[id] = true
			if _, err := e.updateTx(ctx, r, s, target, id, doc, nil); err != nil {
				return err
			}
			continue
		}
		delete(doc, "id")
		inserted, err := e.insertTx(ctx, r, s, target, doc)
		if err != nil {
			return err
		}
		kept[asString(inserted["id"])] = true
	}

	// Rows absent from the submitted list are removed.
	for id := range existingIDs {
		if !kept[id] {
			if err := e.deleteTx(ctx, r, s, target, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func asDocSlice(payload any) []map[string]any {
	switch v := payload.(type) {
	case nil:
		return nil
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil
			}
			out = append(out, m)
		}
		return out
	default:
		return nil
	}
}

// loadChildren populates the document's Extend and Reference Table fields
// from their child tables, Reference Table rows ordered by idx.
func (e *Engine) loadChildren(ctx context.Context, r database.Runner, d *schema.Doctype, doc map[string]any) error {
	parentID := asString(doc["id"])
	for _, f := range d.OrderedFields() {
		switch f.Kind() {
		case schema.KindExtend, schema.KindReferenceTable:
		default:
			continue
		}
		target, err := e.doctype(f.Reference)
		if err != nil {
			return err
		}
		rows, err := e.queryRows(ctx, r, target, []any{builder.Eq(f.LinkField, parentID)})
		if err != nil {
			return err
		}
		if f.Kind() == schema.KindExtend {
			if len(rows) > 0 {
				doc[f.Name] = format(target, rows[0])
			} else {
				doc[f.Name] = nil
			}
			continue
		}
		sortByIdx(rows)
		formatted := make([]map[string]any, len(rows))
		for i, row := range rows {
			formatted[i] = format(target, row)
		}
		doc[f.Name] = formatted
	}
	return nil
}

func sortByIdx(rows []map[string]any) {
	sort.SliceStable(rows, func(i, j int) bool {
		return asInt(rows[i]["idx"]) < asInt(rows[j]["idx"])
	})
}
