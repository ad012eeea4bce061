package engine

import (
	"context"
	"database/sql"

	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/naming"
	"github.com/xcono/docstore/schema"
)

// Insert creates a new document, materializes its embedded children, and
// returns the formatted result. The document must not already exist.
func (e *Engine) Insert(ctx context.Context, s Session, doctype string, doc map[string]any) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}
	var result map[string]any
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		result, err = e.insertTx(ctx, tx, s, d, doc)
		return err
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return result, nil
}

func (e *Engine) insertTx(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, input map[string]any) (map[string]any, error) {
	doc := copyDoc(input)
	e.applyDefaults(d, doc, s)
	if err := normalizeValues(d, doc); err != nil {
		return nil, err
	}

	// Permission sees the embedded children so the row-level gate can
	// recurse into them.
	if err := e.checkPermission(ctx, r, s, d, schema.ActionCreate, doc); err != nil {
		return nil, err
	}

	children := extractChildren(d, doc)

	id := asString(doc["id"])
	if id == "" || d.IsSingle {
		generated, err := naming.Generate(d, doc, e.matchIDs(ctx, r, d))
		if err != nil {
			return nil, err
		}
		id = generated
	}
	doc["id"] = id

	if existing, err := e.getRow(ctx, r, d, id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, InvalidOperation("%s %s already exists", d.Name, id)
	}

	now := nowStamp()
	if asString(doc["owner"]) == "" {
		doc["owner"] = s.User
	}
	doc["created_by"] = s.User
	doc["updated_by"] = s.User
	doc["created_at"] = now
	doc["updated_at"] = now
	doc["doc_status"] = StatusDraft
	doc["idx"] = asInt(doc["idx"])

	if err := e.validate(ctx, r, d, doc, ""); err != nil {
		return nil, err
	}

	if err := e.fire(ctx, Payload{Doctype: d.Name, Event: EventBeforeInsert, Doc: doc, Input: input}); err != nil {
		return nil, err
	}

	if err := e.insertRow(ctx, r, d, doc); err != nil {
		return nil, err
	}
	if err := e.materialize(ctx, r, s, d, id, children); err != nil {
		return nil, err
	}

	result, err := e.loadDoc(ctx, r, d, id)
	if err != nil {
		return nil, err
	}

	if err := e.fire(ctx, Payload{Doctype: d.Name, Event: EventAfterInsert, Doc: result, Input: input}); err != nil {
		return nil, err
	}
	return result, nil
}

// loadDoc reads a document back with children materialized and sensitive
// fields masked.
func (e *Engine) loadDoc(ctx context.Context, r database.Runner, d *schema.Doctype, id string) (map[string]any, error) {
	row, err := e.getRow(ctx, r, d, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NotFound(d.Name, id)
	}
	if err := e.loadChildren(ctx, r, d, row); err != nil {
		return nil, err
	}
	return format(d, row), nil
}
