package engine

import (
	"context"
	"database/sql"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// Rename changes a document's id and repoints every reference to it,
// including its audit history.
func (e *Engine) Rename(ctx context.Context, s Session, doctype, oldID, newID string) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}
	var result map[string]any
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		result, err = e.renameTx(ctx, tx, s, d, oldID, newID)
		return err
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return result, nil
}

func (e *Engine) renameTx(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, oldID, newID string) (map[string]any, error) {
	if newID == "" || newID == oldID {
		return nil, InvalidOperation("invalid new id for %s %s", d.Name, oldID)
	}
	if d.IsSingle {
		return nil, InvalidOperation("%s is a single and cannot be renamed", d.Name)
	}

	old, err := e.getRow(ctx, r, d, oldID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NotFound(d.Name, oldID)
	}
	if err := e.checkPermission(ctx, r, s, d, schema.ActionUpdate, old); err != nil {
		return nil, err
	}

	if taken, err := e.getRow(ctx, r, d, newID); err != nil {
		return nil, err
	} else if taken != nil {
		return nil, Constraint("%s %s already exists", d.Name, newID)
	}

	// Rename runs the same save hooks as an update, so a before-hook can
	// veto the id change.
	before, after := EventBeforeSave, EventAfterSave
	if docStatus(old) == StatusSubmitted {
		before, after = EventBeforeSaveAfterSubmit, EventAfterSaveAfterSubmit
	}
	doc := copyDoc(old)
	doc["id"] = newID
	payload := Payload{Doctype: d.Name, Event: before, Old: old, Doc: doc}
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	payload.Event = EventBeforeChange
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}

	if err := e.updateWhere(ctx, r, d,
		[]any{builder.Eq("id", oldID)},
		map[string]any{"id": newID, "updated_by": s.User, "updated_at": nowStamp()}); err != nil {
		return nil, err
	}

	for _, ref := range e.referencingFields(d.Name) {
		err := e.updateWhere(ctx, r, ref.doctype,
			[]any{builder.Eq(ref.field.Name, oldID)},
			map[string]any{ref.field.Name: newID})
		if err != nil {
			return nil, err
		}
	}
	if err := e.renameAuditRefs(ctx, r, d.Name, oldID, newID); err != nil {
		return nil, err
	}

	e.recordAudit(ctx, r, d, newID, AuditRename,
		map[string]any{"id": oldID},
		map[string]any{"id": newID}, s.User)

	result, err := e.loadDoc(ctx, r, d, newID)
	if err != nil {
		return nil, err
	}
	payload = Payload{Doctype: d.Name, Event: after, Old: old, Doc: result}
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	payload.Event = EventAfterChange
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	return result, nil
}
