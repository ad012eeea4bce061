package engine

import (
	"context"
	"database/sql"

	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/naming"
	"github.com/xcono/docstore/schema"
)

// UpdateOpts tunes a single update call.
type UpdateOpts struct {
	// AllowStatusChange lets the call change doc_status directly. Status
	// transitions normally go through Submit and Cancel only.
	AllowStatusChange bool
}

// Update mutates an existing Draft or Submitted document and returns the
// formatted result. Cancelled documents are terminal for field mutation.
func (e *Engine) Update(ctx context.Context, s Session, doctype, id string, changes map[string]any, opts *UpdateOpts) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}
	var result map[string]any
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		result, err = e.updateTx(ctx, tx, s, d, id, changes, opts)
		return err
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return result, nil
}

func (e *Engine) updateTx(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, id string, input map[string]any, opts *UpdateOpts) (map[string]any, error) {
	if opts == nil {
		opts = &UpdateOpts{}
	}

	old, err := e.getRow(ctx, r, d, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NotFound(d.Name, id)
	}
	status := docStatus(old)
	if status == StatusCancelled {
		return nil, InvalidOperation("cannot update cancelled %s %s", d.Name, id)
	}

	changes := copyDoc(input)
	delete(changes, "id")

	if v, ok := changes["doc_status"]; ok {
		if asInt(v) != status && !opts.AllowStatusChange {
			return nil, InvalidOperation("doc_status cannot change through update, use submit or cancel")
		}
	}

	if v, ok := changes["owner"]; ok {
		oldOwner := asString(old["owner"])
		if asString(v) != oldOwner && oldOwner != "" && oldOwner != s.User && !s.trusted() {
			return nil, PermissionDenied(d.Name, "update", "ownership")
		}
	}

	if err := normalizeValues(d, changes); err != nil {
		return nil, err
	}

	merged := copyDoc(old)
	for k, v := range changes {
		merged[k] = v
	}

	if err := e.checkPermission(ctx, r, s, d, schema.ActionUpdate, merged); err != nil {
		return nil, err
	}

	children := extractChildren(d, changes)
	for name := range children {
		delete(merged, name)
	}

	if err := e.validate(ctx, r, d, merged, id); err != nil {
		return nil, err
	}

	// A change to any field the naming series interpolates renames the
	// document before the update is applied.
	if d.NamingSeries != "" && !d.IsSingle {
		renamed := false
		for _, name := range naming.SeriesFields(d.NamingSeries) {
			if asString(old[name]) != asString(merged[name]) {
				renamed = true
				break
			}
		}
		if renamed {
			newID, err := naming.Generate(d, merged, e.matchIDs(ctx, r, d))
			if err != nil {
				return nil, err
			}
			if newID != id {
				if _, err := e.renameTx(ctx, r, s, d, id, newID); err != nil {
					return nil, err
				}
				id = newID
				merged["id"] = newID
			}
		}
	}

	before, after := EventBeforeSave, EventAfterSave
	if status == StatusSubmitted {
		before, after = EventBeforeSaveAfterSubmit, EventAfterSaveAfterSubmit
	}
	payload := Payload{Doctype: d.Name, Event: before, Old: old, Doc: merged, Input: input}
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	payload.Event = EventBeforeChange
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}

	// Before-hooks may rewrite the document; persist whatever now differs
	// from the stored row.
	_, hookChanges := fieldDiff(d, old, merged)
	for name, v := range hookChanges {
		changes[name] = v
	}

	changes["updated_by"] = s.User
	changes["updated_at"] = nowStamp()
	if !opts.AllowStatusChange {
		changes["doc_status"] = status
	}
	if err := e.updateRow(ctx, r, d, id, changes); err != nil {
		return nil, err
	}
	if err := e.materialize(ctx, r, s, d, id, children); err != nil {
		return nil, err
	}

	oldSide, newSide := fieldDiff(d, old, merged)
	if len(newSide) > 0 {
		e.recordAudit(ctx, r, d, id, AuditUpdate, oldSide, newSide, s.User)
	}

	result, err := e.loadDoc(ctx, r, d, id)
	if err != nil {
		return nil, err
	}

	payload = Payload{Doctype: d.Name, Event: after, Old: old, Doc: result, Input: input}
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	payload.Event = EventAfterChange
	if err := e.fire(ctx, payload); err != nil {
		return nil, err
	}
	return result, nil
}
