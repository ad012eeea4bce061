package engine

import (
	"context"
	"database/sql"

	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// Submit finalizes a Draft document. Only submittable doctypes accept the
// transition, and it is one way: Draft to Submitted.
func (e *Engine) Submit(ctx context.Context, s Session, doctype, id string) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}
	var result map[string]any
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		result, err = e.transition(ctx, tx, s, d, id, StatusSubmitted)
		return err
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return result, nil
}

// Cancel retires a Submitted document. Cancelled is terminal.
func (e *Engine) Cancel(ctx context.Context, s Session, doctype, id string) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}
	var result map[string]any
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		result, err = e.transition(ctx, tx, s, d, id, StatusCancelled)
		return err
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return result, nil
}

func (e *Engine) transition(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, id string, target int64) (map[string]any, error) {
	if !d.IsSubmittable {
		return nil, InvalidOperation("%s is not submittable", d.Name)
	}

	old, err := e.getRow(ctx, r, d, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NotFound(d.Name, id)
	}

	status := docStatus(old)
	action, auditAction, before, after := schema.ActionSubmit, AuditSubmit, EventBeforeSubmit, EventAfterSubmit
	switch target {
	case StatusSubmitted:
		if status != StatusDraft {
			return nil, InvalidOperation("cannot submit %s %s, status is %d", d.Name, id, status)
		}
	case StatusCancelled:
		if status != StatusSubmitted {
			return nil, InvalidOperation("cannot cancel %s %s, status is %d", d.Name, id, status)
		}
		action, auditAction, before, after = schema.ActionCancel, AuditCancel, EventBeforeCancel, EventAfterCancel
	}

	if err := e.checkPermission(ctx, r, s, d, action, old); err != nil {
		return nil, err
	}

	if err := e.fire(ctx, Payload{Doctype: d.Name, Event: before, Old: old, Doc: old}); err != nil {
		return nil, err
	}

	changes := map[string]any{
		"doc_status": target,
		"updated_by": s.User,
		"updated_at": nowStamp(),
	}
	if err := e.updateRow(ctx, r, d, id, changes); err != nil {
		return nil, err
	}
	e.recordAudit(ctx, r, d, id, auditAction,
		map[string]any{"doc_status": status},
		map[string]any{"doc_status": target}, s.User)

	result, err := e.loadDoc(ctx, r, d, id)
	if err != nil {
		return nil, err
	}
	if err := e.fire(ctx, Payload{Doctype: d.Name, Event: after, Old: old, Doc: result}); err != nil {
		return nil, err
	}
	return result, nil
}
