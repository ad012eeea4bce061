package engine

import (
	"context"
	"encoding/json"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/naming"
	"github.com/xcono/docstore/schema"
)

// Audit actions.
const (
	AuditUpdate = "Update"
	AuditDelete = "Delete"
	AuditSubmit = "Submit"
	AuditCancel = "Cancel"
	AuditRename = "Rename"
)

// fieldDiff returns the non-system fields whose value differs between old
// and new, as old-side and new-side maps.
func fieldDiff(d *schema.Doctype, old, new map[string]any) (map[string]any, map[string]any) {
	oldSide := map[string]any{}
	newSide := map[string]any{}
	for _, f := range d.StoredFields() {
		if schema.StandardFieldNames[f.Name] {
			continue
		}
		ov, nv := old[f.Name], new[f.Name]
		if asString(ov) == asString(nv) {
			continue
		}
		oldSide[f.Name] = ov
		newSide[f.Name] = nv
	}
	return oldSide, newSide
}

// recordAudit appends one change record when the doctype tracks changes.
// Audit persistence is best effort: failures are logged, never propagated,
// so the primary operation is not aborted by its own history.
func (e *Engine) recordAudit(ctx context.Context, r database.Runner, d *schema.Doctype, id, action string, old, new map[string]any, by string) {
	if !d.TrackChanges {
		return
	}

	oldJSON, err := json.Marshal(old)
	if err != nil {
		logx.WithContext(ctx).Errorf("audit %s %s: marshal old: %v", d.Name, id, err)
		return
	}
	newJSON, err := json.Marshal(new)
	if err != nil {
		logx.WithContext(ctx).Errorf("audit %s %s: marshal new: %v", d.Name, id, err)
		return
	}

	audit, err := e.doctype(schema.DoctypeAuditTrail)
	if err != nil {
		logx.WithContext(ctx).Errorf("audit %s %s: %v", d.Name, id, err)
		return
	}
	now := nowStamp()
	row := map[string]any{
		"id":         naming.RandomHex(16),
		"doctype":    d.Name,
		"doctype_id": id,
		"action":     action,
		"old_value":  string(oldJSON),
		"new_value":  string(newJSON),
		"by_name":    by,
		"owner":      by,
		"created_by": by,
		"updated_by": by,
		"created_at": now,
		"updated_at": now,
		"doc_status": StatusDraft,
		"idx":        0,
	}
	if err := e.insertRow(ctx, r, audit, row); err != nil {
		logx.WithContext(ctx).Errorf("audit %s %s: %v", d.Name, id, err)
	}
}

// renameAuditRefs repoints audit history at a renamed document id.
func (e *Engine) renameAuditRefs(ctx context.Context, r database.Runner, doctype, oldID, newID string) error {
	audit, err := e.doctype(schema.DoctypeAuditTrail)
	if err != nil {
		return err
	}
	return e.updateWhere(ctx, r, audit,
		[]any{builder.Eq("doctype", doctype), builder.Eq("doctype_id", oldID)},
		map[string]any{"doctype_id": newID})
}
