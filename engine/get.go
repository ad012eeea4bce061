package engine

import (
	"context"

	"github.com/xcono/docstore/schema"
)

// Get reads one document with its embedded children. Reads run outside any
// transaction.
func (e *Engine) Get(ctx context.Context, s Session, doctype, id string) (map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}

	row, err := e.getRow(ctx, e.db, d, id)
	if err != nil {
		return nil, Normalize(err)
	}
	if row == nil {
		return nil, NotFound(d.Name, id)
	}
	if err := e.loadChildren(ctx, e.db, d, row); err != nil {
		return nil, Normalize(err)
	}
	if err := e.checkPermission(ctx, e.db, s, d, schema.ActionGet, row); err != nil {
		return nil, Normalize(err)
	}
	return format(d, row), nil
}
