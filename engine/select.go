package engine

import (
	"context"

	"github.com/huandu/go-sqlbuilder"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// Query shapes one list read.
type Query struct {
	// Filters holds builder.Filter and *builder.LogicalFilter values,
	// combined conjunctively.
	Filters []any
	// Fields restricts the selected columns; empty selects all stored fields.
	Fields []string
	// OrderBy lists order expressions such as "created_at DESC".
	OrderBy []string
	Limit   int
	Offset  int
}

// Select lists documents the session is allowed to see. Permission does not
// reject the call; it narrows the result set by appending filters derived
// from the session's grants.
func (e *Engine) Select(ctx context.Context, s Session, doctype string, q Query) ([]map[string]any, error) {
	d, err := e.doctype(doctype)
	if err != nil {
		return nil, Normalize(err)
	}

	permFilters, err := e.selectFilters(ctx, e.db, s, d)
	if err != nil {
		return nil, Normalize(err)
	}

	sb := sqlbuilder.NewSelectBuilder()
	if len(q.Fields) > 0 {
		sb.Select(q.Fields...)
	} else {
		sb.Select("*")
	}
	sb.From(d.TableName())
	if err := builder.ApplyToSelect(sb, q.Filters); err != nil {
		return nil, Normalize(err)
	}
	if err := builder.ApplyToSelect(sb, permFilters); err != nil {
		return nil, Normalize(err)
	}
	if len(q.OrderBy) > 0 {
		sb.OrderBy(q.OrderBy...)
	}
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sb.Offset(q.Offset)
	}

	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := e.exec.Query(ctx, e.db, stmt, args...)
	if err != nil {
		return nil, Normalize(err)
	}
	defer rows.Close()
	raw, err := e.scan.ScanRows(rows)
	if err != nil {
		return nil, Normalize(err)
	}

	out := make([]map[string]any, 0, len(raw))
	for _, row := range raw {
		out = append(out, format(d, row))
	}
	return out, nil
}

// matchNone excludes every row; id is never null.
func matchNone() builder.Filter {
	return builder.IsNull("id")
}

// selectFilters translates the session's grants into WHERE filters. Both
// gates contribute and their filters compose conjunctively.
func (e *Engine) selectFilters(ctx context.Context, r database.Runner, s Session, d *schema.Doctype) ([]any, error) {
	if s.trusted() {
		return nil, nil
	}

	var filters []any

	perms, err := e.loadDocPerms(ctx, r, d.Name, s.roleSet())
	if err != nil {
		return nil, err
	}
	full, own := false, false
	for _, p := range perms {
		if p.Allows(schema.ActionSelect) {
			full = true
		}
		if p.AllowsOwn(schema.ActionSelect) {
			own = true
		}
	}
	switch {
	case full:
	case own:
		filters = append(filters, builder.Eq("owner", s.User))
	default:
		return []any{matchNone()}, nil
	}

	userPerms, err := e.loadUserPerms(ctx, r, s.User)
	if err != nil {
		return nil, err
	}
	matched := 0
	for _, p := range userPerms {
		if !p.AppliesTo(d.Name) {
			continue
		}
		if p.Allow == d.Name {
			matched++
			filters = append(filters, builder.Eq("id", p.Value))
			continue
		}
		applies := false
		for _, f := range d.StoredFields() {
			if f.Kind() != schema.KindReference || f.Reference != p.Allow {
				continue
			}
			applies = true
			// An unset reference stays visible, mirroring the row gate,
			// which treats null and empty string alike.
			filters = append(filters, builder.Or(
				builder.Eq(f.Name, p.Value),
				builder.IsNull(f.Name),
				builder.Eq(f.Name, ""),
			))
		}
		if applies {
			matched++
		}
	}
	if d.RequireUserPermission && matched == 0 {
		return []any{matchNone()}, nil
	}
	return filters, nil
}
