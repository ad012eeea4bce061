package engine

import (
	"context"

	"github.com/huandu/go-sqlbuilder"

	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// Decision reports the two permission gates independently; an operation
// proceeds only when both hold.
type Decision struct {
	Can         bool
	UserPermCan bool
}

// Allowed reports whether both gates passed.
func (d Decision) Allowed() bool {
	return d.Can && d.UserPermCan
}

// checkPermission evaluates both gates and returns a typed error naming the
// failed gate.
func (e *Engine) checkPermission(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, action schema.Action, doc map[string]any) error {
	dec, err := e.evaluate(ctx, r, s, d, action, doc)
	if err != nil {
		return err
	}
	if !dec.Can {
		return PermissionDenied(d.Name, string(action), "doctype permission")
	}
	if !dec.UserPermCan {
		return PermissionDenied(d.Name, string(action), "user permission")
	}
	return nil
}

// evaluate runs the doctype-level gate and the row-level gate. Bypass and
// System Admin short-circuit to allow.
func (e *Engine) evaluate(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, action schema.Action, doc map[string]any) (Decision, error) {
	if s.trusted() {
		return Decision{Can: true, UserPermCan: true}, nil
	}

	can, err := e.can(ctx, r, s, d, action, doc)
	if err != nil {
		return Decision{}, err
	}
	userPermCan, err := e.canUserPermission(ctx, r, s, d, doc)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Can: can, UserPermCan: userPermCan}, nil
}

// can is the doctype-level gate: any permission row across the session's
// effective roles either grants the action outright, or grants it own-scoped
// while the acting user owns the document.
func (e *Engine) can(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, action schema.Action, doc map[string]any) (bool, error) {
	perms, err := e.loadDocPerms(ctx, r, d.Name, s.roleSet())
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Allows(action) {
			return true, nil
		}
		if !p.AllowsOwn(action) {
			continue
		}
		// Select scopes ownership in the query itself; the gate only
		// decides whether any rows can be visible at all.
		if action == schema.ActionSelect {
			return true, nil
		}
		owner := ""
		if doc != nil {
			owner = asString(doc["owner"])
		}
		if owner == "" || owner == s.User {
			return true, nil
		}
	}
	return false, nil
}

// canUserPermission is the row-level gate. Every applicable user-permission
// row must agree, and the check recurses into Extend and Reference Table
// children: row-level permission is transitive into owned child documents.
func (e *Engine) canUserPermission(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, doc map[string]any) (bool, error) {
	perms, err := e.loadUserPerms(ctx, r, s.User)
	if err != nil {
		return false, err
	}
	return e.userPermissionFor(ctx, r, s, d, doc, perms)
}

func (e *Engine) userPermissionFor(ctx context.Context, r database.Runner, s Session, d *schema.Doctype, doc map[string]any, perms []schema.UserPerm) (bool, error) {
	matched := 0
	for _, p := range perms {
		if !p.AppliesTo(d.Name) {
			continue
		}

		if p.Allow == d.Name {
			matched++
			if doc != nil && asString(doc["id"]) != "" && asString(doc["id"]) != p.Value {
				return false, nil
			}
			continue
		}

		applies := false
		for _, f := range d.OrderedFields() {
			if f.Kind() != schema.KindReference || f.Reference != p.Allow {
				continue
			}
			applies = true
			if doc == nil {
				continue
			}
			v := asString(doc[f.Name])
			// An unset reference triggers no restriction.
			if v != "" && v != p.Value {
				return false, nil
			}
		}
		if applies {
			matched++
		}
	}

	if d.RequireUserPermission && matched == 0 {
		return false, nil
	}

	// Recurse into embedded children when the document carries them.
	if doc != nil {
		for _, f := range d.OrderedFields() {
			switch f.Kind() {
			case schema.KindExtend:
				child, ok := doc[f.Name].(map[string]any)
				if !ok {
					continue
				}
				ok2, err := e.userPermissionFor(ctx, r, s, e.Schemas().Get(f.Reference), child, perms)
				if err != nil || !ok2 {
					return false, err
				}
			case schema.KindReferenceTable:
				rows, ok := doc[f.Name].([]map[string]any)
				if !ok {
					if anyRows, ok2 := doc[f.Name].([]any); ok2 {
						for _, item := range anyRows {
							if m, ok3 := item.(map[string]any); ok3 {
								rows = append(rows, m)
							}
						}
					} else {
						continue
					}
				}
				for _, child := range rows {
					ok2, err := e.userPermissionFor(ctx, r, s, e.Schemas().Get(f.Reference), child, perms)
					if err != nil || !ok2 {
						return false, err
					}
				}
			}
		}
	}

	return true, nil
}

func (e *Engine) loadDocPerms(ctx context.Context, r database.Runner, doctype string, roles []string) ([]schema.DocPerm, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("*").From(schema.DocPermTable)
	sb.Where(sb.EQ("doctype", doctype))
	roleVals := make([]any, len(roles))
	for i, role := range roles {
		roleVals[i] = role
	}
	sb.Where(sb.In("role", roleVals...))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := e.exec.Query(ctx, r, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	raw, err := e.scan.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	out := make([]schema.DocPerm, 0, len(raw))
	for _, row := range raw {
		out = append(out, schema.DocPerm{
			Doctype:      asString(row["doctype"]),
			Role:         asString(row["role"]),
			CanCreate:    int(asInt(row["can_create"])),
			CanOwnCreate: int(asInt(row["can_own_create"])),
			CanGet:       int(asInt(row["can_get"])),
			CanOwnGet:    int(asInt(row["can_own_get"])),
			CanSelect:    int(asInt(row["can_select"])),
			CanOwnSelect: int(asInt(row["can_own_select"])),
			CanUpdate:    int(asInt(row["can_update"])),
			CanOwnUpdate: int(asInt(row["can_own_update"])),
			CanDelete:    int(asInt(row["can_delete"])),
			CanOwnDelete: int(asInt(row["can_own_delete"])),
			CanSubmit:    int(asInt(row["can_submit"])),
			CanOwnSubmit: int(asInt(row["can_own_submit"])),
			CanCancel:    int(asInt(row["can_cancel"])),
			CanOwnCancel: int(asInt(row["can_own_cancel"])),
		})
	}
	return out, nil
}

func (e *Engine) loadUserPerms(ctx context.Context, r database.Runner, user string) ([]schema.UserPerm, error) {
	if user == "" {
		return nil, nil
	}
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("*").From(schema.UserPermTable)
	sb.Where(sb.EQ("user", user))
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := e.exec.Query(ctx, r, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	raw, err := e.scan.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	out := make([]schema.UserPerm, 0, len(raw))
	for _, row := range raw {
		out = append(out, schema.UserPerm{
			User:        asString(row["user"]),
			Allow:       asString(row["allow"]),
			Value:       asString(row["value"]),
			ApplyToAll:  asInt(row["apply_to_all"]) == 1,
			ApplyToOnly: asString(row["apply_to_only"]),
		})
	}
	return out, nil
}
