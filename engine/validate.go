package engine

import (
	"context"

	"github.com/huandu/go-sqlbuilder"

	"github.com/xcono/docstore/database"
	"github.com/xcono/docstore/schema"
)

// validateRequired checks that every required stored field carries a value.
func validateRequired(d *schema.Doctype, doc map[string]any) error {
	for _, f := range d.StoredFields() {
		if !f.Required || schema.StandardFieldNames[f.Name] {
			continue
		}
		if asString(doc[f.Name]) == "" {
			return Validation("field %s is required on %s", f.Name, d.Name)
		}
	}
	return nil
}

// validateSelectOptions checks Select fields against their declared options.
func validateSelectOptions(d *schema.Doctype, doc map[string]any) error {
	for _, f := range d.StoredFields() {
		if f.Type != schema.TypeSelect || len(f.Options) == 0 {
			continue
		}
		v := asString(doc[f.Name])
		if v == "" {
			continue
		}
		ok := false
		for _, opt := range f.Options {
			if v == opt {
				ok = true
				break
			}
		}
		if !ok {
			return Validation("field %s value %q is not one of its options", f.Name, v)
		}
	}
	return nil
}

// validateUnique enforces unique and composite-unique (group) constraints,
// excluding the document's own row on update.
func (e *Engine) validateUnique(ctx context.Context, r database.Runner, d *schema.Doctype, doc map[string]any, excludeID string) error {
	for _, f := range d.StoredFields() {
		if !f.Unique || schema.StandardFieldNames[f.Name] {
			continue
		}
		v := doc[f.Name]
		if asString(v) == "" {
			continue
		}
		n, err := e.countRows(ctx, r, d, map[string]any{f.Name: v}, excludeID)
		if err != nil {
			return err
		}
		if n > 0 {
			return Validation("field %s must be unique on %s, %v already exists", f.Name, d.Name, v)
		}
	}

	groups := map[string][]*schema.Field{}
	for _, f := range d.StoredFields() {
		if f.Group != "" {
			groups[f.Group] = append(groups[f.Group], f)
		}
	}
	for group, fields := range groups {
		probe := map[string]any{}
		for _, f := range fields {
			probe[f.Name] = doc[f.Name]
		}
		n, err := e.countRows(ctx, r, d, probe, excludeID)
		if err != nil {
			return err
		}
		if n > 0 {
			return Validation("fields of group %s must be unique together on %s", group, d.Name)
		}
	}
	return nil
}

func (e *Engine) countRows(ctx context.Context, r database.Runner, d *schema.Doctype, match map[string]any, excludeID string) (int64, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)").From(d.TableName())
	for col, v := range match {
		if v == nil {
			sb.Where(sb.IsNull(col))
		} else {
			sb.Where(sb.EQ(col, v))
		}
	}
	if excludeID != "" {
		sb.Where(sb.NE("id", excludeID))
	}
	stmt, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	var n int64
	if err := r.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// validateReferences checks that every set Reference field points at an
// existing document.
func (e *Engine) validateReferences(ctx context.Context, r database.Runner, d *schema.Doctype, doc map[string]any) error {
	for _, f := range d.StoredFields() {
		if f.Kind() != schema.KindReference {
			continue
		}
		v := asString(doc[f.Name])
		if v == "" {
			continue
		}
		target := e.Schemas().Get(f.Reference)
		if target == nil {
			return Validation("field %s references unknown doctype %s", f.Name, f.Reference)
		}
		row, err := e.getRow(ctx, r, target, v)
		if err != nil {
			return err
		}
		if row == nil {
			return Validation("field %s references missing %s %s", f.Name, f.Reference, v)
		}
	}
	return nil
}

// validate runs the full pre-write validation set.
func (e *Engine) validate(ctx context.Context, r database.Runner, d *schema.Doctype, doc map[string]any, excludeID string) error {
	if err := validateRequired(d, doc); err != nil {
		return err
	}
	if err := validateSelectOptions(d, doc); err != nil {
		return err
	}
	if err := e.validateUnique(ctx, r, d, doc, excludeID); err != nil {
		return err
	}
	return e.validateReferences(ctx, r, d, doc)
}
