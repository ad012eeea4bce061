package schema_test

import (
	"strings"
	"testing"

	"github.com/xcono/docstore/schema"
)

func TestStandardFieldsInjected(t *testing.T) {
	d := schema.New("Invoice", []*schema.Field{
		{Name: "title", Type: schema.TypeText},
	})

	names := d.FieldNames()
	if names[0] != "id" {
		t.Fatalf("expected id first, got %q", names[0])
	}
	for _, want := range []string{"owner", "created_by", "updated_by", "created_at", "updated_at", "doc_status", "idx", "vector", "title"} {
		if d.Field(want) == nil {
			t.Errorf("missing field %q", want)
		}
	}
}

func TestFieldKindAndStorage(t *testing.T) {
	tt := []struct {
		name   string
		field  schema.Field
		kind   schema.Kind
		stored bool
	}{
		{"text is scalar", schema.Field{Type: schema.TypeText}, schema.KindScalar, true},
		{"reference", schema.Field{Type: schema.TypeReference}, schema.KindReference, true},
		{"extend not stored", schema.Field{Type: schema.TypeExtend}, schema.KindExtend, false},
		{"reference table not stored", schema.Field{Type: schema.TypeReferenceTable}, schema.KindReferenceTable, false},
		{"virtual reference not stored", schema.Field{Type: schema.TypeVirtualReference}, schema.KindScalar, false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.field.Kind(); got != tc.kind {
				t.Errorf("kind = %v, want %v", got, tc.kind)
			}
			if got := tc.field.Stored(); got != tc.stored {
				t.Errorf("stored = %v, want %v", got, tc.stored)
			}
		})
	}
}

func TestSQLTypeMapping(t *testing.T) {
	tt := []struct {
		ftype schema.FieldType
		want  string
	}{
		{schema.TypeInteger, "INTEGER"},
		{schema.TypeCheck, "BOOLEAN"},
		{schema.TypeFloat, "FLOAT"},
		{schema.TypeCurrency, "FLOAT"},
		{schema.TypeText, "TEXT"},
		{schema.TypeJSON, "TEXT"},
		{schema.TypeDatetime, "TEXT"},
	}

	for _, tc := range tt {
		f := schema.Field{Type: tc.ftype}
		if got := f.SQLType(); got != tc.want {
			t.Errorf("SQLType(%s) = %q, want %q", tc.ftype, got, tc.want)
		}
	}
}

func TestTableName(t *testing.T) {
	if got := schema.TableName("User Permission"); got != "user_permission" {
		t.Errorf("TableName = %q", got)
	}
}

func TestBuildDerivesRelatives(t *testing.T) {
	order := schema.New("Order", nil)
	line := schema.New("Order Line", []*schema.Field{
		{Name: "order", Type: schema.TypeReference, Reference: "Order", ReferenceType: schema.RefOneToMany},
		{Name: "item", Type: schema.TypeText},
	})
	profile := schema.New("Profile", []*schema.Field{
		{Name: "parent_order", Type: schema.TypeReference, Reference: "Order", ReferenceType: schema.RefOneToOne},
	})

	s := schema.Schemas{"Order": order, "Order Line": line, "Profile": profile}
	if err := schema.Build(s); err != nil {
		t.Fatal(err)
	}

	if len(order.Relatives) != 2 {
		t.Fatalf("expected 2 relatives, got %d", len(order.Relatives))
	}

	mirror := order.Field("order_line")
	if mirror == nil {
		t.Fatal("missing mirror field order_line")
	}
	if mirror.Type != schema.TypeReferenceTable {
		t.Errorf("mirror type = %s", mirror.Type)
	}
	if mirror.LinkField != "order" {
		t.Errorf("mirror link field = %q", mirror.LinkField)
	}
	if mirror.Stored() {
		t.Error("mirror field must not be stored")
	}

	one := order.Field("profile")
	if one == nil || one.Type != schema.TypeExtend {
		t.Fatalf("expected Extend mirror for Profile, got %+v", one)
	}
}

func TestBuildRejectsUnknownReference(t *testing.T) {
	d := schema.New("Order", []*schema.Field{
		{Name: "customer", Type: schema.TypeReference, Reference: "Customer"},
	})
	err := schema.Build(schema.Schemas{"Order": d})
	if err == nil || !strings.Contains(err.Error(), "unknown doctype") {
		t.Fatalf("expected unknown doctype error, got %v", err)
	}
}

func TestBuildRejectsAliasCollision(t *testing.T) {
	parent := schema.New("Order", []*schema.Field{
		{Name: "order_line", Type: schema.TypeText},
	})
	line := schema.New("Order Line", []*schema.Field{
		{Name: "order", Type: schema.TypeReference, Reference: "Order", ReferenceType: schema.RefOneToMany},
	})
	err := schema.Build(schema.Schemas{"Order": parent, "Order Line": line})
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected alias collision error, got %v", err)
	}
}

func TestUserPermAppliesTo(t *testing.T) {
	tt := []struct {
		name string
		perm schema.UserPerm
		dt   string
		want bool
	}{
		{"apply to all", schema.UserPerm{ApplyToAll: true}, "Order", true},
		{"apply to only match", schema.UserPerm{ApplyToOnly: "Order"}, "Order", true},
		{"apply to only mismatch", schema.UserPerm{ApplyToOnly: "Invoice"}, "Order", false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.perm.AppliesTo(tc.dt); got != tc.want {
				t.Errorf("AppliesTo = %v, want %v", got, tc.want)
			}
		})
	}
}
