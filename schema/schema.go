package schema

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of a doctype field.
type FieldType string

const (
	TypeText             FieldType = "Text"
	TypeLongText         FieldType = "Long Text"
	TypeEmail            FieldType = "Email"
	TypePassword         FieldType = "Password"
	TypeCheck            FieldType = "Check"
	TypeReference        FieldType = "Reference"
	TypeVirtualReference FieldType = "Virtual Reference"
	TypeInteger          FieldType = "Integer"
	TypeFloat            FieldType = "Float"
	TypeCurrency         FieldType = "Currency"
	TypeData             FieldType = "Data"
	TypeJSON             FieldType = "JSON"
	TypeSelect           FieldType = "Select"
	TypeDatetime         FieldType = "Datetime"
	TypeDate             FieldType = "Date"
	TypeTime             FieldType = "Time"
	TypeFile             FieldType = "File"
	TypeExtend           FieldType = "Extend"
	TypeReferenceTable   FieldType = "Reference Table"
)

// Kind collapses field types into the shapes permission evaluation and
// relationship handling recurse over.
type Kind int

const (
	KindScalar Kind = iota
	KindReference
	KindExtend
	KindReferenceTable
)

// Reference types for fields that point at another doctype.
const (
	RefPlain     = "Reference"
	RefOneToOne  = "One to One"
	RefOneToMany = "One to Many"
)

// OnDelete policies for Reference fields when the referenced document is
// deleted.
type OnDelete string

const (
	Cascade    OnDelete = "CASCADE"
	SetNull    OnDelete = "SET NULL"
	SetDefault OnDelete = "SET DEFAULT"
	NoAction   OnDelete = "NO ACTION"
)

// Field is one declared column (or virtual member) of a doctype.
type Field struct {
	Name           string    `yaml:"name" json:"name"`
	Type           FieldType `yaml:"type" json:"type"`
	Label          string    `yaml:"label" json:"label,optional"`
	Required       bool      `yaml:"required" json:"required,optional"`
	Unique         bool      `yaml:"unique" json:"unique,optional"`
	Group          string    `yaml:"group" json:"group,optional"`
	Reference      string    `yaml:"reference" json:"reference,optional"`
	ReferenceType  string    `yaml:"reference_type" json:"reference_type,optional"`
	ReferenceLabel string    `yaml:"reference_label" json:"reference_label,optional"`
	Alias          string    `yaml:"alias" json:"alias,optional"`
	BelowField     string    `yaml:"below_field" json:"below_field,optional"`
	OnDelete       OnDelete  `yaml:"on_delete" json:"on_delete,optional"`
	Default        any       `yaml:"default" json:"default,optional"`
	Options        []string  `yaml:"options" json:"options,optional"`
	ReadOnly       bool      `yaml:"readonly" json:"readonly,optional"`
	Plain          bool      `yaml:"plain" json:"plain,optional"`

	// LinkField is set on generated Extend/Reference Table mirror fields and
	// names the child-side field holding the parent id.
	LinkField string `yaml:"-" json:"-"`
}

// Kind reports the structural shape of the field.
func (f *Field) Kind() Kind {
	switch f.Type {
	case TypeExtend:
		return KindExtend
	case TypeReferenceTable:
		return KindReferenceTable
	case TypeReference:
		return KindReference
	default:
		return KindScalar
	}
}

// Stored reports whether the field maps to a real column on the doctype's
// table. Extend, Reference Table and Virtual Reference members do not.
func (f *Field) Stored() bool {
	switch f.Type {
	case TypeExtend, TypeReferenceTable, TypeVirtualReference:
		return false
	}
	return true
}

// SQLType maps the field type onto the canonical column type set.
func (f *Field) SQLType() string {
	switch f.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeCheck:
		return "BOOLEAN"
	case TypeFloat, TypeCurrency:
		return "FLOAT"
	default:
		return "TEXT"
	}
}

// Relative links a parent doctype to an owned child doctype. Derived from
// every field declared with reference_type One to One or One to Many.
type Relative struct {
	ParentDoctype  string
	ChildDoctype   string
	ChildField     string
	Alias          string
	Type           string // RefOneToOne or RefOneToMany
	ReferenceLabel string
	BelowField     string
}

// Doctype is the loaded schema of one document type. Immutable after load.
type Doctype struct {
	Name                  string
	IsSingle              bool
	IsSubmittable         bool
	TrackChanges          bool
	NamingSeries          string
	SearchFields          []string
	RequireUserPermission bool

	fields map[string]*Field
	order  []string

	Relatives []Relative
}

// Standard fields present on every document row, id always first.
var standardFields = []*Field{
	{Name: "id", Type: TypeData, ReadOnly: true},
	{Name: "owner", Type: TypeData, ReadOnly: true},
	{Name: "created_by", Type: TypeData, ReadOnly: true},
	{Name: "updated_by", Type: TypeData, ReadOnly: true},
	{Name: "created_at", Type: TypeDatetime, ReadOnly: true},
	{Name: "updated_at", Type: TypeDatetime, ReadOnly: true},
	{Name: "doc_status", Type: TypeInteger, ReadOnly: true, Default: 0},
	{Name: "idx", Type: TypeInteger, ReadOnly: true, Default: 0},
	{Name: "vector", Type: TypeText, ReadOnly: true},
}

// StandardFieldNames indexes the field names no diff or validation pass
// treats as user data.
var StandardFieldNames = func() map[string]bool {
	m := make(map[string]bool, len(standardFields))
	for _, f := range standardFields {
		m[f.Name] = true
	}
	return m
}()

// New builds a doctype from declared fields. Standard fields are injected
// up front so that id is always first in storage order.
func New(name string, declared []*Field) *Doctype {
	d := &Doctype{
		Name:   name,
		fields: make(map[string]*Field),
	}
	for _, f := range standardFields {
		c := *f
		d.addField(&c)
	}
	for _, f := range declared {
		d.addField(f)
	}
	return d
}

func (d *Doctype) addField(f *Field) {
	if _, ok := d.fields[f.Name]; !ok {
		d.order = append(d.order, f.Name)
	}
	d.fields[f.Name] = f
}

// Field returns the named field or nil.
func (d *Doctype) Field(name string) *Field {
	return d.fields[name]
}

// FieldNames returns field names in declaration order.
func (d *Doctype) FieldNames() []string {
	return d.order
}

// OrderedFields returns fields in declaration order.
func (d *Doctype) OrderedFields() []*Field {
	out := make([]*Field, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.fields[name])
	}
	return out
}

// StoredFields returns fields that map to real columns, in order.
func (d *Doctype) StoredFields() []*Field {
	var out []*Field
	for _, f := range d.OrderedFields() {
		if f.Stored() {
			out = append(out, f)
		}
	}
	return out
}

// TableName maps the doctype name onto its table name.
func (d *Doctype) TableName() string {
	return TableName(d.Name)
}

// TableName lowercases a doctype name and replaces spaces with underscores.
func TableName(doctype string) string {
	return strings.ReplaceAll(strings.ToLower(doctype), " ", "_")
}

// Schemas is the full set of loaded doctypes, keyed by doctype name. The
// engine holds one instance and replaces it wholesale on reload.
type Schemas map[string]*Doctype

// Get returns the named doctype or nil.
func (s Schemas) Get(name string) *Doctype {
	return s[name]
}

// Build validates the declared doctypes against each other and derives
// Relatives, generating the parent-side mirror field for every One to One
// and One to Many declaration. It must run once after load, before any
// doctype is used.
func Build(s Schemas) error {
	// Reference targets must exist.
	for _, d := range s {
		for _, f := range d.OrderedFields() {
			switch f.Kind() {
			case KindReference, KindExtend, KindReferenceTable:
				if f.Reference == "" {
					return fmt.Errorf("schema: %s.%s: %s field has no reference target", d.Name, f.Name, f.Type)
				}
				if s[f.Reference] == nil {
					return fmt.Errorf("schema: %s.%s references unknown doctype %q", d.Name, f.Name, f.Reference)
				}
			}
		}
	}

	// Derive relatives from child-side One to One / One to Many fields.
	for _, child := range s {
		for _, f := range child.OrderedFields() {
			if f.Kind() != KindReference {
				continue
			}
			if f.ReferenceType != RefOneToOne && f.ReferenceType != RefOneToMany {
				continue
			}
			parent := s[f.Reference]
			alias := f.Alias
			if alias == "" {
				alias = child.TableName()
			}
			if existing := parent.Field(alias); existing != nil && existing.LinkField == "" {
				return fmt.Errorf("schema: relative alias %q collides with a declared field on %s", alias, parent.Name)
			}
			rel := Relative{
				ParentDoctype:  parent.Name,
				ChildDoctype:   child.Name,
				ChildField:     f.Name,
				Alias:          alias,
				Type:           f.ReferenceType,
				ReferenceLabel: f.ReferenceLabel,
				BelowField:     f.BelowField,
			}
			parent.Relatives = append(parent.Relatives, rel)

			mirrorType := TypeExtend
			if f.ReferenceType == RefOneToMany {
				mirrorType = TypeReferenceTable
			}
			parent.addField(&Field{
				Name:      alias,
				Type:      mirrorType,
				Reference: child.Name,
				LinkField: f.Name,
			})
		}
	}
	return nil
}
