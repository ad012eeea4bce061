package schema

// System doctype names. These are loaded alongside user-declared doctypes
// so that permission and audit storage is synchronized like any other table.
const (
	DoctypeAuditTrail = "Audit Trail"
	DoctypeDocPerm    = "Doc Perm"
	DoctypeUserPerm   = "User Perm"
)

// SystemDoctypes returns the built-in doctypes backing the engine itself.
func SystemDoctypes() []*Doctype {
	audit := New(DoctypeAuditTrail, []*Field{
		{Name: "doctype", Type: TypeData, Required: true},
		{Name: "doctype_id", Type: TypeData, Required: true},
		{Name: "action", Type: TypeData, Required: true},
		{Name: "old_value", Type: TypeJSON},
		{Name: "new_value", Type: TypeJSON},
		{Name: "by_name", Type: TypeData},
	})

	docPerm := New(DoctypeDocPerm, []*Field{
		{Name: "doctype", Type: TypeData, Required: true},
		{Name: "role", Type: TypeData, Required: true},
		{Name: "can_create", Type: TypeInteger, Default: 0},
		{Name: "can_own_create", Type: TypeInteger, Default: 0},
		{Name: "can_get", Type: TypeInteger, Default: 0},
		{Name: "can_own_get", Type: TypeInteger, Default: 0},
		{Name: "can_select", Type: TypeInteger, Default: 0},
		{Name: "can_own_select", Type: TypeInteger, Default: 0},
		{Name: "can_update", Type: TypeInteger, Default: 0},
		{Name: "can_own_update", Type: TypeInteger, Default: 0},
		{Name: "can_delete", Type: TypeInteger, Default: 0},
		{Name: "can_own_delete", Type: TypeInteger, Default: 0},
		{Name: "can_submit", Type: TypeInteger, Default: 0},
		{Name: "can_own_submit", Type: TypeInteger, Default: 0},
		{Name: "can_cancel", Type: TypeInteger, Default: 0},
		{Name: "can_own_cancel", Type: TypeInteger, Default: 0},
	})

	userPerm := New(DoctypeUserPerm, []*Field{
		{Name: "user", Type: TypeData, Required: true},
		{Name: "allow", Type: TypeData, Required: true},
		{Name: "value", Type: TypeData},
		{Name: "apply_to_all", Type: TypeCheck, Default: false},
		{Name: "apply_to_only", Type: TypeData},
	})

	return []*Doctype{audit, docPerm, userPerm}
}

// WithSystem merges the system doctypes into s, without overwriting
// user-declared doctypes of the same name.
func WithSystem(s Schemas) Schemas {
	for _, d := range SystemDoctypes() {
		if _, ok := s[d.Name]; !ok {
			s[d.Name] = d
		}
	}
	return s
}
