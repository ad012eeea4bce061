package schema

// Action names the engine operations permission is evaluated for.
type Action string

const (
	ActionCreate Action = "create"
	ActionGet    Action = "get"
	ActionSelect Action = "select"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSubmit Action = "submit"
	ActionCancel Action = "cancel"
)

// Roles granted implicitly in addition to the user's own role set.
const (
	RoleSystemAdmin   = "System Admin"
	RoleAnonymous     = "Anonymous"
	RoleAuthenticated = "Authenticated"
)

// DocPermTable and UserPermTable are the storage tables for permission rows.
const (
	DocPermTable  = "doc_perm"
	UserPermTable = "user_perm"
)

// DocPerm is one doctype-level permission row granting a role per-action
// rights. The can_own_* variants apply only when the acting user owns the
// document.
type DocPerm struct {
	Doctype string
	Role    string

	CanCreate    int
	CanOwnCreate int
	CanGet       int
	CanOwnGet    int
	CanSelect    int
	CanOwnSelect int
	CanUpdate    int
	CanOwnUpdate int
	CanDelete    int
	CanOwnDelete int
	CanSubmit    int
	CanOwnSubmit int
	CanCancel    int
	CanOwnCancel int
}

// Allows reports the doctype-wide grant for an action.
func (p *DocPerm) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate == 1
	case ActionGet:
		return p.CanGet == 1
	case ActionSelect:
		return p.CanSelect == 1
	case ActionUpdate:
		return p.CanUpdate == 1
	case ActionDelete:
		return p.CanDelete == 1
	case ActionSubmit:
		return p.CanSubmit == 1
	case ActionCancel:
		return p.CanCancel == 1
	}
	return false
}

// AllowsOwn reports the owner-scoped grant for an action.
func (p *DocPerm) AllowsOwn(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanOwnCreate == 1
	case ActionGet:
		return p.CanOwnGet == 1
	case ActionSelect:
		return p.CanOwnSelect == 1
	case ActionUpdate:
		return p.CanOwnUpdate == 1
	case ActionDelete:
		return p.CanOwnDelete == 1
	case ActionSubmit:
		return p.CanOwnSubmit == 1
	case ActionCancel:
		return p.CanOwnCancel == 1
	}
	return false
}

// UserPerm is one row-level permission row. It restricts user to documents
// whose Reference fields pointing at Allow hold Value, or, when Allow names
// the document's own doctype, to the document with id Value.
type UserPerm struct {
	User        string
	Allow       string
	Value       string
	ApplyToAll  bool
	ApplyToOnly string
}

// AppliesTo reports whether the row constrains the given doctype.
func (p *UserPerm) AppliesTo(doctype string) bool {
	if p.ApplyToAll {
		return true
	}
	return p.ApplyToOnly == doctype
}
