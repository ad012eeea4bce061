package engine_test

import (
	"context"
	"testing"

	"github.com/xcono/docstore/builder"
	"github.com/xcono/docstore/engine"
	"github.com/xcono/docstore/schema"
)

func seedDocPerm(t *testing.T, e *engine.Engine, doctype, role string, grants map[string]any) {
	t.Helper()
	doc := map[string]any{"doctype": doctype, "role": role}
	for k, v := range grants {
		doc[k] = v
	}
	mustInsert(t, e, admin, "Doc Perm", doc)
}

func seedUserPerm(t *testing.T, e *engine.Engine, user, allow, value string) {
	t.Helper()
	mustInsert(t, e, admin, "User Perm", map[string]any{
		"user": user, "allow": allow, "value": value, "apply_to_all": true,
	})
}

func TestDoctypeGate(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, alice, "Customer", map[string]any{"full_name": "Eve"})
	wantKind(t, err, engine.KindPermissionDenied)

	seedDocPerm(t, e, "Customer", "Sales", map[string]any{"can_create": 1})
	if _, err := e.Insert(ctx, alice, "Customer", map[string]any{"full_name": "Eve"}); err != nil {
		t.Fatal(err)
	}

	// The grant is role-scoped, not user-scoped.
	carol := engine.Session{User: "carol@local", Roles: []string{"Support"}, Authenticated: true}
	_, err = e.Insert(ctx, carol, "Customer", map[string]any{"full_name": "Zed"})
	wantKind(t, err, engine.KindPermissionDenied)
}

func TestOwnScopedUpdate(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	seedDocPerm(t, e, "Customer", "Sales", map[string]any{
		"can_create": 1, "can_get": 1, "can_own_update": 1,
	})

	out, err := e.Insert(ctx, alice, "Customer", map[string]any{"full_name": "Eve"})
	if err != nil {
		t.Fatal(err)
	}
	id := out["id"].(string)
	if out["owner"] != alice.User {
		t.Fatalf("owner = %v", out["owner"])
	}

	if _, err := e.Update(ctx, alice, "Customer", id, map[string]any{"full_name": "Eve II"}, nil); err != nil {
		t.Fatal(err)
	}
	_, err = e.Update(ctx, bob, "Customer", id, map[string]any{"full_name": "Hijack"}, nil)
	wantKind(t, err, engine.KindPermissionDenied)
}

func TestOwnershipTransferGuard(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	seedDocPerm(t, e, "Customer", "Sales", map[string]any{"can_create": 1, "can_update": 1})

	out, err := e.Insert(ctx, alice, "Customer", map[string]any{"full_name": "Eve"})
	if err != nil {
		t.Fatal(err)
	}
	id := out["id"].(string)

	// Full update rights do not cover taking someone else's document.
	_, err = e.Update(ctx, bob, "Customer", id, map[string]any{"owner": bob.User}, nil)
	wantKind(t, err, engine.KindPermissionDenied)

	// The owner may hand it over, and an admin may reassign anything.
	if _, err := e.Update(ctx, alice, "Customer", id, map[string]any{"owner": bob.User}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Update(ctx, admin, "Customer", id, map[string]any{"owner": alice.User}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestUserPermissionGate(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	newCustomer(t, e, map[string]any{"id": "C-1"})
	newCustomer(t, e, map[string]any{"id": "C-2", "full_name": "Bob"})
	o1 := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": "C-1"})
	o2 := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": "C-2"})

	seedDocPerm(t, e, "Sales Order", "Sales", map[string]any{"can_get": 1, "can_create": 1})
	seedUserPerm(t, e, alice.User, "Customer", "C-1")

	if _, err := e.Get(ctx, alice, "Sales Order", o1["id"].(string)); err != nil {
		t.Fatal(err)
	}
	_, err := e.Get(ctx, alice, "Sales Order", o2["id"].(string))
	wantKind(t, err, engine.KindPermissionDenied)

	// The restriction follows the reference into writes too.
	_, err = e.Insert(ctx, alice, "Sales Order", map[string]any{"customer": "C-2"})
	wantKind(t, err, engine.KindPermissionDenied)
	if _, err := e.Insert(ctx, alice, "Sales Order", map[string]any{"customer": "C-1"}); err != nil {
		t.Fatal(err)
	}
}

func TestUserPermissionOwnDoctype(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	newCustomer(t, e, map[string]any{"id": "C-1"})
	newCustomer(t, e, map[string]any{"id": "C-2", "full_name": "Bob"})

	seedDocPerm(t, e, "Customer", "Sales", map[string]any{"can_get": 1})
	seedUserPerm(t, e, alice.User, "Customer", "C-1")

	if _, err := e.Get(ctx, alice, "Customer", "C-1"); err != nil {
		t.Fatal(err)
	}
	_, err := e.Get(ctx, alice, "Customer", "C-2")
	wantKind(t, err, engine.KindPermissionDenied)
}

func TestRequireUserPermission(t *testing.T) {
	s := testSchemas(t)
	s["Sales Order"].RequireUserPermission = true
	e, _ := newEngineWith(t, s)
	ctx := context.Background()

	newCustomer(t, e, map[string]any{"id": "C-1"})
	o1 := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": "C-1"})
	seedDocPerm(t, e, "Sales Order", "Sales", map[string]any{"can_get": 1})

	// The doctype grant alone is not enough.
	_, err := e.Get(ctx, alice, "Sales Order", o1["id"].(string))
	wantKind(t, err, engine.KindPermissionDenied)

	seedUserPerm(t, e, alice.User, "Customer", "C-1")
	if _, err := e.Get(ctx, alice, "Sales Order", o1["id"].(string)); err != nil {
		t.Fatal(err)
	}
}

func TestSelectOwnScope(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	seedDocPerm(t, e, "Customer", "Sales", map[string]any{"can_create": 1, "can_own_select": 1})

	mine, err := e.Insert(ctx, alice, "Customer", map[string]any{"full_name": "Mine"})
	if err != nil {
		t.Fatal(err)
	}
	newCustomer(t, e, map[string]any{"full_name": "Theirs"})

	rows, err := e.Select(ctx, alice, "Customer", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] != mine["id"] {
		t.Fatalf("rows = %v", rows)
	}

	// Same role, no owned rows.
	rows, err = e.Select(ctx, bob, "Customer", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("bob sees %d rows", len(rows))
	}

	// No grant at all yields an empty set, not an error.
	carol := engine.Session{User: "carol@local", Roles: []string{"Support"}, Authenticated: true}
	rows, err = e.Select(ctx, carol, "Customer", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("carol sees %d rows", len(rows))
	}

	// Admin sees everything.
	rows, err = e.Select(ctx, admin, "Customer", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("admin sees %d rows", len(rows))
	}
}

func TestSelectUserPermFilter(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	newCustomer(t, e, map[string]any{"id": "C-1"})
	newCustomer(t, e, map[string]any{"id": "C-2", "full_name": "Bob"})
	o1 := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": "C-1"})
	mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": "C-2"})

	seedDocPerm(t, e, "Sales Order", "Sales", map[string]any{"can_select": 1})
	seedUserPerm(t, e, alice.User, "Customer", "C-1")

	rows, err := e.Select(ctx, alice, "Sales Order", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] != o1["id"] {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSelectQueryShaping(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	newCustomer(t, e, map[string]any{"full_name": "Ada", "tier": "gold"})
	newCustomer(t, e, map[string]any{"full_name": "Bob", "email": "b@local"})
	newCustomer(t, e, map[string]any{"full_name": "Cyd", "email": "c@local", "tier": "gold"})

	rows, err := e.Select(ctx, admin, "Customer", engine.Query{
		Filters: []any{builder.Eq("tier", "gold")},
		Fields:  []string{"id", "full_name"},
		OrderBy: []string{"full_name DESC"},
		Limit:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["full_name"] != "Cyd" {
		t.Fatalf("rows = %v", rows)
	}
	if _, ok := rows[0]["email"]; ok {
		t.Fatal("field restriction ignored")
	}
}

func TestBypassSkipsGates(t *testing.T) {
	e, _ := newEngine(t)
	system := engine.Session{User: "system", Bypass: true}
	out := mustInsert(t, e, system, "Customer", map[string]any{"full_name": "Sys"})
	if out["owner"] != "system" {
		t.Fatalf("owner = %v", out["owner"])
	}
}

func TestSelectUnsetReferenceVisible(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	seedDocPerm(t, e, "Ticket", "Sales", map[string]any{"can_select": 1})

	mustInsert(t, e, admin, "Customer", map[string]any{"id": "C-1", "full_name": "Ada"})
	mustInsert(t, e, admin, "Customer", map[string]any{"id": "C-2", "full_name": "Bea"})

	mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "net", "customer": "C-1"})
	mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "ops"})
	blank := mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "web", "customer": "C-1"})
	mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "hw", "customer": "C-2"})

	// Emptied and never-set references read the same at the row gate; the
	// list filter must treat them the same too.
	if _, err := e.Update(ctx, admin, "Ticket", blank["id"].(string), map[string]any{"customer": ""}, nil); err != nil {
		t.Fatal(err)
	}

	seedUserPerm(t, e, alice.User, "Customer", "C-1")
	rows, err := e.Select(ctx, alice, "Ticket", engine.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want the granted, null and empty tickets", len(rows))
	}
	for _, row := range rows {
		if row["customer"] == "C-2" {
			t.Fatalf("off-limits ticket visible: %v", row)
		}
	}
}

func TestUserPermissionRecursesIntoChildren(t *testing.T) {
	customer := schema.New("Customer", []*schema.Field{
		{Name: "full_name", Type: schema.TypeText, Required: true},
	})
	project := schema.New("Project", []*schema.Field{
		{Name: "title", Type: schema.TypeText, Required: true},
	})
	task := schema.New("Task", []*schema.Field{
		{Name: "project", Type: schema.TypeReference, Reference: "Project", ReferenceType: schema.RefOneToMany},
		{Name: "customer", Type: schema.TypeReference, Reference: "Customer"},
		{Name: "subject", Type: schema.TypeText},
	})
	s := schema.Schemas{"Customer": customer, "Project": project, "Task": task}
	if err := schema.Build(s); err != nil {
		t.Fatal(err)
	}
	e, _ := newEngineWith(t, schema.WithSystem(s))
	ctx := context.Background()

	seedDocPerm(t, e, "Project", "Sales", map[string]any{"can_get": 1})
	mustInsert(t, e, admin, "Customer", map[string]any{"id": "C-1", "full_name": "Ada"})
	mustInsert(t, e, admin, "Customer", map[string]any{"id": "C-2", "full_name": "Bea"})

	mixed := mustInsert(t, e, admin, "Project", map[string]any{
		"title": "Mixed",
		"task": []any{
			map[string]any{"subject": "wire", "customer": "C-1"},
			map[string]any{"subject": "audit", "customer": "C-2"},
		},
	})
	scoped := mustInsert(t, e, admin, "Project", map[string]any{
		"title": "Scoped",
		"task":  []any{map[string]any{"subject": "wire", "customer": "C-1"}},
	})

	seedUserPerm(t, e, alice.User, "Customer", "C-1")

	// Projects carry no customer field themselves; the restriction bites
	// through the embedded task rows.
	if _, err := e.Get(ctx, alice, "Project", scoped["id"].(string)); err != nil {
		t.Fatal(err)
	}
	_, err := e.Get(ctx, alice, "Project", mixed["id"].(string))
	wantKind(t, err, engine.KindPermissionDenied)
}
