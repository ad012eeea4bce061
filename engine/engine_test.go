package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xcono/docstore/catalog"
	"github.com/xcono/docstore/engine"
	"github.com/xcono/docstore/migrate"
	"github.com/xcono/docstore/schema"
)

var (
	admin = engine.Session{User: "root@local", Roles: []string{schema.RoleSystemAdmin}, Authenticated: true}
	alice = engine.Session{User: "alice@local", Roles: []string{"Sales"}, Authenticated: true}
	bob   = engine.Session{User: "bob@local", Roles: []string{"Sales"}, Authenticated: true}
)

func testSchemas(t *testing.T) schema.Schemas {
	t.Helper()

	customer := schema.New("Customer", []*schema.Field{
		{Name: "full_name", Type: schema.TypeText, Required: true},
		{Name: "email", Type: schema.TypeEmail, Unique: true},
		{Name: "tier", Type: schema.TypeSelect, Options: []string{"basic", "gold"}, Default: "basic"},
		{Name: "api_key", Type: schema.TypePassword},
	})

	order := schema.New("Sales Order", []*schema.Field{
		{Name: "customer", Type: schema.TypeReference, Reference: "Customer", Required: true},
		{Name: "note", Type: schema.TypeText},
		{Name: "total", Type: schema.TypeCurrency},
	})
	order.NamingSeries = "ORD-{####}"
	order.IsSubmittable = true
	order.TrackChanges = true

	line := schema.New("Sales Order Line", []*schema.Field{
		{Name: "sales_order", Type: schema.TypeReference, Reference: "Sales Order", ReferenceType: schema.RefOneToMany},
		{Name: "item", Type: schema.TypeText, Required: true},
		{Name: "qty", Type: schema.TypeInteger},
	})

	profile := schema.New("Profile", []*schema.Field{
		{Name: "customer", Type: schema.TypeReference, Reference: "Customer", ReferenceType: schema.RefOneToOne},
		{Name: "bio", Type: schema.TypeLongText},
	})

	ticket := schema.New("Ticket", []*schema.Field{
		{Name: "topic", Type: schema.TypeText, Required: true},
		{Name: "customer", Type: schema.TypeReference, Reference: "Customer"},
	})
	ticket.NamingSeries = "TKT-{{topic}}-{###}"

	s := schema.Schemas{
		"Customer":         customer,
		"Sales Order":      order,
		"Sales Order Line": line,
		"Profile":          profile,
		"Ticket":           ticket,
	}
	if err := schema.Build(s); err != nil {
		t.Fatal(err)
	}
	return schema.WithSystem(s)
}

func newEngineWith(t *testing.T, s schema.Schemas) (*engine.Engine, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := migrate.New(db, catalog.NewSQLite(db), s).Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	return engine.New(db, s), db
}

func newEngine(t *testing.T) (*engine.Engine, *sql.DB) {
	t.Helper()
	return newEngineWith(t, testSchemas(t))
}

func wantKind(t *testing.T, err error, kind engine.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("want %s error, got nil", kind)
	}
	var e *engine.Error
	if !errors.As(err, &e) {
		t.Fatalf("untyped error: %v", err)
	}
	if e.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%v)", e.Kind, kind, err)
	}
}

func mustInsert(t *testing.T, e *engine.Engine, s engine.Session, doctype string, doc map[string]any) map[string]any {
	t.Helper()
	out, err := e.Insert(context.Background(), s, doctype, doc)
	if err != nil {
		t.Fatalf("insert %s: %v", doctype, err)
	}
	return out
}

func newCustomer(t *testing.T, e *engine.Engine, doc map[string]any) string {
	t.Helper()
	if doc == nil {
		doc = map[string]any{}
	}
	if doc["full_name"] == nil {
		doc["full_name"] = "Ada"
	}
	out := mustInsert(t, e, admin, "Customer", doc)
	return out["id"].(string)
}

func TestInsertGeneratesSeriesID(t *testing.T) {
	e, _ := newEngine(t)
	cust := newCustomer(t, e, nil)

	first := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": cust})
	if first["id"] != "ORD-0001" {
		t.Fatalf("first id = %v", first["id"])
	}
	second := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": cust})
	if second["id"] != "ORD-0002" {
		t.Fatalf("second id = %v", second["id"])
	}

	if first["created_by"] != admin.User || first["owner"] != admin.User {
		t.Errorf("provenance fields = %v / %v", first["created_by"], first["owner"])
	}
	if got := first["doc_status"]; got != int64(0) {
		t.Errorf("doc_status = %v (%T)", got, got)
	}
	if first["created_at"] == "" || first["updated_at"] == "" {
		t.Error("timestamps not set")
	}
}

func TestInsertCounterSurvivesDeletion(t *testing.T) {
	e, _ := newEngine(t)
	cust := newCustomer(t, e, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": cust})
	}
	if err := e.Delete(ctx, admin, "Sales Order", "ORD-0002"); err != nil {
		t.Fatal(err)
	}

	next := mustInsert(t, e, admin, "Sales Order", map[string]any{"customer": cust})
	if next["id"] != "ORD-0004" {
		t.Fatalf("id after gap = %v, counter must not reissue past ids", next["id"])
	}
}

func TestInsertRandomIDWithoutSeries(t *testing.T) {
	e, _ := newEngine(t)
	id := newCustomer(t, e, nil)
	if len(id) != 16 {
		t.Fatalf("id = %q, want 16 hex characters", id)
	}
}

func TestInsertFieldSeries(t *testing.T) {
	e, _ := newEngine(t)
	out := mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "net"})
	if out["id"] != "TKT-net-001" {
		t.Fatalf("id = %v", out["id"])
	}
	out = mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "net"})
	if out["id"] != "TKT-net-002" {
		t.Fatalf("id = %v", out["id"])
	}
	// A different topic starts its own counter run.
	out = mustInsert(t, e, admin, "Ticket", map[string]any{"topic": "ops"})
	if out["id"] != "TKT-ops-001" {
		t.Fatalf("id = %v", out["id"])
	}
}

func TestInsertExistingID(t *testing.T) {
	e, _ := newEngine(t)
	newCustomer(t, e, map[string]any{"id": "C-1"})
	_, err := e.Insert(context.Background(), admin, "Customer", map[string]any{"id": "C-1", "full_name": "Bob"})
	wantKind(t, err, engine.KindInvalidOperation)
}

func TestInsertValidation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, admin, "Customer", map[string]any{})
	wantKind(t, err, engine.KindValidation)

	_, err = e.Insert(ctx, admin, "Customer", map[string]any{"full_name": "Ada", "tier": "platinum"})
	wantKind(t, err, engine.KindValidation)

	newCustomer(t, e, map[string]any{"email": "ada@local"})
	_, err = e.Insert(ctx, admin, "Customer", map[string]any{"full_name": "Bob", "email": "ada@local"})
	wantKind(t, err, engine.KindValidation)

	_, err = e.Insert(ctx, admin, "Sales Order", map[string]any{"customer": "missing"})
	wantKind(t, err, engine.KindValidation)
}

func TestInsertAppliesDefaults(t *testing.T) {
	e, _ := newEngine(t)
	out := mustInsert(t, e, admin, "Customer", map[string]any{"full_name": "Ada"})
	if out["tier"] != "basic" {
		t.Fatalf("tier = %v", out["tier"])
	}
}

func TestPasswordMasking(t *testing.T) {
	e, db := newEngine(t)
	out := mustInsert(t, e, admin, "Customer", map[string]any{"full_name": "Ada", "api_key": "s3cret"})
	if out["api_key"] != "********" {
		t.Fatalf("returned api_key = %v", out["api_key"])
	}

	var stored string
	if err := db.QueryRow(`SELECT api_key FROM customer WHERE id = ?`, out["id"]).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored != "s3cret" {
		t.Fatalf("stored api_key = %q", stored)
	}

	got, err := e.Get(context.Background(), admin, "Customer", out["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if got["api_key"] != "********" {
		t.Fatalf("read api_key = %v", got["api_key"])
	}
}

func TestGetNotFound(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Get(context.Background(), admin, "Customer", "nope")
	wantKind(t, err, engine.KindNotFound)

	_, err = e.Get(context.Background(), admin, "No Such Doctype", "x")
	wantKind(t, err, engine.KindNotFound)
}

func TestBeforeInsertHook(t *testing.T) {
	e, db := newEngine(t)
	e.Registry().On("Customer", engine.EventBeforeInsert, func(ctx context.Context, p engine.Payload) error {
		p.Doc["tier"] = "gold"
		return nil
	})
	out := mustInsert(t, e, admin, "Customer", map[string]any{"full_name": "Ada"})
	if out["tier"] != "gold" {
		t.Fatalf("tier = %v, hook mutation lost", out["tier"])
	}

	e.Registry().On("Customer", engine.EventBeforeInsert, func(ctx context.Context, p engine.Payload) error {
		return errors.New("rejected")
	})
	_, err := e.Insert(context.Background(), admin, "Customer", map[string]any{"full_name": "Bob"})
	if err == nil {
		t.Fatal("hook error must abort the insert")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM customer WHERE full_name = 'Bob'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("aborted insert left a row behind")
	}
}
