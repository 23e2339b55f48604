package connectors

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// openTestDB creates an in-memory database. A single connection keeps
// every statement on the same memory database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			age INTEGER
		);
		CREATE TABLE notes (
			id INTEGER PRIMARY KEY,
			body TEXT
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestSQLIntrospection(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if conn.Name() != "sql:sqlite" {
		t.Fatalf("Name() = %q", conn.Name())
	}

	tables := conn.TableNames()
	if len(tables) != 2 || tables[0] != "notes" || tables[1] != "users" {
		t.Fatalf("tables = %v", tables)
	}
	// list, get, create, update, delete per table.
	if len(conn.Tools()) != 10 {
		t.Fatalf("expected 10 tools, got %v", toolNames(conn))
	}
	for _, name := range []string{"list_users", "get_users", "create_users", "update_users", "delete_users"} {
		findTool(t, conn, name)
	}
}

func TestSQLTableAllowlist(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite", WithSQLTables("users"))
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if tables := conn.TableNames(); len(tables) != 1 || tables[0] != "users" {
		t.Fatalf("tables = %v", tables)
	}
	if len(conn.Tools()) != 5 {
		t.Fatalf("expected 5 tools, got %v", toolNames(conn))
	}
}

func TestSQLReadOnly(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite", WithSQLReadOnly())
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if len(conn.Tools()) != 4 {
		t.Fatalf("expected 4 tools, got %v", toolNames(conn))
	}
	for _, name := range toolNames(conn) {
		if strings.HasPrefix(name, "create_") || strings.HasPrefix(name, "update_") || strings.HasPrefix(name, "delete_") {
			t.Fatalf("write tool %s generated in read-only mode", name)
		}
	}
}

func TestSQLCreateSchema(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}

	def := findTool(t, conn, "create_users").Definition()
	required := map[string]bool{}
	for _, name := range def.InputSchema.Required {
		required[name] = true
	}
	if !required["name"] || !required["email"] {
		t.Fatalf("required = %v", def.InputSchema.Required)
	}
	if required["age"] || required["id"] {
		t.Fatalf("nullable and key columns must not be required: %v", def.InputSchema.Required)
	}

	age, _ := def.InputSchema.Properties["age"].(map[string]any)
	if age["type"] != "integer" {
		t.Fatalf("age schema = %v", age)
	}
}

func TestSQLCRUDRoundTrip(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	ctx := context.Background()

	created, err := findTool(t, conn, "create_users").Execute(ctx, map[string]any{
		"name": "Alice", "email": "alice@example.com", "age": 34,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.(map[string]any)["last_insert_id"].(int64)
	if id == 0 {
		t.Fatalf("created = %#v", created)
	}

	got, err := findTool(t, conn, "get_users").Execute(ctx, map[string]any{"id": id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	row := got.(map[string]any)
	if row["name"] != "Alice" || row["email"] != "alice@example.com" {
		t.Fatalf("row = %#v", row)
	}

	updated, err := findTool(t, conn, "update_users").Execute(ctx, map[string]any{
		"id": id, "age": 35,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.(map[string]any)["rows_affected"] != int64(1) {
		t.Fatalf("updated = %#v", updated)
	}

	got, err = findTool(t, conn, "get_users").Execute(ctx, map[string]any{"id": id})
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if age := got.(map[string]any)["age"]; age != int64(35) {
		t.Fatalf("age = %#v", age)
	}

	deleted, err := findTool(t, conn, "delete_users").Execute(ctx, map[string]any{"id": id})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.(map[string]any)["rows_affected"] != int64(1) {
		t.Fatalf("deleted = %#v", deleted)
	}

	if _, err := findTool(t, conn, "get_users").Execute(ctx, map[string]any{"id": id}); err == nil {
		t.Fatal("expected not-found error after delete")
	}
}

func TestSQLListFiltersAndOrder(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	ctx := context.Background()

	create := findTool(t, conn, "create_users")
	for _, u := range []map[string]any{
		{"name": "Alice", "email": "alice@example.com", "age": 34},
		{"name": "Bob", "email": "bob@example.com", "age": 51},
		{"name": "Carol", "email": "carol@example.com", "age": 28},
	} {
		if _, err := create.Execute(ctx, u); err != nil {
			t.Fatalf("create %v: %v", u["name"], err)
		}
	}

	list := findTool(t, conn, "list_users")

	result, err := list.Execute(ctx, map[string]any{
		"filters": map[string]any{"name": "Bob"},
	})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	rows := result.([]map[string]any)
	if len(rows) != 1 || rows[0]["age"] != int64(51) {
		t.Fatalf("filtered rows = %#v", rows)
	}

	result, err = list.Execute(ctx, map[string]any{
		"order_by": "age", "order_desc": true, "limit": 2,
	})
	if err != nil {
		t.Fatalf("list ordered: %v", err)
	}
	rows = result.([]map[string]any)
	if len(rows) != 2 || rows[0]["name"] != "Bob" || rows[1]["name"] != "Alice" {
		t.Fatalf("ordered rows = %#v", rows)
	}

	// Column names come from the model, never pasted into SQL unchecked.
	if _, err := list.Execute(ctx, map[string]any{
		"filters": map[string]any{"name; DROP TABLE users": "x"},
	}); err == nil || !strings.Contains(err.Error(), "unknown filter column") {
		t.Fatalf("expected unknown filter column error, got %v", err)
	}
	if _, err := list.Execute(ctx, map[string]any{"order_by": "age; DROP TABLE users"}); err == nil ||
		!strings.Contains(err.Error(), "unknown order_by column") {
		t.Fatalf("expected unknown order_by column error, got %v", err)
	}
}

func TestSQLUnknownColumnRejected(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}

	_, err = findTool(t, conn, "create_users").Execute(context.Background(), map[string]any{
		"name": "Mallory", "email": "m@example.com", "shoe_size": 42,
	})
	if err == nil || !strings.Contains(err.Error(), "unknown column") {
		t.Fatalf("expected unknown column error, got %v", err)
	}
}

func TestSQLPrefix(t *testing.T) {
	db := openTestDB(t)
	conn, err := NewSQL(context.Background(), db, "sqlite", WithSQLPrefix("crm"), WithSQLTables("users"))
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	findTool(t, conn, "crm_list_users")
	findTool(t, conn, "crm_get_users")
}

func TestSQLRequiresOpenDatabase(t *testing.T) {
	if _, err := NewSQL(context.Background(), nil, "sqlite"); !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	empty, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer empty.Close()
	if _, err := NewSQL(context.Background(), empty, "sqlite"); !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error for empty schema, got %v", err)
	}
}
