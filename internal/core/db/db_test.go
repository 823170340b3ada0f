package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Queries {
	t.Helper()
	conn, err := Open("sqlite://" + filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	q, err := LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	return q
}

func TestDataSourceFor(t *testing.T) {
	tests := []struct {
		url        string
		driver     string
		dataSource string
		wantErr    bool
	}{
		{"sqlite://journal.db", "sqlite3", "journal.db", false},
		{"sqlite://data/journal.db", "sqlite3", "data/journal.db", false},
		{"sqlite:///var/lib/mario/journal.db", "sqlite3", "/var/lib/mario/journal.db", false},
		{"sqlite:///tmp/j.db?_busy_timeout=5000", "sqlite3", "file:/tmp/j.db?_busy_timeout=5000", false},
		{"postgres://u:p@localhost:5432/mario?sslmode=disable", "postgres", "postgres://u:p@localhost:5432/mario?sslmode=disable", false},
		{"postgresql://localhost/mario", "postgres", "postgresql://localhost/mario", false},
		{"mysql://localhost/mario", "", "", true},
		{"sqlite://", "", "", true},
		{"::bad", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, ds, err := dataSourceFor(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dataSourceFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if driver != tt.driver || ds != tt.dataSource {
				t.Errorf("dataSourceFor() = %q, %q, want %q, %q", driver, ds, tt.driver, tt.dataSource)
			}
		})
	}
}

func TestSqlitePath(t *testing.T) {
	tests := map[string]string{
		"journal.db":                      "journal.db",
		"/abs/journal.db":                 "/abs/journal.db",
		"file:/tmp/j.db?_busy_timeout=10": "/tmp/j.db",
		"file:rel/j.db?cache=shared":      "rel/j.db",
		":memory:":                        "",
		"file:x?mode=memory":              "",
	}
	for in, want := range tests {
		if got := sqlitePath(in); got != want {
			t.Errorf("sqlitePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrations(t *testing.T) {
	conn, err := Open("sqlite://" + filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	pending, err := Pending(conn)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if !pending {
		t.Fatal("Pending() = false on a fresh database")
	}

	ran, err := MigrateUp(conn)
	if err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if len(ran) == 0 || ran[0] != "001_initial_schema.sql" {
		t.Errorf("MigrateUp() ran %v, want 001_initial_schema.sql first", ran)
	}

	again, err := MigrateUp(conn)
	if err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second MigrateUp() ran %v, want nothing", again)
	}

	statuses, err := MigrateStatus(conn)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == "" {
			t.Errorf("migration %s not recorded as applied: %+v", s.ID, s)
		}
	}

	// Tampering with a recorded checksum is refused
	if _, err := conn.Exec("UPDATE migrations SET checksum = 'x'"); err != nil {
		t.Fatal(err)
	}
	if _, err := MigrateUp(conn); err == nil {
		t.Error("MigrateUp() error = nil after checksum tampering")
	}
}

func TestSplitStatements(t *testing.T) {
	sql := "-- header comment\nCREATE TABLE a (x TEXT);\n\n-- about b\nCREATE TABLE b (y TEXT);\n"
	got := splitStatements(sql)
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %q, want 2 statements", got)
	}
	if got[0] != "CREATE TABLE a (x TEXT)" || got[1] != "CREATE TABLE b (y TEXT)" {
		t.Errorf("splitStatements() = %q", got)
	}
}

func TestQueries(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{
		"insert-dispatch", "get-dispatch", "list-dispatches", "list-dispatches-by-digest",
		"count-dispatches", "delete-dispatches-before",
		"insert-api-key", "get-api-key-by-hash", "list-api-keys", "revoke-api-key", "update-last-used",
	} {
		if _, err := q.query(name); err != nil {
			t.Errorf("query %s: %v", name, err)
		}
	}

	var count int
	if err := q.Get(ctx, "count-dispatches", &count); err != nil {
		t.Fatalf("Get(count-dispatches) error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	if _, err := q.Exec(ctx, "no-such-query"); err == nil {
		t.Error("Exec(no-such-query) error = nil")
	}
}
