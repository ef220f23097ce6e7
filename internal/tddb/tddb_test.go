package tddb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func seedDB(t *testing.T, path string) {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE tasks (id TEXT, title TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO tasks (id, title) VALUES ('t1', 'first task')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestQueryReturnsRowsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "td.sqlite")
	seedDB(t, path)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	cols, rows, err := db.Query("SELECT id, title FROM tasks")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "title" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	if len(rows) != 1 || rows[0]["id"] != "t1" || rows[0]["title"] != "first task" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	if _, err := db.conn.Exec("INSERT INTO tasks (id, title) VALUES ('t2', 'blocked')"); err == nil {
		t.Fatal("expected write to fail on a read-only connection")
	}
}
