package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/prism/db"
)

// CreateTestDB creates an in-memory SQLite job database with queue migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := openMemory(t)
	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return conn
}

// CreateSourceDB creates an in-memory SQLite database carrying the reference source schema.
func CreateSourceDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := openMemory(t)
	if err := db.MigrateSource(conn, nil); err != nil {
		t.Fatalf("Failed to migrate source database: %v", err)
	}
	return conn
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// A single connection keeps every query on the same in-memory database
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
