package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// createTestStore opens a catalog in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM plans").Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_MigratesV1Catalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	// Simulate a v1 catalog without the name index.
	s, err := OpenShard(path)
	if err != nil {
		t.Fatalf("OpenShard() failed: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE plans (id TEXT PRIMARY KEY, name TEXT NOT NULL, entity TEXT NOT NULL,
			alias TEXT NOT NULL, hash TEXT NOT NULL, seq INTEGER NOT NULL)`,
		`PRAGMA user_version = 1`,
	} {
		if err := s.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("seed v1: %v", err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_plans_name'`).Scan(&name)
	if err != nil {
		t.Fatalf("index missing after migration: %v", err)
	}
	if err := s.verifyPragma("user_version", "2"); err != nil {
		t.Error(err)
	}
}

func TestOpenShard_NoCatalogTables(t *testing.T) {
	s, err := OpenShard(filepath.Join(t.TempDir(), "shard.db"))
	if err != nil {
		t.Fatalf("OpenShard() failed: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'plans'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("shard store has catalog tables")
	}
}

func TestClose_NilDB(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}
