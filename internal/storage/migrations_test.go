package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// TestMigration3_SelectionAndCacheIndex tests the user selection column and the cache age index.
func TestMigration3_SelectionAndCacheIndex(t *testing.T) {
	store := createTestStorage(t)

	var columns int
	err := store.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('items')
		WHERE name = 'selected_suggestion_id'
	`).Scan(&columns)
	if err != nil {
		t.Fatalf("Failed to inspect items table: %v", err)
	}
	if columns != 1 {
		t.Error("selected_suggestion_id column was not added")
	}

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_cache_entries_created_at'
	`).Scan(&indexCount)
	if err != nil {
		t.Fatalf("Failed to check index: %v", err)
	}
	if indexCount != 1 {
		t.Error("cache_entries created_at index was not created")
	}
}

// TestMigration4_JobHeartbeat tests the heartbeat column on jobs.
func TestMigration4_JobHeartbeat(t *testing.T) {
	store := createTestStorage(t)

	var columns int
	err := store.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('jobs')
		WHERE name = 'heartbeat_at'
	`).Scan(&columns)
	if err != nil {
		t.Fatalf("Failed to inspect jobs table: %v", err)
	}
	if columns != 1 {
		t.Error("heartbeat_at column was not added")
	}
}

// TestMigrate_FromEmptyDatabase tests that a fresh file reports version 0 until migrated.
func TestMigrate_FromEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 0 {
		t.Errorf("Fresh database has version %d, want 0", version)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	version, err = store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Migrated database has version %d, want %d", version, ExpectedSchemaVersion)
	}

	for _, table := range []string{"jobs", "items", "suggestions", "cache_entries", "settings"} {
		var n int
		if err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("Table %s was not created", table)
		}
	}
}
