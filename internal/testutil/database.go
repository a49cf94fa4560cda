// Package testutil provides test utilities for the interest-enricher project.
// It offers isolated, migrated databases and fluent builders for test jobs.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/storage"
)

// Epoch is the time test clocks start at.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Clock   *common.FakeClock
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Weights        *model.ScoreWeights
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in a temp dir with a fake clock.
// Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	job := testutil.NewJobBuilder(model.KindProject).WithLabels("coffee", "tea").Build(t, db)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	clock := common.NewFakeClock(Epoch)
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "enrich.db"), storage.WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.Weights != nil {
		if err := store.SaveScoreWeights(ctx, *opts.Weights); err != nil {
			t.Fatalf("failed to seed score weights: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		Clock:   clock,
		t:       t,
	}
}

// MustGetJob reads a job or fails the test.
func (db *TestDB) MustGetJob(id string) *model.Job {
	db.t.Helper()
	job, err := db.Storage.GetJob(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get job %s: %v", id, err)
	}
	return job
}

// MustListItems lists a job's items or fails the test.
func (db *TestDB) MustListItems(jobID string, statuses ...model.ItemStatus) []model.Item {
	db.t.Helper()
	items, err := db.Storage.ListItems(context.Background(), jobID, statuses...)
	if err != nil {
		db.t.Fatalf("failed to list items of job %s: %v", jobID, err)
	}
	return items
}

// MustItemByLabel returns the job's item with the given label or fails the test.
func (db *TestDB) MustItemByLabel(jobID, label string) model.Item {
	db.t.Helper()
	for _, item := range db.MustListItems(jobID) {
		if item.Label == label {
			return item
		}
	}
	db.t.Fatalf("item %q not found in job %s", label, jobID)
	return model.Item{}
}

// MustListSuggestions lists an item's suggestions or fails the test.
func (db *TestDB) MustListSuggestions(itemID string) []model.Suggestion {
	db.t.Helper()
	suggestions, err := db.Storage.ListSuggestions(context.Background(), itemID)
	if err != nil {
		db.t.Fatalf("failed to list suggestions of item %s: %v", itemID, err)
	}
	return suggestions
}
