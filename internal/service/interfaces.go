// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// Repository defines the contract for our persistence layer.
// Every write is scoped to a single job, item or cache row.
type Repository interface {
	// Job operations
	CreateJob(ctx context.Context, job *model.Job, items []model.Item) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]model.Job, error)
	// TransitionJob moves a job to status `to` only if its current status is one of `from`.
	// It reports whether the row was updated. The cursor is cleared unless `to` is processing.
	TransitionJob(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, pausedAt *time.Time) (bool, error)
	SetJobCursor(ctx context.Context, id string, index *int) error
	TouchJob(ctx context.Context, id string) error

	// Item operations
	GetItem(ctx context.Context, id string) (*model.Item, error)
	GetItemAtPosition(ctx context.Context, jobID string, position int) (*model.Item, error)
	ListItems(ctx context.Context, jobID string, statuses ...model.ItemStatus) ([]model.Item, error)
	UpdateItemStatus(ctx context.Context, id string, status model.ItemStatus, retryCount int) error
	ResetItems(ctx context.Context, jobID string, from []model.ItemStatus, to model.ItemStatus) (int64, error)
	CountItems(ctx context.Context, jobID string) (model.ItemCounts, error)

	// Suggestion operations
	ReplaceSuggestions(ctx context.Context, itemID string, suggestions []model.Suggestion) error
	DeleteSuggestions(ctx context.Context, itemID string) error
	ListSuggestions(ctx context.Context, itemID string) ([]model.Suggestion, error)

	// Cache operations
	GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error
	PurgeCacheEntries(ctx context.Context, olderThan time.Time) (int64, error)

	// Settings
	GetScoreWeights(ctx context.Context) (model.ScoreWeights, error)
	SaveScoreWeights(ctx context.Context, weights model.ScoreWeights) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// SearchClient issues a single query against the ad-interest search API.
type SearchClient interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error)
}

// Clock is the time source for every timestamp written by the pipeline.
type Clock interface {
	Now() time.Time
}
