package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// GetCacheEntry retrieves a cached search result regardless of its age.
func (s *SQLiteStorage) GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	var (
		entry   model.CacheEntry
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT cache_key, country, candidates, created_at FROM cache_entries WHERE cache_key = ?
	`, key).Scan(&entry.Key, &entry.Country, &payload, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache entry %q: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &entry.Candidates); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return &entry, nil
}

// PutCacheEntry upserts a cached search result; the last write wins.
func (s *SQLiteStorage) PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCacheEntry(entry); err != nil {
		return err
	}

	payload, err := json.Marshal(entry.Candidates)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, country, candidates, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			country = excluded.country,
			candidates = excluded.candidates,
			created_at = excluded.created_at
	`, entry.Key, entry.Country, string(payload), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// PurgeCacheEntries deletes entries created before olderThan and reports how many went.
func (s *SQLiteStorage) PurgeCacheEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE created_at < ?
	`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return result.RowsAffected()
}

// CountCacheEntries reports how many search results are cached.
func (s *SQLiteStorage) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
