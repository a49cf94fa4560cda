package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/service"
)

// EntryStore is the slice of the repository the persistent tier needs.
type EntryStore interface {
	GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error
	PurgeCacheEntries(ctx context.Context, olderThan time.Time) (int64, error)
}

// Persistent is the repository-backed tier. Rows older than the TTL are
// ignored on read and removed only by Purge.
type Persistent struct {
	store EntryStore
	clock service.Clock
	ttl   time.Duration
}

// NewPersistent creates a repository-backed tier.
func NewPersistent(store EntryStore, clock service.Clock, ttl time.Duration) *Persistent {
	if ttl <= 0 {
		ttl = DefaultPersistentTTL
	}
	if clock == nil {
		clock = common.SystemClock{}
	}
	return &Persistent{store: store, clock: clock, ttl: ttl}
}

// Get implements Tier.
func (p *Persistent) Get(ctx context.Context, key string) ([]model.Candidate, bool, error) {
	entry, err := p.store.GetCacheEntry(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if p.clock.Now().Sub(entry.CreatedAt) >= p.ttl {
		return nil, false, nil
	}
	return entry.Candidates, true, nil
}

// Set implements Tier.
func (p *Persistent) Set(ctx context.Context, key, country string, candidates []model.Candidate) error {
	entry := &model.CacheEntry{
		Key:        key,
		Country:    country,
		Candidates: clone(candidates),
		CreatedAt:  p.clock.Now(),
	}
	if err := p.store.PutCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Purge deletes rows that have outlived the TTL.
func (p *Persistent) Purge(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeCacheEntries(ctx, p.clock.Now().Add(-p.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return n, nil
}
