package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/service"
)

// sweepEvery is how many writes pass between sweeps of expired entries.
const sweepEvery = 256

type memoryEntry struct {
	expiresAt  time.Time
	candidates []model.Candidate
}

// Memory is the in-process tier. Expiry follows the injected clock: an expired
// entry is deleted when it is read, and every sweepEvery writes the entries
// nobody read again are swept. There is no background janitor.
type Memory struct {
	items  *gocache.Cache
	clock  service.Clock
	ttl    time.Duration
	writes atomic.Uint64
}

// NewMemory creates an in-process tier with the given TTL. A nil clock reads the wall clock.
func NewMemory(ttl time.Duration, clock service.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	if clock == nil {
		clock = common.SystemClock{}
	}
	return &Memory{
		items: gocache.New(gocache.NoExpiration, 0),
		clock: clock,
		ttl:   ttl,
	}
}

// Get implements Tier.
func (m *Memory) Get(_ context.Context, key string) ([]model.Candidate, bool, error) {
	v, found := m.items.Get(key)
	if !found {
		return nil, false, nil
	}
	entry, ok := v.(memoryEntry)
	if !ok || !m.clock.Now().Before(entry.expiresAt) {
		m.items.Delete(key)
		return nil, false, nil
	}
	return clone(entry.candidates), true, nil
}

// Set implements Tier.
func (m *Memory) Set(_ context.Context, key, _ string, candidates []model.Candidate) error {
	m.items.Set(key, memoryEntry{
		expiresAt:  m.clock.Now().Add(m.ttl),
		candidates: clone(candidates),
	}, gocache.NoExpiration)

	if m.writes.Add(1)%sweepEvery == 0 {
		m.Sweep()
	}
	return nil
}

// Sweep deletes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.clock.Now()
	removed := 0
	for key, item := range m.items.Items() {
		if entry, ok := item.Object.(memoryEntry); ok && now.Before(entry.expiresAt) {
			continue
		}
		m.items.Delete(key)
		removed++
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Flush drops every entry.
func (m *Memory) Flush() {
	m.items.Flush()
}
