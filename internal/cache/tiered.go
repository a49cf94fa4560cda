package cache

import (
	"context"
	"log/slog"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// Source names the tier that answered a lookup.
type Source string

// Lookup sources.
const (
	SourceNone       Source = ""
	SourceMemory     Source = "memory"
	SourcePersistent Source = "persistent"
)

// Tiered chains an in-process tier in front of a persistent one.
// Tier failures are logged and degrade to a miss; the cache never decides
// whether an item succeeds.
type Tiered struct {
	memory     Tier
	persistent Tier
	logger     *slog.Logger
}

// NewTiered composes the two tiers. Either may be nil.
func NewTiered(memory, persistent Tier, logger *slog.Logger) *Tiered {
	return &Tiered{
		memory:     memory,
		persistent: persistent,
		logger:     common.OrDefault(logger),
	}
}

// Lookup returns cached candidates for (term, country).
func (t *Tiered) Lookup(ctx context.Context, term, country string) ([]model.Candidate, Source, bool) {
	key := Key(term, country)

	if t.memory != nil {
		candidates, found, err := t.memory.Get(ctx, key)
		if err != nil {
			t.logger.Warn("memory cache read failed", "key", key, "error", err)
		} else if found {
			return candidates, SourceMemory, true
		}
	}

	if t.persistent == nil {
		return nil, SourceNone, false
	}

	candidates, found, err := t.persistent.Get(ctx, key)
	if err != nil {
		t.logger.Warn("persistent cache read failed", "key", key, "error", err)
		return nil, SourceNone, false
	}
	if !found {
		return nil, SourceNone, false
	}

	if t.memory != nil {
		if err := t.memory.Set(ctx, key, country, candidates); err != nil {
			t.logger.Warn("memory cache backfill failed", "key", key, "error", err)
		}
	}
	return candidates, SourcePersistent, true
}

// Store writes candidates to both tiers. Empty results are not cached.
func (t *Tiered) Store(ctx context.Context, term, country string, candidates []model.Candidate) {
	if len(candidates) == 0 {
		return
	}
	key := Key(term, country)

	if t.memory != nil {
		if err := t.memory.Set(ctx, key, country, candidates); err != nil {
			t.logger.Warn("memory cache write failed", "key", key, "error", err)
		}
	}
	if t.persistent != nil {
		if err := t.persistent.Set(ctx, key, country, candidates); err != nil {
			t.logger.Warn("persistent cache write failed", "key", key, "error", err)
		}
	}
}
