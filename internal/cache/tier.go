package cache

import (
	"context"
	"time"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// Default time-to-live for each tier.
const (
	DefaultMemoryTTL     = 5 * time.Minute
	DefaultPersistentTTL = 24 * time.Hour
)

// Tier is one level of the suggestion cache.
type Tier interface {
	// Get returns the candidates stored under key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]model.Candidate, bool, error)
	// Set stores candidates under key, replacing any previous value.
	Set(ctx context.Context, key, country string, candidates []model.Candidate) error
}

func clone(candidates []model.Candidate) []model.Candidate {
	if candidates == nil {
		return nil
	}
	out := make([]model.Candidate, len(candidates))
	copy(out, candidates)
	return out
}
