package engine

import (
	"context"

	"github.com/Veraticus/interest-enricher/internal/cache"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// SuggestionCache memoizes search results per (term, country).
type SuggestionCache interface {
	Lookup(ctx context.Context, term, country string) ([]model.Candidate, cache.Source, bool)
	Store(ctx context.Context, term, country string, candidates []model.Candidate)
}

type noCache struct{}

func (noCache) Lookup(context.Context, string, string) ([]model.Candidate, cache.Source, bool) {
	return nil, cache.SourceNone, false
}

func (noCache) Store(context.Context, string, string, []model.Candidate) {}
