package cache

import (
	"context"
	"fmt"

	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/pool"
	"github.com/Veraticus/interest-enricher/internal/service"
)

// WarmResult reports what warming did for one term.
type WarmResult struct {
	Term       string
	Source     Source // SourceNone when the API was called
	Candidates int
}

// Warm makes sure every term has a cached answer for country, searching the
// ones that miss with at most maxConcurrency calls in flight. Terms folding to
// the same key are searched once. The first search failure aborts the rest.
func Warm(ctx context.Context, t *Tiered, client service.SearchClient, terms []string, country string, limit, maxConcurrency int) ([]WarmResult, error) {
	seen := make(map[string]bool, len(terms))
	var tasks []pool.Task[WarmResult]
	for _, term := range terms {
		key := Key(term, country)
		if NormalizeTerm(term) == "" || seen[key] {
			continue
		}
		seen[key] = true

		tasks = append(tasks, func(ctx context.Context) (WarmResult, error) {
			if candidates, source, ok := t.Lookup(ctx, term, country); ok {
				return WarmResult{Term: term, Source: source, Candidates: len(candidates)}, nil
			}

			result, err := client.Search(ctx, model.SearchRequest{
				Term:     term,
				Country:  country,
				CallType: model.CallManual,
				Limit:    limit,
				Attempt:  1,
			})
			if err != nil {
				return WarmResult{}, fmt.Errorf("failed to search %q: %w", term, err)
			}
			t.Store(ctx, term, country, result.Candidates)
			return WarmResult{Term: term, Source: SourceNone, Candidates: len(result.Candidates)}, nil
		})
	}

	return pool.ExecuteFailFast(ctx, tasks, maxConcurrency)
}
