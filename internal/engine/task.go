package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/interest-enricher/internal/cache"
	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/scoring"
	"github.com/Veraticus/interest-enricher/internal/search"
)

// ItemOutcome describes how a single item was processed.
type ItemOutcome struct {
	Err         error // Search failure, nil when the item is done
	ItemID      string
	Status      model.ItemStatus
	Source      cache.Source // Cache tier that answered, SourceNone when the API was called
	Suggestions []model.Suggestion
}

// BestMatch returns the best-ranked suggestion, or nil.
func (o *ItemOutcome) BestMatch() *model.Suggestion {
	for i := range o.Suggestions {
		if o.Suggestions[i].IsBestMatch {
			return &o.Suggestions[i]
		}
	}
	return nil
}

// processItem searches, scores and persists one item. The returned error is
// reserved for repository failures; search failures end up in the outcome.
func (o *Orchestrator) processItem(ctx context.Context, item model.Item, scorer *scoring.Scorer, callType model.CallType, maxRetries int) (*ItemOutcome, error) {
	if err := o.repo.UpdateItemStatus(ctx, item.ID, model.ItemInProgress, item.RetryCount); err != nil {
		return nil, fmt.Errorf("failed to mark item %s in progress: %w", item.ID, err)
	}

	outcome := &ItemOutcome{ItemID: item.ID}

	candidates, source, hit := o.cache.Lookup(ctx, item.Label, item.Country)
	if hit {
		outcome.Source = source
	} else {
		attempt := item.RetryCount + 1
		result, err := o.client.Search(ctx, model.SearchRequest{
			Term:     item.Label,
			Country:  item.Country,
			CallType: callType,
			Limit:    o.opts.SearchLimit,
			Attempt:  attempt,
		})
		if err != nil {
			return o.recordFailure(ctx, item, outcome, err, maxRetries)
		}
		candidates = result.Candidates
		if len(candidates) > 0 {
			o.cache.Store(ctx, item.Label, item.Country, candidates)
		}
	}

	outcome.Suggestions = buildSuggestions(scorer.Rank(item.Label, item.Category, candidates))

	if err := o.persist(ctx, func() error {
		return o.repo.ReplaceSuggestions(ctx, item.ID, outcome.Suggestions)
	}); err != nil {
		return nil, fmt.Errorf("failed to save suggestions for item %s: %w", item.ID, err)
	}
	if err := o.persist(ctx, func() error {
		return o.repo.UpdateItemStatus(ctx, item.ID, model.ItemDone, item.RetryCount)
	}); err != nil {
		return nil, fmt.Errorf("failed to mark item %s done: %w", item.ID, err)
	}

	outcome.Status = model.ItemDone
	return outcome, nil
}

// recordFailure turns a search error into a retry or a permanent failure.
func (o *Orchestrator) recordFailure(ctx context.Context, item model.Item, outcome *ItemOutcome, searchErr error, maxRetries int) (*ItemOutcome, error) {
	kind := search.KindOf(searchErr)
	attempts := item.RetryCount + 1

	status := model.ItemFailed
	if attempts < kind.MaxAttemptsFor(maxRetries) {
		status = model.ItemRetry
	}

	o.logger.Warn("Item search failed",
		"item_id", item.ID,
		"term", item.Label,
		"kind", kind,
		"attempt", attempts,
		"next_status", status,
		"error", searchErr)

	if err := o.persist(ctx, func() error {
		return o.repo.UpdateItemStatus(ctx, item.ID, status, attempts)
	}); err != nil {
		return nil, fmt.Errorf("failed to record failure for item %s: %w", item.ID, err)
	}

	outcome.Status = status
	outcome.Err = searchErr
	return outcome, nil
}

// persist retries transient repository writes.
func (o *Orchestrator) persist(ctx context.Context, write func() error) error {
	return common.WithRetry(ctx, func() error {
		err := write()
		if errors.Is(err, common.ErrNotFound) {
			return common.Permanent(err)
		}
		return err
	}, o.opts.WriteRetry)
}

// buildSuggestions converts ranked candidates into suggestions, marking the first as best match.
func buildSuggestions(ranked []scoring.Scored) []model.Suggestion {
	suggestions := make([]model.Suggestion, 0, len(ranked))
	for _, sc := range ranked {
		name := strings.TrimSpace(sc.Candidate.Name)
		if name == "" {
			continue
		}
		sg := model.Suggestion{
			Label:           name,
			Audience:        sc.Candidate.Audience(),
			SimilarityScore: sc.Score / 100,
			Path:            sc.Candidate.PathString(),
			IsBestMatch:     len(suggestions) == 0,
		}
		if id := strings.TrimSpace(sc.Candidate.ExternalID); id != "" {
			sg.ExternalID = &id
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions
}

// RetryItem reprocesses a single item outside the batch loop. Its previous
// suggestions are dropped first. Manual retries get a single attempt, so a
// failed search leaves the item failed.
func (o *Orchestrator) RetryItem(ctx context.Context, jobID, itemID string) (*ItemOutcome, error) {
	item, err := o.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item.JobID != jobID {
		return nil, fmt.Errorf("item %s, job %s: %w", itemID, jobID, common.ErrItemMismatch)
	}

	if err := o.repo.DeleteSuggestions(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("failed to clear suggestions: %w", err)
	}
	item.RetryCount = 0

	scorer, err := o.loadScorer(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := o.processItem(ctx, *item, scorer, model.CallManual, 1)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Retried item",
		"job_id", jobID,
		"item_id", itemID,
		"status", outcome.Status,
		"suggestions", len(outcome.Suggestions))
	return outcome, nil
}
