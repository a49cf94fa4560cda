// Package storage provides the SQLite persistence layer for enrichment jobs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrEmptySlice        = errors.New("slice cannot be empty")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidJob        = errors.New("invalid job")
	ErrInvalidItem       = errors.New("invalid item")
	ErrInvalidSuggestion = errors.New("invalid suggestion")
	ErrInvalidCacheEntry = errors.New("invalid cache entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateJob validates a job before it is created.
func validateJob(job *model.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job", ErrNilParameter)
	}
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidJob)
	}
	if !job.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, job.Kind)
	}
	if job.Status != "" && !job.Status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, job.Status)
	}
	return nil
}

// validateItems validates the items of a new job.
func validateItems(items []model.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items", ErrEmptySlice)
	}
	for i := range items {
		if strings.TrimSpace(items[i].Label) == "" {
			return fmt.Errorf("item at index %d: %w: missing label", i, ErrInvalidItem)
		}
		if items[i].Status != "" && !items[i].Status.Valid() {
			return fmt.Errorf("item at index %d: %w: %s", i, ErrInvalidStatus, items[i].Status)
		}
	}
	return nil
}

// validateSuggestions validates the suggestions replacing an item's set.
func validateSuggestions(suggestions []model.Suggestion) error {
	best := 0
	for i, s := range suggestions {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("suggestion at index %d: %w: missing label", i, ErrInvalidSuggestion)
		}
		if s.SimilarityScore < 0 || s.SimilarityScore > 1 {
			return fmt.Errorf("suggestion at index %d: %w: score must be between 0 and 1", i, ErrInvalidSuggestion)
		}
		if s.IsBestMatch {
			best++
		}
	}
	if best > 1 {
		return fmt.Errorf("%w: %d best matches", ErrInvalidSuggestion, best)
	}
	return nil
}

// validateCacheEntry validates a cache row.
func validateCacheEntry(entry *model.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: cache entry", ErrNilParameter)
	}
	if strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidCacheEntry)
	}
	return nil
}
