package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/interest-enricher/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name      string
		str       string
		paramName string
		wantErr   bool
	}{
		{
			name:      "valid string",
			str:       "test",
			paramName: "param",
			wantErr:   false,
		},
		{
			name:      "empty string",
			str:       "",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			str:       "   ",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "string with spaces",
			str:       "  test  ",
			paramName: "param",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, tt.paramName)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.paramName) {
				t.Errorf("validateString() error should contain param name %s, got %v", tt.paramName, err)
			}
		})
	}
}

func TestValidateJob(t *testing.T) {
	tests := []struct {
		job     *model.Job
		wantErr error
		name    string
	}{
		{
			name: "valid job",
			job:  &model.Job{Name: "Spring launch", Kind: model.KindProject},
		},
		{
			name:    "nil job",
			job:     nil,
			wantErr: ErrNilParameter,
		},
		{
			name:    "missing name",
			job:     &model.Job{Name: "  ", Kind: model.KindProject},
			wantErr: ErrInvalidJob,
		},
		{
			name:    "unknown kind",
			job:     &model.Job{Name: "x", Kind: "campaign"},
			wantErr: ErrInvalidJob,
		},
		{
			name:    "unknown status",
			job:     &model.Job{Name: "x", Kind: model.KindInterestCheck, Status: "running"},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJob(tt.job)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateJob() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateJob() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateItems(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		items   []model.Item
	}{
		{
			name:  "valid items",
			items: []model.Item{{Label: "coffee"}, {Label: "tea", Status: model.ItemPending}},
		},
		{
			name:    "no items",
			items:   nil,
			wantErr: ErrEmptySlice,
		},
		{
			name:    "blank label",
			items:   []model.Item{{Label: "coffee"}, {Label: " "}},
			wantErr: ErrInvalidItem,
		},
		{
			name:    "unknown status",
			items:   []model.Item{{Label: "coffee", Status: "waiting"}},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateItems(tt.items)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateItems() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateItems() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSuggestions(t *testing.T) {
	tests := []struct {
		name        string
		suggestions []model.Suggestion
		wantErr     bool
	}{
		{
			name:        "empty set",
			suggestions: nil,
		},
		{
			name: "one best match",
			suggestions: []model.Suggestion{
				{Label: "Coffee", SimilarityScore: 1, IsBestMatch: true},
				{Label: "Coffeehouse", SimilarityScore: 0},
			},
		},
		{
			name:        "score above one",
			suggestions: []model.Suggestion{{Label: "Coffee", SimilarityScore: 1.01}},
			wantErr:     true,
		},
		{
			name:        "negative score",
			suggestions: []model.Suggestion{{Label: "Coffee", SimilarityScore: -0.1}},
			wantErr:     true,
		},
		{
			name:        "blank label",
			suggestions: []model.Suggestion{{Label: "", SimilarityScore: 0.5}},
			wantErr:     true,
		},
		{
			name: "two best matches",
			suggestions: []model.Suggestion{
				{Label: "Coffee", SimilarityScore: 0.9, IsBestMatch: true},
				{Label: "Tea", SimilarityScore: 0.8, IsBestMatch: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSuggestions(tt.suggestions)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSuggestions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSuggestion) {
				t.Errorf("validateSuggestions() error = %v, want ErrInvalidSuggestion", err)
			}
		})
	}
}

func TestValidateCacheEntry(t *testing.T) {
	if err := validateCacheEntry(&model.CacheEntry{Key: "coffee|us"}); err != nil {
		t.Errorf("validateCacheEntry() unexpected error = %v", err)
	}
	if err := validateCacheEntry(nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("validateCacheEntry(nil) error = %v, want ErrNilParameter", err)
	}
	if err := validateCacheEntry(&model.CacheEntry{Key: " "}); !errors.Is(err, ErrInvalidCacheEntry) {
		t.Errorf("validateCacheEntry() error = %v, want ErrInvalidCacheEntry", err)
	}
}
