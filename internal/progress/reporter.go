// Package progress serves the read model polled while jobs are enriched.
package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// Source is the slice of the repository the reporter reads.
type Source interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	GetItemAtPosition(ctx context.Context, jobID string, position int) (*model.Item, error)
	CountItems(ctx context.Context, jobID string) (model.ItemCounts, error)
}

// Reporter aggregates persisted job and item state. It holds no state of its own.
type Reporter struct {
	source Source
}

// NewReporter creates a reporter over source.
func NewReporter(source Source) *Reporter {
	return &Reporter{source: source}
}

// GetProgress returns the current progress of a job.
func (r *Reporter) GetProgress(ctx context.Context, jobID string) (*model.Progress, error) {
	job, err := r.source.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	counts, err := r.source.CountItems(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	p := &model.Progress{
		JobID:    job.ID,
		Status:   job.Status,
		PausedAt: job.PausedAt,
		Current:  counts.Done + counts.Failed,
		Total:    counts.Total,
		Metrics: model.Metrics{
			TotalItems:      counts.Total,
			WithSuggestions: counts.WithSuggestions,
			Processed:       counts.Done,
			Failed:          counts.Failed,
			Pending:         counts.Pending + counts.Retry,
			InProgress:      counts.InProgress,
		},
	}
	p.Percentage = Percentage(counts.Done, counts.Failed, counts.Total, job.Status)

	if job.Status == model.JobProcessing && job.CurrentIndex != nil {
		label, err := r.labelAt(ctx, jobID, *job.CurrentIndex)
		if err != nil {
			return nil, err
		}
		p.CurrentLabel = label
	}

	return p, nil
}

func (r *Reporter) labelAt(ctx context.Context, jobID string, position int) (*string, error) {
	item, err := r.source.GetItemAtPosition(ctx, jobID, position)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current item: %w", err)
	}
	return &item.Label, nil
}

// Percentage is (processed+failed)/total as a percentage rounded to two
// decimals. It is 0 for an empty job and exactly 100 once the job is done.
func Percentage(processed, failed, total int, status model.JobStatus) float64 {
	if status == model.JobDone {
		return 100
	}
	if total <= 0 {
		return 0
	}
	pct := float64(processed+failed) / float64(total) * 100
	return math.Min(100, math.Round(pct*100)/100)
}
