package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// ProgressSource serves the progress read model.
type ProgressSource interface {
	GetProgress(ctx context.Context, jobID string) (*model.Progress, error)
}

// WatchProgress draws a progress bar for a job until it leaves processing,
// then returns the last observed progress.
func WatchProgress(ctx context.Context, w io.Writer, src ProgressSource, jobID string, interval time.Duration) (*model.Progress, error) {
	p, err := src.GetProgress(ctx, jobID)
	if err != nil {
		return nil, err
	}

	bar := newProgressBar(w, p.Total)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		updateBar(bar, p)
		if p.Status != model.JobProcessing {
			if p.Status == model.JobDone {
				if err := bar.Finish(); err != nil {
					slog.Warn("Failed to finish progress bar", "error", err)
				}
			}
			return p, nil
		}

		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}

		if p, err = src.GetProgress(ctx, jobID); err != nil {
			return nil, err
		}
	}
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Enriching...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func updateBar(bar *progressbar.ProgressBar, p *model.Progress) {
	desc := "[cyan][bold]Enriching...[reset]"
	if p.CurrentLabel != nil {
		desc = fmt.Sprintf("[cyan][bold]Enriching[reset] %s", *p.CurrentLabel)
	}
	bar.Describe(desc)
	if err := bar.Set(p.Current); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}
