// Package engine drives enrichment jobs through search, scoring and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/scoring"
	"github.com/Veraticus/interest-enricher/internal/service"
)

// RecoveryPolicy decides what happens to jobs found processing with no run at startup.
type RecoveryPolicy string

// Recovery policies.
const (
	RecoverPause  RecoveryPolicy = "pause"
	RecoverResume RecoveryPolicy = "resume"
)

// Valid reports whether p is a known policy.
func (p RecoveryPolicy) Valid() bool {
	return p == RecoverPause || p == RecoverResume
}

// Options configures the orchestrator.
type Options struct {
	Logger              *slog.Logger
	Clock               service.Clock
	RecoveryPolicy      RecoveryPolicy
	WriteRetry          common.RetryOptions
	MaxConcurrency      int           // Items searched in parallel per run
	MaxRetries          int           // Attempts allowed per item and run
	SearchLimit         int           // Candidates requested per search
	RetryDelay          time.Duration // Pause between passes over retry items
	ControlPollInterval time.Duration // How often a run re-reads its job row and refreshes its heartbeat
	StaleAfter          time.Duration // Heartbeat age after which a processing job counts as abandoned
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:      5,
		MaxRetries:          3,
		SearchLimit:         25,
		RetryDelay:          2 * time.Second,
		ControlPollInterval: 2 * time.Second,
		StaleAfter:          10 * time.Second,
		RecoveryPolicy:      RecoverPause,
		WriteRetry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = d.MaxConcurrency
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.ControlPollInterval <= 0 {
		o.ControlPollInterval = d.ControlPollInterval
	}
	if o.StaleAfter <= o.ControlPollInterval {
		o.StaleAfter = 5 * o.ControlPollInterval
	}
	if !o.RecoveryPolicy.Valid() {
		o.RecoveryPolicy = d.RecoveryPolicy
	}
	if o.WriteRetry.MaxAttempts <= 0 {
		o.WriteRetry = d.WriteRetry
	}
	if o.Clock == nil {
		o.Clock = common.SystemClock{}
	}
	o.Logger = common.OrDefault(o.Logger)
	return o
}

// Orchestrator owns the job state machine and the runs processing job items.
type Orchestrator struct {
	repo   service.Repository
	client service.SearchClient
	cache  SuggestionCache
	logger *slog.Logger
	runs   map[string]*run
	opts   Options
	mu     sync.Mutex
}

// New creates an orchestrator. A nil cache disables caching.
func New(repo service.Repository, client service.SearchClient, suggestionCache SuggestionCache, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	if suggestionCache == nil {
		suggestionCache = noCache{}
	}
	return &Orchestrator{
		repo:   repo,
		client: client,
		cache:  suggestionCache,
		logger: opts.Logger,
		opts:   opts,
		runs:   make(map[string]*run),
	}
}

// RunHandle lets callers observe a background run.
type RunHandle struct {
	err    error
	done   chan struct{}
	jobID  string
	status model.JobStatus
}

// JobID returns the job the run belongs to.
func (h *RunHandle) JobID() string {
	return h.jobID
}

// Done is closed when the run has stopped and every admitted item has finished.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run stops and returns the job status it left behind.
func (h *RunHandle) Wait(ctx context.Context) (model.JobStatus, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return h.status, h.err
	}
}

// StartEnrichment starts processing a pending job, or restarts one that ended in error.
// Calling it for a job that is already running returns the existing handle.
func (o *Orchestrator) StartEnrichment(ctx context.Context, jobID string) (*RunHandle, error) {
	job, err := o.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	switch job.Status {
	case model.JobProcessing:
		if h := o.Active(jobID); h != nil {
			return h, nil
		}
		return nil, fmt.Errorf("job %s is processing without a run in this process: %w", jobID, common.ErrRunActive)
	case model.JobPaused:
		return nil, fmt.Errorf("%w: job %s is paused, resume it instead", common.ErrIllegalTransition, jobID)
	case model.JobDone, model.JobCancelled:
		return nil, fmt.Errorf("%w: job %s is %s", common.ErrIllegalTransition, jobID, job.Status)
	}

	ok, err := o.repo.TransitionJob(ctx, jobID, []model.JobStatus{model.JobPending, model.JobError}, model.JobProcessing, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	if !ok {
		// Lost a race with another starter.
		if h := o.Active(jobID); h != nil {
			return h, nil
		}
		return nil, o.illegal(ctx, jobID, "start")
	}

	return o.launch(ctx, job), nil
}

// Active returns the handle of the job's in-process run, or nil.
func (o *Orchestrator) Active(jobID string) *RunHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.runs[jobID]; ok {
		return r.handle
	}
	return nil
}

// Shutdown stops admission on every run and waits for in-flight items.
// Jobs stay processing and are picked up by Recover on the next start.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.stop()
	}
	for _, r := range runs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.handle.done:
		}
	}
	return nil
}

func (o *Orchestrator) illegal(ctx context.Context, jobID, action string) error {
	job, err := o.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return fmt.Errorf("%w: cannot %s job %s while it is %s", common.ErrIllegalTransition, action, jobID, job.Status)
}

// loadScorer reads the weights once per run. Missing or unusable weights fall back to the defaults.
func (o *Orchestrator) loadScorer(ctx context.Context) (*scoring.Scorer, error) {
	weights, err := o.repo.GetScoreWeights(ctx)
	switch {
	case err == nil:
		return scoring.New(weights), nil
	case errors.Is(err, common.ErrNotFound):
		return scoring.New(model.DefaultScoreWeights()), nil
	case errors.Is(err, common.ErrInvalidConfig):
		o.logger.Warn("Stored score weights unusable, using defaults", "error", err)
		return scoring.New(model.DefaultScoreWeights()), nil
	default:
		return nil, fmt.Errorf("failed to load score weights: %w", err)
	}
}
