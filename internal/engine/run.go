package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/pool"
)

// run is one background pass over a job's open items.
type run struct {
	handle    *RunHandle
	admission context.Context
	cancel    context.CancelFunc
	fatal     error
	mu        sync.Mutex
}

// stop ends admission of new items; in-flight items finish.
func (r *run) stop() {
	r.cancel()
}

// fail records the first fatal error and stops admission.
func (r *run) fail(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// launch registers and starts a run for a job already marked processing.
// A run still draining for the same job is waited for before the new one touches items.
func (o *Orchestrator) launch(ctx context.Context, job *model.Job) *RunHandle {
	base := context.WithoutCancel(ctx)
	admission, cancel := context.WithCancel(base)
	r := &run{
		handle:    &RunHandle{jobID: job.ID, done: make(chan struct{})},
		admission: admission,
		cancel:    cancel,
	}

	o.mu.Lock()
	prev := o.runs[job.ID]
	o.runs[job.ID] = r
	o.mu.Unlock()

	go func() {
		defer o.finish(r)
		if prev != nil {
			<-prev.handle.done
		}
		o.execute(base, r, job)
	}()

	return r.handle
}

func (o *Orchestrator) finish(r *run) {
	r.cancel()

	o.mu.Lock()
	if o.runs[r.handle.jobID] == r {
		delete(o.runs, r.handle.jobID)
	}
	o.mu.Unlock()

	close(r.handle.done)
}

// stopAdmission stops the in-process run of a job, if any.
func (o *Orchestrator) stopAdmission(jobID string) {
	o.mu.Lock()
	r := o.runs[jobID]
	o.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run, job *model.Job) {
	logger := o.logger.With("job_id", job.ID, "kind", job.Kind)
	started := o.opts.Clock.Now()
	logger.Info("Starting enrichment run")

	o.heartbeat(ctx, job.ID)
	stopWatch := make(chan struct{})
	go o.watch(ctx, r, job.ID, stopWatch)

	err := o.loop(ctx, r, job)
	close(stopWatch)
	if err == nil {
		err = r.fatalErr()
	}
	o.settleCancelled(ctx, job)

	if err != nil {
		logger.Error("Enrichment run failed", "error", err)
		if _, tErr := o.repo.TransitionJob(ctx, job.ID, []model.JobStatus{model.JobProcessing}, model.JobError, nil); tErr != nil {
			logger.Error("Failed to mark job as errored", "error", tErr)
		}
		r.handle.err = err
		r.handle.status = model.JobError
		return
	}

	if r.admission.Err() == nil {
		if err := o.complete(ctx, job.ID); err != nil {
			logger.Error("Failed to complete job", "error", err)
			r.handle.err = err
		}
	}

	if current, err := o.repo.GetJob(ctx, job.ID); err == nil {
		r.handle.status = current.Status
	} else if r.handle.err == nil {
		r.handle.err = fmt.Errorf("failed to read final job status: %w", err)
	}

	logger.Info("Enrichment run finished",
		"status", r.handle.status,
		"duration", o.opts.Clock.Now().Sub(started))
}

// loop runs passes over pending and retry items until none are left or admission stops.
func (o *Orchestrator) loop(ctx context.Context, r *run, job *model.Job) error {
	// Items left in progress by an earlier run never finished; start them over.
	if _, err := o.repo.ResetItems(ctx, job.ID, []model.ItemStatus{model.ItemInProgress}, model.ItemPending); err != nil {
		return fmt.Errorf("failed to reset interrupted items: %w", err)
	}

	scorer, err := o.loadScorer(ctx)
	if err != nil {
		return err
	}

	for pass := 0; ; pass++ {
		if r.admission.Err() != nil {
			return nil
		}

		items, err := o.repo.ListItems(ctx, job.ID, model.ItemPending, model.ItemRetry)
		if err != nil {
			return fmt.Errorf("failed to list open items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		if pass > 0 && o.opts.RetryDelay > 0 {
			select {
			case <-r.admission.Done():
				return nil
			case <-time.After(o.opts.RetryDelay):
			}
		}

		o.logger.Debug("Dispatching items",
			"job_id", job.ID,
			"pass", pass,
			"items", len(items),
			"max_concurrency", o.opts.MaxConcurrency)

		tasks := make([]pool.Task[*ItemOutcome], len(items))
		for i := range items {
			item := items[i]
			tasks[i] = func(taskCtx context.Context) (*ItemOutcome, error) {
				outcome, err := o.processItem(taskCtx, item, scorer, model.CallAuto, o.opts.MaxRetries)
				if err != nil {
					r.fail(err)
					return nil, err
				}
				o.advanceCursor(taskCtx, job.ID, item.Position)
				return outcome, nil
			}
		}

		for _, res := range pool.Execute(r.admission, tasks, o.opts.MaxConcurrency) {
			if res.Err != nil && !errors.Is(res.Err, pool.ErrNotAdmitted) {
				return res.Err
			}
		}
	}
}

// settleCancelled re-applies the cancel policy once a run has drained. Items
// that were in flight when the job was cancelled write their own status after
// the cancel released the rest.
func (o *Orchestrator) settleCancelled(ctx context.Context, job *model.Job) {
	current, err := o.repo.GetJob(ctx, job.ID)
	if err != nil || current.Status != model.JobCancelled {
		return
	}
	n, err := o.releaseItems(ctx, current)
	if err != nil {
		o.logger.Error("Failed to release items after cancel", "job_id", job.ID, "error", err)
		return
	}
	if n > 0 {
		o.logger.Info("Released items finished after cancel", "job_id", job.ID, "items", n)
	}
}

// complete marks the job done once no item is left open.
func (o *Orchestrator) complete(ctx context.Context, jobID string) error {
	counts, err := o.repo.CountItems(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if counts.Pending+counts.Retry+counts.InProgress > 0 {
		return nil
	}
	if _, err := o.repo.TransitionJob(ctx, jobID, []model.JobStatus{model.JobProcessing}, model.JobDone, nil); err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return nil
}

// advanceCursor records the furthest completed position. The repository ignores moves backwards.
func (o *Orchestrator) advanceCursor(ctx context.Context, jobID string, position int) {
	if err := o.repo.SetJobCursor(ctx, jobID, &position); err != nil {
		o.logger.Warn("Failed to advance job cursor", "job_id", jobID, "position", position, "error", err)
	}
}

// heartbeat tells other processes this run is alive.
func (o *Orchestrator) heartbeat(ctx context.Context, jobID string) {
	if err := o.repo.TouchJob(ctx, jobID); err != nil {
		o.logger.Warn("Failed to refresh job heartbeat", "job_id", jobID, "error", err)
	}
}

// watch stops admission when the job row leaves processing, e.g. after a
// control request handled by another process. While the job stays processing
// its heartbeat is refreshed.
func (o *Orchestrator) watch(ctx context.Context, r *run, jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(o.opts.ControlPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-r.admission.Done():
			return
		case <-ticker.C:
			job, err := o.repo.GetJob(ctx, jobID)
			if err != nil {
				o.logger.Warn("Failed to poll job status", "job_id", jobID, "error", err)
				continue
			}
			if job.Status != model.JobProcessing {
				o.logger.Info("Job left processing, stopping admission", "job_id", jobID, "status", job.Status)
				r.stop()
				return
			}
			o.heartbeat(ctx, jobID)
		}
	}
}
