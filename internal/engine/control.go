package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// Action is a control request on a job.
type Action string

// Control actions.
const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// ParseAction validates a control action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPause, ActionResume, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidAction, s)
}

// ControlResult is the answer to a control request.
type ControlResult struct {
	Handle  *RunHandle      `json:"-"` // Set when the action started a run
	Status  model.JobStatus `json:"status"`
	Message string          `json:"message"`
}

// SetJobControl pauses, resumes or cancels a job.
//
// pause is accepted only while processing, resume only while paused and cancel
// while processing or paused. Anything else fails with common.ErrIllegalTransition.
// Items already dispatched are never interrupted.
func (o *Orchestrator) SetJobControl(ctx context.Context, jobID string, action Action) (ControlResult, error) {
	switch action {
	case ActionPause:
		return o.pause(ctx, jobID)
	case ActionResume:
		return o.resume(ctx, jobID)
	case ActionCancel:
		return o.cancel(ctx, jobID)
	}
	return ControlResult{}, fmt.Errorf("%w: %q", common.ErrInvalidAction, action)
}

func (o *Orchestrator) pause(ctx context.Context, jobID string) (ControlResult, error) {
	now := o.opts.Clock.Now()
	ok, err := o.repo.TransitionJob(ctx, jobID, []model.JobStatus{model.JobProcessing}, model.JobPaused, &now)
	if err != nil {
		return ControlResult{}, fmt.Errorf("failed to pause job: %w", err)
	}
	if !ok {
		return ControlResult{}, o.illegal(ctx, jobID, "pause")
	}

	o.stopAdmission(jobID)
	o.logger.Info("Job paused", "job_id", jobID)
	return ControlResult{Status: model.JobPaused, Message: "Enrichment paused; items in flight will finish"}, nil
}

func (o *Orchestrator) resume(ctx context.Context, jobID string) (ControlResult, error) {
	ok, err := o.repo.TransitionJob(ctx, jobID, []model.JobStatus{model.JobPaused}, model.JobProcessing, nil)
	if err != nil {
		return ControlResult{}, fmt.Errorf("failed to resume job: %w", err)
	}
	if !ok {
		return ControlResult{}, o.illegal(ctx, jobID, "resume")
	}

	job, err := o.repo.GetJob(ctx, jobID)
	if err != nil {
		return ControlResult{}, fmt.Errorf("failed to get job: %w", err)
	}
	handle := o.launch(ctx, job)
	o.logger.Info("Job resumed", "job_id", jobID)
	return ControlResult{Handle: handle, Status: model.JobProcessing, Message: "Enrichment resumed"}, nil
}

func (o *Orchestrator) cancel(ctx context.Context, jobID string) (ControlResult, error) {
	job, err := o.repo.GetJob(ctx, jobID)
	if err != nil {
		return ControlResult{}, fmt.Errorf("failed to get job: %w", err)
	}

	ok, err := o.repo.TransitionJob(ctx, jobID, []model.JobStatus{model.JobProcessing, model.JobPaused}, model.JobCancelled, nil)
	if err != nil {
		return ControlResult{}, fmt.Errorf("failed to cancel job: %w", err)
	}
	if !ok {
		return ControlResult{}, o.illegal(ctx, jobID, "cancel")
	}
	o.stopAdmission(jobID)

	n, err := o.releaseItems(ctx, job)
	if err != nil {
		return ControlResult{}, err
	}

	o.logger.Info("Job cancelled", "job_id", jobID, "kind", job.Kind, "items_released", n)
	return ControlResult{Status: model.JobCancelled, Message: fmt.Sprintf("Enrichment cancelled; %d items released", n)}, nil
}

// releaseItems applies the cancel policy of the job's kind to its open items.
// Interactive projects keep their items re-runnable; imported checks close them.
func (o *Orchestrator) releaseItems(ctx context.Context, job *model.Job) (int64, error) {
	var (
		n   int64
		err error
	)
	if job.Kind == model.KindProject {
		n, err = o.repo.ResetItems(ctx, job.ID, []model.ItemStatus{model.ItemInProgress, model.ItemRetry}, model.ItemPending)
	} else {
		n, err = o.repo.ResetItems(ctx, job.ID, []model.ItemStatus{model.ItemPending, model.ItemInProgress, model.ItemRetry}, model.ItemCancelled)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to release items of cancelled job: %w", err)
	}
	return n, nil
}

// Recover handles jobs left processing by a process that is gone. Depending on
// the recovery policy they are paused or resumed. Jobs whose heartbeat is
// younger than Options.StaleAfter belong to a live run, possibly in another
// process, and are left alone. It returns how many jobs were touched.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	jobs, err := o.repo.ListJobs(ctx, model.JobProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	now := o.opts.Clock.Now()
	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		if o.Active(job.ID) != nil {
			continue
		}
		if job.HeartbeatAt != nil && now.Sub(*job.HeartbeatAt) < o.opts.StaleAfter {
			o.logger.Debug("Job is alive elsewhere, not recovering", "job_id", job.ID, "heartbeat_at", *job.HeartbeatAt)
			continue
		}

		switch o.opts.RecoveryPolicy {
		case RecoverResume:
			o.launch(ctx, job)
		default:
			ok, err := o.repo.TransitionJob(ctx, job.ID, []model.JobStatus{model.JobProcessing}, model.JobPaused, &now)
			if err != nil {
				return recovered, fmt.Errorf("failed to pause stale job %s: %w", job.ID, err)
			}
			if !ok {
				continue
			}
		}

		recovered++
		o.logger.Info("Recovered stale job", "job_id", job.ID, "policy", o.opts.RecoveryPolicy)
	}
	return recovered, nil
}

// SweepStale runs Recover every Options.StaleAfter until ctx is done, picking
// up jobs whose run died after startup.
func (o *Orchestrator) SweepStale(ctx context.Context) {
	ticker := time.NewTicker(o.opts.StaleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.Recover(ctx)
			if err != nil {
				o.logger.Warn("Stale job sweep failed", "error", err)
				continue
			}
			if n > 0 {
				o.logger.Info("Recovered abandoned jobs", "count", n, "policy", o.opts.RecoveryPolicy)
			}
		}
	}
}
