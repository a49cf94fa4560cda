package engine

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/search"
	"github.com/Veraticus/interest-enricher/internal/testutil"
)

func TestParseAction(t *testing.T) {
	for _, in := range []string{"pause", " Resume ", "CANCEL"} {
		_, err := ParseAction(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseAction("stop")
	assert.ErrorIs(t, err, common.ErrInvalidAction)
}

// forceStatus moves a job to status without starting a run.
func forceStatus(t *testing.T, db *testutil.TestDB, jobID string, status model.JobStatus) {
	t.Helper()
	all := []model.JobStatus{model.JobPending, model.JobProcessing, model.JobPaused, model.JobCancelled, model.JobDone, model.JobError}
	ok, err := db.Storage.TransitionJob(context.Background(), jobID, all, status, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSetJobControl_Legality(t *testing.T) {
	tests := []struct {
		from   model.JobStatus
		action Action
		want   model.JobStatus
		legal  bool
	}{
		{from: model.JobPending, action: ActionPause},
		{from: model.JobPending, action: ActionResume},
		{from: model.JobPending, action: ActionCancel},
		{from: model.JobProcessing, action: ActionPause, legal: true, want: model.JobPaused},
		{from: model.JobProcessing, action: ActionResume},
		{from: model.JobProcessing, action: ActionCancel, legal: true, want: model.JobCancelled},
		{from: model.JobPaused, action: ActionPause},
		{from: model.JobPaused, action: ActionCancel, legal: true, want: model.JobCancelled},
		{from: model.JobDone, action: ActionPause},
		{from: model.JobDone, action: ActionResume},
		{from: model.JobDone, action: ActionCancel},
		{from: model.JobCancelled, action: ActionPause},
		{from: model.JobCancelled, action: ActionResume},
		{from: model.JobCancelled, action: ActionCancel},
		{from: model.JobError, action: ActionPause},
		{from: model.JobError, action: ActionResume},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			h := newHarness(t, nil)
			job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
			if tt.from != model.JobPending {
				forceStatus(t, h.db, job.ID, tt.from)
			}

			res, err := h.orch.SetJobControl(context.Background(), job.ID, tt.action)
			got := h.db.MustGetJob(job.ID)

			if !tt.legal {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrIllegalTransition)
				assert.Contains(t, err.Error(), string(tt.from))
				assert.Equal(t, tt.from, got.Status, "illegal actions leave the job untouched")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.NotEmpty(t, res.Message)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestSetJobControl_ResumeFromPaused(t *testing.T) {
	h := newHarness(t, nil)
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
	forceStatus(t, h.db, job.ID, model.JobPaused)

	res, err := h.orch.SetJobControl(context.Background(), job.ID, ActionResume)
	require.NoError(t, err)
	assert.Equal(t, model.JobProcessing, res.Status)
	assert.Equal(t, model.JobDone, wait(t, res.Handle))
}

func TestSetJobControl_InvalidAction(t *testing.T) {
	h := newHarness(t, nil)
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
	_, err := h.orch.SetJobControl(context.Background(), job.ID, "explode")
	assert.ErrorIs(t, err, common.ErrInvalidAction)
}

func TestSetJobControl_UnknownJob(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.SetJobControl(context.Background(), "missing", ActionPause)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetJobControl_CancelPolicy(t *testing.T) {
	setup := func(t *testing.T, kind model.JobKind) (*harness, *model.Job) {
		t.Helper()
		h := newHarness(t, nil)
		ctx := context.Background()
		job := testutil.NewJobBuilder(kind).WithLabels("done", "running", "retrying", "waiting", "failed").Build(t, h.db)
		forceStatus(t, h.db, job.ID, model.JobProcessing)

		set := map[string]model.ItemStatus{
			"done":     model.ItemDone,
			"running":  model.ItemInProgress,
			"retrying": model.ItemRetry,
			"failed":   model.ItemFailed,
		}
		for label, status := range set {
			item := h.db.MustItemByLabel(job.ID, label)
			require.NoError(t, h.db.Storage.UpdateItemStatus(ctx, item.ID, status, 1))
		}

		res, err := h.orch.SetJobControl(ctx, job.ID, ActionCancel)
		require.NoError(t, err)
		assert.Equal(t, model.JobCancelled, res.Status)
		return h, job
	}

	t.Run("project items go back to pending", func(t *testing.T) {
		h, job := setup(t, model.KindProject)
		want := map[string]model.ItemStatus{
			"done":     model.ItemDone,
			"running":  model.ItemPending,
			"retrying": model.ItemPending,
			"waiting":  model.ItemPending,
			"failed":   model.ItemFailed,
		}
		for label, status := range want {
			assert.Equal(t, status, h.db.MustItemByLabel(job.ID, label).Status, label)
		}
	})

	t.Run("interest check items are cancelled", func(t *testing.T) {
		h, job := setup(t, model.KindInterestCheck)
		want := map[string]model.ItemStatus{
			"done":     model.ItemDone,
			"running":  model.ItemCancelled,
			"retrying": model.ItemCancelled,
			"waiting":  model.ItemCancelled,
			"failed":   model.ItemFailed,
		}
		for label, status := range want {
			assert.Equal(t, status, h.db.MustItemByLabel(job.ID, label).Status, label)
		}
	})
}

func TestSetJobControl_CancelWhileItemInFlight(t *testing.T) {
	tests := []struct {
		kind model.JobKind
		want model.ItemStatus
	}{
		{kind: model.KindInterestCheck, want: model.ItemCancelled},
		{kind: model.KindProject, want: model.ItemPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.MaxConcurrency = 1 })
			ctx := context.Background()
			job := testutil.NewJobBuilder(tt.kind).WithLabels("a1", "a2").Build(t, h.db)
			h.client.FailNext("a1", &search.Error{Kind: search.KindServerError, StatusCode: http.StatusBadGateway, Message: "bad gateway"})

			var once sync.Once
			h.client.OnSearch(func(model.SearchRequest) {
				once.Do(func() {
					_, err := h.orch.SetJobControl(ctx, job.ID, ActionCancel)
					assert.NoError(t, err)
				})
			})

			handle, err := h.orch.StartEnrichment(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobCancelled, wait(t, handle))

			assert.Equal(t, tt.want, h.db.MustItemByLabel(job.ID, "a1").Status, "item failing after the cancel")
			assert.Equal(t, tt.want, h.db.MustItemByLabel(job.ID, "a2").Status, "item never dispatched")

			counts, err := h.db.Storage.CountItems(ctx, job.ID)
			require.NoError(t, err)
			assert.Zero(t, counts.Retry)
			assert.Zero(t, counts.InProgress)
		})
	}
}

func TestStartEnrichment_Legality(t *testing.T) {
	tests := []struct {
		from    model.JobStatus
		wantErr error
	}{
		{from: model.JobPaused, wantErr: common.ErrIllegalTransition},
		{from: model.JobDone, wantErr: common.ErrIllegalTransition},
		{from: model.JobCancelled, wantErr: common.ErrIllegalTransition},
		{from: model.JobProcessing, wantErr: common.ErrRunActive},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			h := newHarness(t, nil)
			job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
			forceStatus(t, h.db, job.ID, tt.from)

			_, err := h.orch.StartEnrichment(context.Background(), job.ID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.from, h.db.MustGetJob(job.ID).Status)
		})
	}
}
