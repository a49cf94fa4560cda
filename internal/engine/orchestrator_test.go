package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/interest-enricher/internal/cache"
	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/search"
	"github.com/Veraticus/interest-enricher/internal/service"
	"github.com/Veraticus/interest-enricher/internal/testutil"
)

type harness struct {
	db     *testutil.TestDB
	client *search.MockClient
	cache  *cache.Tiered
	orch   *Orchestrator
}

func testOptions(db *testutil.TestDB) Options {
	return Options{
		Clock:               db.Clock,
		MaxConcurrency:      2,
		MaxRetries:          3,
		RetryDelay:          time.Millisecond,
		ControlPollInterval: 10 * time.Millisecond,
		WriteRetry:          common.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond},
	}
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newHarnessWithRepo(t, db, db.Storage, configure)
}

func newHarnessWithRepo(t *testing.T, db *testutil.TestDB, repo service.Repository, configure func(*Options)) *harness {
	t.Helper()
	opts := testOptions(db)
	if configure != nil {
		configure(&opts)
	}
	client := search.NewMockClient()
	tiered := cache.NewTiered(cache.NewMemory(0, db.Clock), cache.NewPersistent(db.Storage, db.Clock, 0), nil)
	orch := New(repo, client, tiered, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return &harness{db: db, client: client, cache: tiered, orch: orch}
}

func wait(t *testing.T, h *RunHandle) model.JobStatus {
	t.Helper()
	require.NotNil(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := h.Wait(ctx)
	require.NoError(t, err)
	return status
}

func TestStartEnrichment_CompletesJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("coffee", "tea", "juice").Build(t, h.db)
	h.client.SetResult("coffee", testutil.Candidate("1", "Coffee", 1000, 3000, "Food", "Coffee"))
	h.client.SetResult("tea", testutil.Candidate("2", "Tea", 500, 700))
	h.client.SetResult("juice", testutil.Candidate("3", "Juice", 10, 20))

	handle, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, handle.JobID())
	assert.Equal(t, model.JobDone, wait(t, handle))

	got := h.db.MustGetJob(job.ID)
	assert.Equal(t, model.JobDone, got.Status)
	assert.Nil(t, got.CurrentIndex)

	for _, item := range h.db.MustListItems(job.ID) {
		assert.Equal(t, model.ItemDone, item.Status, item.Label)
		suggestions := h.db.MustListSuggestions(item.ID)
		require.Len(t, suggestions, 1, item.Label)
		assert.True(t, suggestions[0].IsBestMatch)
		assert.Greater(t, suggestions[0].SimilarityScore, 0.0)
		assert.LessOrEqual(t, suggestions[0].SimilarityScore, 1.0)
	}

	coffee := h.db.MustListSuggestions(h.db.MustItemByLabel(job.ID, "coffee").ID)
	assert.Equal(t, int64(2000), coffee[0].Audience)
	assert.Equal(t, "Food > Coffee", coffee[0].Path)
	require.NotNil(t, coffee[0].ExternalID)
	assert.Equal(t, "1", *coffee[0].ExternalID)

	for _, req := range h.client.History() {
		assert.Equal(t, model.CallAuto, req.CallType)
		assert.Equal(t, 1, req.Attempt)
		assert.Equal(t, 25, req.Limit)
	}
}

func TestStartEnrichment_RanksBestMatchFirst(t *testing.T) {
	h := newHarness(t, nil)
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("running shoes").Build(t, h.db)
	h.client.SetResult("running shoes",
		testutil.Candidate("a", "Shoes", 100, 100),
		testutil.Candidate("b", "Running shoes", 1_000_000, 2_000_000),
		model.Candidate{Name: "  "},
	)

	handle, err := h.orch.StartEnrichment(context.Background(), job.ID)
	require.NoError(t, err)
	wait(t, handle)

	suggestions := h.db.MustListSuggestions(h.db.MustItemByLabel(job.ID, "running shoes").ID)
	require.Len(t, suggestions, 2, "blank candidates are skipped")
	assert.Equal(t, "Running shoes", suggestions[0].Label)
	assert.True(t, suggestions[0].IsBestMatch)
	assert.False(t, suggestions[1].IsBestMatch)
	assert.GreaterOrEqual(t, suggestions[0].SimilarityScore, suggestions[1].SimilarityScore)
}

func TestStartEnrichment_PauseAndResume(t *testing.T) {
	labels := []string{"a1", "a2", "a3", "a4", "a5"}
	h := newHarness(t, func(o *Options) { o.MaxConcurrency = 1 })
	ctx := context.Background()
	job := testutil.NewJobBuilder(model.KindInterestCheck).WithLabels(labels...).Build(t, h.db)
	for _, l := range labels {
		h.client.SetResult(l, testutil.Candidate("id-"+l, l, 10, 10))
	}

	pauseErr := make(chan error, 1)
	var once sync.Once
	h.client.OnSearch(func(req model.SearchRequest) {
		if req.Term == "a2" {
			once.Do(func() {
				_, err := h.orch.SetJobControl(ctx, job.ID, ActionPause)
				pauseErr <- err
			})
		}
	})

	handle, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaused, wait(t, handle))
	require.NoError(t, <-pauseErr)

	paused := h.db.MustGetJob(job.ID)
	assert.Equal(t, model.JobPaused, paused.Status)
	assert.NotNil(t, paused.PausedAt)
	assert.Len(t, h.db.MustListItems(job.ID, model.ItemDone), 2)
	assert.Len(t, h.db.MustListItems(job.ID, model.ItemPending, model.ItemInProgress), 3)

	res, err := h.orch.SetJobControl(ctx, job.ID, ActionResume)
	require.NoError(t, err)
	assert.Equal(t, model.JobProcessing, res.Status)
	assert.Equal(t, model.JobDone, wait(t, res.Handle))

	resumed := h.db.MustGetJob(job.ID)
	assert.Equal(t, model.JobDone, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	assert.Len(t, h.db.MustListItems(job.ID, model.ItemDone), 5)
	for _, l := range labels {
		assert.Equal(t, 1, h.client.Calls(l), "item %s searched more than once", l)
	}
}

func TestStartEnrichment_RetriesThenFails(t *testing.T) {
	h := newHarness(t, nil)
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("X", "Y", "Z").Build(t, h.db)
	rateLimited := &search.Error{Kind: search.KindRateLimit, StatusCode: 429, Message: "slow down"}
	h.client.FailNext("X", rateLimited, rateLimited, rateLimited)
	h.client.SetResult("Y", testutil.Candidate("y", "Y", 1, 1))
	h.client.SetResult("Z", testutil.Candidate("z", "Z", 1, 1))

	handle, err := h.orch.StartEnrichment(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, wait(t, handle))

	x := h.db.MustItemByLabel(job.ID, "X")
	assert.Equal(t, model.ItemFailed, x.Status)
	assert.Equal(t, 3, x.RetryCount)
	assert.Equal(t, 3, h.client.Calls("X"))
	assert.Empty(t, h.db.MustListSuggestions(x.ID))

	for _, l := range []string{"Y", "Z"} {
		item := h.db.MustItemByLabel(job.ID, l)
		assert.Equal(t, model.ItemDone, item.Status)
		assert.Equal(t, 1, h.client.Calls(l))
	}

	attempts := []int{}
	for _, req := range h.client.History() {
		if req.Term == "X" {
			attempts = append(attempts, req.Attempt)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestStartEnrichment_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		want      model.ItemStatus
	}{
		{
			name:      "token invalid fails immediately",
			errs:      []error{&search.Error{Kind: search.KindTokenInvalid, StatusCode: 401}},
			wantCalls: 1,
			want:      model.ItemFailed,
		},
		{
			name:      "api error fails immediately",
			errs:      []error{&search.Error{Kind: search.KindFacebookAPI, StatusCode: 400}},
			wantCalls: 1,
			want:      model.ItemFailed,
		},
		{
			name:      "parse is retried once",
			errs:      []error{&search.Error{Kind: search.KindParse}, &search.Error{Kind: search.KindParse}},
			wantCalls: 2,
			want:      model.ItemFailed,
		},
		{
			name:      "server error recovers",
			errs:      []error{&search.Error{Kind: search.KindServerError, StatusCode: 503}},
			wantCalls: 2,
			want:      model.ItemDone,
		},
		{
			name:      "unclassified errors count as network",
			errs:      []error{errors.New("connection reset"), errors.New("connection reset")},
			wantCalls: 3,
			want:      model.ItemDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			job := testutil.NewJobBuilder(model.KindProject).WithLabels("term").Build(t, h.db)
			h.client.FailNext("term", tt.errs...)
			h.client.SetResult("term", testutil.Candidate("t", "term", 1, 1))

			handle, err := h.orch.StartEnrichment(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobDone, wait(t, handle))

			assert.Equal(t, tt.want, h.db.MustItemByLabel(job.ID, "term").Status)
			assert.Equal(t, tt.wantCalls, h.client.Calls("term"))
		})
	}
}

func TestStartEnrichment_UsesCache(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.db.Storage.PutCacheEntry(ctx, &model.CacheEntry{
		Key:        cache.Key("coca cola", "US"),
		Country:    "us",
		Candidates: []model.Candidate{testutil.Candidate("6003", "Coca-Cola", 1_000_000, 1_500_000, "Food and drink", "Beverages")},
		CreatedAt:  h.db.Clock.Now(),
	}))
	job := testutil.NewJobBuilder(model.KindProject).WithCountry("us").WithLabels("Coca Cola").Build(t, h.db)

	handle, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, wait(t, handle))

	assert.Equal(t, 0, h.client.TotalCalls())
	suggestions := h.db.MustListSuggestions(h.db.MustItemByLabel(job.ID, "Coca Cola").ID)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Coca-Cola", suggestions[0].Label)
	assert.True(t, suggestions[0].IsBestMatch)
	assert.Greater(t, suggestions[0].SimilarityScore, 0.0)
}

func TestStartEnrichment_CachesResults(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("Café", "nothing").Build(t, h.db)
	h.client.SetResult("café", testutil.Candidate("1", "Cafe", 10, 10))

	handle, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	wait(t, handle)

	candidates, source, hit := h.cache.Lookup(ctx, "cafe ", "us")
	require.True(t, hit)
	assert.Equal(t, cache.SourceMemory, source)
	assert.Len(t, candidates, 1)

	_, err = h.db.Storage.GetCacheEntry(ctx, cache.Key("Café", "US"))
	require.NoError(t, err)

	nothing := h.db.MustItemByLabel(job.ID, "nothing")
	assert.Equal(t, model.ItemDone, nothing.Status, "zero candidates is not an error")
	assert.Empty(t, h.db.MustListSuggestions(nothing.ID))
	_, err = h.db.Storage.GetCacheEntry(ctx, cache.Key("nothing", "US"))
	assert.ErrorIs(t, err, common.ErrNotFound, "empty results are not cached")
}

func TestStartEnrichment_Idempotent(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxConcurrency = 1 })
	ctx := context.Background()
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("a", "b").Build(t, h.db)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.client.OnSearch(func(model.SearchRequest) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	first, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	<-started

	second, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	close(release)
	assert.Equal(t, model.JobDone, wait(t, first))

	_, err = h.orch.StartEnrichment(ctx, job.ID)
	assert.ErrorIs(t, err, common.ErrIllegalTransition)
}

func TestStartEnrichment_RepositoryFailureIsFatal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := &failingRepo{Repository: db.Storage, err: errors.New("disk I/O error")}
	h := newHarnessWithRepo(t, db, repo, nil)
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("a", "b", "c").Build(t, db)

	handle, err := h.orch.StartEnrichment(context.Background(), job.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := handle.Wait(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.Equal(t, model.JobError, status)

	got := db.MustGetJob(job.ID)
	assert.Equal(t, model.JobError, got.Status)
	assert.Nil(t, got.CurrentIndex)

	// Error is restartable once the repository recovers.
	repo.heal()
	h.client.SetResult("a", testutil.Candidate("1", "a", 1, 1))
	handle, err = h.orch.StartEnrichment(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, wait(t, handle))
}

type failingRepo struct {
	service.Repository
	err    error
	mu     sync.Mutex
	healed bool
}

func (r *failingRepo) ReplaceSuggestions(ctx context.Context, itemID string, suggestions []model.Suggestion) error {
	r.mu.Lock()
	healed := r.healed
	r.mu.Unlock()
	if !healed {
		return r.err
	}
	return r.Repository.ReplaceSuggestions(ctx, itemID, suggestions)
}

func (r *failingRepo) heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healed = true
}

func TestRecover(t *testing.T) {
	t.Run("pause policy demotes stale jobs", func(t *testing.T) {
		h := newHarness(t, nil)
		ctx := context.Background()
		job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
		_, err := h.db.Storage.TransitionJob(ctx, job.ID, []model.JobStatus{model.JobPending}, model.JobProcessing, nil)
		require.NoError(t, err)

		n, err := h.orch.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got := h.db.MustGetJob(job.ID)
		assert.Equal(t, model.JobPaused, got.Status)
		assert.NotNil(t, got.PausedAt)
		assert.Nil(t, h.orch.Active(job.ID))
	})

	t.Run("resume policy restarts stale jobs", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.RecoveryPolicy = RecoverResume })
		ctx := context.Background()
		job := testutil.NewJobBuilder(model.KindProject).WithLabels("a", "b").Build(t, h.db)
		_, err := h.db.Storage.TransitionJob(ctx, job.ID, []model.JobStatus{model.JobPending}, model.JobProcessing, nil)
		require.NoError(t, err)
		item := h.db.MustItemByLabel(job.ID, "a")
		require.NoError(t, h.db.Storage.UpdateItemStatus(ctx, item.ID, model.ItemInProgress, 0))

		n, err := h.orch.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Eventually(t, func() bool {
			got, err := h.db.Storage.GetJob(ctx, job.ID)
			return err == nil && got.Status == model.JobDone
		}, 10*time.Second, 10*time.Millisecond)
		assert.Len(t, h.db.MustListItems(job.ID, model.ItemDone), 2)
	})
}

func TestRecover_Heartbeat(t *testing.T) {
	t.Run("fresh heartbeat is left alone until it goes stale", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.StaleAfter = time.Minute })
		ctx := context.Background()
		job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, h.db)
		forceStatus(t, h.db, job.ID, model.JobProcessing)
		require.NoError(t, h.db.Storage.TouchJob(ctx, job.ID))

		n, err := h.orch.Recover(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, model.JobProcessing, h.db.MustGetJob(job.ID).Status)

		h.db.Clock.Advance(time.Minute)

		n, err = h.orch.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, model.JobPaused, h.db.MustGetJob(job.ID).Status)
	})

	t.Run("run in another process is not demoted", func(t *testing.T) {
		runner := newHarness(t, nil)
		ctx := context.Background()
		job := testutil.NewJobBuilder(model.KindProject).WithLabels("a").Build(t, runner.db)

		release := make(chan struct{})
		runner.client.OnSearch(func(model.SearchRequest) { <-release })

		handle, err := runner.orch.StartEnrichment(ctx, job.ID)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			got, err := runner.db.Storage.GetJob(ctx, job.ID)
			return err == nil && got.HeartbeatAt != nil
		}, 5*time.Second, 5*time.Millisecond)

		other := newHarnessWithRepo(t, runner.db, runner.db.Storage, nil)
		n, err := other.orch.Recover(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, model.JobProcessing, runner.db.MustGetJob(job.ID).Status)

		close(release)
		assert.Equal(t, model.JobDone, wait(t, handle))
	})
}

func TestRetryItem(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	job := testutil.NewJobBuilder(model.KindProject).WithLabels("flaky").Build(t, h.db)
	h.client.FailNext("flaky", &search.Error{Kind: search.KindTokenInvalid, StatusCode: 401})

	handle, err := h.orch.StartEnrichment(ctx, job.ID)
	require.NoError(t, err)
	wait(t, handle)
	item := h.db.MustItemByLabel(job.ID, "flaky")
	require.Equal(t, model.ItemFailed, item.Status)

	t.Run("success", func(t *testing.T) {
		h.client.SetResult("flaky", testutil.Candidate("f", "Flaky", 100, 100))

		outcome, err := h.orch.RetryItem(ctx, job.ID, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ItemDone, outcome.Status)
		assert.NoError(t, outcome.Err)
		require.NotNil(t, outcome.BestMatch())
		assert.Equal(t, "Flaky", outcome.BestMatch().Label)

		got := h.db.MustItemByLabel(job.ID, "flaky")
		assert.Equal(t, model.ItemDone, got.Status)
		assert.Equal(t, 0, got.RetryCount)
		assert.Len(t, h.db.MustListSuggestions(item.ID), 1)

		history := h.client.History()
		assert.Equal(t, model.CallManual, history[len(history)-1].CallType)
	})

	t.Run("a second retry replaces suggestions and answers from cache", func(t *testing.T) {
		calls := h.client.TotalCalls()
		outcome, err := h.orch.RetryItem(ctx, job.ID, item.ID)
		require.NoError(t, err)
		assert.Equal(t, cache.SourceMemory, outcome.Source)
		assert.Equal(t, calls, h.client.TotalCalls())
		assert.Len(t, h.db.MustListSuggestions(item.ID), 1)
	})

	t.Run("manual retries get a single attempt", func(t *testing.T) {
		h2 := newHarness(t, nil)
		job2 := testutil.NewJobBuilder(model.KindProject).WithLabels("down").Build(t, h2.db)
		target := h2.db.MustItemByLabel(job2.ID, "down")
		h2.client.FailNext("down", &search.Error{Kind: search.KindNetwork})

		outcome, err := h2.orch.RetryItem(ctx, job2.ID, target.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ItemFailed, outcome.Status)
		assert.Equal(t, search.KindNetwork, search.KindOf(outcome.Err))
	})

	t.Run("item from another job", func(t *testing.T) {
		other := testutil.NewJobBuilder(model.KindProject).WithName("other").WithLabels("x").Build(t, h.db)
		_, err := h.orch.RetryItem(ctx, other.ID, item.ID)
		assert.ErrorIs(t, err, common.ErrItemMismatch)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := h.orch.RetryItem(ctx, job.ID, "missing")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
