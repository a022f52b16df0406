package usecase

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

func TestScenarioStageByStage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")

	step := func(stage domain.Stage) domain.Record {
		t.Helper()
		prev := h.get(t, rec.ID)
		report := h.runStage(t, stage)
		require.Len(t, report.Advanced, 1, "stage %s", stage)
		next := h.get(t, rec.ID)
		require.NoError(t, domain.CheckForward(prev, next), "stage %s moved a field backwards", stage)
		assert.Equal(t, stage, next.LastStage)
		assert.Empty(t, next.LeaseOwner)
		return next
	}

	got := step(domain.StageTitleGen)
	assert.Equal(t, "Generated Title", got.Title)
	assert.Zero(t, got.RemotePostID)
	assert.Empty(t, got.Body)
	assert.Empty(t, got.Tags)

	got = step(domain.StagePublishDraft)
	assert.Equal(t, int64(42), got.RemotePostID)
	assert.Equal(t, "This is a test article.", h.publisher.post(42).Body)
	assert.Equal(t, domain.PostStatusDraft, h.publisher.post(42).Status)

	got = step(domain.StageBodyGen)
	assert.NotEmpty(t, got.Body)
	got = step(domain.StageSyncPost)
	assert.True(t, got.RemotePostSynced)
	assert.Equal(t, got.Body, h.publisher.post(42).Body)
	assert.Equal(t, []int64{373}, h.publisher.post(42).Categories)

	got = step(domain.StageTagGen)
	assert.Equal(t, "ai, art", got.Tags)
	got = step(domain.StageTagAttach)
	assert.True(t, got.TagsAttached)
	assert.Equal(t, []int64{5, 99}, h.publisher.post(42).Tags)

	got = step(domain.StageExcerptGen)
	assert.NotEmpty(t, got.Excerpt)
	got = step(domain.StageExcerptPublish)
	assert.True(t, got.ExcerptPublished)
	assert.Equal(t, got.Excerpt, h.publisher.post(42).Excerpt)

	got = step(domain.StageImageAndPublish)
	assert.Equal(t, h.imgStore.Path(42), got.ImagePath)
	assert.FileExists(t, h.imgStore.Path(42))
	assert.Equal(t, int64(7), got.RemoteImageID)
	assert.Equal(t, domain.StatusPublished, got.Status)
	assert.NotEmpty(t, got.PublishURL)
	assert.Equal(t, domain.PostStatusPublish, h.publisher.post(42).Status)
	assert.Equal(t, int64(7), h.publisher.post(42).Featured)
	assert.Equal(t, domain.StagePublished, domain.NextStage(got))
}

func TestRunCompletesFreshTopicInOneInvocation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.pipeline(fakeSource{topics: []domain.Topic{{Text: "AI Art", Source: "reddit"}}})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	require.Len(t, report.Published, 1)
	assert.Len(t, report.Stages, len(domain.Stages)-1)

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Published())

	require.Len(t, h.notifier.digests, 1)
	assert.Contains(t, h.notifier.digests[0], "Generated Title")
	assert.Contains(t, h.notifier.digests[0], all[0].PublishURL)
}

func TestPublishedRecordIsTerminal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.pipeline(fakeSource{topics: []domain.Topic{{Text: "AI Art"}}})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	before := h.get(t, 1)
	textCalls, updates, uploads := h.text.callCount(), h.publisher.updates, h.publisher.uploads

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Ingested)
	for _, s := range report.Stages {
		assert.Empty(t, s.Advanced, "stage %s", s.Stage)
		assert.Zero(t, s.Skipped, "stage %s", s.Stage)
	}
	assert.Equal(t, before, h.get(t, 1))
	assert.Equal(t, textCalls, h.text.callCount())
	assert.Equal(t, updates, h.publisher.updates)
	assert.Equal(t, uploads, h.publisher.uploads)
	assert.Len(t, h.notifier.digests, 1)
}

func TestIngestIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	source := fakeSource{topics: []domain.Topic{{Text: "AI Art"}, {Text: " AI Art "}, {Text: ""}}}
	p := NewPipeline(PipelineDeps{Source: source, Store: h.store, IngestLimit: 3})

	n, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "AI Art", all[0].TopicName)
	assert.Equal(t, domain.StageIngest, all[0].LastStage)
}

func TestIngestFailureAbortsRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := h.pipeline(fakeSource{err: errUnavailable})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, errUnavailable)
}

func TestRunSkipsWhenLocked(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := NewPipeline(PipelineDeps{
		Source:   fakeSource{topics: []domain.Topic{{Text: "AI Art"}}},
		Store:    h.store,
		Runner:   h.runner,
		Handlers: h.handlers,
		Lock:     lockedLock{},
	})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ports.ErrLocked)

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreFailureIsFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	runner := NewStageRunner(RunnerDeps{Store: failingStore{RecordStore: h.store}})
	p := NewPipeline(PipelineDeps{
		Source:   fakeSource{topics: []domain.Topic{{Text: "AI Art"}}},
		Store:    h.store,
		Runner:   runner,
		Handlers: h.handlers,
	})

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, report.Stages, 1)
}

func TestFailureIsolation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	first := h.insert(t, "first")
	second := h.insert(t, "second")
	h.text.fail["title:first"] = errUnavailable

	report := h.runStage(t, domain.StageTitleGen)
	require.Len(t, report.Advanced, 1)
	assert.Equal(t, 1, report.Skipped)

	got := h.get(t, first.ID)
	assert.Empty(t, got.Title)
	assert.Empty(t, got.LeaseOwner)
	assert.Equal(t, domain.StageTitleGen, domain.NextStage(got))

	assert.Equal(t, "Generated Title", h.get(t, second.ID).Title)
}

func TestPublishDraftFailureLeavesRecordEligible(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	h.runStage(t, domain.StageTitleGen)
	h.publisher.failCreate["Generated Title"] = errUnavailable

	report := h.runStage(t, domain.StagePublishDraft)
	assert.Empty(t, report.Advanced)
	assert.Zero(t, h.get(t, rec.ID).RemotePostID)

	delete(h.publisher.failCreate, "Generated Title")
	report = h.runStage(t, domain.StagePublishDraft)
	require.Len(t, report.Advanced, 1)
	assert.Equal(t, int64(42), h.get(t, rec.ID).RemotePostID)
}

func TestEmptyGenerationIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	h.text.answers["title"] = "   "

	report := h.runStage(t, domain.StageTitleGen)
	assert.Empty(t, report.Advanced)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, h.get(t, rec.ID).Title)
}

func TestQuotesStrippedFromRemoteTitle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	h.text.answers["title"] = `"Generated Title"`

	h.runStage(t, domain.StageTitleGen)
	h.runStage(t, domain.StagePublishDraft)

	assert.Equal(t, `"Generated Title"`, h.get(t, rec.ID).Title)
	assert.Equal(t, "Generated Title", h.publisher.post(42).Title)
}

// advanceTo runs every stage before target on a single record.
func advanceTo(t *testing.T, h *harness, target domain.Stage) {
	t.Helper()
	for _, s := range domain.Stages[1:target.Index()] {
		h.runStage(t, s)
	}
}

func TestExistingImageIsNotRegenerated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	advanceTo(t, h, domain.StageImageAndPublish)

	_, err := h.imgStore.Save(context.Background(), 42, []byte("earlier"))
	require.NoError(t, err)

	report := h.runStage(t, domain.StageImageAndPublish)
	require.Len(t, report.Advanced, 1)
	assert.Zero(t, h.images.calls)

	data, err := os.ReadFile(h.imgStore.Path(42))
	require.NoError(t, err)
	assert.Equal(t, []byte("earlier"), data)
	assert.True(t, h.get(t, rec.ID).Published())
}

func TestImageAndPublishResumesAfterPartialFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	advanceTo(t, h, domain.StageImageAndPublish)

	h.publisher.failUpdate = errUnavailable
	report := h.runStage(t, domain.StageImageAndPublish)
	assert.Empty(t, report.Advanced)

	partial := h.get(t, rec.ID)
	assert.Equal(t, h.imgStore.Path(42), partial.ImagePath)
	assert.Equal(t, int64(7), partial.RemoteImageID)
	assert.False(t, partial.Published())
	assert.Empty(t, partial.LeaseOwner)
	assert.Equal(t, domain.StageImageAndPublish, domain.NextStage(partial))

	h.publisher.failUpdate = nil
	report = h.runStage(t, domain.StageImageAndPublish)
	require.Len(t, report.Advanced, 1)

	assert.Equal(t, 1, h.images.calls)
	assert.Equal(t, 1, h.publisher.uploads)
	done := h.get(t, rec.ID)
	assert.True(t, done.Published())
	assert.Equal(t, int64(7), done.RemoteImageID)
}

func TestExcerptPublishFailureDoesNotBlockPublishing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.publisher.failExcerpt = errUnavailable
	p := h.pipeline(fakeSource{topics: []domain.Topic{{Text: "AI Art"}}})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Published, 1)

	got := h.get(t, 1)
	assert.True(t, got.Published())
	assert.NotEmpty(t, got.Excerpt)
	assert.False(t, got.ExcerptPublished)
	assert.Equal(t, domain.PostStatusPublish, h.publisher.post(42).Status)
	assert.Empty(t, h.publisher.post(42).Excerpt)
}

func TestImageAndPublishRunsWhileExcerptPushIsPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	h.publisher.failExcerpt = errUnavailable
	advanceTo(t, h, domain.StageImageAndPublish)

	pending := h.get(t, rec.ID)
	require.False(t, pending.ExcerptPublished)
	assert.Equal(t, domain.StageExcerptPublish, domain.NextStage(pending))

	h.publisher.failExcerpt = nil
	report := h.runStage(t, domain.StageImageAndPublish)
	require.Len(t, report.Advanced, 1)
	assert.True(t, h.get(t, rec.ID).Published())
}

func TestLeasedRecordIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")
	rec.LeaseOwner = "runner-b"
	rec.LeaseExpiresAt = h.now.Add(30 * time.Second)
	_, err := h.store.Update(context.Background(), rec)
	require.NoError(t, err)

	report := h.runStage(t, domain.StageTitleGen)
	assert.Empty(t, report.Advanced)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, h.text.callCount())

	// Once the lease expires the record is claimable again.
	h.now = h.now.Add(time.Minute)
	report = h.runStage(t, domain.StageTitleGen)
	require.Len(t, report.Advanced, 1)
}

func TestStaleSnapshotLosesLeaseClaim(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.insert(t, "AI Art")

	// Another runner advanced the record after our snapshot was taken.
	fresh := rec
	fresh.Title = "Other Title"
	_, err := h.store.Update(context.Background(), fresh)
	require.NoError(t, err)

	outcome, _ := h.runner.process(context.Background(), domain.StageTitleGen, rec, h.handlers.For(domain.StageTitleGen))
	assert.Equal(t, OutcomeSkipped, outcome.Kind)
	assert.True(t, errors.Is(outcome.Err, domain.ErrVersionConflict))
	assert.Zero(t, h.text.callCount())
	assert.Equal(t, "Other Title", h.get(t, rec.ID).Title)
}
