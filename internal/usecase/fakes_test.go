package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/infrastructure/images"
	"TrendPress/internal/infrastructure/storage"
	"TrendPress/internal/ports"
)

var errUnavailable = errors.New("service unavailable")

var testPrompts = config.PromptsConfig{
	Title:   config.PromptConfig{Template: "title:%s", MaxTokens: 30},
	Body:    config.PromptConfig{Template: "body:%s", MaxTokens: 1000},
	Tags:    config.PromptConfig{Template: "tags:%s", MaxTokens: 50},
	Excerpt: config.PromptConfig{Template: "excerpt:%s", MaxTokens: 50},
	Image:   config.PromptConfig{Template: "image:%s"},
}

type fakeText struct {
	mu      sync.Mutex
	answers map[string]string
	fail    map[string]error
	calls   []string
}

func newFakeText() *fakeText {
	return &fakeText{
		answers: map[string]string{
			"title":   "Generated Title",
			"body":    "Four paragraphs about AI Art.",
			"tags":    "ai, art",
			"excerpt": "A short synopsis.",
		},
		fail: map[string]error{},
	}
}

func (f *fakeText) Complete(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)
	if err, ok := f.fail[prompt]; ok {
		return "", err
	}
	kind, _, _ := strings.Cut(prompt, ":")
	return f.answers[kind], nil
}

func (f *fakeText) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeImages) Generate(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []byte("png-bytes"), nil
}

type remotePost struct {
	Title      string
	Body       string
	Status     domain.PostStatus
	Excerpt    string
	Featured   int64
	Tags       []int64
	Categories []int64
}

type fakePublisher struct {
	mu          sync.Mutex
	nextPost    int64
	nextTag     int64
	nextMedia   int64
	posts       map[int64]*remotePost
	tags        []domain.RemoteTag
	perPage     int
	failCreate  map[string]error
	failUpdate  error
	failExcerpt error
	uploads     int
	updates     int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		nextPost:   42,
		nextTag:    99,
		nextMedia:  7,
		posts:      map[int64]*remotePost{},
		tags:       []domain.RemoteTag{{ID: 5, Name: "ai"}},
		perPage:    10,
		failCreate: map[string]error{},
	}
}

func (f *fakePublisher) CreatePost(_ context.Context, draft domain.PostDraft) (domain.RemotePost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failCreate[draft.Title]; ok {
		return domain.RemotePost{}, err
	}
	id := f.nextPost
	f.nextPost++
	f.posts[id] = &remotePost{Title: draft.Title, Body: draft.Body, Status: draft.Status}
	return domain.RemotePost{ID: id}, nil
}

func (f *fakePublisher) UpdatePost(_ context.Context, id int64, u domain.PostUpdate) (domain.RemotePost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return domain.RemotePost{}, f.failUpdate
	}
	if f.failExcerpt != nil && u.Excerpt != nil {
		return domain.RemotePost{}, f.failExcerpt
	}
	p, ok := f.posts[id]
	if !ok {
		return domain.RemotePost{}, fmt.Errorf("post %d not found", id)
	}
	f.updates++
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Body != nil {
		p.Body = *u.Body
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Excerpt != nil {
		p.Excerpt = *u.Excerpt
	}
	if u.FeaturedMedia != nil {
		p.Featured = *u.FeaturedMedia
	}
	if u.Tags != nil {
		p.Tags = append([]int64(nil), u.Tags...)
	}
	if u.Categories != nil {
		p.Categories = append([]int64(nil), u.Categories...)
	}
	return domain.RemotePost{ID: id, Link: fmt.Sprintf("https://blog.example.org/?p=%d", id)}, nil
}

func (f *fakePublisher) ListTags(_ context.Context, page, perPage int) (domain.TagPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := (len(f.tags) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}
	start := (page - 1) * perPage
	if start >= len(f.tags) {
		return domain.TagPage{TotalPages: total}, nil
	}
	end := min(start+perPage, len(f.tags))
	return domain.TagPage{Items: append([]domain.RemoteTag(nil), f.tags[start:end]...), TotalPages: total}, nil
}

func (f *fakePublisher) CreateTag(_ context.Context, name string) (domain.RemoteTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tag := domain.RemoteTag{ID: f.nextTag, Name: name}
	f.nextTag++
	f.tags = append(f.tags, tag)
	return tag, nil
}

func (f *fakePublisher) UploadMedia(context.Context, string, []byte) (domain.RemoteMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	id := f.nextMedia
	f.nextMedia++
	return domain.RemoteMedia{ID: id}, nil
}

func (f *fakePublisher) post(id int64) remotePost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.posts[id]
}

type fakeSource struct {
	topics []domain.Topic
	err    error
}

func (f fakeSource) ListRecentTopics(_ context.Context, limit int) ([]domain.Topic, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.topics) > limit {
		return f.topics[:limit], nil
	}
	return f.topics, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (f *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests = append(f.digests, digest)
	return nil
}

type lockedLock struct{}

func (lockedLock) Acquire(context.Context) (func(context.Context) error, error) {
	return nil, ports.ErrLocked
}

// failingStore breaks QueryEligible while delegating everything else.
type failingStore struct {
	ports.RecordStore
}

func (failingStore) QueryEligible(context.Context, domain.Predicate, int) ([]domain.Record, error) {
	return nil, errors.New("connection reset")
}

type harness struct {
	store     *storage.BadgerStore
	text      *fakeText
	images    *fakeImages
	imgStore  *images.Store
	publisher *fakePublisher
	notifier  *fakeNotifier
	runner    *StageRunner
	handlers  *StageHandlers
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		store:     store,
		text:      newFakeText(),
		images:    &fakeImages{},
		imgStore:  images.NewStore(t.TempDir(), nil, nil),
		publisher: newFakePublisher(),
		notifier:  &fakeNotifier{},
		now:       time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	h.runner = NewStageRunner(RunnerDeps{
		Store:    store,
		Owner:    "runner-a",
		LeaseTTL: time.Minute,
		Now:      func() time.Time { return h.now },
	})
	h.handlers = NewStageHandlers(StageDeps{
		Text:        h.text,
		Images:      h.images,
		ImageStore:  h.imgStore,
		Publisher:   h.publisher,
		Prompts:     testPrompts,
		CategoryIDs: []int64{373},
		Logger:      zap.NewNop(),
	})
	return h
}

func (h *harness) pipeline(source ports.TopicSource) *Pipeline {
	return NewPipeline(PipelineDeps{
		Source:      source,
		Store:       h.store,
		Runner:      h.runner,
		Handlers:    h.handlers,
		Notifier:    h.notifier,
		IngestLimit: 1,
		Now:         func() time.Time { return h.now },
	})
}

func (h *harness) insert(t *testing.T, topic string) domain.Record {
	t.Helper()
	rec, err := h.store.Insert(context.Background(), domain.NewRecord(topic))
	require.NoError(t, err)
	return rec
}

func (h *harness) get(t *testing.T, id int64) domain.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) runStage(t *testing.T, stage domain.Stage) StageReport {
	t.Helper()
	report, err := h.runner.RunStage(context.Background(), stage, h.handlers.For(stage))
	require.NoError(t, err)
	return report
}
