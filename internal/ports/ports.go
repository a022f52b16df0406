package ports

import (
	"context"
	"errors"
	"time"

	"TrendPress/internal/domain"
)

// ErrLocked is returned by RunLock when another invocation is active.
var ErrLocked = errors.New("pipeline run already in progress")

// TopicSource discovers the most recent topics upstream (subreddit listing, RSS...).
type TopicSource interface {
	ListRecentTopics(ctx context.Context, limit int) ([]domain.Topic, error)
}

// RecordStore persists pipeline records.
//
// Update is a compare-and-swap on Record.Version: it fails with
// domain.ErrVersionConflict when the stored version differs, and with
// domain.ErrBackwardWrite when a lattice field would be cleared or rewritten.
// On success it returns the record with its new version.
type RecordStore interface {
	Insert(ctx context.Context, record domain.Record) (domain.Record, error)
	Get(ctx context.Context, id int64) (domain.Record, error)
	List(ctx context.Context) ([]domain.Record, error)
	QueryEligible(ctx context.Context, predicate domain.Predicate, limit int) ([]domain.Record, error)
	Update(ctx context.Context, record domain.Record) (domain.Record, error)
	Close() error
}

// TextGenerator is the generative text service.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ImageGenerator synthesizes an illustration and returns encoded PNG bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStore keeps generated images at a deterministic location per remote post.
type ImageStore interface {
	Path(postID int64) string
	Exists(ctx context.Context, postID int64) (bool, error)
	Save(ctx context.Context, postID int64, data []byte) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// Publisher is the CMS REST surface consumed by the pipeline.
type Publisher interface {
	CreatePost(ctx context.Context, draft domain.PostDraft) (domain.RemotePost, error)
	UpdatePost(ctx context.Context, id int64, update domain.PostUpdate) (domain.RemotePost, error)
	ListTags(ctx context.Context, page, perPage int) (domain.TagPage, error)
	CreateTag(ctx context.Context, name string) (domain.RemoteTag, error)
	UploadMedia(ctx context.Context, filename string, data []byte) (domain.RemoteMedia, error)
}

// Notifier streams digests of published articles to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// RunLock makes a whole pipeline invocation exclusive across processes.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
