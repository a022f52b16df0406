package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

const draftPlaceholder = "This is a test article."

// StageDeps wires the collaborators used by the stage handlers.
type StageDeps struct {
	Text        ports.TextGenerator
	Images      ports.ImageGenerator
	ImageStore  ports.ImageStore
	Publisher   ports.Publisher
	Tags        *TagReconciler
	Prompts     config.PromptsConfig
	CategoryIDs []int64
	Logger      *zap.Logger
}

// StageHandlers holds one Handler per record-scanning stage.
type StageHandlers struct {
	text        ports.TextGenerator
	images      ports.ImageGenerator
	imageStore  ports.ImageStore
	publisher   ports.Publisher
	tags        *TagReconciler
	prompts     config.PromptsConfig
	categoryIDs []int64
	logger      *zap.Logger
}

// NewStageHandlers constructs the handlers.
func NewStageHandlers(deps StageDeps) *StageHandlers {
	h := &StageHandlers{
		text:        deps.Text,
		images:      deps.Images,
		imageStore:  deps.ImageStore,
		publisher:   deps.Publisher,
		tags:        deps.Tags,
		prompts:     deps.Prompts,
		categoryIDs: deps.CategoryIDs,
		logger:      deps.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.tags == nil {
		h.tags = NewTagReconciler(deps.Publisher, 0, h.logger)
	}
	return h
}

// For returns the handler of stage, or nil for Ingest and unknown stages.
func (h *StageHandlers) For(stage domain.Stage) Handler {
	switch stage {
	case domain.StageTitleGen:
		return h.titleGen
	case domain.StagePublishDraft:
		return h.publishDraft
	case domain.StageBodyGen:
		return h.bodyGen
	case domain.StageSyncPost:
		return h.syncPost
	case domain.StageTagGen:
		return h.tagGen
	case domain.StageTagAttach:
		return h.tagAttach
	case domain.StageExcerptGen:
		return h.excerptGen
	case domain.StageExcerptPublish:
		return h.excerptPublish
	case domain.StageImageAndPublish:
		return h.imageAndPublish
	default:
		return nil
	}
}

func (h *StageHandlers) generate(ctx context.Context, prompt config.PromptConfig, subject string) (string, Outcome, bool) {
	text, err := h.text.Complete(ctx, prompt.Render(subject), prompt.MaxTokens)
	if err != nil {
		return "", Skipped("text generation failed", err), false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", Skipped("empty generation", nil), false
	}
	return text, Outcome{}, true
}

func (h *StageHandlers) titleGen(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	title, skip, ok := h.generate(ctx, h.prompts.Title, r.TopicName)
	if !ok {
		return skip
	}
	r.Title = title
	return Advanced(r, domain.FieldTitle)
}

func (h *StageHandlers) publishDraft(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	post, err := h.publisher.CreatePost(ctx, domain.PostDraft{
		Title:  stripQuotes(r.Title),
		Body:   draftPlaceholder,
		Status: domain.PostStatusDraft,
	})
	if err != nil {
		return Skipped("create draft failed", err)
	}
	r.RemotePostID = post.ID
	return Advanced(r, domain.FieldRemotePostID)
}

func (h *StageHandlers) bodyGen(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	body, skip, ok := h.generate(ctx, h.prompts.Body, r.Title)
	if !ok {
		return skip
	}
	r.Body = body
	return Advanced(r, domain.FieldBody)
}

func (h *StageHandlers) syncPost(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	title := stripQuotes(r.Title)
	body := r.Body
	status := domain.PostStatusDraft
	update := domain.PostUpdate{Title: &title, Body: &body, Status: &status}
	if len(h.categoryIDs) > 0 {
		update.Categories = h.categoryIDs
	}

	if _, err := h.publisher.UpdatePost(ctx, r.RemotePostID, update); err != nil {
		return Skipped("sync post failed", err)
	}
	r.RemotePostSynced = true
	return Advanced(r, domain.FieldRemotePostSynced)
}

func (h *StageHandlers) tagGen(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	tags, skip, ok := h.generate(ctx, h.prompts.Tags, r.Title)
	if !ok {
		return skip
	}
	r.Tags = tags
	return Advanced(r, domain.FieldTags)
}

func (h *StageHandlers) tagAttach(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	ids, err := h.tags.Resolve(ctx, ParseTags(r.Tags))
	if err != nil {
		return Skipped("tag reconciliation failed", err)
	}

	if _, err := h.publisher.UpdatePost(ctx, r.RemotePostID, domain.PostUpdate{Tags: ids}); err != nil {
		return Skipped("attach tags failed", err)
	}
	r.TagsAttached = true
	return Advanced(r, domain.FieldTagsAttached)
}

func (h *StageHandlers) excerptGen(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	excerpt, skip, ok := h.generate(ctx, h.prompts.Excerpt, r.Title)
	if !ok {
		return skip
	}
	r.Excerpt = excerpt
	return Advanced(r, domain.FieldExcerpt)
}

func (h *StageHandlers) excerptPublish(ctx context.Context, r domain.Record, _ Checkpoint) Outcome {
	excerpt := r.Excerpt
	if _, err := h.publisher.UpdatePost(ctx, r.RemotePostID, domain.PostUpdate{Excerpt: &excerpt}); err != nil {
		return Skipped("publish excerpt failed", err)
	}
	r.ExcerptPublished = true
	return Advanced(r, domain.FieldExcerptPublished)
}

// imageAndPublish runs three steps, each saved before the next starts:
// image file, media upload, final publish. A rerun resumes after the last
// saved step and never regenerates an image that is already on disk.
func (h *StageHandlers) imageAndPublish(ctx context.Context, r domain.Record, save Checkpoint) Outcome {
	var err error

	if r.RemoteImageID == 0 {
		path, genErr := h.ensureImage(ctx, r)
		if genErr != nil {
			return Skipped("image generation failed", genErr)
		}
		if r.ImagePath == "" {
			r.ImagePath = path
			if r, err = save(ctx, r); err != nil {
				return storeOutcome("save image path failed", err)
			}
		}

		data, err := h.imageStore.Load(ctx, path)
		if err != nil {
			return Skipped("read image failed", err)
		}
		media, err := h.publisher.UploadMedia(ctx, filepath.Base(path), data)
		if err != nil {
			return Skipped("media upload failed", err)
		}
		r.RemoteImageID = media.ID
		if r, err = save(ctx, r); err != nil {
			return storeOutcome("save media id failed", err)
		}
	}

	media := r.RemoteImageID
	status := domain.PostStatusPublish
	post, err := h.publisher.UpdatePost(ctx, r.RemotePostID, domain.PostUpdate{FeaturedMedia: &media, Status: &status})
	if err != nil {
		return Skipped("publish post failed", err)
	}
	if post.Link == "" {
		return Skipped("publish response carried no link", nil)
	}

	r.PublishURL = post.Link
	r.Status = domain.StatusPublished
	return Advanced(r, domain.FieldImagePath, domain.FieldRemoteImageID, domain.FieldPublishURL, domain.FieldStatus)
}

// ensureImage returns the deterministic image path, generating the file only when absent.
func (h *StageHandlers) ensureImage(ctx context.Context, r domain.Record) (string, error) {
	exists, err := h.imageStore.Exists(ctx, r.RemotePostID)
	if err != nil {
		return "", err
	}
	if exists {
		return h.imageStore.Path(r.RemotePostID), nil
	}

	img, err := h.images.Generate(ctx, h.prompts.Image.Render(r.Title))
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	path, err := h.imageStore.Save(ctx, r.RemotePostID, img)
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	h.logger.Info("image generated", zap.Int64("record_id", r.ID), zap.String("path", path))
	return path, nil
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
