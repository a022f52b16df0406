package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateTopic  = errors.New("topic already tracked")
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
	ErrBackwardWrite   = errors.New("record field cannot move backwards")
	ErrLeaseHeld       = errors.New("record leased by another runner")
)

// PublishStatus is the terminal marker of a record.
type PublishStatus string

const (
	StatusNone      PublishStatus = ""
	StatusPublished PublishStatus = "published"
)

// Record tracks one discovered topic and the article artifacts derived from it.
// Zero values mean "not produced yet".
type Record struct {
	ID               int64         `json:"id"`
	TopicName        string        `json:"topic_name"`
	Title            string        `json:"title,omitempty"`
	Body             string        `json:"body,omitempty"`
	Excerpt          string        `json:"excerpt,omitempty"`
	ExcerptPublished bool          `json:"excerpt_published,omitempty"`
	Tags             string        `json:"tags,omitempty"`
	TagsAttached     bool          `json:"tags_attached,omitempty"`
	RemotePostID     int64         `json:"remote_post_id,omitempty"`
	RemotePostSynced bool          `json:"remote_post_synced,omitempty"`
	ImagePath        string        `json:"image_path,omitempty"`
	RemoteImageID    int64         `json:"remote_image_id,omitempty"`
	PublishURL       string        `json:"publish_url,omitempty"`
	Status           PublishStatus `json:"status,omitempty"`
	LastStage        Stage         `json:"last_stage,omitempty"`
	LastStageAt      time.Time     `json:"last_stage_at,omitzero"`

	// Version is bumped by every successful store update.
	Version        int64     `json:"version"`
	LeaseOwner     string    `json:"lease_owner,omitempty"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitzero"`
}

// NewRecord builds an unsaved record for a freshly discovered topic.
func NewRecord(topic string) Record {
	return Record{TopicName: topic}
}

// Published reports whether the record reached its terminal state.
func (r Record) Published() bool {
	return r.Status == StatusPublished
}

// Has reports whether the given lattice field is populated.
func (r Record) Has(f Field) bool {
	switch f {
	case FieldTopicName:
		return r.TopicName != ""
	case FieldTitle:
		return r.Title != ""
	case FieldBody:
		return r.Body != ""
	case FieldExcerpt:
		return r.Excerpt != ""
	case FieldExcerptPublished:
		return r.ExcerptPublished
	case FieldTags:
		return r.Tags != ""
	case FieldTagsAttached:
		return r.TagsAttached
	case FieldRemotePostID:
		return r.RemotePostID != 0
	case FieldRemotePostSynced:
		return r.RemotePostSynced
	case FieldImagePath:
		return r.ImagePath != ""
	case FieldRemoteImageID:
		return r.RemoteImageID != 0
	case FieldPublishURL:
		return r.PublishURL != ""
	case FieldStatus:
		return r.Status != StatusNone
	default:
		return false
	}
}

// Leased reports whether someone other than owner holds a live lease at now.
func (r Record) Leased(owner string, now time.Time) bool {
	return r.LeaseOwner != "" && r.LeaseOwner != owner && now.Before(r.LeaseExpiresAt)
}

// CheckForward verifies next only adds to prev: the topic never changes and no
// populated lattice field is cleared or rewritten.
func CheckForward(prev, next Record) error {
	if prev.TopicName != next.TopicName {
		return fmt.Errorf("%w: topic_name is immutable", ErrBackwardWrite)
	}
	for _, f := range LatticeFields {
		if !prev.Has(f) {
			continue
		}
		if !next.Has(f) {
			return fmt.Errorf("%w: %s cleared", ErrBackwardWrite, f)
		}
		if fieldValue(prev, f) != fieldValue(next, f) {
			return fmt.Errorf("%w: %s rewritten", ErrBackwardWrite, f)
		}
	}
	return nil
}

func fieldValue(r Record, f Field) any {
	switch f {
	case FieldTopicName:
		return r.TopicName
	case FieldTitle:
		return r.Title
	case FieldBody:
		return r.Body
	case FieldExcerpt:
		return r.Excerpt
	case FieldExcerptPublished:
		return r.ExcerptPublished
	case FieldTags:
		return r.Tags
	case FieldTagsAttached:
		return r.TagsAttached
	case FieldRemotePostID:
		return r.RemotePostID
	case FieldRemotePostSynced:
		return r.RemotePostSynced
	case FieldImagePath:
		return r.ImagePath
	case FieldRemoteImageID:
		return r.RemoteImageID
	case FieldPublishURL:
		return r.PublishURL
	case FieldStatus:
		return r.Status
	default:
		return nil
	}
}
