package domain

// Field names a lattice column of a Record. Values match the persisted column names.
type Field string

const (
	FieldTopicName        Field = "topic_name"
	FieldTitle            Field = "title"
	FieldBody             Field = "body"
	FieldExcerpt          Field = "excerpt"
	FieldExcerptPublished Field = "excerpt_published"
	FieldTags             Field = "tags"
	FieldTagsAttached     Field = "tags_attached"
	FieldRemotePostID     Field = "remote_post_id"
	FieldRemotePostSynced Field = "remote_post_synced"
	FieldImagePath        Field = "image_path"
	FieldRemoteImageID    Field = "remote_image_id"
	FieldPublishURL       Field = "publish_url"
	FieldStatus           Field = "status"
)

// LatticeFields lists every forward-only field.
var LatticeFields = []Field{
	FieldTopicName,
	FieldTitle,
	FieldRemotePostID,
	FieldBody,
	FieldRemotePostSynced,
	FieldTags,
	FieldTagsAttached,
	FieldExcerpt,
	FieldExcerptPublished,
	FieldImagePath,
	FieldRemoteImageID,
	FieldPublishURL,
	FieldStatus,
}

// IsBool reports whether the field is stored as a flag rather than a nullable value.
func (f Field) IsBool() bool {
	switch f {
	case FieldExcerptPublished, FieldTagsAttached, FieldRemotePostSynced:
		return true
	default:
		return false
	}
}

// Stage is one unit of pipeline work advancing a specific field group.
type Stage string

const (
	StageIngest          Stage = "ingest"
	StageTitleGen        Stage = "title_gen"
	StagePublishDraft    Stage = "publish_draft"
	StageBodyGen         Stage = "body_gen"
	StageSyncPost        Stage = "sync_post"
	StageTagGen          Stage = "tag_gen"
	StageTagAttach       Stage = "tag_attach"
	StageExcerptGen      Stage = "excerpt_gen"
	StageExcerptPublish  Stage = "excerpt_publish"
	StageImageAndPublish Stage = "image_and_publish"

	// StagePublished is diagnostic only: no stage runs on such records.
	StagePublished Stage = "published"
)

// Stages is the fixed execution order of one pipeline invocation.
var Stages = []Stage{
	StageIngest,
	StageTitleGen,
	StagePublishDraft,
	StageBodyGen,
	StageSyncPost,
	StageTagGen,
	StageTagAttach,
	StageExcerptGen,
	StageExcerptPublish,
	StageImageAndPublish,
}

// Index returns the position of s in Stages, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// NextStage derives the stage a record is waiting on from its field presence:
// the first stage in pipeline order whose predicate holds. It is never
// persisted; the fields stay the source of truth.
func NextStage(r Record) Stage {
	if r.Published() {
		return StagePublished
	}
	if !r.Has(FieldTopicName) {
		return StageIngest
	}
	for _, s := range Stages[1:] {
		if PredicateFor(s).Match(r) {
			return s
		}
	}
	return StagePublished
}
