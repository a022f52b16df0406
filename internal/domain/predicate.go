package domain

// Predicate is a field-presence filter. Stores evaluate it natively (SQL
// conditions) or through Match. Published records never match.
type Predicate struct {
	Present []Field
	Absent  []Field
}

// Match evaluates the predicate against a record.
func (p Predicate) Match(r Record) bool {
	if r.Published() {
		return false
	}
	for _, f := range p.Present {
		if !r.Has(f) {
			return false
		}
	}
	for _, f := range p.Absent {
		if r.Has(f) {
			return false
		}
	}
	return true
}

var basePredicates = map[Stage]Predicate{
	StageTitleGen: {
		Present: []Field{FieldTopicName},
		Absent:  []Field{FieldTitle},
	},
	StagePublishDraft: {
		Present: []Field{FieldTitle},
		Absent:  []Field{FieldRemotePostID},
	},
	StageBodyGen: {
		Present: []Field{FieldTitle},
		Absent:  []Field{FieldBody},
	},
	StageSyncPost: {
		Present: []Field{FieldRemotePostID, FieldBody},
		Absent:  []Field{FieldRemotePostSynced},
	},
	StageTagGen: {
		Present: []Field{FieldBody},
		Absent:  []Field{FieldTags},
	},
	StageTagAttach: {
		Present: []Field{FieldTags, FieldRemotePostID},
		Absent:  []Field{FieldTagsAttached},
	},
	StageExcerptGen: {
		Present: []Field{FieldTitle},
		Absent:  []Field{FieldExcerpt},
	},
	StageExcerptPublish: {
		Present: []Field{FieldExcerpt, FieldRemotePostID},
		Absent:  []Field{FieldExcerptPublished},
	},
	StageImageAndPublish: {
		Present: []Field{FieldRemotePostID, FieldBody, FieldTags},
		Absent:  []Field{FieldStatus},
	},
}

// PredicateFor returns the eligibility predicate of a record-scanning stage:
// the fields it consumes must be present and the field it produces absent.
// Predicates may overlap, so a record stalled on one stage still reaches the
// later stages whose own inputs are ready. Ingest scans the source, not the
// store, and gets an empty predicate.
func PredicateFor(s Stage) Predicate {
	base, ok := basePredicates[s]
	if !ok {
		return Predicate{}
	}

	present := make([]Field, len(base.Present))
	copy(present, base.Present)
	absent := make([]Field, len(base.Absent))
	copy(absent, base.Absent)
	return Predicate{Present: present, Absent: absent}
}
