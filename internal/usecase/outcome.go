package usecase

import (
	"errors"

	"TrendPress/internal/domain"
)

// OutcomeKind classifies the result of one stage on one record.
type OutcomeKind int

const (
	// OutcomeAdvanced: the stage produced its fields; the runner persists them.
	OutcomeAdvanced OutcomeKind = iota
	// OutcomeSkipped: nothing advanced; the record is retried on the next run.
	OutcomeSkipped
	// OutcomeFatal: the store is unusable; the invocation stops.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is returned by every stage handler.
type Outcome struct {
	Kind   OutcomeKind
	Record domain.Record
	Fields []domain.Field
	Reason string
	Err    error
}

// Advanced carries the mutated record and the fields the stage set.
func Advanced(record domain.Record, fields ...domain.Field) Outcome {
	return Outcome{Kind: OutcomeAdvanced, Record: record, Fields: fields}
}

// Skipped leaves the record untouched.
func Skipped(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason, Err: err}
}

// Fatal aborts the invocation.
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: "store failure", Err: err}
}

// storeOutcome maps a failed store write. Conflicts are a per-record skip;
// anything else means the store itself failed.
func storeOutcome(reason string, err error) Outcome {
	switch {
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrBackwardWrite),
		errors.Is(err, domain.ErrLeaseHeld),
		errors.Is(err, domain.ErrNotFound):
		return Skipped(reason, err)
	default:
		return Fatal(err)
	}
}
