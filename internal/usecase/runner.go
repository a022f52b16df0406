package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

// Checkpoint persists an intermediate write of a multi-step stage and
// returns the stored record with its new version.
type Checkpoint func(ctx context.Context, record domain.Record) (domain.Record, error)

// Handler performs one stage on one leased record.
type Handler func(ctx context.Context, record domain.Record, save Checkpoint) Outcome

// StageReport summarizes one stage pass.
type StageReport struct {
	Stage    domain.Stage
	Advanced []domain.Record
	Skipped  int
}

// RunnerDeps configures a StageRunner.
type RunnerDeps struct {
	Store      ports.RecordStore
	Logger     *zap.Logger
	Owner      string
	LeaseTTL   time.Duration
	BatchLimit int
	Now        func() time.Time
}

// StageRunner applies a handler to every record eligible for a stage.
// Each record is leased before any side effect, so concurrent runners never
// process the same record at the same time.
type StageRunner struct {
	store      ports.RecordStore
	logger     *zap.Logger
	owner      string
	leaseTTL   time.Duration
	batchLimit int
	now        func() time.Time
}

// NewStageRunner fills defaults: a random owner id, a 10 minute lease and the wall clock.
func NewStageRunner(deps RunnerDeps) *StageRunner {
	r := &StageRunner{
		store:      deps.Store,
		logger:     deps.Logger,
		owner:      deps.Owner,
		leaseTTL:   deps.LeaseTTL,
		batchLimit: deps.BatchLimit,
		now:        deps.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.owner == "" {
		r.owner = uuid.NewString()
	}
	if r.leaseTTL <= 0 {
		r.leaseTTL = 10 * time.Minute
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Owner identifies this runner in record leases.
func (r *StageRunner) Owner() string {
	return r.owner
}

// RunStage queries the store for eligible records and processes each one
// independently. Only a Fatal outcome stops the pass.
func (r *StageRunner) RunStage(ctx context.Context, stage domain.Stage, handler Handler) (StageReport, error) {
	report := StageReport{Stage: stage}

	records, err := r.store.QueryEligible(ctx, domain.PredicateFor(stage), r.batchLimit)
	if err != nil {
		return report, fmt.Errorf("query eligible for %s: %w", stage, err)
	}
	if len(records) > 0 {
		r.logger.Debug("stage pass", zap.String("stage", string(stage)), zap.Int("eligible", len(records)))
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, saved := r.process(ctx, stage, record, handler)
		r.log(stage, record, outcome)

		switch outcome.Kind {
		case OutcomeAdvanced:
			report.Advanced = append(report.Advanced, saved)
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFatal:
			return report, fmt.Errorf("stage %s record %d: %w", stage, record.ID, outcome.Err)
		}
	}

	return report, nil
}

func (r *StageRunner) process(ctx context.Context, stage domain.Stage, record domain.Record, handler Handler) (Outcome, domain.Record) {
	now := r.now()
	if record.Leased(r.owner, now) {
		return Skipped("leased by "+record.LeaseOwner, domain.ErrLeaseHeld), record
	}

	record.LeaseOwner = r.owner
	record.LeaseExpiresAt = now.Add(r.leaseTTL)
	current, err := r.store.Update(ctx, record)
	if err != nil {
		return storeOutcome("lease claim failed", err), record
	}

	save := func(ctx context.Context, next domain.Record) (domain.Record, error) {
		next.Version = current.Version
		next.LeaseOwner = r.owner
		next.LeaseExpiresAt = current.LeaseExpiresAt
		stored, err := r.store.Update(ctx, next)
		if err != nil {
			return next, err
		}
		current = stored
		return stored, nil
	}

	outcome := handler(ctx, current, save)
	if outcome.Kind != OutcomeAdvanced {
		r.release(ctx, current)
		return outcome, current
	}

	next := outcome.Record
	next.Version = current.Version
	next.LastStage = stage
	next.LastStageAt = r.now()
	next.LeaseOwner = ""
	next.LeaseExpiresAt = time.Time{}

	stored, err := r.store.Update(ctx, next)
	if err != nil {
		r.release(ctx, current)
		return storeOutcome("persist stage result failed", err), current
	}
	outcome.Record = stored
	return outcome, stored
}

// release drops the lease; on failure it simply expires.
func (r *StageRunner) release(ctx context.Context, record domain.Record) {
	record.LeaseOwner = ""
	record.LeaseExpiresAt = time.Time{}
	if _, err := r.store.Update(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Warn("release lease", zap.Int64("record_id", record.ID), zap.Error(err))
	}
}

func (r *StageRunner) log(stage domain.Stage, record domain.Record, outcome Outcome) {
	fields := []zap.Field{
		zap.Int64("record_id", record.ID),
		zap.String("topic", record.TopicName),
		zap.String("stage", string(stage)),
		zap.Stringer("outcome", outcome.Kind),
	}

	switch outcome.Kind {
	case OutcomeAdvanced:
		names := make([]string, 0, len(outcome.Fields))
		for _, f := range outcome.Fields {
			names = append(names, string(f))
		}
		r.logger.Info("record advanced", append(fields, zap.Strings("fields", names))...)
	case OutcomeSkipped:
		r.logger.Warn("record skipped", append(fields, zap.String("reason", outcome.Reason), zap.Error(outcome.Err))...)
	case OutcomeFatal:
		r.logger.Error("stage aborted", append(fields, zap.Error(outcome.Err))...)
	}
}
