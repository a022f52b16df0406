package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.TopicSource
	Store       ports.RecordStore
	Runner      *StageRunner
	Handlers    *StageHandlers
	Lock        ports.RunLock
	Notifier    ports.Notifier
	IngestLimit int
	Logger      *zap.Logger
	Now         func() time.Time
}

// Pipeline runs ingestion followed by every record stage in order.
type Pipeline struct {
	source      ports.TopicSource
	store       ports.RecordStore
	runner      *StageRunner
	handlers    *StageHandlers
	lock        ports.RunLock
	notifier    ports.Notifier
	ingestLimit int
	logger      *zap.Logger
	now         func() time.Time
}

// RunReport summarizes one invocation.
type RunReport struct {
	Ingested  int
	Stages    []StageReport
	Published []domain.Record
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:      deps.Source,
		store:       deps.Store,
		runner:      deps.Runner,
		handlers:    deps.Handlers,
		lock:        deps.Lock,
		notifier:    deps.Notifier,
		ingestLimit: deps.IngestLimit,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.ingestLimit <= 0 {
		p.ingestLimit = 1
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run executes one invocation. It returns ports.ErrLocked when another
// invocation holds the run lock, and an error when ingestion or the store fails.
// Per-record collaborator failures are logged and left for the next run.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx)
		if err != nil {
			return report, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("release run lock", zap.Error(err))
			}
		}()
	}

	ingested, err := p.Ingest(ctx)
	if err != nil {
		return report, err
	}
	report.Ingested = ingested

	for _, stage := range domain.Stages[1:] {
		stageReport, err := p.runner.RunStage(ctx, stage, p.handlers.For(stage))
		report.Stages = append(report.Stages, stageReport)
		if stage == domain.StageImageAndPublish {
			report.Published = append(report.Published, stageReport.Advanced...)
		}
		if err != nil {
			return report, err
		}
	}

	p.logger.Info("pipeline run finished",
		zap.Int("ingested", report.Ingested),
		zap.Int("published", len(report.Published)),
	)
	p.notify(ctx, report.Published)
	return report, nil
}

// Ingest inserts one record per new topic. Known topics are skipped.
func (p *Pipeline) Ingest(ctx context.Context) (int, error) {
	if p.source == nil {
		return 0, nil
	}

	topics, err := p.source.ListRecentTopics(ctx, p.ingestLimit)
	if err != nil {
		return 0, fmt.Errorf("list recent topics: %w", err)
	}

	inserted := 0
	for _, topic := range topics {
		name := strings.TrimSpace(topic.Text)
		if name == "" {
			continue
		}

		record := domain.NewRecord(name)
		record.LastStage = domain.StageIngest
		record.LastStageAt = p.now()

		saved, err := p.store.Insert(ctx, record)
		if errors.Is(err, domain.ErrDuplicateTopic) {
			p.logger.Debug("topic already tracked", zap.String("topic", name))
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("insert topic %q: %w", name, err)
		}

		inserted++
		p.logger.Info("topic ingested",
			zap.Int64("record_id", saved.ID),
			zap.String("topic", name),
			zap.String("source", topic.Source),
		)
	}
	return inserted, nil
}

func (p *Pipeline) notify(ctx context.Context, published []domain.Record) {
	if p.notifier == nil || len(published) == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(published)); err != nil {
		p.logger.Warn("publish digest", zap.Error(err))
	}
}

func buildDigestMessage(records []domain.Record) string {
	var b strings.Builder
	b.WriteString("*Published articles*\n\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- %s\n%s\n\n", stripQuotes(r.Title), r.PublishURL)
	}
	return b.String()
}
