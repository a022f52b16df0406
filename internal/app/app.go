package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/infrastructure/httpapi"
	"TrendPress/internal/infrastructure/images"
	"TrendPress/internal/infrastructure/llm"
	"TrendPress/internal/infrastructure/lock"
	"TrendPress/internal/infrastructure/ml"
	"TrendPress/internal/infrastructure/parser"
	"TrendPress/internal/infrastructure/scheduler"
	"TrendPress/internal/infrastructure/storage"
	"TrendPress/internal/infrastructure/telegram"
	"TrendPress/internal/infrastructure/wordpress"
	"TrendPress/internal/logging"
	"TrendPress/internal/ports"
	"TrendPress/internal/scanner"
	"TrendPress/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *zap.Logger
	store    ports.RecordStore
	redis    *redis.Client
	pipeline *usecase.Pipeline
}

// New opens the record store and builds every adapter named by cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *zap.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := openStore(ctx, cfg.Database, baseLogger)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, store: store}

	runLock, err := a.runLock(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	imageStore, err := newImageStore(ctx, cfg.ImageGen, baseLogger.With(zap.String("component", "images")))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRedditScanner(nil))
	registry.Register(parser.NewRSSScanner(nil))
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With(zap.String("component", "source")))

	publisher := wordpress.NewClient(cfg.WordPress)
	handlers := usecase.NewStageHandlers(usecase.StageDeps{
		Text:        newTextGenerator(cfg.TextGen),
		Images:      ml.NewImageClient(cfg.ImageGen),
		ImageStore:  imageStore,
		Publisher:   publisher,
		Tags:        usecase.NewTagReconciler(publisher, cfg.WordPress.TagsPerPage, baseLogger.With(zap.String("component", "tags"))),
		Prompts:     cfg.TextGen.Prompts,
		CategoryIDs: cfg.WordPress.CategoryIDs,
		Logger:      baseLogger.With(zap.String("component", "stages")),
	})

	runner := usecase.NewStageRunner(usecase.RunnerDeps{
		Store:      store,
		Logger:     baseLogger.With(zap.String("component", "runner")),
		LeaseTTL:   cfg.Runner.LeaseTTL,
		BatchLimit: cfg.Runner.BatchLimit,
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:      source,
		Store:       store,
		Runner:      runner,
		Handlers:    handlers,
		Lock:        runLock,
		Notifier:    newNotifier(cfg.Notifications.Telegram),
		IngestLimit: cfg.Ingest.Limit,
		Logger:      baseLogger.With(zap.String("component", "pipeline")),
	})
	return a, nil
}

// RunOnce performs a single pipeline invocation.
func (a *Application) RunOnce(ctx context.Context) (usecase.RunReport, error) {
	return a.pipeline.Run(ctx)
}

// Serve runs the pipeline on the configured cron schedule and exposes the
// status API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With(zap.String("component", "scheduler")))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := httpapi.NewServer(a.store, a.logger.With(zap.String("component", "httpapi")))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(a.cfg.Server.Addr)
	}()

	a.logger.Info("serving",
		zap.String("cron", a.cfg.Scheduler.CronExpression),
		zap.String("timezone", a.cfg.Scheduler.Location().String()),
		zap.String("addr", a.cfg.Server.Addr),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("status api: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		a.logger.Warn("stop status api", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("stop scheduler", zap.Error(err))
	}
	return serveErr
}

// ReadStatus lists every tracked record without building the pipeline. The
// store is opened read-only; when that fails (a running `serve` holds the
// badger directory) the records are read from the status API instead.
func ReadStatus(ctx context.Context, cfg config.Config, log *zap.Logger) ([]domain.Record, error) {
	if log == nil {
		log = zap.NewNop()
	}

	records, storeErr := readStore(ctx, cfg.Database, log)
	if storeErr == nil {
		return records, nil
	}
	if cfg.Server.Addr == "" {
		return nil, storeErr
	}

	log.Debug("store unavailable, asking status api", zap.Error(storeErr))
	client, err := httpapi.NewClient(cfg.Server.Addr)
	if err != nil {
		return nil, errors.Join(storeErr, err)
	}
	views, err := client.ListRecords(ctx)
	if err != nil {
		return nil, errors.Join(storeErr, err)
	}

	records = make([]domain.Record, 0, len(views))
	for _, v := range views {
		records = append(records, v.Record)
	}
	return records, nil
}

func readStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) ([]domain.Record, error) {
	var (
		store ports.RecordStore
		err   error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err = storage.OpenPostgresReadOnly(ctx, cfg.DSN)
	default:
		store, err = storage.OpenBadgerReadOnly(cfg.Path, log)
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.List(ctx)
}

// Close releases the store and the Redis connection.
func (a *Application) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func (a *Application) runLock(ctx context.Context) (ports.RunLock, error) {
	if a.cfg.Lock.RedisAddr == "" {
		return lock.Noop{}, nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.Password,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", a.cfg.Lock.RedisAddr, err)
	}
	return lock.NewRedisLock(a.redis, a.cfg.Lock.Key, a.cfg.Lock.TTL), nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (ports.RecordStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.DSN)
	default:
		return storage.NewBadgerStore(cfg.Path, log)
	}
}

func newImageStore(ctx context.Context, cfg config.ImageGenConfig, log *zap.Logger) (*images.Store, error) {
	if cfg.S3.Bucket == "" {
		return images.NewStore(cfg.Dir, nil, log), nil
	}

	mirror, err := images.NewS3Mirror(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return images.NewStore(cfg.Dir, mirror, log), nil
}

func newTextGenerator(cfg config.TextGenConfig) ports.TextGenerator {
	if cfg.Provider == config.ProviderCohere {
		return llm.NewCohereClient(cfg)
	}
	return llm.NewChatGPTClient(cfg)
}

func newNotifier(cfg config.TelegramConfig) ports.Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return telegram.Noop{}
	}
	return telegram.NewNotifier(cfg.BotToken, cfg.ChatID)
}
