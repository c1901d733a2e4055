// Package app initializes and holds the long-lived services of the progress
// server, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/clock/system"
	"github.com/JakeFAU/realtime-progress/internal/config"
	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/realtime-progress/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/realtime-progress/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-progress/internal/storage/gcs"
	"github.com/JakeFAU/realtime-progress/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-progress/internal/storage/memory"
	"github.com/JakeFAU/realtime-progress/internal/storage/postgres"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

// App holds the shared services of the server: the tracker, its sink hub and
// the backends the sinks write to.
type App struct {
	Tracker   *progress.Tracker
	Hub       *progress.Hub
	Repo      store.ReportRepository
	Publisher store.Publisher
	Snapshots store.BlobStore

	logger  *zap.Logger
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	repo       store.ReportRepository
	publisher  store.Publisher
	snapshots  store.BlobStore
	clock      progress.Clock
}

// WithRegisterer registers the progress collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRepository overrides the configured report repository.
func WithRepository(repo store.ReportRepository) Option {
	return func(o *options) { o.repo = repo }
}

// WithPublisher overrides the configured Pub/Sub publisher.
func WithPublisher(pub store.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// WithSnapshotStore overrides the configured snapshot blob store.
func WithSnapshotStore(blobs store.BlobStore) Option {
	return func(o *options) { o.snapshots = blobs }
}

// WithClock overrides the wall clock used to timestamp reports.
func WithClock(clock progress.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New builds every service described by cfg. It fails fast if a configured
// backend cannot be reached. The tracker is seeded with the last persisted
// report so a restart keeps the last known state.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer, clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.closeBackends()
		}
	}()

	repo, err := a.buildRepository(ctx, cfg.Storage, o.repo)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	sinkList := []progress.Sink{
		sinks.NewLogSink(logger.Named("sink.log")),
		promSink,
		sinks.NewStoreSink(repo, logger.Named("sink.store")),
	}

	pub, err := a.buildPublisher(ctx, cfg.PubSub, o.publisher)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		a.Publisher = pub
		sinkList = append(sinkList, sinks.NewPublishSink(pub, cfg.PubSub.TopicName, logger.Named("sink.publish")))
	}

	blobs, err := a.buildSnapshots(ctx, cfg.Snapshot, o.snapshots)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		a.Snapshots = blobs
		sinkList = append(sinkList, sinks.NewSnapshotSink(blobs, cfg.Snapshot.Prefix, logger.Named("sink.snapshot")))
	}

	a.Hub = progress.NewHub(progress.HubConfig{
		FlushInterval: cfg.Hub.FlushInterval,
		SinkTimeout:   cfg.Hub.SinkTimeout,
		Logger:        logger.Named("hub"),
	}, sinkList...)
	a.Tracker = progress.NewTracker(o.clock, a.Hub, logger.Named("tracker"))

	a.seed(ctx)
	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("pubsub", pubsubBackend(cfg.PubSub, a.Publisher)),
		zap.String("snapshot", cfg.Snapshot.Backend),
		zap.Int("sinks", len(sinkList)),
	)
	ok = true
	return a, nil
}

func (a *App) buildRepository(ctx context.Context, cfg config.StorageConfig, override store.ReportRepository) (store.ReportRepository, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Backend {
	case "", config.StorageMemory:
		a.logger.Info("using in-memory report store; reports are lost on restart")
		return memorystorage.NewReportStore(), nil
	case config.StoragePostgres:
		repo, err := postgres.NewReportStore(ctx, postgres.ReportStoreConfig{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			Key:      cfg.Key,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres report store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			repo.Close()
			return nil
		})
		a.logger.Info("using postgres report store", zap.String("table", cfg.Table), zap.String("key", cfg.Key))
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg config.PubSubConfig, override store.Publisher) (store.Publisher, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Backend {
	case "", config.PubSubNone:
		return nil, nil
	case config.PubSubMemory:
		a.logger.Info("publishing reports to in-process log", zap.String("topic", cfg.TopicName), zap.Int("retain", cfg.Retain))
		return memorypublisher.New(cfg.Retain, a.logger.Named("publisher.memory")), nil
	case config.PubSubGCP:
	default:
		return nil, fmt.Errorf("unknown pubsub backend: %s", cfg.Backend)
	}
	pub, client, err := pubsubpublisher.Dial(ctx, cfg.ProjectID, cfg.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pub.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	})
	a.logger.Info("publishing reports to pubsub", zap.String("topic", cfg.TopicName))
	return pub, nil
}

func (a *App) buildSnapshots(ctx context.Context, cfg config.SnapshotConfig, override store.BlobStore) (store.BlobStore, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Backend {
	case "", config.SnapshotNone:
		return nil, nil
	case config.SnapshotMemory:
		return memorystorage.NewBlobStore(), nil
	case config.SnapshotLocal:
		blobs, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return blobs, nil
	case config.SnapshotGCS:
		blobs, client, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Bucket, CacheControl: cfg.CacheControl})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			if err := client.Close(); err != nil {
				return fmt.Errorf("close storage client: %w", err)
			}
			return nil
		})
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s", cfg.Backend)
	}
}

func (a *App) seed(ctx context.Context) {
	last, err := a.Repo.LatestReport(ctx)
	switch {
	case err == nil:
		a.Tracker.Seed(last)
		a.logger.Info("restored last report",
			zap.Float64("progress", last.Progress),
			zap.String("status", last.Status),
			zap.Uint64("seq", last.Seq),
		)
	case errors.Is(err, store.ErrNotFound):
	default:
		a.logger.Warn("restore last report failed; starting empty", zap.Error(err))
	}
}

// Ready reports whether the report repository is reachable.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.Repo.LatestReport(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("report repository: %w", err)
	}
	return nil
}

// Close flushes the hub into the sinks and then releases backend clients.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close hub: %w", err))
		}
	}
	if err := a.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeBackends() error {
	var errs []error
	for _, closeFn := range slices.Backward(a.closers) {
		if err := closeFn(); err != nil {
			a.logger.Warn("error closing backend", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func pubsubBackend(cfg config.PubSubConfig, pub store.Publisher) string {
	switch {
	case pub == nil:
		return config.PubSubNone
	case !cfg.Enabled():
		return "override"
	default:
		return cfg.Backend
	}
}
