package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sendqueue/internal/config"
	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/kursadbilgin/sendqueue/internal/handler"
	"github.com/kursadbilgin/sendqueue/internal/infra/postgresql"
	"github.com/kursadbilgin/sendqueue/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/sendqueue/internal/infra/redis"
	"github.com/kursadbilgin/sendqueue/internal/observability"
	"github.com/kursadbilgin/sendqueue/internal/queue"
	"github.com/kursadbilgin/sendqueue/internal/repository"
	"github.com/kursadbilgin/sendqueue/internal/service"
	"github.com/kursadbilgin/sendqueue/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("sendqueue worker stopped", zap.Error(err))
	}
	logger.Info("sendqueue worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	locker, err := infraredis.NewRedisLocker(rdb)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	sinks := events.Multi{events.NewLogSink(logger), metrics}
	checks := map[string]handler.Check{
		"postgres": handler.PostgresCheck(sqlDB),
		"redis":    handler.RedisCheck(rdb),
	}

	if cfg.RabbitMQURL != "" {
		broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher := queue.NewRabbitMQPublisher(broker)
		defer publisher.Close()

		sinks = append(sinks, queue.NewEventSink(publisher, logger))
		checks["rabbitmq"] = broker.Check
	} else {
		logger.Info("RABBITMQ_URL not set, event publishing disabled")
	}

	materializer, err := service.NewQueueMaterializer(
		repository.NewGormQueueTableRepo(db),
		repository.NewGormSubscriberRepo(db),
		repository.NewGormDeliveryLogRepo(db),
		service.QueueConfig{
			PopulateBatchSize: cfg.QueuePopulateBatchSize,
			GiveupBatchSize:   cfg.QueueGiveupBatchSize,
			ResolveChunkSize:  cfg.QueueResolveChunkSize,
		},
		sinks,
		logger,
	)
	if err != nil {
		return err
	}

	servers := repository.NewGormDeliveryServerRepo(db)
	scheduler, err := service.NewWarmupScheduler(
		servers,
		repository.NewGormWarmupPlanRepo(db),
		repository.NewGormUsageLogRepo(db),
		sinks,
		logger,
	)
	if err != nil {
		return err
	}

	runnerCfg := service.RunnerConfig{
		Interval:    cfg.TickInterval(),
		RunTimeout:  cfg.RunTimeout(),
		LockTTL:     cfg.LockTTL(),
		Concurrency: cfg.WorkerConcurrency,
		Limit:       cfg.ScanLimit,
	}

	queueRunner, err := service.NewQueueRunner(repository.NewGormCampaignRepo(db), materializer, locker, runnerCfg, logger)
	if err != nil {
		return err
	}
	queueRunner.SetMetrics(metrics)

	warmupRunner, err := service.NewWarmupRunner(servers, scheduler, locker, runnerCfg, logger)
	if err != nil {
		return err
	}
	warmupRunner.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, checks)
	handler.RegisterMetricsRoute(app, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queueRunner.Start(gctx)
	})
	g.Go(func() error {
		return warmupRunner.Start(gctx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("sendqueue worker started", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
