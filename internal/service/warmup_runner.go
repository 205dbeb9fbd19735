package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sendqueue/internal/domain"
	"github.com/kursadbilgin/sendqueue/internal/lock"
	"github.com/kursadbilgin/sendqueue/internal/observability"
	"github.com/kursadbilgin/sendqueue/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const warmupRunnerName = "warmup"

// WarmupRunner periodically runs the warm-up scheduler for every delivery
// server with a plan attached.
type WarmupRunner struct {
	servers   repository.DeliveryServerRepository
	scheduler *WarmupScheduler
	locker    lock.Locker
	cfg       RunnerConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newRunID  func() string
}

func NewWarmupRunner(
	servers repository.DeliveryServerRepository,
	scheduler *WarmupScheduler,
	locker lock.Locker,
	cfg RunnerConfig,
	logger *zap.Logger,
) (*WarmupRunner, error) {
	if servers == nil {
		return nil, fmt.Errorf("delivery server repository is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("warmup scheduler is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WarmupRunner{
		servers:   servers,
		scheduler: scheduler,
		locker:    locker,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

func (r *WarmupRunner) SetMetrics(metrics *observability.Metrics) {
	r.metrics = metrics
}

func (r *WarmupRunner) Start(ctx context.Context) error {
	return runEvery(ctx, r.cfg.Interval, "warmup runner", r.logger, r.Tick)
}

func (r *WarmupRunner) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(observability.WithRun(ctx, warmupRunnerName, r.newRunID()), r.cfg.RunTimeout)
	defer cancel()

	start := r.now()
	defer func() {
		r.metrics.ObserveTickDuration(warmupRunnerName, r.now().Sub(start))
	}()

	logger := observability.WithContextLogger(r.logger, ctx)

	servers, err := r.servers.ListWithWarmupPlan(ctx)
	if err != nil {
		return fmt.Errorf("failed to list warmup servers: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range servers {
		server := servers[i]
		g.Go(func() error {
			r.processServer(ctx, server, logger)
			return nil
		})
	}
	return g.Wait()
}

func (r *WarmupRunner) processServer(ctx context.Context, server domain.DeliveryServer, logger *zap.Logger) {
	logger = logger.With(zap.Int64("serverId", server.ID))

	r.metrics.IncRunnerInFlight(warmupRunnerName)
	defer r.metrics.DecRunnerInFlight(warmupRunnerName)

	key := fmt.Sprintf("server:%d", server.ID)
	err := runLocked(ctx, r.locker, key, r.cfg.LockTTL, logger, func(ctx context.Context) error {
		outcome, err := r.scheduler.HandleServerWarmupPlanScheduleLogs(ctx, server)
		if err != nil {
			return err
		}
		logger.Debug("warmup scheduler run finished", zap.String("outcome", outcome.String()))
		return nil
	})
	switch {
	case err == nil:
	case isLockHeld(err):
		r.metrics.IncLockSkipped(warmupRunnerName)
		logger.Debug("server locked by another worker")
	default:
		r.metrics.IncRunFailure(warmupRunnerName)
		logger.Error("warmup scheduler run failed", zap.Error(err))
	}
}
