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

const queueRunnerName = "queue"

var activeCampaignStatuses = []domain.CampaignStatus{
	domain.CampaignStatusPendingSending,
	domain.CampaignStatusSending,
	domain.CampaignStatusPendingDelete,
}

// QueueRunner periodically materializes queue tables of sending campaigns,
// requeues their giveups and drops tables of campaigns pending delete.
type QueueRunner struct {
	campaigns repository.CampaignRepository
	queues    *QueueMaterializer
	locker    lock.Locker
	cfg       RunnerConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newRunID  func() string
}

func NewQueueRunner(
	campaigns repository.CampaignRepository,
	queues *QueueMaterializer,
	locker lock.Locker,
	cfg RunnerConfig,
	logger *zap.Logger,
) (*QueueRunner, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if queues == nil {
		return nil, fmt.Errorf("queue materializer is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueRunner{
		campaigns: campaigns,
		queues:    queues,
		locker:    locker,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

func (r *QueueRunner) SetMetrics(metrics *observability.Metrics) {
	r.metrics = metrics
}

func (r *QueueRunner) Start(ctx context.Context) error {
	return runEvery(ctx, r.cfg.Interval, "queue runner", r.logger, r.Tick)
}

// Tick walks every active campaign, one page of Limit at a time, processing
// each page with bounded concurrency.
func (r *QueueRunner) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(observability.WithRun(ctx, queueRunnerName, r.newRunID()), r.cfg.RunTimeout)
	defer cancel()

	start := r.now()
	defer func() {
		r.metrics.ObserveTickDuration(queueRunnerName, r.now().Sub(start))
	}()

	logger := observability.WithContextLogger(r.logger, ctx)

	var afterID int64
	for {
		campaigns, err := r.campaigns.ListByStatus(ctx, activeCampaignStatuses, afterID, r.cfg.Limit)
		if err != nil {
			return fmt.Errorf("failed to list active campaigns after id %d: %w", afterID, err)
		}
		if len(campaigns) == 0 {
			return nil
		}

		r.processPage(ctx, campaigns, logger)

		lastID := campaigns[len(campaigns)-1].ID
		if len(campaigns) < r.cfg.Limit || lastID <= afterID {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("queue tick stopped after campaign %d: %w", lastID, err)
		}
		afterID = lastID
	}
}

func (r *QueueRunner) processPage(ctx context.Context, campaigns []domain.Campaign, logger *zap.Logger) {
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range campaigns {
		campaign := campaigns[i]
		g.Go(func() error {
			r.processCampaign(ctx, campaign, logger)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *QueueRunner) processCampaign(ctx context.Context, campaign domain.Campaign, logger *zap.Logger) {
	logger = logger.With(zap.Int64("campaignId", campaign.ID))

	if err := campaign.Validate(); err != nil {
		logger.Warn("skipping invalid campaign", zap.Error(err))
		return
	}

	r.metrics.IncRunnerInFlight(queueRunnerName)
	defer r.metrics.DecRunnerInFlight(queueRunnerName)

	key := fmt.Sprintf("campaign:%d", campaign.ID)
	err := runLocked(ctx, r.locker, key, r.cfg.LockTTL, logger, func(ctx context.Context) error {
		return r.handleCampaign(ctx, campaign, logger)
	})
	switch {
	case err == nil:
	case isLockHeld(err):
		r.metrics.IncLockSkipped(queueRunnerName)
		logger.Debug("campaign locked by another worker")
	default:
		r.metrics.IncRunFailure(queueRunnerName)
		logger.Error("campaign queue processing failed", zap.Error(err))
	}
}

func (r *QueueRunner) handleCampaign(ctx context.Context, campaign domain.Campaign, logger *zap.Logger) error {
	queue := r.queues.For(campaign)

	if campaign.Status == domain.CampaignStatusPendingDelete {
		dropped, err := queue.DropTable(ctx)
		if err != nil {
			return err
		}
		if dropped {
			logger.Info("queue table dropped", zap.String("table", queue.TableName()))
		}
		return nil
	}

	populated, err := queue.PopulateTable(ctx)
	if err != nil {
		return err
	}
	if populated {
		logger.Info("queue table populated", zap.String("table", queue.TableName()))
	}

	requeued, err := queue.HandleSendingGiveups(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 {
		logger.Info("giveup subscribers requeued", zap.Int("count", requeued))
	}
	return nil
}
