package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/kursadbilgin/sendqueue/internal/repository"
	"go.uber.org/zap"
)

// Outcome is the result of one warm-up scheduler run for a server.
type Outcome int

const (
	OutcomeNoPlan Outcome = iota
	OutcomeAlreadyCompleted
	OutcomeWaiting
	OutcomeActivated
	OutcomeFinished
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoPlan:
		return "no_plan"
	case OutcomeAlreadyCompleted:
		return "already_completed"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeActivated:
		return "activated"
	case OutcomeFinished:
		return "finished"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown"
}

// WarmupScheduler advances a delivery server through its warm-up plan.
type WarmupScheduler struct {
	servers repository.DeliveryServerRepository
	plans   repository.WarmupPlanRepository
	usage   repository.UsageLogRepository
	events  events.Sink
	logger  *zap.Logger
	now     func() time.Time
}

func NewWarmupScheduler(
	servers repository.DeliveryServerRepository,
	plans repository.WarmupPlanRepository,
	usage repository.UsageLogRepository,
	sink events.Sink,
	logger *zap.Logger,
) (*WarmupScheduler, error) {
	if servers == nil {
		return nil, fmt.Errorf("delivery server repository is required")
	}
	if plans == nil {
		return nil, fmt.Errorf("warmup plan repository is required")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage log repository is required")
	}
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WarmupScheduler{
		servers: servers,
		plans:   plans,
		usage:   usage,
		events:  sink,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *WarmupScheduler) HandleServer(ctx context.Context, serverID int64) (Outcome, error) {
	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("failed to load delivery server %d: %w", serverID, err)
	}
	return s.HandleServerWarmupPlanScheduleLogs(ctx, *server)
}

// HandleServerWarmupPlanScheduleLogs recounts usage of the server's processing
// schedule logs and then activates the next schedule, waits, or finishes the
// plan. The final log is completed only once the quotas are reset.
func (s *WarmupScheduler) HandleServerWarmupPlanScheduleLogs(ctx context.Context, server domain.DeliveryServer) (Outcome, error) {
	if !server.HasWarmupPlan() {
		return OutcomeNoPlan, nil
	}

	plan, err := s.plans.GetPlan(ctx, *server.WarmupPlanID)
	if errors.Is(err, domain.ErrNotFound) {
		return OutcomeNoPlan, nil
	}
	if err != nil {
		return OutcomeAborted, fmt.Errorf("failed to load warmup plan %d: %w", *server.WarmupPlanID, err)
	}
	if !plan.IsActive() {
		return OutcomeNoPlan, nil
	}

	schedules, err := s.plans.ListSchedules(ctx, plan.ID)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("failed to list schedules of plan %d: %w", plan.ID, err)
	}
	schedules = domain.SortSchedules(schedules)

	logList, err := s.plans.ListScheduleLogs(ctx, plan.ID, server.ID)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("failed to list schedule logs of plan %d: %w", plan.ID, err)
	}
	logs := make(map[int64]domain.WarmupPlanScheduleLog, len(logList))
	for _, l := range logList {
		logs[l.ScheduleID] = l
	}

	if domain.IsPlanCompleted(schedules, logs) {
		return OutcomeAlreadyCompleted, nil
	}

	logger := s.logger.With(
		zap.Int64("planId", plan.ID),
		zap.Int64("serverId", server.ID),
	)

	now := s.now()
	_, bucketEnd := domain.HourBucket(now)

	zeroed := false
	for i, schedule := range schedules {
		current, ok := logs[schedule.ID]
		if !ok {
			break
		}
		if !current.IsProcessing() {
			continue
		}

		used, err := s.usage.CountForServerBetween(ctx, server.ID, current.StartedAt, bucketEnd)
		if err != nil {
			logger.Error("failed to recount warmup usage",
				zap.Int64("scheduleId", schedule.ID),
				zap.Error(err),
			)
			return OutcomeAborted, nil
		}

		updated := domain.ReconcileLog(current, int(used))
		// The final log only turns completed after the quotas are reset, so a
		// failed reset is retried by the next run instead of being skipped.
		if updated.IsCompleted() && i == len(schedules)-1 {
			if err := s.servers.UpdateQuotas(ctx, server.ID, domain.ServerQuotas{}); err != nil {
				return OutcomeAborted, fmt.Errorf("failed to reset quotas of server %d: %w", server.ID, err)
			}
			zeroed = true
		}
		if err := s.plans.UpdateScheduleLog(ctx, &updated); err != nil {
			logger.Error("failed to save warmup schedule log",
				zap.Int64("scheduleId", schedule.ID),
				zap.Error(err),
			)
			return OutcomeAborted, nil
		}
		logs[schedule.ID] = updated

		s.events.Emit(ctx, events.WarmupQuotaRecomputed{
			PlanID:     plan.ID,
			ServerID:   server.ID,
			ScheduleID: schedule.ID,
			Used:       updated.UsedQuota,
			Allowed:    updated.AllowedQuota,
		})
		if updated.IsCompleted() {
			s.events.Emit(ctx, events.WarmupScheduleCompleted{
				PlanID:     plan.ID,
				ServerID:   server.ID,
				ScheduleID: schedule.ID,
				Used:       updated.UsedQuota,
			})
		}
	}

	step := domain.DecideWarmupStep(schedules, logs)
	switch step.Kind {
	case domain.WarmupStepWait:
		want := domain.DeriveQuotas(plan.SendingQuotaType, step.Schedule.Quota)
		if server.Quotas == want {
			return OutcomeWaiting, nil
		}
		// The activation run opened the log but its quota write was lost.
		if err := s.servers.UpdateQuotas(ctx, server.ID, want); err != nil {
			return OutcomeAborted, fmt.Errorf("failed to reapply quotas to server %d: %w", server.ID, err)
		}
		logger.Warn("warmup quotas reapplied",
			zap.Int64("scheduleId", step.Schedule.ID),
			zap.Int("hourlyQuota", want.Hourly),
		)
		return OutcomeWaiting, nil

	case domain.WarmupStepFinish:
		if !zeroed {
			if err := s.servers.UpdateQuotas(ctx, server.ID, domain.ServerQuotas{}); err != nil {
				return OutcomeAborted, fmt.Errorf("failed to reset quotas of server %d: %w", server.ID, err)
			}
		}
		s.events.Emit(ctx, events.WarmupPlanCompleted{PlanID: plan.ID, ServerID: server.ID})
		return OutcomeFinished, nil

	default:
		schedule := *step.Schedule
		log := domain.NewScheduleLog(*plan, server.ID, schedule, now)
		if err := s.plans.CreateScheduleLog(ctx, &log); err != nil {
			logger.Error("failed to open warmup schedule log",
				zap.Int64("scheduleId", schedule.ID),
				zap.Error(err),
			)
			return OutcomeAborted, nil
		}

		quotas := domain.DeriveQuotas(plan.SendingQuotaType, schedule.Quota)
		if err := s.servers.UpdateQuotas(ctx, server.ID, quotas); err != nil {
			return OutcomeAborted, fmt.Errorf("failed to apply quotas to server %d: %w", server.ID, err)
		}

		s.events.Emit(ctx, events.WarmupScheduleActivated{
			PlanID:     plan.ID,
			ServerID:   server.ID,
			ScheduleID: schedule.ID,
			Allowed:    log.AllowedQuota,
			Quotas:     quotas,
		})
		return OutcomeActivated, nil
	}
}
