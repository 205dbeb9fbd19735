package events

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes one structured log entry per event.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	if s == nil || event == nil {
		return
	}
	s.logger.Info(event.Name(), fields(event)...)
}

func fields(event Event) []zap.Field {
	switch e := event.(type) {
	case QueuePopulated:
		return []zap.Field{
			zap.Int64("campaignId", e.CampaignID),
			zap.Int("queued", e.Queued),
			zap.Int("filtered", e.Filtered),
		}
	case QueueDropped:
		return []zap.Field{zap.Int64("campaignId", e.CampaignID)}
	case GiveupsRequeued:
		return []zap.Field{
			zap.Int64("campaignId", e.CampaignID),
			zap.Int("count", e.Count),
		}
	case SubscribersFiltered:
		return []zap.Field{
			zap.Int64("campaignId", e.CampaignID),
			zap.Int("count", e.Count),
		}
	case WarmupQuotaRecomputed:
		return []zap.Field{
			zap.Int64("planId", e.PlanID),
			zap.Int64("serverId", e.ServerID),
			zap.Int64("scheduleId", e.ScheduleID),
			zap.Int("used", e.Used),
			zap.Int("allowed", e.Allowed),
		}
	case WarmupScheduleCompleted:
		return []zap.Field{
			zap.Int64("planId", e.PlanID),
			zap.Int64("serverId", e.ServerID),
			zap.Int64("scheduleId", e.ScheduleID),
			zap.Int("used", e.Used),
		}
	case WarmupScheduleActivated:
		return []zap.Field{
			zap.Int64("planId", e.PlanID),
			zap.Int64("serverId", e.ServerID),
			zap.Int64("scheduleId", e.ScheduleID),
			zap.Int("allowed", e.Allowed),
			zap.Int("hourlyQuota", e.Quotas.Hourly),
			zap.Int("dailyQuota", e.Quotas.Daily),
			zap.Int("monthlyQuota", e.Quotas.Monthly),
		}
	case WarmupPlanCompleted:
		return []zap.Field{
			zap.Int64("planId", e.PlanID),
			zap.Int64("serverId", e.ServerID),
		}
	}
	return nil
}
