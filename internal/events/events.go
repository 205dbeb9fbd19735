package events

import (
	"context"

	"github.com/kursadbilgin/sendqueue/internal/domain"
)

// Event is a typed progress notification emitted by the queue materializer
// and the warm-up scheduler.
type Event interface {
	Name() string
}

const (
	NameQueuePopulated          = "queue.populated"
	NameQueueDropped            = "queue.dropped"
	NameGiveupsRequeued         = "queue.giveups_requeued"
	NameSubscribersFiltered     = "queue.subscribers_filtered"
	NameWarmupQuotaRecomputed   = "warmup.quota_recomputed"
	NameWarmupScheduleCompleted = "warmup.schedule_completed"
	NameWarmupScheduleActivated = "warmup.schedule_activated"
	NameWarmupPlanCompleted     = "warmup.plan_completed"
)

type QueuePopulated struct {
	CampaignID int64 `json:"campaignId"`
	Queued     int   `json:"queued"`
	Filtered   int   `json:"filtered"`
}

func (QueuePopulated) Name() string { return NameQueuePopulated }

type QueueDropped struct {
	CampaignID int64 `json:"campaignId"`
}

func (QueueDropped) Name() string { return NameQueueDropped }

type GiveupsRequeued struct {
	CampaignID int64 `json:"campaignId"`
	Count      int   `json:"count"`
}

func (GiveupsRequeued) Name() string { return NameGiveupsRequeued }

// SubscribersFiltered reports queue rows removed by the open/unopen filter.
type SubscribersFiltered struct {
	CampaignID int64 `json:"campaignId"`
	Count      int   `json:"count"`
}

func (SubscribersFiltered) Name() string { return NameSubscribersFiltered }

type WarmupQuotaRecomputed struct {
	PlanID     int64 `json:"planId"`
	ServerID   int64 `json:"serverId"`
	ScheduleID int64 `json:"scheduleId"`
	Used       int   `json:"used"`
	Allowed    int   `json:"allowed"`
}

func (WarmupQuotaRecomputed) Name() string { return NameWarmupQuotaRecomputed }

type WarmupScheduleCompleted struct {
	PlanID     int64 `json:"planId"`
	ServerID   int64 `json:"serverId"`
	ScheduleID int64 `json:"scheduleId"`
	Used       int   `json:"used"`
}

func (WarmupScheduleCompleted) Name() string { return NameWarmupScheduleCompleted }

type WarmupScheduleActivated struct {
	PlanID     int64               `json:"planId"`
	ServerID   int64               `json:"serverId"`
	ScheduleID int64               `json:"scheduleId"`
	Allowed    int                 `json:"allowed"`
	Quotas     domain.ServerQuotas `json:"quotas"`
}

func (WarmupScheduleActivated) Name() string { return NameWarmupScheduleActivated }

type WarmupPlanCompleted struct {
	PlanID   int64 `json:"planId"`
	ServerID int64 `json:"serverId"`
}

func (WarmupPlanCompleted) Name() string { return NameWarmupPlanCompleted }

// Sink receives events. Emit must not block for long; failures are the sink's
// own concern and never reach the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
