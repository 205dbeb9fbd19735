package repository

import (
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table.
type CampaignModel struct {
	ID        int64                 `gorm:"primaryKey;autoIncrement"`
	ListID    int64                 `gorm:"not null;index"`
	SegmentID *int64                `gorm:"index"`
	Type      domain.CampaignType   `gorm:"type:varchar(20);not null"`
	Status    domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// CampaignOptionModel holds the send options of a campaign, one row per campaign.
type CampaignOptionModel struct {
	CampaignID                 int64 `gorm:"primaryKey"`
	MaxSendCount               int   `gorm:"not null;default:0"`
	MaxSendCountRandom         bool  `gorm:"not null;default:false"`
	AutoresponderTimeMinHour   *int
	AutoresponderTimeMinMinute *int
	TimewarpEnabled            bool `gorm:"not null;default:false"`
	TimewarpHour               int  `gorm:"not null;default:0"`
	TimewarpMinute             int  `gorm:"not null;default:0"`
}

func (CampaignOptionModel) TableName() string {
	return "campaign_options"
}

// CampaignOpenUnopenFilterModel links a campaign to an earlier campaign whose
// opens gate its recipients.
type CampaignOpenUnopenFilterModel struct {
	CampaignID         int64                   `gorm:"primaryKey"`
	PreviousCampaignID int64                   `gorm:"primaryKey"`
	Action             domain.OpenUnopenAction `gorm:"type:varchar(10);not null"`
}

func (CampaignOpenUnopenFilterModel) TableName() string {
	return "campaign_filter_open_unopen"
}

// SubscriberModel is the persistence model for list_subscribers.
type SubscriberModel struct {
	ID        int64                   `gorm:"primaryKey;autoIncrement"`
	ListID    int64                   `gorm:"not null;index"`
	Email     string                  `gorm:"type:varchar(255);not null"`
	Status    domain.SubscriberStatus `gorm:"type:varchar(20);not null"`
	Timezone  string                  `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubscriberModel) TableName() string {
	return domain.SubscribersTable
}

// SegmentSubscriberModel is the resolved membership of a list segment.
type SegmentSubscriberModel struct {
	SegmentID    int64 `gorm:"primaryKey"`
	SubscriberID int64 `gorm:"primaryKey"`
}

func (SegmentSubscriberModel) TableName() string {
	return "list_segment_subscribers"
}

// CampaignOpenModel records a tracked open.
type CampaignOpenModel struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	CampaignID   int64 `gorm:"not null"`
	SubscriberID int64 `gorm:"not null"`
	CreatedAt    time.Time
}

func (CampaignOpenModel) TableName() string {
	return "campaign_track_open"
}

// DeliveryLogModel is the persistence model for campaign_delivery_logs.
type DeliveryLogModel struct {
	ID           int64                    `gorm:"primaryKey;autoIncrement"`
	CampaignID   int64                    `gorm:"not null"`
	SubscriberID int64                    `gorm:"not null"`
	ServerID     *int64                   `gorm:"column:server_id"`
	Status       domain.DeliveryLogStatus `gorm:"type:varchar(20);not null"`
	Message      string                   `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time
}

func (DeliveryLogModel) TableName() string {
	return "campaign_delivery_logs"
}

// DeliveryServerModel is the persistence model for delivery_servers.
type DeliveryServerModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"type:varchar(255);not null"`
	Hostname       string `gorm:"type:varchar(255);not null"`
	HourlyQuota    int    `gorm:"not null;default:0"`
	DailyQuota     int    `gorm:"not null;default:0"`
	MonthlyQuota   int    `gorm:"not null;default:0"`
	PauseAfterSend int    `gorm:"not null;default:0"`
	WarmupPlanID   *int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryServerModel) TableName() string {
	return "delivery_servers"
}

// DeliveryServerUsageLogModel counts one send against a server.
type DeliveryServerUsageLogModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ServerID  int64 `gorm:"not null"`
	CreatedAt time.Time
}

func (DeliveryServerUsageLogModel) TableName() string {
	return "delivery_server_usage_logs"
}

// WarmupPlanModel is the persistence model for delivery_server_warmup_plans.
type WarmupPlanModel struct {
	ID               int64                   `gorm:"primaryKey;autoIncrement"`
	Name             string                  `gorm:"type:varchar(255);not null"`
	Status           domain.WarmupPlanStatus `gorm:"type:varchar(20);not null"`
	SendingQuotaType domain.QuotaType        `gorm:"type:varchar(20);not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (WarmupPlanModel) TableName() string {
	return "delivery_server_warmup_plans"
}

// WarmupPlanScheduleModel is one ramp step of a warm-up plan.
type WarmupPlanScheduleModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	PlanID    int64 `gorm:"not null;index"`
	Quota     int   `gorm:"not null"`
	CreatedAt time.Time
}

func (WarmupPlanScheduleModel) TableName() string {
	return "delivery_server_warmup_plan_schedules"
}

// WarmupPlanScheduleLogModel is the append-only progress record of a server
// through one schedule.
type WarmupPlanScheduleLogModel struct {
	ID           int64                    `gorm:"primaryKey;autoIncrement"`
	PlanID       int64                    `gorm:"not null;uniqueIndex:idx_warmup_schedule_logs_key,priority:1"`
	ServerID     int64                    `gorm:"not null;uniqueIndex:idx_warmup_schedule_logs_key,priority:2"`
	ScheduleID   int64                    `gorm:"not null;uniqueIndex:idx_warmup_schedule_logs_key,priority:3"`
	AllowedQuota int                      `gorm:"not null"`
	UsedQuota    int                      `gorm:"not null;default:0"`
	Status       domain.ScheduleLogStatus `gorm:"type:varchar(20);not null"`
	StartedAt    time.Time                `gorm:"type:timestamptz;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (WarmupPlanScheduleLogModel) TableName() string {
	return "delivery_server_warmup_plan_schedule_logs"
}

func campaignModelToDomain(m *CampaignModel, opt *CampaignOptionModel, filters []CampaignOpenUnopenFilterModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	c := &domain.Campaign{
		ID:        m.ID,
		ListID:    m.ListID,
		SegmentID: m.SegmentID,
		Type:      m.Type,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if opt != nil {
		c.Option.MaxSendCount = opt.MaxSendCount
		c.Option.MaxSendCountRandom = opt.MaxSendCountRandom
		c.Option.AutoresponderTimeMinHour = opt.AutoresponderTimeMinHour
		c.Option.AutoresponderTimeMinMinute = opt.AutoresponderTimeMinMinute
		if opt.TimewarpEnabled {
			c.Option.Timewarp = &domain.Timewarp{Hour: opt.TimewarpHour, Minute: opt.TimewarpMinute}
		}
	}

	if len(filters) > 0 {
		filter := &domain.OpenUnopenFilter{Action: filters[0].Action}
		for _, f := range filters {
			filter.CampaignIDs = append(filter.CampaignIDs, f.PreviousCampaignID)
		}
		c.Option.OpenUnopen = filter
	}

	return c
}

func subscriberModelToDomain(m *SubscriberModel) *domain.Subscriber {
	if m == nil {
		return nil
	}

	return &domain.Subscriber{
		ID:        m.ID,
		ListID:    m.ListID,
		Email:     m.Email,
		Status:    m.Status,
		Timezone:  m.Timezone,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deliveryLogModelToDomain(m *DeliveryLogModel) *domain.DeliveryLog {
	if m == nil {
		return nil
	}

	return &domain.DeliveryLog{
		ID:           m.ID,
		CampaignID:   m.CampaignID,
		SubscriberID: m.SubscriberID,
		ServerID:     m.ServerID,
		Status:       m.Status,
		Message:      m.Message,
		CreatedAt:    m.CreatedAt,
	}
}

func deliveryServerModelToDomain(m *DeliveryServerModel) *domain.DeliveryServer {
	if m == nil {
		return nil
	}

	return &domain.DeliveryServer{
		ID:       m.ID,
		Name:     m.Name,
		Hostname: m.Hostname,
		Quotas: domain.ServerQuotas{
			Hourly:         m.HourlyQuota,
			Daily:          m.DailyQuota,
			Monthly:        m.MonthlyQuota,
			PauseAfterSend: m.PauseAfterSend,
		},
		WarmupPlanID: m.WarmupPlanID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func warmupPlanModelToDomain(m *WarmupPlanModel) *domain.WarmupPlan {
	if m == nil {
		return nil
	}

	return &domain.WarmupPlan{
		ID:               m.ID,
		Name:             m.Name,
		Status:           m.Status,
		SendingQuotaType: m.SendingQuotaType,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func warmupScheduleModelToDomain(m *WarmupPlanScheduleModel) *domain.WarmupPlanSchedule {
	if m == nil {
		return nil
	}

	return &domain.WarmupPlanSchedule{
		ID:        m.ID,
		PlanID:    m.PlanID,
		Quota:     m.Quota,
		CreatedAt: m.CreatedAt,
	}
}

func scheduleLogModelFromDomain(l *domain.WarmupPlanScheduleLog) *WarmupPlanScheduleLogModel {
	if l == nil {
		return nil
	}

	return &WarmupPlanScheduleLogModel{
		ID:           l.ID,
		PlanID:       l.PlanID,
		ServerID:     l.ServerID,
		ScheduleID:   l.ScheduleID,
		AllowedQuota: l.AllowedQuota,
		UsedQuota:    l.UsedQuota,
		Status:       l.Status,
		StartedAt:    l.StartedAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func scheduleLogModelToDomain(m *WarmupPlanScheduleLogModel) *domain.WarmupPlanScheduleLog {
	if m == nil {
		return nil
	}

	return &domain.WarmupPlanScheduleLog{
		ID:           m.ID,
		PlanID:       m.PlanID,
		ServerID:     m.ServerID,
		ScheduleID:   m.ScheduleID,
		AllowedQuota: m.AllowedQuota,
		UsedQuota:    m.UsedQuota,
		Status:       m.Status,
		StartedAt:    m.StartedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
