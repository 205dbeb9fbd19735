package domain

import "time"

// DeliveryLogStatus is the outcome recorded for a campaign delivery attempt.
type DeliveryLogStatus string

const (
	DeliveryLogStatusSuccess     DeliveryLogStatus = "success"
	DeliveryLogStatusError       DeliveryLogStatus = "error"
	DeliveryLogStatusFatalError  DeliveryLogStatus = "fatal-error"
	DeliveryLogStatusGiveup      DeliveryLogStatus = "giveup"
	DeliveryLogStatusBlacklisted DeliveryLogStatus = "blacklisted"
)

func (s DeliveryLogStatus) String() string { return string(s) }

type DeliveryLog struct {
	ID           int64
	CampaignID   int64
	SubscriberID int64
	ServerID     *int64
	Status       DeliveryLogStatus
	Message      string
	CreatedAt    time.Time
}

// DeliveryServerUsageLog is one send counted against a delivery server quota.
type DeliveryServerUsageLog struct {
	ID        int64
	ServerID  int64
	CreatedAt time.Time
}

// ServerQuotas are the live sending limits of a delivery server. Zero is unlimited.
type ServerQuotas struct {
	Hourly         int
	Daily          int
	Monthly        int
	PauseAfterSend int
}

type DeliveryServer struct {
	ID           int64
	Name         string
	Hostname     string
	Quotas       ServerQuotas
	WarmupPlanID *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s DeliveryServer) HasWarmupPlan() bool {
	return s.WarmupPlanID != nil && *s.WarmupPlanID > 0
}
