package domain

import "time"

type SubscriberStatus string

const (
	SubscriberStatusConfirmed    SubscriberStatus = "confirmed"
	SubscriberStatusUnconfirmed  SubscriberStatus = "unconfirmed"
	SubscriberStatusUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberStatusBlacklisted  SubscriberStatus = "blacklisted"
)

// Subscriber is a list member that can receive campaign deliveries.
type Subscriber struct {
	ID        int64
	ListID    int64
	Email     string
	Status    SubscriberStatus
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriberCriteria selects the candidate recipients of a campaign.
// A non-empty ShuffleSeed orders candidates by a stable pseudo-random key.
type SubscriberCriteria struct {
	ListID      int64
	SegmentID   *int64
	ShuffleSeed string
}

func CriteriaForCampaign(c Campaign) SubscriberCriteria {
	return SubscriberCriteria{
		ListID:    c.ListID,
		SegmentID: c.SegmentID,
	}
}
