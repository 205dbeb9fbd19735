package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignType distinguishes one-shot sends from recurring autoresponders.
type CampaignType string

const (
	CampaignTypeRegular       CampaignType = "regular"
	CampaignTypeAutoresponder CampaignType = "autoresponder"
)

func (t CampaignType) String() string { return string(t) }

func (t CampaignType) IsValid() bool {
	switch t {
	case CampaignTypeRegular, CampaignTypeAutoresponder:
		return true
	}
	return false
}

// CampaignStatus is the send lifecycle state owned by the user facing app.
type CampaignStatus string

const (
	CampaignStatusDraft          CampaignStatus = "draft"
	CampaignStatusPendingSending CampaignStatus = "pending-sending"
	CampaignStatusSending        CampaignStatus = "sending"
	CampaignStatusPaused         CampaignStatus = "paused"
	CampaignStatusSent           CampaignStatus = "sent"
	CampaignStatusPendingDelete  CampaignStatus = "pending-delete"
)

func (s CampaignStatus) String() string { return string(s) }

// OpenUnopenAction selects whether subscribers must have opened, or must not
// have opened, the referenced campaigns.
type OpenUnopenAction string

const (
	OpenUnopenActionOpen   OpenUnopenAction = "open"
	OpenUnopenActionUnopen OpenUnopenAction = "unopen"
)

func (a OpenUnopenAction) IsValid() bool {
	switch a {
	case OpenUnopenActionOpen, OpenUnopenActionUnopen:
		return true
	}
	return false
}

func ParseOpenUnopenAction(s string) (OpenUnopenAction, error) {
	a := OpenUnopenAction(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid open/unopen action %q", ErrValidation, s)
	}
	return a, nil
}

// OpenUnopenFilter restricts recipients by their open history on earlier campaigns.
type OpenUnopenFilter struct {
	Action      OpenUnopenAction
	CampaignIDs []int64
}

// Active reports whether the filter has anything to evaluate.
func (f *OpenUnopenFilter) Active() bool {
	return f != nil && f.Action.IsValid() && len(f.CampaignIDs) > 0
}

// Allows evaluates the predicate for a subscriber that opened (or not) any of
// the referenced campaigns.
func (f *OpenUnopenFilter) Allows(openedAny bool) bool {
	if !f.Active() {
		return true
	}
	if f.Action == OpenUnopenActionOpen {
		return openedAny
	}
	return !openedAny
}

// Timewarp delays delivery until the subscriber's local clock reaches Hour:Minute.
type Timewarp struct {
	Hour   int
	Minute int
}

func (t Timewarp) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: timewarp hour %d out of range", ErrValidation, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: timewarp minute %d out of range", ErrValidation, t.Minute)
	}
	return nil
}

// Due reports whether a subscriber in timezone tz has reached the send time.
// Unknown or empty timezones fall back to now's location.
func (t Timewarp) Due(now time.Time, tz string) bool {
	local := now
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			local = now.In(loc)
		}
	}
	return local.Hour()*60+local.Minute() >= t.Hour*60+t.Minute
}

// CampaignOption holds the send tuning knobs attached to a campaign.
type CampaignOption struct {
	MaxSendCount               int
	MaxSendCountRandom         bool
	AutoresponderTimeMinHour   *int
	AutoresponderTimeMinMinute *int
	Timewarp                   *Timewarp
	OpenUnopen                 *OpenUnopenFilter
}

// Campaign is a send job as seen by the queue materializer. It is read-only here.
type Campaign struct {
	ID        int64
	ListID    int64
	SegmentID *int64
	Type      CampaignType
	Status    CampaignStatus
	Option    CampaignOption
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Campaign) IsAutoresponder() bool {
	return c.Type == CampaignTypeAutoresponder
}

func (c Campaign) QueueKind() QueueKind {
	if c.IsAutoresponder() {
		return QueueKindAutoresponder
	}
	return QueueKindRegular
}

// HasSendCap reports whether total recipients are capped.
func (c Campaign) HasSendCap() bool {
	return c.Option.MaxSendCount > 0
}

// AutoresponderSendAt returns now, or today at the configured minimum time.
func (c Campaign) AutoresponderSendAt(now time.Time) time.Time {
	hour := c.Option.AutoresponderTimeMinHour
	if hour == nil || *hour < 0 || *hour > 23 {
		return now
	}

	minute := 0
	if m := c.Option.AutoresponderTimeMinMinute; m != nil && *m >= 0 && *m <= 59 {
		minute = *m
	}

	return time.Date(now.Year(), now.Month(), now.Day(), *hour, minute, 0, 0, now.Location())
}

func (c Campaign) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: campaign id is required", ErrValidation)
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: invalid campaign type %q", ErrValidation, c.Type)
	}
	if c.Option.MaxSendCount < 0 {
		return fmt.Errorf("%w: max send count must not be negative", ErrValidation)
	}
	if c.Option.Timewarp != nil {
		if err := c.Option.Timewarp.Validate(); err != nil {
			return err
		}
	}
	return nil
}
