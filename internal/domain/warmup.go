package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type WarmupPlanStatus string

const (
	WarmupPlanStatusActive   WarmupPlanStatus = "active"
	WarmupPlanStatusInactive WarmupPlanStatus = "inactive"
)

// QuotaType is the granularity a warm-up plan expresses its schedule quotas in.
type QuotaType string

const (
	QuotaTypeHourly  QuotaType = "hourly"
	QuotaTypeDaily   QuotaType = "daily"
	QuotaTypeMonthly QuotaType = "monthly"
)

func (t QuotaType) String() string { return string(t) }

func (t QuotaType) IsValid() bool {
	switch t {
	case QuotaTypeHourly, QuotaTypeDaily, QuotaTypeMonthly:
		return true
	}
	return false
}

func ParseQuotaTypeFromString(s string) (QuotaType, error) {
	qt := QuotaType(strings.ToLower(strings.TrimSpace(s)))
	if !qt.IsValid() {
		return "", fmt.Errorf("%w: invalid quota type %q", ErrValidation, s)
	}
	return qt, nil
}

const (
	daysPerMonth = 30
	hoursPerDay  = 24
)

// DeriveQuotas expands a single schedule quota into hourly, daily and monthly
// server quotas. Divisions are rounded to the nearest integer.
func DeriveQuotas(quotaType QuotaType, quota int) ServerQuotas {
	if quota < 0 {
		quota = 0
	}

	var q ServerQuotas
	switch quotaType {
	case QuotaTypeMonthly:
		q.Monthly = quota
		q.Daily = roundDiv(quota, daysPerMonth)
		q.Hourly = roundDiv(q.Daily, hoursPerDay)
	case QuotaTypeDaily:
		q.Daily = quota
		q.Monthly = quota * daysPerMonth
		q.Hourly = roundDiv(quota, hoursPerDay)
	default:
		q.Hourly = quota
		q.Daily = quota * hoursPerDay
		q.Monthly = q.Daily * daysPerMonth
	}
	return q
}

func roundDiv(n, d int) int {
	return int(math.Round(float64(n) / float64(d)))
}

// WarmupPlan is an ordered ramp of sending quotas for a delivery server.
type WarmupPlan struct {
	ID               int64
	Name             string
	Status           WarmupPlanStatus
	SendingQuotaType QuotaType
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p WarmupPlan) IsActive() bool {
	return p.Status == WarmupPlanStatusActive
}

// WarmupPlanSchedule is one ramp step. Steps run in ascending ID order.
type WarmupPlanSchedule struct {
	ID        int64
	PlanID    int64
	Quota     int
	CreatedAt time.Time
}

type ScheduleLogStatus string

const (
	ScheduleLogStatusProcessing ScheduleLogStatus = "processing"
	ScheduleLogStatusCompleted  ScheduleLogStatus = "completed"
)

func (s ScheduleLogStatus) String() string { return string(s) }

// WarmupPlanScheduleLog tracks a server's progress through one schedule.
// There is at most one per (plan, server, schedule) and it is never deleted.
type WarmupPlanScheduleLog struct {
	ID           int64
	PlanID       int64
	ServerID     int64
	ScheduleID   int64
	AllowedQuota int
	UsedQuota    int
	Status       ScheduleLogStatus
	StartedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (l WarmupPlanScheduleLog) IsProcessing() bool {
	return l.Status == ScheduleLogStatusProcessing
}

func (l WarmupPlanScheduleLog) IsCompleted() bool {
	return l.Status == ScheduleLogStatusCompleted
}

// NewScheduleLog opens a processing log for schedule starting at the current hour.
func NewScheduleLog(plan WarmupPlan, serverID int64, schedule WarmupPlanSchedule, now time.Time) WarmupPlanScheduleLog {
	start, _ := HourBucket(now)
	return WarmupPlanScheduleLog{
		PlanID:       plan.ID,
		ServerID:     serverID,
		ScheduleID:   schedule.ID,
		AllowedQuota: schedule.Quota,
		UsedQuota:    0,
		Status:       ScheduleLogStatusProcessing,
		StartedAt:    start,
	}
}

// ReconcileLog applies a fresh usage count to a processing log. Completed logs
// are returned untouched; status never moves back to processing.
func ReconcileLog(l WarmupPlanScheduleLog, used int) WarmupPlanScheduleLog {
	if l.IsCompleted() {
		return l
	}
	l.UsedQuota = used
	if used >= l.AllowedQuota {
		l.Status = ScheduleLogStatusCompleted
	}
	return l
}

// HourBucket returns the [start, end) bounds of the hour containing now.
func HourBucket(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return start, start.Add(time.Hour)
}

// SortSchedules returns schedules in ramp order.
func SortSchedules(schedules []WarmupPlanSchedule) []WarmupPlanSchedule {
	sorted := make([]WarmupPlanSchedule, len(schedules))
	copy(sorted, schedules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// IsPlanCompleted reports whether every schedule of the plan has a completed log.
func IsPlanCompleted(schedules []WarmupPlanSchedule, logs map[int64]WarmupPlanScheduleLog) bool {
	for _, s := range schedules {
		log, ok := logs[s.ID]
		if !ok || !log.IsCompleted() {
			return false
		}
	}
	return true
}

type WarmupStepKind int

const (
	// WarmupStepWait keeps Schedule, the processing one, running.
	WarmupStepWait WarmupStepKind = iota
	// WarmupStepActivate opens a log for Schedule and applies its quotas.
	WarmupStepActivate
	// WarmupStepFinish zeroes the server quotas; the ramp is over.
	WarmupStepFinish
)

func (k WarmupStepKind) String() string {
	switch k {
	case WarmupStepWait:
		return "wait"
	case WarmupStepActivate:
		return "activate"
	case WarmupStepFinish:
		return "finish"
	}
	return "unknown"
}

type WarmupStep struct {
	Kind     WarmupStepKind
	Schedule *WarmupPlanSchedule
}

// DecideWarmupStep walks schedules in ramp order. The first schedule without a
// log is the next to activate, unless the last logged schedule is still
// processing. With every schedule logged the plan is finished.
func DecideWarmupStep(schedules []WarmupPlanSchedule, logs map[int64]WarmupPlanScheduleLog) WarmupStep {
	var (
		current      *WarmupPlanSchedule
		last         *WarmupPlanScheduleLog
		lastSchedule WarmupPlanSchedule
	)

	for _, s := range SortSchedules(schedules) {
		log, ok := logs[s.ID]
		if !ok {
			schedule := s
			current = &schedule
			break
		}
		last = &log
		lastSchedule = s
	}

	if last != nil && last.IsProcessing() {
		return WarmupStep{Kind: WarmupStepWait, Schedule: &lastSchedule}
	}
	if current == nil {
		return WarmupStep{Kind: WarmupStepFinish}
	}
	return WarmupStep{Kind: WarmupStepActivate, Schedule: current}
}
