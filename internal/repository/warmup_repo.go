package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
)

type WarmupPlanRepository interface {
	GetPlan(ctx context.Context, id int64) (*domain.WarmupPlan, error)
	ListSchedules(ctx context.Context, planID int64) ([]domain.WarmupPlanSchedule, error)
	ListScheduleLogs(ctx context.Context, planID, serverID int64) ([]domain.WarmupPlanScheduleLog, error)
	CreateScheduleLog(ctx context.Context, l *domain.WarmupPlanScheduleLog) error
	UpdateScheduleLog(ctx context.Context, l *domain.WarmupPlanScheduleLog) error
}

type GormWarmupPlanRepo struct {
	db *gorm.DB
}

func NewGormWarmupPlanRepo(db *gorm.DB) *GormWarmupPlanRepo {
	return &GormWarmupPlanRepo{db: db}
}

func (r *GormWarmupPlanRepo) GetPlan(ctx context.Context, id int64) (*domain.WarmupPlan, error) {
	var model WarmupPlanModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return warmupPlanModelToDomain(&model), nil
}

func (r *GormWarmupPlanRepo) ListSchedules(ctx context.Context, planID int64) ([]domain.WarmupPlanSchedule, error) {
	var models []WarmupPlanScheduleModel
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	schedules := make([]domain.WarmupPlanSchedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *warmupScheduleModelToDomain(&models[i]))
	}
	return schedules, nil
}

func (r *GormWarmupPlanRepo) ListScheduleLogs(ctx context.Context, planID, serverID int64) ([]domain.WarmupPlanScheduleLog, error) {
	var models []WarmupPlanScheduleLogModel
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND server_id = ?", planID, serverID).
		Order("schedule_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.WarmupPlanScheduleLog, 0, len(models))
	for i := range models {
		logs = append(logs, *scheduleLogModelToDomain(&models[i]))
	}
	return logs, nil
}

func (r *GormWarmupPlanRepo) CreateScheduleLog(ctx context.Context, l *domain.WarmupPlanScheduleLog) error {
	model := scheduleLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if l != nil {
		*l = *scheduleLogModelToDomain(model)
	}
	return nil
}

// UpdateScheduleLog persists used quota and status of a processing log.
// Completed logs are never rewritten.
func (r *GormWarmupPlanRepo) UpdateScheduleLog(ctx context.Context, l *domain.WarmupPlanScheduleLog) error {
	result := r.db.WithContext(ctx).
		Model(&WarmupPlanScheduleLogModel{}).
		Where("id = ? AND status = ?", l.ID, domain.ScheduleLogStatusProcessing).
		Updates(map[string]any{
			"used_quota": l.UsedQuota,
			"status":     l.Status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
