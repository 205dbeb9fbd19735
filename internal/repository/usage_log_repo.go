package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type UsageLogRepository interface {
	// CountForServerBetween counts usage in [start, end).
	CountForServerBetween(ctx context.Context, serverID int64, start, end time.Time) (int64, error)
}

type GormUsageLogRepo struct {
	db *gorm.DB
}

func NewGormUsageLogRepo(db *gorm.DB) *GormUsageLogRepo {
	return &GormUsageLogRepo{db: db}
}

func (r *GormUsageLogRepo) CountForServerBetween(ctx context.Context, serverID int64, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryServerUsageLogModel{}).
		Where("server_id = ? AND created_at >= ? AND created_at < ?", serverID, start, end).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
