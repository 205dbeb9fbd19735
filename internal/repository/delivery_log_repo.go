package repository

import (
	"context"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
)

type DeliveryLogRepository interface {
	FindByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, offset, limit int) ([]domain.DeliveryLog, error)
	// DeleteByStatus removes the logs with status of the given subscribers and
	// reports how many rows went away.
	DeleteByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, subscriberIDs []int64) (int64, error)
}

type GormDeliveryLogRepo struct {
	db *gorm.DB
}

func NewGormDeliveryLogRepo(db *gorm.DB) *GormDeliveryLogRepo {
	return &GormDeliveryLogRepo{db: db}
}

func (r *GormDeliveryLogRepo) FindByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, offset, limit int) ([]domain.DeliveryLog, error) {
	var models []DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, status).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.DeliveryLog, 0, len(models))
	for i := range models {
		logs = append(logs, *deliveryLogModelToDomain(&models[i]))
	}
	return logs, nil
}

func (r *GormDeliveryLogRepo) DeleteByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, subscriberIDs []int64) (int64, error) {
	if len(subscriberIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ? AND subscriber_id IN ?", campaignID, status, subscriberIDs).
		Delete(&DeliveryLogModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
