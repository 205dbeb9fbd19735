package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
)

type DeliveryServerRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.DeliveryServer, error)
	ListWithWarmupPlan(ctx context.Context) ([]domain.DeliveryServer, error)
	UpdateQuotas(ctx context.Context, id int64, quotas domain.ServerQuotas) error
}

type GormDeliveryServerRepo struct {
	db *gorm.DB
}

func NewGormDeliveryServerRepo(db *gorm.DB) *GormDeliveryServerRepo {
	return &GormDeliveryServerRepo{db: db}
}

func (r *GormDeliveryServerRepo) GetByID(ctx context.Context, id int64) (*domain.DeliveryServer, error) {
	var model DeliveryServerModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryServerModelToDomain(&model), nil
}

func (r *GormDeliveryServerRepo) ListWithWarmupPlan(ctx context.Context) ([]domain.DeliveryServer, error) {
	var models []DeliveryServerModel
	err := r.db.WithContext(ctx).
		Where("warmup_plan_id IS NOT NULL").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	servers := make([]domain.DeliveryServer, 0, len(models))
	for i := range models {
		servers = append(servers, *deliveryServerModelToDomain(&models[i]))
	}
	return servers, nil
}

// UpdateQuotas writes only the quota columns. A map is used so zero values are persisted.
func (r *GormDeliveryServerRepo) UpdateQuotas(ctx context.Context, id int64, quotas domain.ServerQuotas) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryServerModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"hourly_quota":     quotas.Hourly,
			"daily_quota":      quotas.Daily,
			"monthly_quota":    quotas.Monthly,
			"pause_after_send": quotas.PauseAfterSend,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
