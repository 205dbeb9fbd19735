package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
)

type CampaignRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	// ListByStatus returns up to limit campaigns with id > afterID, in id order.
	ListByStatus(ctx context.Context, statuses []domain.CampaignStatus, afterID int64, limit int) ([]domain.Campaign, error)
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	campaigns, err := r.attachOptions(ctx, []CampaignModel{model})
	if err != nil {
		return nil, err
	}
	return &campaigns[0], nil
}

func (r *GormCampaignRepo) ListByStatus(ctx context.Context, statuses []domain.CampaignStatus, afterID int64, limit int) ([]domain.Campaign, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).
		Where("status IN ? AND id > ?", statuses, afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []CampaignModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	return r.attachOptions(ctx, models)
}

func (r *GormCampaignRepo) attachOptions(ctx context.Context, models []CampaignModel) ([]domain.Campaign, error) {
	ids := make([]int64, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}

	var options []CampaignOptionModel
	if err := r.db.WithContext(ctx).Where("campaign_id IN ?", ids).Find(&options).Error; err != nil {
		return nil, err
	}
	optionsByCampaign := make(map[int64]*CampaignOptionModel, len(options))
	for i := range options {
		optionsByCampaign[options[i].CampaignID] = &options[i]
	}

	var filters []CampaignOpenUnopenFilterModel
	err := r.db.WithContext(ctx).
		Where("campaign_id IN ?", ids).
		Order("previous_campaign_id ASC").
		Find(&filters).Error
	if err != nil {
		return nil, err
	}
	filtersByCampaign := make(map[int64][]CampaignOpenUnopenFilterModel, len(filters))
	for _, f := range filters {
		filtersByCampaign[f.CampaignID] = append(filtersByCampaign[f.CampaignID], f)
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		id := models[i].ID
		campaigns = append(campaigns, *campaignModelToDomain(&models[i], optionsByCampaign[id], filtersByCampaign[id]))
	}
	return campaigns, nil
}
