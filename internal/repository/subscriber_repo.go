package repository

import (
	"context"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriberRepository interface {
	// FindIDs pages through the confirmed subscribers matching criteria.
	FindIDs(ctx context.Context, criteria domain.SubscriberCriteria, offset, limit int) ([]int64, error)
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Subscriber, error)
	// OpenedAny returns the subset of subscriberIDs that opened at least one of campaignIDs.
	OpenedAny(ctx context.Context, subscriberIDs []int64, campaignIDs []int64) (map[int64]bool, error)
}

type GormSubscriberRepo struct {
	db *gorm.DB
}

func NewGormSubscriberRepo(db *gorm.DB) *GormSubscriberRepo {
	return &GormSubscriberRepo{db: db}
}

func (r *GormSubscriberRepo) FindIDs(ctx context.Context, criteria domain.SubscriberCriteria, offset, limit int) ([]int64, error) {
	query := r.db.WithContext(ctx).
		Model(&SubscriberModel{}).
		Where("list_id = ? AND status = ?", criteria.ListID, domain.SubscriberStatusConfirmed)

	if criteria.SegmentID != nil {
		members := r.db.Model(&SegmentSubscriberModel{}).
			Select("subscriber_id").
			Where("segment_id = ?", *criteria.SegmentID)
		query = query.Where("id IN (?)", members)
	}

	if criteria.ShuffleSeed != "" {
		// Seeded hash order is stable across pages, unlike ORDER BY random().
		query = query.Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "md5(id::text || ?), id",
				Vars:               []any{criteria.ShuffleSeed},
				WithoutParentheses: true,
			},
		})
	} else {
		query = query.Order("id ASC")
	}

	var ids []int64
	err := query.
		Offset(offset).
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormSubscriberRepo) FindByIDs(ctx context.Context, ids []int64) ([]domain.Subscriber, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []SubscriberModel
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	subscribers := make([]domain.Subscriber, 0, len(models))
	for i := range models {
		subscribers = append(subscribers, *subscriberModelToDomain(&models[i]))
	}
	return subscribers, nil
}

func (r *GormSubscriberRepo) OpenedAny(ctx context.Context, subscriberIDs []int64, campaignIDs []int64) (map[int64]bool, error) {
	opened := make(map[int64]bool)
	if len(subscriberIDs) == 0 || len(campaignIDs) == 0 {
		return opened, nil
	}

	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&CampaignOpenModel{}).
		Distinct("subscriber_id").
		Where("campaign_id IN ? AND subscriber_id IN ?", campaignIDs, subscriberIDs).
		Pluck("subscriber_id", &ids).Error
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		opened[id] = true
	}
	return opened, nil
}
