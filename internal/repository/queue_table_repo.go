package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/sendqueue/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLSTATE undefined_table.
const undefinedTableCode = "42P01"

// QueueTableRepository owns the DDL and rows of per-campaign queue tables.
// A nil dueAt selects all rows; otherwise only rows with send_at <= dueAt.
type QueueTableRepository interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, schema domain.QueueTableSchema) error
	DropTable(ctx context.Context, schema domain.QueueTableSchema) error
	Insert(ctx context.Context, schema domain.QueueTableSchema, entries []domain.QueueEntry) error
	Delete(ctx context.Context, schema domain.QueueTableSchema, subscriberIDs []int64) error
	Count(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time) (int64, error)
	FindSubscriberIDs(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time, offset, limit int) ([]int64, error)
}

type GormQueueTableRepo struct {
	db *gorm.DB
}

func NewGormQueueTableRepo(db *gorm.DB) *GormQueueTableRepo {
	return &GormQueueTableRepo{db: db}
}

func (r *GormQueueTableRepo) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = CURRENT_SCHEMA() AND table_name = ?)`, table).
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("failed to check queue table %q: %w", table, err)
	}
	return exists, nil
}

func (r *GormQueueTableRepo) CreateTable(ctx context.Context, schema domain.QueueTableSchema) error {
	return r.execAll(ctx, schema.CreateStatements())
}

func (r *GormQueueTableRepo) DropTable(ctx context.Context, schema domain.QueueTableSchema) error {
	return r.execAll(ctx, schema.DropStatements())
}

func (r *GormQueueTableRepo) execAll(ctx context.Context, statements []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sql := range statements {
			if err := tx.Exec(sql).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Insert adds entries, silently skipping subscribers already queued.
func (r *GormQueueTableRepo) Insert(ctx context.Context, schema domain.QueueTableSchema, entries []domain.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if err := schema.Validate(e); err != nil {
			return err
		}
		rows = append(rows, schema.Row(e))
	}

	err := r.db.WithContext(ctx).
		Table(schema.Name).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	return translateTableErr(schema, err)
}

func (r *GormQueueTableRepo) Delete(ctx context.Context, schema domain.QueueTableSchema, subscriberIDs []int64) error {
	if len(subscriberIDs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Exec(fmt.Sprintf(`DELETE FROM %q WHERE subscriber_id IN ?`, schema.Name), subscriberIDs).
		Error
	return translateTableErr(schema, err)
}

func (r *GormQueueTableRepo) Count(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time) (int64, error) {
	var count int64
	if err := r.scoped(ctx, schema, dueAt).Count(&count).Error; err != nil {
		return 0, translateTableErr(schema, err)
	}
	return count, nil
}

func (r *GormQueueTableRepo) FindSubscriberIDs(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time, offset, limit int) ([]int64, error) {
	var ids []int64
	err := r.scoped(ctx, schema, dueAt).
		Order("subscriber_id ASC").
		Offset(offset).
		Limit(limit).
		Pluck("subscriber_id", &ids).Error
	if err != nil {
		return nil, translateTableErr(schema, err)
	}
	return ids, nil
}

func (r *GormQueueTableRepo) scoped(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time) *gorm.DB {
	query := r.db.WithContext(ctx).Table(schema.Name)
	if schema.Kind == domain.QueueKindAutoresponder && dueAt != nil {
		query = query.Where("send_at <= ?", *dueAt)
	}
	return query
}

// translateTableErr maps a dropped or never created queue table to
// domain.ErrQueueTableMissing.
func translateTableErr(schema domain.QueueTableSchema, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		return fmt.Errorf("%w: %s: %v", domain.ErrQueueTableMissing, schema.Name, err)
	}
	return err
}
