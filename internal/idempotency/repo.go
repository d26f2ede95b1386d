package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
)

// Repository persists idempotency records keyed by the caller-provided key.
type Repository interface {
	Insert(ctx context.Context, record *models.IdempotencyRecord) error
	FindByKey(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	StoreResult(ctx context.Context, key string, result json.RawMessage) error
	DeleteByKey(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an idempotency repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, record *models.IdempotencyRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) StoreResult(ctx context.Context, key string, result json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(map[string]any{
			"result":    result,
			"completed": true,
		}).Error
}

func (r *repository) DeleteByKey(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&models.IdempotencyRecord{}).Error
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
