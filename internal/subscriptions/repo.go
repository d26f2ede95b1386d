package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// Repository persists subscriptions and derives counters from order rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByEmployee(ctx context.Context, employeeID uuid.UUID) (*models.Subscription, error)
	Create(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]models.Subscription, error)
	ListActive(ctx context.Context, limit int) ([]models.Subscription, error)
	CountOrders(ctx context.Context, subscriptionID uuid.UUID) (int64, error)
	CountFutureOrders(ctx context.Context, subscriptionID uuid.UUID, from time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscriptions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByEmployee(ctx context.Context, employeeID uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// ListExpired returns non-terminal subscriptions whose end date has passed.
func (r *repository) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("status <> ?", enums.SubscriptionStatusCompleted).
		Where("end_date IS NOT NULL AND end_date < ?", asOf).
		Order("end_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subscriptions []models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repository) ListActive(ctx context.Context, limit int) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusActive).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subscriptions []models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repository) CountOrders(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("subscription_id = ?", subscriptionID).
		Where("status <> ?", enums.OrderStatusCancelled).
		Count(&count).Error
	return count, err
}

func (r *repository) CountFutureOrders(ctx context.Context, subscriptionID uuid.UUID, from time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("subscription_id = ?", subscriptionID).
		Where("order_date >= ?", from).
		Where("status = ?", enums.OrderStatusActive).
		Count(&count).Error
	return count, err
}
