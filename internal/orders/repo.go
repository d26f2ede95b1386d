package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByEmployeeAndDate(ctx context.Context, employeeID uuid.UUID, date time.Time) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Where("order_date = ?", date).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("order_date ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListByProjectAndDate(ctx context.Context, projectID uuid.UUID, date time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("order_date = ?", date).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CountFrozenInWindow counts the employee's orders frozen inside [from, to).
// Cancelled orders keep their freeze timestamp and still consume quota.
func (r *repository) CountFrozenInWindow(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("employee_id = ?", employeeID).
		Where("frozen_at IS NOT NULL").
		Where("frozen_at >= ? AND frozen_at < ?", from, to).
		Count(&count).Error
	return int(count), err
}

// statusTargets is the order state machine: everything not listed is rejected.
var statusTargets = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusActive: {
		enums.OrderStatusPaused,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaused: {
		enums.OrderStatusActive,
		enums.OrderStatusCancelled,
	},
}

// CanTransition reports whether the order machine allows current → target.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, allowed := range statusTargets[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the transitions available from the given status.
func AllowedTargets(current enums.OrderStatus) []string {
	targets := statusTargets[current]
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		names = append(names, string(target))
	}
	return names
}
