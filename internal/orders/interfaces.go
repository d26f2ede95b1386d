package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
)

// Repository persists orders and resolves the project rows that gate them.
// CountFrozenInWindow doubles as the policy package's frozen counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByEmployeeAndDate(ctx context.Context, employeeID uuid.UUID, date time.Time) (*models.Order, error)
	FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error)
	ListByProjectAndDate(ctx context.Context, projectID uuid.UUID, date time.Time) ([]models.Order, error)
	CountFrozenInWindow(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (int, error)
}
