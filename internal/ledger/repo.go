package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
)

// Repository persists projects and their ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	FindProjectForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateProjectBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, transaction *models.LedgerTransaction) error
	ListTransactions(ctx context.Context, projectID uuid.UUID, limit int) ([]models.LedgerTransaction, error)
	SumTransactions(ctx context.Context, projectID uuid.UUID) (decimal.Decimal, error)
	FindDebitByOrder(ctx context.Context, orderID uuid.UUID) (*models.LedgerTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
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

// FindProjectForUpdate takes a row lock on the project so concurrent debits
// serialize instead of double-spending.
func (r *repository) FindProjectForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) UpdateProjectBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("balance", balance).Error
}

func (r *repository) CreateTransaction(ctx context.Context, transaction *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) ListTransactions(ctx context.Context, projectID uuid.UUID, limit int) ([]models.LedgerTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var transactions []models.LedgerTransaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repository) SumTransactions(ctx context.Context, projectID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Where("project_id = ?", projectID).
		Select("SUM(amount)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// FindDebitByOrder returns the deduction recorded for an order, if any.
func (r *repository) FindDebitByOrder(ctx context.Context, orderID uuid.UUID) (*models.LedgerTransaction, error) {
	var transaction models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("amount < 0").
		Order("created_at ASC").
		First(&transaction).Error
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}
