package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/internal/audit"
	"github.com/temirbekov/mealdesk-backend/internal/notify"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
	"github.com/temirbekov/mealdesk-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines money movements on project balances. Every mutation goes
// through here; nothing else writes the balance column.
type Service interface {
	Debit(ctx context.Context, input DebitInput) (*models.LedgerTransaction, error)
	Credit(ctx context.Context, input CreditInput) (*models.LedgerTransaction, error)
	HasSufficientBudget(ctx context.Context, projectID uuid.UUID, amount decimal.Decimal) (bool, error)
	VerifyIntegrity(ctx context.Context, projectID uuid.UUID) error
	ListTransactions(ctx context.Context, projectID uuid.UUID, limit int) ([]models.LedgerTransaction, error)
	FindDebitByOrder(ctx context.Context, orderID uuid.UUID) (*models.LedgerTransaction, error)
}

// DebitInput captures a balance deduction request.
type DebitInput struct {
	ProjectID      uuid.UUID
	ActorProjectID uuid.UUID
	Amount         decimal.Decimal
	Type           enums.LedgerTransactionType
	Description    string
	OrderID        *uuid.UUID
}

// CreditInput captures a balance top-up or refund request.
type CreditInput struct {
	ProjectID      uuid.UUID
	ActorProjectID uuid.UUID
	Amount         decimal.Decimal
	Type           enums.LedgerTransactionType
	Description    string
	OrderID        *uuid.UUID
	InvoiceNo      *string
}

type service struct {
	repo       Repository
	tx         txRunner
	metrics    *metrics.LedgerMetrics
	audit      audit.Recorder
	notifier   notify.Notifier
	maxRetries int
	backoff    time.Duration
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Metrics    *metrics.LedgerMetrics
	Audit      audit.Recorder
	Notifier   notify.Notifier
	MaxRetries int
	Backoff    time.Duration
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		params.Audit = audit.Nop{}
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop{}
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 3
	}
	if params.Backoff <= 0 {
		params.Backoff = 50 * time.Millisecond
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		metrics:    params.Metrics,
		audit:      params.Audit,
		notifier:   params.Notifier,
		maxRetries: params.MaxRetries,
		backoff:    params.Backoff,
	}, nil
}

func (s *service) Debit(ctx context.Context, input DebitInput) (*models.LedgerTransaction, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if input.ActorProjectID != input.ProjectID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "project does not belong to actor")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	if !input.Type.IsValid() || input.Type.IsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid debit transaction type")
	}

	started := time.Now()
	var transaction *models.LedgerTransaction
	var balanceBefore, balanceAfter decimal.Decimal

	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			project, err := repo.FindProjectForUpdate(ctx, input.ProjectID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock project row")
			}

			newBalance := project.Balance.Sub(input.Amount)
			floor := project.OverdraftLimit.Neg()
			if newBalance.LessThan(floor) {
				if project.OverdraftLimit.IsPositive() {
					return pkgerrors.New(pkgerrors.CodeOverdraftExceeded, "debit exceeds overdraft limit").
						WithDetails(map[string]string{
							"balance":         project.Balance.StringFixed(2),
							"overdraft_limit": project.OverdraftLimit.StringFixed(2),
							"amount":          input.Amount.StringFixed(2),
						})
				}
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient project balance").
					WithDetails(map[string]string{
						"balance": project.Balance.StringFixed(2),
						"amount":  input.Amount.StringFixed(2),
					})
			}

			record := &models.LedgerTransaction{
				ProjectID:    project.ID,
				Type:         input.Type,
				Amount:       input.Amount.Neg(),
				BalanceAfter: newBalance,
				OrderID:      input.OrderID,
				Description:  input.Description,
			}
			if err := repo.CreateTransaction(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger transaction")
			}
			if err := repo.UpdateProjectBalance(ctx, project.ID, newBalance); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project balance")
			}

			transaction = record
			balanceBefore = project.Balance
			balanceAfter = newBalance
			return nil
		})
		if err != nil && isLockConflict(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	s.metrics.ObserveDuration(string(input.Type), time.Since(started))
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.metrics.IncOperation(string(input.Type))
	s.audit.Record(ctx, audit.Entry{
		Action:     "ledger.debit",
		EntityType: "project",
		EntityID:   input.ProjectID.String(),
		OldValue:   balanceBefore.StringFixed(2),
		NewValue:   balanceAfter.StringFixed(2),
	})
	if balanceAfter.IsNegative() {
		s.notifier.LowBalance(ctx, input.ProjectID, balanceAfter)
	}
	return transaction, nil
}

func (s *service) Credit(ctx context.Context, input CreditInput) (*models.LedgerTransaction, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if input.ActorProjectID != input.ProjectID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "project does not belong to actor")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if !input.Type.IsValid() || !input.Type.IsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit transaction type")
	}

	started := time.Now()
	var transaction *models.LedgerTransaction
	var balanceBefore, balanceAfter decimal.Decimal

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		project, err := repo.FindProjectForUpdate(ctx, input.ProjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock project row")
		}

		newBalance := project.Balance.Add(input.Amount)
		record := &models.LedgerTransaction{
			ProjectID:    project.ID,
			Type:         input.Type,
			Amount:       input.Amount,
			BalanceAfter: newBalance,
			OrderID:      input.OrderID,
			InvoiceNo:    input.InvoiceNo,
			Description:  input.Description,
		}
		if err := repo.CreateTransaction(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger transaction")
		}
		if err := repo.UpdateProjectBalance(ctx, project.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project balance")
		}

		transaction = record
		balanceBefore = project.Balance
		balanceAfter = newBalance
		return nil
	})
	s.metrics.ObserveDuration(string(input.Type), time.Since(started))
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.metrics.IncOperation(string(input.Type))
	s.audit.Record(ctx, audit.Entry{
		Action:     "ledger.credit",
		EntityType: "project",
		EntityID:   input.ProjectID.String(),
		OldValue:   balanceBefore.StringFixed(2),
		NewValue:   balanceAfter.StringFixed(2),
	})
	return transaction, nil
}

// HasSufficientBudget is advisory only. The answer can go stale before the
// caller acts on it; Debit re-checks under the row lock.
func (s *service) HasSufficientBudget(ctx context.Context, projectID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if projectID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if !amount.IsPositive() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	project, err := s.repo.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	floor := project.OverdraftLimit.Neg()
	return !project.Balance.Sub(amount).LessThan(floor), nil
}

// VerifyIntegrity folds the full transaction history from zero and compares
// it with the stored balance. A mismatch is surfaced, never auto-corrected.
func (s *service) VerifyIntegrity(ctx context.Context, projectID uuid.UUID) error {
	if projectID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	project, err := s.repo.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	sum, err := s.repo.SumTransactions(ctx, projectID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger transactions")
	}
	if !sum.Equal(project.Balance) {
		return pkgerrors.New(pkgerrors.CodeBalanceIntegrityMismatch, "ledger history does not fold to stored balance").
			WithDetails(map[string]string{
				"stored_balance": project.Balance.StringFixed(2),
				"ledger_sum":     sum.StringFixed(2),
			})
	}
	return nil
}

func (s *service) ListTransactions(ctx context.Context, projectID uuid.UUID, limit int) ([]models.LedgerTransaction, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	transactions, err := s.repo.ListTransactions(ctx, projectID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger transactions")
	}
	return transactions, nil
}

// FindDebitByOrder reports the deduction backing an order. Returns NotFound
// when the order never moved money.
func (s *service) FindDebitByOrder(ctx context.Context, orderID uuid.UUID) (*models.LedgerTransaction, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	transaction, err := s.repo.FindDebitByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no debit recorded for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load debit for order")
	}
	return transaction, nil
}

func (s *service) recordRejection(err error) {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds):
		s.metrics.IncRejection("insufficient_funds")
	case pkgerrors.HasCode(err, pkgerrors.CodeOverdraftExceeded):
		s.metrics.IncRejection("overdraft_exceeded")
	case pkgerrors.HasCode(err, pkgerrors.CodeForbidden):
		s.metrics.IncRejection("forbidden")
	default:
		s.metrics.IncRejection("error")
	}
}

// Postgres aborts one of two contending transactions with a serialization,
// deadlock or lock-timeout error. Those are safe to retry from scratch.
func isLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
