package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	projects := `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  company_id TEXT NOT NULL,
  name TEXT NOT NULL,
  balance TEXT NOT NULL,
  overdraft_limit TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'KGS',
  cutoff_time TEXT NOT NULL DEFAULT '14:00',
  timezone TEXT NOT NULL DEFAULT 'Asia/Bishkek',
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS ledger_transactions (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  balance_after TEXT NOT NULL,
  order_id TEXT,
  invoice_no TEXT,
  description TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(projects).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func seedProject(t *testing.T, db *gorm.DB, balance, overdraft string) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:             uuid.New(),
		CompanyID:      uuid.New(),
		Name:           "Osh Branch",
		Balance:        decimal.RequireFromString(balance),
		OverdraftLimit: decimal.RequireFromString(overdraft),
		Currency:       enums.CurrencyKGS,
		CutoffTime:     "14:00",
		Timezone:       "Asia/Bishkek",
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

func TestRepository_FindProjectForUpdate(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	project := seedProject(t, db, "500", "0")

	got, err := repo.FindProjectForUpdate(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("500")))

	_, err = repo.FindProjectForUpdate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_TransactionsRoundTrip(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	project := seedProject(t, db, "1000", "0")

	first := &models.LedgerTransaction{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		Type:         enums.LedgerTransactionTypeDeposit,
		Amount:       decimal.RequireFromString("1000"),
		BalanceAfter: decimal.RequireFromString("1000"),
		Description:  "initial deposit",
	}
	second := &models.LedgerTransaction{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		Type:         enums.LedgerTransactionTypeLunchDeduction,
		Amount:       decimal.RequireFromString("-250"),
		BalanceAfter: decimal.RequireFromString("750"),
		Description:  "lunch order",
	}
	require.NoError(t, repo.CreateTransaction(ctx, first))
	require.NoError(t, repo.CreateTransaction(ctx, second))

	listed, err := repo.ListTransactions(ctx, project.ID, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	limited, err := repo.ListTransactions(ctx, project.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	sum, err := repo.SumTransactions(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("750")))

	empty, err := repo.SumTransactions(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestRepository_UpdateProjectBalance(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	project := seedProject(t, db, "1000", "0")

	require.NoError(t, repo.UpdateProjectBalance(ctx, project.ID, decimal.RequireFromString("640.50")))

	got, err := repo.FindProject(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("640.50")))
}

// Full service pass against a real database: debit, reject, credit.
func TestService_EndToEnd(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(ServiceParams{Repo: repo, Tx: gormTxRunner{db: db}})
	require.NoError(t, err)

	ctx := context.Background()
	project := seedProject(t, db, "0", "0")

	_, err = svc.Credit(ctx, CreditInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		Amount:         decimal.RequireFromString("1000"),
		Type:           enums.LedgerTransactionTypeDeposit,
		Description:    "initial deposit",
	})
	require.NoError(t, err)

	debit, err := svc.Debit(ctx, DebitInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		Amount:         decimal.RequireFromString("300"),
		Type:           enums.LedgerTransactionTypeLunchDeduction,
		Description:    "lunch order",
	})
	require.NoError(t, err)
	assert.True(t, debit.BalanceAfter.Equal(decimal.RequireFromString("700")))

	_, err = svc.Debit(ctx, DebitInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		Amount:         decimal.RequireFromString("800"),
		Type:           enums.LedgerTransactionTypeLunchDeduction,
		Description:    "lunch order",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	stored, err := repo.FindProject(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("700")), "failed debit must roll back")

	credit, err := svc.Credit(ctx, CreditInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		Amount:         decimal.RequireFromString("100"),
		Type:           enums.LedgerTransactionTypeDeposit,
		Description:    "monthly top-up",
	})
	require.NoError(t, err)
	assert.True(t, credit.BalanceAfter.Equal(decimal.RequireFromString("800")))

	require.NoError(t, svc.VerifyIntegrity(ctx, project.ID))

	transactions, err := svc.ListTransactions(ctx, project.ID, 0)
	require.NoError(t, err)
	assert.Len(t, transactions, 3, "only committed operations leave a ledger record")
}

func TestService_VerifyIntegrityDetectsDrift(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(ServiceParams{Repo: repo, Tx: gormTxRunner{db: db}})
	require.NoError(t, err)

	ctx := context.Background()
	project := seedProject(t, db, "0", "0")

	_, err = svc.Credit(ctx, CreditInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		Amount:         decimal.RequireFromString("500"),
		Type:           enums.LedgerTransactionTypeDeposit,
		Description:    "deposit",
	})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyIntegrity(ctx, project.ID))

	// Simulate a balance written outside the ledger path.
	require.NoError(t, db.Model(&models.Project{}).
		Where("id = ?", project.ID).
		Update("balance", "9999").Error)

	err = svc.VerifyIntegrity(ctx, project.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBalanceIntegrityMismatch))
}
