package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/internal/idempotency"
	"github.com/temirbekov/mealdesk-backend/internal/ledger"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
)

type stubOrdersRepo struct {
	project       *models.Project
	orders        map[uuid.UUID]*models.Order
	subscriptions map[uuid.UUID]*models.Subscription
}

func newStubOrdersRepo(project *models.Project) *stubOrdersRepo {
	return &stubOrdersRepo{
		project:       project,
		orders:        map[uuid.UUID]*models.Order{},
		subscriptions: map[uuid.UUID]*models.Subscription{},
	}
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByEmployeeAndDate(ctx context.Context, employeeID uuid.UUID, date time.Time) (*models.Order, error) {
	for _, order := range s.orders {
		if order.EmployeeID != nil && *order.EmployeeID == employeeID && order.OrderDate.Equal(date) {
			copied := *order
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if s.project == nil || s.project.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.project
	return &copied, nil
}

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *stubOrdersRepo) Update(ctx context.Context, order *models.Order) error {
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *stubOrdersRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.SubscriptionID != nil && *order.SubscriptionID == subscriptionID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) ListByProjectAndDate(ctx context.Context, projectID uuid.UUID, date time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.ProjectID == projectID && order.OrderDate.Equal(date) {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) CountFrozenInWindow(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (int, error) {
	count := 0
	for _, order := range s.orders {
		if order.EmployeeID == nil || *order.EmployeeID != employeeID || order.FrozenAt == nil {
			continue
		}
		if !order.FrozenAt.Before(from) && order.FrozenAt.Before(to) {
			count++
		}
	}
	return count, nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

// fakeLedger records debits and credits without touching a balance.
type fakeLedger struct {
	debits    []ledger.DebitInput
	credits   []ledger.CreditInput
	creditErr error // consumed by the next Credit call
}

func (f *fakeLedger) Debit(ctx context.Context, input ledger.DebitInput) (*models.LedgerTransaction, error) {
	f.debits = append(f.debits, input)
	return &models.LedgerTransaction{ID: uuid.New(), ProjectID: input.ProjectID, Amount: input.Amount.Neg()}, nil
}

func (f *fakeLedger) Credit(ctx context.Context, input ledger.CreditInput) (*models.LedgerTransaction, error) {
	if f.creditErr != nil {
		err := f.creditErr
		f.creditErr = nil
		return nil, err
	}
	f.credits = append(f.credits, input)
	return &models.LedgerTransaction{ID: uuid.New(), ProjectID: input.ProjectID, Amount: input.Amount}, nil
}

func (f *fakeLedger) HasSufficientBudget(ctx context.Context, projectID uuid.UUID, amount decimal.Decimal) (bool, error) {
	return true, nil
}

func (f *fakeLedger) VerifyIntegrity(ctx context.Context, projectID uuid.UUID) error {
	return nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, projectID uuid.UUID, limit int) ([]models.LedgerTransaction, error) {
	return nil, nil
}

func (f *fakeLedger) FindDebitByOrder(ctx context.Context, orderID uuid.UUID) (*models.LedgerTransaction, error) {
	for _, debit := range f.debits {
		if debit.OrderID != nil && *debit.OrderID == orderID {
			return &models.LedgerTransaction{
				ID:        uuid.New(),
				ProjectID: debit.ProjectID,
				Amount:    debit.Amount.Neg(),
				OrderID:   debit.OrderID,
			}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no debit recorded for order")
}

// fakeGuard caches results per key, imitating the insert-or-fetch guard.
type fakeGuard struct {
	results map[string]json.RawMessage
}

var _ idempotency.Guard = (*fakeGuard)(nil)

func newFakeGuard() *fakeGuard {
	return &fakeGuard{results: map[string]json.RawMessage{}}
}

func (g *fakeGuard) ExecuteOnce(ctx context.Context, key string, ttl time.Duration, op idempotency.Operation) (json.RawMessage, bool, error) {
	if cached, ok := g.results[key]; ok {
		return cached, true, nil
	}
	result, err := op(ctx)
	if err != nil {
		return nil, false, err
	}
	g.results[key] = result
	return result, false, nil
}

func (g *fakeGuard) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// fakeExtender applies freeze day arithmetic against the repo's stored
// subscription, mirroring the real subscriptions service.
type fakeExtender struct {
	repo *stubOrdersRepo
}

func (f *fakeExtender) ApplyFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error) {
	subscription, ok := f.repo.subscriptions[subscriptionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if subscription.OriginalEndDate == nil {
		original := *subscription.EndDate
		subscription.OriginalEndDate = &original
	}
	extended := subscription.EndDate.AddDate(0, 0, 1)
	subscription.EndDate = &extended
	subscription.FrozenDaysCount++
	copied := *subscription
	return &copied, nil
}

func (f *fakeExtender) RevertFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error) {
	subscription, ok := f.repo.subscriptions[subscriptionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	shortened := subscription.EndDate.AddDate(0, 0, -1)
	subscription.EndDate = &shortened
	subscription.FrozenDaysCount--
	if subscription.FrozenDaysCount == 0 && subscription.OriginalEndDate != nil {
		restored := *subscription.OriginalEndDate
		subscription.EndDate = &restored
		subscription.OriginalEndDate = nil
	}
	copied := *subscription
	return &copied, nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo    *stubOrdersRepo
	ledger  *fakeLedger
	guard   *fakeGuard
	svc     Service
	project *models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	project := &models.Project{
		ID:             uuid.New(),
		CompanyID:      uuid.New(),
		Name:           "Bishkek HQ",
		Balance:        decimal.RequireFromString("10000"),
		OverdraftLimit: decimal.Zero,
		Currency:       enums.CurrencyKGS,
		CutoffTime:     "14:00",
		Timezone:       "UTC",
	}
	repo := newStubOrdersRepo(project)
	lg := &fakeLedger{}
	guard := newFakeGuard()
	svc, err := NewService(ServiceParams{
		Repo:          repo,
		Tx:            stubTx{},
		Ledger:        lg,
		Guard:         guard,
		Subscriptions: &fakeExtender{repo: repo},
	})
	require.NoError(t, err)
	return &fixture{repo: repo, ledger: lg, guard: guard, svc: svc, project: project}
}

func (f *fixture) seedSubscription(end time.Time) *models.Subscription {
	subscription := &models.Subscription{
		ID:         uuid.New(),
		EmployeeID: uuid.New(),
		ProjectID:  f.project.ID,
		ComboType:  "standard",
		Status:     enums.SubscriptionStatusActive,
		StartDate:  date(2026, time.March, 1),
		EndDate:    &end,
	}
	f.repo.subscriptions[subscription.ID] = subscription
	return subscription
}

func (f *fixture) seedOrder(subscription *models.Subscription, day time.Time) *models.Order {
	employeeID := subscription.EmployeeID
	order := &models.Order{
		ID:             uuid.New(),
		ProjectID:      f.project.ID,
		SubscriptionID: &subscription.ID,
		EmployeeID:     &employeeID,
		ComboType:      subscription.ComboType,
		Price:          decimal.RequireFromString("350"),
		Currency:       enums.CurrencyKGS,
		Status:         enums.OrderStatusActive,
		OrderDate:      day,
	}
	f.repo.orders[order.ID] = order
	return order
}

// Noon well before the 14:00 cutoff.
func noon(day time.Time) time.Time {
	return day.Add(12 * time.Hour)
}

func TestService_FreezeDisplacement(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	order := f.seedOrder(subscription, date(2026, time.March, 10))
	reason := "business trip"

	result, err := f.svc.Freeze(context.Background(), FreezeInput{
		OrderID:        order.ID,
		Reason:         &reason,
		ActorProjectID: f.project.ID,
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)

	frozen := result.Order
	assert.Equal(t, enums.OrderStatusPaused, frozen.Status)
	require.NotNil(t, frozen.FrozenAt)
	require.NotNil(t, frozen.FreezeReason)
	assert.Equal(t, reason, *frozen.FreezeReason)
	require.NotNil(t, frozen.ReplacementOrderID)

	replacement := result.Replacement
	assert.Equal(t, *frozen.ReplacementOrderID, replacement.ID)
	assert.Equal(t, date(2026, time.April, 1), replacement.OrderDate)
	assert.Equal(t, frozen.ComboType, replacement.ComboType)
	assert.True(t, replacement.Price.Equal(frozen.Price))
	assert.Equal(t, enums.OrderStatusActive, replacement.Status)

	updated := result.Subscription
	assert.Equal(t, date(2026, time.April, 1), *updated.EndDate)
	assert.Equal(t, date(2026, time.March, 31), *updated.OriginalEndDate)
	assert.Equal(t, 1, updated.FrozenDaysCount)

	// No money moves on freeze.
	assert.Empty(t, f.ledger.debits)
	assert.Empty(t, f.ledger.credits)
}

func TestService_FreezeQuota(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))

	// Monday 2026-03-09 through Wednesday, same calendar week.
	first := f.seedOrder(subscription, date(2026, time.March, 10))
	second := f.seedOrder(subscription, date(2026, time.March, 11))
	third := f.seedOrder(subscription, date(2026, time.March, 12))
	ctx := context.Background()

	_, err := f.svc.Freeze(ctx, FreezeInput{OrderID: first.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.NoError(t, err)
	_, err = f.svc.Freeze(ctx, FreezeInput{OrderID: second.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.NoError(t, err)

	_, err = f.svc.Freeze(ctx, FreezeInput{OrderID: third.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeFreezeLimitExceeded))

	// The quota resets the following Monday.
	fourth := f.seedOrder(subscription, date(2026, time.March, 17))
	_, err = f.svc.Freeze(ctx, FreezeInput{OrderID: fourth.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 16))})
	require.NoError(t, err)
}

func TestService_FreezeRejections(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	ctx := context.Background()

	t.Run("guest order", func(t *testing.T) {
		guestID := uuid.New()
		order := f.seedOrder(subscription, date(2026, time.March, 10))
		order.EmployeeID = nil
		order.GuestID = &guestID

		_, err := f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGuestCannotFreeze))
	})

	t.Run("past date", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 3))
		_, err := f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePastDateNotAllowed))
	})

	t.Run("cutoff passed for today", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 11))
		_, err := f.svc.Freeze(ctx, FreezeInput{
			OrderID:        order.ID,
			ActorProjectID: f.project.ID,
			Now:            date(2026, time.March, 11).Add(14 * time.Hour),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCutoffPassed))
	})

	t.Run("already frozen", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 12))
		_, err := f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
		require.NoError(t, err)

		_, err = f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyFrozen))
	})

	t.Run("cross-tenant", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 13))
		_, err := f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: uuid.New(), Now: noon(date(2026, time.March, 9))})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	})
}

func TestService_Unfreeze(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	order := f.seedOrder(subscription, date(2026, time.March, 10))
	ctx := context.Background()

	result, err := f.svc.Freeze(ctx, FreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.NoError(t, err)

	restored, err := f.svc.Unfreeze(ctx, UnfreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusActive, restored.Status)
	assert.Nil(t, restored.FrozenAt)
	assert.Nil(t, restored.FreezeReason)
	assert.Nil(t, restored.ReplacementOrderID)

	replacement := f.repo.orders[result.Replacement.ID]
	assert.Equal(t, enums.OrderStatusCancelled, replacement.Status)

	updated := f.repo.subscriptions[subscription.ID]
	assert.Equal(t, date(2026, time.March, 31), *updated.EndDate)
	assert.Equal(t, 0, updated.FrozenDaysCount)
	assert.Nil(t, updated.OriginalEndDate)
}

func TestService_UnfreezeRequiresFrozen(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	order := f.seedOrder(subscription, date(2026, time.March, 10))

	_, err := f.svc.Unfreeze(context.Background(), UnfreezeInput{OrderID: order.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFrozen))
}

func TestService_TransitionMachine(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	ctx := context.Background()
	now := noon(date(2026, time.March, 9))

	t.Run("round trip active paused active", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 10))

		paused, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusPaused, ActorProjectID: f.project.ID, Now: now})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusPaused, paused.Status)

		resumed, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusActive, ActorProjectID: f.project.ID, Now: now})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusActive, resumed.Status)
	})

	t.Run("terminal states reject everything", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 11))
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusCompleted, ActorProjectID: f.project.ID, Now: now})
		require.NoError(t, err)

		_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusActive, ActorProjectID: f.project.ID, Now: now})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

		dump := pkgerrors.As(err)
		require.NotNil(t, dump)
		details, ok := dump.Details().(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []string{}, details["allowed"])
	})

	t.Run("paused cannot complete", func(t *testing.T) {
		order := f.seedOrder(subscription, date(2026, time.March, 12))
		order.Status = enums.OrderStatusPaused

		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Target: enums.OrderStatusCompleted, ActorProjectID: f.project.ID, Now: now})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
	})
}

func TestService_CancelRefundsDebitedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateLunchOrder(ctx, CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 10),
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)
	require.Len(t, f.ledger.debits, 1)

	cancelled, err := f.svc.Cancel(ctx, CancelInput{
		OrderID:        created.ID,
		ActorProjectID: f.project.ID,
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	require.Len(t, f.ledger.credits, 1)
	refund := f.ledger.credits[0]
	assert.Equal(t, enums.LedgerTransactionTypeRefund, refund.Type)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("350")))

	// A retried cancel replays through the guard and must not refund again.
	again, err := f.svc.Cancel(ctx, CancelInput{OrderID: created.ID, ActorProjectID: f.project.ID, Now: noon(date(2026, time.March, 9))})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, again.Status)
	assert.Len(t, f.ledger.credits, 1)
}

func TestService_CancelRetryPostsRefundAfterCreditFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateLunchOrder(ctx, CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 10),
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)

	// The cancellation commits but the compensating credit fails once.
	f.ledger.creditErr = pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")
	_, err = f.svc.Cancel(ctx, CancelInput{
		OrderID:        created.ID,
		ActorProjectID: f.project.ID,
		Now:            noon(date(2026, time.March, 9)),
	})
	require.Error(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, f.repo.orders[created.ID].Status)
	assert.Empty(t, f.ledger.credits)

	// Retrying the cancel drives the unposted refund to completion.
	cancelled, err := f.svc.Cancel(ctx, CancelInput{
		OrderID:        created.ID,
		ActorProjectID: f.project.ID,
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Len(t, f.ledger.credits, 1)
	assert.Equal(t, enums.LedgerTransactionTypeRefund, f.ledger.credits[0].Type)
	assert.True(t, f.ledger.credits[0].Amount.Equal(decimal.RequireFromString("350")))
}

func TestService_CancelWithoutDebitSkipsRefund(t *testing.T) {
	f := newFixture(t)
	subscription := f.seedSubscription(date(2026, time.March, 31))
	order := f.seedOrder(subscription, date(2026, time.March, 10))

	_, err := f.svc.Cancel(context.Background(), CancelInput{
		OrderID:        order.ID,
		ActorProjectID: f.project.ID,
		Now:            noon(date(2026, time.March, 9)),
	})
	require.NoError(t, err)
	assert.Empty(t, f.ledger.credits)
}

func TestService_FallsBackToConfiguredCutoff(t *testing.T) {
	project := &models.Project{
		ID:             uuid.New(),
		CompanyID:      uuid.New(),
		Name:           "Bishkek HQ",
		Balance:        decimal.RequireFromString("10000"),
		OverdraftLimit: decimal.Zero,
		Currency:       enums.CurrencyKGS,
	}
	repo := newStubOrdersRepo(project)
	svc, err := NewService(ServiceParams{
		Repo:            repo,
		Tx:              stubTx{},
		Ledger:          &fakeLedger{},
		Guard:           newFakeGuard(),
		Subscriptions:   &fakeExtender{repo: repo},
		DefaultCutoff:   "14:00",
		DefaultTimezone: "UTC",
	})
	require.NoError(t, err)

	// The project row carries no cutoff of its own; 15:00 is past the
	// configured default.
	_, err = svc.CreateLunchOrder(context.Background(), CreateLunchOrderInput{
		ProjectID:      project.ID,
		ActorProjectID: project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 9),
		Now:            date(2026, time.March, 9).Add(15 * time.Hour),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCutoffPassed))
}

func TestService_CreateLunchOrderIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 10),
		Now:            noon(date(2026, time.March, 9)),
	}

	first, err := f.svc.CreateLunchOrder(ctx, input)
	require.NoError(t, err)

	second, err := f.svc.CreateLunchOrder(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "retry replays the same order")
	assert.Len(t, f.ledger.debits, 1, "retry must not debit twice")
}

func TestService_CreateGuestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invoice := "INV-1042"

	input := CreateGuestOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		GuestID:        uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("420"),
		OrderDate:      date(2026, time.March, 10),
		InvoiceNo:      &invoice,
		Now:            noon(date(2026, time.March, 9)),
	}

	order, err := f.svc.CreateGuestOrder(ctx, input)
	require.NoError(t, err)
	assert.True(t, order.IsGuest())
	require.Len(t, f.ledger.debits, 1)
	assert.Equal(t, enums.LedgerTransactionTypeGuestOrder, f.ledger.debits[0].Type)

	// Same invoice and amount replays.
	replayed, err := f.svc.CreateGuestOrder(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, order.ID, replayed.ID)
	assert.Len(t, f.ledger.debits, 1)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := noon(date(2026, time.March, 9))

	_, err := f.svc.CreateLunchOrder(ctx, CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: uuid.New(),
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 10),
		Now:            now,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateLunchOrder(ctx, CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.Zero,
		OrderDate:      date(2026, time.March, 10),
		Now:            now,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateLunchOrder(ctx, CreateLunchOrderInput{
		ProjectID:      f.project.ID,
		ActorProjectID: f.project.ID,
		EmployeeID:     uuid.New(),
		ComboType:      "standard",
		Price:          decimal.RequireFromString("350"),
		OrderDate:      date(2026, time.March, 1),
		Now:            now,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePastDateNotAllowed))
}
