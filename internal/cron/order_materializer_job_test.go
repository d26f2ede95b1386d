package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/internal/orders"
	"github.com/temirbekov/mealdesk-backend/internal/subscriptions"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

type fakeSubscriptionsRepo struct {
	active  []models.Subscription
	expired []models.Subscription
	listErr error
}

func (f *fakeSubscriptionsRepo) WithTx(*gorm.DB) subscriptions.Repository { return f }

func (f *fakeSubscriptionsRepo) FindByID(context.Context, uuid.UUID) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionsRepo) FindByEmployee(context.Context, uuid.UUID) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionsRepo) Create(context.Context, *models.Subscription) error { return nil }
func (f *fakeSubscriptionsRepo) Update(context.Context, *models.Subscription) error { return nil }

func (f *fakeSubscriptionsRepo) ListExpired(context.Context, time.Time, int) ([]models.Subscription, error) {
	return f.expired, f.listErr
}

func (f *fakeSubscriptionsRepo) ListActive(context.Context, int) ([]models.Subscription, error) {
	return f.active, f.listErr
}

func (f *fakeSubscriptionsRepo) CountOrders(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeSubscriptionsRepo) CountFutureOrders(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

type fakeOrdersService struct {
	created   []orders.CreateLunchOrderInput
	failDates map[string]error
}

func (f *fakeOrdersService) CreateLunchOrder(_ context.Context, input orders.CreateLunchOrderInput) (*models.Order, error) {
	if err, ok := f.failDates[input.OrderDate.Format(time.DateOnly)]; ok {
		return nil, err
	}
	f.created = append(f.created, input)
	employeeID := input.EmployeeID
	return &models.Order{
		ID:         uuid.New(),
		ProjectID:  input.ProjectID,
		EmployeeID: &employeeID,
		OrderDate:  input.OrderDate,
		Price:      input.Price,
		Status:     enums.OrderStatusActive,
	}, nil
}

func (f *fakeOrdersService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "not used")
}

func (f *fakeOrdersService) Transition(context.Context, orders.TransitionInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (f *fakeOrdersService) Cancel(context.Context, orders.CancelInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (f *fakeOrdersService) Freeze(context.Context, orders.FreezeInput) (*orders.FreezeResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (f *fakeOrdersService) Unfreeze(context.Context, orders.UnfreezeInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (f *fakeOrdersService) CreateGuestOrder(context.Context, orders.CreateGuestOrderInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func materializerSubscription() models.Subscription {
	end := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	return models.Subscription{
		ID:           uuid.New(),
		EmployeeID:   uuid.New(),
		ProjectID:    uuid.New(),
		ComboType:    "standard",
		ComboPrice:   decimal.RequireFromString("250.00"),
		ScheduleType: enums.ScheduleTypeEveryDay,
		Status:       enums.SubscriptionStatusActive,
		StartDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      &end,
	}
}

func newMaterializerJob(t *testing.T, repo *fakeSubscriptionsRepo, svc *fakeOrdersService, now time.Time) Job {
	t.Helper()
	job, err := NewOrderMaterializerJob(OrderMaterializerJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "test"}),
		Subscriptions: repo,
		Orders:        svc,
		HorizonDays:   7,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewOrderMaterializerJob: %v", err)
	}
	return job
}

func TestOrderMaterializerCreatesWorkingDayOrders(t *testing.T) {
	// Monday; the subscription ends Thursday, so four working days remain.
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	sub := materializerSubscription()
	repo := &fakeSubscriptionsRepo{active: []models.Subscription{sub}}
	svc := &fakeOrdersService{}

	job := newMaterializerJob(t, repo, svc, now)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(svc.created) != 4 {
		t.Fatalf("expected 4 orders, got %d", len(svc.created))
	}
	wantDates := []string{"2026-03-09", "2026-03-10", "2026-03-11", "2026-03-12"}
	for i, input := range svc.created {
		if got := input.OrderDate.Format(time.DateOnly); got != wantDates[i] {
			t.Fatalf("order %d: expected date %s, got %s", i, wantDates[i], got)
		}
		if input.SubscriptionID == nil || *input.SubscriptionID != sub.ID {
			t.Fatalf("order %d not linked to subscription", i)
		}
		if input.EmployeeID != sub.EmployeeID {
			t.Fatalf("order %d: wrong employee", i)
		}
		if !input.Price.Equal(sub.ComboPrice) {
			t.Fatalf("order %d: expected price %s, got %s", i, sub.ComboPrice, input.Price)
		}
		if input.ActorProjectID != sub.ProjectID {
			t.Fatalf("order %d: actor must be the owning project", i)
		}
	}
}

func TestOrderMaterializerSkipsBusinessRejections(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	sub := materializerSubscription()
	repo := &fakeSubscriptionsRepo{active: []models.Subscription{sub}}
	svc := &fakeOrdersService{failDates: map[string]error{
		"2026-03-10": pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds"),
		"2026-03-11": pkgerrors.New(pkgerrors.CodeCutoffPassed, "cutoff passed"),
	}}

	job := newMaterializerJob(t, repo, svc, now)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected business rejections to be skipped, got %v", err)
	}
	if len(svc.created) != 2 {
		t.Fatalf("expected 2 orders around the skipped days, got %d", len(svc.created))
	}
}

func TestOrderMaterializerPropagatesRealFailures(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	sub := materializerSubscription()
	repo := &fakeSubscriptionsRepo{active: []models.Subscription{sub}}
	svc := &fakeOrdersService{failDates: map[string]error{
		"2026-03-10": errors.New("db down"),
	}}

	job := newMaterializerJob(t, repo, svc, now)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error for non-business failure")
	}
	// remaining days are still attempted
	if len(svc.created) != 3 {
		t.Fatalf("expected 3 orders despite one failure, got %d", len(svc.created))
	}
}

func TestOrderMaterializerClampsToHorizonWhenOpenEnded(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	sub := materializerSubscription()
	sub.EndDate = nil
	repo := &fakeSubscriptionsRepo{active: []models.Subscription{sub}}
	svc := &fakeOrdersService{}

	job := newMaterializerJob(t, repo, svc, now)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Mon Mar 9 through Mon Mar 16 inclusive holds six working days.
	if len(svc.created) != 6 {
		t.Fatalf("expected 6 orders over the horizon, got %d", len(svc.created))
	}
}

func TestOrderMaterializerSkipsEndedSubscriptions(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	sub := materializerSubscription()
	repo := &fakeSubscriptionsRepo{active: []models.Subscription{sub}}
	svc := &fakeOrdersService{}

	job := newMaterializerJob(t, repo, svc, now)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(svc.created) != 0 {
		t.Fatalf("expected no orders past the end date, got %d", len(svc.created))
	}
}
