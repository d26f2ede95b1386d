package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/internal/audit"
	"github.com/temirbekov/mealdesk-backend/internal/notify"
	"github.com/temirbekov/mealdesk-backend/internal/schedule"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the subscription lifecycle: active, paused, completed.
// Completed is terminal. Counters that depend on order rows are derived on
// read and never stored on the subscription itself.
type Service interface {
	Get(ctx context.Context, input GetInput) (*models.Subscription, error)
	Pause(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	Resume(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	Complete(ctx context.Context, input TransitionInput) (*models.Subscription, error)
	Stats(ctx context.Context, input GetInput) (*Stats, error)
	ApplyFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error)
	RevertFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error)
}

// GetInput identifies a subscription and the tenant asking for it.
type GetInput struct {
	SubscriptionID uuid.UUID
	ActorProjectID uuid.UUID
}

// TransitionInput carries a lifecycle transition request.
type TransitionInput struct {
	SubscriptionID uuid.UUID
	ActorProjectID uuid.UUID
	Now            time.Time
}

// Stats carries the counters derived from order rows.
type Stats struct {
	FutureOrdersCount int64
	TotalDays         int64
	RemainingDays     int
}

type service struct {
	repo     Repository
	tx       txRunner
	audit    audit.Recorder
	notifier notify.Notifier
}

// ServiceParams groups dependencies for the subscriptions service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Audit    audit.Recorder
	Notifier notify.Notifier
}

// NewService wires a subscriptions service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
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
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		audit:    params.Audit,
		notifier: params.Notifier,
	}, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.Subscription, error) {
	return s.load(ctx, s.repo, input.SubscriptionID, input.ActorProjectID)
}

func (s *service) Pause(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	return s.transition(ctx, input, enums.SubscriptionStatusPaused)
}

func (s *service) Resume(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	return s.transition(ctx, input, enums.SubscriptionStatusActive)
}

func (s *service) Complete(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	return s.transition(ctx, input, enums.SubscriptionStatusCompleted)
}

func (s *service) transition(ctx context.Context, input TransitionInput, target enums.SubscriptionStatus) (*models.Subscription, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}

	var updated *models.Subscription
	var previous enums.SubscriptionStatus

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		subscription, err := s.load(ctx, repo, input.SubscriptionID, input.ActorProjectID)
		if err != nil {
			return err
		}
		previous = subscription.Status

		if err := applyTransition(subscription, target, input.Now); err != nil {
			return err
		}
		if err := repo.Update(ctx, subscription); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "subscription." + string(target),
		EntityType: "subscription",
		EntityID:   updated.ID.String(),
		OldValue:   string(previous),
		NewValue:   string(updated.Status),
	})
	if target == enums.SubscriptionStatusCompleted {
		s.notifier.SubscriptionCompleted(ctx, updated.ID, updated.EmployeeID)
	}
	return updated, nil
}

// applyTransition mutates the subscription in place or rejects the move.
func applyTransition(subscription *models.Subscription, target enums.SubscriptionStatus, now time.Time) error {
	if subscription.Status == enums.SubscriptionStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeSubscriptionTerminal, "subscription is completed").
			WithDetails(map[string]string{"subscription_id": subscription.ID.String()})
	}

	switch target {
	case enums.SubscriptionStatusPaused:
		if subscription.Status != enums.SubscriptionStatusActive {
			return invalidSubscriptionTransition(subscription.Status, target)
		}
		paused := now
		subscription.Status = enums.SubscriptionStatusPaused
		subscription.PausedAt = &paused

	case enums.SubscriptionStatusActive:
		if subscription.Status != enums.SubscriptionStatusPaused {
			return invalidSubscriptionTransition(subscription.Status, target)
		}
		if subscription.PausedAt != nil {
			elapsed := int(now.Sub(*subscription.PausedAt).Hours() / 24)
			if elapsed > 0 {
				subscription.TotalPausedDays += elapsed
			}
		}
		subscription.Status = enums.SubscriptionStatusActive
		subscription.PausedAt = nil

	case enums.SubscriptionStatusCompleted:
		subscription.Status = enums.SubscriptionStatusCompleted
		subscription.PausedAt = nil

	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown subscription status %q", target))
	}
	return nil
}

func invalidSubscriptionTransition(current, target enums.SubscriptionStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move subscription from %s to %s", current, target)).
		WithDetails(map[string]any{
			"current": string(current),
			"allowed": allowedSubscriptionTargets(current),
		})
}

func allowedSubscriptionTargets(current enums.SubscriptionStatus) []string {
	switch current {
	case enums.SubscriptionStatusActive:
		return []string{string(enums.SubscriptionStatusPaused), string(enums.SubscriptionStatusCompleted)}
	case enums.SubscriptionStatusPaused:
		return []string{string(enums.SubscriptionStatusActive), string(enums.SubscriptionStatusCompleted)}
	default:
		return []string{}
	}
}

// ApplyFreezeDay extends the subscription by one day in compensation for a
// frozen order. Runs inside the caller's transaction; the order freeze and
// the extension commit or roll back together.
func (s *service) ApplyFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "freeze day requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	subscription, err := repo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if subscription.Status == enums.SubscriptionStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeSubscriptionTerminal, "subscription is completed")
	}
	if subscription.EndDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "open-ended subscription cannot be extended")
	}

	if subscription.OriginalEndDate == nil {
		original := *subscription.EndDate
		subscription.OriginalEndDate = &original
	}
	extended := schedule.DateOnly(subscription.EndDate.AddDate(0, 0, 1))
	subscription.EndDate = &extended
	subscription.FrozenDaysCount++

	if err := repo.Update(ctx, subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend subscription")
	}
	return subscription, nil
}

// RevertFreezeDay undoes one freeze extension when an order is unfrozen.
// Runs inside the caller's transaction, mirroring ApplyFreezeDay.
func (s *service) RevertFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "freeze revert requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	subscription, err := repo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if subscription.FrozenDaysCount <= 0 || subscription.EndDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription has no freeze extension to revert")
	}

	shortened := schedule.DateOnly(subscription.EndDate.AddDate(0, 0, -1))
	subscription.EndDate = &shortened
	subscription.FrozenDaysCount--
	if subscription.FrozenDaysCount == 0 && subscription.OriginalEndDate != nil {
		restored := *subscription.OriginalEndDate
		subscription.EndDate = &restored
		subscription.OriginalEndDate = nil
	}

	if err := repo.Update(ctx, subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shorten subscription")
	}
	return subscription, nil
}

// Stats derives counters by counting order rows. Nothing here is stored on
// the subscription, so the answer cannot drift from the orders table.
func (s *service) Stats(ctx context.Context, input GetInput) (*Stats, error) {
	subscription, err := s.load(ctx, s.repo, input.SubscriptionID, input.ActorProjectID)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountOrders(ctx, subscription.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	future, err := s.repo.CountFutureOrders(ctx, subscription.ID, schedule.DateOnly(time.Now()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count future orders")
	}

	stats := &Stats{
		FutureOrdersCount: future,
		TotalDays:         total,
	}
	if subscription.EndDate != nil {
		today := schedule.DateOnly(time.Now())
		remaining := int(schedule.DateOnly(*subscription.EndDate).Sub(today).Hours()/24) + 1
		if remaining > 0 {
			stats.RemainingDays = remaining
		}
	}
	return stats, nil
}

func (s *service) load(ctx context.Context, repo Repository, id, actorProjectID uuid.UUID) (*models.Subscription, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	subscription, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if subscription.ProjectID != actorProjectID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription does not belong to project")
	}
	return subscription, nil
}
