package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/internal/audit"
	"github.com/temirbekov/mealdesk-backend/internal/idempotency"
	"github.com/temirbekov/mealdesk-backend/internal/ledger"
	"github.com/temirbekov/mealdesk-backend/internal/policy"
	"github.com/temirbekov/mealdesk-backend/internal/schedule"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	"github.com/temirbekov/mealdesk-backend/pkg/enums"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// subscriptionExtender is the slice of the subscriptions service the order
// machine needs for freeze displacement.
type subscriptionExtender interface {
	ApplyFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error)
	RevertFreezeDay(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.Subscription, error)
}

// Service drives individual orders through their lifecycle and owns the
// compound freeze operation.
type Service interface {
	Get(ctx context.Context, orderID, actorProjectID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Freeze(ctx context.Context, input FreezeInput) (*FreezeResult, error)
	Unfreeze(ctx context.Context, input UnfreezeInput) (*models.Order, error)
	CreateLunchOrder(ctx context.Context, input CreateLunchOrderInput) (*models.Order, error)
	CreateGuestOrder(ctx context.Context, input CreateGuestOrderInput) (*models.Order, error)
}

// TransitionInput carries a plain state machine move.
type TransitionInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	ActorProjectID uuid.UUID
	Now            time.Time
}

// CancelInput carries an order cancellation. A refund is posted when the
// order was debit-backed.
type CancelInput struct {
	OrderID        uuid.UUID
	ActorProjectID uuid.UUID
	Now            time.Time
}

// FreezeInput carries a freeze request for a subscription order day.
type FreezeInput struct {
	OrderID        uuid.UUID
	Reason         *string
	ActorProjectID uuid.UUID
	Now            time.Time
}

// FreezeResult reports the displacement pair and the extended subscription.
type FreezeResult struct {
	Order        *models.Order
	Replacement  *models.Order
	Subscription *models.Subscription
}

// UnfreezeInput reverses a freeze before the replacement day is delivered.
type UnfreezeInput struct {
	OrderID        uuid.UUID
	ActorProjectID uuid.UUID
	Now            time.Time
}

// CreateLunchOrderInput creates a one-off employee lunch order backed by a
// ledger debit.
type CreateLunchOrderInput struct {
	ProjectID      uuid.UUID
	ActorProjectID uuid.UUID
	EmployeeID     uuid.UUID
	SubscriptionID *uuid.UUID
	ComboType      string
	Price          decimal.Decimal
	OrderDate      time.Time
	Now            time.Time
}

// CreateGuestOrderInput creates a guest order backed by a ledger debit.
// InvoiceNo, when set, anchors the idempotency fingerprint.
type CreateGuestOrderInput struct {
	ProjectID      uuid.UUID
	ActorProjectID uuid.UUID
	GuestID        uuid.UUID
	ComboType      string
	Price          decimal.Decimal
	OrderDate      time.Time
	InvoiceNo      *string
	Now            time.Time
}

type orderResult struct {
	OrderID uuid.UUID `json:"order_id"`
}

type refundResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

type service struct {
	repo            Repository
	tx              txRunner
	ledger          ledger.Service
	guard           idempotency.Guard
	subscriptions   subscriptionExtender
	audit           audit.Recorder
	quota           int
	defaultCutoff   string
	defaultTimezone string
}

// ServiceParams groups dependencies for the orders service. DefaultCutoff
// and DefaultTimezone apply to projects whose rows carry neither.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Ledger          ledger.Service
	Guard           idempotency.Guard
	Subscriptions   subscriptionExtender
	Audit           audit.Recorder
	FreezeQuota     int
	DefaultCutoff   string
	DefaultTimezone string
}

// NewService wires an orders service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Audit == nil {
		params.Audit = audit.Nop{}
	}
	if params.FreezeQuota <= 0 {
		params.FreezeQuota = policy.DefaultWeeklyFreezeQuota
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		ledger:          params.Ledger,
		guard:           params.Guard,
		subscriptions:   params.Subscriptions,
		audit:           params.Audit,
		quota:           params.FreezeQuota,
		defaultCutoff:   params.DefaultCutoff,
		defaultTimezone: params.DefaultTimezone,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID, actorProjectID uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, orderID, actorProjectID)
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.Target == enums.OrderStatusCancelled {
		// Cancellation owns the refund path; never bypass it.
		return s.Cancel(ctx, CancelInput{
			OrderID:        input.OrderID,
			ActorProjectID: input.ActorProjectID,
			Now:            input.Now,
		})
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.Target))
	}

	var updated *models.Order
	var previous enums.OrderStatus

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID, input.ActorProjectID)
		if err != nil {
			return err
		}
		previous = order.Status

		if order.IsFrozen() && input.Target == enums.OrderStatusActive {
			return pkgerrors.New(pkgerrors.CodeConflict, "frozen order must be unfrozen, not resumed")
		}
		if !CanTransition(order.Status, input.Target) {
			return invalidOrderTransition(order.Status, input.Target)
		}

		order.Status = input.Target
		if err := repo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "order." + string(input.Target),
		EntityType: "order",
		EntityID:   updated.ID.String(),
		OldValue:   string(previous),
		NewValue:   string(updated.Status),
	})
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}

	var updated *models.Order
	var previous enums.OrderStatus
	var alreadyCancelled bool

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID, input.ActorProjectID)
		if err != nil {
			return err
		}
		previous = order.Status

		if order.Status == enums.OrderStatusCancelled {
			// Retried cancellation. The row is already terminal; fall
			// through so an unposted refund can still be driven.
			alreadyCancelled = true
			updated = order
			return nil
		}

		if err := s.checkModifiable(ctx, repo, order, input.Now); err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled) {
			return invalidOrderTransition(order.Status, enums.OrderStatusCancelled)
		}

		order.Status = enums.OrderStatusCancelled
		if err := repo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.refundIfDebited(ctx, updated); err != nil {
		return nil, err
	}

	if !alreadyCancelled {
		s.audit.Record(ctx, audit.Entry{
			Action:     "order.cancelled",
			EntityType: "order",
			EntityID:   updated.ID.String(),
			OldValue:   string(previous),
			NewValue:   string(updated.Status),
		})
	}
	return updated, nil
}

// refundIfDebited posts the compensating credit for a cancelled order. Runs
// through the idempotency guard so a retried cancellation cannot refund twice.
func (s *service) refundIfDebited(ctx context.Context, order *models.Order) error {
	debit, err := s.ledger.FindDebitByOrder(ctx, order.ID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil
		}
		return err
	}

	key := idempotency.BuildKey("order.refund", order.ID.String())
	_, _, err = s.guard.ExecuteOnce(ctx, key, 0, func(ctx context.Context) (json.RawMessage, error) {
		orderID := order.ID
		transaction, err := s.ledger.Credit(ctx, ledger.CreditInput{
			ProjectID:      order.ProjectID,
			ActorProjectID: order.ProjectID,
			Amount:         debit.Amount.Abs(),
			Type:           enums.LedgerTransactionTypeRefund,
			Description:    "refund for cancelled order",
			OrderID:        &orderID,
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(refundResult{TransactionID: transaction.ID})
	})
	return err
}

func (s *service) Freeze(ctx context.Context, input FreezeInput) (*FreezeResult, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}

	var result *FreezeResult

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID, input.ActorProjectID)
		if err != nil {
			return err
		}
		if order.IsGuest() {
			return pkgerrors.New(pkgerrors.CodeGuestCannotFreeze, "guest orders cannot be frozen")
		}
		if order.IsFrozen() {
			return pkgerrors.New(pkgerrors.CodeAlreadyFrozen, "order is already frozen")
		}
		if order.Status != enums.OrderStatusActive {
			return invalidOrderTransition(order.Status, enums.OrderStatusPaused)
		}
		if order.SubscriptionID == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "only subscription orders can be frozen")
		}
		if order.EmployeeID == nil {
			return pkgerrors.New(pkgerrors.CodeGuestCannotFreeze, "order has no employee owner")
		}

		if err := s.checkModifiable(ctx, repo, order, input.Now); err != nil {
			return err
		}

		gate, err := policy.New(repo, s.quota)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build freeze policy")
		}
		if err := gate.EnsureFreezeAllowed(ctx, *order.EmployeeID, input.Now); err != nil {
			return err
		}

		subscription, err := s.subscriptions.ApplyFreezeDay(ctx, tx, *order.SubscriptionID)
		if err != nil {
			return err
		}

		replacement := &models.Order{
			ID:             uuid.New(),
			ProjectID:      order.ProjectID,
			SubscriptionID: order.SubscriptionID,
			EmployeeID:     order.EmployeeID,
			ComboType:      order.ComboType,
			Price:          order.Price,
			Currency:       order.Currency,
			Status:         enums.OrderStatusActive,
			OrderDate:      schedule.DateOnly(*subscription.EndDate),
		}
		if err := repo.Create(ctx, replacement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create replacement order")
		}

		frozenAt := input.Now
		order.Status = enums.OrderStatusPaused
		order.FrozenAt = &frozenAt
		order.FreezeReason = input.Reason
		order.ReplacementOrderID = &replacement.ID
		if err := repo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze order")
		}

		result = &FreezeResult{
			Order:        order,
			Replacement:  replacement,
			Subscription: subscription,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "order.frozen",
		EntityType: "order",
		EntityID:   result.Order.ID.String(),
		OldValue:   string(enums.OrderStatusActive),
		NewValue:   string(enums.OrderStatusPaused),
	})
	return result, nil
}

func (s *service) Unfreeze(ctx context.Context, input UnfreezeInput) (*models.Order, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}

	var restored *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID, input.ActorProjectID)
		if err != nil {
			return err
		}
		if !order.IsFrozen() {
			return pkgerrors.New(pkgerrors.CodeNotFrozen, "order is not frozen")
		}
		if err := s.checkModifiable(ctx, repo, order, input.Now); err != nil {
			return err
		}

		if order.ReplacementOrderID != nil {
			replacement, err := repo.FindByID(ctx, *order.ReplacementOrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load replacement order")
			}
			if replacement.Status != enums.OrderStatusActive {
				return pkgerrors.New(pkgerrors.CodeConflict, "replacement order already progressed")
			}
			replacement.Status = enums.OrderStatusCancelled
			if err := repo.Update(ctx, replacement); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel replacement order")
			}
		}

		if order.SubscriptionID != nil {
			if _, err := s.subscriptions.RevertFreezeDay(ctx, tx, *order.SubscriptionID); err != nil {
				return err
			}
		}

		order.Status = enums.OrderStatusActive
		order.FrozenAt = nil
		order.FreezeReason = nil
		order.ReplacementOrderID = nil
		if err := repo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore order")
		}
		restored = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "order.unfrozen",
		EntityType: "order",
		EntityID:   restored.ID.String(),
		OldValue:   string(enums.OrderStatusPaused),
		NewValue:   string(enums.OrderStatusActive),
	})
	return restored, nil
}

func (s *service) CreateLunchOrder(ctx context.Context, input CreateLunchOrderInput) (*models.Order, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	if err := s.validateCreate(ctx, input.ProjectID, input.ActorProjectID, input.ComboType, input.Price, input.OrderDate, input.Now); err != nil {
		return nil, err
	}

	orderDate := schedule.DateOnly(input.OrderDate)
	key := idempotency.BuildKey("order.lunch", input.EmployeeID.String(), orderDate.Format(time.DateOnly))
	employeeID := input.EmployeeID

	return s.createDebited(ctx, key, func(orderID uuid.UUID) *models.Order {
		return &models.Order{
			ID:             orderID,
			ProjectID:      input.ProjectID,
			SubscriptionID: input.SubscriptionID,
			EmployeeID:     &employeeID,
			ComboType:      input.ComboType,
			Price:          input.Price,
			Status:         enums.OrderStatusActive,
			OrderDate:      orderDate,
		}
	}, ledger.DebitInput{
		ProjectID:      input.ProjectID,
		ActorProjectID: input.ActorProjectID,
		Amount:         input.Price,
		Type:           enums.LedgerTransactionTypeLunchDeduction,
		Description:    "lunch order for " + orderDate.Format(time.DateOnly),
	})
}

func (s *service) CreateGuestOrder(ctx context.Context, input CreateGuestOrderInput) (*models.Order, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}
	if input.GuestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest id required")
	}
	if err := s.validateCreate(ctx, input.ProjectID, input.ActorProjectID, input.ComboType, input.Price, input.OrderDate, input.Now); err != nil {
		return nil, err
	}

	orderDate := schedule.DateOnly(input.OrderDate)
	var key string
	if input.InvoiceNo != nil && *input.InvoiceNo != "" {
		key = idempotency.BuildKey("order.guest", *input.InvoiceNo, input.Price.StringFixed(2))
	} else {
		key = idempotency.BuildKey("order.guest", input.GuestID.String(), orderDate.Format(time.DateOnly), input.Price.StringFixed(2))
	}
	guestID := input.GuestID

	return s.createDebited(ctx, key, func(orderID uuid.UUID) *models.Order {
		return &models.Order{
			ID:        orderID,
			ProjectID: input.ProjectID,
			GuestID:   &guestID,
			ComboType: input.ComboType,
			Price:     input.Price,
			Status:    enums.OrderStatusActive,
			OrderDate: orderDate,
		}
	}, ledger.DebitInput{
		ProjectID:      input.ProjectID,
		ActorProjectID: input.ActorProjectID,
		Amount:         input.Price,
		Type:           enums.LedgerTransactionTypeGuestOrder,
		Description:    "guest order for " + orderDate.Format(time.DateOnly),
	})
}

// createDebited runs the debit-then-create sequence under the idempotency
// guard. The debit carries the pre-generated order id; if persisting the
// order fails the debit is compensated with a refund.
func (s *service) createDebited(ctx context.Context, key string, build func(orderID uuid.UUID) *models.Order, debit ledger.DebitInput) (*models.Order, error) {
	payload, _, err := s.guard.ExecuteOnce(ctx, key, 0, func(ctx context.Context) (json.RawMessage, error) {
		orderID := uuid.New()
		debit.OrderID = &orderID
		if _, err := s.ledger.Debit(ctx, debit); err != nil {
			return nil, err
		}

		order := build(orderID)
		if err := s.repo.Create(ctx, order); err != nil {
			if _, refundErr := s.ledger.Credit(ctx, ledger.CreditInput{
				ProjectID:      debit.ProjectID,
				ActorProjectID: debit.ActorProjectID,
				Amount:         debit.Amount,
				Type:           enums.LedgerTransactionTypeRefund,
				Description:    "refund for failed order creation",
				OrderID:        &orderID,
			}); refundErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, refundErr, "order creation failed and refund did not post")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return json.Marshal(orderResult{OrderID: orderID})
	})
	if err != nil {
		return nil, err
	}

	var result orderResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode order result")
	}
	order, err := s.repo.FindByID(ctx, result.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load created order")
	}
	return order, nil
}

func (s *service) validateCreate(ctx context.Context, projectID, actorProjectID uuid.UUID, comboType string, price decimal.Decimal, orderDate, now time.Time) error {
	if projectID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if actorProjectID != projectID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "project does not belong to actor")
	}
	if comboType == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "combo type required")
	}
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}

	project, err := s.repo.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	return policy.CanModifyDate(s.cutoffFor(project), now, orderDate, s.locationFor(project))
}

// checkModifiable applies the project's cutoff and past-date rules to an
// existing order.
func (s *service) checkModifiable(ctx context.Context, repo Repository, order *models.Order, now time.Time) error {
	project, err := repo.FindProject(ctx, order.ProjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	return policy.CanModifyDate(s.cutoffFor(project), now, order.OrderDate, s.locationFor(project))
}

func (s *service) cutoffFor(project *models.Project) string {
	if project.CutoffTime != "" {
		return project.CutoffTime
	}
	return s.defaultCutoff
}

func (s *service) locationFor(project *models.Project) *time.Location {
	timezone := project.Timezone
	if timezone == "" {
		timezone = s.defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *service) load(ctx context.Context, repo Repository, orderID, actorProjectID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.ProjectID != actorProjectID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to project")
	}
	return order, nil
}

func invalidOrderTransition(current, target enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move order from %s to %s", current, target)).
		WithDetails(map[string]any{
			"current": string(current),
			"allowed": AllowedTargets(current),
		})
}
