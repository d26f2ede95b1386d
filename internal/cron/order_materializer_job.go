package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/temirbekov/mealdesk-backend/internal/orders"
	"github.com/temirbekov/mealdesk-backend/internal/schedule"
	"github.com/temirbekov/mealdesk-backend/internal/subscriptions"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

const (
	defaultMaterializeLimit   = 500
	defaultMaterializeHorizon = 14
)

// OrderMaterializerJobParams configures the order materialization cron job.
type OrderMaterializerJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptions.Repository
	Orders        orders.Service
	HorizonDays   int
	Limit         int
	Now           func() time.Time
}

// NewOrderMaterializerJob builds the job that turns active subscriptions
// into concrete order rows over a rolling horizon.
func NewOrderMaterializerJob(params OrderMaterializerJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	horizon := params.HorizonDays
	if horizon <= 0 {
		horizon = defaultMaterializeHorizon
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultMaterializeLimit
	}
	return &orderMaterializerJob{
		logg:    params.Logger,
		subs:    params.Subscriptions,
		orders:  params.Orders,
		horizon: horizon,
		limit:   limit,
		now:     now,
	}, nil
}

type orderMaterializerJob struct {
	logg    *logger.Logger
	subs    subscriptions.Repository
	orders  orders.Service
	horizon int
	limit   int
	now     func() time.Time
}

func (j *orderMaterializerJob) Name() string { return "order-materializer" }

func (j *orderMaterializerJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithField(ctx, "job", j.Name())
	logCtx = j.logg.WithField(logCtx, "event", "cron.job")

	active, err := j.subs.ListActive(logCtx, j.limit)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	now := j.now()
	today := schedule.DateOnly(now)
	horizonEnd := today.AddDate(0, 0, j.horizon)

	var errs error
	created := 0
	skipped := 0
	for i := range active {
		c, s, err := j.materialize(logCtx, &active[i], now, today, horizonEnd)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		created += c
		skipped += s
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"subscriptions": len(active),
		"materialized":  created,
		"skipped":       skipped,
	})
	j.logg.Info(reportCtx, "order materialization loop complete")
	return errs
}

func (j *orderMaterializerJob) materialize(ctx context.Context, sub *models.Subscription, now, today, horizonEnd time.Time) (created, skipped int, err error) {
	logCtx := j.logg.WithField(ctx, "subscription_id", sub.ID)

	start := schedule.DateOnly(sub.StartDate)
	if start.Before(today) {
		start = today
	}
	end := horizonEnd
	if sub.EndDate != nil && schedule.DateOnly(*sub.EndDate).Before(end) {
		end = schedule.DateOnly(*sub.EndDate)
	}
	if end.Before(start) {
		return 0, 0, nil
	}

	subID := sub.ID
	var errs error
	for _, date := range schedule.GetOrderDates(sub.ScheduleType, nil, start, end) {
		_, err := j.orders.CreateLunchOrder(logCtx, orders.CreateLunchOrderInput{
			ProjectID:      sub.ProjectID,
			ActorProjectID: sub.ProjectID,
			EmployeeID:     sub.EmployeeID,
			SubscriptionID: &subID,
			ComboType:      sub.ComboType,
			Price:          sub.ComboPrice,
			OrderDate:      date,
			Now:            now,
		})
		switch {
		case err == nil:
			created++
		case isMaterializeSkip(err):
			skipped++
			skipCtx := j.logg.WithFields(logCtx, map[string]any{
				"order_date": date.Format(time.DateOnly),
				"reason":     string(pkgerrors.As(err).Code()),
			})
			j.logg.Info(skipCtx, "order day skipped")
		default:
			errs = multierr.Append(errs, fmt.Errorf("materialize %s for subscription %s: %w", date.Format(time.DateOnly), sub.ID, err))
		}
	}
	return created, skipped, errs
}

// isMaterializeSkip separates business rejections, which the next cycle may
// resolve, from real failures. A cutoff rejection clears at the next day's
// window and an underfunded project clears after a deposit.
func isMaterializeSkip(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) ||
		pkgerrors.HasCode(err, pkgerrors.CodeOverdraftExceeded) ||
		pkgerrors.HasCode(err, pkgerrors.CodeCutoffPassed) ||
		pkgerrors.HasCode(err, pkgerrors.CodePastDateNotAllowed)
}
