package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/temirbekov/mealdesk-backend/internal/subscriptions"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

const defaultCompletionLimit = 250

// SubscriptionCompletionJobParams configures the subscription completion job.
type SubscriptionCompletionJobParams struct {
	Logger        *logger.Logger
	Repo          subscriptions.Repository
	Subscriptions subscriptions.Service
	Limit         int
	Now           func() time.Time
}

// NewSubscriptionCompletionJob builds the job that moves subscriptions past
// their end date into the terminal completed status.
func NewSubscriptionCompletionJob(params SubscriptionCompletionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultCompletionLimit
	}
	return &subscriptionCompletionJob{
		logg:  params.Logger,
		repo:  params.Repo,
		subs:  params.Subscriptions,
		limit: limit,
		now:   now,
	}, nil
}

type subscriptionCompletionJob struct {
	logg  *logger.Logger
	repo  subscriptions.Repository
	subs  subscriptions.Service
	limit int
	now   func() time.Time
}

func (j *subscriptionCompletionJob) Name() string { return "subscription-completion" }

func (j *subscriptionCompletionJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithField(ctx, "job", j.Name())
	logCtx = j.logg.WithField(logCtx, "event", "cron.job")

	now := j.now()
	expired, err := j.repo.ListExpired(logCtx, now, j.limit)
	if err != nil {
		return fmt.Errorf("list expired subscriptions: %w", err)
	}

	var errs error
	completed := 0
	for i := range expired {
		sub := &expired[i]
		subCtx := j.logg.WithField(logCtx, "subscription_id", sub.ID)
		if _, err := j.subs.Complete(subCtx, subscriptions.TransitionInput{
			SubscriptionID: sub.ID,
			ActorProjectID: sub.ProjectID,
			Now:            now,
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("complete subscription %s: %w", sub.ID, err))
			continue
		}
		completed++
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(expired),
		"completed":  completed,
	})
	j.logg.Info(reportCtx, "subscription completion loop complete")
	return errs
}
