package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/temirbekov/mealdesk-backend/internal/idempotency"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

// IdempotencySweepJobParams configures the expired idempotency key sweep.
type IdempotencySweepJobParams struct {
	Logger *logger.Logger
	Guard  idempotency.Guard
	Now    func() time.Time
}

// NewIdempotencySweepJob builds the job that purges expired idempotency
// records so replay protection does not accumulate unbounded rows.
func NewIdempotencySweepJob(params IdempotencySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &idempotencySweepJob{
		logg:  params.Logger,
		guard: params.Guard,
		now:   now,
	}, nil
}

type idempotencySweepJob struct {
	logg  *logger.Logger
	guard idempotency.Guard
	now   func() time.Time
}

func (j *idempotencySweepJob) Name() string { return "idempotency-sweep" }

func (j *idempotencySweepJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithField(ctx, "job", j.Name())
	logCtx = j.logg.WithField(logCtx, "event", "cron.job")

	removed, err := j.guard.Sweep(logCtx, j.now())
	if err != nil {
		return fmt.Errorf("sweep idempotency records: %w", err)
	}

	reportCtx := j.logg.WithField(logCtx, "removed", removed)
	j.logg.Info(reportCtx, "idempotency sweep complete")
	return nil
}
