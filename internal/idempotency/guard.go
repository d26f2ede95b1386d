package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/temirbekov/mealdesk-backend/pkg/db"
	"github.com/temirbekov/mealdesk-backend/pkg/db/models"
	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

const (
	// How long a duplicate waits for the first writer to commit its result.
	resultPollInterval = 50 * time.Millisecond
	resultPollAttempts = 20
)

// Operation produces the result payload that gets stored under the key.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Guard executes keyed operations exactly once. Duplicate submissions under
// the same key replay the stored result instead of re-running side effects.
type Guard interface {
	ExecuteOnce(ctx context.Context, key string, ttl time.Duration, op Operation) (json.RawMessage, bool, error)
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

type guard struct {
	repo       Repository
	logg       *logger.Logger
	defaultTTL time.Duration
}

// GuardParams groups dependencies for the idempotency guard.
type GuardParams struct {
	Repo       Repository
	Logger     *logger.Logger
	DefaultTTL time.Duration
}

// NewGuard wires an idempotency guard with the provided dependencies.
func NewGuard(params GuardParams) (Guard, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	if params.DefaultTTL <= 0 {
		params.DefaultTTL = 24 * time.Hour
	}
	return &guard{
		repo:       params.Repo,
		logg:       params.Logger,
		defaultTTL: params.DefaultTTL,
	}, nil
}

// BuildKey assembles a stable idempotency key from operation name and parts.
func BuildKey(operation string, parts ...string) string {
	return operation + ":" + strings.Join(parts, ":")
}

// ExecuteOnce reserves the key, runs op, and stores its result. When the key
// is already reserved the stored result is replayed and the second return
// value is true. A storage failure aborts the call; the operation is never
// executed without a reservation in place.
func (g *guard) ExecuteOnce(ctx context.Context, key string, ttl time.Duration, op Operation) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if op == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "operation required")
	}
	if ttl <= 0 {
		ttl = g.defaultTTL
	}

	record := &models.IdempotencyRecord{
		Key:       key,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := g.repo.Insert(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "ux_idempotency_key") {
			evicted, evictErr := g.evictIfExpired(ctx, key)
			if evictErr != nil {
				return nil, false, evictErr
			}
			if !evicted {
				result, err := g.awaitResult(ctx, key)
				return result, true, err
			}
			// Expired reservation evicted; take the key over.
			if err := g.repo.Insert(ctx, record); err != nil {
				if db.IsUniqueViolation(err, "ux_idempotency_key") {
					result, err := g.awaitResult(ctx, key)
					return result, true, err
				}
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
			}
		} else {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
		}
	}

	result, err := op(ctx)
	if err != nil {
		// Release the reservation so the caller can retry the operation.
		if delErr := g.repo.DeleteByKey(ctx, key); delErr != nil && g.logg != nil {
			g.logg.Error(ctx, "release idempotency reservation", delErr)
		}
		return nil, false, err
	}

	if err := g.repo.StoreResult(ctx, key, result); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store idempotency result")
	}
	return result, false, nil
}

// evictIfExpired deletes a stale record whose TTL has elapsed, so the key
// can be re-reserved instead of replaying an expired result. Returns true
// when a stale row was removed.
func (g *guard) evictIfExpired(ctx context.Context, key string) (bool, error) {
	record, err := g.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// First writer released the key already; treat as evicted.
			return true, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}
	if record.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	if err := g.repo.DeleteByKey(ctx, key); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evict expired idempotency record")
	}
	return true, nil
}

// awaitResult reads the stored result for a duplicate submission, polling
// briefly when the first writer has reserved the key but not yet committed.
func (g *guard) awaitResult(ctx context.Context, key string) (json.RawMessage, error) {
	var result json.RawMessage
	backoff := retry.WithMaxRetries(resultPollAttempts, retry.NewConstant(resultPollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		record, err := g.repo.FindByKey(ctx, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// First writer failed and released the key between our
				// insert conflict and this read.
				return retry.RetryableError(pkgerrors.New(pkgerrors.CodeConflict, "operation in flight was released"))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
		}
		if !record.Completed {
			return retry.RetryableError(pkgerrors.New(pkgerrors.CodeConflict, "operation still in flight"))
		}
		result = record.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sweep deletes records whose TTL has elapsed and returns how many were
// removed. Invoked by the cron worker.
func (g *guard) Sweep(ctx context.Context, now time.Time) (int64, error) {
	removed, err := g.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep idempotency records")
	}
	if removed > 0 && g.logg != nil {
		g.logg.Info(g.logg.WithField(ctx, "removed", removed), "swept expired idempotency records")
	}
	return removed, nil
}
