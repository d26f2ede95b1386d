package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/temirbekov/mealdesk-backend/internal/audit"
	"github.com/temirbekov/mealdesk-backend/internal/cron"
	"github.com/temirbekov/mealdesk-backend/internal/idempotency"
	"github.com/temirbekov/mealdesk-backend/internal/ledger"
	"github.com/temirbekov/mealdesk-backend/internal/notify"
	"github.com/temirbekov/mealdesk-backend/internal/orders"
	"github.com/temirbekov/mealdesk-backend/internal/subscriptions"
	"github.com/temirbekov/mealdesk-backend/pkg/config"
	"github.com/temirbekov/mealdesk-backend/pkg/db"
	"github.com/temirbekov/mealdesk-backend/pkg/instance"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
	"github.com/temirbekov/mealdesk-backend/pkg/metrics"
	"github.com/temirbekov/mealdesk-backend/pkg/migrate"
	"github.com/temirbekov/mealdesk-backend/pkg/redis"
)

const lockKeyFormat = "md:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	notifier := notify.NewLogNotifier(logg)
	recorder := audit.NewLogRecorder(logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:       ledger.NewRepository(conn),
		Tx:         dbClient,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Audit:      recorder,
		Notifier:   notifier,
		MaxRetries: cfg.Ledger.MaxDebitRetries,
		Backoff:    cfg.Ledger.RetryBackoff,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewGuard(idempotency.GuardParams{
		Repo:       idempotency.NewRepository(conn),
		Logger:     logg,
		DefaultTTL: cfg.Idempotency.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	subscriptionsRepo := subscriptions.NewRepository(conn)
	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptionsRepo,
		Tx:       dbClient,
		Audit:    recorder,
		Notifier: notifier,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:            orders.NewRepository(conn),
		Tx:              dbClient,
		Ledger:          ledgerService,
		Guard:           guard,
		Subscriptions:   subscriptionsService,
		Audit:           recorder,
		FreezeQuota:     cfg.Policy.WeeklyFreezeQuota,
		DefaultCutoff:   cfg.Policy.DefaultCutoff,
		DefaultTimezone: cfg.Policy.DefaultTimezone,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	materializerJob, err := cron.NewOrderMaterializerJob(cron.OrderMaterializerJobParams{
		Logger:        logg,
		Subscriptions: subscriptionsRepo,
		Orders:        ordersService,
		HorizonDays:   cfg.Cron.MaterializeHorizonDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order materializer job", err)
		os.Exit(1)
	}

	completionJob, err := cron.NewSubscriptionCompletionJob(cron.SubscriptionCompletionJobParams{
		Logger:        logg,
		Repo:          subscriptionsRepo,
		Subscriptions: subscriptionsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription completion job", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewIdempotencySweepJob(cron.IdempotencySweepJobParams{
		Logger: logg,
		Guard:  guard,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(completionJob, materializerJob, sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
