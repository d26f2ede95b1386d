package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

// Notifier surfaces the events the delivery layer (email, out of scope)
// cares about. The core only raises events; it never sends anything itself.
type Notifier interface {
	SubscriptionCompleted(ctx context.Context, subscriptionID, employeeID uuid.UUID)
	LowBalance(ctx context.Context, projectID uuid.UUID, balance decimal.Decimal)
}

// LogNotifier records notification events in the structured log.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a Notifier backed by the provided logger.
func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) SubscriptionCompleted(ctx context.Context, subscriptionID, employeeID uuid.UUID) {
	if n == nil || n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"event":           "subscription.completed",
		"subscription_id": subscriptionID.String(),
		"employee_id":     employeeID.String(),
	})
	n.logg.Info(ctx, "notification event")
}

func (n *LogNotifier) LowBalance(ctx context.Context, projectID uuid.UUID, balance decimal.Decimal) {
	if n == nil || n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"event":      "project.low_balance",
		"project_id": projectID.String(),
		"balance":    balance.String(),
	})
	n.logg.Warn(ctx, "notification event")
}

// Nop drops all events. Used in tests.
type Nop struct{}

func (Nop) SubscriptionCompleted(context.Context, uuid.UUID, uuid.UUID) {}
func (Nop) LowBalance(context.Context, uuid.UUID, decimal.Decimal)     {}
