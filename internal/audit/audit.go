package audit

import (
	"context"

	"github.com/temirbekov/mealdesk-backend/pkg/logger"
)

// Entry describes a single audited mutation.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	OldValue   any
	NewValue   any
}

// Recorder receives audit entries after state transitions and ledger
// mutations. Implementations are best-effort: a failing recorder must never
// roll back the business transaction, so Record returns nothing.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// LogRecorder writes audit entries to the structured log. It stands in for
// the platform audit pipeline, which is consumed as an external collaborator.
type LogRecorder struct {
	logg *logger.Logger
}

// NewLogRecorder builds a Recorder backed by the provided logger.
func NewLogRecorder(logg *logger.Logger) *LogRecorder {
	return &LogRecorder{logg: logg}
}

func (r *LogRecorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.logg == nil {
		return
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"audit_action": entry.Action,
		"entity_type":  entry.EntityType,
		"entity_id":    entry.EntityID,
		"old_value":    entry.OldValue,
		"new_value":    entry.NewValue,
	})
	r.logg.Info(ctx, "audit event")
}

// Nop discards all entries. Used in tests.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
