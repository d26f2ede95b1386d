package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord stores the result of a keyed operation so retries replay
// the stored payload instead of re-executing side effects. Expired records
// are garbage-collected by the sweep job.
type IdempotencyRecord struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Key       string          `gorm:"column:key;not null;uniqueIndex:ux_idempotency_key"`
	Result    json.RawMessage `gorm:"column:result;type:jsonb"`
	Completed bool            `gorm:"column:completed;not null;default:false"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }
