package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// Subscription is an employee's standing meal plan over a date range.
// EndDate is nil for open-ended plans. OriginalEndDate preserves the
// pre-freeze end date the first time a freeze pushes EndDate out.
type Subscription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EmployeeID      uuid.UUID                `gorm:"column:employee_id;type:uuid;not null;uniqueIndex:ux_subscriptions_employee"`
	ProjectID       uuid.UUID                `gorm:"column:project_id;type:uuid;not null;index"`
	ComboType       string                   `gorm:"column:combo_type;not null"`
	ComboPrice      decimal.Decimal          `gorm:"column:combo_price;type:decimal(15,2);not null"`
	ScheduleType    enums.ScheduleType       `gorm:"column:schedule_type;type:schedule_type;not null;default:'every_day'"`
	Status          enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	StartDate       time.Time                `gorm:"column:start_date;type:date;not null"`
	EndDate         *time.Time               `gorm:"column:end_date;type:date"`
	OriginalEndDate *time.Time               `gorm:"column:original_end_date;type:date"`
	PausedAt        *time.Time               `gorm:"column:paused_at"`
	TotalPausedDays int                      `gorm:"column:total_paused_days;not null;default:0"`
	FrozenDaysCount int                      `gorm:"column:frozen_days_count;not null;default:0"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
