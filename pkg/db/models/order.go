package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// Order is one meal instance on one calendar date, for exactly one employee
// or one guest. A frozen order keeps status paused with FrozenAt set and
// links forward to the replacement order that displaces it; delivered orders
// are never physically deleted.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID          uuid.UUID         `gorm:"column:project_id;type:uuid;not null;index"`
	SubscriptionID     *uuid.UUID        `gorm:"column:subscription_id;type:uuid;index"`
	EmployeeID         *uuid.UUID        `gorm:"column:employee_id;type:uuid;uniqueIndex:ux_orders_employee_date"`
	GuestID            *uuid.UUID        `gorm:"column:guest_id;type:uuid"`
	ComboType          string            `gorm:"column:combo_type;not null"`
	Price              decimal.Decimal   `gorm:"column:price;type:decimal(15,2);not null"`
	Currency           enums.Currency    `gorm:"column:currency;type:currency_enum;not null;default:'KGS'"`
	Status             enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'active'"`
	OrderDate          time.Time         `gorm:"column:order_date;type:date;not null;uniqueIndex:ux_orders_employee_date"`
	FrozenAt           *time.Time        `gorm:"column:frozen_at"`
	FreezeReason       *string           `gorm:"column:freeze_reason"`
	ReplacementOrderID *uuid.UUID        `gorm:"column:replacement_order_id;type:uuid"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsGuest reports whether the order belongs to a guest rather than an employee.
func (o Order) IsGuest() bool {
	return o.GuestID != nil && *o.GuestID != uuid.Nil
}

// IsFrozen reports whether the order sits in the frozen sub-state of paused.
func (o Order) IsFrozen() bool {
	return o.Status == enums.OrderStatusPaused && o.FrozenAt != nil
}
