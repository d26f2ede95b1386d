package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// LedgerTransaction records an immutable money movement on a project balance.
// Amount is signed (credits positive, deductions negative) and BalanceAfter
// snapshots the resulting balance, so the full history folds back to the live
// balance.
type LedgerTransaction struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID    uuid.UUID                   `gorm:"column:project_id;type:uuid;not null;index"`
	Type         enums.LedgerTransactionType `gorm:"column:type;type:ledger_transaction_type;not null"`
	Amount       decimal.Decimal             `gorm:"column:amount;type:decimal(15,2);not null"`
	BalanceAfter decimal.Decimal             `gorm:"column:balance_after;type:decimal(15,2);not null"`
	OrderID      *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	InvoiceNo    *string                     `gorm:"column:invoice_no"`
	Description  string                      `gorm:"column:description;not null"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
