package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// Project is a company branch acting as the billing unit. Balance is mutated
// only through the ledger service; the overdraft limit bounds how far below
// zero a debit may take it.
type Project struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID      uuid.UUID       `gorm:"column:company_id;type:uuid;not null;index"`
	Name           string          `gorm:"column:name;not null"`
	Balance        decimal.Decimal `gorm:"column:balance;type:decimal(15,2);not null"`
	OverdraftLimit decimal.Decimal `gorm:"column:overdraft_limit;type:decimal(15,2);not null"`
	Currency       enums.Currency  `gorm:"column:currency;type:currency_enum;not null;default:'KGS'"`
	CutoffTime     string          `gorm:"column:cutoff_time;not null;default:'14:00'"`
	Timezone       string          `gorm:"column:timezone;not null;default:'Asia/Bishkek'"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
