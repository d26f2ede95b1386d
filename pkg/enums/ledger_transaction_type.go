package enums

import "fmt"

// LedgerTransactionType maps to the ledger_transaction_type enum in Postgres.
type LedgerTransactionType string

const (
	LedgerTransactionTypeDeposit        LedgerTransactionType = "deposit"
	LedgerTransactionTypeLunchDeduction LedgerTransactionType = "lunch_deduction"
	LedgerTransactionTypeGuestOrder     LedgerTransactionType = "guest_order"
	LedgerTransactionTypeRefund         LedgerTransactionType = "refund"
	LedgerTransactionTypeClientAppOrder LedgerTransactionType = "client_app_order"
)

var validLedgerTransactionTypes = []LedgerTransactionType{
	LedgerTransactionTypeDeposit,
	LedgerTransactionTypeLunchDeduction,
	LedgerTransactionTypeGuestOrder,
	LedgerTransactionTypeRefund,
	LedgerTransactionTypeClientAppOrder,
}

// IsValid reports whether the value matches the canonical transaction enum.
func (t LedgerTransactionType) IsValid() bool {
	for _, candidate := range validLedgerTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether transactions of this type increase the balance.
func (t LedgerTransactionType) IsCredit() bool {
	return t == LedgerTransactionTypeDeposit || t == LedgerTransactionTypeRefund
}

// ParseLedgerTransactionType converts raw input into LedgerTransactionType.
func ParseLedgerTransactionType(value string) (LedgerTransactionType, error) {
	for _, candidate := range validLedgerTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger transaction type %q", value)
}
