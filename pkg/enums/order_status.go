package enums

import (
	"fmt"
	"strings"
)

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusPaused    OrderStatus = "paused"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusActive,
	OrderStatusPaused,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// legacyOrderStatusAliases maps the synonym strings still present in imported
// HR data onto the canonical enum. Normalization happens once at the
// data-access boundary; domain logic never sees raw aliases.
var legacyOrderStatusAliases = map[string]OrderStatus{
	"активный":      OrderStatusActive,
	"pause":         OrderStatusPaused,
	"приостановлен": OrderStatusPaused,
	"delivered":     OrderStatusCompleted,
	"доставлен":     OrderStatusCompleted,
	"canceled":      OrderStatusCancelled,
	"отменен":       OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical order status.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// NormalizeOrderStatus converts raw input, including legacy aliases, into a
// canonical OrderStatus.
func NormalizeOrderStatus(value string) (OrderStatus, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	if alias, ok := legacyOrderStatusAliases[trimmed]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
