package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus maps to the subscription_status enum in Postgres.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCompleted SubscriptionStatus = "completed"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPaused,
	SubscriptionStatusCompleted,
}

var legacySubscriptionStatusAliases = map[string]SubscriptionStatus{
	"активный":      SubscriptionStatusActive,
	"pause":         SubscriptionStatusPaused,
	"приостановлен": SubscriptionStatusPaused,
	"finished":      SubscriptionStatusCompleted,
	"завершен":      SubscriptionStatusCompleted,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical subscription status.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the subscription accepts no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCompleted
}

// NormalizeSubscriptionStatus converts raw input, including legacy aliases,
// into a canonical SubscriptionStatus.
func NormalizeSubscriptionStatus(value string) (SubscriptionStatus, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	if alias, ok := legacySubscriptionStatusAliases[trimmed]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
