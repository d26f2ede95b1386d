package enums

import "strings"

// ScheduleType describes how a subscription's order days are generated.
type ScheduleType string

const (
	ScheduleTypeEveryDay      ScheduleType = "every_day"
	ScheduleTypeEveryOtherDay ScheduleType = "every_other_day"
	ScheduleTypeCustomDates   ScheduleType = "custom_dates"
)

var validScheduleTypes = []ScheduleType{
	ScheduleTypeEveryDay,
	ScheduleTypeEveryOtherDay,
	ScheduleTypeCustomDates,
}

var legacyScheduleTypeAliases = map[string]ScheduleType{
	"everyday":      ScheduleTypeEveryDay,
	"каждый день":   ScheduleTypeEveryDay,
	"через день":    ScheduleTypeEveryOtherDay,
	"everyotherday": ScheduleTypeEveryOtherDay,
	"custom":        ScheduleTypeCustomDates,
}

// String implements fmt.Stringer.
func (s ScheduleType) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical schedule type.
func (s ScheduleType) IsValid() bool {
	for _, candidate := range validScheduleTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// NormalizeScheduleType converts raw input into a canonical ScheduleType.
// Unknown or legacy strings fall back to every_day, the safe default for
// subscriptions imported from older HR exports.
func NormalizeScheduleType(value string) ScheduleType {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validScheduleTypes {
		if string(candidate) == trimmed {
			return candidate
		}
	}
	if alias, ok := legacyScheduleTypeAliases[trimmed]; ok {
		return alias
	}
	return ScheduleTypeEveryDay
}
