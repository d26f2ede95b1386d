package schedule

import (
	"sort"
	"time"

	"github.com/temirbekov/mealdesk-backend/pkg/enums"
)

// defaultWorkingDays covers Monday through Friday.
var defaultWorkingDays = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
}

// everyOtherDayWeekdays are the fixed delivery days for the every_other_day
// schedule.
var everyOtherDayWeekdays = map[time.Weekday]bool{
	time.Monday:    true,
	time.Wednesday: true,
	time.Friday:    true,
}

// ShouldCreateOrder reports whether an order belongs on the given calendar
// date for the schedule type. For custom_dates the decision is owned by the
// caller's explicit date set (see ShouldCreateOrderOn), so this predicate
// always reports false.
func ShouldCreateOrder(scheduleType enums.ScheduleType, workingDays []time.Weekday, date time.Time) bool {
	switch enums.NormalizeScheduleType(string(scheduleType)) {
	case enums.ScheduleTypeEveryDay:
		return isWorkingDay(workingDays, date.Weekday())
	case enums.ScheduleTypeEveryOtherDay:
		return everyOtherDayWeekdays[date.Weekday()] && isWorkingDay(workingDays, date.Weekday())
	case enums.ScheduleTypeCustomDates:
		return false
	}
	return false
}

// ShouldCreateOrderOn reports whether date is a member of an explicit date
// set, compared at day precision.
func ShouldCreateOrderOn(dates []time.Time, date time.Time) bool {
	target := DateOnly(date)
	for _, candidate := range dates {
		if DateOnly(candidate).Equal(target) {
			return true
		}
	}
	return false
}

// CountOrderDays counts the order dates in the inclusive [start, end] range.
// An inverted range yields zero.
func CountOrderDays(scheduleType enums.ScheduleType, workingDays []time.Weekday, start, end time.Time) int {
	return len(GetOrderDates(scheduleType, workingDays, start, end))
}

// GetOrderDates enumerates the order dates in the inclusive [start, end]
// range, sorted ascending. An inverted range yields an empty slice.
func GetOrderDates(scheduleType enums.ScheduleType, workingDays []time.Weekday, start, end time.Time) []time.Time {
	from := DateOnly(start)
	to := DateOnly(end)
	if to.Before(from) {
		return nil
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ShouldCreateOrder(scheduleType, workingDays, d) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DateOnly truncates a timestamp to midnight UTC of the same calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isWorkingDay(workingDays []time.Weekday, day time.Weekday) bool {
	if len(workingDays) == 0 {
		workingDays = defaultWorkingDays
	}
	for _, candidate := range workingDays {
		if candidate == day {
			return true
		}
	}
	return false
}
