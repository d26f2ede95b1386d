package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/temirbekov/mealdesk-backend/pkg/errors"
)

// DefaultWeeklyFreezeQuota is the number of freezes an employee gets per
// Monday-Sunday window.
const DefaultWeeklyFreezeQuota = 2

// FrozenCounter counts an employee's orders frozen inside a time window.
type FrozenCounter interface {
	CountFrozenInWindow(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (int, error)
}

// Policy gates order mutations behind the project cutoff and the weekly
// freeze quota.
type Policy struct {
	counter FrozenCounter
	quota   int
}

// New builds a policy with the provided frozen-order counter.
func New(counter FrozenCounter, quota int) (*Policy, error) {
	if counter == nil {
		return nil, fmt.Errorf("frozen counter required")
	}
	if quota <= 0 {
		quota = DefaultWeeklyFreezeQuota
	}
	return &Policy{counter: counter, quota: quota}, nil
}

// Quota returns the configured weekly freeze quota.
func (p *Policy) Quota() int {
	return p.quota
}

// CanModifyDate decides whether an order dated orderDate may still be
// mutated at the given wall-clock moment. Past dates are rejected outright;
// today's orders close at the project cutoff; future dates are unrestricted.
func CanModifyDate(cutoff string, now, orderDate time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	target := time.Date(orderDate.Year(), orderDate.Month(), orderDate.Day(), 0, 0, 0, 0, loc)

	switch {
	case target.Before(today):
		return pkgerrors.New(pkgerrors.CodePastDateNotAllowed, "orders in the past cannot be modified").
			WithDetails(map[string]any{"order_date": target.Format(time.DateOnly)})
	case target.After(today):
		return nil
	}

	hour, minute, err := ParseCutoff(cutoff)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid project cutoff")
	}
	cutoffMoment := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc)
	if !localNow.Before(cutoffMoment) {
		return pkgerrors.New(pkgerrors.CodeCutoffPassed, "today's orders can no longer be modified").
			WithDetails(map[string]any{"cutoff": cutoff})
	}
	return nil
}

// WeekWindow returns the [Monday, Sunday] calendar window containing date,
// at day precision in the date's location.
func WeekWindow(date time.Time) (monday, sunday time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday = day.AddDate(0, 0, -offset)
	sunday = monday.AddDate(0, 0, 6)
	return monday, sunday
}

// RemainingFreezes reports how many freezes the employee has left in the
// week containing referenceDate.
func (p *Policy) RemainingFreezes(ctx context.Context, employeeID uuid.UUID, referenceDate time.Time) (int, error) {
	if employeeID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	monday, sunday := WeekWindow(referenceDate)
	// frozen_at is a timestamp; extend the window to the end of Sunday
	used, err := p.counter.CountFrozenInWindow(ctx, employeeID, monday, sunday.AddDate(0, 0, 1))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting frozen orders")
	}
	remaining := p.quota - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// EnsureFreezeAllowed fails with FreezeLimitExceeded when the weekly quota
// is exhausted.
func (p *Policy) EnsureFreezeAllowed(ctx context.Context, employeeID uuid.UUID, referenceDate time.Time) error {
	remaining, err := p.RemainingFreezes(ctx, employeeID, referenceDate)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return pkgerrors.New(pkgerrors.CodeFreezeLimitExceeded, "weekly freeze limit reached").
			WithDetails(map[string]any{"quota": p.quota})
	}
	return nil
}

// ParseCutoff splits an HH:MM cutoff string into hour and minute.
func ParseCutoff(value string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid cutoff %q (expected HH:MM)", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cutoff hour %q: %w", parts[0], err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cutoff minute %q: %w", parts[1], err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("cutoff %q out of range", value)
	}
	return hour, minute, nil
}
