// Package services provides business logic over the stored ledger: recurring
// obligation normalization, installment amortization, transfers and the budget
// projection consumed by the dashboard.
//
// This file implements the Strategy Pattern for obligation cadence handling.
// Each frequency (weekly, biweekly, monthly) has its own scheduler that
// encapsulates the monthly-equivalent factor and the period enumeration rule.
package services

import (
	"fmt"

	"bilancio/internal/core"
)

// OccurrenceScheduler is the strategy interface normalizing one obligation
// cadence into the common monthly and rest-of-period views.
type OccurrenceScheduler interface {
	// MonthlyEquivalent returns the obligation amount scaled to one month.
	MonthlyEquivalent(amount core.Money) core.Money

	// AmountInPeriod returns the total the obligation contributes between its
	// next occurrence and periodEnd, inclusive.
	AmountInPeriod(amount core.Money, next, periodEnd core.Date) core.Money
}

// WeeklyScheduler normalizes weekly obligations. The monthly equivalent uses
// the fixed x4 factor, a deliberate approximation (a year has 52.14 weeks, not
// 48) kept because the monthly summary has always reported it this way.
type WeeklyScheduler struct{}

func (WeeklyScheduler) MonthlyEquivalent(amount core.Money) core.Money {
	return amount.Scale(4)
}

// AmountInPeriod enumerates occurrences by stepping 7 days from the next
// occurrence while still inside the period.
func (WeeklyScheduler) AmountInPeriod(amount core.Money, next, periodEnd core.Date) core.Money {
	var total core.Money
	for d := next; !d.After(periodEnd.Time); d = d.AddDays(7) {
		total = total.Add(amount)
	}
	return total
}

// BiweeklyScheduler normalizes biweekly obligations (x2 monthly factor, at
// most one occurrence counted per period).
type BiweeklyScheduler struct{}

func (BiweeklyScheduler) MonthlyEquivalent(amount core.Money) core.Money {
	return amount.Scale(2)
}

func (BiweeklyScheduler) AmountInPeriod(amount core.Money, next, periodEnd core.Date) core.Money {
	if next.After(periodEnd.Time) {
		return core.Money{}
	}
	return amount
}

// MonthlyScheduler normalizes monthly obligations.
type MonthlyScheduler struct{}

func (MonthlyScheduler) MonthlyEquivalent(amount core.Money) core.Money {
	return amount
}

func (MonthlyScheduler) AmountInPeriod(amount core.Money, next, periodEnd core.Date) core.Money {
	if next.After(periodEnd.Time) {
		return core.Money{}
	}
	return amount
}

// occurrenceStrategies maps frequencies to their schedulers.
var occurrenceStrategies = map[core.Frequency]OccurrenceScheduler{
	core.Weekly:   WeeklyScheduler{},
	core.Biweekly: BiweeklyScheduler{},
	core.Monthly:  MonthlyScheduler{},
}

// GetScheduler returns the scheduler for a frequency.
// Returns an error if the frequency is not supported.
func GetScheduler(frequency core.Frequency) (OccurrenceScheduler, error) {
	s, ok := occurrenceStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return s, nil
}
